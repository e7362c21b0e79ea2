package port

import (
	"context"

	"github.com/mallbridge/mallbridge/internal/domain"
)

// TokenIssuer performs the OAuth grant exchanges against the provider's
// per-mall token endpoint and normalizes the differing response shapes into
// one TokenBundle.
type TokenIssuer interface {
	// AuthorizeURL builds the browser-redirect authorization URL for a mall.
	// The mall id doubles as the OAuth state parameter.
	AuthorizeURL(mallID, redirectURI, scope string) string

	// ExchangeAuthorizationCode swaps an authorization code for tokens.
	ExchangeAuthorizationCode(ctx context.Context, mallID, code, redirectURI string) (*domain.TokenBundle, error)

	// ExchangeClientCredentials issues a non-refreshable bundle for private
	// apps. Expired bundles are re-issued through the same call.
	ExchangeClientCredentials(ctx context.Context, mallID string) (*domain.TokenBundle, error)

	// ExchangeRefreshToken trades a refresh token for a fresh bundle.
	// An expired or revoked refresh token surfaces as ErrInvalidGrant.
	ExchangeRefreshToken(ctx context.Context, mallID, refreshToken string) (*domain.TokenBundle, error)
}

// TokenRefresher refreshes a mall's access token end to end: issuer exchange
// plus repository write-back. The scheduler drives it; the mall API client
// implements it.
type TokenRefresher interface {
	Refresh(ctx context.Context, mallID string) error
}

package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mallbridge/mallbridge/internal/domain"
	"github.com/mallbridge/mallbridge/internal/port"
)

// AuthService drives the OAuth installation flow for malls: authorize-URL
// generation, code exchange, and private-app token issuance. Results are
// persisted through the token repository so a failed exchange still leaves a
// record with status error.
type AuthService struct {
	issuer       port.TokenIssuer
	tokens       *TokenService
	redirectBase string
	scope        string
}

// NewAuthService creates the installation-flow service.
func NewAuthService(issuer port.TokenIssuer, tokens *TokenService, redirectBase, scope string) *AuthService {
	return &AuthService{
		issuer:       issuer,
		tokens:       tokens,
		redirectBase: redirectBase,
		scope:        scope,
	}
}

// RedirectURI returns the callback URI registered with the provider.
func (s *AuthService) RedirectURI() string {
	return s.redirectBase + "/api/auth/cafe24/callback"
}

// AuthorizeURL builds the browser-redirect authorization URL for a mall.
// Empty scope and redirectURI fall back to the configured defaults.
func (s *AuthService) AuthorizeURL(mallID, redirectURI, scope string) string {
	if redirectURI == "" {
		redirectURI = s.RedirectURI()
	}
	if scope == "" {
		scope = s.scope
	}
	return s.issuer.AuthorizeURL(mallID, redirectURI, scope)
}

// IssueFromAuthorizationCode exchanges an authorization code and persists
// the resulting bundle. On grant failure the record is stored with status
// error before the error propagates, so the dashboard can show why the
// installation failed.
func (s *AuthService) IssueFromAuthorizationCode(ctx context.Context, mallID, code, redirectURI string, userInfo *domain.UserInfo) (*domain.TokenBundle, error) {
	if redirectURI == "" {
		redirectURI = s.RedirectURI()
	}

	bundle, err := s.issuer.ExchangeAuthorizationCode(ctx, mallID, code, redirectURI)
	if err != nil {
		if saveErr := s.tokens.SaveFailure(ctx, mallID, userInfo, err); saveErr != nil {
			slog.Error("failed to record exchange failure", "mall_id", mallID, "error", saveErr)
		}
		return nil, fmt.Errorf("issue from authorization code: %w", err)
	}

	if err := s.tokens.Save(ctx, mallID, bundle, userInfo); err != nil {
		return nil, err
	}

	slog.Info("mall authorized", "mall_id", mallID, "app_type", domain.AppTypeOAuth)
	return bundle, nil
}

// IssueFromClientCredentials issues a non-refreshable bundle for a private
// app and persists it.
func (s *AuthService) IssueFromClientCredentials(ctx context.Context, mallID string) (*domain.TokenBundle, error) {
	bundle, err := s.issuer.ExchangeClientCredentials(ctx, mallID)
	if err != nil {
		if saveErr := s.tokens.SaveFailure(ctx, mallID, nil, err); saveErr != nil {
			slog.Error("failed to record exchange failure", "mall_id", mallID, "error", saveErr)
		}
		return nil, fmt.Errorf("issue from client credentials: %w", err)
	}

	if err := s.tokens.Save(ctx, mallID, bundle, &domain.UserInfo{UserType: domain.AppTypePrivate}); err != nil {
		return nil, err
	}

	slog.Info("mall authorized", "mall_id", mallID, "app_type", domain.AppTypePrivate)
	return bundle, nil
}

// RecordInstallation stores the mall metadata reported by the provider's
// install redirect before any token exchange happens. The record starts in
// status pending.
func (s *AuthService) RecordInstallation(ctx context.Context, mallID string, userInfo *domain.UserInfo) error {
	now := nowFunc()
	status := domain.StatusPending
	appType := domain.AppTypeOAuth

	patch := port.ShopPatch{
		Status:      &status,
		AppType:     &appType,
		InstalledAt: &now,
		UpdatedAt:   &now,
	}
	if userInfo != nil {
		if userInfo.UserID != "" {
			patch.UserID = &userInfo.UserID
		}
		if userInfo.UserName != "" {
			patch.UserName = &userInfo.UserName
		}
		if userInfo.UserType != "" {
			patch.UserType = &userInfo.UserType
		}
	}

	if err := s.tokens.store.UpsertMerge(ctx, mallID, patch); err != nil {
		return fmt.Errorf("record installation: %w", err)
	}

	slog.Info("mall installation recorded", "mall_id", mallID)
	return nil
}

// Package cafe24 talks to the Cafe24 mall APIs: the per-mall OAuth token
// endpoint and the authenticated admin resource endpoints.
package cafe24

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/mallbridge/mallbridge/internal/domain"
	"github.com/mallbridge/mallbridge/internal/port"
)

const (
	// apiHost is the provider's per-mall API host suffix.
	apiHost = "cafe24api.com"

	// requestTimeout bounds every provider round-trip. A timeout surfaces as
	// ErrProviderUnavailable, never as a token-expiry condition.
	requestTimeout = 30 * time.Second
)

// mallBaseURL returns the admin API base for a mall, e.g.
// https://demo.cafe24api.com/api/v2. Package var so tests can point it at a
// local server.
var mallBaseURL = func(mallID string) string {
	return fmt.Sprintf("https://%s.%s/api/v2", mallID, apiHost)
}

// Issuer exchanges credentials for token bundles via the three OAuth grants
// Cafe24 supports. All responses are normalized into domain.TokenBundle at
// this boundary.
type Issuer struct {
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

var _ port.TokenIssuer = (*Issuer)(nil)

// NewIssuer creates a token issuer for the configured OAuth app.
func NewIssuer(clientID, clientSecret string) *Issuer {
	return &Issuer{
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: requestTimeout},
	}
}

// AuthorizeURL builds the browser-redirect authorization URL for a mall.
// The mall id is carried as the OAuth state so the callback can route it.
func (i *Issuer) AuthorizeURL(mallID, redirectURI, scope string) string {
	if scope == "" {
		scope = domain.DefaultScope
	}
	cfg := oauth2.Config{
		ClientID:    i.clientID,
		RedirectURL: redirectURI,
		// Cafe24 scopes are comma-separated inside a single parameter, so the
		// whole list rides as one scope element.
		Scopes: []string{scope},
		Endpoint: oauth2.Endpoint{
			AuthURL:  mallBaseURL(mallID) + "/oauth/authorize",
			TokenURL: mallBaseURL(mallID) + "/oauth/token",
		},
	}
	return cfg.AuthCodeURL(mallID)
}

// ExchangeAuthorizationCode swaps an authorization code for a token bundle.
func (i *Issuer) ExchangeAuthorizationCode(ctx context.Context, mallID, code, redirectURI string) (*domain.TokenBundle, error) {
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {redirectURI},
	}
	bundle, err := i.exchange(ctx, mallID, form)
	if err != nil {
		return nil, fmt.Errorf("authorization_code exchange for %s: %w", mallID, err)
	}
	return bundle, nil
}

// ExchangeClientCredentials issues a bundle for a private app. The provider
// returns no refresh token on this grant; callers re-issue instead of
// refreshing.
func (i *Issuer) ExchangeClientCredentials(ctx context.Context, mallID string) (*domain.TokenBundle, error) {
	form := url.Values{
		"grant_type": {"client_credentials"},
	}
	bundle, err := i.exchange(ctx, mallID, form)
	if err != nil {
		return nil, fmt.Errorf("client_credentials exchange for %s: %w", mallID, err)
	}
	bundle.RefreshToken = ""
	return bundle, nil
}

// ExchangeRefreshToken trades a refresh token for a fresh bundle. An expired
// or revoked refresh token maps to ErrInvalidGrant, which is terminal and
// must propagate as "reauthentication required" rather than being retried.
func (i *Issuer) ExchangeRefreshToken(ctx context.Context, mallID, refreshToken string) (*domain.TokenBundle, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	bundle, err := i.exchange(ctx, mallID, form)
	if err != nil {
		return nil, fmt.Errorf("refresh_token exchange for %s: %w", mallID, err)
	}
	return bundle, nil
}

// exchange posts a grant request to the mall's token endpoint with HTTP
// Basic app authentication and normalizes the response.
func (i *Issuer) exchange(ctx context.Context, mallID string, form url.Values) (*domain.TokenBundle, error) {
	endpoint := mallBaseURL(mallID) + "/oauth/token"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(i.clientID, i.clientSecret)

	resp, err := i.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", port.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", port.ErrProviderUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, mapProviderError(resp.StatusCode, body)
	}

	var tokenResp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    any    `json:"expires_in"` // the provider has returned both numbers and strings here
		Scope        string `json:"scope"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}

	bundle := &domain.TokenBundle{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		TokenType:    tokenResp.TokenType,
		ExpiresIn:    parseExpiresIn(tokenResp.ExpiresIn),
		Scope:        tokenResp.Scope,
		IssuedAt:     time.Now(),
	}
	bundle.Normalize(bundle.IssuedAt)
	return bundle, nil
}

// parseExpiresIn tolerates the provider's inconsistent expires_in encodings.
// Anything unusable comes back as 0 and Normalize applies the 2h fallback.
func parseExpiresIn(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		var parsed int
		if _, err := fmt.Sscanf(n, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return 0
}

// mapProviderError translates a token-endpoint error body into the sentinel
// taxonomy.
func mapProviderError(status int, body []byte) error {
	var oauthErr struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	_ = json.Unmarshal(body, &oauthErr)

	switch {
	case oauthErr.Error == "invalid_grant":
		return fmt.Errorf("%w: %s", port.ErrInvalidGrant, oauthErr.Description)
	case oauthErr.Error == "invalid_client" || status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", port.ErrInvalidClient, oauthErr.Description)
	case status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: provider returned %d", port.ErrProviderUnavailable, status)
	default:
		return fmt.Errorf("token endpoint returned %d: %s %s", status, oauthErr.Error, oauthErr.Description)
	}
}

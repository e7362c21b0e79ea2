package cafe24

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mallbridge/mallbridge/internal/domain"
	"github.com/mallbridge/mallbridge/internal/port"
)

// outboundRate throttles admin API calls per mall. Cafe24 allows 2 calls per
// second per mall with small bursts.
const outboundRate = 2

// TokenRepository is the slice of the token service the mall client needs.
type TokenRepository interface {
	Get(ctx context.Context, mallID string) (*domain.ShopRecord, error)
	Status(ctx context.Context, mallID string) domain.TokenStatus
	Update(ctx context.Context, mallID string, tp domain.TokenPatch) error
}

// RequestOptions customizes a single authenticated API request.
type RequestOptions struct {
	Query   url.Values
	Payload any
	Headers map[string]string
}

// cachedToken is the short-lived in-process copy of the current access
// token. It is a read-through cache in front of the repository, never
// authoritative beyond the buffer window.
type cachedToken struct {
	token     string
	expiresAt time.Time
}

// MallClient makes authenticated calls to one mall's admin endpoints while
// hiding the token lifecycle from callers.
type MallClient struct {
	mallID string
	issuer port.TokenIssuer
	tokens TokenRepository
	buffer time.Duration

	httpClient *http.Client
	limiter    *rate.Limiter

	mu        sync.Mutex // guards cache and serializes refreshes per mall
	cache     *cachedToken
	refreshMu sync.Mutex
}

// NewMallClient creates a client for one mall.
func NewMallClient(mallID string, issuer port.TokenIssuer, tokens TokenRepository, buffer time.Duration) *MallClient {
	return &MallClient{
		mallID:     mallID,
		issuer:     issuer,
		tokens:     tokens,
		buffer:     buffer,
		httpClient: &http.Client{Timeout: requestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(outboundRate), outboundRate),
	}
}

// EnsureValidToken returns an access token guaranteed to outlive the refresh
// buffer, refreshing through the repository first when needed. It may block
// on a provider round-trip.
func (c *MallClient) EnsureValidToken(ctx context.Context) (string, error) {
	if tok, ok := c.cachedValid(); ok {
		return tok, nil
	}

	status := c.tokens.Status(ctx, c.mallID)
	if status.Valid && !status.NeedsRefresh {
		rec, err := c.tokens.Get(ctx, c.mallID)
		if err != nil {
			return "", fmt.Errorf("load tokens for %s: %w", c.mallID, err)
		}
		c.setCache(rec.AccessToken, rec.ExpiresAt)
		return rec.AccessToken, nil
	}

	if err := c.RefreshAccessToken(ctx); err != nil {
		return "", err
	}

	rec, err := c.tokens.Get(ctx, c.mallID)
	if err != nil {
		return "", fmt.Errorf("reload tokens for %s: %w", c.mallID, err)
	}
	if rec == nil || rec.AccessToken == "" {
		return "", fmt.Errorf("%w: no token after refresh for %s", port.ErrReauthRequired, c.mallID)
	}
	c.setCache(rec.AccessToken, rec.ExpiresAt)
	return rec.AccessToken, nil
}

// RefreshAccessToken refreshes the mall's access token and writes the result
// back through the repository. OAuth apps use the refresh_token grant;
// private apps re-issue via client_credentials. With neither available the
// error is terminal: the mall must restart the authorization-code flow.
// Concurrent refreshes for the same mall are serialized; the loser of a
// refresh-token race surfaces ErrInvalidGrant without corrupting state.
func (c *MallClient) RefreshAccessToken(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	rec, err := c.tokens.Get(ctx, c.mallID)
	if err != nil {
		return fmt.Errorf("load record for %s: %w", c.mallID, err)
	}
	if rec == nil {
		return fmt.Errorf("%w for mall %s: %w", port.ErrNoRecord, c.mallID, port.ErrReauthRequired)
	}

	var bundle *domain.TokenBundle
	switch {
	case rec.RefreshToken != "":
		bundle, err = c.issuer.ExchangeRefreshToken(ctx, c.mallID, rec.RefreshToken)
	case rec.AppType == domain.AppTypePrivate:
		bundle, err = c.issuer.ExchangeClientCredentials(ctx, c.mallID)
	default:
		return fmt.Errorf("%w: mall %s has no refresh token", port.ErrReauthRequired, c.mallID)
	}
	if err != nil {
		return err
	}

	if err := c.tokens.Update(ctx, c.mallID, domain.TokenPatch{
		AccessToken:  bundle.AccessToken,
		RefreshToken: bundle.RefreshToken,
		TokenType:    bundle.TokenType,
		Scope:        bundle.Scope,
		ExpiresIn:    bundle.ExpiresIn,
	}); err != nil {
		return fmt.Errorf("persist refreshed tokens for %s: %w", c.mallID, err)
	}

	c.invalidateCache()
	slog.Info("access token refreshed", "mall_id", c.mallID)
	return nil
}

// Request performs an authenticated call against the mall's admin API.
// One 401 triggers exactly one refresh-and-retry cycle; a second 401
// propagates ErrAuthenticationFailed.
func (c *MallClient) Request(ctx context.Context, method, endpoint string, opts RequestOptions) ([]byte, error) {
	token, err := c.EnsureValidToken(ctx)
	if err != nil {
		return nil, err
	}

	body, status, err := c.send(ctx, method, endpoint, opts, token)
	if err != nil {
		return nil, err
	}
	if status != http.StatusUnauthorized {
		return checkStatus(endpoint, status, body)
	}

	// 401: invalidate, refresh, retry once.
	slog.Warn("unauthorized response, retrying after refresh", "mall_id", c.mallID, "endpoint", endpoint)
	c.invalidateCache()
	if err := c.RefreshAccessToken(ctx); err != nil {
		return nil, err
	}
	token, err = c.EnsureValidToken(ctx)
	if err != nil {
		return nil, err
	}

	body, status, err = c.send(ctx, method, endpoint, opts, token)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		c.invalidateCache()
		return nil, fmt.Errorf("%w: mall %s endpoint %s", port.ErrAuthenticationFailed, c.mallID, endpoint)
	}
	return checkStatus(endpoint, status, body)
}

// HealthCheck issues a minimal read call and reports liveness. It never
// returns an error; any failure is false.
func (c *MallClient) HealthCheck(ctx context.Context) bool {
	q := url.Values{"limit": {"1"}}
	_, err := c.Request(ctx, http.MethodGet, "/admin/boards", RequestOptions{Query: q})
	return err == nil
}

// GetBoardArticles lists recent articles on a board.
func (c *MallClient) GetBoardArticles(ctx context.Context, boardNo, limit int) ([]domain.BoardArticle, error) {
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	body, err := c.Request(ctx, http.MethodGet, fmt.Sprintf("/admin/boards/%d/articles", boardNo), RequestOptions{Query: q})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Articles []domain.BoardArticle `json:"articles"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode articles: %w", err)
	}
	return resp.Articles, nil
}

// CreateBoardArticle posts a new article to a board.
func (c *MallClient) CreateBoardArticle(ctx context.Context, boardNo int, article domain.BoardArticle) (*domain.BoardArticle, error) {
	payload := map[string]any{"article": article}
	body, err := c.Request(ctx, http.MethodPost, fmt.Sprintf("/admin/boards/%d/articles", boardNo), RequestOptions{Payload: payload})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Article domain.BoardArticle `json:"article"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode article: %w", err)
	}
	return &resp.Article, nil
}

// GetBoardComments lists the comments under an article.
func (c *MallClient) GetBoardComments(ctx context.Context, boardNo, articleNo int) ([]domain.BoardComment, error) {
	body, err := c.Request(ctx, http.MethodGet, fmt.Sprintf("/admin/boards/%d/articles/%d/comments", boardNo, articleNo), RequestOptions{})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Comments []domain.BoardComment `json:"comments"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode comments: %w", err)
	}
	return resp.Comments, nil
}

// CreateBoardComment posts a comment under an article.
func (c *MallClient) CreateBoardComment(ctx context.Context, boardNo, articleNo int, comment domain.BoardComment) (*domain.BoardComment, error) {
	payload := map[string]any{"comment": comment}
	body, err := c.Request(ctx, http.MethodPost, fmt.Sprintf("/admin/boards/%d/articles/%d/comments", boardNo, articleNo), RequestOptions{Payload: payload})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Comment domain.BoardComment `json:"comment"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode comment: %w", err)
	}
	return &resp.Comment, nil
}

// send performs one HTTP round-trip with the given token, honoring the
// per-mall rate limit.
func (c *MallClient) send(ctx context.Context, method, endpoint string, opts RequestOptions, token string) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	reqURL := mallBaseURL(c.mallID) + endpoint
	if len(opts.Query) > 0 {
		reqURL += "?" + opts.Query.Encode()
	}

	var reqBody io.Reader
	if opts.Payload != nil {
		raw, err := json.Marshal(opts.Payload)
		if err != nil {
			return nil, 0, fmt.Errorf("encode payload: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("%w: %v", port.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read response: %v", port.ErrProviderUnavailable, err)
	}
	return body, resp.StatusCode, nil
}

// checkStatus converts non-2xx admin API responses into errors.
func checkStatus(endpoint string, status int, body []byte) ([]byte, error) {
	if status >= 200 && status < 300 {
		return body, nil
	}
	return nil, fmt.Errorf("admin API %s returned %d: %s", endpoint, status, truncate(body, 200))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

func (c *MallClient) cachedValid() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cache == nil {
		return "", false
	}
	if time.Now().Add(c.buffer).After(c.cache.expiresAt) {
		return "", false
	}
	return c.cache.token, true
}

func (c *MallClient) setCache(token string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = &cachedToken{token: token, expiresAt: expiresAt}
}

func (c *MallClient) invalidateCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = nil
}

package cafe24

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mallbridge/mallbridge/internal/domain"
	"github.com/mallbridge/mallbridge/internal/port"
)

// fakeRepo is an in-memory TokenRepository over a single record.
type fakeRepo struct {
	mu      sync.Mutex
	rec     *domain.ShopRecord
	buffer  time.Duration
	updates int
}

func (f *fakeRepo) Get(_ context.Context, _ string) (*domain.ShopRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rec == nil {
		return nil, nil
	}
	cp := *f.rec
	return &cp, nil
}

func (f *fakeRepo) Status(_ context.Context, _ string) domain.TokenStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.ComputeTokenStatus(f.rec, time.Now(), f.buffer)
}

func (f *fakeRepo) Update(_ context.Context, _ string, tp domain.TokenPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if tp.AccessToken != "" {
		f.rec.AccessToken = tp.AccessToken
	}
	if tp.RefreshToken != "" {
		f.rec.RefreshToken = tp.RefreshToken
	}
	if tp.ExpiresIn > 0 {
		f.rec.ExpiresIn = tp.ExpiresIn
		f.rec.ExpiresAt = time.Now().Add(time.Duration(tp.ExpiresIn) * time.Second)
	}
	return nil
}

// fakeIssuer dispatches grant calls to function fields.
type fakeIssuer struct {
	refresh     func(ctx context.Context, mallID, refreshToken string) (*domain.TokenBundle, error)
	clientCreds func(ctx context.Context, mallID string) (*domain.TokenBundle, error)

	refreshCalls     int
	clientCredsCalls int
}

func (f *fakeIssuer) AuthorizeURL(_, _, _ string) string { return "" }

func (f *fakeIssuer) ExchangeAuthorizationCode(_ context.Context, _, _, _ string) (*domain.TokenBundle, error) {
	return nil, port.ErrInvalidGrant
}

func (f *fakeIssuer) ExchangeClientCredentials(ctx context.Context, mallID string) (*domain.TokenBundle, error) {
	f.clientCredsCalls++
	if f.clientCreds == nil {
		return nil, port.ErrProviderUnavailable
	}
	return f.clientCreds(ctx, mallID)
}

func (f *fakeIssuer) ExchangeRefreshToken(ctx context.Context, mallID, refreshToken string) (*domain.TokenBundle, error) {
	f.refreshCalls++
	if f.refresh == nil {
		return nil, port.ErrProviderUnavailable
	}
	return f.refresh(ctx, mallID, refreshToken)
}

func freshBundle(token string) *domain.TokenBundle {
	b := &domain.TokenBundle{
		AccessToken:  token,
		RefreshToken: "rt-next",
		ExpiresIn:    7200,
		IssuedAt:     time.Now(),
	}
	b.Normalize(b.IssuedAt)
	return b
}

func validRecord(token string) *domain.ShopRecord {
	return &domain.ShopRecord{
		MallID:       "demo",
		AppType:      domain.AppTypeOAuth,
		AccessToken:  token,
		RefreshToken: "rt-1",
		ExpiresAt:    time.Now().Add(2 * time.Hour),
		Status:       domain.StatusReady,
	}
}

func TestEnsureValidTokenFromStore(t *testing.T) {
	repo := &fakeRepo{rec: validRecord("at-stored"), buffer: 5 * time.Minute}
	issuer := &fakeIssuer{}
	client := NewMallClient("demo", issuer, repo, 5*time.Minute)

	tok, err := client.EnsureValidToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "at-stored", tok)
	require.Zero(t, issuer.refreshCalls)

	// Second call is served from the in-process cache.
	tok, err = client.EnsureValidToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "at-stored", tok)
}

func TestEnsureValidTokenRefreshesInsideBuffer(t *testing.T) {
	rec := validRecord("at-old")
	rec.ExpiresAt = time.Now().Add(time.Minute)
	repo := &fakeRepo{rec: rec, buffer: 5 * time.Minute}

	issuer := &fakeIssuer{
		refresh: func(_ context.Context, _, refreshToken string) (*domain.TokenBundle, error) {
			require.Equal(t, "rt-1", refreshToken)
			return freshBundle("at-new"), nil
		},
	}
	client := NewMallClient("demo", issuer, repo, 5*time.Minute)

	tok, err := client.EnsureValidToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "at-new", tok)
	require.Equal(t, 1, issuer.refreshCalls)
	require.Equal(t, 1, repo.updates)
}

func TestRefreshWithoutRefreshTokenIsTerminal(t *testing.T) {
	rec := validRecord("at")
	rec.RefreshToken = ""
	repo := &fakeRepo{rec: rec, buffer: 5 * time.Minute}
	client := NewMallClient("demo", &fakeIssuer{}, repo, 5*time.Minute)

	err := client.RefreshAccessToken(context.Background())
	require.ErrorIs(t, err, port.ErrReauthRequired)
	require.Zero(t, repo.updates)
}

func TestRefreshNoRecordIsTerminal(t *testing.T) {
	repo := &fakeRepo{buffer: 5 * time.Minute}
	client := NewMallClient("demo", &fakeIssuer{}, repo, 5*time.Minute)

	err := client.RefreshAccessToken(context.Background())
	require.ErrorIs(t, err, port.ErrNoRecord)
	require.ErrorIs(t, err, port.ErrReauthRequired)
}

func TestRefreshPrivateAppReissues(t *testing.T) {
	rec := validRecord("at-old")
	rec.AppType = domain.AppTypePrivate
	rec.RefreshToken = ""
	repo := &fakeRepo{rec: rec, buffer: 5 * time.Minute}

	issuer := &fakeIssuer{
		clientCreds: func(_ context.Context, _ string) (*domain.TokenBundle, error) {
			b := freshBundle("at-reissued")
			b.RefreshToken = ""
			return b, nil
		},
	}
	client := NewMallClient("demo", issuer, repo, 5*time.Minute)

	require.NoError(t, client.RefreshAccessToken(context.Background()))
	require.Equal(t, 1, issuer.clientCredsCalls)
	require.Zero(t, issuer.refreshCalls)
	require.Equal(t, "at-reissued", repo.rec.AccessToken)
}

func TestRefreshFailureLeavesStoredTokenUnchanged(t *testing.T) {
	repo := &fakeRepo{rec: validRecord("at-stored"), buffer: 5 * time.Minute}
	issuer := &fakeIssuer{
		refresh: func(_ context.Context, _, _ string) (*domain.TokenBundle, error) {
			return nil, port.ErrProviderUnavailable
		},
	}
	client := NewMallClient("demo", issuer, repo, 5*time.Minute)

	err := client.RefreshAccessToken(context.Background())
	require.ErrorIs(t, err, port.ErrProviderUnavailable)
	require.Zero(t, repo.updates)
	require.Equal(t, "at-stored", repo.rec.AccessToken)
}

func TestRequestRetriesOnceAfter401(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("Authorization") == "Bearer at-fresh" {
			w.Write([]byte(`{"articles": []}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	pointAt(t, srv)

	repo := &fakeRepo{rec: validRecord("at-stale"), buffer: 5 * time.Minute}
	issuer := &fakeIssuer{
		refresh: func(_ context.Context, _, _ string) (*domain.TokenBundle, error) {
			return freshBundle("at-fresh"), nil
		},
	}
	client := NewMallClient("demo", issuer, repo, 5*time.Minute)

	_, err := client.GetBoardArticles(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, 1, issuer.refreshCalls)
	require.Equal(t, "at-fresh", repo.rec.AccessToken)
}

func TestRequestSecond401Fails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	pointAt(t, srv)

	repo := &fakeRepo{rec: validRecord("at-stale"), buffer: 5 * time.Minute}
	issuer := &fakeIssuer{
		refresh: func(_ context.Context, _, _ string) (*domain.TokenBundle, error) {
			return freshBundle("at-fresh"), nil
		},
	}
	client := NewMallClient("demo", issuer, repo, 5*time.Minute)

	_, err := client.Request(context.Background(), http.MethodGet, "/admin/boards", RequestOptions{})
	require.ErrorIs(t, err, port.ErrAuthenticationFailed)
	require.Equal(t, 1, issuer.refreshCalls)
}

func TestHealthCheck(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"boards": []}`))
	}))
	defer srv.Close()
	pointAt(t, srv)

	repo := &fakeRepo{rec: validRecord("at"), buffer: 5 * time.Minute}
	client := NewMallClient("demo", &fakeIssuer{}, repo, 5*time.Minute)

	require.True(t, client.HealthCheck(context.Background()))
	require.Equal(t, "/api/v2/admin/boards", gotPath)
}

func TestHealthCheckFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	pointAt(t, srv)

	repo := &fakeRepo{rec: validRecord("at"), buffer: 5 * time.Minute}
	client := NewMallClient("demo", &fakeIssuer{}, repo, 5*time.Minute)

	require.False(t, client.HealthCheck(context.Background()))
}

func TestCreateBoardComment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v2/admin/boards/5/articles/42/comments", r.URL.Path)
		w.Write([]byte(`{"comment": {"comment_no": 7, "content": "thanks"}}`))
	}))
	defer srv.Close()
	pointAt(t, srv)

	repo := &fakeRepo{rec: validRecord("at"), buffer: 5 * time.Minute}
	client := NewMallClient("demo", &fakeIssuer{}, repo, 5*time.Minute)

	comment, err := client.CreateBoardComment(context.Background(), 5, 42, domain.BoardComment{Content: "thanks"})
	require.NoError(t, err)
	require.Equal(t, 7, comment.CommentNo)
}

func TestRegistrySharesClients(t *testing.T) {
	repo := &fakeRepo{rec: validRecord("at"), buffer: 5 * time.Minute}
	reg := NewRegistry(&fakeIssuer{}, repo, 5*time.Minute)

	a := reg.Client("demo")
	b := reg.Client("demo")
	require.Same(t, a, b)
	require.NotSame(t, a, reg.Client("other"))
}

package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/require"

	"github.com/mallbridge/mallbridge/internal/adapter/cafe24"
	"github.com/mallbridge/mallbridge/internal/adapter/store"
	"github.com/mallbridge/mallbridge/internal/domain"
	"github.com/mallbridge/mallbridge/internal/service"
)

func newTestApp(t *testing.T) (*fiber.App, *service.TokenService, *store.MemoryStore) {
	t.Helper()

	mem := store.NewMemoryStore()
	tokens := service.NewTokenService(mem, "client-id", 5*time.Minute)
	issuer := cafe24.NewIssuer("client-id", "client-secret")
	malls := cafe24.NewRegistry(issuer, tokens, 5*time.Minute)
	auth := service.NewAuthService(issuer, tokens, "https://backend.example.com", "mall.read_community")

	cfg := domain.DefaultSchedulerConfig()
	cfg.RetryDelay = time.Millisecond
	sched := service.NewScheduler(cfg, tokens, malls, mem)

	app := fiber.New()
	NewAuthHandler(auth, "http://localhost:3000").Register(app)
	NewTokenHandler(tokens, malls).Register(app)
	NewSchedulerHandler(sched, 30).Register(app)

	return app, tokens, mem
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func TestAuthURLEndpoint(t *testing.T) {
	app, _, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/url", strings.NewReader(`{"mall_id": "demo"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	require.Equal(t, true, body["success"])
	require.Contains(t, body["auth_url"], "demo.cafe24api.com")
	require.Contains(t, body["auth_url"], "state=demo")
}

func TestAuthURLRequiresMallID(t *testing.T) {
	app, _, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/url", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCallbackWithoutCodeRedirectsToError(t *testing.T) {
	app, _, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/cafe24/callback?state=demo", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Location"), "/auth/error")
}

func TestTokenDeleteEndpoint(t *testing.T) {
	app, tokens, _ := newTestApp(t)

	err := tokens.Save(t.Context(), "demo", &domain.TokenBundle{AccessToken: "at", RefreshToken: "rt"}, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/api/token/?mall_id=demo", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	rec, err := tokens.Get(t.Context(), "demo")
	require.NoError(t, err)
	require.Empty(t, rec.AccessToken)
	require.Equal(t, domain.StatusExpired, rec.Status)
}

func TestTokenDeleteRequiresMallID(t *testing.T) {
	app, _, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/token/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSchedulerStatusEndpoint(t *testing.T) {
	app, _, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/scheduler/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	status := body["status"].(map[string]any)
	require.Equal(t, false, status["running"])
}

func TestSchedulerActionEndpoint(t *testing.T) {
	app, _, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/api/scheduler/", strings.NewReader(`{"action": "check"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	status := body["status"].(map[string]any)
	require.Equal(t, float64(1), status["total_checks"])
}

func TestSchedulerUnknownAction(t *testing.T) {
	app, _, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/api/scheduler/", strings.NewReader(`{"action": "explode"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSchedulerLogsEndpoint(t *testing.T) {
	app, _, mem := newTestApp(t)

	err := mem.AppendRun(t.Context(), &domain.SchedulerRun{
		RunID:     "r1",
		Type:      domain.RunTypeCheck,
		Message:   "token check cycle complete",
		Success:   true,
		Timestamp: time.Now(),
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/scheduler/logs?limit=10", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	logs := body["logs"].([]any)
	require.Len(t, logs, 1)
}

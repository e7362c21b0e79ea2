package cafe24

import (
	"context"
	"sync"
	"time"

	"github.com/mallbridge/mallbridge/internal/port"
)

// Registry hands out one MallClient per mall so the token cache and the
// per-mall refresh lock are shared between the HTTP handlers and the
// scheduler.
type Registry struct {
	issuer port.TokenIssuer
	tokens TokenRepository
	buffer time.Duration

	mu      sync.Mutex
	clients map[string]*MallClient
}

var _ port.TokenRefresher = (*Registry)(nil)

// NewRegistry creates a mall client registry.
func NewRegistry(issuer port.TokenIssuer, tokens TokenRepository, buffer time.Duration) *Registry {
	return &Registry{
		issuer:  issuer,
		tokens:  tokens,
		buffer:  buffer,
		clients: make(map[string]*MallClient),
	}
}

// Client returns the shared client for a mall, creating it on first use.
func (r *Registry) Client(mallID string) *MallClient {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[mallID]; ok {
		return c
	}
	c := NewMallClient(mallID, r.issuer, r.tokens, r.buffer)
	r.clients[mallID] = c
	return c
}

// Refresh implements port.TokenRefresher for the scheduler.
func (r *Registry) Refresh(ctx context.Context, mallID string) error {
	return r.Client(mallID).RefreshAccessToken(ctx)
}

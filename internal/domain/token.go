package domain

import (
	"time"
)

const (
	// DefaultTokenType is used when a grant response omits token_type.
	DefaultTokenType = "Bearer"

	// DefaultScope is the community read/write scope granted to the app.
	DefaultScope = "mall.read_community,mall.write_community"

	// DefaultExpiresIn is the conservative fallback (2 hours) applied when a
	// grant response omits or corrupts expires_in. A stored record must always
	// carry a computable expiry instant.
	DefaultExpiresIn = 7200
)

// TokenBundle is the normalized result of any of the three OAuth grant
// exchanges against the Cafe24 token endpoint.
type TokenBundle struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"` // absent for client_credentials grants
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	Scope        string    `json:"scope,omitempty"`
	IssuedAt     time.Time `json:"issued_at"`
}

// Normalize fills defaults for fields a grant response may omit and enforces
// the expiry invariant: ExpiresIn is always positive after normalization.
func (b *TokenBundle) Normalize(now time.Time) {
	if b.TokenType == "" {
		b.TokenType = DefaultTokenType
	}
	if b.Scope == "" {
		b.Scope = DefaultScope
	}
	if b.ExpiresIn <= 0 {
		b.ExpiresIn = DefaultExpiresIn
	}
	if b.IssuedAt.IsZero() {
		b.IssuedAt = now
	}
}

// ExpiresAt returns the instant the access token expires.
func (b *TokenBundle) ExpiresAt() time.Time {
	return b.IssuedAt.Add(time.Duration(b.ExpiresIn) * time.Second)
}

// Refreshable reports whether the bundle can be refreshed. Client-credentials
// grants carry no refresh token and must be re-issued instead.
func (b *TokenBundle) Refreshable() bool {
	return b.RefreshToken != ""
}

// TokenPatch is a partial token update. Empty fields are left untouched by
// the merge, mirroring the provider's refresh responses which may omit a new
// refresh token or scope.
type TokenPatch struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	ExpiresIn    int // seconds; 0 means "not provided"
}

// TokenStatus is derived from a ShopRecord at query time. It is never stored.
type TokenStatus struct {
	Valid        bool       `json:"valid"`
	ExpiresAt    *time.Time `json:"expires_at"`
	MinutesLeft  int        `json:"minutes_left"`
	NeedsRefresh bool       `json:"needs_refresh"`
	Error        string     `json:"error,omitempty"`
}

// ComputeTokenStatus derives the token status for a shop record as of now.
// The buffer controls the proactive-refresh window. A missing or unparseable
// expiry is reported as corrupt state (needs refresh) rather than natural
// expiry, so callers can tell the two apart.
func ComputeTokenStatus(rec *ShopRecord, now time.Time, buffer time.Duration) TokenStatus {
	if rec == nil {
		return TokenStatus{Error: "no shop record"}
	}
	if rec.AccessToken == "" {
		return TokenStatus{Error: "no access token"}
	}
	if rec.ExpiresAt.IsZero() {
		return TokenStatus{NeedsRefresh: true, Error: "token expiry not set"}
	}

	expiresAt := rec.ExpiresAt
	remaining := expiresAt.Sub(now)

	if remaining <= 0 {
		return TokenStatus{
			ExpiresAt:    &expiresAt,
			NeedsRefresh: true,
			Error:        "token expired",
		}
	}

	return TokenStatus{
		Valid:        true,
		ExpiresAt:    &expiresAt,
		MinutesLeft:  int(remaining / time.Minute),
		NeedsRefresh: remaining <= buffer,
	}
}

// FormatExpiryTime renders an expiry instant for dashboards and notifications.
// It never fails: a nil or zero instant comes back as a placeholder.
func FormatExpiryTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "not set"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeFillsDefaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	b := &TokenBundle{AccessToken: "at"}
	b.Normalize(now)

	require.Equal(t, DefaultTokenType, b.TokenType)
	require.Equal(t, DefaultScope, b.Scope)
	require.Equal(t, DefaultExpiresIn, b.ExpiresIn)
	require.Equal(t, now, b.IssuedAt)
	require.Equal(t, now.Add(2*time.Hour), b.ExpiresAt())
}

func TestNormalizeKeepsProvidedFields(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	b := &TokenBundle{
		AccessToken: "at",
		TokenType:   "Bearer",
		Scope:       "mall.read_application",
		ExpiresIn:   3600,
		IssuedAt:    now.Add(-time.Minute),
	}
	b.Normalize(now)

	require.Equal(t, 3600, b.ExpiresIn)
	require.Equal(t, "mall.read_application", b.Scope)
	require.Equal(t, now.Add(-time.Minute), b.IssuedAt)
}

func TestNormalizeNegativeExpiresIn(t *testing.T) {
	b := &TokenBundle{AccessToken: "at", ExpiresIn: -100}
	b.Normalize(time.Now())
	require.Equal(t, DefaultExpiresIn, b.ExpiresIn)
}

func TestRefreshable(t *testing.T) {
	require.True(t, (&TokenBundle{RefreshToken: "rt"}).Refreshable())
	require.False(t, (&TokenBundle{}).Refreshable())
}

func TestComputeTokenStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	buffer := 5 * time.Minute

	tests := []struct {
		name string
		rec  *ShopRecord
		want TokenStatus
	}{
		{
			name: "no record",
			rec:  nil,
			want: TokenStatus{Error: "no shop record"},
		},
		{
			name: "no access token",
			rec:  &ShopRecord{MallID: "demo"},
			want: TokenStatus{Error: "no access token"},
		},
		{
			name: "expiry not set",
			rec:  &ShopRecord{MallID: "demo", AccessToken: "at"},
			want: TokenStatus{NeedsRefresh: true, Error: "token expiry not set"},
		},
		{
			name: "expired",
			rec:  &ShopRecord{MallID: "demo", AccessToken: "at", ExpiresAt: now.Add(-time.Minute)},
			want: TokenStatus{NeedsRefresh: true, Error: "token expired"},
		},
		{
			name: "valid outside buffer",
			rec:  &ShopRecord{MallID: "demo", AccessToken: "at", ExpiresAt: now.Add(90 * time.Minute)},
			want: TokenStatus{Valid: true, MinutesLeft: 90},
		},
		{
			name: "valid inside buffer needs refresh",
			rec:  &ShopRecord{MallID: "demo", AccessToken: "at", ExpiresAt: now.Add(4 * time.Minute)},
			want: TokenStatus{Valid: true, MinutesLeft: 4, NeedsRefresh: true},
		},
		{
			name: "exactly at buffer boundary needs refresh",
			rec:  &ShopRecord{MallID: "demo", AccessToken: "at", ExpiresAt: now.Add(buffer)},
			want: TokenStatus{Valid: true, MinutesLeft: 5, NeedsRefresh: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTokenStatus(tt.rec, now, buffer)
			require.Equal(t, tt.want.Valid, got.Valid)
			require.Equal(t, tt.want.MinutesLeft, got.MinutesLeft)
			require.Equal(t, tt.want.NeedsRefresh, got.NeedsRefresh)
			require.Equal(t, tt.want.Error, got.Error)
		})
	}
}

func TestComputeTokenStatusExpiredKeepsExpiresAt(t *testing.T) {
	now := time.Now()
	expiresAt := now.Add(-time.Hour)
	rec := &ShopRecord{MallID: "demo", AccessToken: "at", ExpiresAt: expiresAt}

	st := ComputeTokenStatus(rec, now, 5*time.Minute)
	require.NotNil(t, st.ExpiresAt)
	require.Equal(t, expiresAt, *st.ExpiresAt)
}

func TestFormatExpiryTime(t *testing.T) {
	require.Equal(t, "not set", FormatExpiryTime(nil))

	var zero time.Time
	require.Equal(t, "not set", FormatExpiryTime(&zero))

	at := time.Date(2026, 3, 1, 12, 30, 45, 0, time.Local)
	require.Equal(t, "2026-03-01 12:30:45", FormatExpiryTime(&at))
}

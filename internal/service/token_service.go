package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mallbridge/mallbridge/internal/domain"
	"github.com/mallbridge/mallbridge/internal/port"
)

// nowFunc returns the current time. Overridden in tests.
var nowFunc = time.Now

// TokenService is the single source of truth mapping mall ids to persisted
// credential records. All status decisions are derived fresh from the stored
// expiry; nothing here is cached.
type TokenService struct {
	store    port.CredentialStore
	clientID string
	buffer   time.Duration
}

// NewTokenService creates the token repository over a credential store.
// buffer is the proactive-refresh window (remaining lifetime at or below it
// flips needs_refresh).
func NewTokenService(store port.CredentialStore, clientID string, buffer time.Duration) *TokenService {
	return &TokenService{store: store, clientID: clientID, buffer: buffer}
}

// Save upserts the full credential record for a mall after a successful
// grant exchange and marks it ready. A missing or non-positive expires_in
// falls back to the two-hour default so the stored expiry is always a
// valid instant.
func (s *TokenService) Save(ctx context.Context, mallID string, bundle *domain.TokenBundle, userInfo *domain.UserInfo) error {
	now := nowFunc()
	bundle.Normalize(now)
	expiresAt := bundle.ExpiresAt()

	userID, userName, userType := "oauth_user", "OAuth User", "oauth"
	if userInfo != nil {
		if userInfo.UserID != "" {
			userID = userInfo.UserID
		}
		if userInfo.UserName != "" {
			userName = userInfo.UserName
		}
		if userInfo.UserType != "" {
			userType = userInfo.UserType
		}
	}

	appType := domain.AppTypeOAuth
	if !bundle.Refreshable() {
		appType = domain.AppTypePrivate
	}

	status := domain.StatusReady
	patch := port.ShopPatch{
		UserID:   &userID,
		UserName: &userName,
		UserType: &userType,
		AppType:  &appType,

		AccessToken:  &bundle.AccessToken,
		RefreshToken: &bundle.RefreshToken,
		TokenType:    &bundle.TokenType,
		ExpiresIn:    &bundle.ExpiresIn,
		ExpiresAt:    &expiresAt,
		Scope:        &bundle.Scope,
		ClientID:     &s.clientID,

		Status: &status,

		InstalledAt:   &now,
		UpdatedAt:     &now,
		LastRefreshAt: &now,
	}

	if err := s.store.UpsertMerge(ctx, mallID, patch); err != nil {
		return fmt.Errorf("save tokens: %w", err)
	}

	slog.Info("tokens saved", "mall_id", mallID, "expires_at", expiresAt)
	return nil
}

// SaveFailure records a failed grant exchange so the mall shows up with
// status error instead of silently missing.
func (s *TokenService) SaveFailure(ctx context.Context, mallID string, userInfo *domain.UserInfo, cause error) error {
	now := nowFunc()
	status := domain.StatusError
	msg := cause.Error()

	patch := port.ShopPatch{
		Status:     &status,
		TokenError: &msg,
		UpdatedAt:  &now,
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
		patch.InstalledAt = &now
	}

	if err := s.store.UpsertMerge(ctx, mallID, patch); err != nil {
		return fmt.Errorf("save token failure: %w", err)
	}
	return nil
}

// Update merges a partial bundle into the stored record: only provided
// fields change, updated_at/last_refresh_at advance, and status is forced
// back to ready. Repeated updates with identical input are idempotent.
func (s *TokenService) Update(ctx context.Context, mallID string, tp domain.TokenPatch) error {
	now := nowFunc()
	status := domain.StatusReady
	empty := ""

	patch := port.ShopPatch{
		Status:     &status,
		TokenError: &empty,

		UpdatedAt:     &now,
		LastRefreshAt: &now,
	}

	if tp.AccessToken != "" {
		patch.AccessToken = &tp.AccessToken
	}
	if tp.RefreshToken != "" {
		patch.RefreshToken = &tp.RefreshToken
	}
	if tp.TokenType != "" {
		patch.TokenType = &tp.TokenType
	}
	if tp.Scope != "" {
		patch.Scope = &tp.Scope
	}
	if tp.ExpiresIn > 0 {
		expiresAt := now.Add(time.Duration(tp.ExpiresIn) * time.Second)
		patch.ExpiresIn = &tp.ExpiresIn
		patch.ExpiresAt = &expiresAt
	}

	if err := s.store.UpsertMerge(ctx, mallID, patch); err != nil {
		return fmt.Errorf("update tokens: %w", err)
	}

	slog.Info("tokens updated", "mall_id", mallID)
	return nil
}

// Get returns the credential record for a mall, or nil when none exists.
func (s *TokenService) Get(ctx context.Context, mallID string) (*domain.ShopRecord, error) {
	rec, err := s.store.Get(ctx, mallID)
	if err != nil {
		return nil, fmt.Errorf("get shop record: %w", err)
	}
	return rec, nil
}

// Status derives the current token status for a mall. Store failures come
// back as an invalid status rather than an error so liveness checks and
// dashboards never throw.
func (s *TokenService) Status(ctx context.Context, mallID string) domain.TokenStatus {
	rec, err := s.store.Get(ctx, mallID)
	if err != nil {
		return domain.TokenStatus{Error: err.Error()}
	}
	return domain.ComputeTokenStatus(rec, nowFunc(), s.buffer)
}

// Delete clears the token fields and marks the record expired. The record
// itself is kept for the audit trail.
func (s *TokenService) Delete(ctx context.Context, mallID string) error {
	now := nowFunc()
	empty := ""
	status := domain.StatusExpired

	patch := port.ShopPatch{
		AccessToken:  &empty,
		RefreshToken: &empty,
		Status:       &status,
		UpdatedAt:    &now,
	}
	if err := s.store.UpsertMerge(ctx, mallID, patch); err != nil {
		return fmt.Errorf("delete tokens: %w", err)
	}

	slog.Info("tokens cleared", "mall_id", mallID)
	return nil
}

// Purge removes the record entirely. Admin cleanup only.
func (s *TokenService) Purge(ctx context.Context, mallID string) error {
	if err := s.store.Delete(ctx, mallID); err != nil {
		return fmt.Errorf("purge shop record: %w", err)
	}
	return nil
}

// scan runs a filtered store scan, degrading to no results when the backing
// store cannot enumerate records.
func (s *TokenService) scan(ctx context.Context, filter func(*domain.ShopRecord) bool) ([]*domain.ShopRecord, error) {
	recs, err := s.store.Scan(ctx, filter)
	if err != nil {
		if errors.Is(err, port.ErrScanUnsupported) {
			return nil, nil
		}
		return nil, err
	}
	return recs, nil
}

// ListNeedingRefresh returns malls whose tokens are valid but inside the
// refresh buffer. Scheduler only.
func (s *TokenService) ListNeedingRefresh(ctx context.Context) ([]*domain.ShopRecord, error) {
	now := nowFunc()
	recs, err := s.scan(ctx, func(rec *domain.ShopRecord) bool {
		st := domain.ComputeTokenStatus(rec, now, s.buffer)
		return st.Valid && st.NeedsRefresh
	})
	if err != nil {
		return nil, fmt.Errorf("list needing refresh: %w", err)
	}
	return recs, nil
}

// ListExpiringWithin returns malls whose tokens expire within the window.
// Scheduler only.
func (s *TokenService) ListExpiringWithin(ctx context.Context, window time.Duration) ([]*domain.ShopRecord, error) {
	now := nowFunc()
	recs, err := s.scan(ctx, func(rec *domain.ShopRecord) bool {
		st := domain.ComputeTokenStatus(rec, now, s.buffer)
		return st.Valid && time.Duration(st.MinutesLeft)*time.Minute <= window
	})
	if err != nil {
		return nil, fmt.Errorf("list expiring: %w", err)
	}
	return recs, nil
}

// MarkExpired transitions records past their expiry to status expired and
// reports how many changed.
func (s *TokenService) MarkExpired(ctx context.Context) (int, error) {
	now := nowFunc()
	recs, err := s.scan(ctx, func(rec *domain.ShopRecord) bool {
		return rec.Status != domain.StatusExpired &&
			rec.AccessToken != "" &&
			!rec.ExpiresAt.IsZero() &&
			!now.Before(rec.ExpiresAt)
	})
	if err != nil {
		return 0, fmt.Errorf("mark expired: %w", err)
	}

	marked := 0
	status := domain.StatusExpired
	for _, rec := range recs {
		ts := nowFunc()
		patch := port.ShopPatch{Status: &status, UpdatedAt: &ts}
		if err := s.store.UpsertMerge(ctx, rec.MallID, patch); err != nil {
			slog.Error("failed to mark record expired", "mall_id", rec.MallID, "error", err)
			continue
		}
		marked++
	}
	return marked, nil
}

// Statistics aggregates credential health across all malls. Degrades to
// zeroes when the store cannot scan.
func (s *TokenService) Statistics(ctx context.Context) (domain.TokenStatistics, error) {
	var stats domain.TokenStatistics

	now := nowFunc()
	recs, err := s.scan(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("statistics: %w", err)
	}

	for _, rec := range recs {
		stats.Total++
		switch rec.Status {
		case domain.StatusReady:
			stats.Ready++
		case domain.StatusExpired:
			stats.Expired++
		case domain.StatusError:
			stats.Error++
		}

		st := domain.ComputeTokenStatus(rec, now, s.buffer)
		if st.Valid {
			if st.MinutesLeft <= 60 {
				stats.ExpiringSoon++
			}
			if st.NeedsRefresh {
				stats.NeedsRefresh++
			}
		}
	}
	return stats, nil
}

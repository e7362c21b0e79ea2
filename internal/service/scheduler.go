package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mallbridge/mallbridge/internal/domain"
	"github.com/mallbridge/mallbridge/internal/port"
)

// Scheduler is the long-lived maintenance loop keeping every mall's token
// alive: it marks expired records, refreshes tokens nearing expiry with
// bounded retries, emits near-expiry notification entries, and records
// aggregate statistics. It is an owned object injected at the composition
// root; there is no global instance.
type Scheduler struct {
	config    domain.SchedulerConfig
	tokens    *TokenService
	refresher port.TokenRefresher
	runs      port.RunLogStore

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	lastRun        time.Time
	nextRun        time.Time
	totalChecks    int64
	totalRefreshes int64
	totalErrors    int64
}

// NewScheduler creates a token scheduler.
func NewScheduler(config domain.SchedulerConfig, tokens *TokenService, refresher port.TokenRefresher, runs port.RunLogStore) *Scheduler {
	return &Scheduler{
		config:    config,
		tokens:    tokens,
		refresher: refresher,
		runs:      runs,
	}
}

// Start launches the loop: one check cycle immediately, then one per
// interval. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		slog.Warn("scheduler already running")
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	slog.Info("token scheduler started", "interval", s.config.Interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.runCycle(context.Background())

		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				s.runCycle(context.Background())
			}
		}
	}()
}

// Stop halts the loop. An in-flight cycle finishes before Stop returns, so a
// mall's token is never left mid-update. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.nextRun = time.Time{}
	s.mu.Unlock()

	s.wg.Wait()
	slog.Info("token scheduler stopped")
}

// RunManualCheck executes one cycle synchronously outside the schedule.
func (s *Scheduler) RunManualCheck(ctx context.Context) {
	slog.Info("manual token check requested")
	s.runCycle(ctx)
}

// Status returns a snapshot of the scheduler's state and counters.
func (s *Scheduler) Status() domain.SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := domain.SchedulerStatus{
		Running:        s.running,
		TotalChecks:    s.totalChecks,
		TotalRefreshes: s.totalRefreshes,
		TotalErrors:    s.totalErrors,
		Config:         s.config,
	}
	if !s.lastRun.IsZero() {
		last := s.lastRun
		st.LastRun = &last
	}
	if s.running && !s.nextRun.IsZero() {
		next := s.nextRun
		st.NextRun = &next
	}
	return st
}

// Logs returns the most recent run entries.
func (s *Scheduler) Logs(ctx context.Context, limit int) ([]domain.SchedulerRun, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.runs.ListRuns(ctx, limit)
}

// PruneLogs removes run entries older than the retention window.
func (s *Scheduler) PruneLogs(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	cutoff := nowFunc().AddDate(0, 0, -retentionDays)
	return s.runs.PruneRuns(ctx, cutoff)
}

// runCycle executes one full maintenance pass. Per-mall failures are logged
// and never abort the cycle; only a failed bulk scan fails the cycle as a
// whole.
func (s *Scheduler) runCycle(ctx context.Context) {
	start := nowFunc()
	runID := uuid.NewString()

	s.mu.Lock()
	s.lastRun = start
	s.totalChecks++
	if s.running {
		s.nextRun = start.Add(s.config.Interval)
	}
	s.mu.Unlock()

	slog.Info("token check cycle started", "run_id", runID)

	if err := s.cycle(ctx, runID); err != nil {
		s.mu.Lock()
		s.totalErrors++
		s.mu.Unlock()

		slog.Error("token check cycle failed", "run_id", runID, "error", err)
		s.log(ctx, &domain.SchedulerRun{
			RunID:    runID,
			Type:     domain.RunTypeError,
			Message:  "token check cycle failed",
			Details:  map[string]any{"error": err.Error()},
			Duration: time.Since(start),
		})
		return
	}

	duration := time.Since(start)
	slog.Info("token check cycle complete", "run_id", runID, "duration", duration)
	s.log(ctx, &domain.SchedulerRun{
		RunID:    runID,
		Type:     domain.RunTypeCheck,
		Message:  "token check cycle complete",
		Success:  true,
		Duration: duration,
	})
}

func (s *Scheduler) cycle(ctx context.Context, runID string) error {
	// 1. Mark records past expiry.
	marked, err := s.tokens.MarkExpired(ctx)
	if err != nil {
		return err
	}
	if marked > 0 {
		slog.Info("expired records marked", "run_id", runID, "count", marked)
		s.log(ctx, &domain.SchedulerRun{
			RunID:   runID,
			Type:    domain.RunTypeCheck,
			Message: "expired records marked",
			Details: map[string]any{"count": marked},
			Success: true,
		})
	}

	// 2. Refresh every mall inside the buffer, isolating failures.
	if s.config.EnableAutoRefresh {
		needing, err := s.tokens.ListNeedingRefresh(ctx)
		if err != nil {
			return err
		}
		for _, rec := range needing {
			s.refreshWithRetry(ctx, runID, rec.MallID)
		}
	}

	// 3. Near-expiry notifications. Log entries are the delivery surface.
	if s.config.EnableNotifications {
		s.notifyExpiring(ctx, runID)
	}

	// 4. Aggregate statistics.
	stats, err := s.tokens.Statistics(ctx)
	if err != nil {
		return err
	}
	slog.Info("token statistics",
		"run_id", runID,
		"total", stats.Total,
		"ready", stats.Ready,
		"expired", stats.Expired,
		"needs_refresh", stats.NeedsRefresh,
	)
	s.log(ctx, &domain.SchedulerRun{
		RunID:   runID,
		Type:    domain.RunTypeCheck,
		Message: "token statistics",
		Details: map[string]any{
			"total":         stats.Total,
			"ready":         stats.Ready,
			"expired":       stats.Expired,
			"error":         stats.Error,
			"expiring_soon": stats.ExpiringSoon,
			"needs_refresh": stats.NeedsRefresh,
		},
		Success: true,
	})

	return nil
}

// refreshWithRetry refreshes one mall with bounded, fixed-delay retries.
// Terminal grant errors skip the remaining attempts: the mall needs
// reauthorization, not another try.
func (s *Scheduler) refreshWithRetry(ctx context.Context, runID, mallID string) {
	for attempt := 1; attempt <= s.config.MaxRetryAttempts; attempt++ {
		err := s.refresher.Refresh(ctx, mallID)
		if err == nil {
			s.mu.Lock()
			s.totalRefreshes++
			s.mu.Unlock()

			slog.Info("token refreshed", "run_id", runID, "mall_id", mallID, "attempt", attempt)
			s.log(ctx, &domain.SchedulerRun{
				RunID:   runID,
				Type:    domain.RunTypeRefresh,
				MallID:  mallID,
				Message: "token refreshed",
				Success: true,
			})
			return
		}

		terminal := errors.Is(err, port.ErrInvalidGrant) || errors.Is(err, port.ErrReauthRequired)
		lastAttempt := attempt == s.config.MaxRetryAttempts

		slog.Error("token refresh failed",
			"run_id", runID,
			"mall_id", mallID,
			"attempt", attempt,
			"max_attempts", s.config.MaxRetryAttempts,
			"terminal", terminal,
			"error", err,
		)

		if terminal || lastAttempt {
			s.mu.Lock()
			s.totalErrors++
			s.mu.Unlock()

			msg := "token refresh failed"
			if terminal {
				msg = "mall needs reauthentication"
			}
			s.log(ctx, &domain.SchedulerRun{
				RunID:   runID,
				Type:    domain.RunTypeError,
				MallID:  mallID,
				Message: msg,
				Details: map[string]any{"attempts": attempt, "error": err.Error()},
			})
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.config.RetryDelay):
		}
	}
}

func (s *Scheduler) notifyExpiring(ctx context.Context, runID string) {
	expiring, err := s.tokens.ListExpiringWithin(ctx, s.config.NotificationThreshold)
	if err != nil {
		slog.Error("expiry notification scan failed", "run_id", runID, "error", err)
		return
	}
	if len(expiring) == 0 {
		return
	}

	slog.Warn("tokens expiring soon", "run_id", runID, "count", len(expiring))
	for _, rec := range expiring {
		expiresAt := rec.ExpiresAt
		s.log(ctx, &domain.SchedulerRun{
			RunID:   runID,
			Type:    domain.RunTypeNotification,
			MallID:  rec.MallID,
			Message: "token expiring soon",
			Details: map[string]any{
				"expires_at": domain.FormatExpiryTime(&expiresAt),
				"user_name":  rec.UserName,
				"app_type":   rec.AppType,
			},
			Success: true,
		})
	}
}

// log writes one run entry. Log-store failures are reported but never fail
// the cycle.
func (s *Scheduler) log(ctx context.Context, run *domain.SchedulerRun) {
	run.Timestamp = nowFunc()
	if err := s.runs.AppendRun(ctx, run); err != nil {
		slog.Error("failed to append scheduler run", "error", err)
	}
}

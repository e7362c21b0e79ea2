package domain

import "time"

// Scheduler run types.
const (
	RunTypeCheck        = "check"
	RunTypeRefresh      = "refresh"
	RunTypeNotification = "notification"
	RunTypeError        = "error"
)

// SchedulerRun is one append-only log entry written by the token scheduler.
// Entries double as the notification surface: there is no external delivery
// channel.
type SchedulerRun struct {
	ID        int64          `json:"id"         db:"id"`
	RunID     string         `json:"run_id"     db:"run_id"` // correlates all entries of one cycle
	Timestamp time.Time      `json:"timestamp"  db:"timestamp"`
	Type      string         `json:"type"       db:"type"`
	MallID    string         `json:"mall_id,omitempty" db:"mall_id"`
	Message   string         `json:"message"    db:"message"`
	Details   map[string]any `json:"details,omitempty" db:"details"`
	Success   bool           `json:"success"    db:"success"`
	Duration  time.Duration  `json:"duration_ms" db:"duration_ms"`
}

// SchedulerConfig controls the maintenance loop.
type SchedulerConfig struct {
	Interval              time.Duration `json:"interval"`
	EnableAutoRefresh     bool          `json:"enable_auto_refresh"`
	RefreshBuffer         time.Duration `json:"refresh_buffer"`
	EnableNotifications   bool          `json:"enable_notifications"`
	NotificationThreshold time.Duration `json:"notification_threshold"`
	MaxRetryAttempts      int           `json:"max_retry_attempts"`
	RetryDelay            time.Duration `json:"retry_delay"`
}

// DefaultSchedulerConfig returns the production defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:              360 * time.Minute,
		EnableAutoRefresh:     true,
		RefreshBuffer:         5 * time.Minute,
		EnableNotifications:   true,
		NotificationThreshold: 60 * time.Minute,
		MaxRetryAttempts:      3,
		RetryDelay:            5 * time.Second,
	}
}

// SchedulerStatus is a snapshot of the scheduler's state and counters.
type SchedulerStatus struct {
	Running        bool            `json:"running"`
	LastRun        *time.Time      `json:"last_run"`
	NextRun        *time.Time      `json:"next_run"`
	TotalChecks    int64           `json:"total_checks"`
	TotalRefreshes int64           `json:"total_refreshes"`
	TotalErrors    int64           `json:"total_errors"`
	Config         SchedulerConfig `json:"config"`
}

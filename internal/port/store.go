package port

import (
	"context"
	"time"

	"github.com/mallbridge/mallbridge/internal/domain"
)

// ShopPatch is a partial credential-record update. Nil fields are left
// untouched by the merge, making concurrent updates last-write-wins per
// field rather than per record.
type ShopPatch struct {
	UserID   *string
	UserName *string
	UserType *string
	AppType  *string

	AccessToken  *string
	RefreshToken *string
	TokenType    *string
	ExpiresIn    *int
	ExpiresAt    *time.Time
	Scope        *string
	ClientID     *string

	Status     *string
	TokenError *string

	InstalledAt   *time.Time
	UpdatedAt     *time.Time
	LastRefreshAt *time.Time
}

// CredentialStore is the narrow key-value persistence contract the token
// core consumes: one record per mall id with get, upsert-merge, delete and
// scan-with-filter. Scan may be unsupported by some backing stores, in which
// case it returns ErrScanUnsupported.
type CredentialStore interface {
	// Get returns the record for a mall, or nil when none exists.
	Get(ctx context.Context, mallID string) (*domain.ShopRecord, error)

	// UpsertMerge creates the record if missing and merges the provided
	// fields into it otherwise.
	UpsertMerge(ctx context.Context, mallID string, patch ShopPatch) error

	// Delete removes the record entirely. Normal operation never calls this;
	// it exists for the explicit admin cleanup path.
	Delete(ctx context.Context, mallID string) error

	// Scan returns all records matching the filter. A nil filter matches
	// everything.
	Scan(ctx context.Context, filter func(*domain.ShopRecord) bool) ([]*domain.ShopRecord, error)
}

// RunLogStore persists scheduler run entries.
type RunLogStore interface {
	// AppendRun writes one run entry.
	AppendRun(ctx context.Context, run *domain.SchedulerRun) error

	// ListRuns returns the most recent entries, newest first.
	ListRuns(ctx context.Context, limit int) ([]domain.SchedulerRun, error)

	// PruneRuns deletes entries older than the cutoff and reports how many
	// were removed.
	PruneRuns(ctx context.Context, olderThan time.Time) (int64, error)
}

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mallbridge/mallbridge/internal/domain"
	"github.com/mallbridge/mallbridge/internal/port"
)

// MemoryStore is an in-process credential and run-log store. It backs tests
// and the degraded mode where no database is configured. ScanSupported=false
// models client-restricted connections that cannot enumerate records; bulk
// queries then degrade to empty results.
type MemoryStore struct {
	// ScanSupported toggles the Scan capability. Default true.
	ScanSupported bool

	mu    sync.RWMutex
	shops map[string]*domain.ShopRecord
	runs  []domain.SchedulerRun
	runID int64
}

var (
	_ port.CredentialStore = (*MemoryStore)(nil)
	_ port.RunLogStore     = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ScanSupported: true,
		shops:         make(map[string]*domain.ShopRecord),
	}
}

// Get returns a copy of the record for a mall, or nil when none exists.
func (m *MemoryStore) Get(_ context.Context, mallID string) (*domain.ShopRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.shops[mallID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// UpsertMerge creates the record if missing and merges the provided fields.
func (m *MemoryStore) UpsertMerge(_ context.Context, mallID string, p port.ShopPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.shops[mallID]
	if !ok {
		rec = &domain.ShopRecord{
			MallID:    mallID,
			AppType:   domain.AppTypeOAuth,
			TokenType: domain.DefaultTokenType,
			Status:    domain.StatusPending,
			UpdatedAt: time.Now(),
		}
		m.shops[mallID] = rec
	}

	setStr(&rec.UserID, p.UserID)
	setStr(&rec.UserName, p.UserName)
	setStr(&rec.UserType, p.UserType)
	setStr(&rec.AppType, p.AppType)
	setStr(&rec.AccessToken, p.AccessToken)
	setStr(&rec.RefreshToken, p.RefreshToken)
	setStr(&rec.TokenType, p.TokenType)
	setStr(&rec.Scope, p.Scope)
	setStr(&rec.ClientID, p.ClientID)
	setStr(&rec.Status, p.Status)
	setStr(&rec.TokenError, p.TokenError)
	if p.ExpiresIn != nil {
		rec.ExpiresIn = *p.ExpiresIn
	}
	if p.ExpiresAt != nil {
		rec.ExpiresAt = *p.ExpiresAt
	}
	if p.InstalledAt != nil {
		rec.InstalledAt = *p.InstalledAt
	}
	if p.UpdatedAt != nil {
		rec.UpdatedAt = *p.UpdatedAt
	}
	if p.LastRefreshAt != nil {
		rec.LastRefreshAt = *p.LastRefreshAt
	}
	return nil
}

// Delete removes the record entirely.
func (m *MemoryStore) Delete(_ context.Context, mallID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.shops, mallID)
	return nil
}

// Scan returns copies of all records matching the filter, ordered by mall id.
func (m *MemoryStore) Scan(_ context.Context, filter func(*domain.ShopRecord) bool) ([]*domain.ShopRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.ScanSupported {
		return nil, port.ErrScanUnsupported
	}

	var out []*domain.ShopRecord
	for _, rec := range m.shops {
		cp := *rec
		if filter == nil || filter(&cp) {
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MallID < out[j].MallID })
	return out, nil
}

// AppendRun writes one scheduler run entry.
func (m *MemoryStore) AppendRun(_ context.Context, run *domain.SchedulerRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runID++
	cp := *run
	cp.ID = m.runID
	m.runs = append(m.runs, cp)
	return nil
}

// ListRuns returns the most recent entries, newest first.
func (m *MemoryStore) ListRuns(_ context.Context, limit int) ([]domain.SchedulerRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.SchedulerRun, len(m.runs))
	copy(out, m.runs)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PruneRuns deletes entries older than the cutoff.
func (m *MemoryStore) PruneRuns(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.runs[:0]
	var removed int64
	for _, run := range m.runs {
		if run.Timestamp.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, run)
	}
	m.runs = kept
	return removed, nil
}

func setStr(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

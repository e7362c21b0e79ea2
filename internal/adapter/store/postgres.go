// Package store persists credential records, scheduler runs, and API audit
// logs in Postgres.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mallbridge/mallbridge/internal/domain"
	"github.com/mallbridge/mallbridge/internal/port"
)

// PostgresStore handles all relational database operations.
type PostgresStore struct {
	db *sql.DB
}

var (
	_ port.CredentialStore = (*PostgresStore)(nil)
	_ port.RunLogStore     = (*PostgresStore)(nil)
)

// NewPostgresStore opens a connection and returns a store instance.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// migrate creates the schema when missing.
func (s *PostgresStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS shops (
			mall_id         TEXT PRIMARY KEY,
			user_id         TEXT NOT NULL DEFAULT '',
			user_name       TEXT NOT NULL DEFAULT '',
			user_type       TEXT NOT NULL DEFAULT '',
			app_type        TEXT NOT NULL DEFAULT 'oauth',
			access_token    TEXT NOT NULL DEFAULT '',
			refresh_token   TEXT NOT NULL DEFAULT '',
			token_type      TEXT NOT NULL DEFAULT 'Bearer',
			expires_in      INTEGER NOT NULL DEFAULT 0,
			expires_at      TIMESTAMPTZ,
			scope           TEXT NOT NULL DEFAULT '',
			client_id       TEXT NOT NULL DEFAULT '',
			status          TEXT NOT NULL DEFAULT 'pending',
			token_error     TEXT NOT NULL DEFAULT '',
			installed_at    TIMESTAMPTZ,
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_refresh_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS scheduler_runs (
			id          BIGSERIAL PRIMARY KEY,
			run_id      TEXT NOT NULL DEFAULT '',
			timestamp   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			type        TEXT NOT NULL,
			mall_id     TEXT NOT NULL DEFAULT '',
			message     TEXT NOT NULL,
			details     JSONB,
			success     BOOLEAN NOT NULL DEFAULT FALSE,
			duration_ms BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scheduler_runs_timestamp ON scheduler_runs (timestamp DESC)`,
		`CREATE TABLE IF NOT EXISTS api_logs (
			id          BIGSERIAL PRIMARY KEY,
			timestamp   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			method      TEXT NOT NULL,
			path        TEXT NOT NULL,
			status      INTEGER NOT NULL,
			duration_ms BIGINT NOT NULL,
			ip          TEXT NOT NULL DEFAULT '',
			user_agent  TEXT NOT NULL DEFAULT ''
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// --- CredentialStore ---

const shopColumns = `mall_id, user_id, user_name, user_type, app_type,
	access_token, refresh_token, token_type, expires_in, expires_at, scope,
	client_id, status, token_error, installed_at, updated_at, last_refresh_at`

// Get returns the record for a mall, or nil when none exists.
func (s *PostgresStore) Get(ctx context.Context, mallID string) (*domain.ShopRecord, error) {
	query := `SELECT ` + shopColumns + ` FROM shops WHERE mall_id = $1`

	rec, err := scanShop(s.db.QueryRowContext(ctx, query, mallID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get shop: %w", err)
	}
	return rec, nil
}

// UpsertMerge creates the record if missing and merges only the provided
// patch fields otherwise. COALESCE keeps unset columns untouched, which
// makes concurrent updates last-write-wins per field.
func (s *PostgresStore) UpsertMerge(ctx context.Context, mallID string, p port.ShopPatch) error {
	query := `
		INSERT INTO shops (
			mall_id, user_id, user_name, user_type, app_type,
			access_token, refresh_token, token_type, expires_in, expires_at,
			scope, client_id, status, token_error, installed_at, updated_at,
			last_refresh_at
		) VALUES (
			$1,
			COALESCE($2, ''), COALESCE($3, ''), COALESCE($4, ''), COALESCE($5, 'oauth'),
			COALESCE($6, ''), COALESCE($7, ''), COALESCE($8, 'Bearer'), COALESCE($9, 0), $10,
			COALESCE($11, ''), COALESCE($12, ''), COALESCE($13, 'pending'), COALESCE($14, ''), $15,
			COALESCE($16, NOW()), $17
		)
		ON CONFLICT (mall_id) DO UPDATE SET
			user_id         = COALESCE($2,  shops.user_id),
			user_name       = COALESCE($3,  shops.user_name),
			user_type       = COALESCE($4,  shops.user_type),
			app_type        = COALESCE($5,  shops.app_type),
			access_token    = COALESCE($6,  shops.access_token),
			refresh_token   = COALESCE($7,  shops.refresh_token),
			token_type      = COALESCE($8,  shops.token_type),
			expires_in      = COALESCE($9,  shops.expires_in),
			expires_at      = COALESCE($10, shops.expires_at),
			scope           = COALESCE($11, shops.scope),
			client_id       = COALESCE($12, shops.client_id),
			status          = COALESCE($13, shops.status),
			token_error     = COALESCE($14, shops.token_error),
			installed_at    = COALESCE($15, shops.installed_at),
			updated_at      = COALESCE($16, shops.updated_at),
			last_refresh_at = COALESCE($17, shops.last_refresh_at)`

	_, err := s.db.ExecContext(ctx, query,
		mallID,
		nullStr(p.UserID), nullStr(p.UserName), nullStr(p.UserType), nullStr(p.AppType),
		nullStr(p.AccessToken), nullStr(p.RefreshToken), nullStr(p.TokenType),
		nullInt(p.ExpiresIn), nullTime(p.ExpiresAt),
		nullStr(p.Scope), nullStr(p.ClientID), nullStr(p.Status), nullStr(p.TokenError),
		nullTime(p.InstalledAt), nullTime(p.UpdatedAt), nullTime(p.LastRefreshAt),
	)
	if err != nil {
		return fmt.Errorf("upsert shop: %w", err)
	}
	return nil
}

// Delete removes the record entirely. Admin cleanup only.
func (s *PostgresStore) Delete(ctx context.Context, mallID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM shops WHERE mall_id = $1`, mallID); err != nil {
		return fmt.Errorf("delete shop: %w", err)
	}
	return nil
}

// Scan returns all records matching the filter.
func (s *PostgresStore) Scan(ctx context.Context, filter func(*domain.ShopRecord) bool) ([]*domain.ShopRecord, error) {
	query := `SELECT ` + shopColumns + ` FROM shops ORDER BY mall_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("scan shops: %w", err)
	}
	defer rows.Close()

	var out []*domain.ShopRecord
	for rows.Next() {
		rec, err := scanShop(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shop row: %w", err)
		}
		if filter == nil || filter(rec) {
			out = append(out, rec)
		}
	}
	return out, rows.Err()
}

// --- RunLogStore ---

// AppendRun writes one scheduler run entry.
func (s *PostgresStore) AppendRun(ctx context.Context, run *domain.SchedulerRun) error {
	var details []byte
	if run.Details != nil {
		raw, err := json.Marshal(run.Details)
		if err != nil {
			return fmt.Errorf("encode run details: %w", err)
		}
		details = raw
	}

	query := `INSERT INTO scheduler_runs (run_id, timestamp, type, mall_id, message, details, success, duration_ms)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.db.ExecContext(ctx, query,
		run.RunID, run.Timestamp, run.Type, run.MallID, run.Message, details,
		run.Success, run.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("append scheduler run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent run entries, newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]domain.SchedulerRun, error) {
	query := `SELECT id, run_id, timestamp, type, mall_id, message, details, success, duration_ms
	          FROM scheduler_runs ORDER BY timestamp DESC LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list scheduler runs: %w", err)
	}
	defer rows.Close()

	var out []domain.SchedulerRun
	for rows.Next() {
		var run domain.SchedulerRun
		var details []byte
		var durationMS int64
		if err := rows.Scan(&run.ID, &run.RunID, &run.Timestamp, &run.Type,
			&run.MallID, &run.Message, &details, &run.Success, &durationMS); err != nil {
			return nil, fmt.Errorf("scan scheduler run: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &run.Details); err != nil {
				return nil, fmt.Errorf("decode run details: %w", err)
			}
		}
		run.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, run)
	}
	return out, rows.Err()
}

// PruneRuns deletes entries older than the cutoff.
func (s *PostgresStore) PruneRuns(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduler_runs WHERE timestamp < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune scheduler runs: %w", err)
	}
	return res.RowsAffected()
}

// --- Audit log ---

// WriteAPILog records one inbound HTTP request.
func (s *PostgresStore) WriteAPILog(method, path string, status int, durationMS int64, ip, userAgent string) error {
	query := `INSERT INTO api_logs (method, path, status, duration_ms, ip, user_agent)
	          VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.db.Exec(query, method, path, status, durationMS, ip, userAgent); err != nil {
		return fmt.Errorf("write api log: %w", err)
	}
	return nil
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShop(row rowScanner) (*domain.ShopRecord, error) {
	var rec domain.ShopRecord
	var expiresAt, installedAt, lastRefreshAt sql.NullTime
	err := row.Scan(
		&rec.MallID, &rec.UserID, &rec.UserName, &rec.UserType, &rec.AppType,
		&rec.AccessToken, &rec.RefreshToken, &rec.TokenType, &rec.ExpiresIn,
		&expiresAt, &rec.Scope, &rec.ClientID, &rec.Status, &rec.TokenError,
		&installedAt, &rec.UpdatedAt, &lastRefreshAt,
	)
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		rec.ExpiresAt = expiresAt.Time
	}
	if installedAt.Valid {
		rec.InstalledAt = installedAt.Time
	}
	if lastRefreshAt.Valid {
		rec.LastRefreshAt = lastRefreshAt.Time
	}
	return &rec, nil
}

func nullStr(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *p, Valid: true}
}

package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the subset of pgxpool.Pool used by Postgres.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var _ DBTX = (*pgxpool.Pool)(nil)

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

// Connect opens and pings a connection pool.
func Connect(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	poolConfig.MinConns = int32(cfg.MinConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS ingest_runs (
		id            UUID PRIMARY KEY,
		resource_id   TEXT NOT NULL,
		resource_name TEXT,
		status        TEXT NOT NULL,
		records       INTEGER NOT NULL DEFAULT 0,
		batches       INTEGER NOT NULL DEFAULT 0,
		error_code    TEXT,
		error         TEXT,
		started_at    TIMESTAMPTZ NOT NULL,
		finished_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ingest_runs_started_at_idx ON ingest_runs (started_at DESC)`,
}

const runColumns = "id, resource_id, resource_name, status, records, batches, error_code, error, started_at, finished_at"

// Postgres stores runs in the ingest_runs table.
type Postgres struct {
	db DBTX
}

var (
	_ Recorder = (*Postgres)(nil)
	_ Recorder = (*Memory)(nil)
	_ Pruner   = (*Postgres)(nil)
	_ Pruner   = (*Memory)(nil)
)

// NewPostgres wraps db. Call EnsureSchema before first use.
func NewPostgres(db DBTX) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the table and index if missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure history schema: %w", err)
		}
	}
	return nil
}

// Record inserts run. Re-recording the same id is a no-op.
func (p *Postgres) Record(ctx context.Context, run Run) error {
	id := toPgUUID(run.ID)
	if !id.Valid {
		id = pgtype.UUID{Bytes: uuid.New(), Valid: true}
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = run.FinishedAt
	}

	_, err := p.db.Exec(ctx,
		`INSERT INTO ingest_runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		id,
		run.ResourceID,
		toPgText(run.ResourceName),
		string(run.Status),
		int32(run.Records),
		int32(run.Batches),
		toPgText(run.ErrorCode),
		toPgText(run.Error),
		toPgTimestamptz(run.StartedAt),
		toPgTimestamptz(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (p *Postgres) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := p.db.Query(ctx,
		`SELECT `+runColumns+` FROM ingest_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			id                    pgtype.UUID
			resourceID, status    string
			name, code, message   pgtype.Text
			records, batches      int32
			startedAt, finishedAt pgtype.Timestamptz
		)
		if err := rows.Scan(&id, &resourceID, &name, &status, &records, &batches, &code, &message, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, Run{
			ID:           pgUUIDToString(id),
			ResourceID:   resourceID,
			ResourceName: name.String,
			Status:       Status(status),
			Records:      int(records),
			Batches:      int(batches),
			ErrorCode:    code.String,
			Error:        message.String,
			StartedAt:    startedAt.Time,
			FinishedAt:   finishedAt.Time,
		})
	}
	return runs, rows.Err()
}

// Prune deletes runs that started before cutoff.
func (p *Postgres) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := p.db.Exec(ctx, `DELETE FROM ingest_runs WHERE started_at < $1`, toPgTimestamptz(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func toPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

func toPgUUID(s string) pgtype.UUID {
	if s == "" {
		return pgtype.UUID{Valid: false}
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{Valid: false}
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}
}

func pgUUIDToString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}

func toPgTimestamptz(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{Valid: false}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

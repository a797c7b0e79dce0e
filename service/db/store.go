package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/brojonat/geneva/service/analytics"
	"github.com/brojonat/geneva/service/metrics"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNotFound is returned when a lookup matches no rows.
var ErrNotFound = errors.New("not found")

// Store is the audit ledger of completed action steps. Chains never read it;
// it exists for operators and the generations endpoint.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If metrics is nil, no metrics will be recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{pool: pool, metrics: m}
}

// ActionEvent is one recorded step of a chain.
type ActionEvent struct {
	ID         uuid.UUID
	Step       string
	Account    string
	Reference  *string
	Signature  *string
	Prompt     *string
	Tier       *string
	ImageURL   *string
	AssetID    *string
	RequestURL *string
	OccurredAt time.Time
	CreatedAt  time.Time
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(files)

	for _, name := range files {
		sql, err := migrations.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return nil
}

const insertActionEvent = `
INSERT INTO action_events (
    id, step, account, reference, signature, prompt, tier, image_url, asset_id, request_url, occurred_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO NOTHING`

// Record inserts an analytics event. Recording the same event twice is a no-op.
func (s *Store) Record(ctx context.Context, e analytics.Event) error {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		return fmt.Errorf("invalid event id %q: %w", e.ID, err)
	}
	occurred := e.Timestamp
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}

	start := time.Now()
	_, err = s.pool.Exec(ctx, insertActionEvent,
		id,
		e.Step,
		e.Account,
		nullable(e.Reference),
		nullable(e.Signature),
		nullable(e.Prompt),
		nullable(e.Tier),
		nullable(e.ImageURL),
		nullable(e.AssetID),
		nullable(e.RequestURL),
		occurred,
	)
	s.metrics.RecordDBQuery("insert", "action_events", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("insert action event: %w", err)
	}
	return nil
}

const selectActionEvents = `
SELECT id, step, account, reference, signature, prompt, tier, image_url, asset_id, request_url, occurred_at, created_at
FROM action_events`

// GetActionEvent retrieves an event by id.
func (s *Store) GetActionEvent(ctx context.Context, id uuid.UUID) (*ActionEvent, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, selectActionEvents+` WHERE id = $1`, id)
	if err != nil {
		s.metrics.RecordDBQuery("select", "action_events", time.Since(start).Seconds(), err)
		return nil, fmt.Errorf("get action event: %w", err)
	}
	event, err := pgx.CollectExactlyOneRow(rows, scanActionEvent)
	s.metrics.RecordDBQuery("select", "action_events", time.Since(start).Seconds(), ignoreNoRows(err))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get action event: %w", err)
	}
	return event, nil
}

// ListActionEventsByAccount returns an account's events, most recent first.
// Only events that carry an image are returned when withImage is set.
func (s *Store) ListActionEventsByAccount(ctx context.Context, account string, withImage bool, limit int32) ([]*ActionEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := selectActionEvents + ` WHERE account = $1`
	if withImage {
		query += ` AND image_url IS NOT NULL`
	}
	query += ` ORDER BY occurred_at DESC LIMIT $2`

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, account, limit)
	if err != nil {
		s.metrics.RecordDBQuery("select", "action_events", time.Since(start).Seconds(), err)
		return nil, fmt.Errorf("list action events: %w", err)
	}
	events, err := pgx.CollectRows(rows, scanActionEvent)
	s.metrics.RecordDBQuery("select", "action_events", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("list action events: %w", err)
	}
	return events, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanActionEvent(row pgx.CollectableRow) (*ActionEvent, error) {
	var e ActionEvent
	err := row.Scan(
		&e.ID,
		&e.Step,
		&e.Account,
		&e.Reference,
		&e.Signature,
		&e.Prompt,
		&e.Tier,
		&e.ImageURL,
		&e.AssetID,
		&e.RequestURL,
		&e.OccurredAt,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// nullable maps an empty string to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func ignoreNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return err
}

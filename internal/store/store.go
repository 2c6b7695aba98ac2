// Package store keeps a Postgres log of per-entity resolution outcomes, so a
// run's skipped and failed titles can be inspected after the fact.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shpitdev/impressum-resolver/internal/resolve"
	"github.com/shpitdev/impressum-resolver/pkg/pipeline/redact"
)

const defaultTable = "resolutions"

// Querier is the subset of pgx used by Store. *pgxpool.Pool and pgx.Tx satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db    Querier
	table string
}

type Option func(*Store)

// WithTable overrides the table name.
func WithTable(name string) Option {
	return func(s *Store) {
		s.table = pgx.Identifier{name}.Sanitize()
	}
}

func New(db Querier, opts ...Option) *Store {
	s := &Store{db: db, table: defaultTable}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects a pool to dsn and checks it.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the outcome table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id BIGSERIAL PRIMARY KEY,
		run_id TEXT NOT NULL,
		title TEXT NOT NULL,
		state TEXT NOT NULL,
		stage TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		candidate INT NOT NULL DEFAULT 0,
		site_root TEXT NOT NULL DEFAULT '',
		legal_page TEXT NOT NULL DEFAULT '',
		located_by TEXT NOT NULL DEFAULT '',
		company_name TEXT NOT NULL DEFAULT '',
		register_number TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		duration_ms BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, s.table)
	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("store: create table: %w", err)
	}
	return nil
}

// SaveOutcome appends one outcome for runID. Error text is redacted.
func (s *Store) SaveOutcome(ctx context.Context, runID string, o resolve.Outcome) error {
	errText := ""
	if o.Err != nil {
		errText = redact.Secrets(o.Err.Error())
	}
	query := fmt.Sprintf(`INSERT INTO %s
		(run_id, title, state, stage, reason, candidate, site_root, legal_page, located_by, company_name, register_number, error, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`, s.table)
	_, err := s.db.Exec(ctx, query,
		runID,
		o.Title,
		o.State.String(),
		string(o.Stage),
		o.Reason,
		o.Candidate,
		o.SiteRoot,
		o.LegalPage,
		string(o.LocatedBy),
		o.Record.LegalName,
		o.Record.RegisterNumber,
		errText,
		o.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("store: save outcome for %q: %w", o.Title, err)
	}
	return nil
}

// SaveOutcomes stores outcomes in order and stops at the first error.
func (s *Store) SaveOutcomes(ctx context.Context, runID string, outcomes []resolve.Outcome) error {
	for _, o := range outcomes {
		if err := s.SaveOutcome(ctx, runID, o); err != nil {
			return err
		}
	}
	return nil
}

// StateCounts returns how many outcomes of runID ended in each state.
func (s *Store) StateCounts(ctx context.Context, runID string) (map[string]int, error) {
	query := fmt.Sprintf(`SELECT state, COUNT(*) FROM %s WHERE run_id = $1 GROUP BY state`, s.table)
	rows, err := s.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("store: state counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("store: scan state count: %w", err)
		}
		out[state] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: state counts: %w", err)
	}
	return out, nil
}

// Package loader persists structured records into Postgres with
// first-write-wins semantics keyed on the entry URL.
package loader

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhu-ep/gradcafe-pipeline/internal/pipeline"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for applicant rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Pool is the subset of pgxpool.Pool the store needs; pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store writes applicant rows into Postgres.
type Store struct {
	pool  Pool
	table string
}

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "applicants"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, table: table}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for
// testing).
func NewWithPool(pool Pool, table string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "applicants"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: pool, table: table}, nil
}

// Pool exposes the underlying pool for read-side collaborators.
func (s *Store) Pool() Pool {
	return s.pool
}

// Table returns the configured table name.
func (s *Store) Table() string {
	return s.table
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the applicants table if it does not exist. The URL
// column carries the uniqueness constraint that makes inserts idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	p_id SERIAL PRIMARY KEY,
	university TEXT,
	program TEXT,
	degree TEXT,
	date_added DATE,
	status TEXT,
	status_date DATE,
	term TEXT,
	us_or_international TEXT,
	gpa DOUBLE PRECISION,
	gre DOUBLE PRECISION,
	gre_v DOUBLE PRECISION,
	gre_aw DOUBLE PRECISION,
	comments TEXT,
	url TEXT UNIQUE,
	standardized_program TEXT,
	standardized_university TEXT
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Load upserts records, ensuring the table exists first. A record whose
// URL is already present is a silent no-op: duplicates are the expected
// steady-state outcome of repeated pulls, not an error. Returns the number
// of newly inserted rows.
func (s *Store) Load(ctx context.Context, records []pipeline.StructuredRecord) (int64, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	university, program, degree, date_added, status, status_date,
	term, us_or_international, gpa, gre, gre_v, gre_aw,
	comments, url, standardized_program, standardized_university
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
) ON CONFLICT (url) DO NOTHING`, s.table)

	var inserted int64
	for _, rec := range records {
		if rec.URL == "" {
			continue
		}
		var quant, verbal, writing *float64
		if rec.GRE != nil {
			quant, verbal, writing = rec.GRE.Quant, rec.GRE.Verbal, rec.GRE.Writing
		}
		tag, err := s.pool.Exec(ctx, query,
			rec.University,
			rec.Program,
			rec.Degree,
			toDate(rec.DateAdded),
			rec.Status,
			toDate(rec.StatusDate),
			rec.Term,
			rec.Origin,
			rec.GPA,
			quant,
			verbal,
			writing,
			rec.Comment,
			rec.URL,
			rec.StandardizedProgram,
			rec.StandardizedUniversity,
		)
		if err != nil {
			return inserted, fmt.Errorf("insert applicant %s: %w", rec.URL, err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// CountRows reports the current table size for confirmation messaging.
func (s *Store) CountRows(ctx context.Context) (int64, error) {
	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", s.table)
	if err := s.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return count, nil
}

// toDate converts the record's YYYY-MM-DD text into the store's native
// date representation at insert time. Unparseable text degrades to NULL.
func toDate(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, err := time.Parse("2006-01-02", *s)
	if err != nil {
		return nil
	}
	return &t
}

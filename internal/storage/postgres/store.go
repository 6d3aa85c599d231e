// Package postgres implements the fact store on Postgres via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/infobox-crawler/internal/infobox"
	"github.com/JakeFAU/infobox-crawler/internal/storage/sqlq"
)

// Text columns compared or ordered use the "C" collation so results sort by
// byte value regardless of the server locale.
const migration = `
CREATE TABLE IF NOT EXISTS pages (
	id         UUID PRIMARY KEY,
	title      TEXT NOT NULL,
	url        TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (title, url)
);

CREATE TABLE IF NOT EXISTS fields (
	id   UUID PRIMARY KEY,
	name TEXT COLLATE "C" NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS facts (
	id       UUID PRIMARY KEY,
	page_id  UUID NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
	field_id UUID NOT NULL REFERENCES fields(id) ON DELETE CASCADE,
	value    TEXT COLLATE "C" NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pages_created_at ON pages(created_at, id);
CREATE INDEX IF NOT EXISTS idx_facts_field_value ON facts(field_id, value);
CREATE INDEX IF NOT EXISTS idx_facts_page_id ON facts(page_id);
`

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of *pgxpool.Pool the store needs; pgxmock satisfies it.
type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store implements infobox.Store on Postgres.
type Store struct {
	pool pool
	q    *sqlq.Builder
}

// New connects a pgx pool using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p, q: sqlq.New(sqlq.Postgres)}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p, q: sqlq.New(sqlq.Postgres)}, nil
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, migration); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// WithTx runs fn in a transaction, rolling back when fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(tx infobox.WriteTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&writeTx{tx: tx, q: s.q}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// FieldByName returns the named field or infobox.ErrNotFound.
func (s *Store) FieldByName(ctx context.Context, name string) (infobox.Field, error) {
	q := s.q.FieldByName(name)
	var field infobox.Field
	err := s.pool.QueryRow(ctx, q.SQL, q.Args...).Scan(&field.ID, &field.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return infobox.Field{}, infobox.ErrNotFound
	}
	if err != nil {
		return infobox.Field{}, fmt.Errorf("select field: %w", err)
	}
	return field, nil
}

// CountFields returns the number of distinct field names.
func (s *Store) CountFields(ctx context.Context) (int, error) {
	return s.count(ctx, s.q.CountFields())
}

// ListFieldNames returns field names in ascending byte order.
func (s *Store) ListFieldNames(ctx context.Context, limit, offset int) ([]string, error) {
	return s.strings(ctx, s.q.ListFieldNames(limit, offset))
}

// CountValues returns the number of distinct values recorded for fieldID.
func (s *Store) CountValues(ctx context.Context, fieldID string) (int, error) {
	return s.count(ctx, s.q.CountValues(fieldID))
}

// ListValues returns the distinct values recorded for fieldID in ascending order.
func (s *Store) ListValues(ctx context.Context, fieldID string, limit, offset int) ([]string, error) {
	return s.strings(ctx, s.q.ListValues(fieldID, limit, offset))
}

// CountPages returns the number of pages carrying every match.
func (s *Store) CountPages(ctx context.Context, matches []infobox.Match) (int, error) {
	return s.count(ctx, s.q.CountPages(matches))
}

// ListPages returns the pages carrying every match, oldest first.
func (s *Store) ListPages(ctx context.Context, matches []infobox.Match, limit, offset int) ([]infobox.Page, error) {
	q := s.q.ListPages(matches, limit, offset)
	rows, err := s.pool.Query(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("select pages: %w", err)
	}
	defer rows.Close()

	pages := []infobox.Page{}
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select pages: %w", err)
	}
	return pages, nil
}

func (s *Store) count(ctx context.Context, q sqlq.Query) (int, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, q.SQL, q.Args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return int(n), nil
}

func (s *Store) strings(ctx context.Context, q sqlq.Query) ([]string, error) {
	rows, err := s.pool.Query(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("select names: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan name: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select names: %w", err)
	}
	return out, nil
}

func scanPage(row pgx.Row) (infobox.Page, error) {
	var page infobox.Page
	if err := row.Scan(&page.ID, &page.Title, &page.URL, &page.CreatedAt); err != nil {
		return infobox.Page{}, err
	}
	page.CreatedAt = page.CreatedAt.UTC()
	return page, nil
}

type writeTx struct {
	tx pgx.Tx
	q  *sqlq.Builder
}

func (w *writeTx) UpsertPage(ctx context.Context, page infobox.Page) (infobox.Page, error) {
	q := w.q.UpsertPage(page, page.CreatedAt)
	stored, err := scanPage(w.tx.QueryRow(ctx, q.SQL, q.Args...))
	if err != nil {
		return infobox.Page{}, fmt.Errorf("upsert page: %w", err)
	}
	return stored, nil
}

func (w *writeTx) UpsertField(ctx context.Context, field infobox.Field) (infobox.Field, error) {
	q := w.q.UpsertField(field)
	var stored infobox.Field
	if err := w.tx.QueryRow(ctx, q.SQL, q.Args...).Scan(&stored.ID, &stored.Name); err != nil {
		return infobox.Field{}, fmt.Errorf("upsert field: %w", err)
	}
	return stored, nil
}

func (w *writeTx) InsertFact(ctx context.Context, fact infobox.Fact) error {
	q := w.q.InsertFact(fact)
	if _, err := w.tx.Exec(ctx, q.SQL, q.Args...); err != nil {
		return fmt.Errorf("insert fact: %w", err)
	}
	return nil
}

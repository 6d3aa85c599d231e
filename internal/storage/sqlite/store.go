// Package sqlite implements the fact store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/infobox-crawler/internal/infobox"
	"github.com/JakeFAU/infobox-crawler/internal/storage/sqlq"
)

const migration = `
CREATE TABLE IF NOT EXISTS pages (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	url        TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE (title, url)
);

CREATE TABLE IF NOT EXISTS fields (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS facts (
	id       TEXT PRIMARY KEY,
	page_id  TEXT NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
	field_id TEXT NOT NULL REFERENCES fields(id) ON DELETE CASCADE,
	value    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pages_created_at ON pages(created_at, id);
CREATE INDEX IF NOT EXISTS idx_facts_field_value ON facts(field_id, value);
CREATE INDEX IF NOT EXISTS idx_facts_page_id ON facts(page_id);
`

// Store implements infobox.Store using modernc.org/sqlite. Timestamps are
// stored as UTC Unix microseconds.
type Store struct {
	db *sql.DB
	q  *sqlq.Builder
}

// pragmas are applied by the driver on every new connection, so a recycled
// pool connection keeps foreign key enforcement and WAL settings.
var pragmas = []string{
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
}

// withPragmas appends the connection pragmas to dsn as _pragma parameters.
func withPragmas(dsn string) string {
	var b strings.Builder
	b.WriteString(dsn)
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	for _, p := range pragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

// New opens the database at dsn and configures WAL mode. SQLite allows a
// single writer, so the pool is limited to one connection.
func New(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	db, err := sql.Open("sqlite", withPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: open %s: %w", dsn, err)
	}
	return &Store{db: db, q: sqlq.New(sqlq.SQLite)}, nil
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, migration); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn in a transaction, rolling back when fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(tx infobox.WriteTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	if err := fn(&writeTx{tx: tx, q: s.q}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// FieldByName returns the named field or infobox.ErrNotFound.
func (s *Store) FieldByName(ctx context.Context, name string) (infobox.Field, error) {
	q := s.q.FieldByName(name)
	var field infobox.Field
	err := s.db.QueryRowContext(ctx, q.SQL, q.Args...).Scan(&field.ID, &field.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return infobox.Field{}, infobox.ErrNotFound
	}
	if err != nil {
		return infobox.Field{}, fmt.Errorf("sqlite: field by name: %w", err)
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
	rows, err := s.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list pages: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	pages := []infobox.Page{}
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan page: %w", err)
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list pages: %w", err)
	}
	return pages, nil
}

func (s *Store) count(ctx context.Context, q sqlq.Query) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, q.SQL, q.Args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count: %w", err)
	}
	return n, nil
}

func (s *Store) strings(ctx context.Context, q sqlq.Query) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPage(row scanner) (infobox.Page, error) {
	var (
		page   infobox.Page
		micros int64
	)
	if err := row.Scan(&page.ID, &page.Title, &page.URL, &micros); err != nil {
		return infobox.Page{}, err
	}
	page.CreatedAt = time.UnixMicro(micros).UTC()
	return page, nil
}

type writeTx struct {
	tx *sql.Tx
	q  *sqlq.Builder
}

func (w *writeTx) UpsertPage(ctx context.Context, page infobox.Page) (infobox.Page, error) {
	q := w.q.UpsertPage(page, page.CreatedAt.UTC().UnixMicro())
	stored, err := scanPage(w.tx.QueryRowContext(ctx, q.SQL, q.Args...))
	if err != nil {
		return infobox.Page{}, fmt.Errorf("sqlite: upsert page: %w", err)
	}
	return stored, nil
}

func (w *writeTx) UpsertField(ctx context.Context, field infobox.Field) (infobox.Field, error) {
	q := w.q.UpsertField(field)
	var stored infobox.Field
	if err := w.tx.QueryRowContext(ctx, q.SQL, q.Args...).Scan(&stored.ID, &stored.Name); err != nil {
		return infobox.Field{}, fmt.Errorf("sqlite: upsert field: %w", err)
	}
	return stored, nil
}

func (w *writeTx) InsertFact(ctx context.Context, fact infobox.Fact) error {
	q := w.q.InsertFact(fact)
	if _, err := w.tx.ExecContext(ctx, q.SQL, q.Args...); err != nil {
		return fmt.Errorf("sqlite: insert fact: %w", err)
	}
	return nil
}

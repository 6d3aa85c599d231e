// Package sqlq builds the SQL shared by the relational fact store backends.
//
// The statements differ between engines only in how bind parameters are
// spelled and in how identifier columns are read back, so both are supplied
// by a Dialect.
package sqlq

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/infobox-crawler/internal/infobox"
)

// Dialect captures the engine-specific spelling of a statement.
type Dialect struct {
	// Bind returns the placeholder for the n-th (1-based) argument.
	Bind func(n int) string
	// ReadID wraps an identifier column so it scans into a string.
	ReadID func(column string) string
}

// Postgres numbers placeholders and casts UUID columns to text.
var Postgres = Dialect{
	Bind:   func(n int) string { return fmt.Sprintf("$%d", n) },
	ReadID: func(column string) string { return column + "::text" },
}

// SQLite uses positional placeholders and stores identifiers as TEXT.
var SQLite = Dialect{
	Bind:   func(int) string { return "?" },
	ReadID: func(column string) string { return column },
}

// Query is a statement ready to execute.
type Query struct {
	SQL  string
	Args []any
}

// Builder renders statements for one Dialect.
type Builder struct {
	d Dialect
}

// New returns a Builder for the dialect.
func New(d Dialect) *Builder {
	return &Builder{d: d}
}

type args struct {
	d    Dialect
	vals []any
}

func (a *args) add(v any) string {
	a.vals = append(a.vals, v)
	return a.d.Bind(len(a.vals))
}

// UpsertPage inserts a page or returns the row already stored under the same
// (title, url). The no-op update makes RETURNING yield the existing row.
func (b *Builder) UpsertPage(page infobox.Page, createdAt any) Query {
	a := &args{d: b.d}
	sql := fmt.Sprintf(`INSERT INTO pages (id, title, url, created_at) VALUES (%s, %s, %s, %s)
ON CONFLICT (title, url) DO UPDATE SET title = EXCLUDED.title
RETURNING %s, title, url, created_at`,
		a.add(page.ID), a.add(page.Title), a.add(page.URL), a.add(createdAt), b.d.ReadID("id"))
	return Query{SQL: sql, Args: a.vals}
}

// UpsertField inserts a field or returns the row already stored under name.
func (b *Builder) UpsertField(field infobox.Field) Query {
	a := &args{d: b.d}
	sql := fmt.Sprintf(`INSERT INTO fields (id, name) VALUES (%s, %s)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING %s, name`,
		a.add(field.ID), a.add(field.Name), b.d.ReadID("id"))
	return Query{SQL: sql, Args: a.vals}
}

// InsertFact appends a fact row.
func (b *Builder) InsertFact(fact infobox.Fact) Query {
	a := &args{d: b.d}
	sql := fmt.Sprintf(`INSERT INTO facts (id, page_id, field_id, value) VALUES (%s, %s, %s, %s)`,
		a.add(fact.ID), a.add(fact.PageID), a.add(fact.FieldID), a.add(fact.Value))
	return Query{SQL: sql, Args: a.vals}
}

// FieldByName looks a field up by its exact name.
func (b *Builder) FieldByName(name string) Query {
	a := &args{d: b.d}
	sql := fmt.Sprintf(`SELECT %s, name FROM fields WHERE name = %s`, b.d.ReadID("id"), a.add(name))
	return Query{SQL: sql, Args: a.vals}
}

// CountFields counts distinct field names.
func (b *Builder) CountFields() Query {
	return Query{SQL: `SELECT COUNT(*) FROM fields`}
}

// ListFieldNames lists field names in ascending order.
func (b *Builder) ListFieldNames(limit, offset int) Query {
	a := &args{d: b.d}
	sql := `SELECT name FROM fields ORDER BY name` + a.window(limit, offset)
	return Query{SQL: sql, Args: a.vals}
}

// CountValues counts the distinct values recorded for a field.
func (b *Builder) CountValues(fieldID string) Query {
	a := &args{d: b.d}
	sql := fmt.Sprintf(`SELECT COUNT(DISTINCT value) FROM facts WHERE field_id = %s`, a.add(fieldID))
	return Query{SQL: sql, Args: a.vals}
}

// ListValues lists the distinct values recorded for a field in ascending order.
func (b *Builder) ListValues(fieldID string, limit, offset int) Query {
	a := &args{d: b.d}
	sql := fmt.Sprintf(`SELECT DISTINCT value FROM facts WHERE field_id = %s ORDER BY value`, a.add(fieldID)) +
		a.window(limit, offset)
	return Query{SQL: sql, Args: a.vals}
}

// CountPages counts pages carrying every match.
func (b *Builder) CountPages(matches []infobox.Match) Query {
	a := &args{d: b.d}
	sql := `SELECT COUNT(*) FROM pages p` + a.where(matches)
	return Query{SQL: sql, Args: a.vals}
}

// ListPages lists pages carrying every match, oldest first.
func (b *Builder) ListPages(matches []infobox.Match, limit, offset int) Query {
	a := &args{d: b.d}
	sql := fmt.Sprintf(`SELECT %s, p.title, p.url, p.created_at FROM pages p`, b.d.ReadID("p.id")) +
		a.where(matches) +
		` ORDER BY p.created_at, p.id` +
		a.window(limit, offset)
	return Query{SQL: sql, Args: a.vals}
}

// where renders one EXISTS clause per match so a page qualifies only when it
// has a fact for each (field, value) pair.
func (a *args) where(matches []infobox.Match) string {
	if len(matches) == 0 {
		return ""
	}
	clauses := make([]string, 0, len(matches))
	for _, m := range matches {
		clauses = append(clauses, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM facts f WHERE f.page_id = p.id AND f.field_id = %s AND f.value = %s)",
			a.add(m.FieldID), a.add(m.Value)))
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}

func (a *args) window(limit, offset int) string {
	if limit <= 0 {
		return ""
	}
	if offset < 0 {
		offset = 0
	}
	return fmt.Sprintf(" LIMIT %s OFFSET %s", a.add(limit), a.add(offset))
}

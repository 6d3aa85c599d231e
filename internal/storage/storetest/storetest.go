// Package storetest holds behavioral tests shared by every infobox.Store backend.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/infobox-crawler/internal/infobox"
)

// Factory returns a fresh, migrated store.
type Factory func(t *testing.T) infobox.Store

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// Run exercises newStore against the store contract.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("UpsertPageReturnsExistingRow", func(t *testing.T) { testUpsertPage(t, newStore(t)) })
	t.Run("UpsertFieldReturnsExistingRow", func(t *testing.T) { testUpsertField(t, newStore(t)) })
	t.Run("RollbackDiscardsWrites", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("FieldByNameNotFound", func(t *testing.T) { testFieldByNameNotFound(t, newStore(t)) })
	t.Run("FieldsSortedAndPaged", func(t *testing.T) { testFieldsSorted(t, newStore(t)) })
	t.Run("ValuesDistinctAndSorted", func(t *testing.T) { testValues(t, newStore(t)) })
	t.Run("PagesMatchEveryConstraint", func(t *testing.T) { testPagesMatch(t, newStore(t)) })
	t.Run("PagesDistinctAcrossRepeatedFacts", func(t *testing.T) { testPagesDistinct(t, newStore(t)) })
	t.Run("PagesOrderedByCreation", func(t *testing.T) { testPagesOrdered(t, newStore(t)) })
	t.Run("PingSucceeds", func(t *testing.T) { require.NoError(t, newStore(t).Ping(context.Background())) })
}

// Seed writes one page with the given rows and returns the stored page.
func Seed(t *testing.T, store infobox.Store, n int, title, url string, rows ...infobox.FieldValue) infobox.Page {
	t.Helper()

	var stored infobox.Page
	err := store.WithTx(context.Background(), func(tx infobox.WriteTx) error {
		var err error
		stored, err = tx.UpsertPage(context.Background(), infobox.Page{
			ID:        fmt.Sprintf("page-%04d", n),
			Title:     title,
			URL:       url,
			CreatedAt: base.Add(time.Duration(n) * time.Second),
		})
		if err != nil {
			return err
		}
		for i, row := range rows {
			field, err := tx.UpsertField(context.Background(), infobox.Field{
				ID:   fmt.Sprintf("field-%04d-%s", n, row.Name),
				Name: row.Name,
			})
			if err != nil {
				return err
			}
			if err := tx.InsertFact(context.Background(), infobox.Fact{
				ID:      fmt.Sprintf("fact-%04d-%02d", n, i),
				PageID:  stored.ID,
				FieldID: field.ID,
				Value:   row.Value,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	return stored
}

func fv(name, value string) infobox.FieldValue {
	return infobox.FieldValue{Name: name, Value: value}
}

func testUpsertPage(t *testing.T, store infobox.Store) {
	ctx := context.Background()
	first := Seed(t, store, 1, "France", "https://en.wikipedia.org/wiki/France")

	var second infobox.Page
	err := store.WithTx(ctx, func(tx infobox.WriteTx) error {
		var err error
		second, err = tx.UpsertPage(ctx, infobox.Page{
			ID:        "page-other",
			Title:     "France",
			URL:       "https://en.wikipedia.org/wiki/France",
			CreatedAt: base.Add(time.Hour),
		})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt), "created_at must not change")

	count, err := store.CountPages(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Same URL under a different title is a distinct page.
	Seed(t, store, 2, "France (country)", "https://en.wikipedia.org/wiki/France")
	count, err = store.CountPages(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func testUpsertField(t *testing.T, store infobox.Store) {
	ctx := context.Background()
	Seed(t, store, 1, "France", "https://en.wikipedia.org/wiki/France", fv("Capital", "Paris"))
	Seed(t, store, 2, "Germany", "https://en.wikipedia.org/wiki/Germany", fv("Capital", "Berlin"))

	n, err := store.CountFields(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	field, err := store.FieldByName(ctx, "Capital")
	require.NoError(t, err)
	assert.Equal(t, "field-0001-Capital", field.ID)

	// Names are case sensitive.
	Seed(t, store, 3, "Spain", "https://en.wikipedia.org/wiki/Spain", fv("capital", "Madrid"))
	n, err = store.CountFields(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func testRollback(t *testing.T, store infobox.Store) {
	ctx := context.Background()
	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx infobox.WriteTx) error {
		page, err := tx.UpsertPage(ctx, infobox.Page{ID: "p1", Title: "France", URL: "https://x", CreatedAt: base})
		require.NoError(t, err)
		field, err := tx.UpsertField(ctx, infobox.Field{ID: "f1", Name: "Capital"})
		require.NoError(t, err)
		require.NoError(t, tx.InsertFact(ctx, infobox.Fact{ID: "x1", PageID: page.ID, FieldID: field.ID, Value: "Paris"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	pages, err := store.CountPages(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, pages)
	fields, err := store.CountFields(ctx)
	require.NoError(t, err)
	assert.Zero(t, fields)
}

func testFieldByNameNotFound(t *testing.T, store infobox.Store) {
	_, err := store.FieldByName(context.Background(), "Capital")
	require.ErrorIs(t, err, infobox.ErrNotFound)
}

func testFieldsSorted(t *testing.T, store infobox.Store) {
	ctx := context.Background()
	Seed(t, store, 1, "France", "https://en.wikipedia.org/wiki/France",
		fv("Population", "68M"), fv("Capital", "Paris"), fv("area", "643,801 km2"), fv("Currency", "Euro"))

	all, err := store.ListFieldNames(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Capital", "Currency", "Population", "area"}, all)

	page, err := store.ListFieldNames(ctx, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Population", "area"}, page)

	empty, err := store.ListFieldNames(ctx, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testValues(t *testing.T, store infobox.Store) {
	ctx := context.Background()
	Seed(t, store, 1, "France", "https://en.wikipedia.org/wiki/France", fv("Currency", "Euro"))
	Seed(t, store, 2, "Germany", "https://en.wikipedia.org/wiki/Germany", fv("Currency", "Euro"))
	Seed(t, store, 3, "UK", "https://en.wikipedia.org/wiki/UK", fv("Currency", "Pound sterling"))
	Seed(t, store, 4, "Japan", "https://en.wikipedia.org/wiki/Japan", fv("Currency", "Yen"), fv("Capital", "Tokyo"))

	field, err := store.FieldByName(ctx, "Currency")
	require.NoError(t, err)

	n, err := store.CountValues(ctx, field.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	values, err := store.ListValues(ctx, field.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Euro", "Pound sterling", "Yen"}, values)

	values, err = store.ListValues(ctx, field.ID, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Yen"}, values)
}

func testPagesMatch(t *testing.T, store infobox.Store) {
	ctx := context.Background()
	Seed(t, store, 1, "France", "https://en.wikipedia.org/wiki/France", fv("Capital", "Paris"), fv("Currency", "Euro"))
	Seed(t, store, 2, "Germany", "https://en.wikipedia.org/wiki/Germany", fv("Capital", "Berlin"), fv("Currency", "Euro"))
	Seed(t, store, 3, "Texas", "https://en.wikipedia.org/wiki/Paris,_Texas", fv("Capital", "Paris"), fv("Currency", "USD"))

	capital, err := store.FieldByName(ctx, "Capital")
	require.NoError(t, err)
	currency, err := store.FieldByName(ctx, "Currency")
	require.NoError(t, err)

	matches := []infobox.Match{{FieldID: capital.ID, Value: "Paris"}, {FieldID: currency.ID, Value: "Euro"}}
	n, err := store.CountPages(ctx, matches)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	pages, err := store.ListPages(ctx, matches, 10, 0)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "France", pages[0].Title)

	euro := []infobox.Match{{FieldID: currency.ID, Value: "Euro"}}
	pages, err = store.ListPages(ctx, euro, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"France", "Germany"}, titles(pages))

	// Exact, case-sensitive value match.
	n, err = store.CountPages(ctx, []infobox.Match{{FieldID: capital.ID, Value: "paris"}})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testPagesDistinct(t *testing.T, store infobox.Store) {
	ctx := context.Background()
	france := "https://en.wikipedia.org/wiki/France"
	Seed(t, store, 1, "France", france, fv("Capital", "Paris"))
	Seed(t, store, 2, "France", france, fv("Capital", "Paris (historic)"))
	Seed(t, store, 3, "France", france, fv("Capital", "Paris"))
	Seed(t, store, 4, "Texas", "https://en.wikipedia.org/wiki/Paris,_Texas", fv("Capital", "Paris"))

	capital, err := store.FieldByName(ctx, "Capital")
	require.NoError(t, err)

	paris := []infobox.Match{{FieldID: capital.ID, Value: "Paris"}}
	n, err := store.CountPages(ctx, paris)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	pages, err := store.ListPages(ctx, paris, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"France", "Texas"}, titles(pages))

	both := []infobox.Match{{FieldID: capital.ID, Value: "Paris"}, {FieldID: capital.ID, Value: "Paris (historic)"}}
	pages, err = store.ListPages(ctx, both, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"France"}, titles(pages))
}

func testPagesOrdered(t *testing.T, store infobox.Store) {
	ctx := context.Background()
	for i := 25; i >= 1; i-- {
		Seed(t, store, i, fmt.Sprintf("Page %02d", i), fmt.Sprintf("https://example.org/%d", i), fv("Type", "Country"))
	}
	field, err := store.FieldByName(ctx, "Type")
	require.NoError(t, err)
	matches := []infobox.Match{{FieldID: field.ID, Value: "Country"}}

	n, err := store.CountPages(ctx, matches)
	require.NoError(t, err)
	assert.Equal(t, 25, n)

	last, err := store.ListPages(ctx, matches, infobox.PageSize, 20)
	require.NoError(t, err)
	assert.Equal(t, []string{"Page 21", "Page 22", "Page 23", "Page 24", "Page 25"}, titles(last))
	for _, p := range last {
		assert.Equal(t, time.UTC, p.CreatedAt.Location())
	}

	first, err := store.ListPages(ctx, matches, infobox.PageSize, 0)
	require.NoError(t, err)
	require.Len(t, first, 10)
	assert.Equal(t, "Page 01", first[0].Title)
	assert.True(t, first[0].CreatedAt.Equal(base.Add(time.Second)))
}

func titles(pages []infobox.Page) []string {
	out := make([]string, 0, len(pages))
	for _, p := range pages {
		out = append(out, p.Title)
	}
	return out
}

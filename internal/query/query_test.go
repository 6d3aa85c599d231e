package query

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/infobox-crawler/internal/infobox"
	"github.com/JakeFAU/infobox-crawler/internal/storage/memory"
	"github.com/JakeFAU/infobox-crawler/internal/storage/storetest"
)

func fv(name, value string) infobox.FieldValue {
	return infobox.FieldValue{Name: name, Value: value}
}

func seeded(t *testing.T) *memory.FactStore {
	t.Helper()
	store := memory.NewFactStore()
	storetest.Seed(t, store, 1, "France", "https://en.wikipedia.org/wiki/France", fv("Capital", "Paris"), fv("Currency", "Euro"))
	storetest.Seed(t, store, 2, "Germany", "https://en.wikipedia.org/wiki/Germany", fv("Capital", "Berlin"), fv("Currency", "Euro"))
	storetest.Seed(t, store, 3, "Paris, Texas", "https://en.wikipedia.org/wiki/Paris,_Texas", fv("Capital", "Paris"))
	return store
}

func TestFilterPagesSingleConstraint(t *testing.T) {
	t.Parallel()

	store := seeded(t)
	// The same fact stored twice must not duplicate the page.
	storetest.Seed(t, store, 4, "France", "https://en.wikipedia.org/wiki/France", fv("Capital", "Paris"))

	got, err := New(store).FilterPages(context.Background(), []infobox.Constraint{{Field: "Capital", Value: "Paris"}}, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalPages)
	assert.Equal(t, 1, got.CurrentPage)
	require.Len(t, got.Pages, 2)
	assert.Equal(t, "France", got.Pages[0].Title)
	assert.Equal(t, "Paris, Texas", got.Pages[1].Title)
}

func TestFilterPagesRescrapeWithChangedValue(t *testing.T) {
	t.Parallel()

	store := seeded(t)
	// A later scrape stored a different capital; the earlier Paris fact still matches.
	storetest.Seed(t, store, 4, "France", "https://en.wikipedia.org/wiki/France", fv("Capital", "Paris (historic)"))
	storetest.Seed(t, store, 5, "France", "https://en.wikipedia.org/wiki/France", fv("Capital", "Paris"))

	got, err := New(store).FilterPages(context.Background(), []infobox.Constraint{{Field: "Capital", Value: "Paris"}}, 1)
	require.NoError(t, err)
	france := 0
	for _, p := range got.Pages {
		if p.Title == "France" {
			france++
		}
	}
	assert.Equal(t, 1, france)
	assert.Len(t, got.Pages, 2)
	assert.Equal(t, 1, got.TotalPages)

	got, err = New(store).FilterPages(context.Background(), []infobox.Constraint{{Field: "Capital", Value: "Paris (historic)"}}, 1)
	require.NoError(t, err)
	require.Len(t, got.Pages, 1)
	assert.Equal(t, "France", got.Pages[0].Title)
}

func TestFilterPagesIntersection(t *testing.T) {
	t.Parallel()

	got, err := New(seeded(t)).FilterPages(context.Background(), []infobox.Constraint{
		{Field: "Capital", Value: "Paris"},
		{Field: "Currency", Value: "Euro"},
	}, 1)
	require.NoError(t, err)
	require.Len(t, got.Pages, 1)
	assert.Equal(t, "France", got.Pages[0].Title)
}

func TestFilterPagesNoMatches(t *testing.T) {
	t.Parallel()

	got, err := New(seeded(t)).FilterPages(context.Background(), []infobox.Constraint{{Field: "Capital", Value: "Rome"}}, 1)
	require.NoError(t, err)
	assert.NotNil(t, got.Pages)
	assert.Empty(t, got.Pages)
	assert.Equal(t, 1, got.TotalPages)
}

func TestFilterPagesNoFilters(t *testing.T) {
	t.Parallel()

	_, err := New(seeded(t)).FilterPages(context.Background(), nil, 1)
	require.ErrorIs(t, err, infobox.ErrNoFilters)
}

func TestFilterPagesUnknownFieldFailsFast(t *testing.T) {
	t.Parallel()

	_, err := New(seeded(t)).FilterPages(context.Background(), []infobox.Constraint{
		{Field: "Capital", Value: "Paris"},
		{Field: "Anthem", Value: "La Marseillaise"},
		{Field: "Motto", Value: "Liberte"},
	}, 1)
	require.ErrorIs(t, err, infobox.ErrFieldNotFound)
	var notFound *infobox.FieldNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "Anthem", notFound.Name)
}

func TestFilterPagesPagination(t *testing.T) {
	t.Parallel()

	store := memory.NewFactStore()
	for i := 1; i <= 23; i++ {
		storetest.Seed(t, store, i, fmt.Sprintf("Country %02d", i), fmt.Sprintf("https://example.org/%d", i), fv("Continent", "Europe"))
	}
	engine := New(store)
	constraints := []infobox.Constraint{{Field: "Continent", Value: "Europe"}}

	cases := []struct {
		requested int
		first     string
		size      int
	}{
		{1, "Country 01", 10},
		{2, "Country 11", 10},
		{3, "Country 21", 3},
		{0, "Country 21", 3},
		{99, "Country 21", 3},
	}
	for _, tc := range cases {
		got, err := engine.FilterPages(context.Background(), constraints, tc.requested)
		require.NoError(t, err)
		assert.Equal(t, 3, got.TotalPages)
		assert.Equal(t, tc.requested, got.CurrentPage)
		require.Len(t, got.Pages, tc.size, "page %d", tc.requested)
		assert.Equal(t, tc.first, got.Pages[0].Title)
	}
}

type brokenStore struct {
	infobox.ReadStore
}

func (brokenStore) FieldByName(context.Context, string) (infobox.Field, error) {
	return infobox.Field{}, errors.New("connection reset")
}

func TestFilterPagesStoreError(t *testing.T) {
	t.Parallel()

	_, err := New(brokenStore{}).FilterPages(context.Background(), []infobox.Constraint{{Field: "Capital", Value: "Paris"}}, 1)
	require.ErrorContains(t, err, "connection reset")
	require.NotErrorIs(t, err, infobox.ErrFieldNotFound)
}

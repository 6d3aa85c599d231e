package writer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/infobox-crawler/internal/infobox"
	"github.com/JakeFAU/infobox-crawler/internal/storage/memory"
)

type seqIDs struct {
	mu   sync.Mutex
	next int
	fail bool
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return "", errors.New("entropy exhausted")
	}
	s.next++
	return fmt.Sprintf("id-%04d", s.next), nil
}

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func newWriter(store infobox.Store) (*Writer, *seqIDs) {
	ids := &seqIDs{}
	return New(store, ids, &stepClock{now: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}, nil), ids
}

func france() infobox.Record {
	return infobox.Record{
		Title: "France",
		URL:   "https://en.wikipedia.org/wiki/France",
		Fields: []infobox.FieldValue{
			{Name: "Capital", Value: "Paris"},
			{Name: "Currency", Value: "Euro"},
		},
	}
}

func TestPersistCreatesPageFieldsFacts(t *testing.T) {
	t.Parallel()

	store := memory.NewFactStore()
	w, _ := newWriter(store)

	outcomes := w.Persist(context.Background(), []infobox.Record{france()})
	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, 2, outcomes[0].Facts)
	assert.Equal(t, "France", outcomes[0].Page.Title)

	n, err := store.CountFields(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, store.Facts(), 2)
}

func TestPersistRescrapeKeepsPageAndDuplicatesFacts(t *testing.T) {
	t.Parallel()

	store := memory.NewFactStore()
	w, _ := newWriter(store)
	ctx := context.Background()

	first := w.Persist(ctx, []infobox.Record{france()})
	second := w.Persist(ctx, []infobox.Record{france()})
	require.NoError(t, first[0].Err)
	require.NoError(t, second[0].Err)

	assert.Equal(t, first[0].Page.ID, second[0].Page.ID)
	assert.True(t, first[0].Page.CreatedAt.Equal(second[0].Page.CreatedAt))

	pages, err := store.CountPages(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, pages)
	assert.Len(t, store.Facts(), 4)

	capital, err := store.FieldByName(ctx, "Capital")
	require.NoError(t, err)
	values, err := store.ListValues(ctx, capital.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Paris"}, values)
}

func TestPersistFieldIdentityIsShared(t *testing.T) {
	t.Parallel()

	store := memory.NewFactStore()
	w, _ := newWriter(store)
	ctx := context.Background()

	germany := infobox.Record{
		Title:  "Germany",
		URL:    "https://en.wikipedia.org/wiki/Germany",
		Fields: []infobox.FieldValue{{Name: "Capital", Value: "Berlin"}},
	}
	outcomes := w.Persist(ctx, []infobox.Record{france(), germany})
	require.NoError(t, outcomes[0].Err)
	require.NoError(t, outcomes[1].Err)

	capital, err := store.FieldByName(ctx, "Capital")
	require.NoError(t, err)
	for _, f := range store.Facts() {
		if f.Value == "Paris" || f.Value == "Berlin" {
			assert.Equal(t, capital.ID, f.FieldID)
		}
	}
}

func TestPersistRecordWithoutFields(t *testing.T) {
	t.Parallel()

	store := memory.NewFactStore()
	w, _ := newWriter(store)

	outcomes := w.Persist(context.Background(), []infobox.Record{{
		Title:  infobox.NoTitle,
		URL:    "https://example.org/plain",
		Fields: []infobox.FieldValue{},
	}})
	require.NoError(t, outcomes[0].Err)
	assert.Zero(t, outcomes[0].Facts)

	n, err := store.CountPages(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// failingStore fails the transaction for one URL and delegates otherwise.
type failingStore struct {
	*memory.FactStore
	failURL string
}

func (s *failingStore) WithTx(ctx context.Context, fn func(tx infobox.WriteTx) error) error {
	return s.FactStore.WithTx(ctx, func(tx infobox.WriteTx) error {
		return fn(&failingTx{WriteTx: tx, failURL: s.failURL})
	})
}

type failingTx struct {
	infobox.WriteTx
	failURL string
	pageURL string
}

func (tx *failingTx) UpsertPage(ctx context.Context, page infobox.Page) (infobox.Page, error) {
	tx.pageURL = page.URL
	return tx.WriteTx.UpsertPage(ctx, page)
}

func (tx *failingTx) InsertFact(ctx context.Context, fact infobox.Fact) error {
	if tx.pageURL == tx.failURL {
		return errors.New("disk full")
	}
	return tx.WriteTx.InsertFact(ctx, fact)
}

func TestPersistFailureIsIsolated(t *testing.T) {
	t.Parallel()

	mem := memory.NewFactStore()
	store := &failingStore{FactStore: mem, failURL: "https://en.wikipedia.org/wiki/France"}
	w, _ := newWriter(store)

	spain := infobox.Record{
		Title:  "Spain",
		URL:    "https://en.wikipedia.org/wiki/Spain",
		Fields: []infobox.FieldValue{{Name: "Capital", Value: "Madrid"}},
	}
	outcomes := w.Persist(context.Background(), []infobox.Record{france(), spain})
	require.Len(t, outcomes, 2)
	require.ErrorContains(t, outcomes[0].Err, "disk full")
	require.NoError(t, outcomes[1].Err)

	pages, err := mem.ListPages(context.Background(), nil, 0, 0)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "Spain", pages[0].Title)
}

func TestPersistIDFailure(t *testing.T) {
	t.Parallel()

	store := memory.NewFactStore()
	w, ids := newWriter(store)
	ids.fail = true

	outcomes := w.Persist(context.Background(), []infobox.Record{france()})
	require.ErrorContains(t, outcomes[0].Err, "entropy exhausted")
	assert.Empty(t, store.Facts())
}

// Package memory provides an in-memory fact store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/infobox-crawler/internal/infobox"
)

type pageKey struct {
	title string
	url   string
}

// FactStore implements infobox.Store with maps guarded by a mutex.
// Transactions hold the lock for their whole duration and stage their writes
// until fn returns nil.
type FactStore struct {
	mu sync.RWMutex

	pages      map[string]infobox.Page
	pageByKey  map[pageKey]string
	fields     map[string]infobox.Field
	fieldByKey map[string]string
	facts      []infobox.Fact
}

// NewFactStore returns an empty store.
func NewFactStore() *FactStore {
	return &FactStore{
		pages:      make(map[string]infobox.Page),
		pageByKey:  make(map[pageKey]string),
		fields:     make(map[string]infobox.Field),
		fieldByKey: make(map[string]string),
	}
}

// WithTx runs fn against a staging area that is applied atomically on success.
func (s *FactStore) WithTx(ctx context.Context, fn func(tx infobox.WriteTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	tx := &memTx{store: s}
	if err := fn(tx); err != nil {
		return err
	}
	tx.apply()
	return nil
}

// Migrate is a no-op for the in-memory store.
func (s *FactStore) Migrate(context.Context) error { return nil }

// Ping always succeeds.
func (s *FactStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *FactStore) Close() error { return nil }

// FieldByName returns the field with the given name or infobox.ErrNotFound.
func (s *FactStore) FieldByName(_ context.Context, name string) (infobox.Field, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.fieldByKey[name]
	if !ok {
		return infobox.Field{}, infobox.ErrNotFound
	}
	return s.fields[id], nil
}

// CountFields returns the number of distinct field names.
func (s *FactStore) CountFields(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.fields), nil
}

// ListFieldNames returns field names in ascending order.
func (s *FactStore) ListFieldNames(_ context.Context, limit, offset int) ([]string, error) {
	s.mu.RLock()
	names := make([]string, 0, len(s.fieldByKey))
	for name := range s.fieldByKey {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	return window(names, limit, offset), nil
}

// CountValues returns the number of distinct values recorded for fieldID.
func (s *FactStore) CountValues(_ context.Context, fieldID string) (int, error) {
	return len(s.distinctValues(fieldID)), nil
}

// ListValues returns the distinct values recorded for fieldID in ascending order.
func (s *FactStore) ListValues(_ context.Context, fieldID string, limit, offset int) ([]string, error) {
	return window(s.distinctValues(fieldID), limit, offset), nil
}

// CountPages returns the number of pages carrying every match.
func (s *FactStore) CountPages(_ context.Context, matches []infobox.Match) (int, error) {
	return len(s.matchingPages(matches)), nil
}

// ListPages returns pages carrying every match ordered by creation time.
func (s *FactStore) ListPages(_ context.Context, matches []infobox.Match, limit, offset int) ([]infobox.Page, error) {
	return window(s.matchingPages(matches), limit, offset), nil
}

// Facts returns a copy of all stored facts.
func (s *FactStore) Facts() []infobox.Fact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]infobox.Fact(nil), s.facts...)
}

func (s *FactStore) distinctValues(fieldID string) []string {
	s.mu.RLock()
	seen := make(map[string]struct{})
	for _, f := range s.facts {
		if f.FieldID == fieldID {
			seen[f.Value] = struct{}{}
		}
	}
	s.mu.RUnlock()

	values := make([]string, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

func (s *FactStore) matchingPages(matches []infobox.Match) []infobox.Page {
	s.mu.RLock()
	has := make(map[string]map[infobox.Match]struct{})
	for _, f := range s.facts {
		set, ok := has[f.PageID]
		if !ok {
			set = make(map[infobox.Match]struct{})
			has[f.PageID] = set
		}
		set[infobox.Match{FieldID: f.FieldID, Value: f.Value}] = struct{}{}
	}

	var pages []infobox.Page
	for id, page := range s.pages {
		if carriesAll(has[id], matches) {
			pages = append(pages, page)
		}
	}
	s.mu.RUnlock()

	sort.Slice(pages, func(i, j int) bool {
		if !pages[i].CreatedAt.Equal(pages[j].CreatedAt) {
			return pages[i].CreatedAt.Before(pages[j].CreatedAt)
		}
		return pages[i].ID < pages[j].ID
	})
	return pages
}

func carriesAll(set map[infobox.Match]struct{}, matches []infobox.Match) bool {
	for _, m := range matches {
		if _, ok := set[m]; !ok {
			return false
		}
	}
	return true
}

func window[T any](items []T, limit, offset int) []T {
	if limit <= 0 {
		return items
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// memTx stages writes made inside WithTx. The store lock is held by WithTx.
type memTx struct {
	store  *FactStore
	pages  []infobox.Page
	fields []infobox.Field
	facts  []infobox.Fact
}

func (tx *memTx) UpsertPage(_ context.Context, page infobox.Page) (infobox.Page, error) {
	key := pageKey{title: page.Title, url: page.URL}
	if id, ok := tx.store.pageByKey[key]; ok {
		return tx.store.pages[id], nil
	}
	for _, staged := range tx.pages {
		if staged.Title == page.Title && staged.URL == page.URL {
			return staged, nil
		}
	}
	if page.ID == "" {
		return infobox.Page{}, fmt.Errorf("page id is required")
	}
	tx.pages = append(tx.pages, page)
	return page, nil
}

func (tx *memTx) UpsertField(_ context.Context, field infobox.Field) (infobox.Field, error) {
	if id, ok := tx.store.fieldByKey[field.Name]; ok {
		return tx.store.fields[id], nil
	}
	for _, staged := range tx.fields {
		if staged.Name == field.Name {
			return staged, nil
		}
	}
	if field.ID == "" {
		return infobox.Field{}, fmt.Errorf("field id is required")
	}
	tx.fields = append(tx.fields, field)
	return field, nil
}

func (tx *memTx) InsertFact(_ context.Context, fact infobox.Fact) error {
	if fact.ID == "" {
		return fmt.Errorf("fact id is required")
	}
	if !tx.pageKnown(fact.PageID) {
		return fmt.Errorf("fact references unknown page %q", fact.PageID)
	}
	if !tx.fieldKnown(fact.FieldID) {
		return fmt.Errorf("fact references unknown field %q", fact.FieldID)
	}
	tx.facts = append(tx.facts, fact)
	return nil
}

func (tx *memTx) pageKnown(id string) bool {
	if _, ok := tx.store.pages[id]; ok {
		return true
	}
	for _, p := range tx.pages {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (tx *memTx) fieldKnown(id string) bool {
	if _, ok := tx.store.fields[id]; ok {
		return true
	}
	for _, f := range tx.fields {
		if f.ID == id {
			return true
		}
	}
	return false
}

func (tx *memTx) apply() {
	s := tx.store
	for _, p := range tx.pages {
		s.pages[p.ID] = p
		s.pageByKey[pageKey{title: p.Title, url: p.URL}] = p.ID
	}
	for _, f := range tx.fields {
		s.fields[f.ID] = f
		s.fieldByKey[f.Name] = f.ID
	}
	s.facts = append(s.facts, tx.facts...)
}

// Package query answers "which pages have all of these field values" questions.
package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/infobox-crawler/internal/infobox"
)

// Engine runs filter queries against a read store.
type Engine struct {
	store infobox.ReadStore
}

// New constructs an Engine.
func New(store infobox.ReadStore) *Engine {
	return &Engine{store: store}
}

// FilterPages returns one page of the pages satisfying every constraint.
// Field names are resolved in order and the first unknown one fails the call.
func (e *Engine) FilterPages(ctx context.Context, constraints []infobox.Constraint, page int) (infobox.PageList, error) {
	if len(constraints) == 0 {
		return infobox.PageList{}, infobox.ErrNoFilters
	}

	matches := make([]infobox.Match, 0, len(constraints))
	for _, c := range constraints {
		field, err := e.store.FieldByName(ctx, c.Field)
		if errors.Is(err, infobox.ErrNotFound) {
			return infobox.PageList{}, &infobox.FieldNotFoundError{Name: c.Field}
		}
		if err != nil {
			return infobox.PageList{}, fmt.Errorf("resolve field %q: %w", c.Field, err)
		}
		matches = append(matches, infobox.Match{FieldID: field.ID, Value: c.Value})
	}

	total, err := e.store.CountPages(ctx, matches)
	if err != nil {
		return infobox.PageList{}, fmt.Errorf("count pages: %w", err)
	}
	window := infobox.Paginate(total, infobox.PageSize, page)
	pages, err := e.store.ListPages(ctx, matches, window.Limit, window.Offset)
	if err != nil {
		return infobox.PageList{}, fmt.Errorf("list pages: %w", err)
	}
	if pages == nil {
		pages = []infobox.Page{}
	}
	return infobox.PageList{
		Pages:       pages,
		TotalPages:  window.TotalPages,
		CurrentPage: page,
	}, nil
}

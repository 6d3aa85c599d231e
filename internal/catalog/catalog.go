// Package catalog lists the field names and values seen across scraped pages.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/infobox-crawler/internal/infobox"
)

// Catalog answers browse queries over fields and their values.
type Catalog struct {
	store infobox.ReadStore
}

// New constructs a Catalog.
func New(store infobox.ReadStore) *Catalog {
	return &Catalog{store: store}
}

// ListFields returns one page of distinct field names in ascending order.
func (c *Catalog) ListFields(ctx context.Context, page int) ([]string, error) {
	total, err := c.store.CountFields(ctx)
	if err != nil {
		return nil, fmt.Errorf("count fields: %w", err)
	}
	w := infobox.Paginate(total, infobox.PageSize, page)
	names, err := c.store.ListFieldNames(ctx, w.Limit, w.Offset)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	return nonNil(names), nil
}

// ListValues returns one page of the distinct values recorded for field.
func (c *Catalog) ListValues(ctx context.Context, field string, page int) ([]string, error) {
	f, err := c.lookup(ctx, field)
	if err != nil {
		return nil, err
	}
	total, err := c.store.CountValues(ctx, f.ID)
	if err != nil {
		return nil, fmt.Errorf("count values: %w", err)
	}
	w := infobox.Paginate(total, infobox.PageSize, page)
	values, err := c.store.ListValues(ctx, f.ID, w.Limit, w.Offset)
	if err != nil {
		return nil, fmt.Errorf("list values: %w", err)
	}
	return nonNil(values), nil
}

// AllValues returns every distinct value recorded for field.
func (c *Catalog) AllValues(ctx context.Context, field string) ([]string, error) {
	f, err := c.lookup(ctx, field)
	if err != nil {
		return nil, err
	}
	values, err := c.store.ListValues(ctx, f.ID, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("list values: %w", err)
	}
	return nonNil(values), nil
}

func (c *Catalog) lookup(ctx context.Context, name string) (infobox.Field, error) {
	f, err := c.store.FieldByName(ctx, name)
	if errors.Is(err, infobox.ErrNotFound) {
		return infobox.Field{}, &infobox.FieldNotFoundError{Name: name}
	}
	if err != nil {
		return infobox.Field{}, fmt.Errorf("resolve field %q: %w", name, err)
	}
	return f, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

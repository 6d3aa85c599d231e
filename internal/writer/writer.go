// Package writer persists extracted records into the fact store.
package writer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/infobox-crawler/internal/infobox"
)

// Outcome reports what happened to one record.
type Outcome struct {
	Record infobox.Record
	// Page is the stored page; on a rescrape it is the pre-existing row.
	Page  infobox.Page
	Facts int
	Err   error
}

// Writer writes each record in its own store transaction.
type Writer struct {
	store  infobox.Store
	ids    infobox.IDGenerator
	clock  infobox.Clock
	logger *zap.Logger
}

// New constructs a Writer.
func New(store infobox.Store, ids infobox.IDGenerator, clock infobox.Clock, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		store:  store,
		ids:    ids,
		clock:  clock,
		logger: logger,
	}
}

// Persist writes records in order. A failing record is rolled back and
// reported in its Outcome without affecting the others.
func (w *Writer) Persist(ctx context.Context, records []infobox.Record) []Outcome {
	outcomes := make([]Outcome, 0, len(records))
	for _, rec := range records {
		page, facts, err := w.persistOne(ctx, rec)
		if err != nil {
			w.logger.Error("persist record failed",
				zap.String("url", rec.URL),
				zap.String("title", rec.Title),
				zap.Error(err),
			)
		}
		outcomes = append(outcomes, Outcome{Record: rec, Page: page, Facts: facts, Err: err})
	}
	return outcomes
}

func (w *Writer) persistOne(ctx context.Context, rec infobox.Record) (infobox.Page, int, error) {
	var (
		stored infobox.Page
		facts  int
	)
	err := w.store.WithTx(ctx, func(tx infobox.WriteTx) error {
		pageID, err := w.ids.NewID()
		if err != nil {
			return fmt.Errorf("page id: %w", err)
		}
		stored, err = tx.UpsertPage(ctx, infobox.Page{
			ID:        pageID,
			Title:     rec.Title,
			URL:       rec.URL,
			CreatedAt: w.clock.Now(),
		})
		if err != nil {
			return fmt.Errorf("upsert page: %w", err)
		}

		for _, fv := range rec.Fields {
			fieldID, err := w.ids.NewID()
			if err != nil {
				return fmt.Errorf("field id: %w", err)
			}
			field, err := tx.UpsertField(ctx, infobox.Field{ID: fieldID, Name: fv.Name})
			if err != nil {
				return fmt.Errorf("upsert field %q: %w", fv.Name, err)
			}
			factID, err := w.ids.NewID()
			if err != nil {
				return fmt.Errorf("fact id: %w", err)
			}
			if err := tx.InsertFact(ctx, infobox.Fact{
				ID:      factID,
				PageID:  stored.ID,
				FieldID: field.ID,
				Value:   fv.Value,
			}); err != nil {
				return fmt.Errorf("insert fact %q: %w", fv.Name, err)
			}
		}
		facts = len(rec.Fields)
		return nil
	})
	if err != nil {
		return infobox.Page{}, 0, fmt.Errorf("persist %s: %w", rec.URL, err)
	}
	return stored, facts, nil
}

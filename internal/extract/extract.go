// Package extract pulls the page title and infobox rows out of HTML documents.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/infobox-crawler/internal/infobox"
)

// Default selectors match Wikipedia article markup.
const (
	DefaultTitleSelector = "h1"
	DefaultTableSelector = "table.infobox"
)

// Config controls which elements are treated as the title and the fact table.
type Config struct {
	TitleSelector string
	TableSelector string
}

// Extractor implements infobox.Extractor using goquery selectors.
type Extractor struct {
	titleSelector string
	tableSelector string
}

// New builds an Extractor, falling back to the default selectors.
func New(cfg Config) *Extractor {
	e := &Extractor{
		titleSelector: strings.TrimSpace(cfg.TitleSelector),
		tableSelector: strings.TrimSpace(cfg.TableSelector),
	}
	if e.titleSelector == "" {
		e.titleSelector = DefaultTitleSelector
	}
	if e.tableSelector == "" {
		e.tableSelector = DefaultTableSelector
	}
	return e
}

// Extract parses body and returns the title plus the ordered infobox rows.
// Missing structure never fails: no heading yields infobox.NoTitle and no table
// yields an empty field list.
func (e *Extractor) Extract(body []byte) (infobox.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return infobox.Document{}, fmt.Errorf("parse html: %w", err)
	}
	return infobox.Document{
		Title:  e.title(doc),
		Fields: e.fields(doc),
	}, nil
}

func (e *Extractor) title(doc *goquery.Document) string {
	heading := doc.Find(e.titleSelector).First()
	if heading.Length() == 0 {
		return infobox.NoTitle
	}
	return heading.Text()
}

func (e *Extractor) fields(doc *goquery.Document) []infobox.FieldValue {
	table := doc.Find(e.tableSelector).First()
	if table.Length() == 0 {
		return []infobox.FieldValue{}
	}
	fields := make([]infobox.FieldValue, 0)
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		header := row.Find("th").First()
		data := row.Find("td").First()
		if header.Length() == 0 || data.Length() == 0 {
			return
		}
		fields = append(fields, infobox.FieldValue{
			Name:  strings.TrimSpace(header.Text()),
			Value: strings.TrimSpace(data.Text()),
		})
	})
	return fields
}

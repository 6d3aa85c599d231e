package infobox

import (
	"net/http"
	"time"
)

// MaxBatchURLs caps the number of URLs accepted by a single scrape call.
const MaxBatchURLs = 50

// PageSize is the fixed number of entries returned per paginated read.
const PageSize = 10

// NoTitle is used when a document has no heading to take a title from.
const NoTitle = "No Title"

// Page is a scraped document identified by its (title, url) natural key.
type Page struct {
	ID        string
	Title     string
	URL       string
	CreatedAt time.Time
}

// Field is a globally unique infobox field name shared by every page exposing it.
type Field struct {
	ID   string
	Name string
}

// Fact links one page, one field, and the value extracted for it.
type Fact struct {
	ID      string
	PageID  string
	FieldID string
	Value   string
}

// FieldValue is one extracted infobox row.
type FieldValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Document is the output of the extractor for one page body.
type Document struct {
	Title  string
	Fields []FieldValue
}

// Record is an extracted document tied to the URL it was fetched from.
type Record struct {
	Title  string
	URL    string
	Fields []FieldValue
}

// Constraint is a single field=value filter.
type Constraint struct {
	Field string
	Value string
}

// Match is a constraint whose field name has been resolved to a stored Field.
type Match struct {
	FieldID string
	Value   string
}

// PageList is one page of filtered results.
type PageList struct {
	Pages       []Page
	TotalPages  int
	CurrentPage int
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// PageScrapedEvent is published after a record has been persisted.
type PageScrapedEvent struct {
	PageID      string       `json:"page_id"`
	Title       string       `json:"title"`
	URL         string       `json:"url"`
	Fields      []FieldValue `json:"fields"`
	SnapshotURI string       `json:"snapshot_uri,omitempty"`
	ScrapedAt   time.Time    `json:"scraped_at"`
}

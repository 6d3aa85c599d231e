package infobox

import (
	"context"
	"io"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Extractor turns raw markup into a title and an ordered list of infobox rows.
type Extractor interface {
	Extract(body []byte) (Document, error)
}

// WriteTx exposes the write primitives available inside a store transaction.
// Upserts are atomic and return the stored row, which is the existing one when
// the natural key already exists.
type WriteTx interface {
	UpsertPage(ctx context.Context, page Page) (Page, error)
	UpsertField(ctx context.Context, field Field) (Field, error)
	InsertFact(ctx context.Context, fact Fact) error
}

// ReadStore answers catalog and filter queries. FieldByName returns ErrNotFound
// when no field has the given name. A limit <= 0 means no limit.
type ReadStore interface {
	FieldByName(ctx context.Context, name string) (Field, error)
	CountFields(ctx context.Context) (int, error)
	ListFieldNames(ctx context.Context, limit, offset int) ([]string, error)
	CountValues(ctx context.Context, fieldID string) (int, error)
	ListValues(ctx context.Context, fieldID string, limit, offset int) ([]string, error)
	CountPages(ctx context.Context, matches []Match) (int, error)
	ListPages(ctx context.Context, matches []Match, limit, offset int) ([]Page, error)
}

// Store is the relational fact store.
type Store interface {
	ReadStore
	// WithTx runs fn in a transaction, committing when fn returns nil.
	WithTx(ctx context.Context, fn func(tx WriteTx) error) error
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

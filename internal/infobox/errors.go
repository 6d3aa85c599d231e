package infobox

import (
	"errors"
	"fmt"
)

var (
	// ErrTooManyURLs is returned when a scrape batch exceeds MaxBatchURLs.
	ErrTooManyURLs = fmt.Errorf("cannot process more than %d URLs at a time", MaxBatchURLs)
	// ErrNoFilters is returned when a filter query has no constraints.
	ErrNoFilters = errors.New("no filters provided")
	// ErrFieldNotFound matches any FieldNotFoundError via errors.Is.
	ErrFieldNotFound = errors.New("field not found")
	// ErrNotFound signals that a store lookup found no row.
	ErrNotFound = errors.New("record not found")
)

// FieldNotFoundError names a field that no page has ever exposed.
type FieldNotFoundError struct {
	Name string
}

func (e *FieldNotFoundError) Error() string {
	return fmt.Sprintf("field %q not found", e.Name)
}

// Is reports whether target is ErrFieldNotFound.
func (e *FieldNotFoundError) Is(target error) bool {
	return target == ErrFieldNotFound
}

// TransportError reports a network failure or a non-success HTTP status.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsSuccessStatus reports whether code is a 2xx HTTP status.
func IsSuccessStatus(code int) bool {
	return code >= 200 && code < 300
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/infobox-crawler/internal/catalog"
	"github.com/JakeFAU/infobox-crawler/internal/config"
	"github.com/JakeFAU/infobox-crawler/internal/infobox"
	"github.com/JakeFAU/infobox-crawler/internal/query"
	"github.com/JakeFAU/infobox-crawler/internal/scrape"
	"github.com/JakeFAU/infobox-crawler/internal/storage/memory"
	"github.com/JakeFAU/infobox-crawler/internal/storage/storetest"
)

type fakeScraper struct {
	mu    sync.Mutex
	calls [][]string
	err   error
	panic bool
}

func (f *fakeScraper) ScrapeAndPersist(_ context.Context, urls []string) (scrape.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panic {
		panic("boom")
	}
	f.calls = append(f.calls, urls)
	if len(urls) > infobox.MaxBatchURLs {
		return scrape.Summary{}, infobox.ErrTooManyURLs
	}
	if f.err != nil {
		return scrape.Summary{}, f.err
	}
	return scrape.Summary{Requested: len(urls), Persisted: len(urls)}, nil
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type testEnv struct {
	server  *Server
	scraper *fakeScraper
	store   *memory.FactStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewFactStore()
	scraper := &fakeScraper{}
	cfg := config.Config{Server: config.ServerConfig{Port: 8080, RequestTimeoutSeconds: 5}}
	return &testEnv{
		server:  NewServer(scraper, query.New(store), catalog.New(store), store, cfg, zap.NewNop()),
		scraper: scraper,
		store:   store,
	}
}

func (e *testEnv) do(t *testing.T, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func fv(name, value string) infobox.FieldValue {
	return infobox.FieldValue{Name: name, Value: value}
}

func TestScrapeSucceeds(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/scrape/", []byte(`{"urls":["https://en.wikipedia.org/wiki/France"]}`))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"message": "Scraping completed successfully."}, decode[map[string]string](t, rec))
	assert.Equal(t, [][]string{{"https://en.wikipedia.org/wiki/France"}}, env.scraper.calls)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestScrapeTooManyURLs(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	urls := make([]string, 51)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://example.org/%d", i)
	}
	body, err := json.Marshal(map[string][]string{"urls": urls})
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/scrape/", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Cannot process more than 50 URLs at a time.", decode[map[string]string](t, rec)["error"])
}

func TestScrapeInvalidJSON(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/scrape/", []byte("{invalid"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.scraper.calls)
}

func TestScrapeUnexpectedError(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.scraper.err = errors.New("database is locked")
	rec := env.do(t, http.MethodPost, "/api/scrape/", []byte(`{"urls":[]}`))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "database is locked", decode[map[string]string](t, rec)["error"])
}

func TestScrapePanicRecovered(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.scraper.panic = true
	rec := env.do(t, http.MethodPost, "/api/scrape/", []byte(`{"urls":[]}`))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestFiltersListsFields(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rows := make([]infobox.FieldValue, 0, 15)
	for i := 1; i <= 15; i++ {
		rows = append(rows, fv(fmt.Sprintf("Field %02d", i), "x"))
	}
	storetest.Seed(t, env.store, 1, "France", "https://en.wikipedia.org/wiki/France", rows...)

	rec := env.do(t, http.MethodGet, "/api/filters/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string][]string](t, rec)["fields"], 10)

	rec = env.do(t, http.MethodGet, "/api/filters/?page=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string][]string](t, rec)["fields"], 5)

	rec = env.do(t, http.MethodGet, "/api/filters/?page=abc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Field 01", decode[map[string][]string](t, rec)["fields"][0])
}

func TestFiltersEmptyStore(t *testing.T) {
	t.Parallel()

	rec := newTestEnv(t).do(t, http.MethodGet, "/api/filters/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"fields":[]}`, rec.Body.String())
}

func TestFiltersListsValues(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	storetest.Seed(t, env.store, 1, "France", "https://en.wikipedia.org/wiki/France", fv("Currency", "Euro"))
	storetest.Seed(t, env.store, 2, "Japan", "https://en.wikipedia.org/wiki/Japan", fv("Currency", "Yen"))

	rec := env.do(t, http.MethodGet, "/api/filters/?field=Currency", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"values":["Euro","Yen"]}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/filters/?field=Anthem", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Field not found"}`, rec.Body.String())
}

func TestFilteredResults(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	france := storetest.Seed(t, env.store, 1, "France", "https://en.wikipedia.org/wiki/France", fv("Capital", "Paris"), fv("Currency", "Euro"))
	storetest.Seed(t, env.store, 2, "Germany", "https://en.wikipedia.org/wiki/Germany", fv("Capital", "Berlin"), fv("Currency", "Euro"))

	q := url.Values{}
	q.Set("filters[0][field]", "Capital")
	q.Set("filters[0][value]", "Paris")
	q.Set("filters[1][field]", "Currency")
	q.Set("filters[1][value]", "Euro")
	rec := env.do(t, http.MethodGet, "/api/filtered-results/?"+q.Encode(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[filteredResultsResponse](t, rec)
	assert.Equal(t, 1, got.TotalPages)
	assert.Equal(t, 1, got.CurrentPage)
	require.Len(t, got.Pages, 1)
	assert.Equal(t, "France", got.Pages[0].Title)
	assert.Equal(t, "https://en.wikipedia.org/wiki/France", got.Pages[0].URL)
	assert.True(t, france.CreatedAt.Equal(got.Pages[0].Timestamp))
	assert.NotContains(t, rec.Body.String(), `"id"`)
}

func TestFilteredResultsWireShape(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	storetest.Seed(t, env.store, 1, "France", "https://en.wikipedia.org/wiki/France", fv("Currency", "Euro"))

	rec := env.do(t, http.MethodGet, "/api/filtered-results/?filters[0][field]=Currency&filters[0][value]=Euro", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.ElementsMatch(t, []string{"pages", "total_pages", "current_page"}, keys(raw))

	var pages []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw["pages"], &pages))
	require.Len(t, pages, 1)
	assert.ElementsMatch(t, []string{"title", "url", "timestamp"}, keys(pages[0]))
}

func keys(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestFilteredResultsEchoesRequestedPage(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	storetest.Seed(t, env.store, 1, "France", "https://en.wikipedia.org/wiki/France", fv("Currency", "Euro"))

	rec := env.do(t, http.MethodGet, "/api/filtered-results/?filters[0][field]=Currency&filters[0][value]=Euro&page=9", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[filteredResultsResponse](t, rec)
	assert.Equal(t, 9, got.CurrentPage)
	assert.Equal(t, 1, got.TotalPages)
	assert.Len(t, got.Pages, 1)
}

func TestFilteredResultsErrors(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	storetest.Seed(t, env.store, 1, "France", "https://en.wikipedia.org/wiki/France", fv("Capital", "Paris"))

	rec := env.do(t, http.MethodGet, "/api/filtered-results/", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"No filters provided"}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/filtered-results/?filters[0][field]=Anthem&filters[0][value]=x", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, `Field "Anthem" not found`, decode[map[string]string](t, rec)["error"])
}

func TestAllValues(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	for i := 1; i <= 12; i++ {
		storetest.Seed(t, env.store, i, fmt.Sprintf("Page %d", i), fmt.Sprintf("https://example.org/%d", i), fv("Rank", fmt.Sprintf("%02d", i)))
	}

	rec := env.do(t, http.MethodGet, "/api/all-values/?field=Rank", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string][]string](t, rec)["values"], 12)

	rec = env.do(t, http.MethodGet, "/api/all-values/", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Field parameter is required"}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/all-values/?field=Anthem", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Field not found"}`, rec.Body.String())
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	down := NewServer(&fakeScraper{}, nil, nil, fakePinger{err: errors.New("refused")}, config.Config{}, nil)
	rec = httptest.NewRecorder()
	down.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/healthz", nil)
	rec := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRequestIDIsPropagated(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/infobox-crawler/internal/infobox"
	"github.com/JakeFAU/infobox-crawler/internal/logging"
)

const scrapeSucceeded = "Scraping completed successfully."

type scrapeRequest struct {
	URLs []string `json:"urls"`
}

type pageDTO struct {
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
}

type filteredResultsResponse struct {
	Pages       []pageDTO `json:"pages"`
	TotalPages  int       `json:"total_pages"`
	CurrentPage int       `json:"current_page"`
}

// scrape handles POST /api/scrape/ with a body of {"urls": [...]}.
func (s *Server) scrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	summary, err := s.scraper.ScrapeAndPersist(r.Context(), req.URLs)
	if err != nil {
		if errors.Is(err, infobox.ErrTooManyURLs) {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("Cannot process more than %d URLs at a time.", infobox.MaxBatchURLs))
			return
		}
		s.internalError(w, r, "scrape failed", err)
		return
	}
	logging.FromContext(r.Context(), s.logger).Info("scrape request completed",
		zap.Int("requested", summary.Requested),
		zap.Int("persisted", summary.Persisted),
	)
	writeJSON(w, http.StatusOK, map[string]string{"message": scrapeSucceeded})
}

// filters handles GET /api/filters/?field=&page=. Without a field it lists
// field names; with one it lists that field's values.
func (s *Server) filters(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := infobox.ParsePageNumber(q.Get("page"))
	field := q.Get("field")

	if field == "" {
		fields, err := s.catalog.ListFields(r.Context(), page)
		if err != nil {
			s.internalError(w, r, "list fields failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string][]string{"fields": fields})
		return
	}

	values, err := s.catalog.ListValues(r.Context(), field, page)
	if err != nil {
		if errors.Is(err, infobox.ErrFieldNotFound) {
			writeError(w, http.StatusNotFound, "Field not found")
			return
		}
		s.internalError(w, r, "list values failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"values": values})
}

// filteredResults handles GET /api/filtered-results/?filters[i][field]=&filters[i][value]=&page=.
func (s *Server) filteredResults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	constraints := parseFilters(q)
	list, err := s.filter.FilterPages(r.Context(), constraints, infobox.ParsePageNumber(q.Get("page")))
	if err != nil {
		var notFound *infobox.FieldNotFoundError
		switch {
		case errors.Is(err, infobox.ErrNoFilters):
			writeError(w, http.StatusBadRequest, "No filters provided")
		case errors.As(err, &notFound):
			writeError(w, http.StatusNotFound, fmt.Sprintf("Field %q not found", notFound.Name))
		default:
			s.internalError(w, r, "filter pages failed", err)
		}
		return
	}

	resp := filteredResultsResponse{
		Pages:       make([]pageDTO, 0, len(list.Pages)),
		TotalPages:  list.TotalPages,
		CurrentPage: list.CurrentPage,
	}
	for _, p := range list.Pages {
		resp.Pages = append(resp.Pages, pageDTO{Title: p.Title, URL: p.URL, Timestamp: p.CreatedAt})
	}
	writeJSON(w, http.StatusOK, resp)
}

// allValues handles GET /api/all-values/?field=.
func (s *Server) allValues(w http.ResponseWriter, r *http.Request) {
	field := r.URL.Query().Get("field")
	if field == "" {
		writeError(w, http.StatusBadRequest, "Field parameter is required")
		return
	}
	values, err := s.catalog.AllValues(r.Context(), field)
	if err != nil {
		if errors.Is(err, infobox.ErrFieldNotFound) {
			writeError(w, http.StatusNotFound, "Field not found")
			return
		}
		s.internalError(w, r, "list all values failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"values": values})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	logging.FromContext(r.Context(), s.logger).Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, err.Error())
}

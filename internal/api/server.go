package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/infobox-crawler/internal/config"
	"github.com/JakeFAU/infobox-crawler/internal/infobox"
	"github.com/JakeFAU/infobox-crawler/internal/logging"
	"github.com/JakeFAU/infobox-crawler/internal/metrics"
	"github.com/JakeFAU/infobox-crawler/internal/scrape"
)

// Scraper runs a scrape batch.
type Scraper interface {
	ScrapeAndPersist(ctx context.Context, urls []string) (scrape.Summary, error)
}

// Filter answers filtered page queries.
type Filter interface {
	FilterPages(ctx context.Context, constraints []infobox.Constraint, page int) (infobox.PageList, error)
}

// Catalog lists field names and values.
type Catalog interface {
	ListFields(ctx context.Context, page int) ([]string, error)
	ListValues(ctx context.Context, field string, page int) ([]string, error)
	AllValues(ctx context.Context, field string) ([]string, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires HTTP handlers to the scrape, query and catalog services.
type Server struct {
	router  chi.Router
	scraper Scraper
	filter  Filter
	catalog Catalog
	store   Pinger
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes. store may be nil,
// in which case /readyz always reports ready.
func NewServer(
	scraper Scraper,
	filter Filter,
	catalog Catalog,
	store Pinger,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		scraper: scraper,
		filter:  filter,
		catalog: catalog,
		store:   store,
		logger:  logger.Named("api"),
	}
	timeout := cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	withTimeout := timeoutMiddleware(timeout)
	r.With(withTimeout).Get("/healthz", s.healthz)
	r.With(withTimeout).Get("/readyz", s.readyz)
	r.With(withTimeout).Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		// Scrape batches are bounded per URL by the fetch timeout and always
		// answer with their summary, so only the read routes carry a deadline.
		r.Post("/scrape/", s.scrape)

		r.Group(func(r chi.Router) {
			r.Use(withTimeout)
			r.Get("/filters/", s.filters)
			r.Get("/filtered-results/", s.filteredResults)
			r.Get("/all-values/", s.allValues)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			logging.FromContext(r.Context(), s.logger).Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		ctx := logging.WithContext(r.Context(), s.logger.With(zap.String("request_id", reqID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.FromContext(r.Context(), s.logger).Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logging.FromContext(r.Context(), s.logger).Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, `{"error":"request timed out"}`)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

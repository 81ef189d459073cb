package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Spok95/slip-bot/internal/metrics"
	"github.com/Spok95/slip-bot/internal/slip"
)

// Slips is the durable slip store.
type Slips interface {
	Get(ctx context.Context, owner int64) (*slip.Payload, error)
}

// Pages is the page-transition cache.
type Pages interface {
	Get(ctx context.Context, owner int64, key string) ([]byte, error)
}

type Server struct {
	srv   *http.Server
	slips Slips
	pages Pages
	log   *slog.Logger
}

func New(addr string, exposeMetrics bool, slips Slips, pages Pages, log *slog.Logger) *Server {
	s := &Server{slips: slips, pages: pages, log: log.With("component", "http")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(countRequests)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if exposeMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Get("/slips/{owner}", s.getSlip)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// getSlip serves the stored slip, falling back to the transition cache entry
// written alongside it.
func (s *Server) getSlip(w http.ResponseWriter, r *http.Request) {
	owner, err := strconv.ParseInt(chi.URLParam(r, "owner"), 10, 64)
	if err != nil || owner <= 0 {
		writeError(w, http.StatusBadRequest, "invalid owner")
		return
	}

	p, err := s.slips.Get(r.Context(), owner)
	if err != nil {
		s.log.Warn("slip store read failed", "owner", owner, "err", err)
	}
	if p != nil {
		writeJSON(w, http.StatusOK, p)
		return
	}

	if s.pages != nil {
		raw, err := s.pages.Get(r.Context(), owner, slip.TransitionKey)
		if err != nil {
			s.log.Warn("transition cache read failed", "owner", owner, "err", err)
		}
		if len(raw) > 0 && json.Valid(raw) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(raw)
			return
		}
	}
	writeError(w, http.StatusNotFound, "slip not found")
}

/*** HELPERS ***/

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(sw.code)).Inc()
	})
}

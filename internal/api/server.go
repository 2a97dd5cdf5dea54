// Package api serves the inference service over HTTP.
package api

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/sells-group/veracity/internal/config"
	"github.com/sells-group/veracity/internal/inference"
	"github.com/sells-group/veracity/internal/metrics"
	"github.com/sells-group/veracity/internal/report"
	"github.com/sells-group/veracity/internal/store"
)

// Deps are the collaborators behind the HTTP handlers.
type Deps struct {
	Service    *inference.Service
	Store      store.Store
	Aggregator *report.Aggregator
	// MetadataPath is read on every /model-info request.
	MetadataPath string
}

// Server holds the routes of the HTTP API.
type Server struct {
	deps    Deps
	cfg     config.ServerConfig
	limiter *rate.Limiter
}

// NewServer creates a Server. A non-positive RateLimitRPS disables rate
// limiting on /predict.
func NewServer(d Deps, cfg config.ServerConfig) *Server {
	s := &Server{deps: d, cfg: cfg}
	if cfg.RateLimitRPS > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), max(cfg.RateLimitBurst, 1))
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.With(s.rateLimit).Post("/predict", s.handlePredict)
	r.Get("/monthly-report", s.handleMonthlyReport)
	r.Get("/critical-cases", s.handleCriticalCases)
	r.Get("/model-info", s.handleModelInfo)

	s.mountStatic(r)
	return r
}

// NewHTTPServer wraps the router in an http.Server listening on addr.
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// mountStatic serves the browser UI when the static directory exists.
func (s *Server) mountStatic(r chi.Router) {
	dir := s.cfg.StaticDir
	if dir == "" {
		return
	}
	if stat, err := os.Stat(dir); err != nil || !stat.IsDir() {
		return
	}

	fs := http.FileServer(http.Dir(dir))
	r.Handle("/static/*", http.StripPrefix("/static/", fs))
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.ServeFile(w, req, filepath.Join(dir, "index.html"))
	})
}

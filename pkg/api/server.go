// Package api serves the interactive preflight and profiling endpoints used
// by chart editors.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/chartkit/chartkit/pkg/engine"
	"github.com/chartkit/chartkit/pkg/preflight"
	"github.com/chartkit/chartkit/pkg/schema"
)

// MaxBodySize bounds request documents.
const MaxBodySize = 1 << 20

// Server exposes a preflight engine over HTTP.
type Server struct {
	preflight *preflight.Engine
	registry  *schema.Registry
	metrics   http.Handler
	health    func(context.Context) error
	origins   []string
	logger    zerolog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithHealthCheck makes /health report the result of check.
func WithHealthCheck(check func(context.Context) error) Option {
	return func(s *Server) { s.health = check }
}

// WithCORSOrigins sets the origins allowed to call the API from a browser.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithLogger sets the request logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates an API server.
func NewServer(pf *preflight.Engine, registry *schema.Registry, opts ...Option) *Server {
	s := &Server{
		preflight: pf,
		registry:  registry,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "api").Logger()
	return s
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/preflight", s.handlePreflight)
		r.Post("/profile", s.handleProfile)
		r.Get("/chart-types", s.handleChartTypes)
		r.Get("/schema/{type}", s.handleSchema)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: readTimeout,
		ReadTimeout:       readTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("API server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info().Msg("Shutting down API server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	doc, err := readDocument(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.preflight.Preflight(r.Context(), doc))
}

// profileResponse carries either a profile or the configuration issues that
// prevented loading.
type profileResponse struct {
	Profile *engine.DataProfile      `json:"profile,omitempty"`
	Issues  []engine.ResolutionError `json:"issues,omitempty"`
	Error   string                   `json:"error,omitempty"`
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	doc, err := readDocument(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	cfg, issues := engine.DecodeDataSource(doc["data"])
	if len(issues) > 0 {
		writeJSON(w, http.StatusBadRequest, profileResponse{Issues: issues})
		return
	}

	profile, err := s.preflight.Profile(r.Context(), cfg)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if engine.IsConfigurationError(err) {
			status = http.StatusBadRequest
		}
		s.logger.Debug().Err(err).Str("source", cfg.Source).Msg("Profile failed")
		writeJSON(w, status, profileResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Profile: &profile})
}

func (s *Server) handleChartTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"types": s.registry.Types()})
}

type schemaResponse struct {
	*schema.ChartSchema
	Definition string `json:"definition"`
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	chartType := chi.URLParam(r, "type")
	cs, ok := s.registry.Get(chartType)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown chart type %q", chartType))
		return
	}
	src, _ := s.registry.Source(chartType)
	writeJSON(w, http.StatusOK, schemaResponse{ChartSchema: cs, Definition: src})
}

// readDocument decodes a JSON or YAML request body into a document.
func readDocument(r *http.Request) (map[string]any, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if len(body) > MaxBodySize {
		return nil, fmt.Errorf("document exceeds %d bytes", MaxBodySize)
	}

	doc := map[string]any{}
	if len(body) == 0 {
		return doc, nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/yaml", "application/x-yaml", "text/yaml":
		if err := yaml.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("invalid YAML document: %w", err)
		}
	default:
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("invalid JSON document: %w", err)
		}
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

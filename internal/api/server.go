package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/QTest-hq/qroute/internal/classifier"
	"github.com/QTest-hq/qroute/internal/config"
	"github.com/QTest-hq/qroute/internal/dispatch"
	"github.com/QTest-hq/qroute/internal/llm"
	"github.com/QTest-hq/qroute/internal/selector"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

// requestTimeout bounds non-generation routes; generation is bounded per attempt by dispatch
const requestTimeout = 60 * time.Second

// Dispatcher is the routing core the server exposes
type Dispatcher interface {
	GenerateText(ctx context.Context, req *llm.Request, query string) (*llm.Response, error)
	GenerateStream(ctx context.Context, req *llm.Request, query string) (<-chan llm.StreamChunk, error)
	CreateEmbedding(ctx context.Context, text string) ([]float64, error)
	HealthCheck(ctx context.Context) map[llm.Provider]dispatch.HealthStatus
	Healthy(ctx context.Context) bool
	GetMetrics() dispatch.MetricsSnapshot
	Classify(query string) classifier.Classification
	SelectModel(query string, estimatedTokens int) (classifier.Classification, selector.Result)
	Models() []selector.ModelDescriptor
	Providers() []llm.Descriptor
}

// Server represents the API server
type Server struct {
	cfg     *config.Config
	llm     Dispatcher
	router  *chi.Mux
	limiter *rate.Limiter
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, d Dispatcher) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("api: nil config")
	}
	if d == nil {
		return nil, errors.New("api: nil dispatcher")
	}

	s := &Server{
		cfg:     cfg,
		llm:     d,
		router:  chi.NewRouter(),
		limiter: newLimiter(cfg.API),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// Router returns the HTTP router
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.Get("/health", s.healthCheck)
	s.router.Get("/ready", s.readyCheck)

	// API v1
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(throttle(s.limiter))

		// Routing
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))
			r.Post("/classify", s.classify)
			r.Post("/select", s.selectModel)
			r.Post("/embeddings", s.createEmbedding)
			r.Get("/providers", s.listProviders)
			r.Get("/providers/health", s.providerHealth)
			r.Get("/metrics", s.getMetrics)
			r.Get("/models", s.listModels)
		})

		// Generation
		r.Post("/generate", s.generate)
		r.Post("/generate/stream", s.generateStream)
	})
}

// Health check handlers
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyCheck(w http.ResponseWriter, r *http.Request) {
	providers := s.llm.Providers()
	if len(providers) == 0 || !s.llm.Healthy(r.Context()) {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "not ready",
			"providers": len(providers),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ready",
		"providers": len(providers),
	})
}

package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/lodestone-ai/lodestone/internal/rag"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger          *slog.Logger
	Engine          *rag.Engine // Required
	GenerationModel string      // Reported by /api/health
	EmbeddingModel  string      // Reported by /api/health
	CORSOrigins     []string    // Allowed origins for CORS
	TrustProxy      bool        // Trust X-Real-IP/X-Forwarded-For headers (behind reverse proxy)
	RateBurst       int         // Rate limiter burst size per IP (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	handler http.Handler
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	hh := &healthHandler{
		generationModel: cfg.GenerationModel,
		embeddingModel:  cfg.EmbeddingModel,
	}
	ch := &chatHandler{
		engine: cfg.Engine,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", hh.health)
	mux.HandleFunc("GET /api/health", hh.health)
	mux.HandleFunc("POST /api/chat", ch.chat)

	// Rate limiter: per-IP token bucket (1 token/sec refill)
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Routes
	// RequestID must be before Logging so request_id is available in log
	// attributes. CORS must be before RateLimit so preflight OPTIONS gets
	// proper CORS headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	return &Server{handler: handler}, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Package http serves the memhub REST surface: context bundles, project
// resolution, health and metrics.
package http

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/memhub/internal/bundle"
	"github.com/nextlevelbuilder/memhub/internal/metrics"
	"github.com/nextlevelbuilder/memhub/internal/resolve"
	"github.com/nextlevelbuilder/memhub/internal/store"
	"github.com/nextlevelbuilder/memhub/pkg/protocol"
)

// Pinger checks storage liveness for /healthz.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Config wires a Server.
type Config struct {
	Bundles *bundle.Assembler
	Engine  *resolve.Engine
	Metrics *metrics.Metrics
	DB      Pinger
	Token   string
	Limiter *RateLimiter
	// RequestTimeout bounds each bundle or resolve call; 0 disables it.
	RequestTimeout time.Duration
	Version        string
}

// Server is the HTTP front-end.
type Server struct {
	bundles *bundle.Assembler
	engine  *resolve.Engine
	metrics *metrics.Metrics
	db      Pinger
	token   string
	limiter *RateLimiter
	timeout time.Duration
	version string
}

func NewServer(cfg Config) *Server {
	return &Server{
		bundles: cfg.Bundles,
		engine:  cfg.Engine,
		metrics: cfg.Metrics,
		db:      cfg.DB,
		token:   cfg.Token,
		limiter: cfg.Limiter,
		timeout: cfg.RequestTimeout,
		version: cfg.Version,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /context/bundle", s.authMiddleware("bundle", s.handleBundle))
	mux.HandleFunc("GET /v1/context/bundle", s.authMiddleware("bundle", s.handleBundle))
	mux.HandleFunc("POST /v1/resolve", s.authMiddleware("resolve", s.handleResolve))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

// authMiddleware checks the service token, attaches caller and request ids,
// applies the per-user rate limit and the request timeout.
func (s *Server) authMiddleware(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		defer func() { s.metrics.ObserveHTTP(route, sw.status) }()

		if !tokenMatch(extractBearerToken(r), s.token) {
			writeError(sw, http.StatusUnauthorized, protocol.ErrUnauthorized, "invalid or missing bearer token")
			return
		}

		ctx := r.Context()
		userID := extractUserID(r)
		if userID != "" {
			ctx = store.WithUserID(ctx, userID)
		}
		rid := r.Header.Get(protocol.HeaderRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		sw.Header().Set(protocol.HeaderRequestID, rid)
		ctx = store.WithRequestID(ctx, rid)

		key := userID
		if key == "" {
			key = "ip:" + clientIP(r)
		}
		if !s.limiter.Allow(key) {
			sw.Header().Set("Retry-After", "60")
			writeJSON(sw, http.StatusTooManyRequests, protocol.ErrorEnvelope{Error: protocol.ErrorShape{
				Code:         protocol.ErrResourceExhausted,
				Message:      "rate limit exceeded",
				Retryable:    true,
				RetryAfterMs: 60_000,
			}})
			return
		}

		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		next(sw, r.WithContext(ctx))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, map[string]any{
		"status":      status,
		"version":     s.version,
		"api_version": protocol.APIVersion,
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

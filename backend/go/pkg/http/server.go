package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"Leviosa/backend/go/internal/config"
	"Leviosa/backend/go/pkg/circuitbreaker"
	"Leviosa/backend/go/pkg/httpmiddleware"
	"Leviosa/backend/go/pkg/logger"
	"Leviosa/backend/go/pkg/ratelimiter"
)

// Middleware defines a function to wrap an http.Handler.
type Middleware func(http.Handler) http.Handler

// Server wraps http.Server and applies the configured rate limiting and
// circuit breaking middleware in front of an application handler (the gin engine).
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
}

// ServerOption defines a function for configuring a Server.
type ServerOption func(*Server)

// WithAddress sets the address for the server to listen on.
func WithAddress(addr string) ServerOption {
	return func(s *Server) {
		s.httpServer.Addr = addr
	}
}

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(log *logger.Logger) ServerOption {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// NewServer creates a Server serving handler. Middleware enabled in cfg is chained
// with the rate limiter outermost.
func NewServer(cfg *config.AppConfig, handler http.Handler, opts ...ServerOption) (*Server, error) {
	srv := &Server{
		httpServer: &http.Server{
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: logger.Discard(),
	}
	for _, opt := range opts {
		opt(srv)
	}

	var middlewares []Middleware

	if cfg.Middleware.RateLimiter.Enabled {
		rl := cfg.Middleware.RateLimiter
		if rl.Rate <= 0 || rl.Capacity <= 0 {
			return nil, fmt.Errorf("invalid rate limiter settings: rate=%v capacity=%d", rl.Rate, rl.Capacity)
		}
		srv.log.Info(fmt.Sprintf("启用限流中间件: rate=%v capacity=%d", rl.Rate, rl.Capacity))
		middlewares = append(middlewares, httpmiddleware.RateLimit(ratelimiter.NewPerClient(rl.Rate, rl.Capacity, 0)))
	}

	if cfg.Middleware.CircuitBreaker.Enabled {
		breaker, err := NewCircuitBreaker(cfg.Middleware.CircuitBreaker, srv.log)
		if err != nil {
			return nil, fmt.Errorf("failed to create circuit breaker: %w", err)
		}
		srv.log.Info("启用熔断中间件")
		middlewares = append(middlewares, httpmiddleware.CircuitBreak(breaker))
	}

	// Apply all middlewares in reverse order
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	srv.httpServer.Handler = handler

	if srv.httpServer.Addr == "" {
		srv.httpServer.Addr = cfg.Server.Address
	}
	if srv.httpServer.Addr == "" {
		srv.httpServer.Addr = config.DefaultAddress
	}
	return srv, nil
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.log.Info(fmt.Sprintf("HTTP 服务器正在 %s 上启动", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// NewCircuitBreaker builds a breaker from config and logs its state transitions.
func NewCircuitBreaker(cfg config.CircuitBreakerConfig, log *logger.Logger) (circuitbreaker.CircuitBreaker, error) {
	timeout := 30 * time.Second
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid circuit breaker timeout duration: %w", err)
		}
		timeout = d
	}
	if log == nil {
		log = logger.Discard()
	}
	return circuitbreaker.New(circuitbreaker.Settings{
		FailureThreshold: cfg.FailureThreshold,
		SuccessThreshold: cfg.SuccessThreshold,
		Timeout:          timeout,
		OnStateChange: func(from, to circuitbreaker.State) {
			log.Warn(fmt.Sprintf("熔断器状态变化: %s -> %s", from, to))
		},
	}), nil
}

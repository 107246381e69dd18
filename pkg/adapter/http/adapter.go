// Package http implements the REST front-end of the file service.
//
// Routes:
//
//	POST   /api/v1/files          upload (multipart: "metadata" JSON, then "file")
//	GET    /api/v1/files          list the caller's files
//	GET    /api/v1/files/public   list public files
//	GET    /api/v1/files/{id}     stat one of the caller's files
//	PATCH  /api/v1/files/{id}     rename
//	DELETE /api/v1/files/{id}     delete
//	GET    /d/{linkId}            anonymous download
//	GET    /healthz               store healthcheck
//
// The caller is identified by the X-User-Id header, set by an upstream
// gateway. Authentication itself is out of scope.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/dittofiles/internal/logger"
	"github.com/marmos91/dittofiles/internal/ratelimiter"
	"github.com/marmos91/dittofiles/pkg/adapter"
	"github.com/marmos91/dittofiles/pkg/metrics"
	"github.com/marmos91/dittofiles/pkg/service"
)

// Adapter serves the file service over HTTP.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed, keep-alive connections closed when idle
//  3. In-flight requests drain for up to ShutdownTimeout
//  4. Remaining connections are force-closed
type Adapter struct {
	config   Config
	svc      *service.Service
	metrics  metrics.HTTPMetrics
	limiter  *ratelimiter.Keyed
	validate *validator.Validate

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener

	shutdownOnce sync.Once
}

// New creates an HTTP adapter in a stopped state. Call SetService, then
// Serve.
//
// Panics if config validation fails.
func New(config Config, m metrics.HTTPMetrics) *Adapter {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid HTTP config: %v", err))
	}

	if m == nil {
		m = metrics.NewNoopHTTPMetrics()
	}

	var limiter *ratelimiter.Keyed
	if config.RateLimit.Enabled() {
		limiter = ratelimiter.NewKeyed(config.RateLimit.RequestsPerSecond, config.RateLimit.Burst, config.RateLimit.IdleTimeout)
		logger.Debug("HTTP rate limit: %d req/s per owner, burst %d", config.RateLimit.RequestsPerSecond, config.RateLimit.Burst)
	}

	return &Adapter{
		config:   config,
		metrics:  m,
		limiter:  limiter,
		validate: newValidator(),
	}
}

// SetService implements adapter.Adapter.
func (a *Adapter) SetService(svc *service.Service) {
	a.svc = svc
}

// Handler returns the routed handler. SetService must have been called.
func (a *Adapter) Handler() http.Handler {
	return a.routes()
}

// Serve implements adapter.Adapter.
func (a *Adapter) Serve(ctx context.Context) error {
	if a.svc == nil {
		return errors.New("http adapter: service not set")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", a.config.Port))
	if err != nil {
		return fmt.Errorf("failed to create HTTP listener on port %d: %w", a.config.Port, err)
	}
	return a.serve(ctx, listener)
}

func (a *Adapter) serve(ctx context.Context, listener net.Listener) error {
	server := &http.Server{
		Handler:           a.routes(),
		ReadHeaderTimeout: a.config.ReadHeaderTimeout,
		ReadTimeout:       a.config.ReadTimeout,
		WriteTimeout:      a.config.WriteTimeout,
		IdleTimeout:       a.config.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	a.mu.Lock()
	a.server = server
	a.listener = listener
	a.mu.Unlock()

	logger.Info("HTTP server listening on %s", listener.Addr())

	go func() {
		<-ctx.Done()
		logger.Info("HTTP shutdown signal received: %v", ctx.Err())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
		defer cancel()
		_ = a.Stop(shutdownCtx)
	}()

	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Stop implements adapter.Adapter. In-flight requests drain until ctx
// expires, then connections are closed.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	server := a.server
	a.mu.Unlock()
	if server == nil {
		return nil
	}

	var stopErr error
	a.shutdownOnce.Do(func() {
		logger.Debug("HTTP shutdown initiated")
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn("HTTP graceful shutdown incomplete, closing connections: %v", err)
			_ = server.Close()
			stopErr = fmt.Errorf("http shutdown: %w", err)
			return
		}
		logger.Info("HTTP server stopped gracefully")
	})
	return stopErr
}

// Protocol implements adapter.Adapter.
func (a *Adapter) Protocol() string {
	return "HTTP"
}

// Port implements adapter.Adapter.
func (a *Adapter) Port() int {
	return a.config.Port
}

var _ adapter.Adapter = (*Adapter)(nil)

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/marmos91/dittofiles/internal/logger"
	"github.com/marmos91/dittofiles/pkg/adapter"
	"github.com/marmos91/dittofiles/pkg/gc"
	"github.com/marmos91/dittofiles/pkg/metrics"
	"github.com/marmos91/dittofiles/pkg/service"
)

// DefaultShutdownTimeout bounds the graceful shutdown of all components.
const DefaultShutdownTimeout = 30 * time.Second

// ErrAlreadyServed is returned by Serve on a second call.
var ErrAlreadyServed = errors.New("server: Serve already called")

// DittoServer runs the protocol adapters that expose one shared
// service.Service, together with the optional garbage collector and metrics
// server.
//
// Lifecycle:
//  1. Creation: New() with the service
//  2. Registration: AddAdapter() per protocol, plus SetCollector(),
//     SetMetricsServer() and AddCloser() as needed
//  3. Startup: Serve() starts everything and blocks
//  4. Shutdown: context cancellation or an adapter failure stops adapters in
//     reverse order, then the collector and metrics server, then closes the
//     registered closers (typically the stores)
//
// Example usage:
//
//	srv := server.New(svc, cfg.Server.ShutdownTimeout)
//	_ = srv.AddAdapter(httpAdapter)
//	srv.SetCollector(collector)
//	srv.AddCloser(metaStore)
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
//	    log.Fatal(err)
//	}
type DittoServer struct {
	svc             *service.Service
	shutdownTimeout time.Duration

	// mu protects every field below
	mu            sync.Mutex
	adapters      []adapter.Adapter
	collector     *gc.Collector
	metricsServer *metrics.Server
	closers       []io.Closer
	served        bool
}

// New creates a DittoServer around svc. A non-positive shutdownTimeout
// selects DefaultShutdownTimeout.
//
// Panics if svc is nil (programmer error).
func New(svc *service.Service, shutdownTimeout time.Duration) *DittoServer {
	if svc == nil {
		panic("service cannot be nil")
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}

	return &DittoServer{
		svc:             svc,
		shutdownTimeout: shutdownTimeout,
		adapters:        make([]adapter.Adapter, 0, 2),
	}
}

// AddAdapter injects the shared service into a and registers it.
//
// Returns an error on a duplicate protocol, a port conflict, or when
// Serve has already been called.
func (s *DittoServer) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		return fmt.Errorf("cannot add %s adapter after Serve()", a.Protocol())
	}

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}

	a.SetService(s.svc)
	s.adapters = append(s.adapters, a)

	logger.Info("Registered %s adapter on port %d", protocol, port)
	return nil
}

// SetCollector registers the garbage collector started and stopped with
// the server. nil removes it.
func (s *DittoServer) SetCollector(c *gc.Collector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collector = c
}

// SetMetricsServer registers the metrics HTTP server. nil removes it.
func (s *DittoServer) SetMetricsServer(m *metrics.Server) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metricsServer = m
}

// AddCloser registers a resource closed after everything has stopped.
// Closers run in reverse registration order.
func (s *DittoServer) AddCloser(c io.Closer) {
	if c == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closers = append(s.closers, c)
}

// Adapters returns a snapshot of the registered adapters.
func (s *DittoServer) Adapters() []adapter.Adapter {
	s.mu.Lock()
	defer s.mu.Unlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}

// adapterError pairs an adapter protocol name with its error.
type adapterError struct {
	protocol string
	err      error
}

// Serve starts every component and blocks until ctx is cancelled or an
// adapter fails.
//
// Returns ctx.Err() after a shutdown triggered by cancellation, the
// adapter's error (wrapped) after a failure, and ErrAlreadyServed on a
// second call.
func (s *DittoServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return ErrAlreadyServed
	}
	if len(s.adapters) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}
	s.served = true
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	collector := s.collector
	metricsServer := s.metricsServer
	closers := make([]io.Closer, len(s.closers))
	copy(closers, s.closers)
	s.mu.Unlock()

	logger.Info("Starting DittoFiles server with %d adapter(s)", len(adapters))

	// The metrics server lives on its own context so it keeps reporting
	// while the adapters drain.
	metricsCtx, stopMetrics := context.WithCancel(context.WithoutCancel(ctx))
	defer stopMetrics()

	var auxWG sync.WaitGroup
	if metricsServer != nil {
		auxWG.Add(1)
		go func() {
			defer auxWG.Done()
			if err := metricsServer.Start(metricsCtx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	if collector != nil {
		collector.Start()
	}

	errChan := make(chan adapterError, len(adapters))
	var wg sync.WaitGroup

	startTime := time.Now()
	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			logger.Info("Starting %s adapter on port %d", protocol, a.Port())

			if err := a.Serve(ctx); err != nil {
				if !errors.Is(err, context.Canceled) && ctx.Err() == nil {
					logger.Error("%s adapter failed: %v", protocol, err)
					errChan <- adapterError{protocol: protocol, err: err}
					return
				}
				logger.Debug("%s adapter stopped gracefully", protocol)
				return
			}
			logger.Info("%s adapter stopped", protocol)
		}(adp)
	}
	logger.Info("All components started in %v", time.Since(startTime))

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		shutdownErr = ctx.Err()

	case adapterErr := <-errChan:
		logger.Error("Adapter %s failed: %v - initiating shutdown", adapterErr.protocol, adapterErr.err)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.stopAllAdapters(stopCtx, adapters)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-stopCtx.Done():
		logger.Warn("Shutdown timeout (%v) exceeded waiting for adapters", s.shutdownTimeout)
	}

	if collector != nil {
		if err := collector.Stop(stopCtx); err != nil {
			logger.Warn("Garbage collector did not stop cleanly: %v", err)
		}
	}

	if metricsServer != nil {
		stopMetrics()
		auxWG.Wait()
	}

	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			logger.Warn("Error closing resource: %v", err)
		}
	}

	logger.Info("DittoFiles server stopped")
	return shutdownErr
}

// stopAllAdapters signals every adapter to stop, in reverse registration
// order. Errors are logged and do not prevent stopping the rest.
func (s *DittoServer) stopAllAdapters(ctx context.Context, adapters []adapter.Adapter) {
	logger.Info("Initiating graceful shutdown of %d adapter(s)", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		protocol := adp.Protocol()

		logger.Debug("Stopping %s adapter (port %d)", protocol, adp.Port())
		if err := adp.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", protocol, err)
		}
	}
}

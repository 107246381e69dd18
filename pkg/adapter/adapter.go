// Package adapter defines the interface between transport front-ends and the
// file service.
package adapter

import (
	"context"

	"github.com/marmos91/dittofiles/pkg/service"
)

// Adapter is a transport front-end (HTTP today) over the shared file
// service, managed by the server.
//
// Lifecycle:
//  1. Creation: adapter is created with its own configuration
//  2. Injection: SetService() provides the shared service
//  3. Startup: Serve() starts listening and blocks until shutdown
//  4. Shutdown: Stop() initiates graceful shutdown with timeout
//
// Thread safety:
// SetService() is called once before Serve(); Stop() may be called
// concurrently with Serve().
type Adapter interface {
	// Serve starts the adapter and blocks until ctx is cancelled or an
	// unrecoverable error occurs. It returns nil on graceful shutdown.
	//
	// If Serve returns before ctx is cancelled, the server treats it as a
	// fatal error and stops every other component.
	Serve(ctx context.Context) error

	// SetService injects the file service. Called exactly once, before
	// Serve().
	SetService(svc *service.Service)

	// Stop initiates graceful shutdown. It must be idempotent and safe to
	// call concurrently with Serve().
	Stop(ctx context.Context) error

	// Protocol returns the protocol name for logging and metrics.
	Protocol() string

	// Port returns the TCP port the adapter listens on.
	Port() int
}

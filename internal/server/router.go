package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// Router owns the HTTP listener and its lifecycle.
//
// Invariants:
// - httpServer is set by NewRouter and never replaced
// - listener is nil until Start has bound the address
// - isShutdown only moves from false to true
type Router struct {
	addr       string
	httpServer *http.Server

	serverMutex sync.RWMutex
	listener    net.Listener
	isShutdown  bool
}

// NewRouter creates a router that will serve handler on addr.
func NewRouter(addr string, handler http.Handler) *Router {
	if handler == nil {
		panic("Router: handler cannot be nil")
	}

	return &Router{
		addr: addr,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start binds the address and serves until ctx is cancelled or the server
// fails. Cancellation triggers a graceful shutdown.
func (r *Router) Start(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("Router.Start: context cannot be nil")
	}

	r.serverMutex.Lock()
	if r.isShutdown {
		r.serverMutex.Unlock()
		return fmt.Errorf("Router.Start: router has been shut down")
	}
	if r.listener != nil {
		r.serverMutex.Unlock()
		return fmt.Errorf("Router.Start: already started")
	}
	ln, err := net.Listen("tcp", r.addr)
	if err != nil {
		r.serverMutex.Unlock()
		return fmt.Errorf("listen %s: %w", r.addr, err)
	}
	r.listener = ln
	server := r.httpServer
	r.serverMutex.Unlock()

	errChan := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return r.Shutdown(shutdownCtx)

	case err, ok := <-errChan:
		if !ok {
			// Closed by a concurrent Shutdown.
			return nil
		}
		return err
	}
}

// Shutdown gracefully shuts down the HTTP server. It is idempotent.
func (r *Router) Shutdown(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("Router.Shutdown: context cannot be nil")
	}

	r.serverMutex.Lock()
	defer r.serverMutex.Unlock()

	if r.isShutdown {
		return nil
	}
	r.isShutdown = true

	if err := r.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("Router.Shutdown: server shutdown failed: %w", err)
	}
	return nil
}

// Addr returns the bound address once started, otherwise the configured one.
func (r *Router) Addr() string {
	r.serverMutex.RLock()
	defer r.serverMutex.RUnlock()

	if r.listener != nil {
		return r.listener.Addr().String()
	}
	return r.addr
}

// Listening reports whether Start has bound the address.
func (r *Router) Listening() bool {
	r.serverMutex.RLock()
	defer r.serverMutex.RUnlock()
	return r.listener != nil && !r.isShutdown
}

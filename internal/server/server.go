// Package server provides the HTTP server wrapper shared by the
// controller's three inbound HTTP surfaces (admission, admin, report).
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Server wraps one net/http.Server, named for logging, with the same
// graceful-shutdown shape as the original single-service gateway but
// without owning OS signal handling itself. cmd/controller coordinates
// shutdown across all of the process's listeners (three HTTP servers, two
// UDP sockets, and the report scheduler's worker pool) from one place.
type Server struct {
	name       string
	httpServer *http.Server
	logger     zerolog.Logger
}

// New builds a named Server bound to addr.
func New(name, addr string, handler http.Handler, readTimeout, writeTimeout, idleTimeout time.Duration, logger zerolog.Logger) *Server {
	return &Server{
		name: name,
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  idleTimeout,
		},
		logger: logger,
	}
}

// Start runs ListenAndServe in the background and returns a channel that
// receives exactly one value once the listener stops: the terminal error,
// or nil when it stopped through Shutdown/Close (http.ErrServerClosed is
// filtered out). The channel is never closed.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("server", s.name).Str("addr", s.httpServer.Addr).Msg("starting http server")
		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	return errCh
}

// Shutdown gracefully drains outstanding requests within ctx's deadline,
// falling back to a forced Close if the deadline is exceeded.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error().Err(err).Str("server", s.name).Msg("graceful shutdown failed, forcing close")
		return s.httpServer.Close()
	}
	return nil
}

// Addr returns the server's bind address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

var startedAt = time.Now()

// Uptime returns how long the process has been running.
func Uptime() time.Duration {
	return time.Since(startedAt)
}

// Package server assembles all HTTP handlers and starts the server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matthewbaird/formdesigner/internal/handler"
)

// Routes is implemented by every handler that mounts its own endpoints.
type Routes interface {
	RegisterRoutes(r chi.Router)
}

// Config holds server configuration.
type Config struct {
	Port     int
	Handlers []Routes
}

// NewRouter builds the router with middleware, the health check and every
// handler's routes.
func NewRouter(handlers ...Routes) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(handler.Recovery)
	r.Use(handler.Logging)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	for _, h := range handlers {
		h.RegisterRoutes(r)
	}
	return r
}

// Run starts the HTTP server and shuts it down when ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	r := NewRouter(cfg.Handlers...)

	routes := 0
	chi.Walk(r, func(string, string, http.Handler, ...func(http.Handler) http.Handler) error {
		routes++
		return nil
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("starting server on %s (%d routes registered)", addr, routes)

	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return serve(ctx, server, ln)
}

// serve runs srv on ln until ctx is cancelled. It returns only after
// Shutdown has finished, so in-flight requests are done by then.
func serve(ctx context.Context, srv *http.Server, ln net.Listener) error {
	shutdown := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		shutdown <- srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if err := <-shutdown; err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Package server provides HTTP server initialization and lifecycle
// management for the ingestion and sync API.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/scrypster/xmem/internal/config"
	"github.com/scrypster/xmem/internal/engine"
	"github.com/scrypster/xmem/internal/sources"
	"github.com/scrypster/xmem/web/handlers"
)

// Deps carries the wired engine components the HTTP layer exposes.
type Deps struct {
	Coordinator *engine.Coordinator
	Importer    *engine.Importer
	Stats       *engine.StatsAggregator
	Sources     *sources.Manager
}

// Start initializes and starts the HTTP server.
// Returns the actual address being listened on (useful for testing with
// port 0) and the WebSocketHub for wiring sync event broadcasts.
func Start(ctx context.Context, cfg *config.Config, deps Deps) (string, *handlers.WebSocketHub, error) {
	mux := http.NewServeMux()

	wsHub := handlers.NewWebSocketHub()
	go wsHub.Run()

	rateLimiter := handlers.NewRateLimiter(10.0, 20)

	importHandler := handlers.NewImportHandler(deps.Importer)
	syncHandler := handlers.NewSyncHandler(deps.Coordinator)
	statsHandler := handlers.NewStatsHandler(deps.Stats)
	healthHandler := handlers.NewHealthHandler(deps.Sources)

	// API routes (require auth in production mode).
	apiMux := http.NewServeMux()
	apiMux.Handle("/api/import", importHandler)
	apiMux.Handle("/api/memories/", syncHandler)
	apiMux.Handle("/api/stats", statsHandler)
	apiMux.HandleFunc("/api/sources/", healthHandler.SourceHealth)

	// Health endpoint — no auth required, used by monitoring.
	mux.HandleFunc("/api/health", healthHandler.Liveness)

	mux.Handle("/api/", handlers.RequireAuth(apiMux, cfg))

	// WebSocket endpoint (no auth required - origin validation handles security)
	mux.Handle("/ws", wsHub)

	// Wrap entire server with rate limiting, then security headers.
	handler := handlers.RateLimitMiddleware(mux, rateLimiter)
	handler = handlers.SecurityHeaders(handler)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	actualAddr := listener.Addr().String()

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("server: serve error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("server: shutdown error: %v", err)
		}
		wsHub.Stop()
	}()

	return actualAddr, wsHub, nil
}

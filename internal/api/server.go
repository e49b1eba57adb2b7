package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"percolator/internal/config"
)

// Server runs the HTTP/WebSocket dashboard and metrics API.
type Server struct {
	cfg      config.DashboardConfig
	provider SnapshotProvider
	fullCfg  config.Config
	hub      *Hub
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger
}

// NewServer creates a new API server.
func NewServer(cfg config.DashboardConfig, provider SnapshotProvider, fullCfg config.Config, logger *slog.Logger) *Server {
	hub := NewHub(logger)
	handlers := NewHandlers(provider, fullCfg, hub, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handlers.HandleHealth)
	mux.HandleFunc("/snapshot", handlers.HandleSnapshot)
	mux.HandleFunc("/stream", handlers.HandleWebSocket)
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		cfg:      cfg,
		provider: provider,
		fullCfg:  fullCfg,
		hub:      hub,
		handlers: handlers,
		server:   server,
		logger:   logger.With("component", "api-server"),
	}
}

// Start runs the WebSocket hub and listens for HTTP requests until Stop is
// called.
func (s *Server) Start() error {
	go s.hub.Run()

	s.logger.Info("dashboard server starting", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	s.logger.Info("stopping dashboard server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// BroadcastTrade pushes a trade-tape print to every connected WS client.
func (s *Server) BroadcastTrade(slabID string, evt TradeEvent) {
	s.hub.BroadcastEvent(DashboardEvent{Type: "trade", Timestamp: time.Now(), SlabID: slabID, Data: evt})
}

// BroadcastRisk pushes a risk event (kill-band trip, margin failure) to
// every connected WS client.
func (s *Server) BroadcastRisk(slabID string, evt RiskEvent) {
	s.hub.BroadcastEvent(DashboardEvent{Type: "risk", Timestamp: time.Now(), SlabID: slabID, Data: evt})
}

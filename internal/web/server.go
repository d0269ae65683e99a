// Package web serves a small JSON status surface over the run store.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/vitos/trading_agent_lab/internal/evaluation"
	"github.com/vitos/trading_agent_lab/internal/infrastructure/storage"
	"go.uber.org/zap"
)

type Server struct {
	router *http.ServeMux
	server *http.Server
	store  *storage.SQLiteStore
	logger *zap.Logger
}

func NewServer(port int, store *storage.SQLiteStore, logger *zap.Logger) *Server {
	s := &Server{
		router: http.NewServeMux(),
		store:  store,
		logger: logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /healthz", s.handleHealth)
	s.router.HandleFunc("GET /api/leaderboard", s.handleLeaderboard)
	s.router.HandleFunc("GET /api/orders", s.handleOrders)
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the route table for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	window := r.URL.Query().Get("window")
	if window == "" {
		window = "7d"
	}
	since, err := evaluation.ResolveWindow(window, time.Now().UTC())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rows, err := evaluation.Build(r.Context(), s.store, since.Format(time.RFC3339))
	if err != nil {
		s.logger.Error("leaderboard query failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, rows)
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	orders, err := s.store.TailOrders(r.Context(), limit)
	if err != nil {
		s.logger.Error("orders query failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, orders)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", zap.Error(err))
	}
}

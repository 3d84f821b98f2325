// Package api exposes the session controller over HTTP. It is a thin JSON
// surface: all rendering belongs to the client driving it.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/paperbtc/turntrader/internal/engine"
	"github.com/paperbtc/turntrader/internal/models"
	"github.com/paperbtc/turntrader/internal/util"
)

// assetTick is the display precision for asset quantities.
const assetTick = 0.0001

// Server serves the session API.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	engine    *engine.Engine
	logger    *logrus.Logger
	port      int
	authToken string
}

// Config holds server settings.
type Config struct {
	Port      int
	AuthToken string
}

// StateResponse is the GET /api/state payload.
type StateResponse struct {
	models.SessionSnapshot
	MaxBuy  float64 `json:"max_buy"`
	MaxSell float64 `json:"max_sell"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// NewServer creates the API server around an engine.
func NewServer(cfg Config, eng *engine.Engine, logger *logrus.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		engine:    eng,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/state", s.handleState)
	s.router.Get("/api/ledger", s.handleLedger)
	s.router.Post("/api/intent", s.handleIntent)
	s.router.Post("/api/advance", s.handleAdvance)
	s.router.Post("/api/reset", s.handleReset)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Handler returns the underlying router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting session API server on port %d", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, StateResponse{
		SessionSnapshot: s.engine.Snapshot(),
		MaxBuy:          s.engine.MaxBuyNotional(),
		MaxSell:         s.engine.MaxSellNotional(),
	})
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	entries := s.engine.Recent(limit)
	for i := range entries {
		entries[i].AssetAmount = util.RoundToTick(entries[i].AssetAmount, assetTick)
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleIntent(w http.ResponseWriter, r *http.Request) {
	var intent models.TurnIntent
	if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed intent body"})
		return
	}

	if err := s.engine.SetIntent(intent); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	s.writeJSON(w, http.StatusAccepted, s.engine.Snapshot())
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	entry, err := s.engine.Advance(r.Context())
	if err != nil {
		if engine.Retryable(err) {
			s.logger.WithError(err).Warn("Advance failed, retryable")
			s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error(), Retryable: true})
			return
		}
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	entry.AssetAmount = util.RoundToTick(entry.AssetAmount, assetTick)
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.engine.Reset()
	s.writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

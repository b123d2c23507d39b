// Package server exposes the market-data core over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/cryptotracker/core/internal/coins"
	"github.com/cryptotracker/core/internal/logger"
)

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// Server serves the coins endpoints and the health probe.
type Server struct {
	addr   string
	coins  *coins.Service
	checks map[string]HealthCheck
	srv    *http.Server
}

// New creates an HTTP server over the coins service. checks maps a
// dependency name (database, cache) to its probe.
func New(addr string, svc *coins.Service, checks map[string]HealthCheck) *Server {
	return &Server{addr: addr, coins: svc, checks: checks}
}

func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/coins", s.handleList)
	mux.HandleFunc("GET /api/coins/{id}", s.handleDetail)
	mux.HandleFunc("GET /api/coins/{id}/chart", s.handleChart)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	return mux
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         s.addr,
		Handler:      s.handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	logger.Info("HTTP server listening on %s", s.addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// handleList serves GET /api/coins?page=1&per_page=20&search=bitcoin.
// Invalid numeric parameters fall back to defaults, never 4xx.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil {
		page = 1
	}
	perPage, err := strconv.Atoi(q.Get("per_page"))
	if err != nil {
		perPage = coins.DefaultPerPage
	}

	payload, err := s.coins.List(r.Context(), coins.ListRequest{
		Page:     page,
		PerPage:  perPage,
		Search:   q.Get("search"),
		BasePath: r.URL.Path,
	})
	if err != nil {
		logger.Error("Listing request failed: %v", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"detail": "upstream error"})
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// handleDetail serves GET /api/coins/{id}.
func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	payload, err := s.coins.Detail(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeCoinError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// handleChart serves GET /api/coins/{id}/chart?days=7.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	payload, err := s.coins.Chart(r.Context(), r.PathValue("id"), r.URL.Query().Get("days"))
	if err != nil {
		s.writeCoinError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// handleHealth serves GET /api/health, probing each dependency.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.checks))
	healthy := true
	for name, check := range s.checks {
		if err := check(r.Context()); err != nil {
			logger.Warn("Health check %s failed: %v", name, err)
			checks[name] = "fail"
			healthy = false
		} else {
			checks[name] = "ok"
		}
	}
	status := "healthy"
	if !healthy {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "checks": checks})
}

func (s *Server) writeCoinError(w http.ResponseWriter, err error) {
	var upstreamErr *coins.UpstreamError
	if errors.As(err, &upstreamErr) {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": upstreamErr.Error()})
		return
	}
	logger.Error("Coin request failed: %v", err)
	writeJSON(w, http.StatusBadGateway, map[string]string{"detail": "upstream error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response: %v", err)
	}
}

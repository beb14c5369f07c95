// Package httpapi exposes health, metrics, and the alert status/control
// endpoints, including the inbound-call status responses.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forewarned/forewarned/internal/adapter/voip"
	"github.com/forewarned/forewarned/internal/domain"
)

// Engine is the slice of the alert engine the API serves.
type Engine interface {
	CurrentState() domain.LocalAlertState
	Snapshots() (domain.WeatherSnapshot, domain.EOCSnapshot)
	ReloadLevelTable(ctx context.Context, table domain.LevelTable) error
	CheckReadiness(ctx context.Context) error
}

// Server exposes the HTTP control surface.
type Server struct {
	httpServer *http.Server
	engine     Engine
	logger     *slog.Logger
}

// NewServer creates the HTTP server with health, metrics, status, rules
// reload, and VoIP status routes.
func NewServer(addr string, engine Engine, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		engine: engine,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/weather", s.handleWeather)
	mux.HandleFunc("GET /api/eoc", s.handleEOC)
	mux.HandleFunc("POST /api/rules", s.handleReloadRules)

	mux.HandleFunc("/voip/status", s.handleVoipStatus)
	mux.HandleFunc("/voip/twiml", s.handleVoipTwiML)
	mux.HandleFunc("POST /voip/menu", s.handleVoipMenu)
	mux.HandleFunc("GET /voip/agi", s.handleVoipAGI)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.engine.CheckReadiness(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	weather, eoc := s.engine.Snapshots()
	writeJSON(w, http.StatusOK, map[string]any{
		"local_alert":    s.engine.CurrentState(),
		"weather_alerts": len(weather),
		"eoc_sites":      len(eoc),
	})
}

func (s *Server) handleWeather(w http.ResponseWriter, _ *http.Request) {
	weather, _ := s.engine.Snapshots()
	writeJSON(w, http.StatusOK, weather)
}

func (s *Server) handleEOC(w http.ResponseWriter, _ *http.Request) {
	_, eoc := s.engine.Snapshots()
	writeJSON(w, http.StatusOK, eoc)
}

// handleReloadRules hot-swaps the level table from a JSON body in the rule
// file format.
func (s *Server) handleReloadRules(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	table, err := domain.ParseLevelTable(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.engine.ReloadLevelTable(r.Context(), table); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "reloaded", "levels": len(table)})
}

func (s *Server) handleVoipStatus(w http.ResponseWriter, _ *http.Request) {
	state := s.engine.CurrentState()
	writeJSON(w, http.StatusOK, map[string]any{
		"active":  state.Active,
		"level":   state.Level.String(),
		"reason":  state.Reason,
		"message": voip.StatusMessage(state),
	})
}

func (s *Server) handleVoipTwiML(w http.ResponseWriter, _ *http.Request) {
	writeXML(w, voip.TwiML(s.engine.CurrentState()))
}

// handleVoipMenu handles digit selection from the TwiML gather: 1 repeats
// the status, anything else hangs up.
func (s *Server) handleVoipMenu(w http.ResponseWriter, r *http.Request) {
	if r.FormValue("Digits") == "1" {
		writeXML(w, voip.TwiML(s.engine.CurrentState()))
		return
	}
	writeXML(w, `<?xml version="1.0" encoding="UTF-8"?>
<Response>
    <Say voice="alice">Goodbye.</Say>
    <Hangup/>
</Response>`)
}

func (s *Server) handleVoipAGI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, voip.AGIScript(s.engine.CurrentState())) //nolint:errcheck // best-effort call response
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort status response
}

func writeXML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/xml")
	io.WriteString(w, body) //nolint:errcheck // best-effort call response
}

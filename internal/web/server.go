// Package web exposes the dashboard over HTTP: a status page, JSON
// endpoints for commands, the message log and reading history, and a
// WebSocket feed of live changes.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/sweeney/smart-house/internal/cache"
	"github.com/sweeney/smart-house/internal/house"
	"github.com/sweeney/smart-house/internal/logging"
	"github.com/sweeney/smart-house/internal/mqtt"
	"github.com/sweeney/smart-house/internal/msglog"
	"github.com/sweeney/smart-house/internal/status"
	"github.com/sweeney/smart-house/internal/topics"
)

// Session is the part of the broker session the web layer uses.
type Session interface {
	Control(room house.Room, device, state string) error
	ConnectionStatus() mqtt.ConnectionStatus
	SubscribeConnection(fn func(mqtt.ConnectionStatus)) (unsubscribe func())
	SubscribeSensorData(fn func(house.Reading)) (unsubscribe func())
	SubscribeDeviceStatus(fn func(house.DeviceStatus)) (unsubscribe func())
	SubscribeMessageLog(fn func([]msglog.Entry)) (unsubscribe func())
	MessageHistory() []msglog.Entry
	ClearMessageLog()
}

// History is the reading history.
type History interface {
	Readings(p cache.Period) []house.Reading
	Stats(ctx context.Context) (cache.Stats, error)
}

// Server serves the status page and API over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	session    Session
	history    History
	logger     *logging.Logger
}

// New creates a Server. history may be nil.
func New(addr string, tracker *status.Tracker, session Session, history History, logger *logging.Logger) *Server {
	s := &Server{
		tracker: tracker,
		session: session,
		history: history,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("GET /index.html", s.handleIndex)
	mux.HandleFunc("GET /index.json", s.handleJSON)
	mux.HandleFunc("POST /api/control/{room}/{device}", s.handleControl)
	mux.HandleFunc("GET /api/log", s.handleLog)
	mux.HandleFunc("DELETE /api/log", s.handleClearLog)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /ws", s.handleWS)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) snapshot(ctx context.Context) status.Snapshot {
	snap := s.tracker.Snapshot()
	if s.history != nil {
		st, err := s.history.Stats(ctx)
		if err != nil {
			s.logger.Warnw("cache stats unavailable", "err", err)
		} else {
			snap.Cache = &st
		}
	}
	return snap
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.snapshot(r.Context())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	room, device := r.PathValue("room"), r.PathValue("device")

	var req ControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.State == "" {
		writeError(w, http.StatusBadRequest, `body must be {"state": "..."}`)
		return
	}

	resp := ControlResponse{Room: room, Device: device, State: req.State}
	err := s.session.Control(house.Room(room), device, req.State)
	if err == nil {
		resp.Sent = true
		writeJSON(w, http.StatusAccepted, resp)
		return
	}

	resp.Error = err.Error()
	switch {
	case errors.Is(err, topics.ErrInvalidDevice), errors.Is(err, mqtt.ErrInvalidState):
		writeJSON(w, http.StatusBadRequest, resp)
	case errors.Is(err, mqtt.ErrNotConnected), errors.Is(err, mqtt.ErrAutoMode):
		writeJSON(w, http.StatusConflict, resp)
	default:
		writeJSON(w, http.StatusBadGateway, resp)
	}
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	entries := s.session.MessageHistory()
	if entries == nil {
		entries = []msglog.Entry{}
	}
	writeJSON(w, http.StatusOK, LogResponse{Entries: entries})
}

func (s *Server) handleClearLog(w http.ResponseWriter, r *http.Request) {
	s.session.ClearMessageLog()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history disabled")
		return
	}
	period := cache.ParsePeriod(r.URL.Query().Get("period"))
	readings := s.history.Readings(period)
	if readings == nil {
		readings = []house.Reading{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{
		Period:   period,
		Readings: readings,
		Summary:  cache.Summarize(readings),
	})
}

package web

import (
	"encoding/json"
	"net/http"

	"github.com/sweeney/smart-house/internal/cache"
	"github.com/sweeney/smart-house/internal/house"
	"github.com/sweeney/smart-house/internal/msglog"
)

// ControlRequest is the body of POST /api/control/{room}/{device}.
type ControlRequest struct {
	State string `json:"state"`
}

// ControlResponse reports the outcome of a command.
type ControlResponse struct {
	Room   string `json:"room"`
	Device string `json:"device"`
	State  string `json:"state"`
	Sent   bool   `json:"sent"`
	Error  string `json:"error,omitempty"`
}

// LogResponse is the body of GET /api/log.
type LogResponse struct {
	Entries []msglog.Entry `json:"entries"`
}

// HistoryResponse is the body of GET /api/history.
type HistoryResponse struct {
	Period   cache.Period    `json:"period"`
	Readings []house.Reading `json:"readings"`
	Summary  cache.Summary   `json:"summary"`
}

// Envelope is one message pushed over /ws.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Envelope types.
const (
	TypeConnection = "connection"
	TypeSensor     = "sensor"
	TypeDevices    = "devices"
	TypeLog        = "log"
)

type errorJSON struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorJSON{Error: msg})
}

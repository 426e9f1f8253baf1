// Package progress records job runs durably and fans live progress out to websocket, SSE and redis listeners.
package progress

import (
	"time"

	"github.com/google/uuid"
)

// Event is one progress update of a run
type Event struct {
	SessionID string      `json:"session_id"`
	RunID     uuid.UUID   `json:"run_id"`
	Kind      string      `json:"kind"`
	Status    string      `json:"status"`
	Message   string      `json:"message"`
	Current   int         `json:"current"`
	Total     int         `json:"total"`
	Results   interface{} `json:"results,omitempty"`
	Error     string      `json:"error,omitempty"`
	At        time.Time   `json:"at"`
}

// Publisher delivers events to live listeners
type Publisher interface {
	Publish(evt Event)
}

// Discard drops every event
type Discard struct{}

func (Discard) Publish(Event) {}

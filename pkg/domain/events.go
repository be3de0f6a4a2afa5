package domain

import (
	"fmt"
	"strconv"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventTension   EventType = "tension"
	EventResolve   EventType = "resolve"
	EventMetaweave EventType = "metaweave"
)

// Event is emitted to the observer channel for every executed tension rule,
// every successful resolve and every metaweave definition, in execution order.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id,omitempty"`
	Line      int       `json:"line"` // source line of the statement

	Sensor   string  `json:"sensor,omitempty"`
	Param    string  `json:"param,omitempty"`
	Observed float64 `json:"observed"`

	// Tension is the computed |observed - expected| (tension) or |observed - candidate| (resolve).
	Tension float64 `json:"tension"`

	// Fired reports whether a tension rule invoked its action.
	Fired       bool       `json:"fired,omitempty"`
	ActionValue [2]float64 `json:"action_value"`

	Candidate float64 `json:"candidate,omitempty"`
	Coherence float64 `json:"coherence,omitempty"`

	Primitive string `json:"primitive,omitempty"`
	Action    string `json:"action,omitempty"`
}

// Message renders the human-readable form of the event.
func (e Event) Message() string {
	switch e.Type {
	case EventTension:
		return "Tension: " + formatFloat(e.Tension)
	case EventResolve:
		return "Resolved: Coherence " + formatFloat(e.Coherence)
	case EventMetaweave:
		return fmt.Sprintf("Defined new primitive: %s as %s", e.Primitive, e.Action)
	default:
		return string(e.Type)
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

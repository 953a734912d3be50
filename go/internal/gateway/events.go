package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/christianlewis024/debater/go/internal/models"
	"github.com/christianlewis024/debater/go/internal/session/events"
)

// SessionEvent is the wire structure pushed to websocket clients.
type SessionEvent struct {
	ID        string          `json:"id"`         // Event UUID
	SessionID string          `json:"session_id"` // Session UUID
	Type      EventType       `json:"type"`       // Event type
	Timestamp time.Time       `json:"timestamp"`  // Event creation time
	Data      json.RawMessage `json:"data"`       // Event-specific payload
}

// EventType represents the type of session event
type EventType string

const (
	EventTypeSessionStarted EventType = "SessionStarted"
	EventTypeTurnSwitched   EventType = "TurnSwitched"
	EventTypeSessionPaused  EventType = "SessionPaused"
	EventTypeSessionResumed EventType = "SessionResumed"
	EventTypeTimeAdded      EventType = "TimeAdded"
	EventTypeSessionEnded   EventType = "SessionEnded"
	EventTypeTimerTicked    EventType = "TimerTicked"
	EventTypeLeaseClaimed   EventType = "LeaseClaimed"

	// EventTypeStateSync carries a full snapshot, sent on (re)connect.
	EventTypeStateSync EventType = "StateSync"
)

func mapEventType(eventType string) (EventType, error) {
	switch events.EventType(eventType) {
	case events.EventTypeSessionStarted:
		return EventTypeSessionStarted, nil
	case events.EventTypeTurnSwitched:
		return EventTypeTurnSwitched, nil
	case events.EventTypeSessionPaused:
		return EventTypeSessionPaused, nil
	case events.EventTypeSessionResumed:
		return EventTypeSessionResumed, nil
	case events.EventTypeTimeAdded:
		return EventTypeTimeAdded, nil
	case events.EventTypeSessionEnded:
		return EventTypeSessionEnded, nil
	case events.EventTypeTimerTicked:
		return EventTypeTimerTicked, nil
	case events.EventTypeLeaseClaimed:
		return EventTypeLeaseClaimed, nil
	default:
		return "", fmt.Errorf("unknown event type: %s", eventType)
	}
}

// statePayload matches the common shape of every session event payload:
// each one carries the full committed state.
type statePayload struct {
	State models.SessionState `json:"state"`
}

// ExtractState pulls the committed session state out of an event payload.
func ExtractState(event *SessionEvent) (models.SessionState, error) {
	var payload statePayload
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return models.SessionState{}, fmt.Errorf("unmarshal event state: %w", err)
	}
	return payload.State, nil
}

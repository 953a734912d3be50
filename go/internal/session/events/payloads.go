package events

import (
	"time"

	"github.com/christianlewis024/debater/go/internal/models"
)

// Event payload types shared between the session and gateway packages.
// Every payload carries the full committed state so subscribers can rebuild
// their view from any single event, ordered by State.Version.

// EventType names a committed session transition.
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
)

// SessionStartedPayload is the payload for a SessionStarted event.
type SessionStartedPayload struct {
	State     models.SessionState `json:"state"`
	StartedAt time.Time           `json:"started_at"`
}

// TurnSwitchedPayload is the payload for a TurnSwitched event.
type TurnSwitchedPayload struct {
	State      models.SessionState `json:"state"`
	Reason     models.SwitchReason `json:"reason"`
	SwitchedAt time.Time           `json:"switched_at"`
}

// SessionPausedPayload is the payload for a SessionPaused event.
type SessionPausedPayload struct {
	State    models.SessionState `json:"state"`
	PausedAt time.Time           `json:"paused_at"`
}

// SessionResumedPayload is the payload for a SessionResumed event.
type SessionResumedPayload struct {
	State     models.SessionState `json:"state"`
	ResumedAt time.Time           `json:"resumed_at"`
}

// TimeAddedPayload is the payload for a TimeAdded event.
type TimeAddedPayload struct {
	State        models.SessionState `json:"state"`
	AddedSeconds int                 `json:"added_seconds"`
	AddedAt      time.Time           `json:"added_at"`
}

// SessionEndedPayload is the payload for a SessionEnded event.
type SessionEndedPayload struct {
	State   models.SessionState `json:"state"`
	EndedAt time.Time           `json:"ended_at"`
}

// TimerTickedPayload is the payload for a TimerTicked event.
type TimerTickedPayload struct {
	State          models.SessionState `json:"state"`
	ElapsedSeconds int                 `json:"elapsed_seconds"`
	TickedAt       time.Time           `json:"ticked_at"`
}

// LeaseClaimedPayload is the payload for a LeaseClaimed event.
type LeaseClaimedPayload struct {
	State     models.SessionState `json:"state"`
	HolderID  string              `json:"holder_id"`
	ExpiresAt time.Time           `json:"expires_at"`
}

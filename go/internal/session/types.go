package session

import (
	"time"

	"github.com/google/uuid"
)

// CreateSessionRequest carries the fixed parameters of a new debate session.
// The surrounding platform creates the record once both debaters have joined.
type CreateSessionRequest struct {
	ID                  uuid.UUID `json:"id"`
	MaxTurns            int       `json:"max_turns"`
	TurnDurationSeconds int       `json:"turn_duration_seconds"`
}

// ControllerConfig tunes the CAS retry loop.
type ControllerConfig struct {
	// RetryAttempts bounds how many times a command is retried after a
	// version conflict before surfacing ErrBusy.
	RetryAttempts int
	// RetryBackoff is the first backoff delay; it doubles per attempt.
	RetryBackoff time.Duration
}

// DefaultControllerConfig returns the recommended retry budget.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		RetryAttempts: 3,
		RetryBackoff:  150 * time.Millisecond,
	}
}

// Package automute derives the desired microphone state for a participant
// from the session state. It is a pure function: the media layer on each
// client consumes the decision, nothing here touches hardware or network.
package automute

import (
	"github.com/christianlewis024/debater/go/internal/models"
)

// Decision is the resolver output. When Assert is false the media layer
// leaves the microphone alone.
type Decision struct {
	// Assert reports whether a desired state should be applied at all.
	Assert bool
	// MicEnabled is the desired microphone state when Assert is true.
	MicEnabled bool
	// ClearManualMute tells the caller to reset its manual-mute flag so the
	// participant's next turn defaults to unmuted.
	ClearManualMute bool
}

// Resolve maps (state, role, manual mute flag) to the desired mic state.
//
// Moderators and observers are never auto-controlled. Principals speak only
// on their own turn: off-turn the mic is forced closed and the manual-mute
// flag is cleared, on-turn the mic follows the participant's own choice.
func Resolve(state models.SessionState, role models.ParticipantRole, manuallyMuted bool) Decision {
	side, principal := role.Side()
	if !principal {
		return Decision{Assert: true, MicEnabled: true}
	}

	if !state.Started || state.Ended {
		return Decision{}
	}

	if state.CurrentTurn == side {
		return Decision{Assert: true, MicEnabled: !manuallyMuted}
	}

	return Decision{Assert: true, MicEnabled: false, ClearManualMute: true}
}

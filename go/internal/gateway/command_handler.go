package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/christianlewis024/debater/go/internal/membership"
	"github.com/christianlewis024/debater/go/internal/models"
	"github.com/christianlewis024/debater/go/internal/session"
	"github.com/christianlewis024/debater/go/internal/session/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// CommandHandler exposes the session commands over HTTP. The websocket feed is
// read-only; every mutation comes through here.
type CommandHandler struct {
	controller   *session.Controller
	stateManager *SessionStateManager
	roles        membership.RoleWriter
}

func NewCommandHandler(controller *session.Controller, sm *SessionStateManager, roles membership.RoleWriter) *CommandHandler {
	return &CommandHandler{controller: controller, stateManager: sm, roles: roles}
}

type createSessionRequest struct {
	ID                  string `json:"id"`
	MaxTurns            int    `json:"max_turns"`
	TurnDurationSeconds int    `json:"turn_duration_seconds"`
}

type switchTurnRequest struct {
	Reason string `json:"reason"`
}

type pauseRequest struct {
	ObservedRemainingSeconds int `json:"observed_remaining_seconds"`
}

type addTimeRequest struct {
	Seconds int `json:"seconds"`
}

type joinRequest struct {
	Role string `json:"role"`
}

type stateResponse struct {
	State models.SessionState `json:"state"`
	// DisplayRemainingSeconds interpolates between authoritative ticks.
	// Cosmetic; the state's own value is what the authority committed.
	DisplayRemainingSeconds int `json:"display_remaining_seconds"`
	// ServerTime lets clients offset their local clock when rendering.
	ServerTime time.Time `json:"server_time"`
}

// RegisterRoutes registers the command routes with an HTTP mux.
func (h *CommandHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/sessions", h.handleCreate)
	mux.HandleFunc("/api/sessions/", h.handleSessionRoute)
}

func (h *CommandHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	id := uuid.New()
	if req.ID != "" {
		parsed, err := uuid.Parse(req.ID)
		if err != nil {
			http.Error(w, "invalid id format", http.StatusBadRequest)
			return
		}
		id = parsed
	}

	state, err := h.controller.CreateSession(r.Context(), session.CreateSessionRequest{
		ID:                  id,
		MaxTurns:            req.MaxTurns,
		TurnDurationSeconds: req.TurnDurationSeconds,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeState(w, http.StatusCreated, state)
}

// handleSessionRoute dispatches /api/sessions/{id} and
// /api/sessions/{id}/{action}.
func (h *CommandHandler) handleSessionRoute(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "session id is required", http.StatusBadRequest)
		return
	}

	sessionID, err := uuid.Parse(parts[0])
	if err != nil {
		http.Error(w, "invalid session id format", http.StatusBadRequest)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.handleGetState(w, r, sessionID)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	caller := callerIdentity(r)
	var state *models.SessionState

	switch parts[1] {
	case "start":
		state, err = h.controller.Start(r.Context(), sessionID, caller)
	case "switch":
		var req switchTurnRequest
		if decodeErr := decodeOptionalBody(r, &req); decodeErr != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		reason := models.SwitchReasonModeratorSkip
		if req.Reason != "" {
			switch models.SwitchReason(req.Reason) {
			case models.SwitchReasonExpired, models.SwitchReasonModeratorSkip:
				reason = models.SwitchReason(req.Reason)
			default:
				http.Error(w, "invalid reason: "+req.Reason, http.StatusBadRequest)
				return
			}
		}
		state, err = h.controller.SwitchTurn(r.Context(), sessionID, caller, reason)
	case "pause":
		var req pauseRequest
		if decodeErr := decodeOptionalBody(r, &req); decodeErr != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		state, err = h.controller.Pause(r.Context(), sessionID, caller, req.ObservedRemainingSeconds)
	case "resume":
		state, err = h.controller.Resume(r.Context(), sessionID, caller)
	case "add-time":
		var req addTimeRequest
		if decodeErr := decodeOptionalBody(r, &req); decodeErr != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		state, err = h.controller.AddTime(r.Context(), sessionID, caller, req.Seconds)
	case "end":
		state, err = h.controller.End(r.Context(), sessionID, caller)
	case "join":
		h.handleJoin(w, r, sessionID, caller)
		return
	default:
		http.Error(w, "unknown action: "+parts[1], http.StatusNotFound)
		return
	}

	if err != nil {
		log.Debug().
			Err(err).
			Str("session_id", sessionID.String()).
			Str("action", parts[1]).
			Str("caller", caller).
			Msg("command rejected")
		h.writeError(w, err)
		return
	}
	h.writeState(w, http.StatusOK, state)
}

// handleJoin assigns the caller a seat. Development-grade: any caller may
// take any seat, the auth layer in front owns the real policy.
func (h *CommandHandler) handleJoin(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID, caller string) {
	if h.roles == nil {
		http.Error(w, "seat assignment is not enabled", http.StatusNotImplemented)
		return
	}

	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	role := models.ParticipantRole(req.Role)
	switch role {
	case models.RoleSideA, models.RoleSideB, models.RolePrivileged, models.RoleObserver:
	default:
		http.Error(w, "invalid role: "+req.Role, http.StatusBadRequest)
		return
	}

	if err := h.roles.SetRole(r.Context(), sessionID, caller, role); err != nil {
		h.writeError(w, err)
		return
	}

	log.Info().
		Str("session_id", sessionID.String()).
		Str("identity", caller).
		Str("role", string(role)).
		Msg("participant joined")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"identity": caller, "role": string(role)})
}

func (h *CommandHandler) handleGetState(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID) {
	state, err := h.controller.GetSession(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.stateManager.SeedSnapshot(sessionID, *state)
	h.writeState(w, http.StatusOK, state)
}

func (h *CommandHandler) writeState(w http.ResponseWriter, status int, state *models.SessionState) {
	display := state.TimeRemainingSeconds
	if est, ok := h.stateManager.EstimateRemaining(state.ID, time.Now()); ok {
		display = est
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(stateResponse{
		State:                   *state,
		DisplayRemainingSeconds: display,
		ServerTime:              time.Now().UTC(),
	})
}

// writeError maps command errors to HTTP statuses.
func (h *CommandHandler) writeError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, session.ErrPreconditionFailed), errors.Is(err, session.ErrLeaseNotHeld):
		status = http.StatusConflict
	case errors.Is(err, store.ErrVersionConflict):
		status = http.StatusConflict
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrUnavailable):
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// callerIdentity resolves who is issuing the command. In production this
// comes from the auth token; header and query parameter cover development.
func callerIdentity(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	if id := r.URL.Query().Get("user_id"); id != "" {
		return id
	}
	return "anonymous"
}

// decodeOptionalBody decodes a JSON body when one is present. Empty bodies
// leave the request struct zeroed.
func decodeOptionalBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/christianlewis024/debater/go/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SnapshotProvider fetches authoritative state when the gateway has not yet
// seen any event for a session.
type SnapshotProvider interface {
	GetSession(ctx context.Context, id uuid.UUID) (*models.SessionState, error)
}

// WebSocketHandler upgrades client connections and seeds each one with a
// state snapshot, so a reconnecting client never waits for the next event to
// learn where the session stands.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	stateManager      *SessionStateManager
	provider          SnapshotProvider
}

func NewWebSocketHandler(cm *ConnectionManager, sm *SessionStateManager, provider SnapshotProvider) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		stateManager:      sm,
		provider:          provider,
	}
}

// HandleSessionConnection handles websocket connections for one session.
func (h *WebSocketHandler) HandleSessionConnection(w http.ResponseWriter, r *http.Request) {
	sessionIDStr := r.URL.Query().Get("session_id")
	if sessionIDStr == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	sessionID, err := uuid.Parse(sessionIDStr)
	if err != nil {
		http.Error(w, "invalid session_id format", http.StatusBadRequest)
		return
	}

	// In production this comes from the auth token, not a query parameter.
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "anonymous"
	}

	conn, err := h.connectionManager.UpgradeConnection(w, r, userID, sessionID)
	if err != nil {
		log.Error().
			Err(err).
			Str("session_id", sessionID.String()).
			Str("user_id", userID).
			Msg("failed to upgrade websocket connection")
		return
	}

	h.pushSnapshot(r.Context(), conn, sessionID)
}

// pushSnapshot sends the current state to a freshly connected client.
func (h *WebSocketHandler) pushSnapshot(ctx context.Context, conn *Connection, sessionID uuid.UUID) {
	state, ok := h.stateManager.Snapshot(sessionID)
	if !ok && h.provider != nil {
		fetched, err := h.provider.GetSession(ctx, sessionID)
		if err != nil {
			log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("no snapshot available for new connection")
			return
		}
		state = *fetched
		h.stateManager.SeedSnapshot(sessionID, state)
		ok = true
	}
	if !ok {
		return
	}

	data, err := json.Marshal(statePayload{State: state})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal snapshot")
		return
	}

	h.connectionManager.SendToConnection(conn, &SessionEvent{
		ID:        uuid.New().String(),
		SessionID: sessionID.String(),
		Type:      EventTypeStateSync,
		Timestamp: time.Now(),
		Data:      data,
	})
}

// HandleConnectionStats reports active connection counts.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.connectionManager.GetConnectionStats())
}

// RegisterRoutes registers websocket routes with an HTTP mux.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/session", h.HandleSessionConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}

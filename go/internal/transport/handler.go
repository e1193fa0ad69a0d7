package transport

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// Handler wires the ConnectionManager to the HTTP mux: it authenticates
// the upgrade request and hands the socket to the manager.
type Handler struct {
	manager *ConnectionManager
	auth    Authenticator
}

func NewHandler(manager *ConnectionManager, auth Authenticator) *Handler {
	return &Handler{manager: manager, auth: auth}
}

// HandleConnect handles the /ws upgrade request.
func (h *Handler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.Authenticate(r)
	if err != nil {
		log.Warn().Err(err).Msg("rejected websocket upgrade")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.manager.Upgrade(w, r, userID); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("failed to upgrade websocket connection")
		http.Error(w, "failed to upgrade connection", http.StatusInternalServerError)
		return
	}
}

// RegisterRoutes registers the WebSocket route with mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleConnect)
}

package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/adi-253/Talkie/chatsync/internal/auth"
	"github.com/adi-253/Talkie/chatsync/internal/services"
)

// upgrader upgrades HTTP connections to WebSocket
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow connections from any origin (CORS handled by middleware)
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler handles WebSocket connections
type Handler struct {
	hub           *Hub
	conversations *services.ConversationService
	messages      *services.MessageService
}

// NewHandler creates a new WebSocket handler.
func NewHandler(hub *Hub, conversations *services.ConversationService, messages *services.MessageService) *Handler {
	return &Handler{hub: hub, conversations: conversations, messages: messages}
}

// ServeWS handles WebSocket upgrade requests at /ws. The caller must already
// be authenticated; rooms are joined afterwards with join_chat events.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.User(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := NewClient(h.hub, h, conn, user)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

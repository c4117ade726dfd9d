package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/adi-253/Talkie/chatsync/internal/auth"
	"github.com/adi-253/Talkie/chatsync/internal/models"
	"github.com/adi-253/Talkie/chatsync/internal/services"
)

// ConversationHandler serves workspace chat lookups.
type ConversationHandler struct {
	conversations *services.ConversationService
}

// NewConversationHandler creates a new ConversationHandler instance.
func NewConversationHandler(conversations *services.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

// GetWorkspaceChat handles GET /chat/workspace/{workspaceId}
// Returns the workspace chat, creating it on first use, with the caller's unread count.
func (h *ConversationHandler) GetWorkspaceChat(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceId")
	if workspaceID == "" {
		http.Error(w, "workspace ID is required", http.StatusBadRequest)
		return
	}
	user, _ := auth.User(r.Context())

	chat := h.conversations.ForWorkspace(workspaceID)
	h.conversations.AddMember(chat.ID, user.ID)

	writeJSON(w, http.StatusOK, models.WorkspaceChatResponse{
		Chat:        chat,
		UnreadCount: h.conversations.Unread(chat.ID, user.ID),
	})
}

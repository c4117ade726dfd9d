package chat

import (
	"context"

	"github.com/adi-253/Talkie/chatsync/internal/events"
	"github.com/adi-253/Talkie/chatsync/internal/models"
)

// MessageAPI is the slice of the REST client a session needs.
type MessageAPI interface {
	FetchMessages(ctx context.Context, chatID string, limit int, cursor string) (*models.MessagePage, error)
	SendMessage(ctx context.Context, chatID string, req models.SendMessageRequest, uploads []models.Upload) (*models.Message, error)
	EditMessage(ctx context.Context, messageID, content string) (*models.Message, error)
	DeleteMessage(ctx context.Context, messageID string) error
}

// ConversationAPI resolves the chat attached to a workspace.
type ConversationAPI interface {
	GetWorkspaceChat(ctx context.Context, workspaceID string) (*models.WorkspaceChatResponse, error)
}

// Realtime is the room-scoped event channel.
type Realtime interface {
	Join(chatID string) error
	Leave(chatID string) error
	Emit(e events.Event) error
	Subscribe(fn func(events.Event)) (unsubscribe func())
}

package models

import "time"

// Conversation is the chat attached to a workspace.
type Conversation struct {
	// ID is the chat identifier used for message endpoints and realtime rooms
	ID string `json:"id"`

	// WorkspaceID links the chat to its owning workspace
	WorkspaceID string `json:"workspaceId"`

	// Name is the display name of the chat
	Name string `json:"name"`

	CreatedAt time.Time `json:"createdAt"`

	// LastActiveAt is bumped on every message mutation
	LastActiveAt time.Time `json:"lastActiveAt"`
}

// WorkspaceChatResponse is returned by GET /chat/workspace/{workspaceId}
type WorkspaceChatResponse struct {
	Chat        Conversation `json:"chat"`
	UnreadCount int          `json:"unreadCount"`
}

// Participant identifies a user taking part in a chat.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

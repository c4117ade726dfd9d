package models

import "time"

// MessageTypeText is the default message type for plain chat messages.
const MessageTypeText = "text"

// Message represents a chat message as returned by the chat API and carried
// by realtime events.
type Message struct {
	// ID is assigned by the server and never changes
	ID string `json:"id"`

	// ChatID is the conversation this message belongs to
	ChatID string `json:"chatId"`

	// AuthorID is the sender's user ID
	AuthorID string `json:"authorId"`

	// AuthorName is the sender's display name
	AuthorName string `json:"authorName,omitempty"`

	// Content is nil for attachment-only messages
	Content *string `json:"content"`

	// MessageType is the message kind, "text" unless the server says otherwise
	MessageType string `json:"messageType,omitempty"`

	// Attachments are fixed once the message has been created
	Attachments []Attachment `json:"attachments,omitempty"`

	// ReplyToID references another message in the same chat
	ReplyToID *string `json:"replyToId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Edited is set once the content has been changed after creation
	Edited bool `json:"edited"`
}

// Text returns the message content, or an empty string for attachment-only messages.
func (m Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// Clone returns a copy that shares no pointers or slices with m.
func (m Message) Clone() Message {
	c := m
	if m.Content != nil {
		v := *m.Content
		c.Content = &v
	}
	if m.ReplyToID != nil {
		v := *m.ReplyToID
		c.ReplyToID = &v
	}
	if m.Attachments != nil {
		c.Attachments = make([]Attachment, len(m.Attachments))
		copy(c.Attachments, m.Attachments)
	}
	return c
}

// Attachment describes a file uploaded alongside a message.
type Attachment struct {
	ID       string `json:"id"`
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}

// Upload is a file selected locally for sending with a message.
type Upload struct {
	FileName string
	MimeType string
	Data     []byte
}

// Size returns the upload size in bytes.
func (u Upload) Size() int64 {
	return int64(len(u.Data))
}

// SendMessageRequest is the JSON body for creating a message
type SendMessageRequest struct {
	Content     *string `json:"content"`
	MessageType string  `json:"messageType"`
	ReplyToID   *string `json:"replyToId,omitempty"`
}

// EditMessageRequest is the JSON body for editing a message
type EditMessageRequest struct {
	Content string `json:"content"`
}

// MessagePage is one page of history, ordered oldest first.
// NextCursor points at the page preceding this one.
type MessagePage struct {
	Messages   []Message `json:"messages"`
	HasMore    bool      `json:"hasMore"`
	NextCursor string    `json:"nextCursor,omitempty"`
}

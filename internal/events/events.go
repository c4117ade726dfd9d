// Package events defines the realtime wire protocol: a closed set of typed
// events carried in {"type": ..., "payload": ...} frames.
package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/adi-253/Talkie/chatsync/internal/models"
)

// Type is the event name on the wire.
type Type string

// Client to server.
const (
	TypeJoinChat    Type = "join_chat"
	TypeLeaveChat   Type = "leave_chat"
	TypeSendMessage Type = "send_message"
	TypeTyping      Type = "typing"
	TypeStopTyping  Type = "stop_typing"
	TypeMarkAsRead  Type = "mark_as_read"
)

// Server to client.
const (
	TypeNewMessage     Type = "new_message"
	TypeMessageUpdated Type = "message_updated"
	TypeMessageDeleted Type = "message_deleted"
	TypeUserTyping     Type = "user_typing"
	TypeUserStopTyping Type = "user_stop_typing"
	TypeError          Type = "error"
)

// ErrUnknownType is returned by Decode for frames with an unrecognised type.
var ErrUnknownType = errors.New("unknown event type")

// Event is one realtime event. The set of implementations is closed: only the
// types declared in this package satisfy it.
type Event interface {
	Type() Type
	event()
}

// Frame is the envelope every event travels in
type Frame struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewMessage announces a message created in a chat.
type NewMessage struct {
	Message models.Message
}

// MessageUpdated carries the new state of an edited message.
type MessageUpdated struct {
	Message models.Message
}

// MessageDeleted announces the removal of a message.
type MessageDeleted struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
}

// UserTyping reports that a participant started composing.
type UserTyping struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

// UserStopTyping reports that a participant stopped composing.
type UserStopTyping struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

// Error is a server-side failure pushed over the channel.
type Error struct {
	Message string `json:"message"`
}

// JoinChat subscribes the connection to a chat room.
type JoinChat struct {
	ChatID string `json:"chatId"`
}

// LeaveChat unsubscribes the connection from a chat room.
type LeaveChat struct {
	ChatID string `json:"chatId"`
}

// SendMessage creates a message over the realtime channel instead of REST.
type SendMessage struct {
	ChatID      string  `json:"chatId"`
	Content     *string `json:"content"`
	MessageType string  `json:"messageType,omitempty"`
	ReplyToID   *string `json:"replyToId,omitempty"`
}

// Typing is emitted on local keystrokes.
type Typing struct {
	ChatID   string `json:"chatId"`
	UserName string `json:"userName,omitempty"`
}

// StopTyping is emitted once the local user has been idle.
type StopTyping struct {
	ChatID string `json:"chatId"`
}

// MarkAsRead resets the caller's unread counter for a chat.
type MarkAsRead struct {
	ChatID string `json:"chatId"`
}

func (NewMessage) Type() Type     { return TypeNewMessage }
func (MessageUpdated) Type() Type { return TypeMessageUpdated }
func (MessageDeleted) Type() Type { return TypeMessageDeleted }
func (UserTyping) Type() Type     { return TypeUserTyping }
func (UserStopTyping) Type() Type { return TypeUserStopTyping }
func (Error) Type() Type          { return TypeError }
func (JoinChat) Type() Type       { return TypeJoinChat }
func (LeaveChat) Type() Type      { return TypeLeaveChat }
func (SendMessage) Type() Type    { return TypeSendMessage }
func (Typing) Type() Type         { return TypeTyping }
func (StopTyping) Type() Type     { return TypeStopTyping }
func (MarkAsRead) Type() Type     { return TypeMarkAsRead }

func (NewMessage) event()     {}
func (MessageUpdated) event() {}
func (MessageDeleted) event() {}
func (UserTyping) event()     {}
func (UserStopTyping) event() {}
func (Error) event()          {}
func (JoinChat) event()       {}
func (LeaveChat) event()      {}
func (SendMessage) event()    {}
func (Typing) event()         {}
func (StopTyping) event()     {}
func (MarkAsRead) event()     {}

// Encode wraps an event in a frame and marshals it.
func Encode(e Event) ([]byte, error) {
	var payload any = e
	switch v := e.(type) {
	case NewMessage:
		payload = v.Message
	case MessageUpdated:
		payload = v.Message
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", e.Type(), err)
	}
	return json.Marshal(Frame{Type: e.Type(), Payload: raw})
}

// Decode parses a frame into its typed event.
func Decode(data []byte) (Event, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse frame: %w", err)
	}

	var (
		e   Event
		err error
	)
	switch f.Type {
	case TypeNewMessage:
		var m models.Message
		err = unmarshalPayload(f.Payload, &m)
		e = NewMessage{Message: m}
	case TypeMessageUpdated:
		var m models.Message
		err = unmarshalPayload(f.Payload, &m)
		e = MessageUpdated{Message: m}
	case TypeMessageDeleted:
		var v MessageDeleted
		err = unmarshalPayload(f.Payload, &v)
		e = v
	case TypeUserTyping:
		var v UserTyping
		err = unmarshalPayload(f.Payload, &v)
		e = v
	case TypeUserStopTyping:
		var v UserStopTyping
		err = unmarshalPayload(f.Payload, &v)
		e = v
	case TypeError:
		var v Error
		err = unmarshalPayload(f.Payload, &v)
		e = v
	case TypeJoinChat:
		var v JoinChat
		err = unmarshalPayload(f.Payload, &v)
		e = v
	case TypeLeaveChat:
		var v LeaveChat
		err = unmarshalPayload(f.Payload, &v)
		e = v
	case TypeSendMessage:
		var v SendMessage
		err = unmarshalPayload(f.Payload, &v)
		e = v
	case TypeTyping:
		var v Typing
		err = unmarshalPayload(f.Payload, &v)
		e = v
	case TypeStopTyping:
		var v StopTyping
		err = unmarshalPayload(f.Payload, &v)
		e = v
	case TypeMarkAsRead:
		var v MarkAsRead
		err = unmarshalPayload(f.Payload, &v)
		e = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, f.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s payload: %w", f.Type, err)
	}
	return e, nil
}

func unmarshalPayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// ChatID returns the room an event is scoped to, or "" for unscoped events.
func ChatID(e Event) string {
	switch v := e.(type) {
	case NewMessage:
		return v.Message.ChatID
	case MessageUpdated:
		return v.Message.ChatID
	case MessageDeleted:
		return v.ChatID
	case UserTyping:
		return v.ChatID
	case UserStopTyping:
		return v.ChatID
	case JoinChat:
		return v.ChatID
	case LeaveChat:
		return v.ChatID
	case SendMessage:
		return v.ChatID
	case Typing:
		return v.ChatID
	case StopTyping:
		return v.ChatID
	case MarkAsRead:
		return v.ChatID
	}
	return ""
}

package websocket

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/adi-253/Talkie/chatsync/internal/events"
	"github.com/adi-253/Talkie/chatsync/internal/models"
	"github.com/adi-253/Talkie/chatsync/internal/services"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	sendBufferSize = 256

	// Inbound events per second a single connection may send, with bursts
	eventRate  = 20
	eventBurst = 40
)

// Client represents a single WebSocket connection. One connection may join
// any number of chat rooms.
type Client struct {
	hub     *Hub
	handler *Handler

	// WebSocket connection
	conn *websocket.Conn

	// Buffered channel of outbound messages, closed only by the hub
	send chan []byte

	// User is the authenticated caller
	User models.Participant

	limiter *rate.Limiter
	logger  zerolog.Logger

	// typingIn holds the chats this client is currently typing in.
	// Touched only by ReadPump.
	typingIn map[string]bool
}

// NewClient creates a new Client instance.
func NewClient(hub *Hub, handler *Handler, conn *websocket.Conn, user models.Participant) *Client {
	return &Client{
		hub:      hub,
		handler:  handler,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		User:     user,
		limiter:  rate.NewLimiter(rate.Limit(eventRate), eventBurst),
		logger:   log.With().Str("component", "relay").Str("user_id", user.ID).Logger(),
		typingIn: make(map[string]bool),
	}
}

// ReadPump pumps events from the WebSocket connection into the relay.
// This runs in its own goroutine per client.
func (c *Client) ReadPump() {
	defer func() {
		for chatID := range c.typingIn {
			c.stopTyping(chatID)
		}
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("Read error")
			}
			return
		}

		if !c.limiter.Allow() {
			c.hub.sendTo(c, events.Error{Message: "rate limit exceeded"})
			continue
		}

		e, err := events.Decode(data)
		if err != nil {
			c.logger.Debug().Err(err).Msg("Rejected frame")
			c.hub.sendTo(c, events.Error{Message: err.Error()})
			continue
		}
		c.handle(e)
	}
}

// handle applies one inbound event
func (c *Client) handle(e events.Event) {
	conversations := c.handler.conversations

	switch v := e.(type) {
	case events.JoinChat:
		if !conversations.Exists(v.ChatID) {
			c.hub.sendTo(c, events.Error{Message: services.ErrChatNotFound.Error()})
			return
		}
		conversations.AddMember(v.ChatID, c.User.ID)
		c.hub.Join(c, v.ChatID)

	case events.LeaveChat:
		if c.typingIn[v.ChatID] {
			c.stopTyping(v.ChatID)
		}
		c.hub.Leave(c, v.ChatID)

	case events.Typing:
		if !c.hub.InRoom(c, v.ChatID) {
			c.hub.sendTo(c, events.Error{Message: "join the chat before typing"})
			return
		}
		name := v.UserName
		if name == "" {
			name = c.User.Name
		}
		c.typingIn[v.ChatID] = true
		c.hub.publish(v.ChatID, events.UserTyping{ChatID: v.ChatID, UserID: c.User.ID, UserName: name}, c)

	case events.StopTyping:
		if c.hub.InRoom(c, v.ChatID) {
			c.stopTyping(v.ChatID)
		}

	case events.MarkAsRead:
		conversations.MarkRead(v.ChatID, c.User.ID)

	case events.SendMessage:
		_, err := c.handler.messages.Create(v.ChatID, services.NewMessageInput{
			Author:      c.User,
			Content:     v.Content,
			MessageType: v.MessageType,
			ReplyToID:   v.ReplyToID,
		})
		if err != nil {
			c.hub.sendTo(c, events.Error{Message: err.Error()})
		}

	default:
		c.hub.sendTo(c, events.Error{Message: "unsupported event " + string(e.Type())})
	}
}

func (c *Client) stopTyping(chatID string) {
	delete(c.typingIn, chatID)
	c.hub.publish(chatID, events.UserStopTyping{ChatID: chatID, UserID: c.User.ID}, c)
}

// WritePump pumps messages from the hub to the WebSocket connection.
// This runs in its own goroutine per client.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			// One frame per event; clients decode each frame as a single JSON document
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

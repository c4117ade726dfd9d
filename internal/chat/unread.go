package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/adi-253/Talkie/chatsync/internal/config"
	"github.com/adi-253/Talkie/chatsync/internal/events"
	"github.com/adi-253/Talkie/chatsync/internal/metrics"
	"github.com/adi-253/Talkie/chatsync/internal/realtime"
)

// UnreadCounter counts messages from other users in a workspace chat.
type UnreadCounter struct {
	workspaceID string
	selfID      string
	api         ConversationAPI
	rt          Realtime
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	updates     chan struct{}

	mu          sync.Mutex
	chatID      string
	count       int
	unsubscribe func()
}

// NewUnreadCounter creates a counter for the configured workspace.
func NewUnreadCounter(cfg *config.Config, conversations ConversationAPI, rt Realtime, opts ...Option) *UnreadCounter {
	o := buildOptions(opts)
	return &UnreadCounter{
		workspaceID: cfg.WorkspaceID,
		selfID:      cfg.UserID,
		api:         conversations,
		rt:          rt,
		metrics:     o.metrics,
		logger:      log.With().Str("component", "unread").Str("workspace_id", cfg.WorkspaceID).Logger(),
		updates:     make(chan struct{}, 1),
	}
}

// Mount fetches the workspace chat and its unread count, then follows new
// messages in that chat.
func (u *UnreadCounter) Mount(ctx context.Context) error {
	resp, err := u.api.GetWorkspaceChat(ctx, u.workspaceID)
	if err != nil {
		return err
	}

	u.mu.Lock()
	if u.unsubscribe != nil {
		u.mu.Unlock()
		return nil
	}
	u.chatID = resp.Chat.ID
	u.count = resp.UnreadCount
	u.unsubscribe = u.rt.Subscribe(u.receive)
	chatID, count := u.chatID, u.count
	u.mu.Unlock()

	if err := u.rt.Join(chatID); err != nil {
		u.logger.Warn().Err(err).Msg("Failed to join workspace chat")
	}
	u.metrics.SetUnread(count)
	u.changed()
	u.logger.Debug().Str("chat_id", chatID).Int("unread", count).Msg("Unread counter mounted")
	return nil
}

func (u *UnreadCounter) receive(e events.Event) {
	nm, ok := e.(events.NewMessage)
	if !ok {
		return
	}

	u.mu.Lock()
	if nm.Message.ChatID != u.chatID || nm.Message.AuthorID == u.selfID {
		u.mu.Unlock()
		return
	}
	u.count++
	count := u.count
	u.mu.Unlock()

	u.metrics.SetUnread(count)
	u.changed()
}

// ChatID returns the workspace chat id once mounted.
func (u *UnreadCounter) ChatID() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.chatID
}

// Count returns the current unread count.
func (u *UnreadCounter) Count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.count
}

// Updates receives a value whenever the count changes. Bursts are coalesced.
func (u *UnreadCounter) Updates() <-chan struct{} {
	return u.updates
}

// MarkAsRead resets the count and tells the server.
func (u *UnreadCounter) MarkAsRead() error {
	u.mu.Lock()
	if u.unsubscribe == nil {
		u.mu.Unlock()
		return ErrNotMounted
	}
	u.count = 0
	chatID := u.chatID
	u.mu.Unlock()

	u.metrics.SetUnread(0)
	u.changed()
	return u.rt.Emit(events.MarkAsRead{ChatID: chatID})
}

// Unmount stops following the chat.
func (u *UnreadCounter) Unmount() error {
	u.mu.Lock()
	unsubscribe, chatID := u.unsubscribe, u.chatID
	u.unsubscribe = nil
	u.mu.Unlock()

	if unsubscribe == nil {
		return nil
	}
	unsubscribe()
	if err := u.rt.Leave(chatID); err != nil && !errors.Is(err, realtime.ErrClosed) {
		return err
	}
	return nil
}

func (u *UnreadCounter) changed() {
	select {
	case u.updates <- struct{}{}:
	default:
	}
}

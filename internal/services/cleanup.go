package services

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// CleanupService handles automatic deletion of inactive conversations.
// It runs as a background goroutine and periodically checks for stale chats.
type CleanupService struct {
	conversations *ConversationService
	messages      *MessageService
	clock         clockwork.Clock
	interval      time.Duration
	retention     time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once
	done          chan struct{}
}

// NewCleanupService creates a new cleanup service.
//   - interval: how often to check for inactive conversations
//   - retention: how long a conversation can be idle before deletion
func NewCleanupService(conversations *ConversationService, messages *MessageService, clock clockwork.Clock, interval, retention time.Duration) *CleanupService {
	return &CleanupService{
		conversations: conversations,
		messages:      messages,
		clock:         clock,
		interval:      interval,
		retention:     retention,
		stopChan:      make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start begins the background cleanup worker.
// It blocks until Stop is called, so run it with 'go'.
func (s *CleanupService) Start() {
	defer close(s.done)
	log.Info().Dur("interval", s.interval).Dur("retention", s.retention).Msg("Cleanup service started")

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			s.Sweep()
		case <-s.stopChan:
			log.Info().Msg("Cleanup service stopped")
			return
		}
	}
}

// Stop shuts down the worker and waits for it to exit. Start must have been called.
func (s *CleanupService) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	<-s.done
}

// Sweep deletes every conversation idle past the retention period and
// returns how many were removed.
func (s *CleanupService) Sweep() int {
	threshold := s.clock.Now().UTC().Add(-s.retention)

	idle := s.conversations.Inactive(threshold)
	for _, conv := range idle {
		s.messages.DeleteChatMessages(conv.ID)
		s.conversations.Delete(conv.ID)
		log.Info().Str("chat_id", conv.ID).Str("workspace_id", conv.WorkspaceID).Msg("Deleted inactive conversation")
	}
	return len(idle)
}

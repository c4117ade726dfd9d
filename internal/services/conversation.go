package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/adi-253/Talkie/chatsync/internal/models"
)

// ConversationService keeps one chat per workspace and the unread counters
// of its members. Everything lives in memory; the relay is a development
// stand-in for the real chat backend.
type ConversationService struct {
	clock clockwork.Clock

	mu          sync.RWMutex
	byID        map[string]*models.Conversation
	byWorkspace map[string]string
	// unread maps chatID -> userID -> count; a user becomes a member on first contact
	unread map[string]map[string]int
}

// NewConversationService creates a new ConversationService instance.
func NewConversationService(clock clockwork.Clock) *ConversationService {
	return &ConversationService{
		clock:       clock,
		byID:        make(map[string]*models.Conversation),
		byWorkspace: make(map[string]string),
		unread:      make(map[string]map[string]int),
	}
}

// ForWorkspace returns the workspace chat, creating it on first use.
func (s *ConversationService) ForWorkspace(workspaceID string) models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byWorkspace[workspaceID]; ok {
		return *s.byID[id]
	}

	now := s.clock.Now().UTC()
	conv := &models.Conversation{
		ID:           uuid.NewString(),
		WorkspaceID:  workspaceID,
		Name:         "Workspace chat",
		CreatedAt:    now,
		LastActiveAt: now,
	}
	s.byID[conv.ID] = conv
	s.byWorkspace[workspaceID] = conv.ID
	s.unread[conv.ID] = make(map[string]int)

	log.Info().Str("chat_id", conv.ID).Str("workspace_id", workspaceID).Msg("Created workspace chat")
	return *conv
}

// Get retrieves a conversation by its ID.
func (s *ConversationService) Get(chatID string) (models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.byID[chatID]
	if !ok {
		return models.Conversation{}, ErrChatNotFound
	}
	return *conv, nil
}

// Exists reports whether chatID is a known conversation.
func (s *ConversationService) Exists(chatID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[chatID]
	return ok
}

// Touch updates the last activity timestamp of a conversation.
func (s *ConversationService) Touch(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.byID[chatID]; ok {
		conv.LastActiveAt = s.clock.Now().UTC()
	}
}

// AddMember makes userID a member so their unread count is tracked.
func (s *ConversationService) AddMember(chatID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if members, ok := s.unread[chatID]; ok {
		if _, known := members[userID]; !known {
			members[userID] = 0
		}
	}
}

// Unread returns the unread count of userID in chatID.
func (s *ConversationService) Unread(chatID, userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread[chatID][userID]
}

// IncrementUnread bumps the count of every member except the author.
func (s *ConversationService) IncrementUnread(chatID, authorID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID := range s.unread[chatID] {
		if userID != authorID {
			s.unread[chatID][userID]++
		}
	}
}

// MarkRead resets the unread count of userID.
func (s *ConversationService) MarkRead(chatID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if members, ok := s.unread[chatID]; ok {
		members[userID] = 0
	}
}

// Inactive returns the conversations idle since before threshold.
func (s *ConversationService) Inactive(threshold time.Time) []models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idle := lo.Filter(lo.Values(s.byID), func(c *models.Conversation, _ int) bool {
		return c.LastActiveAt.Before(threshold)
	})
	return lo.Map(idle, func(c *models.Conversation, _ int) models.Conversation { return *c })
}

// Delete removes a conversation and its unread counters.
func (s *ConversationService) Delete(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.byID[chatID]
	if !ok {
		return
	}
	delete(s.byWorkspace, conv.WorkspaceID)
	delete(s.byID, chatID)
	delete(s.unread, chatID)
}

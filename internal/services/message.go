package services

import (
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/adi-253/Talkie/chatsync/internal/events"
	"github.com/adi-253/Talkie/chatsync/internal/models"
	"github.com/adi-253/Talkie/chatsync/internal/validation"
)

const (
	DefaultPageSize = 30
	MaxPageSize     = 100
)

// Publisher fans an event out to everyone in a chat room.
type Publisher interface {
	Publish(chatID string, e events.Event)
}

// stored is a message plus its position in the chat; seq backs the cursor
type stored struct {
	seq int64
	msg models.Message
}

// MessageService handles message storage and retrieval.
// Every mutation is published to the chat room, the author included.
type MessageService struct {
	conversations *ConversationService
	files         *FileService
	publisher     Publisher
	clock         clockwork.Clock

	mu       sync.RWMutex
	messages map[string][]stored // chatID -> ascending by seq
	index    map[string]string   // messageID -> chatID
	seq      int64
}

// NewMessageService creates a new MessageService instance.
func NewMessageService(conversations *ConversationService, files *FileService, publisher Publisher, clock clockwork.Clock) *MessageService {
	return &MessageService{
		conversations: conversations,
		files:         files,
		publisher:     publisher,
		clock:         clock,
		messages:      make(map[string][]stored),
		index:         make(map[string]string),
	}
}

// NewMessageInput is what a caller supplies to create a message.
type NewMessageInput struct {
	Author      models.Participant
	Content     *string
	MessageType string
	ReplyToID   *string
	Uploads     []models.Upload
}

// Create validates and stores a new message, then announces it to the room.
func (s *MessageService) Create(chatID string, in NewMessageInput) (models.Message, error) {
	if !s.conversations.Exists(chatID) {
		return models.Message{}, ErrChatNotFound
	}

	content := ""
	if in.Content != nil {
		content = *in.Content
	}
	files := lo.Map(in.Uploads, func(u models.Upload, _ int) validation.File {
		return validation.File{Name: u.FileName, MimeType: u.MimeType, Size: u.Size()}
	})
	if err := validation.Message(content, files); err != nil {
		return models.Message{}, err
	}

	if in.ReplyToID != nil {
		if target, ok := s.lookup(*in.ReplyToID); !ok || target.ChatID != chatID {
			return models.Message{}, ErrReplyNotFound
		}
	}

	msgType := in.MessageType
	if msgType == "" {
		msgType = models.MessageTypeText
	}
	if strings.TrimSpace(content) == "" {
		in.Content = nil
	}

	now := s.clock.Now().UTC()
	msg := models.Message{
		ID:          uuid.NewString(),
		ChatID:      chatID,
		AuthorID:    in.Author.ID,
		AuthorName:  in.Author.Name,
		Content:     in.Content,
		MessageType: msgType,
		ReplyToID:   in.ReplyToID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	msg.Attachments = lo.Map(in.Uploads, func(u models.Upload, _ int) models.Attachment {
		return s.files.Save(msg.ID, u)
	})

	s.mu.Lock()
	s.seq++
	s.messages[chatID] = append(s.messages[chatID], stored{seq: s.seq, msg: msg})
	s.index[msg.ID] = chatID
	s.mu.Unlock()

	s.conversations.AddMember(chatID, in.Author.ID)
	s.conversations.IncrementUnread(chatID, in.Author.ID)
	s.conversations.Touch(chatID)

	log.Debug().Str("chat_id", chatID).Str("message_id", msg.ID).Str("author_id", msg.AuthorID).Msg("Stored message")
	s.publisher.Publish(chatID, events.NewMessage{Message: msg.Clone()})
	return msg.Clone(), nil
}

// List returns the newest limit messages older than cursor, oldest first.
// An empty cursor starts from the newest message.
func (s *MessageService) List(chatID string, limit int, cursor string) (models.MessagePage, error) {
	if !s.conversations.Exists(chatID) {
		return models.MessagePage{}, ErrChatNotFound
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)

	before := int64(-1)
	if cursor != "" {
		v, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil || v <= 0 {
			return models.MessagePage{}, ErrInvalidCursor
		}
		before = v
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[chatID]
	end := len(all)
	if before > 0 {
		end = lo.CountBy(all, func(st stored) bool { return st.seq < before })
	}
	start := max(0, end-limit)

	page := models.MessagePage{
		Messages: lo.Map(all[start:end], func(st stored, _ int) models.Message { return st.msg.Clone() }),
		HasMore:  start > 0,
	}
	if page.HasMore {
		page.NextCursor = strconv.FormatInt(all[start].seq, 10)
	}
	return page, nil
}

// Get retrieves a message by its ID.
func (s *MessageService) Get(messageID string) (models.Message, error) {
	msg, ok := s.lookup(messageID)
	if !ok {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, nil
}

// Edit replaces the content of a message. Only its author may edit it.
func (s *MessageService) Edit(messageID, userID, content string) (models.Message, error) {
	if err := validation.Edit(content); err != nil {
		return models.Message{}, err
	}

	s.mu.Lock()
	st, err := s.find(messageID)
	if err != nil {
		s.mu.Unlock()
		return models.Message{}, err
	}
	if st.msg.AuthorID != userID {
		s.mu.Unlock()
		return models.Message{}, ErrNotAuthor
	}
	st.msg.Content = &content
	st.msg.Edited = true
	st.msg.UpdatedAt = s.clock.Now().UTC()
	msg := st.msg.Clone()
	s.mu.Unlock()

	s.conversations.Touch(msg.ChatID)
	s.publisher.Publish(msg.ChatID, events.MessageUpdated{Message: msg.Clone()})
	return msg, nil
}

// Delete removes a message and its files. Only its author may delete it.
func (s *MessageService) Delete(messageID, userID string) error {
	s.mu.Lock()
	st, err := s.find(messageID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if st.msg.AuthorID != userID {
		s.mu.Unlock()
		return ErrNotAuthor
	}
	chatID := st.msg.ChatID
	s.messages[chatID] = lo.Reject(s.messages[chatID], func(x stored, _ int) bool { return x.msg.ID == messageID })
	delete(s.index, messageID)
	s.mu.Unlock()

	s.files.DeleteForMessage(messageID)
	s.conversations.Touch(chatID)
	s.publisher.Publish(chatID, events.MessageDeleted{ChatID: chatID, MessageID: messageID})
	return nil
}

// DeleteChatMessages removes all messages of a chat.
// Called when a conversation is cleaned up.
func (s *MessageService) DeleteChatMessages(chatID string) {
	s.mu.Lock()
	removed := s.messages[chatID]
	delete(s.messages, chatID)
	for _, st := range removed {
		delete(s.index, st.msg.ID)
	}
	s.mu.Unlock()

	for _, st := range removed {
		s.files.DeleteForMessage(st.msg.ID)
	}
	if len(removed) > 0 {
		log.Info().Str("chat_id", chatID).Int("count", len(removed)).Msg("Deleted chat messages")
	}
}

// Count returns the number of messages in a chat.
func (s *MessageService) Count(chatID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages[chatID])
}

func (s *MessageService) lookup(messageID string) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, err := s.find(messageID)
	if err != nil {
		return models.Message{}, false
	}
	return st.msg.Clone(), true
}

// find must be called with s.mu held
func (s *MessageService) find(messageID string) (*stored, error) {
	chatID, ok := s.index[messageID]
	if !ok {
		return nil, ErrMessageNotFound
	}
	msgs := s.messages[chatID]
	for i := range msgs {
		if msgs[i].msg.ID == messageID {
			return &msgs[i], nil
		}
	}
	return nil, ErrMessageNotFound
}

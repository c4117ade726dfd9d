package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adi-253/Talkie/chatsync/internal/events"
	"github.com/adi-253/Talkie/chatsync/internal/models"
	"github.com/adi-253/Talkie/chatsync/internal/validation"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ string, e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type()
	}
	return out
}

type fixture struct {
	clock         clockwork.Clock
	advance       func(time.Duration)
	conversations *ConversationService
	files         *FileService
	messages      *MessageService
	published     *recorder
	chatID        string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	f := &fixture{
		clock:         clock,
		advance:       clock.Advance,
		conversations: NewConversationService(clock),
		files:         NewFileService(),
		published:     &recorder{},
	}
	f.messages = NewMessageService(f.conversations, f.files, f.published, clock)
	f.chatID = f.conversations.ForWorkspace("ws1").ID
	return f
}

func text(s string) *string { return &s }

var (
	ann = models.Participant{ID: "ann", Name: "Ann"}
	bob = models.Participant{ID: "bob", Name: "Bob"}
)

func TestForWorkspaceIsStable(t *testing.T) {
	f := newFixture(t)

	again := f.conversations.ForWorkspace("ws1")
	assert.Equal(t, f.chatID, again.ID)
	assert.NotEqual(t, f.chatID, f.conversations.ForWorkspace("ws2").ID)
}

func TestCreatePublishesAndCountsUnread(t *testing.T) {
	f := newFixture(t)
	f.conversations.AddMember(f.chatID, bob.ID)

	msg, err := f.messages.Create(f.chatID, NewMessageInput{Author: ann, Content: text("Hello")})
	require.NoError(t, err)

	assert.Equal(t, "Hello", msg.Text())
	assert.Equal(t, models.MessageTypeText, msg.MessageType)
	assert.Equal(t, []events.Type{events.TypeNewMessage}, f.published.types())
	assert.Equal(t, 1, f.conversations.Unread(f.chatID, bob.ID))
	assert.Equal(t, 0, f.conversations.Unread(f.chatID, ann.ID))

	f.conversations.MarkRead(f.chatID, bob.ID)
	assert.Equal(t, 0, f.conversations.Unread(f.chatID, bob.ID))
}

func TestCreateValidates(t *testing.T) {
	f := newFixture(t)

	_, err := f.messages.Create(f.chatID, NewMessageInput{Author: ann, Content: text("  ")})
	assert.ErrorIs(t, err, validation.ErrEmptyMessage)

	_, err = f.messages.Create(f.chatID, NewMessageInput{Author: ann, Uploads: []models.Upload{
		{FileName: "x.exe", MimeType: "application/x-msdownload", Data: []byte("MZ")},
	}})
	assert.ErrorIs(t, err, validation.ErrAttachmentType)

	_, err = f.messages.Create(f.chatID, NewMessageInput{Author: ann, Content: text("re"), ReplyToID: text("missing")})
	assert.ErrorIs(t, err, ErrReplyNotFound)

	_, err = f.messages.Create("nope", NewMessageInput{Author: ann, Content: text("hi")})
	assert.ErrorIs(t, err, ErrChatNotFound)

	assert.Empty(t, f.published.types())
}

func TestCreateStoresAttachments(t *testing.T) {
	f := newFixture(t)

	msg, err := f.messages.Create(f.chatID, NewMessageInput{Author: ann, Uploads: []models.Upload{
		{FileName: "a.png", MimeType: "image/png", Data: []byte("png")},
	}})
	require.NoError(t, err)

	assert.Nil(t, msg.Content)
	require.Len(t, msg.Attachments, 1)
	file, err := f.files.Get(msg.Attachments[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), file.Data)
	assert.Equal(t, "/files/"+msg.Attachments[0].ID, msg.Attachments[0].URL)

	require.NoError(t, f.messages.Delete(msg.ID, ann.ID))
	assert.Zero(t, f.files.Len())
}

func TestListPagesBackwards(t *testing.T) {
	f := newFixture(t)
	for _, c := range []string{"1", "2", "3", "4", "5"} {
		_, err := f.messages.Create(f.chatID, NewMessageInput{Author: ann, Content: text(c)})
		require.NoError(t, err)
	}

	contents := func(p models.MessagePage) []string {
		out := make([]string, len(p.Messages))
		for i, m := range p.Messages {
			out[i] = m.Text()
		}
		return out
	}

	first, err := f.messages.List(f.chatID, 2, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "5"}, contents(first))
	assert.True(t, first.HasMore)

	second, err := f.messages.List(f.chatID, 2, first.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3"}, contents(second))

	// the cursor survives deletion of the message it was taken from
	require.NoError(t, f.messages.Delete(second.Messages[0].ID, ann.ID))
	third, err := f.messages.List(f.chatID, 2, second.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, contents(third))
	assert.False(t, third.HasMore)
	assert.Empty(t, third.NextCursor)

	_, err = f.messages.List(f.chatID, 2, "abc")
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestEditAndDeleteAreAuthorOnly(t *testing.T) {
	f := newFixture(t)
	msg, err := f.messages.Create(f.chatID, NewMessageInput{Author: ann, Content: text("Hi")})
	require.NoError(t, err)

	_, err = f.messages.Edit(msg.ID, bob.ID, "Hijack")
	assert.ErrorIs(t, err, ErrNotAuthor)
	assert.ErrorIs(t, f.messages.Delete(msg.ID, bob.ID), ErrNotAuthor)

	f.advance(time.Minute)
	edited, err := f.messages.Edit(msg.ID, ann.ID, "Hi there")
	require.NoError(t, err)
	assert.True(t, edited.Edited)
	assert.Equal(t, "Hi there", edited.Text())
	assert.True(t, edited.UpdatedAt.After(edited.CreatedAt))

	_, err = f.messages.Edit(msg.ID, ann.ID, " ")
	assert.ErrorIs(t, err, validation.ErrEmptyMessage)

	require.NoError(t, f.messages.Delete(msg.ID, ann.ID))
	assert.ErrorIs(t, f.messages.Delete(msg.ID, ann.ID), ErrMessageNotFound)
	_, err = f.messages.Edit(msg.ID, ann.ID, "late")
	assert.ErrorIs(t, err, ErrMessageNotFound)

	assert.Equal(t, []events.Type{events.TypeNewMessage, events.TypeMessageUpdated, events.TypeMessageDeleted}, f.published.types())
}

func TestSweepRemovesIdleConversations(t *testing.T) {
	f := newFixture(t)
	_, err := f.messages.Create(f.chatID, NewMessageInput{Author: ann, Content: text("Hi")})
	require.NoError(t, err)

	cleanup := NewCleanupService(f.conversations, f.messages, f.clock, time.Minute, 30*time.Minute)

	f.advance(10 * time.Minute)
	fresh := f.conversations.ForWorkspace("ws2").ID
	assert.Zero(t, cleanup.Sweep())

	f.advance(25 * time.Minute)
	assert.Equal(t, 1, cleanup.Sweep())
	assert.False(t, f.conversations.Exists(f.chatID))
	assert.True(t, f.conversations.Exists(fresh))
	assert.Zero(t, f.messages.Count(f.chatID))
}

func TestCleanupServiceRunsOnTicker(t *testing.T) {
	clock := clockwork.NewFakeClock()
	conversations := NewConversationService(clock)
	messages := NewMessageService(conversations, NewFileService(), &recorder{}, clock)
	chatID := conversations.ForWorkspace("ws1").ID

	cleanup := NewCleanupService(conversations, messages, clock, time.Minute, time.Minute)
	go cleanup.Start()
	defer cleanup.Stop()

	require.NoError(t, clock.BlockUntilContext(testContext(t), 1))
	clock.Advance(2 * time.Minute)

	assert.Eventually(t, func() bool { return !conversations.Exists(chatID) }, time.Second, 5*time.Millisecond)
}

// testContext stands in for t.Context (Go 1.24+): a context canceled when the test ends.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/adi-253/Talkie/chatsync/internal/config"
	"github.com/adi-253/Talkie/chatsync/internal/events"
	"github.com/adi-253/Talkie/chatsync/internal/models"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const (
	timeout = time.Second
	tick    = 5 * time.Millisecond
)

func msg(id string, sec int, content string) models.Message {
	c := content
	return models.Message{
		ID:          id,
		ChatID:      "c1",
		AuthorID:    "other",
		Content:     &c,
		MessageType: models.MessageTypeText,
		CreatedAt:   epoch.Add(time.Duration(sec) * time.Second),
		UpdatedAt:   epoch.Add(time.Duration(sec) * time.Second),
	}
}

// fakeRealtime records outbound traffic and delivers inbound events synchronously.
type fakeRealtime struct {
	mu      sync.Mutex
	emitted []events.Event
	joins   []string
	leaves  []string
	subs    map[int]func(events.Event)
	next    int
}

func newFakeRealtime() *fakeRealtime {
	return &fakeRealtime{subs: make(map[int]func(events.Event))}
}

func (f *fakeRealtime) Join(chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, chatID)
	return nil
}

func (f *fakeRealtime) Leave(chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves = append(f.leaves, chatID)
	return nil
}

func (f *fakeRealtime) Emit(e events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitted = append(f.emitted, e)
	return nil
}

func (f *fakeRealtime) Subscribe(fn func(events.Event)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	id := f.next
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *fakeRealtime) deliver(e events.Event) {
	f.mu.Lock()
	subs := make([]func(events.Event), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn(e)
	}
}

func (f *fakeRealtime) count(t events.Type) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.emitted {
		if e.Type() == t {
			n++
		}
	}
	return n
}

func (f *fakeRealtime) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// fakeAPI serves pages by cursor and lets tests script mutation outcomes.
type fakeAPI struct {
	mu         sync.Mutex
	pages      map[string]*models.MessagePage
	fetchErr   error
	fetchGate  chan struct{}
	fetchCalls int
	sendCalls  int
	sent       []models.SendMessageRequest
	sendErr    error
	editCalls  int
	delCalls   int

	onEdit   func(ctx context.Context, id, content string) (*models.Message, error)
	onDelete func(ctx context.Context, id string) error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{pages: make(map[string]*models.MessagePage)}
}

func (f *fakeAPI) FetchMessages(ctx context.Context, chatID string, limit int, cursor string) (*models.MessagePage, error) {
	f.mu.Lock()
	f.fetchCalls++
	gate, err, page := f.fetchGate, f.fetchErr, f.pages[cursor]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	if page == nil {
		return &models.MessagePage{}, nil
	}
	cp := *page
	cp.Messages = append([]models.Message(nil), page.Messages...)
	return &cp, nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, chatID string, req models.SendMessageRequest, uploads []models.Upload) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, req)
	return &models.Message{ID: "server-id", ChatID: chatID, Content: req.Content}, nil
}

func (f *fakeAPI) EditMessage(ctx context.Context, id, content string) (*models.Message, error) {
	f.mu.Lock()
	f.editCalls++
	hook := f.onEdit
	f.mu.Unlock()
	return hook(ctx, id, content)
}

func (f *fakeAPI) DeleteMessage(ctx context.Context, id string) error {
	f.mu.Lock()
	f.delCalls++
	hook := f.onDelete
	f.mu.Unlock()
	return hook(ctx, id)
}

func (f *fakeAPI) calls() (fetch, send, edit, del int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls, f.sendCalls, f.editCalls, f.delCalls
}

func testConfig() *config.Config {
	return &config.Config{
		UserID:            "me",
		UserName:          "Me",
		PageSize:          3,
		SuppressionWindow: 3 * time.Second,
		TypingIdle:        2 * time.Second,
		TypingTTL:         5 * time.Second,
	}
}

// newTestSession opens a session on fakes. advance moves its fake clock.
func newTestSession(t *testing.T, api *fakeAPI, rt *fakeRealtime) (*Session, func(time.Duration)) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	s := NewSession(testConfig(), "c1", api, rt, WithClock(clock))
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Open(context.Background()))
	return s, clock.Advance
}

// flush waits until every event already posted to the session loop has run.
func flush(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.loop.do(context.Background(), func() {}))
}

// newTestScheduler returns a scheduler on its own loop and a fake clock.
func newTestScheduler(t *testing.T) (*scheduler, func(time.Duration)) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	l := newLoop()
	s := newScheduler(clock, l)
	t.Cleanup(func() {
		s.stop()
		l.stop()
	})
	return s, clock.Advance
}

func newTestStore(t *testing.T, api *fakeAPI) (*TimelineStore, *PendingRegistry, func(time.Duration)) {
	t.Helper()
	sched, advance := newTestScheduler(t)
	pending := NewPendingRegistry(3*time.Second, sched)
	return NewTimelineStore("c1", api, 3, pending, nil, zerolog.Nop()), pending, advance
}

package chat

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/adi-253/Talkie/chatsync/internal/metrics"
	"github.com/adi-253/Talkie/chatsync/internal/models"
)

// Timeline is an immutable snapshot of a conversation, ascending by creation
// time with unique ids. Messages with equal timestamps keep arrival order.
type Timeline struct {
	messages []models.Message
	index    map[string]int
}

var emptyTimeline = newTimeline(nil)

func newTimeline(msgs []models.Message) *Timeline {
	index := make(map[string]int, len(msgs))
	for i, m := range msgs {
		index[m.ID] = i
	}
	return &Timeline{messages: msgs, index: index}
}

// Len returns the number of messages.
func (t *Timeline) Len() int { return len(t.messages) }

// Messages returns a copy of the messages, oldest first.
func (t *Timeline) Messages() []models.Message {
	return lo.Map(t.messages, func(m models.Message, _ int) models.Message { return m.Clone() })
}

// Get returns the message with the given id.
func (t *Timeline) Get(id string) (models.Message, bool) {
	i, ok := t.index[id]
	if !ok {
		return models.Message{}, false
	}
	return t.messages[i].Clone(), true
}

// IndexOf returns the position of id, or -1.
func (t *Timeline) IndexOf(id string) int {
	if i, ok := t.index[id]; ok {
		return i
	}
	return -1
}

// Head returns the oldest message.
func (t *Timeline) Head() (models.Message, bool) {
	if len(t.messages) == 0 {
		return models.Message{}, false
	}
	return t.messages[0].Clone(), true
}

// IDs returns the message ids in order.
func (t *Timeline) IDs() []string {
	return lo.Map(t.messages, func(m models.Message, _ int) string { return m.ID })
}

// insertionPoint returns the index after the last message created at or before m.
func (t *Timeline) insertionPoint(m models.Message) int {
	return sort.Search(len(t.messages), func(i int) bool {
		return t.messages[i].CreatedAt.After(m.CreatedAt)
	})
}

func (t *Timeline) with(i int, m models.Message) *Timeline {
	out := make([]models.Message, 0, len(t.messages)+1)
	out = append(out, t.messages[:i]...)
	out = append(out, m)
	out = append(out, t.messages[i:]...)
	return newTimeline(out)
}

func (t *Timeline) without(i int) *Timeline {
	out := make([]models.Message, 0, len(t.messages)-1)
	out = append(out, t.messages[:i]...)
	out = append(out, t.messages[i+1:]...)
	return newTimeline(out)
}

func (t *Timeline) replaced(i int, m models.Message) *Timeline {
	out := make([]models.Message, len(t.messages))
	copy(out, t.messages)
	out[i] = m
	return newTimeline(out)
}

// merge combines older with current. Ids already in current keep the current
// copy; on equal timestamps entries from older come first.
func merge(older, current []models.Message) []models.Message {
	seen := lo.SliceToMap(current, func(m models.Message) (string, struct{}) { return m.ID, struct{}{} })
	older = lo.UniqBy(lo.FilterMap(older, func(m models.Message, _ int) (models.Message, bool) {
		_, dup := seen[m.ID]
		return m.Clone(), !dup
	}), func(m models.Message) string { return m.ID })
	sort.SliceStable(older, func(i, j int) bool { return older[i].CreatedAt.Before(older[j].CreatedAt) })

	out := make([]models.Message, 0, len(older)+len(current))
	i, j := 0, 0
	for i < len(older) && j < len(current) {
		if current[j].CreatedAt.Before(older[i].CreatedAt) {
			out = append(out, current[j])
			j++
		} else {
			out = append(out, older[i])
			i++
		}
	}
	out = append(out, older[i:]...)
	return append(out, current[j:]...)
}

// TimelineStore owns the timeline of one open conversation. Every mutation
// publishes a new Timeline, so readers never see a half-applied change.
type TimelineStore struct {
	chatID   string
	api      MessageAPI
	pageSize int
	pending  *PendingRegistry
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	onChange func()

	current atomic.Pointer[Timeline]

	mu         sync.Mutex
	cursor     string
	hasMore    bool
	loading    bool
	generation uint64

	// remote changes seen while a page is loading; the page may predate them
	lateDeletes map[string]struct{}
	lateUpdates map[string]models.Message
}

// NewTimelineStore creates an empty store for chatID.
func NewTimelineStore(chatID string, api MessageAPI, pageSize int, pending *PendingRegistry, m *metrics.Metrics, logger zerolog.Logger) *TimelineStore {
	s := &TimelineStore{
		chatID:   chatID,
		api:      api,
		pageSize: pageSize,
		pending:  pending,
		metrics:  m,
		logger:   logger,
	}
	s.current.Store(emptyTimeline)
	return s
}

// OnChange registers a hook called after every published change.
func (s *TimelineStore) OnChange(fn func()) {
	s.onChange = fn
}

// Timeline returns the current snapshot.
func (s *TimelineStore) Timeline() *Timeline {
	return s.current.Load()
}

// HasMore reports whether older history remains.
func (s *TimelineStore) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// Loading reports whether a page fetch is in flight.
func (s *TimelineStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// publish must be called with mu held.
func (s *TimelineStore) publish(t *Timeline) {
	s.current.Store(t)
	if s.onChange != nil {
		s.onChange()
	}
}

// Initialize replaces the timeline with the newest page. Messages appended
// from realtime while the page was loading are kept. On failure the timeline
// is left empty and a *LoadError is returned.
func (s *TimelineStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.beginLoad()
	s.cursor, s.hasMore = "", false
	s.publish(emptyTimeline)
	s.mu.Unlock()

	page, err := s.api.FetchMessages(ctx, s.chatID, s.pageSize, "")

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return ErrStaleResponse
	}
	fetched := s.endLoad(page)
	if err != nil {
		s.publish(emptyTimeline)
		return &LoadError{ChatID: s.chatID, Err: err}
	}

	s.cursor, s.hasMore = page.NextCursor, page.HasMore
	s.publish(newTimeline(merge(fetched, s.current.Load().messages)))
	s.logger.Debug().Int("messages", len(page.Messages)).Bool("has_more", page.HasMore).Msg("Timeline initialized")
	return nil
}

// LoadOlder fetches the page before the current head and prepends it. It
// reports false without fetching when there is nothing to load or a load is
// already running.
func (s *TimelineStore) LoadOlder(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.loading || !s.hasMore || s.cursor == "" {
		s.mu.Unlock()
		return false, nil
	}
	s.beginLoad()
	gen, cursor := s.generation, s.cursor
	s.mu.Unlock()

	page, err := s.api.FetchMessages(ctx, s.chatID, s.pageSize, cursor)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return false, ErrStaleResponse
	}
	older := s.endLoad(page)
	if err != nil {
		return false, &LoadError{ChatID: s.chatID, Err: err}
	}

	cur := s.current.Load()
	if head, ok := cur.Head(); ok {
		older = lo.Filter(older, func(m models.Message, _ int) bool {
			return !m.CreatedAt.After(head.CreatedAt)
		})
	}
	s.cursor, s.hasMore = page.NextCursor, page.HasMore && page.NextCursor != ""
	s.publish(newTimeline(merge(older, cur.messages)))
	return true, nil
}

// beginLoad must be called with mu held.
func (s *TimelineStore) beginLoad() {
	s.loading = true
	s.lateDeletes = make(map[string]struct{})
	s.lateUpdates = make(map[string]models.Message)
}

// endLoad must be called with mu held. It returns the page messages with the
// remote deletes and updates received during the fetch applied.
func (s *TimelineStore) endLoad(page *models.MessagePage) []models.Message {
	deleted, updated := s.lateDeletes, s.lateUpdates
	s.loading = false
	s.lateDeletes, s.lateUpdates = nil, nil
	if page == nil {
		return nil
	}
	return lo.FilterMap(page.Messages, func(m models.Message, _ int) (models.Message, bool) {
		if _, gone := deleted[m.ID]; gone {
			return m, false
		}
		if u, ok := updated[m.ID]; ok {
			return u, true
		}
		return m, true
	})
}

// AppendFromRealtime adds a message announced by the server. Known ids are
// ignored, which makes the operation idempotent.
func (s *TimelineStore) AppendFromRealtime(m models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	if _, ok := cur.index[m.ID]; ok {
		return false
	}
	s.publish(cur.with(cur.insertionPoint(m), m.Clone()))
	return true
}

// ApplyOptimisticEdit sets new content and the edited flag on id and returns
// the previous value.
func (s *TimelineStore) ApplyOptimisticEdit(id, content string) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	i, ok := cur.index[id]
	if !ok {
		return models.Message{}, false
	}
	prev := cur.messages[i]
	next := prev.Clone()
	next.Content = &content
	next.Edited = true
	s.publish(cur.replaced(i, next))
	return prev.Clone(), true
}

// ApplyOptimisticDelete removes id and returns it with its former index.
func (s *TimelineStore) ApplyOptimisticDelete(id string) (models.Message, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(id)
}

func (s *TimelineStore) remove(id string) (models.Message, int, bool) {
	cur := s.current.Load()
	i, ok := cur.index[id]
	if !ok {
		return models.Message{}, -1, false
	}
	removed := cur.messages[i]
	s.publish(cur.without(i))
	return removed.Clone(), i, true
}

// ApplyRemoteUpdate applies an inbound message_updated event unless the id
// has a local mutation pending.
func (s *TimelineStore) ApplyRemoteUpdate(m models.Message) bool {
	if s.pending.IsPending(m.ID) {
		s.suppressed(m.ID, "message_updated")
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loading {
		s.lateUpdates[m.ID] = m.Clone()
	}
	return s.replaceLocked(m)
}

// ApplyRemoteDelete applies an inbound message_deleted event unless the id
// has a local mutation pending.
func (s *TimelineStore) ApplyRemoteDelete(id string) bool {
	if s.pending.IsPending(id) {
		s.suppressed(id, "message_deleted")
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loading {
		s.lateDeletes[id] = struct{}{}
		delete(s.lateUpdates, id)
	}
	_, _, ok := s.remove(id)
	return ok
}

func (s *TimelineStore) suppressed(id, event string) {
	s.metrics.EchoSuppressed()
	s.logger.Debug().Str("message_id", id).Str("event", event).Msg("Suppressed echo for pending message")
}

// MergeServerMessage stores the server's copy of a message after a
// successful edit.
func (s *TimelineStore) MergeServerMessage(m models.Message) bool {
	return s.replace(m)
}

// RestoreMessage puts back a previous value after a failed edit.
func (s *TimelineStore) RestoreMessage(prev models.Message) bool {
	return s.replace(prev)
}

func (s *TimelineStore) replace(m models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaceLocked(m)
}

func (s *TimelineStore) replaceLocked(m models.Message) bool {
	cur := s.current.Load()
	i, ok := cur.index[m.ID]
	if !ok {
		return false
	}
	s.publish(cur.replaced(i, m.Clone()))
	return true
}

// Reinsert puts back a message removed by a failed delete, at its original
// index when that still respects the ordering.
func (s *TimelineStore) Reinsert(m models.Message, index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	if _, ok := cur.index[m.ID]; ok {
		return false
	}
	if index < 0 || index > len(cur.messages) || !fitsAt(cur.messages, index, m) {
		index = cur.insertionPoint(m)
	}
	s.publish(cur.with(index, m.Clone()))
	return true
}

func fitsAt(msgs []models.Message, i int, m models.Message) bool {
	if i > 0 && msgs[i-1].CreatedAt.After(m.CreatedAt) {
		return false
	}
	if i < len(msgs) && msgs[i].CreatedAt.Before(m.CreatedAt) {
		return false
	}
	return true
}

// Discard empties the store and invalidates loads still in flight.
func (s *TimelineStore) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.endLoad(nil)
	s.cursor, s.hasMore = "", false
	s.current.Store(emptyTimeline)
}

// Package chat keeps the message timeline of an open conversation consistent
// across local mutations, their REST outcomes and the realtime event stream.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/adi-253/Talkie/chatsync/internal/config"
	"github.com/adi-253/Talkie/chatsync/internal/events"
	"github.com/adi-253/Talkie/chatsync/internal/metrics"
	"github.com/adi-253/Talkie/chatsync/internal/models"
	"github.com/adi-253/Talkie/chatsync/internal/realtime"
	"github.com/adi-253/Talkie/chatsync/internal/validation"
)

// EditState is the state of the edit composer.
type EditState int

const (
	EditIdle EditState = iota
	EditEditing
	EditSubmitting
)

func (s EditState) String() string {
	switch s {
	case EditEditing:
		return "editing"
	case EditSubmitting:
		return "submitting"
	}
	return "idle"
}

// SendInput is a message as composed by the user.
type SendInput struct {
	Content   string
	ReplyToID string
	Uploads   []models.Upload
}

type editor struct {
	state  EditState
	target string
	draft  string
}

// editChain tracks overlapping edits of one message. Only the outcome of the
// latest request is applied; confirmed is the value a failure rolls back to.
type editChain struct {
	latest       uint64
	inflight     int
	confirmed    models.Message
	confirmedSeq uint64

	// latestFailed lets an older success that lands afterwards show the server state
	latestFailed bool
}

// Session is one open conversation. Realtime events, request completions and
// timer expiries are applied on the session loop one at a time; public methods
// may be called from any goroutine.
type Session struct {
	id      string
	chatID  string
	self    models.Participant
	api     MessageAPI
	rt      Realtime
	loop    *loop
	sched   *scheduler
	store   *TimelineStore
	pending *PendingRegistry
	typing  *TypingTracker
	metrics *metrics.Metrics
	logger  zerolog.Logger

	notices chan Notice
	updates chan struct{}
	done    chan struct{}
	closed  atomic.Bool

	mu          sync.Mutex
	opened      bool
	unsubscribe func()

	// loop only
	editor  editor
	edits   map[string]*editChain
	deletes map[string]*models.Message // value a failed delete puts back
}

// NewSession creates a session for chatID. Nothing is fetched or joined until Open.
func NewSession(cfg *config.Config, chatID string, msgs MessageAPI, rt Realtime, opts ...Option) *Session {
	o := buildOptions(opts)
	l := newLoop()
	id := uuid.NewString()

	s := &Session{
		id:      id,
		chatID:  chatID,
		self:    models.Participant{ID: cfg.UserID, Name: cfg.UserName},
		api:     msgs,
		rt:      rt,
		loop:    l,
		sched:   newScheduler(o.clock, l),
		metrics: o.metrics,
		logger: log.With().
			Str("component", "session").
			Str("session_id", id).
			Str("chat_id", chatID).
			Logger(),
		notices: make(chan Notice, 32),
		updates: make(chan struct{}, 1),
		done:    make(chan struct{}),
		edits:   make(map[string]*editChain),
		deletes: make(map[string]*models.Message),
	}
	s.pending = NewPendingRegistry(cfg.SuppressionWindow, s.sched)
	s.store = NewTimelineStore(chatID, msgs, cfg.PageSize, s.pending, o.metrics, s.logger)
	s.store.OnChange(s.notifyUpdate)
	s.typing = NewTypingTracker(chatID, s.self, cfg.TypingIdle, cfg.TypingTTL, rt.Emit, s.sched, s.logger)
	s.typing.OnChange(s.notifyUpdate)
	return s
}

func (s *Session) ID() string     { return s.id }
func (s *Session) ChatID() string { return s.chatID }

// Timeline returns the current snapshot.
func (s *Session) Timeline() *Timeline { return s.store.Timeline() }

// HasMore reports whether older history can be loaded.
func (s *Session) HasMore() bool { return s.store.HasMore() }

// Loading reports whether a page fetch is running.
func (s *Session) Loading() bool { return s.store.Loading() }

// TypingIndicator renders who else is typing.
func (s *Session) TypingIndicator() string { return s.typing.Indicator() }

// Notices delivers failures and connection problems. Notices are dropped when
// nobody reads them.
func (s *Session) Notices() <-chan Notice { return s.notices }

// Updates receives a value whenever the timeline or typing set changed.
// Bursts are coalesced.
func (s *Session) Updates() <-chan struct{} { return s.updates }

// Done is closed once the session has been closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Open subscribes to realtime, joins the room and loads the newest page. It
// can be called again after a *LoadError to retry the load.
func (s *Session) Open(ctx context.Context) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	s.mu.Lock()
	if !s.opened {
		s.opened = true
		s.unsubscribe = s.rt.Subscribe(s.receive)
		if err := s.rt.Join(s.chatID); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to join chat room")
		}
	}
	s.mu.Unlock()

	if err := s.store.Initialize(ctx); err != nil {
		if errors.Is(err, ErrStaleResponse) {
			return ErrSessionClosed
		}
		s.fail("load", "", err)
		return err
	}
	s.logger.Info().Int("messages", s.store.Timeline().Len()).Msg("Chat session opened")
	return nil
}

// receive runs on the realtime read pump and hands events to the loop.
func (s *Session) receive(e events.Event) {
	if _, isErr := e.(events.Error); !isErr && events.ChatID(e) != s.chatID {
		return
	}
	s.loop.post(func() { s.handle(e) })
}

func (s *Session) handle(e events.Event) {
	switch v := e.(type) {
	case events.NewMessage:
		s.store.AppendFromRealtime(v.Message)
	case events.MessageUpdated:
		s.store.ApplyRemoteUpdate(v.Message)
	case events.MessageDeleted:
		if s.store.ApplyRemoteDelete(v.MessageID) && s.editor.state == EditEditing && s.editor.target == v.MessageID {
			s.editor = editor{}
			s.notify(Notice{Kind: NoticeInfo, Op: "edit", MessageID: v.MessageID, Text: "the message you were editing was deleted"})
		}
	case events.UserTyping, events.UserStopTyping:
		s.typing.Remote(e)
	case events.Error:
		s.notify(Notice{Kind: NoticeError, Op: "realtime", Class: ClassUnknown, Err: errors.New(v.Message)})
	}
}

// Send validates and posts a new message. The timeline is not touched: the
// message appears when its realtime echo arrives.
func (s *Session) Send(ctx context.Context, in SendInput) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	files := lo.Map(in.Uploads, func(u models.Upload, _ int) validation.File {
		return validation.File{Name: u.FileName, MimeType: u.MimeType, Size: u.Size()}
	})
	if err := validation.Message(in.Content, files); err != nil {
		return err
	}

	req := models.SendMessageRequest{MessageType: models.MessageTypeText}
	if strings.TrimSpace(in.Content) != "" {
		content := in.Content
		req.Content = &content
	}
	if in.ReplyToID != "" {
		reply := in.ReplyToID
		req.ReplyToID = &reply
	}

	if _, err := s.api.SendMessage(ctx, s.chatID, req, in.Uploads); err != nil {
		s.fail("send", "", err)
		return err
	}
	return nil
}

// Edit replaces the content of a message optimistically and confirms it with
// the server, rolling back if the request fails.
func (s *Session) Edit(ctx context.Context, id, content string) error {
	if err := validation.Edit(content); err != nil {
		return err
	}

	var (
		seq, token uint64
		startErr   error
	)
	if err := s.loop.do(ctx, func() { seq, token, startErr = s.startEdit(id, content) }); err != nil {
		return err
	}
	if startErr != nil {
		return startErr
	}

	msg, err := s.api.EditMessage(ctx, id, content)

	if perr := s.loop.do(context.Background(), func() { s.finishEdit(id, seq, token, msg, err) }); perr != nil {
		s.logger.Debug().Str("message_id", id).Msg("Discarding edit result for closed session")
		return err
	}
	if err != nil {
		s.fail("edit", id, err)
	}
	return err
}

func (s *Session) startEdit(id, content string) (uint64, uint64, error) {
	prev, ok := s.store.ApplyOptimisticEdit(id, content)
	if !ok {
		return 0, 0, ErrMessageNotFound
	}
	chain, ok := s.edits[id]
	if !ok {
		chain = &editChain{confirmed: prev}
		s.edits[id] = chain
	}
	chain.latest++
	chain.latestFailed = false
	chain.inflight++
	return chain.latest, s.pending.Mark(id), nil
}

func (s *Session) finishEdit(id string, seq, token uint64, msg *models.Message, err error) {
	s.pending.Settle(id, token)

	chain, ok := s.edits[id]
	if !ok {
		return
	}
	chain.inflight--
	if chain.inflight == 0 {
		delete(s.edits, id)
	}

	if err == nil && msg != nil {
		if seq <= chain.confirmedSeq {
			return
		}
		chain.confirmed, chain.confirmedSeq = msg.Clone(), seq
		if seq == chain.latest || chain.latestFailed {
			s.store.MergeServerMessage(*msg)
			s.rebaseDelete(id, *msg)
		}
		return
	}
	if seq == chain.latest {
		chain.latestFailed = true
		s.store.RestoreMessage(chain.confirmed)
		s.rebaseDelete(id, chain.confirmed)
		s.metrics.RolledBack("edit")
		return
	}
	s.logger.Debug().Str("message_id", id).Uint64("seq", seq).Msg("Ignoring superseded edit failure")
}

// rebaseDelete updates what a pending delete of id restores on failure. An
// edit settling while the message is optimistically removed cannot touch the
// timeline, so its outcome is carried by the delete instead.
func (s *Session) rebaseDelete(id string, m models.Message) {
	if snap, ok := s.deletes[id]; ok {
		*snap = m.Clone()
	}
}

// BeginEdit opens the composer on an existing message.
func (s *Session) BeginEdit(id string) error {
	var out error
	err := s.loop.do(context.Background(), func() {
		if s.editor.state != EditIdle {
			out = ErrEditInProgress
			return
		}
		msg, ok := s.store.Timeline().Get(id)
		if !ok {
			out = ErrMessageNotFound
			return
		}
		s.editor = editor{state: EditEditing, target: id, draft: msg.Text()}
	})
	if err != nil {
		return err
	}
	return out
}

// UpdateDraft replaces the composer text.
func (s *Session) UpdateDraft(text string) error {
	var out error
	err := s.loop.do(context.Background(), func() {
		if s.editor.state != EditEditing {
			out = ErrNotEditing
			return
		}
		s.editor.draft = text
	})
	if err != nil {
		return err
	}
	return out
}

// CancelEdit closes the composer without submitting.
func (s *Session) CancelEdit() error {
	var out error
	err := s.loop.do(context.Background(), func() {
		if s.editor.state != EditEditing {
			out = ErrNotEditing
			return
		}
		s.editor = editor{}
	})
	if err != nil {
		return err
	}
	return out
}

// EditorState returns the composer state, its target and draft.
func (s *Session) EditorState() (EditState, string, string) {
	var ed editor
	_ = s.loop.do(context.Background(), func() { ed = s.editor })
	return ed.state, ed.target, ed.draft
}

// SubmitEdit sends the composer draft. An invalid draft keeps the composer
// open; otherwise it returns to idle whatever the outcome.
func (s *Session) SubmitEdit(ctx context.Context) error {
	var (
		id, draft string
		out       error
	)
	err := s.loop.do(ctx, func() {
		if s.editor.state != EditEditing {
			out = ErrNotEditing
			return
		}
		if out = validation.Edit(s.editor.draft); out != nil {
			return
		}
		s.editor.state = EditSubmitting
		id, draft = s.editor.target, s.editor.draft
	})
	if err != nil {
		return err
	}
	if out != nil {
		return out
	}

	out = s.Edit(ctx, id, draft)

	_ = s.loop.do(context.Background(), func() {
		if s.editor.state == EditSubmitting && s.editor.target == id {
			s.editor = editor{}
		}
	})
	return out
}

// Delete removes a message optimistically and puts it back at its position
// if the request fails.
func (s *Session) Delete(ctx context.Context, id string) error {
	var (
		removed  models.Message
		index    int
		token    uint64
		startErr error
	)
	err := s.loop.do(ctx, func() {
		var ok bool
		removed, index, ok = s.store.ApplyOptimisticDelete(id)
		if !ok {
			startErr = ErrMessageNotFound
			return
		}
		snap := removed
		s.deletes[id] = &snap
		token = s.pending.Mark(id)
		if s.editor.state == EditEditing && s.editor.target == id {
			s.editor = editor{}
		}
	})
	if err != nil {
		return err
	}
	if startErr != nil {
		return startErr
	}

	err = s.api.DeleteMessage(ctx, id)

	if perr := s.loop.do(context.Background(), func() {
		s.pending.Settle(id, token)
		if snap, ok := s.deletes[id]; ok {
			removed = *snap
			delete(s.deletes, id)
		}
		if err != nil {
			s.store.Reinsert(removed, index)
			s.metrics.RolledBack("delete")
		}
	}); perr != nil {
		s.logger.Debug().Str("message_id", id).Msg("Discarding delete result for closed session")
		return err
	}
	if err != nil {
		s.fail("delete", id, err)
	}
	return err
}

// LoadOlder prepends the previous page of history. It reports false when
// there was nothing to load or a load was already running.
func (s *Session) LoadOlder(ctx context.Context) (bool, error) {
	if s.closed.Load() {
		return false, ErrSessionClosed
	}
	loaded, err := s.store.LoadOlder(ctx)
	if err != nil {
		if errors.Is(err, ErrStaleResponse) {
			return false, ErrSessionClosed
		}
		s.fail("load", "", err)
	}
	return loaded, err
}

// Keystroke records local typing activity.
func (s *Session) Keystroke() {
	if s.closed.Load() {
		return
	}
	s.typing.Keystroke()
}

// ReportConnectionError surfaces a realtime connection problem as a notice.
func (s *Session) ReportConnectionError(err error) {
	s.notify(Notice{Kind: NoticeConnection, Op: "realtime", Class: Classify(err), Err: err})
}

// Close leaves the room and releases every timer and subscription. Results of
// requests still in flight are discarded.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	_ = s.loop.do(context.Background(), func() {
		s.typing.Stop()
		s.pending.Reset()
		s.editor = editor{}
	})
	s.sched.stop()
	s.loop.stop()

	s.mu.Lock()
	opened, unsubscribe := s.opened, s.unsubscribe
	s.mu.Unlock()

	var err error
	if opened {
		unsubscribe()
		if lerr := s.rt.Leave(s.chatID); lerr != nil && !errors.Is(lerr, realtime.ErrClosed) {
			err = lerr
		}
	}
	s.store.Discard()
	close(s.done)
	s.logger.Info().Msg("Chat session closed")
	return err
}

func (s *Session) fail(op, messageID string, err error) {
	class := Classify(err)
	s.logger.Warn().Err(err).Str("op", op).Str("message_id", messageID).Str("class", class.String()).Msg("Chat action failed")
	s.notify(Notice{Kind: NoticeError, Op: op, MessageID: messageID, Class: class, Err: err})
}

func (s *Session) notify(n Notice) {
	select {
	case s.notices <- n:
	default:
		s.logger.Warn().Str("notice", n.String()).Msg("Notice dropped, nobody is listening")
	}
}

func (s *Session) notifyUpdate() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

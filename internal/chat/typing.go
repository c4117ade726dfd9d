package chat

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/adi-253/Talkie/chatsync/internal/events"
	"github.com/adi-253/Talkie/chatsync/internal/models"
)

// TypingTracker drives the local typing state of one conversation and keeps
// the set of other participants currently composing.
type TypingTracker struct {
	chatID   string
	self     models.Participant
	idle     time.Duration
	ttl      time.Duration
	emit     func(events.Event) error
	sched    Scheduler
	logger   zerolog.Logger
	onChange func()

	mu         sync.Mutex
	typing     bool
	stopIdle   func()
	remote     map[string]*remoteTyper
	arrivalSeq uint64
}

type remoteTyper struct {
	name   string
	seq    uint64
	expire func()
}

// NewTypingTracker creates a tracker. emit sends typing and stop_typing for
// the local user; remote entries expire after ttl without a refresh.
func NewTypingTracker(chatID string, self models.Participant, idle, ttl time.Duration, emit func(events.Event) error, sched Scheduler, logger zerolog.Logger) *TypingTracker {
	return &TypingTracker{
		chatID: chatID,
		self:   self,
		idle:   idle,
		ttl:    ttl,
		emit:   emit,
		sched:  sched,
		logger: logger,
		remote: make(map[string]*remoteTyper),
	}
}

// OnChange registers a hook called when the set of remote typers changes.
func (t *TypingTracker) OnChange(fn func()) {
	t.onChange = fn
}

// Keystroke emits typing and restarts the inactivity timer.
func (t *TypingTracker) Keystroke() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.typing = true
	t.send(events.Typing{ChatID: t.chatID, UserName: t.self.Name})
	if t.stopIdle != nil {
		t.stopIdle()
	}
	t.stopIdle = t.sched.After(t.idle, t.idleExpired)
}

func (t *TypingTracker) idleExpired() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopIdle = nil
	t.stopLocal()
}

// stopLocal emits stop_typing once per typing run. mu must be held.
func (t *TypingTracker) stopLocal() {
	if !t.typing {
		return
	}
	t.typing = false
	t.send(events.StopTyping{ChatID: t.chatID})
}

// Typing reports whether the local user is in a typing run.
func (t *TypingTracker) Typing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typing
}

func (t *TypingTracker) send(e events.Event) {
	if err := t.emit(e); err != nil {
		t.logger.Debug().Err(err).Str("event", string(e.Type())).Msg("Typing event not sent")
	}
}

// Remote handles user_typing and user_stop_typing for this conversation.
func (t *TypingTracker) Remote(e events.Event) {
	t.mu.Lock()
	changed := false
	switch v := e.(type) {
	case events.UserTyping:
		changed = t.addRemote(v.UserID, v.UserName)
	case events.UserStopTyping:
		changed = t.removeRemote(v.UserID)
	}
	t.mu.Unlock()

	if changed {
		t.changed()
	}
}

func (t *TypingTracker) addRemote(userID, name string) bool {
	if userID == "" || userID == t.self.ID {
		return false
	}
	if name == "" {
		name = userID
	}

	r, ok := t.remote[userID]
	if ok {
		r.expire()
	} else {
		t.arrivalSeq++
		r = &remoteTyper{seq: t.arrivalSeq}
		t.remote[userID] = r
	}
	r.name = name
	r.expire = t.sched.After(t.ttl, func() {
		t.mu.Lock()
		removed := false
		if cur, ok := t.remote[userID]; ok && cur == r {
			delete(t.remote, userID)
			removed = true
		}
		t.mu.Unlock()
		if removed {
			t.changed()
		}
	})
	return !ok
}

func (t *TypingTracker) removeRemote(userID string) bool {
	r, ok := t.remote[userID]
	if !ok {
		return false
	}
	r.expire()
	delete(t.remote, userID)
	return true
}

func (t *TypingTracker) changed() {
	if t.onChange != nil {
		t.onChange()
	}
}

// Others returns the participants currently typing, in order of arrival.
func (t *TypingTracker) Others() []models.Participant {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := lo.Keys(t.remote)
	sort.Slice(ids, func(i, j int) bool { return t.remote[ids[i]].seq < t.remote[ids[j]].seq })
	return lo.Map(ids, func(id string, _ int) models.Participant {
		return models.Participant{ID: id, Name: t.remote[id].name}
	})
}

// Indicator renders the typing line: empty for nobody, the name for one
// participant and a count for more.
func (t *TypingTracker) Indicator() string {
	others := t.Others()
	switch len(others) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%s is typing…", others[0].Name)
	default:
		return fmt.Sprintf("%d people are typing…", len(others))
	}
}

// Stop ends the local typing run and forgets remote typers.
func (t *TypingTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopIdle != nil {
		t.stopIdle()
		t.stopIdle = nil
	}
	t.stopLocal()
	for id, r := range t.remote {
		r.expire()
		delete(t.remote, id)
	}
}

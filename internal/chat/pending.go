package chat

import (
	"sync"
	"time"
)

// PendingRegistry records which messages have a local edit or delete in
// flight. Inbound updates for those ids are dropped until the entry clears.
//
// An entry is cleared a fixed window after its mutation settles rather than
// at once, so the broadcast echo of that same mutation is still absorbed.
type PendingRegistry struct {
	window time.Duration
	sched  Scheduler

	mu      sync.Mutex
	entries map[string]*pendingEntry
	seq     uint64
}

type pendingEntry struct {
	seq      uint64
	deadline time.Time
	cancel   func()
}

// NewPendingRegistry creates a registry whose entries clear window after settling.
func NewPendingRegistry(window time.Duration, sched Scheduler) *PendingRegistry {
	return &PendingRegistry{
		window:  window,
		sched:   sched,
		entries: make(map[string]*pendingEntry),
	}
}

// Mark registers a mutation for id and returns its token. A newer mark
// supersedes an older one, including a clear the older one had scheduled.
func (r *PendingRegistry) Mark(id string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[id]; ok && e.cancel != nil {
		e.cancel()
	}
	r.seq++
	r.entries[id] = &pendingEntry{seq: r.seq}
	return r.seq
}

// IsPending reports whether id has a live entry.
func (r *PendingRegistry) IsPending(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

// Clear removes the entry for id immediately.
func (r *PendingRegistry) Clear(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remove(id)
}

// Settle schedules the clear of id once the suppression window has passed.
// It does nothing when token no longer owns the entry.
func (r *PendingRegistry) Settle(id string, token uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.seq != token {
		return
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.deadline = r.sched.Now().Add(r.window)
	e.cancel = r.sched.After(r.window, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if cur, ok := r.entries[id]; ok && cur.seq == token {
			delete(r.entries, id)
		}
	})
}

// Deadline returns when id is due to clear. The zero time means the mutation
// has not settled yet.
func (r *PendingRegistry) Deadline(id string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return time.Time{}, false
	}
	return e.deadline, true
}

// Len returns the number of pending ids.
func (r *PendingRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Reset drops every entry and its scheduled clear.
func (r *PendingRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.entries {
		r.remove(id)
	}
}

func (r *PendingRegistry) remove(id string) {
	if e, ok := r.entries[id]; ok {
		if e.cancel != nil {
			e.cancel()
		}
		delete(r.entries, id)
	}
}

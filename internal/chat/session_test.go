package chat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adi-253/Talkie/chatsync/internal/events"
	"github.com/adi-253/Talkie/chatsync/internal/models"
	"github.com/adi-253/Talkie/chatsync/internal/validation"
)

var errOffline = &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("network is unreachable")}

func seededAPI(msgs ...models.Message) *fakeAPI {
	api := newFakeAPI()
	api.pages[""] = &models.MessagePage{Messages: msgs}
	return api
}

func nextNotice(t *testing.T, s *Session) Notice {
	t.Helper()
	select {
	case n := <-s.Notices():
		return n
	case <-time.After(timeout):
		t.Fatal("no notice")
		return Notice{}
	}
}

func TestOpenJoinsAndLoads(t *testing.T) {
	api := seededAPI(msg("m1", 1, "a"), msg("m2", 2, "b"))
	rt := newFakeRealtime()
	s, _ := newTestSession(t, api, rt)

	assert.Equal(t, []string{"m1", "m2"}, s.Timeline().IDs())
	assert.Equal(t, []string{"c1"}, rt.joins)
	assert.Equal(t, 1, rt.subscribers())
	assert.NotEmpty(t, s.ID())
}

func TestOpenFailureReturnsLoadError(t *testing.T) {
	api := newFakeAPI()
	api.fetchErr = errOffline
	s := NewSession(testConfig(), "c1", api, newFakeRealtime())
	defer s.Close()

	err := s.Open(context.Background())
	var lerr *LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, 0, s.Timeline().Len())
	assert.Equal(t, ClassTransport, nextNotice(t, s).Class)

	api.mu.Lock()
	api.fetchErr = nil
	api.mu.Unlock()
	assert.NoError(t, s.Open(context.Background()))
}

// Sending "Hello" leaves the timeline alone until the echo arrives.
func TestSendWaitsForEcho(t *testing.T) {
	api := seededAPI()
	rt := newFakeRealtime()
	s, _ := newTestSession(t, api, rt)

	require.NoError(t, s.Send(context.Background(), SendInput{Content: "Hello"}))
	assert.Equal(t, 0, s.Timeline().Len())
	require.Len(t, api.sent, 1)
	assert.Equal(t, "Hello", *api.sent[0].Content)
	assert.Equal(t, models.MessageTypeText, api.sent[0].MessageType)

	echo := msg("m1", 1, "Hello")
	echo.AuthorID = "me"
	rt.deliver(events.NewMessage{Message: echo})
	rt.deliver(events.NewMessage{Message: echo})
	flush(t, s)

	require.Equal(t, 1, s.Timeline().Len())
	got, _ := s.Timeline().Get("m1")
	assert.Equal(t, echo, got)
}

func TestSendIgnoresOtherChats(t *testing.T) {
	rt := newFakeRealtime()
	s, _ := newTestSession(t, seededAPI(), rt)

	other := msg("x1", 1, "elsewhere")
	other.ChatID = "c2"
	rt.deliver(events.NewMessage{Message: other})
	flush(t, s)
	assert.Equal(t, 0, s.Timeline().Len())
}

func TestSendFailureSurfacesError(t *testing.T) {
	api := seededAPI()
	api.sendErr = errOffline
	s, _ := newTestSession(t, api, newFakeRealtime())

	err := s.Send(context.Background(), SendInput{Content: "Hello"})
	require.Error(t, err)
	assert.Equal(t, ClassTransport, Classify(err))

	n := nextNotice(t, s)
	assert.Equal(t, NoticeError, n.Kind)
	assert.Equal(t, "send", n.Op)
	assert.Equal(t, 0, s.Timeline().Len())
}

func TestSendRejectsInvalidAttachmentsWithoutNetwork(t *testing.T) {
	api := seededAPI()
	s, _ := newTestSession(t, api, newFakeRealtime())

	file := func(size int) models.Upload {
		return models.Upload{FileName: "f.png", MimeType: "image/png", Data: make([]byte, size)}
	}

	tests := []struct {
		name string
		in   SendInput
		want error
	}{
		{"six files", SendInput{Uploads: []models.Upload{file(1), file(1), file(1), file(1), file(1), file(1)}}, validation.ErrTooManyAttachments},
		{"oversized", SendInput{Content: "big", Uploads: []models.Upload{file(validation.MaxAttachmentSize + 1)}}, validation.ErrAttachmentTooLarge},
		{"empty", SendInput{Content: "   "}, validation.ErrEmptyMessage},
		{"exe", SendInput{Uploads: []models.Upload{{FileName: "a.exe", MimeType: "application/x-msdownload", Data: []byte{1}}}}, validation.ErrAttachmentType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Send(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, ClassValidation, Classify(err))
		})
	}

	_, sends, _, _ := api.calls()
	assert.Zero(t, sends)
}

func TestSendWithAttachmentsAndReply(t *testing.T) {
	api := seededAPI()
	s, _ := newTestSession(t, api, newFakeRealtime())

	err := s.Send(context.Background(), SendInput{
		ReplyToID: "m0",
		Uploads:   []models.Upload{{FileName: "a.pdf", MimeType: "application/pdf", Data: []byte("%PDF")}},
	})
	require.NoError(t, err)
	require.Len(t, api.sent, 1)
	assert.Nil(t, api.sent[0].Content)
	assert.Equal(t, "m0", *api.sent[0].ReplyToID)
}

// Editing offline shows the new content at once and reverts on failure.
func TestEditRollsBackOnFailure(t *testing.T) {
	api := seededAPI(msg("m1", 1, "Hello"))
	before := api.pages[""].Messages[0]
	s, _ := newTestSession(t, api, newFakeRealtime())

	seen := make(chan string, 1)
	api.onEdit = func(ctx context.Context, id, content string) (*models.Message, error) {
		m, _ := s.Timeline().Get(id)
		seen <- m.Text()
		return nil, errOffline
	}

	err := s.Edit(context.Background(), "m1", "Hi")
	require.Error(t, err)
	assert.Equal(t, "Hi", <-seen)

	after, _ := s.Timeline().Get("m1")
	assert.Equal(t, before, after)
	assert.False(t, after.Edited)

	n := nextNotice(t, s)
	assert.Equal(t, "edit", n.Op)
	assert.Equal(t, "m1", n.MessageID)
}

func TestEditMergesServerCopy(t *testing.T) {
	api := seededAPI(msg("m1", 1, "Hello"))
	s, _ := newTestSession(t, api, newFakeRealtime())

	api.onEdit = func(ctx context.Context, id, content string) (*models.Message, error) {
		m := msg(id, 1, "Hi (normalized)")
		m.Edited = true
		m.UpdatedAt = epoch.Add(time.Minute)
		return &m, nil
	}

	require.NoError(t, s.Edit(context.Background(), "m1", "Hi"))
	got, _ := s.Timeline().Get("m1")
	assert.Equal(t, "Hi (normalized)", got.Text())
	assert.Equal(t, epoch.Add(time.Minute), got.UpdatedAt)
}

func TestEchoSuppressedDuringSuppressionWindow(t *testing.T) {
	api := seededAPI(msg("m1", 1, "Hello"))
	rt := newFakeRealtime()
	s, advance := newTestSession(t, api, rt)

	release := make(chan struct{})
	api.onEdit = func(ctx context.Context, id, content string) (*models.Message, error) {
		<-release
		m := msg(id, 1, content)
		m.Edited = true
		return &m, nil
	}

	done := make(chan error, 1)
	go func() { done <- s.Edit(context.Background(), "m1", "Hi") }()
	require.Eventually(t, func() bool { return s.pending.IsPending("m1") }, timeout, tick)

	// the server echoes the pre-edit state before the response returns
	rt.deliver(events.MessageUpdated{Message: msg("m1", 1, "Hello")})
	flush(t, s)
	got, _ := s.Timeline().Get("m1")
	assert.Equal(t, "Hi", got.Text())

	close(release)
	require.NoError(t, <-done)

	// a late echo inside the window is absorbed too
	rt.deliver(events.MessageUpdated{Message: msg("m1", 1, "Hello")})
	flush(t, s)
	got, _ = s.Timeline().Get("m1")
	assert.Equal(t, "Hi", got.Text())

	advance(3 * time.Second)
	require.Eventually(t, func() bool { return !s.pending.IsPending("m1") }, timeout, tick)

	edited := msg("m1", 1, "Hey")
	edited.Edited = true
	rt.deliver(events.MessageUpdated{Message: edited})
	flush(t, s)
	got, _ = s.Timeline().Get("m1")
	assert.Equal(t, "Hey", got.Text())
}

func TestOnlyLatestEditOutcomeApplies(t *testing.T) {
	api := seededAPI(msg("m1", 1, "orig"))
	s, _ := newTestSession(t, api, newFakeRealtime())

	releases := map[string]chan struct{}{"A": make(chan struct{}), "B": make(chan struct{})}
	api.onEdit = func(ctx context.Context, id, content string) (*models.Message, error) {
		<-releases[content]
		m := msg(id, 1, content)
		m.Edited = true
		return &m, nil
	}

	doneA := make(chan error, 1)
	go func() { doneA <- s.Edit(context.Background(), "m1", "A") }()
	require.Eventually(t, func() bool { _, _, e, _ := api.calls(); return e == 1 }, timeout, tick)

	doneB := make(chan error, 1)
	go func() { doneB <- s.Edit(context.Background(), "m1", "B") }()
	require.Eventually(t, func() bool { _, _, e, _ := api.calls(); return e == 2 }, timeout, tick)

	// B's response returns first, then the older A response
	close(releases["B"])
	require.NoError(t, <-doneB)
	close(releases["A"])
	require.NoError(t, <-doneA)

	got, _ := s.Timeline().Get("m1")
	assert.Equal(t, "B", got.Text())
}

func TestSupersededEditFailureDoesNotRollBack(t *testing.T) {
	api := seededAPI(msg("m1", 1, "orig"))
	s, _ := newTestSession(t, api, newFakeRealtime())

	releases := map[string]chan struct{}{"A": make(chan struct{}), "B": make(chan struct{})}
	api.onEdit = func(ctx context.Context, id, content string) (*models.Message, error) {
		<-releases[content]
		if content == "A" {
			return nil, errOffline
		}
		m := msg(id, 1, content)
		m.Edited = true
		return &m, nil
	}

	doneA := make(chan error, 1)
	go func() { doneA <- s.Edit(context.Background(), "m1", "A") }()
	require.Eventually(t, func() bool { _, _, e, _ := api.calls(); return e == 1 }, timeout, tick)
	doneB := make(chan error, 1)
	go func() { doneB <- s.Edit(context.Background(), "m1", "B") }()
	require.Eventually(t, func() bool { _, _, e, _ := api.calls(); return e == 2 }, timeout, tick)

	close(releases["A"])
	require.Error(t, <-doneA)
	got, _ := s.Timeline().Get("m1")
	assert.Equal(t, "B", got.Text())

	close(releases["B"])
	require.NoError(t, <-doneB)
	got, _ = s.Timeline().Get("m1")
	assert.Equal(t, "B", got.Text())
}

func TestOlderEditSuccessAfterLatestFailureShowsServerState(t *testing.T) {
	api := seededAPI(msg("m1", 1, "orig"))
	s, _ := newTestSession(t, api, newFakeRealtime())

	releases := map[string]chan struct{}{"A": make(chan struct{}), "B": make(chan struct{})}
	api.onEdit = func(ctx context.Context, id, content string) (*models.Message, error) {
		<-releases[content]
		if content == "B" {
			return nil, errOffline
		}
		m := msg(id, 1, content)
		m.Edited = true
		return &m, nil
	}

	doneA := make(chan error, 1)
	go func() { doneA <- s.Edit(context.Background(), "m1", "A") }()
	require.Eventually(t, func() bool { _, _, e, _ := api.calls(); return e == 1 }, timeout, tick)
	doneB := make(chan error, 1)
	go func() { doneB <- s.Edit(context.Background(), "m1", "B") }()
	require.Eventually(t, func() bool { _, _, e, _ := api.calls(); return e == 2 }, timeout, tick)

	// the latest edit fails first and rolls back to the last confirmed value
	close(releases["B"])
	require.Error(t, <-doneB)
	got, _ := s.Timeline().Get("m1")
	assert.Equal(t, "orig", got.Text())

	// the older edit did reach the server, so its result is shown
	close(releases["A"])
	require.NoError(t, <-doneA)
	got, _ = s.Timeline().Get("m1")
	assert.Equal(t, "A", got.Text())
	assert.True(t, got.Edited)
}

// overlapEditAndDelete starts an edit to content and then a delete of m1,
// both held until the returned release funcs are called.
func overlapEditAndDelete(t *testing.T, s *Session, api *fakeAPI, content string, editErr, delErr error) (releaseEdit, releaseDelete func() error) {
	t.Helper()
	editGate, delGate := make(chan struct{}), make(chan struct{})
	api.onEdit = func(ctx context.Context, id, content string) (*models.Message, error) {
		<-editGate
		if editErr != nil {
			return nil, editErr
		}
		m := msg(id, 1, content)
		m.Edited = true
		return &m, nil
	}
	api.onDelete = func(ctx context.Context, id string) error {
		<-delGate
		return delErr
	}

	editDone, delDone := make(chan error, 1), make(chan error, 1)
	go func() { editDone <- s.Edit(context.Background(), "m1", content) }()
	require.Eventually(t, func() bool { _, _, e, _ := api.calls(); return e == 1 }, timeout, tick)
	go func() { delDone <- s.Delete(context.Background(), "m1") }()
	require.Eventually(t, func() bool { _, _, _, d := api.calls(); return d == 1 }, timeout, tick)
	assert.Equal(t, 0, s.Timeline().Len())

	releaseEdit = func() error { close(editGate); return <-editDone }
	releaseDelete = func() error { close(delGate); return <-delDone }
	return releaseEdit, releaseDelete
}

func TestEditFailureDuringDeleteRestoresConfirmedValue(t *testing.T) {
	api := seededAPI(msg("m1", 1, "Hello"))
	s, _ := newTestSession(t, api, newFakeRealtime())

	releaseEdit, releaseDelete := overlapEditAndDelete(t, s, api, "Hi", errOffline, errOffline)

	require.Error(t, releaseEdit())
	assert.Equal(t, 0, s.Timeline().Len())

	require.Error(t, releaseDelete())
	got, ok := s.Timeline().Get("m1")
	require.True(t, ok)
	assert.Equal(t, "Hello", got.Text())
	assert.False(t, got.Edited)
}

func TestEditSuccessDuringDeleteRestoresServerCopy(t *testing.T) {
	api := seededAPI(msg("m1", 1, "Hello"))
	s, _ := newTestSession(t, api, newFakeRealtime())

	releaseEdit, releaseDelete := overlapEditAndDelete(t, s, api, "Hi", nil, errOffline)

	require.NoError(t, releaseEdit())
	require.Error(t, releaseDelete())
	got, ok := s.Timeline().Get("m1")
	require.True(t, ok)
	assert.Equal(t, "Hi", got.Text())
	assert.True(t, got.Edited)
}

func TestDeleteFailureBeforeEditFailureRestoresOriginal(t *testing.T) {
	api := seededAPI(msg("m1", 1, "Hello"))
	s, _ := newTestSession(t, api, newFakeRealtime())

	releaseEdit, releaseDelete := overlapEditAndDelete(t, s, api, "Hi", errOffline, errOffline)

	require.Error(t, releaseDelete())
	require.Error(t, releaseEdit())
	got, ok := s.Timeline().Get("m1")
	require.True(t, ok)
	assert.Equal(t, "Hello", got.Text())
	assert.False(t, got.Edited)
}

func TestEditUnknownMessage(t *testing.T) {
	api := seededAPI()
	s, _ := newTestSession(t, api, newFakeRealtime())

	err := s.Edit(context.Background(), "ghost", "Hi")
	assert.ErrorIs(t, err, ErrMessageNotFound)
	assert.ErrorIs(t, s.Edit(context.Background(), "ghost", " "), validation.ErrEmptyMessage)

	_, _, edits, _ := api.calls()
	assert.Zero(t, edits)
}

func TestEditStateMachine(t *testing.T) {
	api := seededAPI(msg("m1", 1, "Hello"), msg("m2", 2, "World"))
	s, _ := newTestSession(t, api, newFakeRealtime())
	api.onEdit = func(ctx context.Context, id, content string) (*models.Message, error) {
		m := msg(id, 1, content)
		m.Edited = true
		return &m, nil
	}

	assert.ErrorIs(t, s.UpdateDraft("x"), ErrNotEditing)
	assert.ErrorIs(t, s.SubmitEdit(context.Background()), ErrNotEditing)

	require.NoError(t, s.BeginEdit("m1"))
	state, target, draft := s.EditorState()
	assert.Equal(t, EditEditing, state)
	assert.Equal(t, "m1", target)
	assert.Equal(t, "Hello", draft)
	assert.ErrorIs(t, s.BeginEdit("m2"), ErrEditInProgress)

	require.NoError(t, s.UpdateDraft(""))
	assert.ErrorIs(t, s.SubmitEdit(context.Background()), validation.ErrEmptyMessage)
	state, _, _ = s.EditorState()
	assert.Equal(t, EditEditing, state)

	require.NoError(t, s.UpdateDraft("Hi"))
	require.NoError(t, s.SubmitEdit(context.Background()))
	state, _, _ = s.EditorState()
	assert.Equal(t, EditIdle, state)
	got, _ := s.Timeline().Get("m1")
	assert.Equal(t, "Hi", got.Text())

	require.NoError(t, s.BeginEdit("m2"))
	require.NoError(t, s.CancelEdit())
	state, _, _ = s.EditorState()
	assert.Equal(t, EditIdle, state)
}

func TestEditorClosedWhenTargetDeletedRemotely(t *testing.T) {
	rt := newFakeRealtime()
	s, _ := newTestSession(t, seededAPI(msg("m1", 1, "Hello")), rt)

	require.NoError(t, s.BeginEdit("m1"))
	rt.deliver(events.MessageDeleted{ChatID: "c1", MessageID: "m1"})
	flush(t, s)

	state, _, _ := s.EditorState()
	assert.Equal(t, EditIdle, state)
	assert.Equal(t, NoticeInfo, nextNotice(t, s).Kind)
}

// A failed delete of "m2" puts it back where it was.
func TestDeleteRollsBackToOriginalPosition(t *testing.T) {
	api := seededAPI(msg("m1", 1, "a"), msg("m2", 2, "b"), msg("m3", 3, "c"))
	rt := newFakeRealtime()
	s, _ := newTestSession(t, api, rt)

	seen := make(chan []string, 1)
	api.onDelete = func(ctx context.Context, id string) error {
		seen <- s.Timeline().IDs()
		return errOffline
	}

	err := s.Delete(context.Background(), "m2")
	require.Error(t, err)
	assert.Equal(t, []string{"m1", "m3"}, <-seen)
	assert.Equal(t, []string{"m1", "m2", "m3"}, s.Timeline().IDs())

	n := nextNotice(t, s)
	assert.Equal(t, "delete", n.Op)
	assert.Equal(t, ClassTransport, n.Class)
}

func TestDeleteSuppressesEchoAndSucceeds(t *testing.T) {
	api := seededAPI(msg("m1", 1, "a"), msg("m2", 2, "b"))
	rt := newFakeRealtime()
	s, advance := newTestSession(t, api, rt)

	api.onDelete = func(ctx context.Context, id string) error {
		rt.deliver(events.MessageDeleted{ChatID: "c1", MessageID: id})
		return nil
	}
	require.NoError(t, s.Delete(context.Background(), "m2"))
	flush(t, s)
	assert.Equal(t, []string{"m1"}, s.Timeline().IDs())
	assert.True(t, s.pending.IsPending("m2"))

	advance(3 * time.Second)
	assert.Eventually(t, func() bool { return s.pending.Len() == 0 }, timeout, tick)
	assert.ErrorIs(t, s.Delete(context.Background(), "m2"), ErrMessageNotFound)
}

// Two loadOlder calls while the first is pending fetch one page.
func TestLoadOlderConcurrentCallsMergeOnce(t *testing.T) {
	api := newFakeAPI()
	api.pages[""] = &models.MessagePage{Messages: []models.Message{msg("m3", 3, "c")}, HasMore: true, NextCursor: "m3"}
	api.pages["m3"] = &models.MessagePage{Messages: []models.Message{msg("m1", 1, "a"), msg("m2", 2, "b")}}
	s, _ := newTestSession(t, api, newFakeRealtime())

	gate := make(chan struct{})
	api.mu.Lock()
	api.fetchGate = gate
	api.mu.Unlock()

	first := make(chan bool, 1)
	go func() {
		loaded, _ := s.LoadOlder(context.Background())
		first <- loaded
	}()
	require.Eventually(t, s.Loading, timeout, tick)

	loaded, err := s.LoadOlder(context.Background())
	require.NoError(t, err)
	assert.False(t, loaded)

	close(gate)
	assert.True(t, <-first)
	assert.Equal(t, []string{"m1", "m2", "m3"}, s.Timeline().IDs())
	assert.False(t, s.HasMore())

	loaded, err = s.LoadOlder(context.Background())
	require.NoError(t, err)
	assert.False(t, loaded)
}

// A types and goes idle; B sees the indicator appear and then clear.
func TestTypingIndicatorAcrossSessions(t *testing.T) {
	rtA, rtB := newFakeRealtime(), newFakeRealtime()
	a, advanceA := newTestSession(t, seededAPI(), rtA)
	b, _ := newTestSession(t, seededAPI(), rtB)

	relay := func(e events.Event) {
		switch e.(type) {
		case events.Typing:
			rtB.deliver(events.UserTyping{ChatID: "c1", UserID: "ann", UserName: "Ann"})
		case events.StopTyping:
			rtB.deliver(events.UserStopTyping{ChatID: "c1", UserID: "ann"})
		}
	}

	a.Keystroke()
	require.Equal(t, 1, rtA.count(events.TypeTyping))
	relay(events.Typing{})
	flush(t, b)
	assert.Equal(t, "Ann is typing…", b.TypingIndicator())

	advanceA(2 * time.Second)
	require.Eventually(t, func() bool { return rtA.count(events.TypeStopTyping) == 1 }, timeout, tick)
	relay(events.StopTyping{})
	flush(t, b)
	assert.Equal(t, "", b.TypingIndicator())
}

func TestUpdatesAreCoalesced(t *testing.T) {
	rt := newFakeRealtime()
	s, _ := newTestSession(t, seededAPI(), rt)

	for i := 0; i < 5; i++ {
		rt.deliver(events.NewMessage{Message: msg(fmt.Sprintf("m%d", i), i, "x")})
	}
	flush(t, s)

	<-s.Updates()
	select {
	case <-s.Updates():
		t.Fatal("updates were not coalesced")
	default:
	}
}

func TestServerErrorEventBecomesNotice(t *testing.T) {
	rt := newFakeRealtime()
	s, _ := newTestSession(t, seededAPI(), rt)

	rt.deliver(events.Error{Message: "not a participant"})
	n := nextNotice(t, s)
	assert.Equal(t, "realtime", n.Op)
	assert.EqualError(t, n.Err, "not a participant")
}

func TestCloseReleasesEverything(t *testing.T) {
	api := seededAPI(msg("m1", 1, "Hello"))
	rt := newFakeRealtime()
	s, advance := newTestSession(t, api, rt)

	release := make(chan struct{})
	api.onEdit = func(ctx context.Context, id, content string) (*models.Message, error) {
		<-release
		m := msg(id, 1, content)
		return &m, nil
	}
	done := make(chan error, 1)
	go func() { done <- s.Edit(context.Background(), "m1", "late") }()
	require.Eventually(t, func() bool { return s.pending.IsPending("m1") }, timeout, tick)

	s.Keystroke()
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	select {
	case <-s.Done():
	default:
		t.Fatal("done not closed")
	}
	assert.Equal(t, 1, rt.count(events.TypeStopTyping))
	assert.Equal(t, []string{"c1"}, rt.leaves)
	assert.Equal(t, 0, rt.subscribers())
	assert.Equal(t, 0, s.pending.Len())
	assert.Equal(t, 0, s.sched.pending())

	// the late response is discarded
	close(release)
	<-done
	assert.Equal(t, 0, s.Timeline().Len())

	advance(time.Hour)
	assert.ErrorIs(t, s.Send(context.Background(), SendInput{Content: "x"}), ErrSessionClosed)
	assert.ErrorIs(t, s.Delete(context.Background(), "m1"), ErrSessionClosed)
	_, err := s.LoadOlder(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)
}

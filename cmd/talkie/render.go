package main

import (
	"fmt"
	"io"

	"github.com/samber/lo"

	"github.com/adi-253/Talkie/chatsync/internal/chat"
	"github.com/adi-253/Talkie/chatsync/internal/models"
)

const shortIDLen = 8

// renderer prints timeline changes as they happen: new messages, edits and
// deletions relative to what was shown before.
type renderer struct {
	out     io.Writer
	selfID  string
	shown   map[string]models.Message
	hasMore bool
	typist  string
}

func newRenderer(out io.Writer, selfID string) *renderer {
	return &renderer{out: out, selfID: selfID, shown: make(map[string]models.Message)}
}

func (r *renderer) timeline(t *chat.Timeline, hasMore bool) {
	msgs := t.Messages()
	current := lo.KeyBy(msgs, func(m models.Message) string { return m.ID })

	if hasMore && !r.hasMore && len(r.shown) == 0 {
		fmt.Fprintln(r.out, "(older messages available, /older to load)")
	}
	r.hasMore = hasMore

	for _, m := range msgs {
		prev, seen := r.shown[m.ID]
		switch {
		case !seen:
			fmt.Fprintln(r.out, r.line(m, ""))
		case prev.Text() != m.Text():
			fmt.Fprintln(r.out, r.line(m, "edited"))
		}
	}
	for id, m := range r.shown {
		if _, ok := current[id]; !ok {
			fmt.Fprintf(r.out, "[%s] (deleted) %s\n", shortID(id), m.Text())
		}
	}
	r.shown = current
}

func (r *renderer) line(m models.Message, tag string) string {
	author := m.AuthorName
	if author == "" {
		author = m.AuthorID
	}
	if m.AuthorID == r.selfID {
		author += " (you)"
	}

	s := fmt.Sprintf("[%s] %s %s:", shortID(m.ID), m.CreatedAt.Local().Format("15:04"), author)
	if m.ReplyToID != nil {
		s += fmt.Sprintf(" ↪%s", shortID(*m.ReplyToID))
	}
	if tag != "" {
		s += " (" + tag + ")"
	} else if m.Edited {
		s += " (edited)"
	}
	if m.Content != nil {
		s += " " + *m.Content
	}
	for _, a := range m.Attachments {
		s += fmt.Sprintf(" [%s %s]", a.FileName, a.URL)
	}
	return s
}

func (r *renderer) typing(indicator string) {
	if indicator == r.typist {
		return
	}
	r.typist = indicator
	if indicator != "" {
		fmt.Fprintln(r.out, indicator)
	}
}

func (r *renderer) unread(n int) {
	if n > 0 {
		fmt.Fprintf(r.out, "(%d unread, /read to clear)\n", n)
	}
}

func (r *renderer) notice(n chat.Notice) {
	fmt.Fprintf(r.out, "! %s\n", n)
}

func (r *renderer) errorf(format string, args ...any) {
	fmt.Fprintf(r.out, "! "+format+"\n", args...)
}

func shortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[:shortIDLen]
}

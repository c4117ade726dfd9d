package chat

import "fmt"

// NoticeKind tells the UI how to present a Notice.
type NoticeKind int

const (
	// NoticeError reports a failed user action; local state was rolled back.
	NoticeError NoticeKind = iota
	// NoticeConnection reports a realtime connection problem. It is never fatal.
	NoticeConnection
	// NoticeInfo reports something the user should know that is not a failure.
	NoticeInfo
)

// Notice is a non-blocking notification emitted by a session.
type Notice struct {
	Kind      NoticeKind
	Op        string
	MessageID string
	Class     ErrorClass
	Err       error
	Text      string
}

func (n Notice) String() string {
	switch {
	case n.Err != nil && n.MessageID != "":
		return fmt.Sprintf("%s %s failed (%s): %v", n.Op, n.MessageID, n.Class, n.Err)
	case n.Err != nil:
		return fmt.Sprintf("%s failed (%s): %v", n.Op, n.Class, n.Err)
	}
	return n.Text
}

package chat

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/adi-253/Talkie/chatsync/internal/api"
	"github.com/adi-253/Talkie/chatsync/internal/realtime"
	"github.com/adi-253/Talkie/chatsync/internal/validation"
)

var (
	ErrSessionClosed   = errors.New("chat session closed")
	ErrMessageNotFound = errors.New("message not in timeline")
	ErrEditInProgress  = errors.New("another edit is in progress")
	ErrNotEditing      = errors.New("no edit in progress")
	ErrNotMounted      = errors.New("unread counter not mounted")

	// ErrStaleResponse means a result arrived for a session or load that has
	// since been replaced; it was discarded.
	ErrStaleResponse = errors.New("stale response discarded")
)

// LoadError is returned when a page of history could not be fetched.
type LoadError struct {
	ChatID string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load messages for chat %s: %v", e.ChatID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ErrorClass groups failures by how the user should be told about them.
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	ClassValidation
	ClassTransport
	ClassAuthorization
	ClassConflict
)

func (c ErrorClass) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassTransport:
		return "transport"
	case ClassAuthorization:
		return "authorization"
	case ClassConflict:
		return "conflict"
	}
	return "unknown"
}

// Classify maps an error returned by a session operation onto its class.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}

	var verr *validation.Error
	if errors.As(err, &verr) || errors.Is(err, api.ErrBadRequest) {
		return ClassValidation
	}

	switch {
	case errors.Is(err, api.ErrSessionInvalidated),
		errors.Is(err, api.ErrUnauthorized),
		errors.Is(err, api.ErrForbidden):
		return ClassAuthorization
	case errors.Is(err, api.ErrNotFound),
		errors.Is(err, api.ErrConflict),
		errors.Is(err, api.ErrGone),
		errors.Is(err, ErrMessageNotFound):
		return ClassConflict
	case errors.Is(err, api.ErrServer),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, realtime.ErrDisconnected),
		errors.Is(err, realtime.ErrNotConnected),
		errors.Is(err, realtime.ErrReconnectExhausted):
		return ClassTransport
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransport
	}
	return ClassUnknown
}

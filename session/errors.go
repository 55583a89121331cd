package session

import (
	"errors"
	"strings"
)

// ErrNotLoggedIn is returned by operations that need an identity when there is none.
var ErrNotLoggedIn = errors.New("not logged in")

// ErrorKind classifies failures surfaced to the auth views.
type ErrorKind int

const (
	// KindValidation is a local check that failed before any request was sent.
	KindValidation ErrorKind = iota + 1
	// KindRejected means the server answered with an error payload.
	KindRejected
	// KindTransport covers network failures, timeouts and unreadable replies.
	KindTransport
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRejected:
		return "rejected"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Error is the error type returned by Store mutations. Message is always safe
// to show next to the form.
type Error struct {
	Kind    ErrorKind
	Message string
	// AlreadyLoggedIn is set when the server refused a sign-up because the
	// caller already holds a session.
	AlreadyLoggedIn bool
	Err             error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a local validation failure.
func IsValidation(err error) bool {
	var sessErr *Error
	return errors.As(err, &sessErr) && sessErr.Kind == KindValidation
}

// Message returns the user-facing message carried by err, or fallback.
func Message(err error, fallback string) string {
	var sessErr *Error
	if errors.As(err, &sessErr) && strings.TrimSpace(sessErr.Message) != "" {
		return sessErr.Message
	}
	return fallback
}

func validationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// classify converts a backend error into an *Error. Server-provided messages
// are kept verbatim.
func classify(err error, fallback string) *Error {
	var rej rejection
	if errors.As(err, &rej) {
		out := &Error{Kind: KindRejected, Message: fallback, Err: err}
		if msg := strings.TrimSpace(rej.RejectionMessage()); msg != "" {
			out.Message = rej.RejectionMessage()
		}
		var flag loggedInFlag
		if errors.As(err, &flag) {
			out.AlreadyLoggedIn = flag.AlreadyLoggedIn()
		}
		return out
	}
	return &Error{Kind: KindTransport, Message: fallback, Err: err}
}

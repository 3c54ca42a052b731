package chat

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies a send failure for retry policy purposes.
type ErrorKind string

const (
	ErrKindNone       ErrorKind = ""
	ErrKindNetwork    ErrorKind = "network"
	ErrKindPermission ErrorKind = "permission"
	ErrKindValidation ErrorKind = "validation"
	ErrKindUnknown    ErrorKind = "unknown"
)

// User-facing error strings shown next to a failed message.
const (
	ErrTextOffline    = "No internet connection"
	ErrTextSendFailed = "Failed to send message"
)

// ErrUnavailable is returned by the remote layer when the server reports a
// transient-unavailable condition, or when no connection exists at call time.
var ErrUnavailable = errors.New("remote unavailable")

// ErrPermissionDenied is returned when the server rejects a write for
// authorization reasons.
var ErrPermissionDenied = errors.New("permission denied")

// ErrInvalidArgument is returned when the server rejects a malformed write.
var ErrInvalidArgument = errors.New("invalid argument")

// SendError is the classified failure handed back to send/retry callers.
type SendError struct {
	Kind ErrorKind
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failed (%s): %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// UserText returns the human-readable reason stored on the failed message.
func (e *SendError) UserText() string {
	if e.Kind == ErrKindNetwork {
		return ErrTextOffline
	}
	return ErrTextSendFailed
}

// Recoverable reports whether an automatic retry could help.
func (e *SendError) Recoverable() bool { return e.Kind == ErrKindNetwork }

// Classify wraps err in a SendError with its error kind. Network-class
// failures are the only recoverable ones; everything unclassified fails
// terminally rather than retrying indefinitely.
func Classify(err error) *SendError {
	var se *SendError
	if errors.As(err, &se) {
		return se
	}
	kind := ErrKindUnknown
	var netErr net.Error
	switch {
	case errors.Is(err, ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr):
		kind = ErrKindNetwork
	case errors.Is(err, ErrPermissionDenied):
		kind = ErrKindPermission
	case errors.Is(err, ErrInvalidArgument):
		kind = ErrKindValidation
	}
	return &SendError{Kind: kind, Err: err}
}

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrClosed is returned by Initialize after Shutdown.
	ErrClosed = errors.New("session supervisor closed")
	// ErrAuthFailure marks a transition caused by rejected credentials.
	ErrAuthFailure = errors.New("authentication failure")
	// ErrTransportDisconnect marks a transition caused by a dropped connection.
	ErrTransportDisconnect = errors.New("transport disconnected")
)

// InitializationError reports that a session handle could not be allocated or started.
type InitializationError struct {
	Stage string // "allocate" or "connect"
	Err   error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("session initialization failed at %s: %v", e.Stage, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// ErrorClass represents whether a failure should lead to an automatic restart.
type ErrorClass int

const (
	// ErrorClassRetryable indicates a transient failure (restart after delay).
	ErrorClassRetryable ErrorClass = iota
	// ErrorClassFatal indicates retrying with the same credentials is pointless.
	ErrorClassFatal
	// ErrorClassUnknown indicates the error type cannot be determined.
	ErrorClassUnknown
)

// String returns a human-readable name for the error class.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorClassRetryable:
		return "retryable"
	case ErrorClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify sorts a disconnect cause into retryable vs fatal.
//
// Fatal: ErrAuthFailure, InitializationError, logged out / banned / unauthorized
// messages from the transport.
// Retryable: ErrTransportDisconnect, context deadlines, network-ish messages and
// anything unrecognised (an unbounded retry beats a permanently dead integration).
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorClassUnknown
	}
	if errors.Is(err, ErrAuthFailure) {
		return ErrorClassFatal
	}
	var initErr *InitializationError
	if errors.As(err, &initErr) {
		return ErrorClassFatal
	}
	if errors.Is(err, ErrTransportDisconnect) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassRetryable
	}

	lower := strings.ToLower(err.Error())
	for _, p := range []string{"logged out", "logged_out", "unauthorized", "401", "403", "banned", "invalid session"} {
		if strings.Contains(lower, p) {
			return ErrorClassFatal
		}
	}
	return ErrorClassRetryable
}

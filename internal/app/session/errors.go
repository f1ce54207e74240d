package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	ErrNoMeeting      = errors.New("meeting id empty")
	ErrNotJoined      = errors.New("session not joined")
	ErrNoTrack        = errors.New("local track not acquired")
	ErrAlreadySharing = errors.New("screen share already active")
	ErrNotSharing     = errors.New("screen share not active")

	// ErrDuplicateSession may be returned by engine bindings that detect
	// the same identity already connected to the channel.
	ErrDuplicateSession = errors.New("UID_CONFLICT")
	// ErrPermissionDenied may be returned by engine bindings when capture
	// access is refused.
	ErrPermissionDenied = errors.New("permission denied")
)

type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNetwork
	KindPermissionDenied
	KindDuplicateSession
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindPermissionDenied:
		return "permission_denied"
	case KindDuplicateSession:
		return "duplicate_session"
	default:
		return "unknown"
	}
}

// JoinError is the classified failure of a join attempt.
type JoinError struct {
	Kind ErrorKind
	Err  error
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("join %s: %v", e.Kind, e.Err)
}

func (e *JoinError) Unwrap() error { return e.Err }

// Message is the user-facing text for the failure.
func (e *JoinError) Message() string {
	switch e.Kind {
	case KindNetwork:
		return "Network error. Please check your internet connection."
	case KindPermissionDenied:
		return "Permission denied. Please allow camera/microphone access."
	case KindDuplicateSession:
		return "You are already in this meeting in another window."
	}
	if e.Err != nil && e.Err.Error() != "" {
		return "Connection failed: " + e.Err.Error()
	}
	return "Failed to join meeting."
}

// Classify maps an engine or gateway error onto a JoinError. Engines carry
// no structured taxonomy, so the message text is matched as a fallback.
func Classify(err error) *JoinError {
	if err == nil {
		return nil
	}
	var je *JoinError
	if errors.As(err, &je) {
		return je
	}
	return &JoinError{Kind: classifyKind(err), Err: err}
}

func classifyKind(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrDuplicateSession):
		return KindDuplicateSession
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "UID_CONFLICT"):
		return KindDuplicateSession
	case strings.Contains(lower, "permission"), strings.Contains(msg, "NotAllowedError"):
		return KindPermissionDenied
	case strings.Contains(lower, "network"),
		strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "no such host"):
		return KindNetwork
	}
	return KindUnknown
}

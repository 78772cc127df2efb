package terminal

import (
	"errors"
	"fmt"
)

// Close reasons and sentinel errors
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrNotRunning       = errors.New("session is not running")
	ErrTooManySessions  = errors.New("session limit reached")
	ErrHeartbeatTimeout = errors.New("heartbeat timeout")
	ErrEOF              = errors.New("shell exited")
	ErrClosedByRequest  = errors.New("closed by request")
	ErrReplaced         = errors.New("replaced by a new session")
	ErrTransportClosed  = errors.New("transport closed")
	ErrServerShutdown   = errors.New("server shutting down")
)

// SessionStartError reports a shell that could not be launched. No session is
// registered when it is returned.
type SessionStartError struct {
	Shell string
	Err   error
}

func (e *SessionStartError) Error() string {
	return fmt.Sprintf("failed to start session with %s: %v", e.Shell, e.Err)
}

func (e *SessionStartError) Unwrap() error { return e.Err }

// IOError reports a pty syscall failure in the middle of a session.
type IOError struct {
	Op  string // "read", "write", "resize"
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("pty %s failed: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ResizeError reports a rejected geometry change. The session is unaffected.
type ResizeError struct {
	Rows int
	Cols int
	Err  error
}

func (e *ResizeError) Error() string {
	return fmt.Sprintf("resize to %dx%d rejected: %v", e.Rows, e.Cols, e.Err)
}

func (e *ResizeError) Unwrap() error { return e.Err }

var errInvalidGeometry = errors.New("rows and cols must be between 1 and 65535")

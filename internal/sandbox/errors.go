package sandbox

import (
	"errors"
	"fmt"
)

var (
	errNotStarted    = errors.New("session not started")
	errTransitioning = errors.New("session is transitioning states")
)

// StartError reports that a session's isolated runtime could not be
// provisioned. It is not retried internally; retry policy belongs to the
// caller, which may fall back to ephemeral mode.
type StartError struct {
	Owner string
	Err   error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start session for %q: %v", e.Owner, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// ExpiredError reports an operation against a session that exceeded its idle
// timeout. The session must be started again before further use.
type ExpiredError struct {
	Owner string
	Idle  string
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("session for %q expired after %s idle", e.Owner, e.Idle)
}

// ExecError is an infrastructure-level execution fault: the session is
// unreachable, crashed, or the per-call wall-clock timeout elapsed. It is
// distinct from an exception raised by the submitted code, which is ordinary
// output with Success=false.
type ExecError struct {
	Owner   string
	Timeout bool
	Err     error
}

func (e *ExecError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("execution in session for %q timed out: %v", e.Owner, e.Err)
	}
	return fmt.Sprintf("execution in session for %q failed: %v", e.Owner, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// TransferError reports a file transfer or listing failure, including the
// contract violation of calling transfer operations on a non-persistent
// session.
type TransferError struct {
	Op   string
	Path string
	Err  error
}

func (e *TransferError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.Path, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

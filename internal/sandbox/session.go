package sandbox

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Mode selects whether interpreter state survives between execution calls.
type Mode string

const (
	// ModeEphemeral gives each execution call a fresh interpreter; no
	// variable or import from one call is visible to the next.
	ModeEphemeral Mode = "ephemeral"

	// ModePersistent keeps variables, imports, and filesystem writes
	// visible across calls until the session is stopped or times out.
	ModePersistent Mode = "persistent"
)

// State is the lifecycle state of a session.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateTimedOut State = "timed_out"
)

// Session owns one isolated runtime and its lifecycle. A session belongs to
// exactly one owner at a time; the owner id names the underlying container so
// concurrent owners on one host cannot collide.
type Session struct {
	owner       string
	mode        Mode
	mgr         Manager
	idleTimeout time.Duration

	mu           sync.Mutex
	state        State
	containerID  string
	createdAt    time.Time
	lastActivity time.Time
}

// NewSession creates a session in state Stopped. idleTimeout <= 0 disables
// idle expiry.
func NewSession(mgr Manager, owner string, mode Mode, idleTimeout time.Duration) *Session {
	return &Session{
		owner:       owner,
		mode:        mode,
		mgr:         mgr,
		idleTimeout: idleTimeout,
		state:       StateStopped,
	}
}

// Owner returns the owner id the session's runtime is named after.
func (s *Session) Owner() string { return s.owner }

// Mode returns the session mode.
func (s *Session) Mode() Mode { return s.mode }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start provisions the isolated runtime. Idempotent if already running.
// Provisioning failure fails closed: the session returns to Stopped and a
// *StartError is reported; it is not retried here.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateRunning {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStarting
	s.mu.Unlock()

	containerID, err := s.mgr.EnsureContainer(ctx, s.owner)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateStopped
		s.containerID = ""
		return &StartError{Owner: s.owner, Err: err}
	}

	now := time.Now()
	s.state = StateRunning
	s.containerID = containerID
	s.createdAt = now
	s.lastActivity = now
	slog.Info("Session started", "owner", s.owner, "mode", s.mode, "container_id", containerID)
	return nil
}

// Stop releases the isolated runtime. Safe to call from any state, including
// an already-stopped session, and must run on every exit path of the owner so
// no runtime is ever leaked.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return nil
	}
	containerID := s.containerID
	s.state = StateStopping
	s.mu.Unlock()

	var err error
	if containerID != "" {
		err = s.mgr.StopContainer(ctx, containerID)
	}

	s.mu.Lock()
	s.state = StateStopped
	s.containerID = ""
	s.mu.Unlock()

	if err != nil {
		return err
	}
	slog.Info("Session stopped", "owner", s.owner)
	return nil
}

// IsRunning reports whether the session is in state Running. It is a pure
// query: it does not refresh the activity clock.
func (s *Session) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateRunning
}

// IdleFor returns how long the session has been without activity.
func (s *Session) IdleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastActivity.IsZero() {
		return 0
	}
	return time.Since(s.lastActivity)
}

// touch refreshes the activity clock. Called by every operation that
// exercises the session.
func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// expireIfIdle forces the TimedOut transition when the idle timeout has
// elapsed. The underlying runtime is released best-effort; further
// operations fail with *ExpiredError until Start is called again.
func (s *Session) expireIfIdle(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateRunning || s.idleTimeout <= 0 || time.Since(s.lastActivity) <= s.idleTimeout {
		s.mu.Unlock()
		return nil
	}
	containerID := s.containerID
	s.state = StateTimedOut
	s.containerID = ""
	s.mu.Unlock()

	slog.Info("Session idle timeout reached", "owner", s.owner, "idle_timeout", s.idleTimeout)
	if containerID != "" {
		if err := s.mgr.StopContainer(ctx, containerID); err != nil {
			slog.Warn("Failed to release timed-out session runtime", "owner", s.owner, "error", err)
		}
	}
	return &ExpiredError{Owner: s.owner, Idle: s.idleTimeout.String()}
}

// acquire validates the session for an operation and refreshes activity.
// An ephemeral session that was never started is provisioned transparently
// on first use; a timed-out session is not, its owner must Start again.
func (s *Session) acquire(ctx context.Context) (string, error) {
	if err := s.expireIfIdle(ctx); err != nil {
		return "", err
	}

	s.mu.Lock()
	state := s.state
	containerID := s.containerID
	s.mu.Unlock()

	switch state {
	case StateRunning:
		s.touch()
		return containerID, nil
	case StateTimedOut:
		return "", &ExpiredError{Owner: s.owner, Idle: s.idleTimeout.String()}
	case StateStopped:
		if s.mode != ModeEphemeral {
			return "", &StartError{Owner: s.owner, Err: errNotStarted}
		}
		if err := s.Start(ctx); err != nil {
			return "", err
		}
		s.mu.Lock()
		containerID = s.containerID
		s.mu.Unlock()
		return containerID, nil
	default:
		return "", &StartError{Owner: s.owner, Err: errTransitioning}
	}
}

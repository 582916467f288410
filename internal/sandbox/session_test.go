package sandbox

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// fakeManager is an in-memory Manager for lifecycle and execution tests.
type fakeManager struct {
	mu sync.Mutex

	ensureErr   error
	ensureCalls int

	execOutcome ExecOutcome
	execErr     error
	execFn      func(ctx context.Context, cmd []string) (ExecOutcome, error)
	execCmds    [][]string

	copied   []*bytes.Buffer
	copyDirs []string

	copyFromFn func(srcPath string) (io.ReadCloser, error)

	stopped []string
}

func (f *fakeManager) EnsureContainer(_ context.Context, owner string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureCalls++
	if f.ensureErr != nil {
		return "", f.ensureErr
	}
	return "container-" + owner, nil
}

func (f *fakeManager) StopContainer(_ context.Context, containerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, containerID)
	return nil
}

func (f *fakeManager) IsRunning(_ context.Context, _ string) (bool, error) {
	return true, nil
}

func (f *fakeManager) Exec(ctx context.Context, _ string, cmd []string) (ExecOutcome, error) {
	f.mu.Lock()
	f.execCmds = append(f.execCmds, cmd)
	fn := f.execFn
	outcome, err := f.execOutcome, f.execErr
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, cmd)
	}
	return outcome, err
}

func (f *fakeManager) CopyTo(_ context.Context, _ string, destDir string, content io.Reader) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, content); err != nil {
		return err
	}
	f.mu.Lock()
	f.copied = append(f.copied, &buf)
	f.copyDirs = append(f.copyDirs, destDir)
	f.mu.Unlock()
	return nil
}

func (f *fakeManager) CopyFrom(_ context.Context, _ string, srcPath string) (io.ReadCloser, error) {
	if f.copyFromFn != nil {
		return f.copyFromFn(srcPath)
	}
	return io.NopCloser(bytes.NewReader(nil)), nil
}

func (f *fakeManager) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stopped)
}

func TestSessionStartsStopped(t *testing.T) {
	sess := NewSession(&fakeManager{}, "alice", ModePersistent, time.Hour)
	if got := sess.State(); got != StateStopped {
		t.Errorf("state = %v, want %v", got, StateStopped)
	}
	if sess.IsRunning() {
		t.Error("IsRunning() = true for a fresh session")
	}
}

func TestSessionStartIsIdempotent(t *testing.T) {
	mgr := &fakeManager{}
	sess := NewSession(mgr, "alice", ModePersistent, time.Hour)

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if mgr.ensureCalls != 1 {
		t.Errorf("ensure calls = %d, want 1", mgr.ensureCalls)
	}
	if got := sess.State(); got != StateRunning {
		t.Errorf("state = %v, want %v", got, StateRunning)
	}
}

func TestSessionStartFailsClosed(t *testing.T) {
	mgr := &fakeManager{ensureErr: errors.New("image not found")}
	sess := NewSession(mgr, "alice", ModePersistent, time.Hour)

	err := sess.Start(context.Background())
	if err == nil {
		t.Fatal("Start() error = nil, want *StartError")
	}
	var startErr *StartError
	if !errors.As(err, &startErr) {
		t.Fatalf("Start() error type = %T, want *StartError", err)
	}
	if startErr.Owner != "alice" {
		t.Errorf("owner = %q, want alice", startErr.Owner)
	}
	if got := sess.State(); got != StateStopped {
		t.Errorf("state after failed start = %v, want %v", got, StateStopped)
	}
}

func TestSessionStopIsIdempotent(t *testing.T) {
	mgr := &fakeManager{}
	sess := NewSession(mgr, "alice", ModePersistent, time.Hour)

	if err := sess.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() on stopped session error = %v", err)
	}
	if mgr.stopCount() != 0 {
		t.Errorf("stop calls = %d, want 0", mgr.stopCount())
	}

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := sess.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := sess.Stop(context.Background()); err != nil {
		t.Fatalf("repeated Stop() error = %v", err)
	}
	if mgr.stopCount() != 1 {
		t.Errorf("stop calls = %d, want 1", mgr.stopCount())
	}
	if got := sess.State(); got != StateStopped {
		t.Errorf("state = %v, want %v", got, StateStopped)
	}
}

func TestSessionIdleTimeout(t *testing.T) {
	mgr := &fakeManager{}
	sess := NewSession(mgr, "alice", ModePersistent, 50*time.Millisecond)

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	sess.mu.Lock()
	sess.lastActivity = time.Now().Add(-time.Second)
	sess.mu.Unlock()

	_, err := sess.acquire(context.Background())
	var expired *ExpiredError
	if !errors.As(err, &expired) {
		t.Fatalf("acquire() error = %v, want *ExpiredError", err)
	}
	if got := sess.State(); got != StateTimedOut {
		t.Errorf("state = %v, want %v", got, StateTimedOut)
	}
	if mgr.stopCount() != 1 {
		t.Errorf("runtime not released on timeout: stop calls = %d", mgr.stopCount())
	}

	// Timed out stays timed out until an explicit restart.
	if _, err := sess.acquire(context.Background()); !errors.As(err, &expired) {
		t.Fatalf("second acquire() error = %v, want *ExpiredError", err)
	}

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("restart after timeout error = %v", err)
	}
	if _, err := sess.acquire(context.Background()); err != nil {
		t.Errorf("acquire() after restart error = %v", err)
	}
}

func TestSessionZeroTimeoutNeverExpires(t *testing.T) {
	sess := NewSession(&fakeManager{}, "alice", ModePersistent, 0)
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	sess.mu.Lock()
	sess.lastActivity = time.Now().Add(-24 * time.Hour)
	sess.mu.Unlock()

	if _, err := sess.acquire(context.Background()); err != nil {
		t.Errorf("acquire() error = %v, want nil", err)
	}
}

func TestPersistentSessionRequiresExplicitStart(t *testing.T) {
	sess := NewSession(&fakeManager{}, "alice", ModePersistent, time.Hour)

	_, err := sess.acquire(context.Background())
	var startErr *StartError
	if !errors.As(err, &startErr) {
		t.Fatalf("acquire() error = %v, want *StartError", err)
	}
}

func TestEphemeralSessionStartsOnFirstUse(t *testing.T) {
	mgr := &fakeManager{}
	sess := NewSession(mgr, "alice", ModeEphemeral, time.Hour)

	containerID, err := sess.acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire() error = %v", err)
	}
	if containerID == "" {
		t.Error("acquire() returned empty container id")
	}
	if got := sess.State(); got != StateRunning {
		t.Errorf("state = %v, want %v", got, StateRunning)
	}
}

func TestRegistryReapsIdleSessions(t *testing.T) {
	mgr := &fakeManager{}
	sess := NewSession(mgr, "alice", ModePersistent, 50*time.Millisecond)
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	sess.mu.Lock()
	sess.lastActivity = time.Now().Add(-time.Second)
	sess.mu.Unlock()

	reg := NewRegistry()
	reg.Add(sess)
	if reg.Len() != 1 {
		t.Fatalf("registry size = %d, want 1", reg.Len())
	}

	reg.sweep(context.Background())

	if got := sess.State(); got != StateTimedOut {
		t.Errorf("state after sweep = %v, want %v", got, StateTimedOut)
	}

	reg.Remove("alice")
	if reg.Len() != 0 {
		t.Errorf("registry size = %d, want 0", reg.Len())
	}
}

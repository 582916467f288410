package sandbox

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

const (
	codeFileName   = ".causalab_code.py"
	runnerFileName = ".causalab_runner.py"
	stateFileName  = ".causalab_state.db"

	// DefaultExecTimeout bounds one code unit when the caller provides none.
	DefaultExecTimeout = 5 * time.Minute
)

// persistentRunner wraps one code unit so the interpreter namespace survives
// between execution calls. The namespace is restored from and saved back to a
// dill archive in the working directory; entries dill cannot serialize are
// dropped silently so one unpicklable object does not poison the session.
// A raised exception is printed like a terminal would show it and surfaces
// only through the exit code.
const persistentRunner = `import os, sys, traceback

try:
    import dill
except ImportError:
    dill = None

STATE = os.path.join(os.path.dirname(os.path.abspath(__file__)), "` + stateFileName + `")
CODE = os.path.join(os.path.dirname(os.path.abspath(__file__)), "` + codeFileName + `")

ns = {"__name__": "__main__"}
if dill is not None and os.path.exists(STATE):
    try:
        with open(STATE, "rb") as f:
            ns.update(dill.load(f))
    except Exception:
        pass

with open(CODE) as f:
    code = f.read()

status = 0
try:
    exec(compile(code, "<session>", "exec"), ns)
except SystemExit as e:
    status = int(e.code or 0)
except Exception:
    traceback.print_exc()
    status = 1

if dill is not None:
    keep = {}
    for k, v in ns.items():
        if k in ("__name__", "__builtins__"):
            continue
        try:
            dill.dumps(v)
        except Exception:
            continue
        keep[k] = v
    try:
        with open(STATE, "wb") as f:
            dill.dump(keep, f)
    except Exception:
        pass

sys.exit(status)
`

// Result is the outcome of one code unit: merged stdout/stderr text, a
// success flag, and elapsed wall-clock time. Immutable once produced.
type Result struct {
	Output   string
	Success  bool
	Elapsed  time.Duration
	ExitCode int
}

// Engine submits code units to a session. An exception raised inside the
// submitted code is a normal outcome (Success=false, traceback embedded in
// Output); only an unreachable or timed-out runtime is a fault (*ExecError).
type Engine struct {
	mgr Manager
}

// NewEngine creates an execution engine over the given container manager.
func NewEngine(mgr Manager) *Engine {
	return &Engine{mgr: mgr}
}

// Run executes one code unit in the session. timeout <= 0 applies
// DefaultExecTimeout.
func (e *Engine) Run(ctx context.Context, sess *Session, code string, timeout time.Duration) (Result, error) {
	containerID, err := sess.acquire(ctx)
	if err != nil {
		return Result{}, err
	}

	if timeout <= 0 {
		timeout = DefaultExecTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	files := map[string]string{codeFileName: code}
	cmd := []string{"python3", workDir + "/" + codeFileName}
	if sess.Mode() == ModePersistent {
		files[runnerFileName] = persistentRunner
		cmd = []string{"python3", workDir + "/" + runnerFileName}
	}
	// Bound the in-container process a little past the wall-clock budget:
	// tearing down the attach stops the read, not the interpreter.
	bound := int(timeout/time.Second) + 5
	cmd = append([]string{"timeout", "-s", "KILL", strconv.Itoa(bound)}, cmd...)

	if err := e.stage(execCtx, containerID, files); err != nil {
		return Result{}, &ExecError{Owner: sess.Owner(), Err: err}
	}

	started := time.Now()
	outcome, err := e.mgr.Exec(execCtx, containerID, cmd)
	elapsed := time.Since(started)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return Result{}, &ExecError{Owner: sess.Owner(), Timeout: true, Err: fmt.Errorf("exceeded %s", timeout)}
		}
		return Result{}, &ExecError{Owner: sess.Owner(), Err: err}
	}
	sess.touch()

	slog.Debug("Code unit executed",
		"owner", sess.Owner(),
		"exit_code", outcome.ExitCode,
		"elapsed", elapsed,
		"output_bytes", len(outcome.Output),
	)

	return Result{
		Output:   outcome.Output,
		Success:  outcome.ExitCode == 0,
		Elapsed:  elapsed,
		ExitCode: outcome.ExitCode,
	}, nil
}

// stage writes the code unit (and harness, for persistent sessions) into the
// container working directory.
func (e *Engine) stage(ctx context.Context, containerID string, files map[string]string) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, content := range files {
		hdr := &tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("write tar header for %s: %w", name, err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			return fmt.Errorf("write tar entry for %s: %w", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar archive: %w", err)
	}
	return e.mgr.CopyTo(ctx, containerID, workDir, &buf)
}

package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/causalab/causalab/internal/analyst"
	"github.com/causalab/causalab/internal/collab"
	"github.com/causalab/causalab/internal/config"
	"github.com/causalab/causalab/internal/prompt"
	"github.com/causalab/causalab/internal/sandbox"
)

// sessionStopTimeout bounds the best-effort cleanup of a worker's session;
// cleanup must proceed even when the batch context is already canceled.
const sessionStopTimeout = 30 * time.Second

// Outcome is one query's batch result.
type Outcome struct {
	Query    Query        `json:"query"`
	Result   *analyst.Run `json:"result,omitempty"`
	WorkerID int          `json:"worker_id"`
	Status   string       `json:"status"`
	Error    string       `json:"error,omitempty"`
}

// CollabFactory builds a fresh collaborator for one worker.
type CollabFactory func(ctx context.Context, workerID int) (collab.Collaborator, error)

// Runner processes a batch of independent queries. Each query gets its own
// worker identity and, when persistent, its own session named after that
// identity; queries share no mutable state.
type Runner struct {
	cfg       *config.Config
	mgr       sandbox.Manager
	registry  *sandbox.Registry
	newCollab CollabFactory
}

// NewRunner creates a batch runner.
func NewRunner(cfg *config.Config, mgr sandbox.Manager, registry *sandbox.Registry, factory CollabFactory) *Runner {
	return &Runner{cfg: cfg, mgr: mgr, registry: registry, newCollab: factory}
}

// Process fans the queries out across the configured number of workers and
// collects every outcome. A single query's fault is recorded in its outcome
// and never takes down sibling queries.
func (r *Runner) Process(ctx context.Context, queries []Query) []Outcome {
	outcomes := make([]Outcome, len(queries))

	// Worker identities come from a pool. A query holds its id for its whole
	// lifetime and returns it on completion, so two in-flight queries can
	// never share an owner or the container name derived from it.
	ids := make(chan int, r.cfg.Workers)
	for id := 0; id < r.cfg.Workers; id++ {
		ids <- id
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	for i, q := range queries {
		g.Go(func() error {
			workerID := <-ids
			defer func() { ids <- workerID }()
			outcomes[i] = r.processOne(gctx, workerID, q)
			return nil
		})
	}
	// Workers never return errors; faults live in their outcomes.
	_ = g.Wait()

	return outcomes
}

// processOne answers a single query end to end. The session acquired for the
// query is released on every exit path, fault included.
func (r *Runner) processOne(ctx context.Context, workerID int, q Query) (outcome Outcome) {
	outcome = Outcome{Query: q, WorkerID: workerID, Status: "success"}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Worker panicked", "worker", workerID, "panic", rec)
			outcome.Status = "error"
			outcome.Error = fmt.Sprintf("panic: %v", rec)
		}
	}()

	c, err := r.newCollab(ctx, workerID)
	if err != nil {
		outcome.Status = "error"
		outcome.Error = fmt.Sprintf("create collaborator: %v", err)
		return outcome
	}

	mode := sandbox.ModeEphemeral
	if r.cfg.Persistent {
		mode = sandbox.ModePersistent
	}
	owner := fmt.Sprintf("worker-%d", workerID)
	sess := sandbox.NewSession(r.mgr, owner, mode, r.cfg.SessionTimeout)

	if mode == sandbox.ModePersistent {
		slog.Info("Starting persistent session", "worker", workerID)
		if err := sess.Start(ctx); err != nil {
			var startErr *sandbox.StartError
			if errors.As(err, &startErr) {
				// Caller policy for a failed provisioning: fall back
				// to ephemeral execution rather than failing the query.
				slog.Warn("Persistent session failed to start, falling back to ephemeral",
					"worker", workerID, "error", err)
				sess = sandbox.NewSession(r.mgr, owner, sandbox.ModeEphemeral, r.cfg.SessionTimeout)
			} else {
				outcome.Status = "error"
				outcome.Error = fmt.Sprintf("start session: %v", err)
				return outcome
			}
		}
	}

	r.registry.Add(sess)
	defer func() {
		r.registry.Remove(owner)
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionStopTimeout)
		defer cancel()
		if err := sess.Stop(stopCtx); err != nil {
			slog.Warn("Failed to stop session", "worker", workerID, "error", err)
		}
	}()

	if sess.Mode() == sandbox.ModePersistent {
		// The generated code reads the dataset at its original path, so
		// mirror that path inside the container.
		slog.Info("Uploading dataset", "worker", workerID, "dataset", q.DatasetPath)
		if err := sandbox.Upload(ctx, r.mgr, sess, q.DatasetPath, q.DatasetPath); err != nil {
			outcome.Status = "error"
			outcome.Error = fmt.Sprintf("upload dataset: %v", err)
			return outcome
		}
	}

	exec := &sessionExecutor{
		eng:     sandbox.NewEngine(r.mgr),
		sess:    sess,
		timeout: r.cfg.ExecTimeout,
	}

	var opts []analyst.Option
	if r.cfg.PostSteps {
		opts = append(opts, analyst.WithPostSteps())
	}
	a := analyst.New(c, exec, r.cfg.MaxRetries, opts...)

	slog.Info("Processing query", "worker", workerID, "query", truncate(q.Query, 100))
	run, err := a.Answer(ctx, q.Query, r.format(q))
	outcome.Result = run
	if err != nil {
		outcome.Status = "error"
		outcome.Error = err.Error()
		return outcome
	}
	return outcome
}

func (r *Runner) format(q Query) analyst.Format {
	if r.cfg.Format == "cot" {
		return &prompt.CoTFormat{
			Query:       q.Query,
			DatasetPath: q.DatasetPath,
			Description: q.DatasetDescription,
		}
	}
	return &prompt.CausalFormat{
		Query:       q.Query,
		DatasetPath: q.DatasetPath,
		Description: q.DatasetDescription,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

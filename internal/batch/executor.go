package batch

import (
	"context"
	"time"

	"github.com/causalab/causalab/internal/analyst"
	"github.com/causalab/causalab/internal/sandbox"
)

// sessionExecutor adapts one sandbox session to the analyst's executor
// contract, fixing the per-call timeout for the whole query.
type sessionExecutor struct {
	eng     *sandbox.Engine
	sess    *sandbox.Session
	timeout time.Duration
}

func (e *sessionExecutor) Execute(ctx context.Context, code string) (analyst.Execution, error) {
	res, err := e.eng.Run(ctx, e.sess, code, e.timeout)
	if err != nil {
		return analyst.Execution{}, err
	}
	return analyst.Execution{
		Output:  res.Output,
		Success: res.Success,
		Elapsed: res.Elapsed,
	}, nil
}

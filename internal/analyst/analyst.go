// Package analyst orchestrates the multi-turn exchange between the external
// collaborator and the code execution engine: extract a fenced code unit from
// the reply, run it, feed the output back, repeat under a bounded retry
// budget, then extract one structured record from the closing reply.
package analyst

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/causalab/causalab/internal/collab"
)

// defaultLanguage tags the fenced blocks the loop executes.
const defaultLanguage = "python"

// finalPrompt demands a single well-formed JSON object over the enumerated
// field set; fields the analysis did not determine must be null, not omitted.
const finalPrompt = `
Please provide a final summary of the analysis in a single, well-formed JSON object. The JSON object should have the following keys. If a field is not applicable, use ` + "`null`" + `.

- ` + "`method`" + `: The name of the primary causal inference method used (e.g., "Propensity Score Weighting", "Difference-in-Differences", "Frontdoor Estimation").
- ` + "`causal_effect`" + `: The estimated causal effect. Provide this as a numerical value.
- ` + "`standard_deviation`" + `: The standard deviation of the causal effect estimate, if available.
- ` + "`treatment_variable`" + `: The name of the treatment variable.
- ` + "`rct`" + `: Boolean indicating if the data is from a randomized controlled trial (true/false), or ` + "`null`" + ` if unsure.
- ` + "`outcome_variable`" + `: The name of the outcome variable.
- ` + "`mediators`" + `: The name of the mediator variable, if applicable.
- ` + "`covariates`" + `: A list of control / pre-treatment variables (for regression based estimators) or confounders used in causal inference process.
- ` + "`instrument_variable`" + `: The name of the instrumental variable, if applicable.
- ` + "`running_variable`" + `: The name of the running variable for Regression Discontinuity, if applicable.
- ` + "`temporal_variable`" + `: The name of the time variable for Difference-in-Differences, if applicable.
- ` + "`statistical_test_results`" + `: A summary of key statistical test results, like p-values or confidence intervals.
- ` + "`explanation_for_model_choice`" + `: A brief explanation for why the chosen causal method was appropriate for this analysis.
- ` + "`regression_equation`" + `: The exact regression equation if a regression model was used.

Output the JSON object only, without any additional text or explanation. Ensure the JSON is properly formatted and valid.
`

// Execution is the captured outcome of one code unit. Success=false means
// the code itself raised; the error text is part of Output, not a Go error.
type Execution struct {
	Output  string        `json:"output"`
	Success bool          `json:"success"`
	Elapsed time.Duration `json:"elapsed"`
}

// Executor runs one code unit in whatever isolated runtime backs the query.
// A returned error is an infrastructure fault and aborts the run; a failure
// inside the code is ordinary data in the Execution.
type Executor interface {
	Execute(ctx context.Context, code string) (Execution, error)
}

// Format shapes the prompts for one query style: the setup prompts that seed
// the loop, the prompt wrapping each execution result, and any fixed prompts
// appended after the loop.
type Format interface {
	PreQueries() ([]string, error)
	AnalysisPrompt(codeOutput string) string
	PostQueries() []string
}

// Run is everything one query produced: the code units in submission order,
// the parallel execution results, the conversation transcript, the retry
// count, and the final structured record. It holds no cross-run state.
type Run struct {
	Query       string           `json:"query"`
	Codes       []string         `json:"codes"`
	CodeOutputs []Execution      `json:"code_outputs"`
	Transcript  []collab.Message `json:"chat_history"`
	Retries     int              `json:"retries"`
	Final       Extraction       `json:"final_result"`
}

// Analyst drives one query at a time through the collaborator and the
// executor. It is single-threaded per query; parallelism belongs across
// independent queries, each with its own Analyst.
type Analyst struct {
	collab     collab.Collaborator
	exec       Executor
	maxRetries int
	postSteps  bool
	language   string
}

// Option configures an Analyst.
type Option func(*Analyst)

// WithPostSteps enables the fixed post-loop prompts of the format.
func WithPostSteps() Option {
	return func(a *Analyst) { a.postSteps = true }
}

// WithLanguage overrides the fenced-block tag the loop executes.
func WithLanguage(lang string) Option {
	return func(a *Analyst) { a.language = lang }
}

// New creates an Analyst. maxRetries bounds the number of executed code
// units; values below 1 are raised to 1.
func New(c collab.Collaborator, exec Executor, maxRetries int, opts ...Option) *Analyst {
	if maxRetries < 1 {
		maxRetries = 1
	}
	a := &Analyst{
		collab:     c,
		exec:       exec,
		maxRetries: maxRetries,
		language:   defaultLanguage,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Answer processes one query: reset history, send the format's setup prompts,
// run the code/retry loop, optionally send post prompts, and extract the
// final record. Collaborator and executor infrastructure faults abort the run
// and are returned alongside the partial Run; a failure inside submitted code
// never does — it is the feedback that drives the loop.
func (a *Analyst) Answer(ctx context.Context, query string, format Format) (*Run, error) {
	run := &Run{Query: query}

	// Queries are independent: discard any prior conversation.
	a.collab.DeleteHistory()

	pres, err := format.PreQueries()
	if err != nil {
		return run, fmt.Errorf("build setup prompts: %w", err)
	}

	reply := ""
	for _, q := range pres {
		reply, err = a.collab.Ask(ctx, q)
		if err != nil {
			run.Transcript = a.collab.History()
			return run, fmt.Errorf("setup prompt: %w", err)
		}
	}

	for attempt := 0; attempt < a.maxRetries; attempt++ {
		code, ok := FindCode(reply, a.language)
		if !ok {
			// No code in the reply: the collaborator considers the
			// analysis finished.
			break
		}

		run.Codes = append(run.Codes, code)

		res, err := a.exec.Execute(ctx, code)
		if err != nil {
			// Keep the code and output sequences parallel: the fault
			// text stands in for the output the unit never produced.
			run.CodeOutputs = append(run.CodeOutputs, Execution{Output: err.Error()})
			run.Transcript = a.collab.History()
			run.Retries = retries(len(run.Codes))
			return run, fmt.Errorf("execute code unit %d: %w", len(run.Codes), err)
		}
		run.CodeOutputs = append(run.CodeOutputs, res)

		slog.Debug("Code unit completed",
			"attempt", attempt+1,
			"success", res.Success,
			"elapsed", res.Elapsed,
		)

		reply, err = a.collab.Ask(ctx, format.AnalysisPrompt(res.Output))
		if err != nil {
			run.Transcript = a.collab.History()
			run.Retries = retries(len(run.Codes))
			return run, fmt.Errorf("analysis prompt: %w", err)
		}
	}

	if a.postSteps {
		for _, q := range format.PostQueries() {
			if _, err := a.collab.Ask(ctx, q); err != nil {
				run.Transcript = a.collab.History()
				run.Retries = retries(len(run.Codes))
				return run, fmt.Errorf("post prompt: %w", err)
			}
		}
	}

	finalReply, err := a.collab.Ask(ctx, finalPrompt)
	if err != nil {
		run.Transcript = a.collab.History()
		run.Retries = retries(len(run.Codes))
		return run, fmt.Errorf("final extraction prompt: %w", err)
	}
	run.Final = ExtractRecord(finalReply)

	run.Transcript = a.collab.History()
	run.Retries = retries(len(run.Codes))
	return run, nil
}

func retries(codeUnits int) int {
	if codeUnits <= 1 {
		return 0
	}
	return codeUnits - 1
}

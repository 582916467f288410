package analyst

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/causalab/causalab/internal/collab"
)

// fakeExecutor records submitted code and replays canned executions.
type fakeExecutor struct {
	codes   []string
	results []Execution
	err     error
}

func (f *fakeExecutor) Execute(_ context.Context, code string) (Execution, error) {
	f.codes = append(f.codes, code)
	if f.err != nil {
		return Execution{}, f.err
	}
	idx := len(f.codes) - 1
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	return f.results[idx], nil
}

// fixedFormat is a minimal Format with one setup prompt.
type fixedFormat struct {
	post []string
}

func (f *fixedFormat) PreQueries() ([]string, error) { return []string{"setup"}, nil }
func (f *fixedFormat) AnalysisPrompt(out string) string {
	return "Result:\n" + out
}
func (f *fixedFormat) PostQueries() []string { return f.post }

const finalJSON = "```json\n{\"method\": \"OLS\", \"causal_effect\": 2}\n```"

func TestAnswerSingleSuccessfulCodeUnit(t *testing.T) {
	c := collab.NewScripted(
		"```python\nprint(1 + 1)\n```", // reply to setup
		"The answer is 2.",             // reply to execution result, no code
		finalJSON,                      // reply to final prompt
	)
	exec := &fakeExecutor{results: []Execution{
		{Output: "2\n", Success: true, Elapsed: 10 * time.Millisecond},
	}}

	run, err := New(c, exec, 3).Answer(context.Background(), "what is 1+1", &fixedFormat{})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}

	if len(run.Codes) != 1 {
		t.Fatalf("codes = %d, want 1", len(run.Codes))
	}
	if len(run.CodeOutputs) != len(run.Codes) {
		t.Errorf("code outputs = %d, want %d", len(run.CodeOutputs), len(run.Codes))
	}
	if run.Retries != 0 {
		t.Errorf("retries = %d, want 0", run.Retries)
	}
	if !run.Final.OK() {
		t.Errorf("final extraction failed: %s", run.Final.Err)
	}
	if !strings.Contains(exec.codes[0], "print(1 + 1)") {
		t.Errorf("executed code = %q", exec.codes[0])
	}
}

func TestAnswerRetriesExhaustBudget(t *testing.T) {
	broken := "```python\n1/0\n```"
	c := collab.NewScripted(
		broken, // setup reply
		broken, // after failure 1
		broken, // after failure 2
		broken, // after failure 3 (ignored: budget spent)
		finalJSON,
	)
	exec := &fakeExecutor{results: []Execution{
		{Output: "ZeroDivisionError", Success: false},
	}}

	run, err := New(c, exec, 3).Answer(context.Background(), "q", &fixedFormat{})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}

	// Three code units executed; failing code is feedback, not a fault.
	if len(run.Codes) != 3 {
		t.Errorf("codes = %d, want 3", len(run.Codes))
	}
	if len(run.CodeOutputs) != 3 {
		t.Errorf("code outputs = %d, want 3", len(run.CodeOutputs))
	}
	if run.Retries != 2 {
		t.Errorf("retries = %d, want 2", run.Retries)
	}
	if !run.Final.OK() {
		t.Errorf("final extraction failed: %s", run.Final.Err)
	}
}

func TestAnswerNoCodeInFirstReply(t *testing.T) {
	c := collab.NewScripted(
		"No code needed; the dataset answers this directly.",
		finalJSON,
	)
	exec := &fakeExecutor{}

	run, err := New(c, exec, 3).Answer(context.Background(), "q", &fixedFormat{})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if len(run.Codes) != 0 {
		t.Errorf("codes = %d, want 0", len(run.Codes))
	}
	if run.Retries != 0 {
		t.Errorf("retries = %d, want 0", run.Retries)
	}
	if len(exec.codes) != 0 {
		t.Errorf("executor invoked %d times, want 0", len(exec.codes))
	}
}

func TestAnswerExecutorFaultAbortsRun(t *testing.T) {
	c := collab.NewScripted("```python\nprint('hi')\n```")
	exec := &fakeExecutor{err: errors.New("container unreachable")}

	run, err := New(c, exec, 3).Answer(context.Background(), "q", &fixedFormat{})
	if err == nil {
		t.Fatal("Answer() error = nil, want infrastructure fault")
	}
	if run == nil {
		t.Fatal("Answer() run = nil, want partial run")
	}
	if len(run.Codes) != 1 {
		t.Errorf("partial run codes = %d, want 1", len(run.Codes))
	}
	if len(run.CodeOutputs) != len(run.Codes) {
		t.Errorf("partial run outputs = %d, want %d to stay parallel with codes",
			len(run.CodeOutputs), len(run.Codes))
	}
	if run.CodeOutputs[0].Success {
		t.Error("faulted unit recorded as successful")
	}
	if len(run.Transcript) == 0 {
		t.Error("partial run transcript is empty")
	}
}

func TestAnswerPostStepsOnlyWhenEnabled(t *testing.T) {
	c := collab.NewScripted(
		"no code here",
		"post reply",
		finalJSON,
	)
	format := &fixedFormat{post: []string{"describe the residuals"}}

	run, err := New(c, &fakeExecutor{}, 3, WithPostSteps()).
		Answer(context.Background(), "q", format)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}

	found := false
	for _, m := range run.Transcript {
		if m.Role == collab.RoleUser && m.Content == "describe the residuals" {
			found = true
		}
	}
	if !found {
		t.Error("post prompt missing from transcript")
	}
}

func TestAnswerTranscriptRecordsConversation(t *testing.T) {
	c := collab.NewScripted("plain reply", finalJSON)

	run, err := New(c, &fakeExecutor{}, 1).Answer(context.Background(), "q", &fixedFormat{})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	// setup + final prompt, each with a reply.
	if len(run.Transcript) != 4 {
		t.Errorf("transcript length = %d, want 4", len(run.Transcript))
	}
}

func TestRetriesNeverNegative(t *testing.T) {
	tests := []struct {
		codeUnits int
		want      int
	}{
		{0, 0},
		{1, 0},
		{2, 1},
		{5, 4},
	}
	for _, tt := range tests {
		if got := retries(tt.codeUnits); got != tt.want {
			t.Errorf("retries(%d) = %d, want %d", tt.codeUnits, got, tt.want)
		}
	}
}

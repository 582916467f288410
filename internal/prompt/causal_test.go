package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeDataset(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trial.csv")
	content := "treatment,outcome,age\n1,2.5,30\n0,1.5,41\n1,3.0,25\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCausalFormatSetupPrompt(t *testing.T) {
	f := &CausalFormat{
		Query:       "Does the treatment improve the outcome?",
		DatasetPath: writeDataset(t),
		Description: "A small randomized trial.",
	}

	pres, err := f.PreQueries()
	if err != nil {
		t.Fatalf("PreQueries() error = %v", err)
	}
	if len(pres) != 1 {
		t.Fatalf("setup prompts = %d, want 1", len(pres))
	}

	p := pres[0]
	for _, want := range []string{
		f.DatasetPath,
		f.Query,
		"A small randomized trial.",
		"treatment",
		"outcome",
		"approved packages",
		"Frontdoor adjustment",
		"'```python' and '```'",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("setup prompt missing %q", want)
		}
	}
}

func TestCausalFormatMissingDataset(t *testing.T) {
	f := &CausalFormat{
		Query:       "q",
		DatasetPath: filepath.Join(t.TempDir(), "absent.csv"),
	}
	if _, err := f.PreQueries(); err == nil {
		t.Error("PreQueries() accepted a missing dataset")
	}
}

func TestCausalFormatAnalysisPromptEmbedsOutput(t *testing.T) {
	f := &CausalFormat{}
	got := f.AnalysisPrompt("ValueError: could not convert")
	if !strings.Contains(got, "ValueError: could not convert") {
		t.Error("analysis prompt missing execution output")
	}
	if !strings.Contains(got, "corrected version") {
		t.Error("analysis prompt missing correction instruction")
	}
}

func TestCausalFormatHasNoPostQueries(t *testing.T) {
	f := &CausalFormat{}
	if got := f.PostQueries(); len(got) != 0 {
		t.Errorf("post queries = %v, want none", got)
	}
}

func TestCoTFormatStepsThroughReasoning(t *testing.T) {
	f := &CoTFormat{
		Query:       "Does X cause Y?",
		DatasetPath: writeDataset(t),
	}

	pres, err := f.PreQueries()
	if err != nil {
		t.Fatalf("PreQueries() error = %v", err)
	}
	p := pres[0]
	for _, want := range []string{"Step 1", "Step 2", "Step 3", "Step 4", "treatment variable", "estimand"} {
		if !strings.Contains(p, want) {
			t.Errorf("chain-of-thought prompt missing %q", want)
		}
	}
}

package batch

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/causalab/causalab/internal/analyst"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return s
}

func TestStoreSaveAndSummarize(t *testing.T) {
	s := openStore(t)

	method := "OLS"
	effect := analyst.FlexNumber(2.5)
	success := Outcome{
		Query:    Query{Query: "Does X cause Y?", DatasetPath: "/data/xy.csv"},
		WorkerID: 0,
		Status:   "success",
		Result: &analyst.Run{
			Query:   "Does X cause Y?",
			Retries: 1,
			Final: analyst.Extraction{
				Record: &analyst.FinalRecord{Method: &method, CausalEffect: &effect},
			},
		},
	}
	failure := Outcome{
		Query:    Query{Query: "Does A cause B?", DatasetPath: "/data/ab.csv"},
		WorkerID: 1,
		Status:   "error",
		Error:    "container unreachable",
	}

	for _, o := range []Outcome{success, failure} {
		id, err := s.SaveOutcome(context.Background(), o)
		if err != nil {
			t.Fatalf("SaveOutcome() error = %v", err)
		}
		if id == "" {
			t.Error("SaveOutcome() returned empty id")
		}
	}

	sum, err := s.Summarize(context.Background())
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if sum.Total != 2 || sum.Succeeded != 1 || sum.Failed != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.Retries != 1 {
		t.Errorf("retries = %d, want 1", sum.Retries)
	}
}

func TestStorePing(t *testing.T) {
	s := openStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestStoreEmptySummary(t *testing.T) {
	s := openStore(t)
	sum, err := s.Summarize(context.Background())
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if sum.Total != 0 {
		t.Errorf("total = %d, want 0", sum.Total)
	}
}

package batch

import (
	"os"
	"path/filepath"
	"testing"
)

func writeBatch(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadQueriesJSON(t *testing.T) {
	path := writeBatch(t, "queries.json", `[
		{"query": "Does smoking cause cancer?", "dataset_path": "/data/smoking.csv"},
		{"query": "Effect of training on wages?", "dataset_path": "/data/lalonde.csv", "dataset_description": "NSW job training data"}
	]`)

	queries, err := LoadQueries(path)
	if err != nil {
		t.Fatalf("LoadQueries() error = %v", err)
	}
	if len(queries) != 2 {
		t.Fatalf("queries = %d, want 2", len(queries))
	}
	if queries[1].DatasetDescription != "NSW job training data" {
		t.Errorf("description = %q", queries[1].DatasetDescription)
	}
}

func TestLoadQueriesCSV(t *testing.T) {
	path := writeBatch(t, "queries.csv",
		"query,dataset_path,dataset_description\n"+
			"\"Does X cause Y?\",/data/xy.csv,synthetic\n"+
			"\"Effect of Z?\",/data/z.csv,\n")

	queries, err := LoadQueries(path)
	if err != nil {
		t.Fatalf("LoadQueries() error = %v", err)
	}
	if len(queries) != 2 {
		t.Fatalf("queries = %d, want 2", len(queries))
	}
	if queries[0].Query != "Does X cause Y?" || queries[0].DatasetDescription != "synthetic" {
		t.Errorf("first query = %+v", queries[0])
	}
	if queries[1].DatasetDescription != "" {
		t.Errorf("second description = %q, want empty", queries[1].DatasetDescription)
	}
}

func TestLoadQueriesCSVWithoutDescriptionColumn(t *testing.T) {
	path := writeBatch(t, "queries.csv",
		"query,dataset_path\n\"Does X cause Y?\",/data/xy.csv\n")

	queries, err := LoadQueries(path)
	if err != nil {
		t.Fatalf("LoadQueries() error = %v", err)
	}
	if len(queries) != 1 {
		t.Fatalf("queries = %d, want 1", len(queries))
	}
}

func TestLoadQueriesValidation(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"unsupported extension", "queries.yaml", "queries: []"},
		{"empty batch", "queries.json", "[]"},
		{"missing query", "queries.json", `[{"dataset_path": "/d.csv"}]`},
		{"missing dataset path", "queries.json", `[{"query": "q"}]`},
		{"missing required column", "queries.csv", "question,path\nq,/d.csv\n"},
		{"malformed json", "queries.json", "{not json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeBatch(t, tt.file, tt.content)
			if _, err := LoadQueries(path); err == nil {
				t.Error("LoadQueries() accepted an invalid batch")
			}
		})
	}
}

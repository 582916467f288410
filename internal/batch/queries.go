// Package batch drives independent queries through the analysis loop in
// parallel: load a query batch, fan out across workers each owning its own
// sandbox session, and compile results.
package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Query is one causal question against one dataset.
type Query struct {
	Query              string `json:"query"`
	DatasetPath        string `json:"dataset_path"`
	DatasetDescription string `json:"dataset_description"`
}

// LoadQueries reads a query batch from a JSON array or a CSV file with a
// header row, chosen by file extension.
func LoadQueries(path string) ([]Query, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return loadJSONQueries(path)
	case ".csv":
		return loadCSVQueries(path)
	default:
		return nil, fmt.Errorf("unsupported query batch format %q (want .json or .csv)", filepath.Ext(path))
	}
}

func loadJSONQueries(path string) ([]Query, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read query batch: %w", err)
	}
	var queries []Query
	if err := json.Unmarshal(data, &queries); err != nil {
		return nil, fmt.Errorf("decode query batch %s: %w", path, err)
	}
	return validateQueries(path, queries)
}

func loadCSVQueries(path string) ([]Query, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read query batch: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read query batch header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, required := range []string{"query", "dataset_path"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("query batch %s is missing column %q", path, required)
		}
	}

	var queries []Query
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read query batch row: %w", err)
		}
		q := Query{
			Query:       cell(row, col["query"]),
			DatasetPath: cell(row, col["dataset_path"]),
		}
		if idx, ok := col["dataset_description"]; ok {
			q.DatasetDescription = cell(row, idx)
		}
		queries = append(queries, q)
	}
	return validateQueries(path, queries)
}

func cell(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func validateQueries(path string, queries []Query) ([]Query, error) {
	if len(queries) == 0 {
		return nil, fmt.Errorf("query batch %s contains no queries", path)
	}
	for i, q := range queries {
		if q.Query == "" {
			return nil, fmt.Errorf("query batch %s: entry %d has an empty query", path, i)
		}
		if q.DatasetPath == "" {
			return nil, fmt.Errorf("query batch %s: entry %d has an empty dataset_path", path, i)
		}
	}
	return queries, nil
}

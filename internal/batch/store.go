package batch

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/causalab/causalab/internal/analyst"
)

// Store persists batch outcomes to SQLite so interrupted batches leave a
// queryable record behind.
type Store struct {
	db *sql.DB
}

// Summary aggregates a stored batch.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Retries   int `json:"retries"`
}

// NewStore opens (or creates) the results database.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		query TEXT NOT NULL,
		dataset_path TEXT NOT NULL,
		worker_id INTEGER NOT NULL,
		status TEXT NOT NULL,
		retries INTEGER NOT NULL DEFAULT 0,
		method TEXT,
		causal_effect TEXT,
		result_json TEXT,
		error TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveOutcome records one query's outcome and returns the run ID.
func (s *Store) SaveOutcome(ctx context.Context, o Outcome) (string, error) {
	id := uuid.NewString()

	var retries int
	var resultJSON, method, causalEffect interface{}
	if o.Result != nil {
		retries = o.Result.Retries
		raw, err := json.Marshal(o.Result)
		if err != nil {
			return "", fmt.Errorf("marshal run: %w", err)
		}
		resultJSON = string(raw)

		if rec := extractedRecord(o.Result); rec != nil {
			if rec.Method != nil {
				method = *rec.Method
			}
			if rec.CausalEffect.Known() {
				causalEffect = strconv.FormatFloat(rec.CausalEffect.Value(), 'g', -1, 64)
			}
		}
	}

	var errMsg interface{}
	if o.Error != "" {
		errMsg = o.Error
	}

	query := `
	INSERT INTO runs (id, query, dataset_path, worker_id, status, retries, method, causal_effect, result_json, error, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		id, o.Query.Query, o.Query.DatasetPath, o.WorkerID, o.Status,
		retries, method, causalEffect, resultJSON, errMsg,
		time.Now().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// Summarize aggregates every stored run.
func (s *Store) Summarize(ctx context.Context) (*Summary, error) {
	query := `
	SELECT COUNT(*),
	       COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0),
	       COALESCE(SUM(CASE WHEN status != 'success' THEN 1 ELSE 0 END), 0),
	       COALESCE(SUM(retries), 0)
	FROM runs`

	var sum Summary
	row := s.db.QueryRowContext(ctx, query)
	if err := row.Scan(&sum.Total, &sum.Succeeded, &sum.Failed, &sum.Retries); err != nil {
		return nil, fmt.Errorf("scan summary: %w", err)
	}
	return &sum, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func extractedRecord(run *analyst.Run) *analyst.FinalRecord {
	if run.Final.OK() {
		return run.Final.Record
	}
	return nil
}

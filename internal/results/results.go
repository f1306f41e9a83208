// Package results keeps the history of famgraph runs in rqlite
package results

import (
	"context"
	"fmt"
	"time"

	"github.com/rqlite/gorqlite"
	"github.com/rs/zerolog/log"
)

// Run is one finished algorithm run
type Run struct {
	ID        string
	Algorithm string
	Graph     string
	Mode      string
	Parameter string // start vertex, k or iteration count
	Result    string // max distance, core size, component count or top rank
	Rounds    int
	Duration  time.Duration
	Started   time.Time
}

// Store records runs
type Store struct {
	conn *gorqlite.Connection
}

// NewStore connects to rqlite at dbURI and creates the schema
func NewStore(dbURI string) (*Store, error) {
	log.Info().Str("dbURI", dbURI).Msg("Initializing run history with rqlite")

	conn, err := gorqlite.Open(dbURI)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rqlite: %w", err)
	}

	store := &Store{conn: conn}
	if err := store.initializeSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initializeSchema() error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		algorithm TEXT NOT NULL,
		graph TEXT NOT NULL,
		mode TEXT NOT NULL,
		parameter TEXT NOT NULL,
		result TEXT NOT NULL,
		rounds INTEGER NOT NULL,
		duration_ms REAL NOT NULL,
		started TEXT NOT NULL
	);
	`
	createIndexSQL := `CREATE INDEX IF NOT EXISTS idx_runs_algorithm ON runs (algorithm, started);`

	if _, err := s.conn.WriteOne(createTableSQL); err != nil {
		return fmt.Errorf("failed to create runs table: %w", err)
	}
	if _, err := s.conn.WriteOne(createIndexSQL); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// Close closes the connection
func (s *Store) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	return nil
}

// RecordRun stores r, replacing a run with the same id
func (s *Store) RecordRun(ctx context.Context, r Run) error {
	stmt := gorqlite.ParameterizedStatement{
		Query: `
		INSERT OR REPLACE INTO runs
		(id, algorithm, graph, mode, parameter, result, rounds, duration_ms, started)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
		`,
		Arguments: []interface{}{
			r.ID,
			r.Algorithm,
			r.Graph,
			r.Mode,
			r.Parameter,
			r.Result,
			r.Rounds,
			float64(r.Duration.Nanoseconds()) / 1e6,
			r.Started.UTC().Format(time.RFC3339Nano),
		},
	}

	if _, err := s.conn.WriteOneParameterized(stmt); err != nil {
		return fmt.Errorf("failed to record run %s: %w", r.ID, err)
	}

	log.Debug().Str("id", r.ID).Str("algorithm", r.Algorithm).Msg("Recorded run")
	return nil
}

// RecentRuns returns up to limit runs of algorithm, newest first. An empty
// algorithm matches every run.
func (s *Store) RecentRuns(ctx context.Context, algorithm string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	stmt := gorqlite.ParameterizedStatement{
		Query: `
		SELECT id, algorithm, graph, mode, parameter, result, rounds, duration_ms, started
		FROM runs
		WHERE ? = '' OR algorithm = ?
		ORDER BY started DESC
		LIMIT ?;
		`,
		Arguments: []interface{}{algorithm, algorithm, limit},
	}

	result, err := s.conn.QueryOneParameterized(stmt)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	var runs []Run
	for result.Next() {
		var (
			r          Run
			rounds     int64
			durationMS float64
			started    string
		)
		if err := result.Scan(&r.ID, &r.Algorithm, &r.Graph, &r.Mode, &r.Parameter, &r.Result, &rounds, &durationMS, &started); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.Rounds = int(rounds)
		r.Duration = time.Duration(durationMS * float64(time.Millisecond))
		if r.Started, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("failed to parse start time of run %s: %w", r.ID, err)
		}
		runs = append(runs, r)
	}

	return runs, nil
}

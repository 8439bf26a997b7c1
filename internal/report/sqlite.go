package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/signalsfoundry/wsn-simulator/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  TEXT NOT NULL,
	node_count  INTEGER NOT NULL,
	coverage_k  INTEGER NOT NULL,
	seed        INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS rounds (
	run_id            TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	round             INTEGER NOT NULL,
	alive             INTEGER NOT NULL,
	isolated          INTEGER NOT NULL,
	dead              INTEGER NOT NULL,
	sleeping          INTEGER NOT NULL,
	controller_energy REAL NOT NULL,
	residual_energy   REAL NOT NULL,
	feasible_edges    INTEGER NOT NULL,
	reachable         INTEGER NOT NULL,
	components        INTEGER NOT NULL,
	delivered         INTEGER NOT NULL,
	failed            INTEGER NOT NULL,
	slept             INTEGER NOT NULL,
	woken             INTEGER NOT NULL,
	elapsed_ns        INTEGER NOT NULL,
	PRIMARY KEY (run_id, round)
);
CREATE TABLE IF NOT EXISTS node_energy (
	run_id  TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	round   INTEGER NOT NULL,
	node_id TEXT NOT NULL,
	energy  REAL NOT NULL,
	state   TEXT NOT NULL,
	PRIMARY KEY (run_id, round, node_id)
);
`

// RunInfo identifies one simulation run in the store.
type RunInfo struct {
	// ID defaults to a random UUID.
	ID        string
	StartedAt time.Time
	NodeCount int
	CoverageK int
	Seed      uint64
}

// SQLiteStore records every round of a run in a SQLite database. Several
// runs may share one database file.
type SQLiteStore struct {
	db    *sql.DB
	runID string
}

// NewSQLiteStore opens (or creates) the database at path and registers run.
func NewSQLiteStore(ctx context.Context, path string, run RunInfo) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, node_count, coverage_k, seed) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC().Format(time.RFC3339Nano), run.NodeCount, run.CoverageK, int64(run.Seed),
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("register run %s: %w", run.ID, err)
	}
	return &SQLiteStore{db: db, runID: run.ID}, nil
}

// RunID returns the identifier rows are recorded under.
func (s *SQLiteStore) RunID() string { return s.runID }

// WriteRound stores the round and every node's energy in one transaction.
func (s *SQLiteStore) WriteRound(ctx context.Context, stats model.RoundStats, nodes []model.NodeSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin round %d: %w", stats.Round, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO rounds (run_id, round, alive, isolated, dead, sleeping,
			controller_energy, residual_energy, feasible_edges, reachable, components,
			delivered, failed, slept, woken, elapsed_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.runID, stats.Round, stats.Alive, stats.Isolated, stats.Dead, stats.Sleeping,
		stats.ControllerEnergy, stats.ResidualEnergy, stats.FeasibleEdges, stats.Reachable, stats.Components,
		stats.Delivered, stats.Failed, stats.Slept, stats.Woken, stats.Elapsed.Nanoseconds(),
	); err != nil {
		return fmt.Errorf("insert round %d: %w", stats.Round, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO node_energy (run_id, round, node_id, energy, state) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare node energy: %w", err)
	}
	defer stmt.Close()
	for _, n := range nodes {
		if _, err := stmt.ExecContext(ctx, s.runID, stats.Round, n.ID, n.Energy, n.State); err != nil {
			return fmt.Errorf("insert energy for %s: %w", n.ID, err)
		}
	}
	return tx.Commit()
}

// Rounds reads back the recorded rounds of the store's run, in order.
func (s *SQLiteStore) Rounds(ctx context.Context) ([]model.RoundStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT round, alive, isolated, dead, sleeping, controller_energy, residual_energy,
			feasible_edges, reachable, components, delivered, failed, slept, woken, elapsed_ns
		FROM rounds WHERE run_id = ? ORDER BY round`, s.runID)
	if err != nil {
		return nil, fmt.Errorf("query rounds: %w", err)
	}
	defer rows.Close()

	var out []model.RoundStats
	for rows.Next() {
		var st model.RoundStats
		var elapsed int64
		if err := rows.Scan(&st.Round, &st.Alive, &st.Isolated, &st.Dead, &st.Sleeping,
			&st.ControllerEnergy, &st.ResidualEnergy, &st.FeasibleEdges, &st.Reachable, &st.Components,
			&st.Delivered, &st.Failed, &st.Slept, &st.Woken, &elapsed); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		st.Elapsed = time.Duration(elapsed)
		out = append(out, st)
	}
	return out, rows.Err()
}

// NodeEnergy returns the recorded energy of one node per round.
func (s *SQLiteStore) NodeEnergy(ctx context.Context, nodeID string) (map[int]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT round, energy FROM node_energy WHERE run_id = ? AND node_id = ? ORDER BY round`,
		s.runID, nodeID)
	if err != nil {
		return nil, fmt.Errorf("query node energy: %w", err)
	}
	defer rows.Close()

	out := make(map[int]float64)
	for rows.Next() {
		var round int
		var energy float64
		if err := rows.Scan(&round, &energy); err != nil {
			return nil, fmt.Errorf("scan node energy: %w", err)
		}
		out[round] = energy
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

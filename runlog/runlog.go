// Package runlog keeps a SQLite ledger of finished runs so the results of a
// sweep can be compared after the fact.
package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Run kinds.
const (
	KindGCN         = "gcn"
	KindPersistence = "persistence"
)

// Run is one row of the ledger.
type Run struct {
	ID       int64
	Name     string
	Kind     string
	LeadTime int

	// NoiseVar is NaN for runs without a BMC loss.
	NoiseVar float64

	MSE     float64
	RMSE    float64
	Seconds float64
	Epochs  int

	CreatedAt time.Time
}

// Store manages the SQLite connection and schema.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the ledger at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		lead_time INTEGER NOT NULL,
		noise_var REAL,
		mse REAL,
		rmse REAL,
		seconds REAL NOT NULL DEFAULT 0,
		epochs INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_kind_lead ON runs(kind, lead_time);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create runs table: %w", err)
	}
	return nil
}

// Record appends r to the ledger and sets its ID. A zero CreatedAt is set to
// the current time.
func (s *Store) Record(ctx context.Context, r *Run) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (name, kind, lead_time, noise_var, mse, rmse, seconds, epochs, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.Name, r.Kind, r.LeadTime, nullFloat(r.NoiseVar), nullFloat(r.MSE), nullFloat(r.RMSE), r.Seconds, r.Epochs, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read run id: %w", err)
	}
	return nil
}

// List returns every run in insertion order.
func (s *Store) List(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, kind, lead_time, noise_var, mse, rmse, seconds, epochs, created_at
		FROM runs ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// Best returns the run of the given kind and lead time with the lowest MSE,
// or nil if there is none.
func (s *Store) Best(ctx context.Context, kind string, leadTime int) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, kind, lead_time, noise_var, mse, rmse, seconds, epochs, created_at
		FROM runs
		WHERE kind = ? AND lead_time = ? AND mse IS NOT NULL
		ORDER BY mse ASC, id ASC
		LIMIT 1
	`, kind, leadTime)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r              Run
		noise, mse, rm sql.NullFloat64
	)
	err := sc.Scan(&r.ID, &r.Name, &r.Kind, &r.LeadTime, &noise, &mse, &rm, &r.Seconds, &r.Epochs, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	r.NoiseVar = fromNull(noise)
	r.MSE = fromNull(mse)
	r.RMSE = fromNull(rm)
	return &r, nil
}

// nullFloat maps NaN to NULL.
func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func fromNull(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// Package journal keeps a local sqlite ledger of provider calls and
// executed tasks. The hive stays authoritative for workflow status; the
// journal exists so the daily budget survives a restart and so operators
// can inspect what the daemon has been doing.
package journal

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Call is one provider call attempt, successful or not.
type Call struct {
	ID       string
	Provider string
	Model    string
	Tokens   int
	Outcome  string // "ok" or an error class
	CalledAt time.Time
}

// TaskRecord mirrors a dispatched order's lifecycle for local inspection.
type TaskRecord struct {
	OrderID    string
	Worker     string
	Status     string
	Failure    string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Store wraps the sqlite database behind the journal.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the journal database in dataDir and runs pending
// migrations. Pass ":memory:" for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "colmena.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Single connection avoids "database is locked" under the cooperative loop.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

// --- Provider calls ---

// RecordCall appends one provider call attempt to the ledger.
func (s *Store) RecordCall(c Call) error {
	_, err := s.db.Exec(`
		INSERT INTO provider_calls (id, provider, model, tokens, outcome, called_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Provider, c.Model, c.Tokens, c.Outcome,
		c.CalledAt.UTC().Format(time.RFC3339),
	)
	return err
}

// CallsSince counts call attempts recorded at or after t. Used to restore
// the daily budget counter on startup.
func (s *Store) CallsSince(t time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM provider_calls WHERE called_at >= ?",
		t.UTC().Format(time.RFC3339),
	).Scan(&n)
	return n, err
}

// --- Tasks ---

// SaveTask inserts or replaces the journal entry for orderID.
func (s *Store) SaveTask(r TaskRecord) error {
	var finished string
	if !r.FinishedAt.IsZero() {
		finished = r.FinishedAt.UTC().Format(time.RFC3339)
	}
	_, err := s.db.Exec(`
		INSERT INTO tasks (order_id, worker, status, failure, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			status = excluded.status,
			failure = excluded.failure,
			finished_at = excluded.finished_at`,
		r.OrderID, r.Worker, r.Status, r.Failure,
		r.StartedAt.UTC().Format(time.RFC3339), finished,
	)
	return err
}

// GetTask returns the journal entry for orderID.
func (s *Store) GetTask(orderID string) (TaskRecord, error) {
	var r TaskRecord
	var started, finished string
	err := s.db.QueryRow(`
		SELECT order_id, worker, status, failure, started_at, finished_at
		FROM tasks WHERE order_id = ?`, orderID,
	).Scan(&r.OrderID, &r.Worker, &r.Status, &r.Failure, &started, &finished)
	if err == sql.ErrNoRows {
		return TaskRecord{}, ErrNotFound
	}
	if err != nil {
		return TaskRecord{}, err
	}
	if r.StartedAt, err = time.Parse(time.RFC3339, started); err != nil {
		return TaskRecord{}, fmt.Errorf("parsing started_at: %w", err)
	}
	if finished != "" {
		if r.FinishedAt, err = time.Parse(time.RFC3339, finished); err != nil {
			return TaskRecord{}, fmt.Errorf("parsing finished_at: %w", err)
		}
	}
	return r, nil
}

// RecentTasks returns up to limit journal entries, newest first.
func (s *Store) RecentTasks(limit int) ([]TaskRecord, error) {
	rows, err := s.db.Query(`
		SELECT order_id, worker, status, failure, started_at, finished_at
		FROM tasks ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []TaskRecord
	for rows.Next() {
		var r TaskRecord
		var started, finished string
		if err := rows.Scan(&r.OrderID, &r.Worker, &r.Status, &r.Failure, &started, &finished); err != nil {
			return nil, err
		}
		if r.StartedAt, err = time.Parse(time.RFC3339, started); err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		if finished != "" {
			if r.FinishedAt, err = time.Parse(time.RFC3339, finished); err != nil {
				return nil, fmt.Errorf("parsing finished_at: %w", err)
			}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

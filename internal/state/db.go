// Package state provides the SQLite-backed audit trail: every status
// transition and verification verdict, queryable after the fact. The
// snapshot store remains the source of truth; the audit database only
// records history.
package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stagehand-dev/stagehand/pkg/models"
)

// DB wraps an SQLite database connection with audit operations.
type DB struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// DefaultPath returns the audit database path under the user's data
// directory.
func DefaultPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "stagehand", "audit.db")
}

// Open opens an SQLite database at the given path, creating parent
// directories if needed. WAL mode is enabled for concurrent reads.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	db := &DB{conn: conn, path: path}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}

// Path returns the path to the database file.
func (db *DB) Path() string {
	return db.path
}

// migrate applies all pending schema migrations.
func (db *DB) migrate() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Transitions},
		{2, migrationV2Verdicts},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}
	return nil
}

const migrationV1Transitions = `
	CREATE TABLE transitions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		list_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		from_status TEXT NOT NULL,
		to_status TEXT NOT NULL,
		list_version INTEGER NOT NULL,
		recorded_at DATETIME NOT NULL
	);
	CREATE INDEX idx_transitions_task ON transitions(task_id);
	CREATE INDEX idx_transitions_list ON transitions(list_id);
`

const migrationV2Verdicts = `
	CREATE TABLE verdicts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id TEXT NOT NULL,
		attempt INTEGER NOT NULL,
		overall INTEGER NOT NULL,
		raw TEXT,
		recorded_at DATETIME NOT NULL
	);
	CREATE INDEX idx_verdicts_task ON verdicts(task_id);
`

// Transition is one recorded status change.
type Transition struct {
	ListID      string
	TaskID      string
	From        models.TaskStatus
	To          models.TaskStatus
	ListVersion int
	RecordedAt  time.Time
}

// Verdict is one recorded verification outcome.
type Verdict struct {
	TaskID     string
	Attempt    int
	Overall    bool
	Raw        string
	RecordedAt time.Time
}

// RecordTransition appends a status change to the trail.
func (db *DB) RecordTransition(listID, taskID string, from, to models.TaskStatus, version int) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		INSERT INTO transitions (list_id, task_id, from_status, to_status, list_version, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, listID, taskID, string(from), string(to), version, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

// RecordVerdict appends a verification outcome to the trail.
func (db *DB) RecordVerdict(taskID string, attempt int, overall bool, raw string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		INSERT INTO verdicts (task_id, attempt, overall, raw, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`, taskID, attempt, overall, raw, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record verdict: %w", err)
	}
	return nil
}

// TaskTransitions returns a task's status history, oldest first.
func (db *DB) TaskTransitions(taskID string) ([]Transition, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT list_id, task_id, from_status, to_status, list_version, recorded_at
		FROM transitions WHERE task_id = ? ORDER BY id
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var tr Transition
		var from, to string
		if err := rows.Scan(&tr.ListID, &tr.TaskID, &from, &to, &tr.ListVersion, &tr.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		tr.From = models.TaskStatus(from)
		tr.To = models.TaskStatus(to)
		out = append(out, tr)
	}
	return out, rows.Err()
}

// TaskVerdicts returns a task's verification history, oldest first.
func (db *DB) TaskVerdicts(taskID string) ([]Verdict, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT task_id, attempt, overall, raw, recorded_at
		FROM verdicts WHERE task_id = ? ORDER BY id
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("query verdicts: %w", err)
	}
	defer rows.Close()

	var out []Verdict
	for rows.Next() {
		var v Verdict
		var raw sql.NullString
		if err := rows.Scan(&v.TaskID, &v.Attempt, &v.Overall, &raw, &v.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan verdict: %w", err)
		}
		v.Raw = raw.String
		out = append(out, v)
	}
	return out, rows.Err()
}

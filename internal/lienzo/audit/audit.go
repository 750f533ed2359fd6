// Package audit persists per-turn decisions to SQLite so operators can
// review why the system answered, clarified, or rejected. Conversation
// state itself is never persisted here; the log records outcomes only.
package audit

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Decision is one recorded turn outcome.
type Decision struct {
	ID             int64
	Timestamp      time.Time
	RequestID      string
	SessionID      string
	Intent         string
	Confidence     float64
	ResponseType   string
	FallbackReason sql.NullString
	Duration       time.Duration
}

// Store wraps the database connection.
type Store struct {
	db *sql.DB
}

// Open creates a Store at dbPath and runs migrations.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite is single-writer. A single shared connection serializes
	// concurrent callers through database/sql instead of letting them
	// fight for write locks.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	store := &Store{db: db}
	if err := store.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordDecision appends one turn outcome to the log.
func (s *Store) RecordDecision(ctx context.Context, d Decision) error {
	ts := d.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decision_log (ts, request_id, session_id, intent, confidence, response_type, fallback_reason, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ts, d.RequestID, d.SessionID, d.Intent, d.Confidence, d.ResponseType, d.FallbackReason, d.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to write decision log: %w", err)
	}
	return nil
}

// RecentDecisions retrieves the most recent entries, newest first.
func (s *Store) RecentDecisions(ctx context.Context, limit int) ([]*Decision, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, request_id, session_id, intent, confidence, response_type, fallback_reason, duration_ms
		FROM decision_log
		ORDER BY ts DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query decision log: %w", err)
	}
	defer rows.Close()
	return scanDecisions(rows)
}

// SessionDecisions retrieves every entry for one session, oldest first.
func (s *Store) SessionDecisions(ctx context.Context, sessionID string) ([]*Decision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, request_id, session_id, intent, confidence, response_type, fallback_reason, duration_ms
		FROM decision_log
		WHERE session_id = ?
		ORDER BY ts ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query decision log: %w", err)
	}
	defer rows.Close()
	return scanDecisions(rows)
}

func scanDecisions(rows *sql.Rows) ([]*Decision, error) {
	var entries []*Decision
	for rows.Next() {
		d := &Decision{}
		var durationMS int64
		err := rows.Scan(
			&d.ID, &d.Timestamp, &d.RequestID, &d.SessionID,
			&d.Intent, &d.Confidence, &d.ResponseType,
			&d.FallbackReason, &durationMS,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision entry: %w", err)
		}
		d.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decision log: %w", err)
	}
	return entries, nil
}

// runMigrations applies pending schema migrations in filename order.
func (s *Store) runMigrations() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			description TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	err = s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var version int
		parts := strings.SplitN(entry.Name(), "_", 2)
		if len(parts) < 2 {
			continue
		}
		if _, err := fmt.Sscanf(parts[0], "%d", &version); err != nil {
			continue
		}
		description := strings.TrimSuffix(parts[1], ".sql")

		if version <= currentVersion {
			continue
		}

		content, err := migrationsFS.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", version, err)
		}
		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
			version, time.Now(), description,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", version, err)
		}

		slog.Info("applied migration", "version", fmt.Sprintf("%04d", version), "description", description)
	}

	return nil
}

package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/BTreeMap/AgentBuilder/internal/models"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists sessions and workflows in an SQLite database file.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

var _ SessionStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	cfg := applyOpts(opts)
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "", "ttl", cfg.TTL)

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, ErrDSNNotSet
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		slog.Error("SQLite ping failed", "error", err)
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		db.Close()
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully", "dsn", dsn)

	return &SQLiteStore{db: db, ttl: cfg.TTL, now: cfg.Now}, nil
}

// Save stores or updates a session.
func (s *SQLiteStore) Save(ctx context.Context, state *models.SessionState) error {
	raw, err := encodeState(state)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, stage, status, state_json, created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			stage = excluded.stage,
			status = excluded.status,
			state_json = excluded.state_json,
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at`,
		state.SessionID, string(state.Stage), string(state.Status), raw,
		state.CreatedAt, state.UpdatedAt, expiresAt(s.now(), s.ttl))
	if err != nil {
		slog.Error("SQLiteStore Save failed", "error", err, "sessionID", state.SessionID)
		return fmt.Errorf("failed to save session %s: %w", state.SessionID, err)
	}
	slog.Debug("SQLiteStore Save succeeded", "sessionID", state.SessionID, "stage", state.Stage)
	return nil
}

// Load retrieves a session.
func (s *SQLiteStore) Load(ctx context.Context, sessionID string) (*models.SessionState, error) {
	var raw string
	var exp int64
	err := s.db.QueryRowContext(ctx, `SELECT state_json, expires_at FROM sessions WHERE session_id = ?`, sessionID).Scan(&raw, &exp)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug("SQLiteStore Load not found", "sessionID", sessionID)
		return nil, ErrSessionNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore Load failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	if s.now().UnixNano() >= exp {
		slog.Debug("SQLiteStore Load expired", "sessionID", sessionID)
		return nil, ErrSessionExpired
	}
	return decodeState(sessionID, raw)
}

// Delete removes a session and its workflow.
func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM workflows WHERE session_id = ?`, sessionID); err != nil {
		slog.Error("SQLiteStore Delete workflow failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to delete workflow of session %s: %w", sessionID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID); err != nil {
		slog.Error("SQLiteStore Delete failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete of session %s: %w", sessionID, err)
	}
	slog.Debug("SQLiteStore Delete succeeded", "sessionID", sessionID)
	return nil
}

// Extend refreshes the expiry of a session.
func (s *SQLiteStore) Extend(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET expires_at = ? WHERE session_id = ?`,
		expiresAt(s.now(), s.ttl), sessionID)
	if err != nil {
		slog.Error("SQLiteStore Extend failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to extend session %s: %w", sessionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ListActive returns the ids of unexpired active sessions.
func (s *SQLiteStore) ListActive(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id FROM sessions WHERE status = ? AND expires_at > ? ORDER BY session_id`,
		string(models.SessionStatusActive), s.now().UnixNano())
	if err != nil {
		slog.Error("SQLiteStore ListActive query failed", "error", err)
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	return scanIDs(rows)
}

// PurgeExpired deletes sessions that expired before the given time, with their workflows,
// and inbound records received before it.
func (s *SQLiteStore) PurgeExpired(ctx context.Context, before time.Time) (int, error) {
	cutoff := before.UnixNano()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin purge: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM workflows WHERE session_id IN (SELECT session_id FROM sessions WHERE expires_at < ?)`, cutoff); err != nil {
		return 0, fmt.Errorf("failed to purge workflows: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM inbound_dedup WHERE received_at < ?`, cutoff); err != nil {
		return 0, fmt.Errorf("failed to purge inbound records: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit purge: %w", err)
	}
	n, _ := res.RowsAffected()
	slog.Debug("SQLiteStore PurgeExpired succeeded", "count", n)
	return int(n), nil
}

// SaveWorkflow stores or replaces the workflow of a session.
func (s *SQLiteStore) SaveWorkflow(ctx context.Context, rec *WorkflowRecord) error {
	raw, err := encodeWorkflow(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflows (id, session_id, workflow_json, mermaid_diagram, is_approved, version, created_at, updated_at, approved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			workflow_json = excluded.workflow_json,
			mermaid_diagram = excluded.mermaid_diagram,
			is_approved = excluded.is_approved,
			version = excluded.version,
			updated_at = excluded.updated_at,
			approved_at = excluded.approved_at`,
		rec.ID, rec.SessionID, raw, rec.MermaidDiagram, rec.IsApproved, rec.Version,
		rec.CreatedAt, rec.UpdatedAt, nullableTime(rec.ApprovedAt))
	if err != nil {
		slog.Error("SQLiteStore SaveWorkflow failed", "error", err, "sessionID", rec.SessionID)
		return fmt.Errorf("failed to save workflow for session %s: %w", rec.SessionID, err)
	}
	slog.Debug("SQLiteStore SaveWorkflow succeeded", "sessionID", rec.SessionID, "version", rec.Version, "approved", rec.IsApproved)
	return nil
}

// GetWorkflow retrieves the workflow of a session.
func (s *SQLiteStore) GetWorkflow(ctx context.Context, sessionID string) (*WorkflowRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, workflow_json, mermaid_diagram, is_approved, version, created_at, updated_at, approved_at
		FROM workflows WHERE session_id = ?`, sessionID)
	rec, err := scanWorkflow(row)
	if err != nil && !errors.Is(err, ErrWorkflowNotFound) {
		slog.Error("SQLiteStore GetWorkflow failed", "error", err, "sessionID", sessionID)
	}
	return rec, err
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}

package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/BTreeMap/AgentBuilder/internal/models"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists sessions and workflows in PostgreSQL.
type PostgresStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

var _ SessionStore = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	cfg := applyOpts(opts)
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "", "ttl", cfg.TTL)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, ErrDSNNotSet
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		slog.Error("Postgres ping failed", "error", err)
		return nil, fmt.Errorf("failed to ping postgres database: %w", err)
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		db.Close()
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db, ttl: cfg.TTL, now: cfg.Now}, nil
}

// Save stores or updates a session.
func (s *PostgresStore) Save(ctx context.Context, state *models.SessionState) error {
	raw, err := encodeState(state)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, stage, status, state_json, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO UPDATE SET
			stage = EXCLUDED.stage,
			status = EXCLUDED.status,
			state_json = EXCLUDED.state_json,
			updated_at = EXCLUDED.updated_at,
			expires_at = EXCLUDED.expires_at`,
		state.SessionID, string(state.Stage), string(state.Status), raw,
		state.CreatedAt, state.UpdatedAt, expiresAt(s.now(), s.ttl))
	if err != nil {
		slog.Error("PostgresStore Save failed", "error", err, "sessionID", state.SessionID)
		return fmt.Errorf("failed to save session %s: %w", state.SessionID, err)
	}
	slog.Debug("PostgresStore Save succeeded", "sessionID", state.SessionID, "stage", state.Stage)
	return nil
}

// Load retrieves a session.
func (s *PostgresStore) Load(ctx context.Context, sessionID string) (*models.SessionState, error) {
	var raw string
	var exp int64
	err := s.db.QueryRowContext(ctx, `SELECT state_json, expires_at FROM sessions WHERE session_id = $1`, sessionID).Scan(&raw, &exp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		slog.Error("PostgresStore Load failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	if s.now().UnixNano() >= exp {
		return nil, ErrSessionExpired
	}
	return decodeState(sessionID, raw)
}

// Delete removes a session and its workflow.
func (s *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM workflows WHERE session_id = $1`, sessionID); err != nil {
		slog.Error("PostgresStore Delete workflow failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to delete workflow of session %s: %w", sessionID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID); err != nil {
		slog.Error("PostgresStore Delete failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete of session %s: %w", sessionID, err)
	}
	slog.Debug("PostgresStore Delete succeeded", "sessionID", sessionID)
	return nil
}

// Extend refreshes the expiry of a session.
func (s *PostgresStore) Extend(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET expires_at = $1 WHERE session_id = $2`,
		expiresAt(s.now(), s.ttl), sessionID)
	if err != nil {
		slog.Error("PostgresStore Extend failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to extend session %s: %w", sessionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ListActive returns the ids of unexpired active sessions.
func (s *PostgresStore) ListActive(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id FROM sessions WHERE status = $1 AND expires_at > $2 ORDER BY session_id`,
		string(models.SessionStatusActive), s.now().UnixNano())
	if err != nil {
		slog.Error("PostgresStore ListActive query failed", "error", err)
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	return scanIDs(rows)
}

// PurgeExpired deletes sessions that expired before the given time, with their workflows,
// and inbound records received before it.
func (s *PostgresStore) PurgeExpired(ctx context.Context, before time.Time) (int, error) {
	cutoff := before.UnixNano()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin purge: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM workflows WHERE session_id IN (SELECT session_id FROM sessions WHERE expires_at < $1)`, cutoff); err != nil {
		return 0, fmt.Errorf("failed to purge workflows: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM inbound_dedup WHERE received_at < $1`, cutoff); err != nil {
		return 0, fmt.Errorf("failed to purge inbound records: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit purge: %w", err)
	}
	n, _ := res.RowsAffected()
	slog.Debug("PostgresStore PurgeExpired succeeded", "count", n)
	return int(n), nil
}

// SaveWorkflow stores or replaces the workflow of a session.
func (s *PostgresStore) SaveWorkflow(ctx context.Context, rec *WorkflowRecord) error {
	raw, err := encodeWorkflow(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflows (id, session_id, workflow_json, mermaid_diagram, is_approved, version, created_at, updated_at, approved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id) DO UPDATE SET
			workflow_json = EXCLUDED.workflow_json,
			mermaid_diagram = EXCLUDED.mermaid_diagram,
			is_approved = EXCLUDED.is_approved,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at,
			approved_at = EXCLUDED.approved_at`,
		rec.ID, rec.SessionID, raw, rec.MermaidDiagram, rec.IsApproved, rec.Version,
		rec.CreatedAt, rec.UpdatedAt, nullableTime(rec.ApprovedAt))
	if err != nil {
		slog.Error("PostgresStore SaveWorkflow failed", "error", err, "sessionID", rec.SessionID)
		return fmt.Errorf("failed to save workflow for session %s: %w", rec.SessionID, err)
	}
	slog.Debug("PostgresStore SaveWorkflow succeeded", "sessionID", rec.SessionID, "version", rec.Version)
	return nil
}

// GetWorkflow retrieves the workflow of a session.
func (s *PostgresStore) GetWorkflow(ctx context.Context, sessionID string) (*WorkflowRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, workflow_json, mermaid_diagram, is_approved, version, created_at, updated_at, approved_at
		FROM workflows WHERE session_id = $1`, sessionID)
	rec, err := scanWorkflow(row)
	if err != nil && !errors.Is(err, ErrWorkflowNotFound) {
		slog.Error("PostgresStore GetWorkflow failed", "error", err, "sessionID", sessionID)
	}
	return rec, err
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}

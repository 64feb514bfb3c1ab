// Package store provides session and workflow persistence for AgentBuilder.
//
// Sessions expire TTL after their last save. Expired records stay readable as
// ErrSessionExpired until a Sweeper purges them.
package store

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/AgentBuilder/internal/models"
)

// Defaults for store configuration.
const (
	DefaultSessionTTL = time.Hour
	DefaultCacheSize  = 1024
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

var (
	// ErrSessionNotFound is returned when no record exists for a session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned when a record exists but its TTL has elapsed.
	ErrSessionExpired = errors.New("session expired")
	// ErrWorkflowNotFound is returned when a session has no saved workflow.
	ErrWorkflowNotFound = errors.New("workflow not found")
	// ErrDSNNotSet is returned when a database store is created without a DSN.
	ErrDSNNotSet = errors.New("database DSN not set")
)

// SessionStore persists session state, the workflow approved for it and the inbound
// channel messages already processed.
type SessionStore interface {
	// Save upserts the state and resets its expiry.
	Save(ctx context.Context, state *models.SessionState) error
	// Load returns ErrSessionNotFound or ErrSessionExpired when the session is unusable.
	Load(ctx context.Context, sessionID string) (*models.SessionState, error)
	// Delete removes the session and its workflow. Deleting an absent session is not an error.
	Delete(ctx context.Context, sessionID string) error
	// Extend pushes the expiry of an existing session forward by the TTL.
	Extend(ctx context.Context, sessionID string) error
	// ListActive returns the ids of unexpired sessions with status active.
	ListActive(ctx context.Context) ([]string, error)
	// PurgeExpired deletes sessions that expired before the given time and inbound
	// records received before it. It returns the number of sessions deleted.
	PurgeExpired(ctx context.Context, before time.Time) (int, error)
	SaveWorkflow(ctx context.Context, rec *WorkflowRecord) error
	GetWorkflow(ctx context.Context, sessionID string) (*WorkflowRecord, error)
	DedupRepo
	Close() error
}

// Opts holds configuration shared by the store backends.
type Opts struct {
	DSN       string
	TTL       time.Duration
	CacheSize int
	Now       func() time.Time
}

// Option configures a store.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithTTL sets how long a session stays usable after its last save.
func WithTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.TTL = ttl }
}

// WithCacheSize sets the capacity of in-memory and cached stores.
func WithCacheSize(n int) Option {
	return func(o *Opts) { o.CacheSize = n }
}

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

func applyOpts(opts []Option) Opts {
	cfg := Opts{TTL: DefaultSessionTTL, CacheSize: DefaultCacheSize, Now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSessionTTL
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	return cfg
}

// DetectDSNType returns "postgres" for PostgreSQL URLs or keyword DSNs and "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return "postgres"
	case strings.Contains(lower, "host=") && strings.Contains(lower, "dbname="):
		return "postgres"
	default:
		return "sqlite3"
	}
}

// NewFromDSN opens the backend selected by the DSN. An empty DSN yields a MemoryStore.
func NewFromDSN(dsn string, opts ...Option) (SessionStore, error) {
	if dsn == "" {
		slog.Info("No database DSN configured, using in-memory session store")
		return NewMemoryStore(opts...)
	}
	switch DetectDSNType(dsn) {
	case "postgres":
		return NewPostgresStore(append(opts, WithPostgresDSN(dsn))...)
	default:
		return NewSQLiteStore(append(opts, WithSQLiteDSN(dsn))...)
	}
}

func expiresAt(now time.Time, ttl time.Duration) int64 {
	return now.Add(ttl).UnixNano()
}

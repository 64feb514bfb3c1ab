package store

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper defaults.
const (
	DefaultSweepInterval = 10 * time.Minute
	DefaultRetention     = 24 * time.Hour
)

// Sweeper periodically purges sessions that expired longer than the retention ago.
// Until purged, an expired session still loads as ErrSessionExpired.
type Sweeper struct {
	store     SessionStore
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

// NewSweeper creates a Sweeper. Non-positive durations use the defaults.
func NewSweeper(store SessionStore, interval, retention time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Sweeper{store: store, interval: interval, retention: retention, now: time.Now}
}

// Run starts the sweep loop. It blocks until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	slog.Info("Sweeper.Run: starting session sweeper", "interval", s.interval, "retention", s.retention)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sweeper.Run: stopping")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				slog.Error("Sweeper.Run: sweep failed", "error", err)
			}
		}
	}
}

// Sweep runs one purge pass and returns the number of removed sessions.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	n, err := s.store.PurgeExpired(ctx, s.now().Add(-s.retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("Sweeper.Sweep: purged expired sessions", "count", n)
	}
	return n, nil
}

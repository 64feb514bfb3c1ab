package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/BTreeMap/AgentBuilder/internal/models"
)

// CachedStore fronts a SessionStore with a write-through LRU of recently saved
// sessions. Cache entries carry the same TTL as the backend so an expired session
// is never served from memory.
type CachedStore struct {
	SessionStore
	cache *lru.Cache[string, memoryEntry]
	ttl   time.Duration
	now   func() time.Time
}

// NewCachedStore wraps backend. Options supply the cache size, TTL and clock.
func NewCachedStore(backend SessionStore, opts ...Option) (*CachedStore, error) {
	cfg := applyOpts(opts)
	cache, err := lru.New[string, memoryEntry](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	return &CachedStore{SessionStore: backend, cache: cache, ttl: cfg.TTL, now: cfg.Now}, nil
}

func (c *CachedStore) Save(ctx context.Context, state *models.SessionState) error {
	if err := c.SessionStore.Save(ctx, state); err != nil {
		c.cache.Remove(state.SessionID)
		return err
	}
	c.cache.Add(state.SessionID, memoryEntry{state: state.Clone(), expiresAt: expiresAt(c.now(), c.ttl)})
	return nil
}

func (c *CachedStore) Load(ctx context.Context, sessionID string) (*models.SessionState, error) {
	if entry, ok := c.cache.Get(sessionID); ok {
		if c.now().UnixNano() < entry.expiresAt {
			slog.Debug("CachedStore Load hit", "sessionID", sessionID)
			return entry.state.Clone(), nil
		}
		c.cache.Remove(sessionID)
	}
	return c.SessionStore.Load(ctx, sessionID)
}

func (c *CachedStore) Delete(ctx context.Context, sessionID string) error {
	c.cache.Remove(sessionID)
	return c.SessionStore.Delete(ctx, sessionID)
}

// Extend drops the cached entry rather than rewriting it, so a Save racing the
// extension is never replaced by the state read before it.
func (c *CachedStore) Extend(ctx context.Context, sessionID string) error {
	if err := c.SessionStore.Extend(ctx, sessionID); err != nil {
		return err
	}
	c.cache.Remove(sessionID)
	return nil
}

func (c *CachedStore) PurgeExpired(ctx context.Context, before time.Time) (int, error) {
	cutoff := before.UnixNano()
	for _, id := range c.cache.Keys() {
		if entry, ok := c.cache.Peek(id); ok && entry.expiresAt < cutoff {
			c.cache.Remove(id)
		}
	}
	return c.SessionStore.PurgeExpired(ctx, before)
}

// Len returns the number of cached sessions.
func (c *CachedStore) Len() int {
	return c.cache.Len()
}

func (c *CachedStore) Close() error {
	c.cache.Purge()
	return c.SessionStore.Close()
}

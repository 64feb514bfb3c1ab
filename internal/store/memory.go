package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/BTreeMap/AgentBuilder/internal/models"
)

type memoryEntry struct {
	state     *models.SessionState
	expiresAt int64
}

// MemoryStore keeps sessions in a bounded LRU. The least recently used session
// and its workflow are dropped when capacity is reached.
type MemoryStore struct {
	// mu serializes writes to sessions so Extend never re-adds a stale entry.
	mu        sync.Mutex
	sessions  *lru.Cache[string, memoryEntry]
	workflows *lru.Cache[string, *WorkflowRecord]
	inbound   *lru.Cache[string, InboundRecord]
	ttl       time.Duration
	now       func() time.Time
}

var _ SessionStore = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory store.
func NewMemoryStore(opts ...Option) (*MemoryStore, error) {
	cfg := applyOpts(opts)
	workflows, err := lru.New[string, *WorkflowRecord](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow cache: %w", err)
	}
	sessions, err := lru.NewWithEvict[string, memoryEntry](cfg.CacheSize, func(id string, _ memoryEntry) {
		workflows.Remove(id)
		slog.Debug("MemoryStore evicted session", "sessionID", id)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	inbound, err := lru.New[string, InboundRecord](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create inbound cache: %w", err)
	}
	slog.Debug("MemoryStore created", "capacity", cfg.CacheSize, "ttl", cfg.TTL)
	return &MemoryStore{sessions: sessions, workflows: workflows, inbound: inbound, ttl: cfg.TTL, now: cfg.Now}, nil
}

func (m *MemoryStore) Save(_ context.Context, state *models.SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions.Add(state.SessionID, memoryEntry{
		state:     state.Clone(),
		expiresAt: expiresAt(m.now(), m.ttl),
	})
	return nil
}

func (m *MemoryStore) Load(_ context.Context, sessionID string) (*models.SessionState, error) {
	entry, ok := m.sessions.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	if m.now().UnixNano() >= entry.expiresAt {
		return nil, ErrSessionExpired
	}
	return entry.state.Clone(), nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions.Remove(sessionID)
	m.workflows.Remove(sessionID)
	return nil
}

func (m *MemoryStore) Extend(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sessions.Peek(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	entry.expiresAt = expiresAt(m.now(), m.ttl)
	m.sessions.Add(sessionID, entry)
	return nil
}

func (m *MemoryStore) ListActive(_ context.Context) ([]string, error) {
	now := m.now().UnixNano()
	var ids []string
	for _, id := range m.sessions.Keys() {
		entry, ok := m.sessions.Peek(id)
		if ok && now < entry.expiresAt && entry.state.Status == models.SessionStatusActive {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryStore) PurgeExpired(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := before.UnixNano()
	n := 0
	for _, id := range m.sessions.Keys() {
		if entry, ok := m.sessions.Peek(id); ok && entry.expiresAt < cutoff {
			m.sessions.Remove(id)
			n++
		}
	}
	for _, id := range m.inbound.Keys() {
		if rec, ok := m.inbound.Peek(id); ok && rec.ReceivedAt.Before(before) {
			m.inbound.Remove(id)
		}
	}
	return n, nil
}

func (m *MemoryStore) GetInbound(_ context.Context, messageID string) (*InboundRecord, error) {
	rec, ok := m.inbound.Get(messageID)
	if !ok {
		return nil, ErrInboundNotFound
	}
	return &rec, nil
}

func (m *MemoryStore) RecordInbound(_ context.Context, rec *InboundRecord) (bool, error) {
	found, _ := m.inbound.ContainsOrAdd(rec.MessageID, *rec)
	return !found, nil
}

func (m *MemoryStore) SaveWorkflow(_ context.Context, rec *WorkflowRecord) error {
	cp := *rec
	m.workflows.Add(rec.SessionID, &cp)
	return nil
}

func (m *MemoryStore) GetWorkflow(_ context.Context, sessionID string) (*WorkflowRecord, error) {
	rec, ok := m.workflows.Get(sessionID)
	if !ok {
		return nil, ErrWorkflowNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) Close() error {
	m.sessions.Purge()
	m.workflows.Purge()
	m.inbound.Purge()
	return nil
}

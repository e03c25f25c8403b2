// Package session provides the session-state stores. The memory store
// backs single-instance deployments; the redis store backs shared ones.
// Both distinguish never-seen sessions from evicted or completed ones.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/medtriage-server/internal/domain"
)

// MemoryStore keeps session state in an in-process TTL'd LRU. Evicted and
// deleted session IDs move to a tombstone cache so Get can report
// ErrSessionStale instead of ErrSessionNotFound for them.
type MemoryStore struct {
	sessions   *expirable.LRU[string, *domain.SessionState]
	tombstones *expirable.LRU[string, time.Time]

	mu    sync.Mutex
	locks map[string]*sessionLock

	logger *logrus.Logger
}

type sessionLock struct {
	held bool
}

// NewMemoryStore creates a memory-backed session store.
func NewMemoryStore(cfg domain.SessionConfig, logger *logrus.Logger) *MemoryStore {
	s := &MemoryStore{
		locks:  make(map[string]*sessionLock),
		logger: logger,
	}
	s.sessions = expirable.NewLRU[string, *domain.SessionState](
		cfg.MaxSessions, s.onEvict, cfg.TTL)
	// Tombstones cap at the same size; losing one degrades a stale error
	// to not-found, which is acceptable.
	s.tombstones = expirable.NewLRU[string, time.Time](
		cfg.MaxSessions, nil, cfg.TombstoneTTL)
	return s
}

func (s *MemoryStore) onEvict(sessionID string, state *domain.SessionState) {
	s.tombstones.Add(sessionID, time.Now())
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"session_id": sessionID,
			"stage":      state.Stage.String(),
		}).Debug("Session evicted to tombstone")
	}
}

// Get returns a snapshot of the session state, ErrSessionStale for
// evicted or completed sessions, or ErrSessionNotFound for unknown IDs.
// Callers own the snapshot; mutations only land via Put. This mirrors the
// redis store, where every Get deserializes a fresh copy.
func (s *MemoryStore) Get(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	if state, ok := s.sessions.Get(sessionID); ok {
		return cloneState(state)
	}
	if _, ok := s.tombstones.Get(sessionID); ok {
		return nil, domain.ErrSessionStale
	}
	return nil, domain.ErrSessionNotFound
}

// Put stores a snapshot of the session state, refreshing its TTL.
func (s *MemoryStore) Put(ctx context.Context, state *domain.SessionState) error {
	state.UpdatedAt = time.Now().UTC()
	snapshot, err := cloneState(state)
	if err != nil {
		return err
	}
	s.sessions.Add(state.SessionID, snapshot)
	return nil
}

func cloneState(state *domain.SessionState) (*domain.SessionState, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot session %s: %w", state.SessionID, err)
	}
	var out domain.SessionState
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to snapshot session %s: %w", state.SessionID, err)
	}
	return &out, nil
}

// Delete removes the session and leaves a tombstone behind.
func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.sessions.Remove(sessionID)
	s.tombstones.Add(sessionID, time.Now())
	return nil
}

// Acquire grants the per-session handler lock without blocking. A second
// concurrent Acquire for the same session fails with ErrSessionBusy.
func (s *MemoryStore) Acquire(sessionID string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[sessionID]
	if !ok {
		lock = &sessionLock{}
		s.locks[sessionID] = lock
	}
	if lock.held {
		return nil, domain.ErrSessionBusy
	}
	lock.held = true

	release := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		lock.held = false
		delete(s.locks, sessionID)
	}
	return release, nil
}

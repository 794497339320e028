package storage

import (
	"context"
	"sync"
	"time"

	"github.com/dgellow/checkin-front/internal/browserauth"
)

var _ Storage = (*MemoryStorage)(nil)
var _ Sweeper = (*MemoryStorage)(nil)

type pendingEntry struct {
	pending   browserauth.PendingAuth
	expiresAt time.Time
}

// MemoryStorage is a process-local store for development and tests. It is
// not shared across instances.
type MemoryStorage struct {
	sessions      map[string]Session
	sessionsMutex sync.RWMutex
	pending       map[string]pendingEntry
	pendingMutex  sync.Mutex
	now           func() time.Time
}

// NewMemoryStorage creates a new storage instance
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		sessions: make(map[string]Session),
		pending:  make(map[string]pendingEntry),
		now:      time.Now,
	}
}

func (s *MemoryStorage) Get(_ context.Context, id string) (*Session, error) {
	s.sessionsMutex.RLock()
	session, ok := s.sessions[id]
	s.sessionsMutex.RUnlock()

	if !ok || session.Expired(s.now()) {
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

func (s *MemoryStorage) Put(_ context.Context, session *Session) error {
	s.sessionsMutex.Lock()
	s.sessions[session.ID] = *session
	s.sessionsMutex.Unlock()
	return nil
}

func (s *MemoryStorage) Delete(_ context.Context, id string) error {
	s.sessionsMutex.Lock()
	delete(s.sessions, id)
	s.sessionsMutex.Unlock()
	return nil
}

func (s *MemoryStorage) PutPending(_ context.Context, pending browserauth.PendingAuth, ttl time.Duration) error {
	s.pendingMutex.Lock()
	s.pending[pending.Nonce] = pendingEntry{pending: pending, expiresAt: s.now().Add(ttl)}
	s.pendingMutex.Unlock()
	return nil
}

func (s *MemoryStorage) TakePending(_ context.Context, nonce string) (*browserauth.PendingAuth, error) {
	s.pendingMutex.Lock()
	defer s.pendingMutex.Unlock()

	entry, ok := s.pending[nonce]
	if !ok {
		return nil, ErrPendingAuthNotFound
	}
	delete(s.pending, nonce)

	if !entry.expiresAt.After(s.now()) {
		return nil, ErrPendingAuthNotFound
	}
	return &entry.pending, nil
}

// CleanupExpired drops expired sessions and pending states
func (s *MemoryStorage) CleanupExpired(_ context.Context) (int, error) {
	now := s.now()
	count := 0

	s.sessionsMutex.Lock()
	for id, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, id)
			count++
		}
	}
	s.sessionsMutex.Unlock()

	s.pendingMutex.Lock()
	for nonce, entry := range s.pending {
		if !entry.expiresAt.After(now) {
			delete(s.pending, nonce)
			count++
		}
	}
	s.pendingMutex.Unlock()

	return count, nil
}

func (s *MemoryStorage) Ping(context.Context) error { return nil }

func (s *MemoryStorage) Close() error { return nil }

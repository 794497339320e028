package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dgellow/checkin-front/internal/browserauth"
)

// ErrSessionNotFound is returned when a session doesn't exist or has expired
var ErrSessionNotFound = errors.New("session not found")

// ErrPendingAuthNotFound is returned when a state nonce was never issued,
// has expired, or was already consumed
var ErrPendingAuthNotFound = errors.New("pending authorization not found")

// Session is the server-side record behind the session cookie. The browser
// only ever sees ID.
type Session struct {
	ID             string    `json:"id" firestore:"id"`
	UserID         string    `json:"user_id" firestore:"user_id"`
	AccessToken    string    `json:"access_token" firestore:"access_token"`
	RefreshToken   string    `json:"refresh_token,omitempty" firestore:"refresh_token,omitempty"`
	TokenType      string    `json:"token_type,omitempty" firestore:"token_type,omitempty"`
	TokenExpiresAt time.Time `json:"token_expires_at,omitzero" firestore:"token_expires_at,omitempty"`
	ExpiresAt      time.Time `json:"expires_at" firestore:"expires_at"`
	CreatedAt      time.Time `json:"created_at" firestore:"created_at"`
	LastSeenAt     time.Time `json:"last_seen_at" firestore:"last_seen_at"`
}

// Expired reports whether the session is past its expiry at now
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// TTL is the remaining lifetime at now, never negative
func (s *Session) TTL(now time.Time) time.Duration {
	if d := s.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// SessionStore persists sessions keyed by id. It is the single source of
// truth for session validity across instances, so callers read it on every
// authenticated request.
type SessionStore interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, session *Session) error
	Delete(ctx context.Context, id string) error
}

// PendingAuthStore holds issued OAuth states until their callback arrives
type PendingAuthStore interface {
	PutPending(ctx context.Context, pending browserauth.PendingAuth, ttl time.Duration) error
	// TakePending fetches and deletes in one step; a nonce is redeemable once
	TakePending(ctx context.Context, nonce string) (*browserauth.PendingAuth, error)
}

// Storage combines all storage capabilities needed by checkin-front
type Storage interface {
	SessionStore
	PendingAuthStore
	Ping(ctx context.Context) error
	Close() error
}

// Sweeper is implemented by stores without native key expiry
type Sweeper interface {
	CleanupExpired(ctx context.Context) (int, error)
}

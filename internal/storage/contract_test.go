package storage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgellow/checkin-front/internal/browserauth"
)

func newTestSession(id string, ttl time.Duration) *Session {
	now := time.Now().Truncate(time.Millisecond)
	return &Session{
		ID:             id,
		UserID:         "42",
		AccessToken:    "access-" + id,
		RefreshToken:   "refresh-" + id,
		TokenType:      "Bearer",
		TokenExpiresAt: now.Add(time.Hour),
		ExpiresAt:      now.Add(ttl),
		CreatedAt:      now,
		LastSeenAt:     now,
	}
}

// testStorageContract exercises behavior every Storage implementation shares
func testStorageContract(t *testing.T, store Storage) {
	ctx := context.Background()

	t.Run("put get delete", func(t *testing.T) {
		session := newTestSession("sess-1", time.Hour)
		require.NoError(t, store.Put(ctx, session))

		got, err := store.Get(ctx, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, session.UserID, got.UserID)
		assert.Equal(t, session.AccessToken, got.AccessToken)
		assert.Equal(t, session.RefreshToken, got.RefreshToken)
		assert.WithinDuration(t, session.ExpiresAt, got.ExpiresAt, time.Millisecond)

		require.NoError(t, store.Delete(ctx, "sess-1"))
		_, err = store.Get(ctx, "sess-1")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("unknown session", func(t *testing.T) {
		_, err := store.Get(ctx, "never-issued")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("delete unknown session is not an error", func(t *testing.T) {
		assert.NoError(t, store.Delete(ctx, "never-issued"))
	})

	t.Run("put overwrites", func(t *testing.T) {
		session := newTestSession("sess-2", time.Hour)
		require.NoError(t, store.Put(ctx, session))

		session.AccessToken = "rotated"
		require.NoError(t, store.Put(ctx, session))

		got, err := store.Get(ctx, "sess-2")
		require.NoError(t, err)
		assert.Equal(t, "rotated", got.AccessToken)
	})

	t.Run("pending auth is single use", func(t *testing.T) {
		pending := browserauth.PendingAuth{Nonce: "nonce-1", Binding: "fp"}
		require.NoError(t, store.PutPending(ctx, pending, time.Minute))

		got, err := store.TakePending(ctx, "nonce-1")
		require.NoError(t, err)
		assert.Equal(t, pending, *got)

		_, err = store.TakePending(ctx, "nonce-1")
		assert.ErrorIs(t, err, ErrPendingAuthNotFound)
	})

	t.Run("concurrent take redeems once", func(t *testing.T) {
		require.NoError(t, store.PutPending(ctx, browserauth.PendingAuth{Nonce: "nonce-race"}, time.Minute))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := store.TakePending(ctx, "nonce-race"); err == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("sessions are independent", func(t *testing.T) {
		for i := range 5 {
			require.NoError(t, store.Put(ctx, newTestSession(fmt.Sprintf("multi-%d", i), time.Hour)))
		}
		require.NoError(t, store.Delete(ctx, "multi-2"))

		for i := range 5 {
			_, err := store.Get(ctx, fmt.Sprintf("multi-%d", i))
			if i == 2 {
				assert.ErrorIs(t, err, ErrSessionNotFound)
			} else {
				assert.NoError(t, err)
			}
		}
	})
}

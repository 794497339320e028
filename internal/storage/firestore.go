package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dgellow/checkin-front/internal/browserauth"
	"github.com/dgellow/checkin-front/internal/log"
)

var _ Storage = (*FirestoreStorage)(nil)
var _ Sweeper = (*FirestoreStorage)(nil)

// DefaultFirestoreCollection holds sessions; pending states live in a
// sibling collection with a "_states" suffix.
const DefaultFirestoreCollection = "checkin_sessions"

// FirestoreStorage implements session storage using Google Cloud Firestore.
// Firestore TTL policies are not immediate, so reads re-check expiry and
// CleanupExpired sweeps stale documents.
type FirestoreStorage struct {
	client           *firestore.Client
	projectID        string
	collection       string
	statesCollection string
}

// pendingDoc represents a pending state document in Firestore
type pendingDoc struct {
	Nonce     string    `firestore:"nonce"`
	Binding   string    `firestore:"binding"`
	ExpiresAt time.Time `firestore:"expires_at"`
}

// NewFirestoreStorage creates a new Firestore storage instance
func NewFirestoreStorage(ctx context.Context, projectID, database, collection string) (*FirestoreStorage, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		collection = DefaultFirestoreCollection
	}

	var client *firestore.Client
	var err error

	if database != "" && database != firestore.DefaultDatabaseID {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	log.LogInfoWithFields("storage", "Connected to Firestore", map[string]any{
		"project":    projectID,
		"database":   database,
		"collection": collection,
	})

	return &FirestoreStorage{
		client:           client,
		projectID:        projectID,
		collection:       collection,
		statesCollection: collection + "_states",
	}, nil
}

func (s *FirestoreStorage) Get(ctx context.Context, id string) (*Session, error) {
	defer observe("firestore", "get", time.Now())

	doc, err := s.client.Collection(s.collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session from Firestore: %w", err)
	}

	var session Session
	if err := doc.DataTo(&session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if session.Expired(time.Now()) {
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

func (s *FirestoreStorage) Put(ctx context.Context, session *Session) error {
	defer observe("firestore", "put", time.Now())

	if _, err := s.client.Collection(s.collection).Doc(session.ID).Set(ctx, session); err != nil {
		return fmt.Errorf("failed to store session in Firestore: %w", err)
	}
	return nil
}

func (s *FirestoreStorage) Delete(ctx context.Context, id string) error {
	defer observe("firestore", "delete", time.Now())

	_, err := s.client.Collection(s.collection).Doc(id).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to delete session from Firestore: %w", err)
	}
	return nil
}

func (s *FirestoreStorage) PutPending(ctx context.Context, pending browserauth.PendingAuth, ttl time.Duration) error {
	defer observe("firestore", "put_pending", time.Now())

	doc := pendingDoc{
		Nonce:     pending.Nonce,
		Binding:   pending.Binding,
		ExpiresAt: time.Now().Add(ttl),
	}
	// Create fails with AlreadyExists, so a nonce can never be overwritten
	if _, err := s.client.Collection(s.statesCollection).Doc(pending.Nonce).Create(ctx, doc); err != nil {
		return fmt.Errorf("failed to store pending auth in Firestore: %w", err)
	}
	return nil
}

func (s *FirestoreStorage) TakePending(ctx context.Context, nonce string) (*browserauth.PendingAuth, error) {
	defer observe("firestore", "take_pending", time.Now())

	ref := s.client.Collection(s.statesCollection).Doc(nonce)
	var doc pendingDoc

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		return tx.Delete(ref)
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrPendingAuthNotFound
		}
		return nil, fmt.Errorf("failed to take pending auth from Firestore: %w", err)
	}

	if !doc.ExpiresAt.After(time.Now()) {
		return nil, ErrPendingAuthNotFound
	}
	return &browserauth.PendingAuth{Nonce: doc.Nonce, Binding: doc.Binding}, nil
}

// CleanupExpired deletes expired sessions and pending states
func (s *FirestoreStorage) CleanupExpired(ctx context.Context) (int, error) {
	now := time.Now()
	total := 0
	var errs []error

	for _, collection := range []string{s.collection, s.statesCollection} {
		n, err := s.deleteExpired(ctx, collection, now)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

func (s *FirestoreStorage) deleteExpired(ctx context.Context, collection string, now time.Time) (int, error) {
	iter := s.client.Collection(collection).Where("expires_at", "<=", now).Documents(ctx)
	defer iter.Stop()

	count := 0
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return count, fmt.Errorf("error iterating %s: %w", collection, err)
		}
		if _, err := doc.Ref.Delete(ctx); err != nil {
			log.LogErrorWithFields("storage", "Failed to delete expired document", map[string]any{
				"collection": collection,
				"id":         doc.Ref.ID,
				"error":      err.Error(),
			})
			continue
		}
		count++
	}
	return count, nil
}

// Ping reads a sentinel document; NotFound still proves connectivity
func (s *FirestoreStorage) Ping(ctx context.Context) error {
	_, err := s.client.Collection(s.collection).Doc("_ping").Get(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return err
	}
	return nil
}

func (s *FirestoreStorage) Close() error {
	return s.client.Close()
}

package idempotency

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	// keysCollection sits alongside the carts and orders collections and
	// holds one document per scoped idempotency key.
	keysCollection = "idempotencyKeys"
	txAttempts     = 5
	cleanupBatch   = 100
)

// FirestoreStore implements Store on top of the shared Firestore client.
// Reserve and SaveResponse run in transactions so two concurrent checkout
// retries cannot both win the key.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore constructs a Firestore-backed idempotency store.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

// Reserve binds the key to the request fingerprint and reports any stored
// response that should be replayed instead.
func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ref := s.keyRef(key)

	var result Reservation
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				record := newKeyDocument(key, fingerprint, now, ttl)
				if err := tx.Set(ref, record); err != nil {
					return err
				}
				result = Reservation{State: ReservationStateNew, Record: record.toRecord()}
				return nil
			}
			return err
		}

		var record keyDocument
		if err := snap.DataTo(&record); err != nil {
			return err
		}
		if record.Fingerprint != fingerprint {
			return ErrFingerprintMismatch
		}

		if !record.ExpiresAt.IsZero() && !now.Before(record.ExpiresAt) {
			// An expired record is dead weight from an old attempt. Reclaim
			// the key for this request.
			record = newKeyDocument(key, fingerprint, now, ttl)
			if err := tx.Set(ref, record); err != nil {
				return err
			}
			result = Reservation{State: ReservationStateNew, Record: record.toRecord()}
			return nil
		}

		if record.Status == string(StatusCompleted) {
			result = Reservation{State: ReservationStateCompleted, Record: record.toRecord()}
			return nil
		}
		result = Reservation{State: ReservationStatePending, Record: record.toRecord()}
		return nil
	}, firestore.MaxAttempts(txAttempts))

	return result, err
}

// SaveResponse captures the handler's response so later duplicates replay it.
func (s *FirestoreStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ref := s.keyRef(key)

	headers := sanitizeHeaders(resp.Headers)
	var bodyCopy []byte
	if len(resp.Body) > 0 {
		bodyCopy = append([]byte(nil), resp.Body...)
	}

	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		var record keyDocument
		if err != nil {
			if status.Code(err) != codes.NotFound {
				return err
			}
			record = keyDocument{
				Key:         key,
				Fingerprint: fingerprint,
				CreatedAt:   now,
			}
		} else {
			if err := snap.DataTo(&record); err != nil {
				return err
			}
			if record.Fingerprint != fingerprint {
				return ErrFingerprintMismatch
			}
			if record.CreatedAt.IsZero() {
				record.CreatedAt = now
			}
		}

		record.Status = string(StatusCompleted)
		record.ResponseStatus = resp.Status
		record.ResponseHeaders = headers
		record.ResponseBody = bodyCopy
		record.UpdatedAt = now
		record.ExpiresAt = now.Add(ttl)

		return tx.Set(ref, record)
	}, firestore.MaxAttempts(txAttempts))
}

// CleanupExpired deletes expired key documents, at most limit per call. The
// cleanup loop in main calls this on a ticker.
func (s *FirestoreStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()
	if limit <= 0 {
		limit = cleanupBatch
	}

	query := s.client.Collection(keysCollection).Where("expiresAt", "<=", now).Limit(limit)
	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	batch := s.client.Batch()
	for _, doc := range docs {
		batch.Delete(doc.Ref)
	}
	if _, err := batch.Commit(ctx); err != nil {
		return 0, err
	}
	return len(docs), nil
}

// Release deletes the reservation so the caller may retry the key.
func (s *FirestoreStore) Release(ctx context.Context, key, _ string) error {
	_, err := s.keyRef(key).Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}

func (s *FirestoreStore) keyRef(key string) *firestore.DocumentRef {
	return s.client.Collection(keysCollection).Doc(recordID(key))
}

type keyDocument struct {
	Key             string              `firestore:"key"`
	Fingerprint     string              `firestore:"fingerprint"`
	Status          string              `firestore:"status"`
	ResponseStatus  int                 `firestore:"responseStatus"`
	ResponseHeaders map[string][]string `firestore:"responseHeaders"`
	ResponseBody    []byte              `firestore:"responseBody"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	UpdatedAt       time.Time           `firestore:"updatedAt"`
	ExpiresAt       time.Time           `firestore:"expiresAt"`
}

func newKeyDocument(key, fingerprint string, now time.Time, ttl time.Duration) keyDocument {
	return keyDocument{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      string(StatusPending),
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

func (d keyDocument) toRecord() Record {
	return Record{
		Key:             d.Key,
		Fingerprint:     d.Fingerprint,
		Status:          Status(d.Status),
		ResponseStatus:  d.ResponseStatus,
		ResponseHeaders: d.ResponseHeaders,
		ResponseBody:    d.ResponseBody,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
		ExpiresAt:       d.ExpiresAt,
	}
}

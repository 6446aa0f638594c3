package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// Status is the lifecycle state of a stored idempotency record.
type Status string

const (
	// DefaultTTL is how long completed records stay replayable. Checkout
	// retries from mobile clients arrive within minutes, so a day is ample.
	DefaultTTL = 24 * time.Hour
	// StatusPending marks a key that is reserved while the first request is
	// still being processed.
	StatusPending Status = "pending"
	// StatusCompleted marks a key whose response has been captured and can be
	// replayed to duplicate requests.
	StatusCompleted Status = "completed"
)

// ReservationState is the outcome of attempting to reserve a key.
type ReservationState int

const (
	// ReservationStateNew means the key is fresh and the request may proceed.
	ReservationStateNew ReservationState = iota
	// ReservationStateCompleted means a stored response exists and should be
	// replayed instead of re-running the handler.
	ReservationStateCompleted
	// ReservationStatePending means a concurrent request holds the key.
	ReservationStatePending
)

// Reservation is the result of reserving a key, with the stored record when
// one exists.
type Reservation struct {
	State  ReservationState
	Record Record
}

// Record is the persisted response for an idempotency key.
type Record struct {
	Key             string
	Fingerprint     string
	Status          Status
	ResponseStatus  int
	ResponseHeaders map[string][]string
	ResponseBody    []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ExpiresAt       time.Time
}

// Response is the HTTP response captured for future replays.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Store persists idempotency reservations and their captured responses.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key, fingerprint string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// ErrFingerprintMismatch is returned when a key is reused for a request with
// a different method, path, body, or caller.
var ErrFingerprintMismatch = errors.New("idempotency: key reserved for different request fingerprint")

// recordID derives the document ID from the scoped key. The fingerprint is
// stored on the record and checked there, so two different requests carrying
// the same key land on the same document and conflict.
func recordID(key string) string {
	return sha256Hex([]byte(strings.TrimSpace(key)))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func sanitizeHeaders(header http.Header) map[string][]string {
	if len(header) == 0 {
		return nil
	}

	filtered := make(map[string][]string, len(header))
	for name, values := range header {
		canonical := http.CanonicalHeaderKey(name)
		if hopByHopHeader(canonical) {
			continue
		}
		copied := make([]string, len(values))
		copy(copied, values)
		filtered[canonical] = copied
	}
	if len(filtered) == 0 {
		return nil
	}
	return filtered
}

func hopByHopHeader(name string) bool {
	switch strings.ToLower(name) {
	case "content-length", "date", "connection", "keep-alive", "proxy-authenticate", "proxy-authorization", "te", "trailers", "transfer-encoding", "upgrade":
		return true
	default:
		return false
	}
}

func headersFromRecord(values map[string][]string) http.Header {
	if len(values) == 0 {
		return http.Header{}
	}

	header := make(http.Header, len(values))
	for name, vals := range values {
		copied := make([]string, len(vals))
		copy(copied, vals)
		header[name] = copied
	}
	return header
}

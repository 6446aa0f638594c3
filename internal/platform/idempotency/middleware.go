package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidynest/api/internal/platform/auth"
	"github.com/tidynest/api/internal/platform/httpx"
)

const (
	defaultHeaderName = "Idempotency-Key"
	replayHeaderName  = "X-Idempotent-Replay"
)

// Logger receives background persistence failures from the middleware.
type Logger interface {
	Printf(format string, args ...any)
}

type clockFunc func() time.Time

type middlewareConfig struct {
	headerName string
	ttl        time.Duration
	methods    map[string]struct{}
	clock      clockFunc
	logger     Logger
}

// MiddlewareOption customises middleware behaviour.
type MiddlewareOption func(*middlewareConfig)

// WithHeader overrides the header carrying the idempotency key.
func WithHeader(name string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		name = strings.TrimSpace(name)
		if name != "" {
			cfg.headerName = name
		}
	}
}

// WithTTL configures how long completed records are retained.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithMethods restricts the HTTP methods the middleware guards.
func WithMethods(methods ...string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if len(methods) == 0 {
			return
		}
		cfg.methods = make(map[string]struct{}, len(methods))
		for _, method := range methods {
			method = strings.ToUpper(strings.TrimSpace(method))
			if method == "" {
				continue
			}
			cfg.methods[method] = struct{}{}
		}
	}
}

// WithLogger injects a logger for persistence errors.
func WithLogger(logger Logger) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		cfg.logger = logger
	}
}

// WithClock overrides the time source, primarily for testing.
func WithClock(clock clockFunc) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

func mutatingMethods() map[string]struct{} {
	return map[string]struct{}{
		http.MethodPost:   {},
		http.MethodPut:    {},
		http.MethodPatch:  {},
		http.MethodDelete: {},
	}
}

// Middleware guards mutating routes, checkout and order updates above all,
// against client retries. The first request with a key runs the handler and
// stores its response; duplicates replay the stored response; a key reused
// for a different request is rejected.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	cfg := middlewareConfig{
		headerName: defaultHeaderName,
		ttl:        DefaultTTL,
		methods:    mutatingMethods(),
		clock:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.ttl <= 0 {
		cfg.ttl = DefaultTTL
	}
	if len(cfg.methods) == 0 {
		cfg.methods = mutatingMethods()
	}
	if cfg.clock == nil {
		cfg.clock = time.Now
	}

	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := cfg.methods[r.Method]; !ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			key := strings.TrimSpace(r.Header.Get(cfg.headerName))
			if key == "" {
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_required", "missing idempotency key header", http.StatusBadRequest))
				return
			}

			body, err := bufferBody(r)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_read_body_failed", "unable to read request body", http.StatusInternalServerError))
				return
			}

			caller := callerUID(ctx)
			fingerprint := requestFingerprint(r, body, caller)
			scoped := scopeKey(key, caller)
			now := cfg.clock().UTC()

			reservation, err := store.Reserve(ctx, scoped, fingerprint, now, cfg.ttl)
			if err != nil {
				writeStoreError(ctx, w, cfg.logger, err)
				return
			}

			switch reservation.State {
			case ReservationStateCompleted:
				replayRecord(w, reservation.Record)
				return
			case ReservationStatePending:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "another request is processing this idempotency key", http.StatusConflict))
				return
			case ReservationStateNew:
				// First request with this key, run the handler.
			default:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_unknown_state", "unexpected idempotency state", http.StatusInternalServerError))
				return
			}

			capture := newResponseCapture(w)
			next.ServeHTTP(capture, r)

			response := Response{
				Status:  capture.Status(),
				Headers: capture.HeaderSnapshot(),
				Body:    capture.Body(),
			}

			if err := store.SaveResponse(ctx, scoped, fingerprint, response, cfg.clock().UTC(), cfg.ttl); err != nil {
				if cfg.logger != nil {
					cfg.logger.Printf("idempotency: failed to persist response for key %s (caller %s): %v", key, caller, err)
				}
				if releaseErr := store.Release(ctx, scoped, fingerprint); releaseErr != nil && cfg.logger != nil {
					cfg.logger.Printf("idempotency: failed to release key %s after save failure: %v", key, releaseErr)
				}
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_store_error", "unable to persist idempotency state", http.StatusInternalServerError))
				return
			}

			if err := capture.Flush(); err != nil && cfg.logger != nil {
				cfg.logger.Printf("idempotency: failed to flush response for key %s: %v", key, err)
			}
		})
	}
}

func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if err := r.Body.Close(); err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func requestFingerprint(r *http.Request, body []byte, caller string) string {
	parts := []string{
		strings.ToUpper(r.Method),
		r.URL.Path,
		r.URL.RawQuery,
		r.Host,
		r.Header.Get("Content-Type"),
		caller,
		hashBody(body),
	}
	return sha256Hex([]byte(strings.Join(parts, "|")))
}

// callerUID scopes keys per authenticated user so one customer's key cannot
// replay another customer's checkout response.
func callerUID(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil && identity.UID != "" {
		return identity.UID
	}
	return "anonymous"
}

func hashBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	return sha256Hex(body)
}

func scopeKey(key, caller string) string {
	key = strings.TrimSpace(key)
	caller = strings.TrimSpace(caller)
	if caller == "" {
		caller = "anonymous"
	}
	if key == "" {
		return caller
	}
	return key + "|" + caller
}

func writeStoreError(ctx context.Context, w http.ResponseWriter, logger Logger, err error) {
	if errors.Is(err, ErrFingerprintMismatch) {
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_conflict", "idempotency key already used for a different request", http.StatusConflict))
		return
	}
	if logger != nil {
		logger.Printf("idempotency: store error: %v", err)
	}
	httpx.WriteError(ctx, w, httpx.NewError("idempotency_store_error", "unable to process idempotency key", http.StatusInternalServerError))
}

func replayRecord(w http.ResponseWriter, record Record) {
	headers := headersFromRecord(record.ResponseHeaders)
	for key := range w.Header() {
		w.Header().Del(key)
	}
	for key, values := range headers {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.Header().Set(replayHeaderName, "true")

	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(record.ResponseBody) > 0 {
		_, _ = w.Write(record.ResponseBody)
	}
}

// responseCapture buffers the handler's response so it can be stored before
// anything reaches the client. Flush forwards the buffered response once the
// store write has succeeded.
type responseCapture struct {
	parent http.ResponseWriter
	header http.Header
	status int
	body   bytes.Buffer
}

func newResponseCapture(parent http.ResponseWriter) *responseCapture {
	return &responseCapture{
		parent: parent,
		header: make(http.Header),
	}
}

func (c *responseCapture) Header() http.Header {
	return c.header
}

func (c *responseCapture) WriteHeader(status int) {
	if status <= 0 {
		status = http.StatusOK
	}
	c.status = status
}

func (c *responseCapture) Write(data []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	return c.body.Write(data)
}

func (c *responseCapture) Status() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}

func (c *responseCapture) Body() []byte {
	if c.body.Len() == 0 {
		return nil
	}
	return c.body.Bytes()
}

func (c *responseCapture) HeaderSnapshot() http.Header {
	return cloneHeader(c.header)
}

func (c *responseCapture) Flush() error {
	dst := c.parent.Header()
	for key := range dst {
		dst.Del(key)
	}
	for key, values := range c.header {
		for _, value := range values {
			dst.Add(key, value)
		}
	}

	status := c.status
	if status == 0 {
		status = http.StatusOK
	}
	c.parent.WriteHeader(status)
	if c.body.Len() == 0 {
		return nil
	}
	_, err := c.parent.Write(c.body.Bytes())
	return err
}

func cloneHeader(src http.Header) http.Header {
	if len(src) == 0 {
		return http.Header{}
	}
	dst := make(http.Header, len(src))
	for key, values := range src {
		copied := make([]string, len(values))
		copy(copied, values)
		dst[key] = copied
	}
	return dst
}

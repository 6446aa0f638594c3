package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"
)

const readinessCheckTimeout = 5 * time.Second

// ReadinessCheck probes one dependency; a non-nil error marks it unavailable.
type ReadinessCheck func(ctx context.Context) error

// BuildInfo describes the running binary for the health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// HealthHandlers serves /healthz and /readyz.
type HealthHandlers struct {
	build  BuildInfo
	checks map[string]ReadinessCheck
	clock  func() time.Time
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// WithHealthBuildInfo attaches build metadata to the health payloads.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthCheck registers a named readiness probe.
func WithHealthCheck(name string, check ReadinessCheck) HealthOption {
	return func(h *HealthHandlers) {
		if name == "" || check == nil {
			return
		}
		h.checks[name] = check
	}
}

// WithHealthClock overrides the time source, used by tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs the health endpoints.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		checks: make(map[string]ReadinessCheck),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

// Healthz reports liveness; it never touches downstream dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	payload := map[string]any{
		"status":    "ok",
		"uptime":    now.Sub(h.build.StartedAt).String(),
		"timestamp": now.Format(time.RFC3339),
	}
	if h.build.Version != "" {
		payload["version"] = h.build.Version
	}
	if h.build.CommitSHA != "" {
		payload["commitSha"] = h.build.CommitSHA
	}
	if h.build.Environment != "" {
		payload["environment"] = h.build.Environment
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// Readyz runs every registered readiness probe and reports 503 when any fails.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessCheckTimeout)
	defer cancel()

	status := "ok"
	checks := make(map[string]map[string]any, len(h.checks))
	var details []string

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		started := h.clock()
		err := h.checks[name](ctx)
		entry := map[string]any{
			"status":  "ok",
			"latency": h.clock().Sub(started).String(),
		}
		if err != nil {
			status = "degraded"
			entry["status"] = "degraded"
			entry["error"] = err.Error()
			details = append(details, name+": "+err.Error())
		}
		checks[name] = entry
	}

	payload := map[string]any{
		"status":    status,
		"checks":    checks,
		"timestamp": h.clock().UTC().Format(time.RFC3339),
	}
	if len(details) > 0 {
		payload["details"] = details
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, code, payload)
}

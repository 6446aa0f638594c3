package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultPageSize defines the fallback number of items returned when the client omits pageSize.
	DefaultPageSize = 50
	// DefaultMaxPageSize caps the supported pageSize to prevent unbounded queries.
	DefaultMaxPageSize = 100
)

// Cursor represents the Firestore pagination cursor payload carried inside a page token.
type Cursor struct {
	StartAfter []any `json:"startAfter,omitempty"`
	StartAt    []any `json:"startAt,omitempty"`
}

// Params bundles the pagination values extracted from a request. The cursor is
// kept opaque here; the repository layer decodes it against its own ordering.
type Params struct {
	PageSize int
	Cursor   string
}

// Options control how Parse behaves for a given handler layer.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
}

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid pageSize")
	ErrInvalidPageToken = errors.New("pagination: invalid page token")
)

// FromRequest parses the supported query parameters from the supplied request.
func FromRequest(r *http.Request, opts Options) (Params, error) {
	if r == nil {
		return Params{}, errors.New("pagination: nil request")
	}
	return Parse(r.URL.Query(), opts)
}

// Parse consumes the provided query values and returns the normalised Params representation.
func Parse(values url.Values, opts Options) (Params, error) {
	if values == nil {
		values = url.Values{}
	}

	pageSize, err := parsePageSize(values.Get("pageSize"), opts)
	if err != nil {
		return Params{}, err
	}

	return Params{
		PageSize: pageSize,
		Cursor:   strings.TrimSpace(values.Get("cursor")),
	}, nil
}

func parsePageSize(raw string, opts Options) (int, error) {
	maxPageSize := opts.MaxPageSize
	if maxPageSize <= 0 {
		maxPageSize = DefaultMaxPageSize
	}

	defaultPageSize := opts.DefaultPageSize
	if defaultPageSize <= 0 {
		defaultPageSize = DefaultPageSize
	}
	if defaultPageSize > maxPageSize {
		defaultPageSize = maxPageSize
	}

	if strings.TrimSpace(raw) == "" {
		return defaultPageSize, nil
	}

	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: must be an integer", ErrInvalidPageSize)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidPageSize)
	}
	if value > maxPageSize {
		value = maxPageSize
	}
	return value, nil
}

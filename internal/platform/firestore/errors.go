package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error classifies Firestore failures so the service layer can map them onto
// not-found, conflict, and unavailable responses without importing grpc codes.
type Error struct {
	op   string
	err  error
	kind errorKind
}

type errorKind int

const (
	kindUnknown errorKind = iota
	kindNotFound
	kindConflict
	kindUnavailable
)

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.op != "" {
		return fmt.Sprintf("%s: %v", e.op, e.err)
	}
	return e.err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// IsNotFound reports whether the document does not exist.
func (e *Error) IsNotFound() bool {
	return e != nil && e.kind == kindNotFound
}

// IsConflict reports whether a precondition or concurrent update failed.
func (e *Error) IsConflict() bool {
	return e != nil && e.kind == kindConflict
}

// IsUnavailable reports whether the backend failed transiently.
func (e *Error) IsUnavailable() bool {
	return e != nil && e.kind == kindUnavailable
}

func classify(code codes.Code) errorKind {
	switch code {
	case codes.NotFound:
		return kindNotFound
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted, codes.OutOfRange:
		return kindConflict
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.DeadlineExceeded:
		return kindUnavailable
	default:
		return kindUnknown
	}
}

// WrapError annotates a Firestore error with the repository classification.
// Context cancellations pass through unchanged so callers can errors.Is them.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	switch status.Code(err) {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}

	var repoErr *Error
	if errors.As(err, &repoErr) {
		if op != "" && repoErr.op == "" {
			repoErr.op = op
		}
		return repoErr
	}
	return &Error{op: op, err: err, kind: classify(status.Code(err))}
}

package helper

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Stable error taxonomy surfaced to external callers. Call sites compare
// against these with errors.Is; NewError wraps one (or an arbitrary
// cause) with the operation that produced it.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrMissingEndpoint     = errors.New("missing endpoint")
	ErrDuplicateId         = errors.New("duplicate id")
	ErrStoreCorruption     = errors.New("store corruption")
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	ErrRerankUnavailable   = errors.New("rerank unavailable")
	ErrUnsupportedQuery    = errors.New("unsupported query")
	ErrQueryError          = errors.New("query error")
	ErrTimeout             = errors.New("timeout")
	ErrCancelled           = errors.New("cancelled")
)

// OperationError carries the operation name alongside a wrapped cause so
// both the taxonomy (via errors.Is on the wrapped sentinel) and the
// calling context survive unwrapping.
type OperationError struct {
	Operation string
	Cause     error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Operation, e.Cause)
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

// NewError wraps cause with the operation that produced it. If cause is
// nil, it returns nil so call sites can use it unconditionally after a
// fallible step.
func NewError(operation string, cause error) error {
	if cause == nil {
		return nil
	}
	return &OperationError{Operation: operation, Cause: cause}
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505), the signal a content-hash or other unique
// index collision surfaces as.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

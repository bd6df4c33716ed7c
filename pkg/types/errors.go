package types

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds returned by the similarity engine. Every failure surfaced by the
// core wraps exactly one of these so callers can branch with errors.Is while
// still seeing the underlying cause text.
var (
	ErrNotConnected     = errors.New("not connected")
	ErrConnection       = errors.New("connection error")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrQueryFailed      = errors.New("query failed")
	ErrTimeoutExceeded  = errors.New("timeout exceeded")
	ErrResolutionFailed = errors.New("resolution failed")
	ErrCancelled        = errors.New("cancelled")
	ErrNotFound         = errors.New("not found")
)

// Validation errors for value types
var (
	ErrInvalidScore       = errors.New("score must be between 0 and 1")
	ErrMissingFunction    = errors.New("function name or address is required")
	ErrEmptySignature     = errors.New("signature vector cannot be empty")
	ErrInvalidAddress     = errors.New("function address must be hexadecimal")
	ErrMissingExecutable  = errors.New("executable path is required")
	ErrUnsupportedStore   = errors.New("unsupported store kind")
	ErrMalformedLocation  = errors.New("malformed store location")
	ErrBoundsInverted     = errors.New("minimum bound exceeds maximum bound")
	ErrNonPositiveLimit   = errors.New("limit must be positive")
	ErrNegativeOffset     = errors.New("offset cannot be negative")
	ErrLimitAboveCap      = errors.New("limit exceeds maximum")
	ErrNaNBound           = errors.New("bound must be a number")
	ErrNonPositiveMatches = errors.New("max matches must be positive")
)

// kinds lists the error kinds in the order KindOf checks them.
var kinds = []struct {
	err  error
	name string
}{
	{ErrNotConnected, "not_connected"},
	{ErrConnection, "connection_error"},
	{ErrInvalidArgument, "invalid_argument"},
	{ErrTimeoutExceeded, "timeout_exceeded"},
	{ErrCancelled, "cancelled"},
	{ErrQueryFailed, "query_failed"},
	{ErrResolutionFailed, "resolution_failed"},
	{ErrNotFound, "not_found"},
}

// Wrap tags cause with kind. A nil cause yields the bare kind.
func Wrap(kind, cause error) error {
	if cause == nil {
		return kind
	}
	return fmt.Errorf("%w: %w", kind, cause)
}

// Wrapf tags a formatted message with kind.
func Wrapf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// KindOf returns the machine-readable kind name of err, or "internal" when err
// carries none of the known kinds.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}

// FromContext converts a context error into the Cancelled or TimeoutExceeded
// kind. It returns nil when ctx is still live.
func FromContext(ctx context.Context) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(ErrTimeoutExceeded, err)
	}
	return Wrap(ErrCancelled, err)
}

package fetch

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

var (
	// ErrDeclaredSizeExceeded is returned when the peer announces a body
	// larger than the limit. Nothing has been read at that point.
	ErrDeclaredSizeExceeded = errors.New("declared response size exceeded")

	// ErrActualSizeExceeded is returned when the streamed body grows past
	// the limit, regardless of what the peer announced.
	ErrActualSizeExceeded = errors.New("actual response size exceeded")

	// ErrUpstream matches every *UpstreamError.
	ErrUpstream = errors.New("upstream returned non-success status")
)

// SizeError reports a size-limit violation with the figures involved.
// Observed is zero for declared-size violations.
type SizeError struct {
	Kind     error
	Declared int64
	Observed int64
	Limit    int64
}

func (e *SizeError) Error() string {
	if e.Kind == ErrDeclaredSizeExceeded {
		return fmt.Sprintf("%v: declared %d bytes, limit %d",
			e.Kind, e.Declared, e.Limit)
	}
	return fmt.Sprintf("%v: read %d bytes, limit %d",
		e.Kind, e.Observed, e.Limit)
}

func (e *SizeError) Unwrap() error {
	return e.Kind
}

// LogValue renders the sizes as a log group.
func (e *SizeError) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("reason", e.Kind.Error()),
		slog.Int64("declared", e.Declared),
		slog.Int64("observed", e.Observed),
		slog.Int64("limit", e.Limit),
	)
}

// UpstreamError reports a non-2xx HTTP status. The body is never read.
type UpstreamError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("unexpected status %d (%s) on %s %s",
		e.StatusCode, http.StatusText(e.StatusCode), e.Method, e.URL)
}

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// StatusCode returns the upstream status carried by err, or 0.
func StatusCode(err error) int {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.StatusCode
	}
	return 0
}

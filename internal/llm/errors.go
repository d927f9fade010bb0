package llm

import (
	"errors"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"
)

// TransportError is a connection or I/O failure talking to the provider,
// including request timeouts.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is a frame or JSON payload the adapter could not make sense of.
type ProtocolError struct {
	Format string
	Detail string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s protocol error: %s: %v", e.Format, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s protocol error: %s", e.Format, e.Detail)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// UpstreamError is an explicit error reported by the provider, either as a
// non-success HTTP status or as an error event inside the stream.
type UpstreamError struct {
	StatusCode int // 0 when reported in-stream
	Message    string
	// RetryAfter is the server's requested wait, when it sent one.
	RetryAfter time.Duration
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider error: %s", e.Message)
}

// Retryable reports whether the provider asked us to back off or had a
// server-side failure.
func (e *UpstreamError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ToolArgumentError records arguments that were not valid JSON. It never
// aborts a turn; the call runs with an empty object instead.
type ToolArgumentError struct {
	CallID    string
	Name      string
	Arguments string
}

func (e *ToolArgumentError) Error() string {
	return fmt.Sprintf("tool %s (%s): malformed arguments %q", e.Name, e.CallID, truncate(e.Arguments, 80))
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsProtocol reports whether err is (or wraps) a ProtocolError.
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// IsUpstream reports whether err is (or wraps) an UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

package synth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"unicode/utf8"
)

// Kind classifies why a synthesis attempt failed.
type Kind int

const (
	KindUnknown    Kind = iota
	KindEmptyInput      // blank text, no request sent
	KindTimeout         // request or context deadline exceeded
	KindTransport       // connection refused, DNS, reset, truncated body
	KindStatus          // service answered with a non-200 status
	KindStorage         // audio could not be written to disk
	KindCanceled        // caller cancelled the context
)

var kindNames = map[Kind]string{
	KindUnknown:    "unknown",
	KindEmptyInput: "empty_input",
	KindTimeout:    "timeout",
	KindTransport:  "transport",
	KindStatus:     "status",
	KindStorage:    "storage",
	KindCanceled:   "canceled",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Error is the failure returned by Client.Synthesize.
type Error struct {
	Kind       Kind
	Index      int    // Chunk index the attempt was for
	StatusCode int    // Set for KindStatus
	Body       string // Truncated response body for KindStatus
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindStatus:
		if e.Body == "" && e.Err != nil {
			return fmt.Sprintf("chunk %d: tts status %d: %v", e.Index, e.StatusCode, e.Err)
		}
		return fmt.Sprintf("chunk %d: tts status %d: %s", e.Index, e.StatusCode, truncate(e.Body, 200))
	case KindEmptyInput:
		return fmt.Sprintf("chunk %d: empty text", e.Index)
	}
	if e.Err != nil {
		return fmt.Sprintf("chunk %d: tts %s: %v", e.Index, e.Kind, e.Err)
	}
	return fmt.Sprintf("chunk %d: tts %s", e.Index, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether another attempt could succeed: timeouts,
// transport failures, 429 and 5xx responses.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindTransport:
		return true
	case KindStatus:
		return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
	}
	return false
}

// KindOf classifies any error. Errors not produced by this package are
// classified from context and network errors in their chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return classify(err)
}

// IsRetryable reports whether err is a retryable synthesis failure.
func IsRetryable(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Retryable()
}

func classify(err error) Kind {
	switch {
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindTransport
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

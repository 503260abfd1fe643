package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means there is no canonical entry, or no source resolves a slug
	ErrNotFound = errors.New("not found")
	// ErrUpstreamUnavailable covers non-2xx responses, timeouts and network failures against a scraped page or host
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrParseMismatch means the expected page structure was absent
	ErrParseMismatch = errors.New("page structure mismatch")
	// ErrStaleRedirect means a slug redirected away from its expected path
	ErrStaleRedirect = errors.New("slug redirected to a different title")
	// ErrTokenExpired means a stream token is absent or expired
	ErrTokenExpired = errors.New("stream token not found or expired")
	// ErrUnsupportedHost means no proxy strategy handles the stream's origin
	ErrUnsupportedHost = errors.New("unsupported stream host")
)

// UpstreamError records a failed request against a third-party page
type UpstreamError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("upstream %s: status %d", e.URL, e.StatusCode)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is reports every UpstreamError as ErrUpstreamUnavailable
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}

// MessageError gives a sentinel error the message clients should see
type MessageError struct {
	Message string
	Err     error
}

func (e *MessageError) Error() string {
	return e.Message
}

func (e *MessageError) Unwrap() error {
	return e.Err
}

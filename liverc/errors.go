package liverc

import (
	"errors"
	"fmt"
)

// ErrLegacyFormat marks a provider link in the old browsable-page format.
// Such links carry no slugs and cannot be ingested directly.
var ErrLegacyFormat = errors.New("legacy result link format: resolve to a results URL before importing")

// InvalidRefError reports a malformed or unsupported result link.
type InvalidRefError struct {
	Ref    string
	Reason string
}

func (e *InvalidRefError) Error() string {
	return fmt.Sprintf("invalid result reference %q: %s", e.Ref, e.Reason)
}

// IsInvalidRef reports whether err is a reference validation failure,
// including the legacy-format sentinel.
func IsInvalidRef(err error) bool {
	var ire *InvalidRefError
	return errors.As(err, &ire) || errors.Is(err, ErrLegacyFormat)
}

// UpstreamUnavailableError wraps a transport-level failure talking to the
// provider. Retryable by the caller.
type UpstreamUnavailableError struct {
	URL string
	Err error
}

func (e *UpstreamUnavailableError) Error() string {
	return fmt.Sprintf("upstream unavailable: GET %s: %v", e.URL, e.Err)
}

func (e *UpstreamUnavailableError) Unwrap() error { return e.Err }

// UpstreamStatusError reports a non-success HTTP status from the provider.
type UpstreamStatusError struct {
	URL    string
	Status int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream error: GET %s: status %d", e.URL, e.Status)
}

// UpstreamMalformedError reports an unparsable provider response body.
type UpstreamMalformedError struct {
	URL string
	Err error
}

func (e *UpstreamMalformedError) Error() string {
	return fmt.Sprintf("upstream malformed response: GET %s: %v", e.URL, e.Err)
}

func (e *UpstreamMalformedError) Unwrap() error { return e.Err }

// IsUpstreamError reports whether err is any of the typed upstream
// failures (transport, status, or parse). All of them abort the current
// import attempt and may be retried by the orchestration layer.
func IsUpstreamError(err error) bool {
	var unavailable *UpstreamUnavailableError
	var status *UpstreamStatusError
	var malformed *UpstreamMalformedError
	return errors.As(err, &unavailable) || errors.As(err, &status) || errors.As(err, &malformed)
}

package rates

import (
	"errors"
	"fmt"
	"time"
)

// FailureKind classifies source fetcher failures. Fetchers never panic on
// network trouble; they return one of these wrapped in a FetchError.
type FailureKind string

const (
	FailureTimeout     FailureKind = "timeout"
	FailureUnreachable FailureKind = "unreachable"
	FailureMalformed   FailureKind = "malformed-response"
	FailureEmpty       FailureKind = "empty-result"
)

// FetchError is a typed upstream failure attributed to one source.
type FetchError struct {
	Source string
	Kind   FailureKind
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Source, e.Kind)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError builds a typed failure for a source.
func NewFetchError(source string, kind FailureKind, err error) *FetchError {
	return &FetchError{Source: source, Kind: kind, Err: err}
}

// ErrOffline reports that the connectivity probe failed before any upstream
// was contacted.
var ErrOffline = errors.New("no connectivity")

// RateLimitedError is the debounce suppression surfaced on forced refreshes.
type RateLimitedError struct {
	Wait time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, wait %ds", int(e.Wait.Seconds()))
}

// WaitSeconds reports the remaining debounce time rounded up to whole seconds.
func (e *RateLimitedError) WaitSeconds() int {
	secs := e.Wait.Seconds()
	whole := int(secs)
	if float64(whole) < secs {
		whole++
	}
	if whole < 1 {
		whole = 1
	}
	return whole
}

package leginfo

import (
	"errors"
	"fmt"
)

// ErrTokenLost reports a paginated page that did not carry the view-state
// token the next request needs. The remaining pages of the run are
// unreachable once this happens.
var ErrTokenLost = errors.New("pagination continuation token missing")

// FetchError is a network or HTTP-level failure. Retryable.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DecodeError means a response did not match a known page shape. Either
// an upstream layout change or a transient session page served in place
// of the real one.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "decode page: " + e.Reason
}

// ExtractError is one item's detail extraction failing after retries are
// exhausted. The orchestrator skips the item and continues.
type ExtractError struct {
	IdentityKey string
	Link        string
	Err         error
}

func (e *ExtractError) Error() string {
	if e.IdentityKey != "" {
		return fmt.Sprintf("extract bill %s: %v", e.IdentityKey, e.Err)
	}
	return fmt.Sprintf("extract %s: %v", e.Link, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// DateParseError is non-fatal: the field is left empty and the record is
// kept.
type DateParseError struct {
	Field string
	Value string
	Err   error
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("parse %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *DateParseError) Unwrap() error { return e.Err }

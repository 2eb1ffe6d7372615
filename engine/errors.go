package engine

import (
	"fmt"

	"github.com/pkg/errors"
)

// ============================================================================
// ERRORS
// ============================================================================
// Intent-shape problems abort the call. Per-row problems (type mismatch,
// unparseable duration, unknown operator) are absorbed where they occur and
// never reach the caller.
// ============================================================================

var (
	// ErrMalformedIntent is the root of every intent-shape error.
	ErrMalformedIntent = errors.New("malformed intent")
	// ErrOutOfRange is returned when a subset index is outside the row collection.
	ErrOutOfRange = errors.New("row index out of range")
	// ErrMaxDepth is returned when a filter tree or group field list is deeper than allowed.
	ErrMaxDepth = errors.New("maximum nesting depth exceeded")
)

// IntentError describes a missing or invalid key in an intent document.
type IntentError struct {
	Stage  string // filter, sort, group, aggregates, unique, fuzzy_filter
	Key    string
	Reason string
}

func (e *IntentError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: %s: %s", ErrMalformedIntent, e.Stage, e.Reason)
	}
	return fmt.Sprintf("%s: %s.%s: %s", ErrMalformedIntent, e.Stage, e.Key, e.Reason)
}

func (e *IntentError) Unwrap() error { return ErrMalformedIntent }

func intentErr(stage, key, reason string) error {
	return &IntentError{Stage: stage, Key: key, Reason: reason}
}

// RangeError reports the first subset index that does not address a row.
type RangeError struct {
	Index int
	Len   int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s: index %d, %d rows", ErrOutOfRange, e.Index, e.Len)
}

func (e *RangeError) Unwrap() error { return ErrOutOfRange }

// DurationParseError is returned for a string that is not an ISO-8601
// duration. It is distinct from an absent value.
type DurationParseError struct {
	Input  string
	Reason string
}

func (e *DurationParseError) Error() string {
	return fmt.Sprintf("invalid duration %q: %s", e.Input, e.Reason)
}

// IsMalformedIntent reports whether err came from a bad intent document.
func IsMalformedIntent(err error) bool { return errors.Is(err, ErrMalformedIntent) }

// IsOutOfRange reports whether err came from a bad subset index.
func IsOutOfRange(err error) bool { return errors.Is(err, ErrOutOfRange) }

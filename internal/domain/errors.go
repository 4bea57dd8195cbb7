package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is.
var (
	// ErrNotFound covers missing sprints, boards and unknown members.
	ErrNotFound = errors.New("not found")
	// ErrConfigMissing means the user has no tracker or AI configuration.
	ErrConfigMissing = errors.New("configuration missing")
)

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return "missing or invalid field: " + e.Field
}

// AuthError means the tracker rejected the stored credentials.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("tracker rejected credentials (status %d)", e.Status)
}

// TransportError wraps network-level failures talking to the tracker.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("tracker %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UpstreamError wraps failures of an AI backend.
type UpstreamError struct {
	Engine string
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("ai engine %s: %v", e.Engine, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ParseError reports a sprint date that could not be parsed.
type ParseError struct {
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse date %q: %v", e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

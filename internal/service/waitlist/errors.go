package waitlist

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the waitlist service layer.
var (
	ErrMissingToken      = errors.New("confirmation token is required")
	ErrTokensUnavailable = errors.New("confirmation tokens are not configured")
)

// ValidationError is returned for malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// RateLimitError is returned when the caller's signup window is exhausted.
type RateLimitError struct {
	RetryAfter time.Duration
	Remaining  int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many signups, retry after %s", e.RetryAfter.Round(time.Second))
}

// RetryAfterSeconds rounds up and is never below 1.
func (e *RateLimitError) RetryAfterSeconds() int {
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// NotFoundError is returned when no entry exists for an email.
type NotFoundError struct {
	Email string
}

func (e *NotFoundError) Error() string {
	return "waitlist entry not found"
}

// Persistence operations, reported in PersistenceError.Op.
const (
	OpCreate = "create" // writing a new entry
	OpUpdate = "update" // activity update on a repeat signup
	OpRead   = "read"   // strict read during confirmation
	OpSave   = "save"   // confirmation write
	OpLock   = "lock"   // keyed lock acquisition
)

// PersistenceError wraps a store failure that must reach the caller.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("waitlist %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

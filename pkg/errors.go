// Package pkg holds utilities shared across the project.
// This file defines the domain-level errors.
//
// Errors are sentinel values compared by identity, not by string:
//
//	if errors.Is(err, pkg.ErrStaleState) { ... }
//
// Services wrap them with context (fmt.Errorf("%w: ...")), handlers map
// them to HTTP status codes.
package pkg

import (
	"errors"
	"fmt"
)

// Generic errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrBadRequest    = errors.New("bad request")
	ErrAlreadyExists = errors.New("already exists")
	ErrInternal      = errors.New("internal error")

	// ErrUnauthenticated: no valid identity on the request (401).
	ErrUnauthenticated = errors.New("unauthenticated")
)

// Mic arbitration errors.
var (
	// ErrInvalidTransition: the (status, event) pair is not in the
	// transition table. Nothing was written.
	ErrInvalidTransition = errors.New("invalid mic transition")

	// ErrStaleState: the compare-and-set lost; the caller must re-read.
	ErrStaleState = errors.New("stale mic state")

	// ErrUnauthorized: the actor's resolved role lacks authority.
	// Never retried automatically.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAccessDenied: the store's access policy rejected the write.
	ErrAccessDenied = errors.New("no permission for this action")

	// ErrTransient: store or network unavailable; the caller may retry.
	ErrTransient = errors.New("temporarily unavailable")

	// ErrSlotsFull: the room's speaker cap is reached.
	ErrSlotsFull = errors.New("mic slots full")

	// ErrRateLimited: too many raise-hand requests.
	ErrRateLimited = errors.New("rate limited")
)

// RetryAfterError is a rate-limit rejection carrying the wait time for the
// Retry-After header. errors.Is(err, ErrRateLimited) holds for it.
type RetryAfterError struct {
	Seconds int
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("%s: retry after %d seconds", ErrRateLimited, e.Seconds)
}

func (e *RetryAfterError) Unwrap() error {
	return ErrRateLimited
}

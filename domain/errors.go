// Package domain holds the error taxonomy shared by the rules packages,
// the repository, and the web layer.
package domain

import "errors"

var (
	// ErrNotFound means the referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition means a state machine guard was violated,
	// e.g. accepting a challenge that is no longer pending.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrInvalidData means the request itself is malformed: challenging
	// yourself, registering a spider without an image, and so on.
	ErrInvalidData = errors.New("invalid data")

	// ErrPermissionDenied means the caller is signed in but may not act
	// on this entity.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrUnauthenticated means no signed-in caller.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrConflict means a concurrent writer won the race; the caller
	// should re-read and decide again, not blindly retry.
	ErrConflict = errors.New("conflict")

	// ErrUnavailable is a transient storage/network failure. The only
	// member of the taxonomy that is safe to retry.
	ErrUnavailable = errors.New("unavailable")

	// ErrQuotaExceeded is surfaced to the caller and never retried.
	ErrQuotaExceeded = errors.New("quota exceeded")
)

// Retryable reports whether a bounded retry with backoff is permitted
// for err. Domain-rule violations are never retryable.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// Package errdefs defines the closed set of failure kinds used across the
// fetch, playback and dispatch subsystems.
package errdefs

import "github.com/cockroachdb/errors"

var (
	// ErrFetchTransient marks fetch failures worth one automatic retry
	// (network errors, timeouts).
	ErrFetchTransient = errors.New("transient fetch failure")

	// ErrFetchPermanent marks fetch failures that must not be retried
	// (not found, unsupported source).
	ErrFetchPermanent = errors.New("permanent fetch failure")

	// ErrPlaybackDevice marks audio output failures. The current song is
	// treated as failed and the engine advances.
	ErrPlaybackDevice = errors.New("playback device failure")

	// ErrDispatchTimeout marks a language-model call that exceeded its
	// deadline. The queue is left untouched.
	ErrDispatchTimeout = errors.New("dispatch timed out")

	// ErrDispatchTransport marks a failed language-model transport call.
	ErrDispatchTransport = errors.New("dispatch transport failure")

	// ErrInvalidOperation marks a single unknown or malformed operation in
	// a dispatch batch. The operation is skipped; the batch continues.
	ErrInvalidOperation = errors.New("invalid operation reference")
)

// Transient wraps err as a retryable fetch failure.
func Transient(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), ErrFetchTransient)
}

// Permanent wraps err as a non-retryable fetch failure.
func Permanent(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), ErrFetchPermanent)
}

// IsTransient reports whether err is a retryable fetch failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrFetchTransient)
}

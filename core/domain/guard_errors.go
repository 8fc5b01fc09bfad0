package domain

import "errors"

// Classification error taxonomy. None of these reach the scan loop; the
// dispatcher resolves every one of them into a result.
var (
	// ErrValidationSkip marks empty or too-short text.
	ErrValidationSkip = errors.New("text skipped: empty or too short")
	// ErrTransportFailure covers network errors, non-2xx responses, an open
	// breaker and undecodable bodies.
	ErrTransportFailure = errors.New("remote classifier transport failure")
	// ErrMalformedResponse marks a decodable body without a score collection.
	ErrMalformedResponse = errors.New("remote classifier response has no scores")
	// ErrRateLimitWait is returned when the caller gave up while waiting for a slot.
	ErrRateLimitWait = errors.New("gave up waiting for rate limit slot")
)

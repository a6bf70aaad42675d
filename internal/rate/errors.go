package rate

import "errors"

var (
	// ErrStoreUnavailable is returned when the counting store cannot answer.
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
	// ErrInvalidLimit is returned for non-positive limits.
	ErrInvalidLimit = errors.New("invalid rate limit")
)

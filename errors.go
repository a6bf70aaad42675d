package keygate

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrMissingCredential is returned when the request carries no API key.
	ErrMissingCredential = errors.New("missing API key")
	// ErrInvalidCredential is returned when no client owns the key's digest.
	ErrInvalidCredential = errors.New("invalid API key")
	// ErrRateLimited is returned when the client's quota for the current window is spent.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrStoreUnavailable is returned when the counting store fails or times out.
	ErrStoreUnavailable = errors.New("counting store unavailable")
	// ErrDirectoryUnavailable is returned when the client directory fails or times out.
	ErrDirectoryUnavailable = errors.New("client directory unavailable")
	// ErrRegistrationUnavailable is returned by RegisterClient when the
	// directory does not accept registrations.
	ErrRegistrationUnavailable = errors.New("client registration not supported by directory")
	// ErrInvalidRegistration is the sentinel wrapped by [*ValidationError].
	ErrInvalidRegistration = errors.New("invalid client registration")
	// ErrInvalidConfig is wrapped by every [Config.Validate] failure.
	ErrInvalidConfig = errors.New("invalid config")
)

// ValidationError lists per-field problems with a registration request.
type ValidationError struct {
	FieldErrors map[string]string
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.FieldErrors))
	for f := range e.FieldErrors {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString(ErrInvalidRegistration.Error())
	for i, f := range fields {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(f)
		b.WriteString(" ")
		b.WriteString(e.FieldErrors[f])
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRegistration
}

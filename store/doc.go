// Package store provides the shared counting store behind the rate limiter.
//
// # Contract
//
// A [Counter] exposes atomic increment, expiry, and read-by-key. Every call is
// external I/O bounded by a per-call timeout; a timeout and any transport
// failure surface as [ErrUnavailable]. A missing key is not an error.
//
// # Implementations
//
//   - [Redis]: go-redis client (standalone, sentinel or cluster via UniversalClient).
//   - [Breaker]: gobreaker decorator that fails fast while the store is down.
//
// # What this package must NOT do
//
//   - Keep counts in process memory.
//   - Retry inside a request; [Connect] retries only at startup.
package store

// Package rate implements the fixed-window request quota used by the gate.
//
// # Window semantics
//
// Fixed 60-second wall-clock windows: INCR + conditional EXPIRE on first hit.
// Keys have the form
//
//	<prefix>rl:<digest>:<windowStart>
//
// where windowStart is the window's Unix second (a multiple of 60). Keys expire
// after the window plus a safety margin, so stale windows evict themselves.
//
// # Failure policy
//
// Fail closed: any store error on the admitting increment, including a
// failure to set the first-hit expiry, is returned as [ErrStoreUnavailable].
// Callers must reject the request.
//
// # What this package must NOT do
//
//   - Cache counts in process memory or lock around the store.
//   - Retry store calls or run background sweeps.
//   - Be imported outside the keygate module.
package rate

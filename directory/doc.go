// Package directory resolves registered API clients by credential digest.
//
// # Backends
//
//   - [Memory]: map guarded by an RWMutex, for tests, development and seed files.
//   - [Redis]: one hash per client at <prefix>client:<digest>, read with HGETALL.
//
// Lookups are point reads keyed by digest. [ErrNotFound] means the caller is
// unauthenticated; every other error means the directory could not answer.
//
// # What this package must NOT do
//
//   - Accept or persist raw API keys (only digests cross this boundary).
//   - Scan keys to answer a lookup.
package directory

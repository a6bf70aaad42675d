// Package keygate authenticates API-key callers and enforces a per-client
// requests-per-minute quota counted in a shared store.
//
// A [Gateway] is built once through [Builder.Build] and is safe to call from
// many goroutines. Each request is resolved in three steps: the raw key is
// digested and looked up in a [directory.Directory], the digest's counter for
// the current fixed window is incremented in a [store.Counter], and the
// outcome is returned as a [Principal] plus [QuotaDecision] or a sentinel
// error that the HTTP layer maps to a status code.
//
// # Architecture boundaries
//
// keygate is the public surface. It exposes [Gateway], [Builder], [Config] and
// value types. The window arithmetic lives in internal/rate, metric storage
// in internal/metrics and audit dispatch in internal/audit. HTTP concerns
// (headers, JSON bodies, routing) live in middleware, apierror and api.
//
// # What this package must NOT do
//
//   - Keep request counts in process memory. The shared store is the only
//     source of truth, so every replica sees the same quota.
//   - Admit a request when the store or directory cannot answer.
//   - Retry store calls inside a request.
//   - Log or audit raw API keys.
package keygate

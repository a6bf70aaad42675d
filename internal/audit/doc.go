// Package audit delivers gate decision events to pluggable sinks.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, zap logger, no-op).
//   - [Dispatcher]: bounded async relay with drop-if-full or block-if-full semantics.
//   - [Event]: one gate decision or registration, keyed by client name and digest prefix.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which
// events to emit; the Gateway does that after each decision is already made,
// so a slow sink can never change an admit or reject outcome.
//
// # What this package must NOT do
//
//   - Carry raw API keys. Events hold a short digest prefix at most.
//   - Import keygate or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit

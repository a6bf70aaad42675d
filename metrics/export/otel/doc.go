// Package otel publishes gateway metrics as OpenTelemetry observable
// instruments.
//
// Counters become Int64ObservableCounter instruments with the same names as
// the Prometheus exporter. The gate latency histogram is published as a
// cumulative bucket gauge keyed by an "le" attribute plus a count gauge.
// Values are read from MetricsSnapshot inside a single registered callback.
//
// # What this package must NOT do
//
//   - Install a global MeterProvider.
//   - Mutate gateway state.
package otel

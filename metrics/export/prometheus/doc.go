// Package prometheus exposes gateway metrics through client_golang.
//
// [NewCollector] wraps a [keygate.Gateway] as a [prometheus.Collector] that
// reads MetricsSnapshot on every scrape. Counter names are keygate_*_total;
// the single histogram is keygate_gate_latency_seconds. [Handler] serves a
// private registry holding the collector plus the Go runtime and process
// collectors.
//
// # What this package must NOT do
//
//   - Register anything in the global Prometheus registry.
//   - Mutate gateway state.
package prometheus

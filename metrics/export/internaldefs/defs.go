package internaldefs

import (
	"github.com/MrEthical07/keygate"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   keygate.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   keygate.MetricID
	Name string
	Help string
}

// BucketCount is the number of histogram buckets including +Inf.
const BucketCount = 8

const (
	AuditDroppedName = "keygate_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

var CounterDefs = []CounterDef{
	{ID: keygate.MetricGateAdmitted, Name: "keygate_gate_admitted_total", Help: "Requests admitted by the gate."},
	{ID: keygate.MetricGateBypassed, Name: "keygate_gate_bypassed_total", Help: "Requests on public paths that skipped the gate."},
	{ID: keygate.MetricMissingCredential, Name: "keygate_missing_credential_total", Help: "Requests rejected for a missing API key."},
	{ID: keygate.MetricInvalidCredential, Name: "keygate_invalid_credential_total", Help: "Requests rejected for an unknown API key."},
	{ID: keygate.MetricRateLimited, Name: "keygate_rate_limited_total", Help: "Requests rejected because the client quota was spent."},
	{ID: keygate.MetricStoreUnavailable, Name: "keygate_store_unavailable_total", Help: "Requests failed closed because the counting store did not answer."},
	{ID: keygate.MetricDirectoryUnavailable, Name: "keygate_directory_unavailable_total", Help: "Requests failed closed because the client directory did not answer."},
	{ID: keygate.MetricUsageRead, Name: "keygate_usage_read_total", Help: "Usage reports served."},
	{ID: keygate.MetricClientRegistered, Name: "keygate_client_registered_total", Help: "Clients registered."},
}

var HistogramDefs = []HistogramDef{
	{ID: keygate.MetricGateLatency, Name: "keygate_gate_latency_seconds", Help: "Time spent authenticating and counting one request."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// bucket is +Inf.
var HistogramUpperBounds = [BucketCount - 1]float64{
	0.001,
	0.0025,
	0.005,
	0.01,
	0.025,
	0.05,
	0.25,
}

// HistogramBoundLabels are the "le" label values, +Inf included.
var HistogramBoundLabels = [BucketCount]string{
	"0.001",
	"0.0025",
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.25",
	"+Inf",
}

// NormalizeBuckets copies raw into a fixed-size array, dropping extras.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}

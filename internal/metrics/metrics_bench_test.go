package metrics

import (
	"testing"
	"time"
)

func BenchmarkMetricsInc(b *testing.B) {
	m := New(Config{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		m.Inc(MetricGateAdmitted)
	}
}

func BenchmarkMetricsIncDisabled(b *testing.B) {
	m := New(Config{Enabled: false})
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		m.Inc(MetricGateAdmitted)
	}
}

func BenchmarkMetricsIncParallel(b *testing.B) {
	m := New(Config{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Inc(MetricGateAdmitted)
		}
	})
}

// Admitted and rate-limited are the two hottest counters under load.
func BenchmarkMetricsIncMixedParallel(b *testing.B) {
	m := New(Config{Enabled: true})
	ids := [...]MetricID{MetricGateAdmitted, MetricRateLimited, MetricGateAdmitted, MetricGateBypassed}
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			m.Inc(ids[i&3])
			i++
		}
	})
}

func BenchmarkMetricsObserveLatencyParallel(b *testing.B) {
	m := New(Config{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	d := 3 * time.Millisecond
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Observe(MetricGateLatency, d)
		}
	})
}

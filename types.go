package keygate

import (
	"io"

	"go.uber.org/zap"

	"github.com/MrEthical07/keygate/directory"
	internalaudit "github.com/MrEthical07/keygate/internal/audit"
	internalmetrics "github.com/MrEthical07/keygate/internal/metrics"
)

// ClientIdentity is a registered client as returned by the directory.
type ClientIdentity = directory.Client

// Principal is the authenticated caller attached to an admitted request.
type Principal struct {
	ClientID         string
	Name             string
	CredentialDigest string
	QuotaPerMinute   int
}

func principalFor(c ClientIdentity) Principal {
	return Principal{
		ClientID:         c.ID,
		Name:             c.Name,
		CredentialDigest: c.CredentialDigest,
		QuotaPerMinute:   c.QuotaPerMinute,
	}
}

// QuotaDecision is the outcome of one admission attempt.
//
// Used is the post-increment count, so a rejected request reports
// Limit+1 or more.
type QuotaDecision struct {
	Admitted     bool
	Limit        int
	Used         int64
	Remaining    int64
	ResetSeconds int
}

// UsageReport is the read-only quota view for the authenticated client.
type UsageReport struct {
	ClientName          string `json:"clientName"`
	LimitPerMinute      int    `json:"limitPerMinute"`
	UsedThisMinute      int64  `json:"usedThisMinute"`
	RemainingThisMinute int64  `json:"remainingThisMinute"`
	ResetsInSeconds     int    `json:"resetsInSeconds"`
}

func remaining(limit int, used int64) int64 {
	return max(int64(limit)-used, 0)
}

// AuditEvent is a structured audit record emitted by the gateway.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the gateway's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// LoggerSink is an [AuditSink] that writes events through zap.
type LoggerSink = internalaudit.LoggerSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewLoggerSink creates a [LoggerSink] writing to a child of logger.
func NewLoggerSink(logger *zap.Logger) *LoggerSink {
	return internalaudit.NewLoggerSink(logger)
}

// MetricID identifies a specific counter or histogram in the in-process
// metrics system.
type MetricID = internalmetrics.MetricID

const (
	// MetricGateAdmitted counts requests that passed the gate.
	MetricGateAdmitted = MetricID(internalmetrics.MetricGateAdmitted)
	// MetricGateBypassed counts requests on public paths.
	MetricGateBypassed = MetricID(internalmetrics.MetricGateBypassed)
	// MetricMissingCredential counts requests without an API key.
	MetricMissingCredential = MetricID(internalmetrics.MetricMissingCredential)
	// MetricInvalidCredential counts requests with an unknown API key.
	MetricInvalidCredential = MetricID(internalmetrics.MetricInvalidCredential)
	// MetricRateLimited counts requests rejected for quota.
	MetricRateLimited = MetricID(internalmetrics.MetricRateLimited)
	// MetricStoreUnavailable counts fail-closed rejections caused by the counting store.
	MetricStoreUnavailable = MetricID(internalmetrics.MetricStoreUnavailable)
	// MetricDirectoryUnavailable counts fail-closed rejections caused by the directory.
	MetricDirectoryUnavailable = MetricID(internalmetrics.MetricDirectoryUnavailable)
	// MetricUsageRead counts usage reports served.
	MetricUsageRead = MetricID(internalmetrics.MetricUsageRead)
	// MetricClientRegistered counts successful registrations.
	MetricClientRegistered = MetricID(internalmetrics.MetricClientRegistered)
	// MetricGateLatency is the histogram of Admit durations.
	MetricGateLatency = MetricID(internalmetrics.MetricGateLatency)
)

// MetricsSnapshot is a point-in-time copy of the gateway counters.
type MetricsSnapshot = internalmetrics.Snapshot

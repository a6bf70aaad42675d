package keygate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/keygate/credential"
	"github.com/MrEthical07/keygate/directory"
	internalaudit "github.com/MrEthical07/keygate/internal/audit"
	internalmetrics "github.com/MrEthical07/keygate/internal/metrics"
	"github.com/MrEthical07/keygate/internal/rate"
	"github.com/MrEthical07/keygate/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const digestLogPrefix = 8

// Gateway authenticates API keys and enforces per-client quotas.
//
// Gateway instances are built by [Builder.Build] and are safe for
// concurrent use.
type Gateway struct {
	config    Config
	counter   store.Counter
	limiter   *rate.Limiter
	directory directory.Directory
	registrar directory.Registrar
	logger    *zap.Logger
	metrics   *internalmetrics.Metrics
	audit     *internalaudit.Dispatcher
	now       func() time.Time
}

// Close describes the close operation and its observable behavior.
//
// Close flushes and stops the audit dispatcher. The counting store and
// directory belong to the caller and stay open.
func (g *Gateway) Close() {
	if g == nil {
		return
	}
	g.audit.Close()
}

// AuditDropped returns how many audit events were discarded because the
// dispatcher queue was full.
func (g *Gateway) AuditDropped() uint64 {
	if g == nil {
		return 0
	}
	return g.audit.Dropped()
}

// MetricsSnapshot returns a copy of the in-process counters.
func (g *Gateway) MetricsSnapshot() MetricsSnapshot {
	if g == nil || g.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return g.metrics.Snapshot()
}

// Config returns a copy of the gateway configuration.
func (g *Gateway) Config() Config {
	return cloneConfig(g.config)
}

func (g *Gateway) metricInc(id MetricID) {
	g.metrics.Inc(id)
}

// Bypass reports whether path skips the gate, and counts it when it does.
func (g *Gateway) Bypass(path string) bool {
	for _, prefix := range g.config.BypassPrefixes {
		if strings.HasPrefix(path, prefix) {
			g.metricInc(MetricGateBypassed)
			return true
		}
	}
	return false
}

// Authenticate describes the authenticate operation and its observable behavior.
//
// A blank key yields [ErrMissingCredential]; a key whose digest has no owner
// yields [ErrInvalidCredential]; any other directory failure yields
// [ErrDirectoryUnavailable]. The raw key is never logged.
func (g *Gateway) Authenticate(ctx context.Context, rawKey string) (ClientIdentity, error) {
	if strings.TrimSpace(rawKey) == "" {
		g.metricInc(MetricMissingCredential)
		g.logger.Debug("request without api key",
			zap.String("request_id", RequestIDFromContext(ctx)),
			zap.String("path", requestPathFromContext(ctx)),
		)
		g.emitAudit(ctx, auditEventRejectedUnauthorized, "", "", ErrMissingCredential, nil)
		return ClientIdentity{}, ErrMissingCredential
	}

	digest := credential.Digest(rawKey)
	prefix := credential.Prefix(digest, digestLogPrefix)

	lookupCtx, cancel := context.WithTimeout(ctx, g.config.StoreTimeout)
	client, err := g.directory.LookupByDigest(lookupCtx, digest)
	cancel()

	switch {
	case errors.Is(err, directory.ErrNotFound):
		g.metricInc(MetricInvalidCredential)
		g.logger.Debug("unknown api key",
			zap.String("digest_prefix", prefix),
			zap.String("request_id", RequestIDFromContext(ctx)),
		)
		g.emitAudit(ctx, auditEventRejectedUnauthorized, "", prefix, ErrInvalidCredential, nil)
		return ClientIdentity{}, ErrInvalidCredential
	case err != nil:
		g.metricInc(MetricDirectoryUnavailable)
		g.logger.Error("client directory unavailable",
			zap.Bool("alert", true),
			zap.String("digest_prefix", prefix),
			zap.String("request_id", RequestIDFromContext(ctx)),
			zap.Error(err),
		)
		g.emitAlert(ctx, "", prefix, ErrDirectoryUnavailable, "lookup")
		return ClientIdentity{}, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}

	return client, nil
}

// Admit describes the admit operation and its observable behavior.
//
// Admit authenticates rawKey, then counts the request against the client's
// quota for the current window. The returned decision is populated whenever
// the counter was reached, including on [ErrRateLimited]. Store failures
// return [ErrStoreUnavailable]: the request is never admitted without a
// successful count.
func (g *Gateway) Admit(ctx context.Context, rawKey string) (Principal, QuotaDecision, error) {
	if g.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			g.metrics.Observe(MetricGateLatency, time.Since(start))
		}()
	}

	client, err := g.Authenticate(ctx, rawKey)
	if err != nil {
		return Principal{}, QuotaDecision{}, err
	}
	principal := principalFor(client)
	prefix := credential.Prefix(principal.CredentialDigest, digestLogPrefix)

	// One instant for both the counted window and the reported reset.
	at := g.now()
	countCtx, cancel := context.WithTimeout(ctx, g.config.StoreTimeout)
	admitted, used, err := g.limiter.TryAdmitAt(countCtx, principal.CredentialDigest, principal.QuotaPerMinute, at)
	cancel()
	if err != nil {
		g.metricInc(MetricStoreUnavailable)
		g.logger.Error("counting store unavailable, rejecting request",
			zap.Bool("alert", true),
			zap.String("client", principal.Name),
			zap.String("digest_prefix", prefix),
			zap.String("request_id", RequestIDFromContext(ctx)),
			zap.Error(err),
		)
		g.emitAlert(ctx, principal.Name, prefix, ErrStoreUnavailable, "quota")
		return principal, QuotaDecision{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	decision := QuotaDecision{
		Admitted:     admitted,
		Limit:        principal.QuotaPerMinute,
		Used:         used,
		Remaining:    remaining(principal.QuotaPerMinute, used),
		ResetSeconds: g.limiter.SecondsUntilResetAt(at),
	}

	if !admitted {
		g.metricInc(MetricRateLimited)
		g.logger.Debug("quota exceeded",
			zap.String("client", principal.Name),
			zap.Int("limit", decision.Limit),
			zap.Int64("used", decision.Used),
			zap.String("request_id", RequestIDFromContext(ctx)),
		)
		g.emitAudit(ctx, auditEventRejectedRateLimited, principal.Name, prefix, ErrRateLimited, decision.metadata)
		return principal, decision, ErrRateLimited
	}

	g.metricInc(MetricGateAdmitted)
	g.emitAudit(ctx, auditEventAdmitted, principal.Name, prefix, nil, decision.metadata)
	return principal, decision, nil
}

// Usage reports the principal's count for the current window without
// consuming quota.
func (g *Gateway) Usage(ctx context.Context, p Principal) (UsageReport, error) {
	at := g.now()
	readCtx, cancel := context.WithTimeout(ctx, g.config.StoreTimeout)
	used, err := g.limiter.CurrentUsageAt(readCtx, p.CredentialDigest, at)
	cancel()
	if err != nil {
		g.metricInc(MetricStoreUnavailable)
		g.logger.Error("counting store unavailable, usage not reported",
			zap.Bool("alert", true),
			zap.String("client", p.Name),
			zap.String("request_id", RequestIDFromContext(ctx)),
			zap.Error(err),
		)
		g.emitAlert(ctx, p.Name, credential.Prefix(p.CredentialDigest, digestLogPrefix), ErrStoreUnavailable, "usage")
		return UsageReport{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	g.metricInc(MetricUsageRead)
	return UsageReport{
		ClientName:          p.Name,
		LimitPerMinute:      p.QuotaPerMinute,
		UsedThisMinute:      used,
		RemainingThisMinute: remaining(p.QuotaPerMinute, used),
		ResetsInSeconds:     g.limiter.SecondsUntilResetAt(at),
	}, nil
}

// SecondsUntilReset returns the seconds left in the current window, in
// [1, Window].
func (g *Gateway) SecondsUntilReset() int {
	return g.limiter.SecondsUntilReset()
}

// ValidateRegistration checks name and quota against Config.Registration.
// It returns a [*ValidationError] listing every failing field.
func (g *Gateway) ValidateRegistration(name string, quota int) error {
	rc := g.config.Registration
	fields := map[string]string{}

	switch trimmed := strings.TrimSpace(name); {
	case trimmed == "":
		fields["name"] = "must not be blank"
	case len([]rune(trimmed)) > rc.MaxNameLength:
		fields["name"] = fmt.Sprintf("must be at most %d characters", rc.MaxNameLength)
	}

	if quota < rc.MinQuota || quota > rc.MaxQuota {
		fields["requestsPerMinute"] = fmt.Sprintf("must be between %d and %d", rc.MinQuota, rc.MaxQuota)
	}

	if len(fields) > 0 {
		return &ValidationError{FieldErrors: fields}
	}
	return nil
}

// RegisterClient describes the registerclient operation and its observable behavior.
//
// RegisterClient validates the request, generates a fresh API key, stores
// only its digest, and returns the new identity together with the raw key.
// The raw key is not retrievable afterwards.
func (g *Gateway) RegisterClient(ctx context.Context, name string, quota int) (ClientIdentity, string, error) {
	if err := g.ValidateRegistration(name, quota); err != nil {
		return ClientIdentity{}, "", err
	}
	if g.registrar == nil {
		return ClientIdentity{}, "", ErrRegistrationUnavailable
	}

	rawKey, err := credential.Generate()
	if err != nil {
		return ClientIdentity{}, "", fmt.Errorf("generate api key: %w", err)
	}

	client := ClientIdentity{
		ID:               uuid.NewString(),
		Name:             strings.TrimSpace(name),
		CredentialDigest: credential.Digest(rawKey),
		QuotaPerMinute:   quota,
		CreatedAt:        g.now().UTC().Truncate(time.Second),
	}
	prefix := credential.Prefix(client.CredentialDigest, digestLogPrefix)

	createCtx, cancel := context.WithTimeout(ctx, g.config.StoreTimeout)
	err = g.registrar.Create(createCtx, client)
	cancel()
	if err != nil {
		if errors.Is(err, directory.ErrClientExists) || errors.Is(err, directory.ErrInvalidClient) {
			return ClientIdentity{}, "", err
		}
		g.logger.Error("client registration failed",
			zap.Bool("alert", true),
			zap.String("client", client.Name),
			zap.Error(err),
		)
		return ClientIdentity{}, "", fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}

	g.metricInc(MetricClientRegistered)
	g.logger.Info("client registered",
		zap.String("client_id", client.ID),
		zap.String("client", client.Name),
		zap.Int("quota_per_minute", client.QuotaPerMinute),
		zap.String("digest_prefix", prefix),
	)
	g.emitAudit(ctx, auditEventClientRegistered, client.Name, prefix, nil, func() map[string]string {
		return map[string]string{"client_id": client.ID}
	})

	return client, rawKey, nil
}

// Ping checks that the counting store answers within StoreTimeout.
func (g *Gateway) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, g.config.StoreTimeout)
	defer cancel()

	if err := g.counter.Ping(pingCtx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

package keygate

import (
	"context"
	"errors"
	"strconv"
)

const (
	auditEventAdmitted             = "gate_admitted"
	auditEventRejectedUnauthorized = "gate_rejected_unauthorized"
	auditEventRejectedRateLimited  = "gate_rejected_rate_limited"
	auditEventStoreUnavailable     = "gate_store_unavailable"
	auditEventClientRegistered     = "client_registered"
)

// AuditErrorCode is the stable error vocabulary written into audit events.
type AuditErrorCode string

const (
	auditErrMissingCredential    AuditErrorCode = "missing_credential"
	auditErrInvalidCredential    AuditErrorCode = "invalid_credential"
	auditErrRateLimited          AuditErrorCode = "rate_limited"
	auditErrStoreUnavailable     AuditErrorCode = "store_unavailable"
	auditErrDirectoryUnavailable AuditErrorCode = "directory_unavailable"
	auditErrInternal             AuditErrorCode = "internal_error"
)

func (g *Gateway) emitAudit(
	ctx context.Context,
	eventType string,
	clientName string,
	digestPrefix string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if g == nil || g.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:    g.now().UTC(),
		EventType:    eventType,
		ClientName:   clientName,
		DigestPrefix: digestPrefix,
		RequestID:    RequestIDFromContext(ctx),
		Path:         requestPathFromContext(ctx),
		Success:      err == nil,
		Metadata:     metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}
	event.Alert = event.Error == string(auditErrStoreUnavailable) ||
		event.Error == string(auditErrDirectoryUnavailable)

	g.audit.Emit(ctx, event)
}

// emitAlert records a fail-closed rejection. stage names the call that failed.
func (g *Gateway) emitAlert(ctx context.Context, clientName, digestPrefix string, err error, stage string) {
	g.emitAudit(ctx, auditEventStoreUnavailable, clientName, digestPrefix, err, func() map[string]string {
		return map[string]string{"stage": stage}
	})
}

func (d QuotaDecision) metadata() map[string]string {
	return map[string]string{
		"limit":         strconv.Itoa(d.Limit),
		"used":          strconv.FormatInt(d.Used, 10),
		"reset_seconds": strconv.Itoa(d.ResetSeconds),
	}
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrMissingCredential):
		return auditErrMissingCredential
	case errors.Is(err, ErrInvalidCredential):
		return auditErrInvalidCredential
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrStoreUnavailable
	case errors.Is(err, ErrDirectoryUnavailable):
		return auditErrDirectoryUnavailable
	default:
		return auditErrInternal
	}
}

package apierror

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/MrEthical07/keygate"
)

// Kind is the machine-readable "error" field of a body.
type Kind string

const (
	KindUnauthorized     Kind = "unauthorized"
	KindRateLimited      Kind = "rate_limited"
	KindSystemError      Kind = "system_error"
	KindBadRequest       Kind = "bad_request"
	KindValidationError  Kind = "validation_error"
	KindNotFound         Kind = "not_found"
	KindMethodNotAllowed Kind = "method_not_allowed"
	KindInternalError    Kind = "internal_error"
)

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// Status returns the HTTP status for k.
func (k Kind) Status() int {
	switch k {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindSystemError:
		return http.StatusServiceUnavailable
	case KindBadRequest, KindValidationError:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// Body is the JSON error document.
type Body struct {
	Timestamp string         `json:"timestamp"`
	Status    int            `json:"status"`
	Error     Kind           `json:"error"`
	Message   string         `json:"message"`
	Path      string         `json:"path"`
	Details   map[string]any `json:"details"`
}

// Quota is the header view of a quota decision.
type Quota struct {
	Limit        int
	Remaining    int64
	ResetSeconds int
}

// QuotaFrom converts a gate decision.
func QuotaFrom(d keygate.QuotaDecision) Quota {
	return Quota{Limit: d.Limit, Remaining: d.Remaining, ResetSeconds: d.ResetSeconds}
}

var now = time.Now

// SetQuotaHeaders writes the three X-RateLimit headers. Remaining is
// clamped at zero.
func SetQuotaHeaders(h http.Header, q Quota) {
	h.Set(HeaderLimit, strconv.Itoa(q.Limit))
	h.Set(HeaderRemaining, strconv.FormatInt(max(q.Remaining, 0), 10))
	h.Set(HeaderReset, strconv.Itoa(q.ResetSeconds))
}

// ClearQuotaHeaders removes quota and Retry-After headers.
func ClearQuotaHeaders(h http.Header) {
	h.Del(HeaderLimit)
	h.Del(HeaderRemaining)
	h.Del(HeaderReset)
	h.Del(HeaderRetryAfter)
}

// Write renders one error body. Quota headers already on w are kept: a
// request the gate counted reports its quota whatever the outcome. Only
// Retry-After is removed, since it belongs to 429 alone. details may be nil;
// the correlation id from the request context is added as details.requestId.
func Write(w http.ResponseWriter, r *http.Request, kind Kind, message string, details map[string]any) {
	w.Header().Del(HeaderRetryAfter)
	write(w, r, kind, message, details)
}

// WriteRateLimited renders a 429 with quota headers, Retry-After and the
// standard rate-limit details.
func WriteRateLimited(w http.ResponseWriter, r *http.Request, d keygate.QuotaDecision) {
	h := w.Header()
	ClearQuotaHeaders(h)
	SetQuotaHeaders(h, QuotaFrom(d))
	h.Set(HeaderRetryAfter, strconv.Itoa(d.ResetSeconds))

	write(w, r, KindRateLimited, "Too many requests", map[string]any{
		"limitPerMinute":  d.Limit,
		"usedThisMinute":  d.Used,
		"resetsInSeconds": d.ResetSeconds,
	})
}

// WriteError maps a gateway error onto its kind and default message.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	kind, message := Classify(err)

	var details map[string]any
	var verr *keygate.ValidationError
	if errors.As(err, &verr) {
		details = map[string]any{"fieldErrors": verr.FieldErrors}
	}
	Write(w, r, kind, message, details)
}

// Classify returns the kind and client-facing message for err. Unknown
// errors become internal_error with a generic message.
func Classify(err error) (Kind, string) {
	switch {
	case errors.Is(err, keygate.ErrMissingCredential):
		return KindUnauthorized, "Missing API key"
	case errors.Is(err, keygate.ErrInvalidCredential):
		return KindUnauthorized, "Invalid API key"
	case errors.Is(err, keygate.ErrRateLimited):
		return KindRateLimited, "Too many requests"
	case errors.Is(err, keygate.ErrStoreUnavailable),
		errors.Is(err, keygate.ErrDirectoryUnavailable):
		return KindSystemError, "Service temporarily unavailable"
	case errors.Is(err, keygate.ErrInvalidRegistration):
		return KindValidationError, "Validation failed"
	default:
		return KindInternalError, "Something went wrong"
	}
}

func write(w http.ResponseWriter, r *http.Request, kind Kind, message string, details map[string]any) {
	merged := make(map[string]any, len(details)+1)
	for k, v := range details {
		merged[k] = v
	}
	if id := keygate.RequestIDFromContext(r.Context()); id != "" {
		merged["requestId"] = id
	}

	status := kind.Status()
	body := Body{
		Timestamp: now().UTC().Format(time.RFC3339),
		Status:    status,
		Error:     kind,
		Message:   message,
		Path:      r.URL.Path,
		Details:   merged,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

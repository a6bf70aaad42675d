package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/keygate"
	"github.com/MrEthical07/keygate/apierror"
)

type handlers struct {
	gw      *keygate.Gateway
	logger  *zap.Logger
	maxBody int64
}

type createClientRequest struct {
	Name              string `json:"name"`
	RequestsPerMinute int    `json:"requestsPerMinute"`
}

type createClientResponse struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	RequestsPerMinute int       `json:"requestsPerMinute"`
	APIKey            string    `json:"apiKey"`
	CreatedAt         time.Time `json:"createdAt"`
}

func (h *handlers) createClient(w http.ResponseWriter, r *http.Request) {
	if h.gw == nil {
		apierror.Write(w, r, apierror.KindSystemError, "Service temporarily unavailable", nil)
		return
	}

	var req createClientRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err := dec.Decode(&req); err != nil {
		apierror.Write(w, r, apierror.KindBadRequest, "Invalid JSON request body", nil)
		return
	}

	client, rawKey, err := h.gw.RegisterClient(r.Context(), req.Name, req.RequestsPerMinute)
	if err != nil {
		if errors.Is(err, keygate.ErrRegistrationUnavailable) {
			apierror.Write(w, r, apierror.KindNotFound, "Client registration is not enabled", nil)
			return
		}
		if kind, _ := apierror.Classify(err); kind == apierror.KindInternalError {
			h.logger.Error("client registration failed",
				zap.String("request_id", keygate.RequestIDFromContext(r.Context())),
				zap.Error(err),
			)
		}
		apierror.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, createClientResponse{
		ID:                client.ID,
		Name:              client.Name,
		RequestsPerMinute: client.QuotaPerMinute,
		APIKey:            rawKey,
		CreatedAt:         client.CreatedAt,
	})
}

func (h *handlers) usage(w http.ResponseWriter, r *http.Request) {
	p, ok := keygate.PrincipalFromContext(r.Context())
	if !ok || h.gw == nil {
		apierror.Write(w, r, apierror.KindUnauthorized, "Missing API key", nil)
		return
	}

	report, err := h.gw.Usage(r.Context(), p)
	if err != nil {
		apierror.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handlers) hello(w http.ResponseWriter, r *http.Request) {
	p, ok := keygate.PrincipalFromContext(r.Context())
	if !ok {
		apierror.Write(w, r, apierror.KindUnauthorized, "Missing API key", nil)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "Hello! You are: %s", p.Name)
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	if h.gw == nil {
		apierror.Write(w, r, apierror.KindSystemError, "Service temporarily unavailable", nil)
		return
	}
	if err := h.gw.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		apierror.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

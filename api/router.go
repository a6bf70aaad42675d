package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/MrEthical07/keygate"
	"github.com/MrEthical07/keygate/apierror"
	"github.com/MrEthical07/keygate/middleware"
)

const defaultMaxBodyBytes int64 = 1 << 20

// RouterOpts configures [NewRouter] and [NewHandler].
type RouterOpts struct {
	Gateway *keygate.Gateway
	Logger  *zap.Logger

	// MetricsHandler serves GET /metrics. The route is absent when nil.
	MetricsHandler http.Handler

	// MaxBodyBytes caps request bodies. Zero means 1 MiB.
	MaxBodyBytes int64
}

func (o RouterOpts) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// NewRouter returns the routes without the gate. Protected handlers expect a
// principal in the request context.
func NewRouter(opts RouterOpts) chi.Router {
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	h := &handlers{
		gw:      opts.Gateway,
		logger:  opts.logger().Named("api"),
		maxBody: maxBody,
	}

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apierror.Write(w, r, apierror.KindNotFound, "Resource not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		apierror.Write(w, r, apierror.KindMethodNotAllowed, "Method not allowed", map[string]any{
			"method": r.Method,
		})
	})

	r.Post("/clients", h.createClient)
	r.Get("/usage", h.usage)
	r.Get("/hello", h.hello)
	r.Get("/healthz", h.healthz)
	if opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", opts.MetricsHandler)
	}
	return r
}

// NewHandler returns the full pipeline: recovery, request id, gate, router.
func NewHandler(opts RouterOpts) http.Handler {
	return middleware.Chain(
		NewRouter(opts),
		middleware.Recover(opts.logger()),
		middleware.RequestID(),
		middleware.Gate(opts.Gateway),
	)
}

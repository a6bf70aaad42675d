package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/MrEthical07/keygate"
	"github.com/MrEthical07/keygate/apierror"
)

// Recover converts a panic in any later stage into a generic 500 body.
// http.ErrAbortHandler is re-raised so net/http can abort the connection.
// When the handler already started its response, the panic is only logged.
func Recover(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			w := &commitWriter{ResponseWriter: rw}
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				// RequestID runs after this stage; recover its id from the response.
				if keygate.RequestIDFromContext(r.Context()) == "" {
					if id := w.Header().Get(HeaderRequestID); id != "" {
						r = r.WithContext(keygate.WithRequestID(r.Context(), id))
					}
				}

				logger.Error("panic while serving request",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("request_id", keygate.RequestIDFromContext(r.Context())),
					zap.Bool("response_committed", w.committed),
					zap.Stack("stack"),
				)
				if w.committed {
					return
				}
				apierror.Write(w, r, apierror.KindInternalError, "Something went wrong", nil)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// commitWriter records whether the status line has been sent.
type commitWriter struct {
	http.ResponseWriter
	committed bool
}

func (w *commitWriter) WriteHeader(status int) {
	w.committed = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *commitWriter) Write(b []byte) (int, error) {
	w.committed = true
	return w.ResponseWriter.Write(b)
}

func (w *commitWriter) Flush() {
	w.committed = true
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *commitWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Chain wraps h so the first middleware runs first.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

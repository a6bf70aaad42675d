package middleware

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/keygate"
	"github.com/MrEthical07/keygate/apierror"
)

// Gate authenticates and rate-limits every request whose path is not a
// bypass prefix. Admitted requests get quota headers and the principal in
// their context; everything else gets exactly one error body.
func Gate(gw *keygate.Gateway) func(http.Handler) http.Handler {
	header := keygate.DefaultConfig().HeaderName
	if gw != nil {
		header = gw.Config().HeaderName
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if gw == nil {
				apierror.Write(w, r, apierror.KindSystemError, "Service temporarily unavailable", nil)
				return
			}

			if gw.Bypass(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			ctx := keygate.WithRequestPath(r.Context(), r.URL.Path)
			principal, decision, err := gw.Admit(ctx, r.Header.Get(header))

			switch {
			case err == nil:
				apierror.SetQuotaHeaders(w.Header(), apierror.QuotaFrom(decision))
				next.ServeHTTP(w, r.WithContext(keygate.WithPrincipal(ctx, principal)))
			case errors.Is(err, keygate.ErrRateLimited):
				apierror.WriteRateLimited(w, r, decision)
			case errors.Is(err, keygate.ErrMissingCredential):
				apierror.ClearQuotaHeaders(w.Header())
				apierror.Write(w, r, apierror.KindUnauthorized, "Missing API key", map[string]any{
					"header": header,
				})
			default:
				// No count exists for unauthorized or unavailable outcomes.
				apierror.ClearQuotaHeaders(w.Header())
				apierror.WriteError(w, r, err)
			}
		})
	}
}

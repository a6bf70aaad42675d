// Package api wires the gateway into an HTTP surface.
//
// [NewRouter] returns a chi router holding client registration, the usage
// report, a demo protected resource, health and metrics. [NewHandler] wraps
// that router in the recovery, request-id and gate stages so every route
// except the bypass prefixes is authenticated and counted before routing.
//
// # What this package must NOT do
//
//   - Authenticate or count requests itself.
//   - Write error bodies other than through apierror.
package api

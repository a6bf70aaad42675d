// Package middleware exposes the HTTP stages that front a protected service.
//
// # Stages
//
//   - [Recover]: turns panics below it into a 500 internal_error body.
//   - [RequestID]: reads or generates X-Request-Id and stores it in the context.
//   - [Gate]: bypass check, API key extraction, authentication, quota
//     accounting and quota headers, then forwards with the principal attached.
//
// [Chain] composes them in order: Chain(h, Recover(l), RequestID(), Gate(gw)).
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Gateway calls. It does NOT
// implement authentication or counting itself; every decision is delegated to
// keygate.Gateway.Admit and rendered through apierror.
//
// # What this package must NOT do
//
//   - Access Redis or the directory directly.
//   - Write a second body after a rejection.
//   - Touch the response body of an admitted request.
package middleware

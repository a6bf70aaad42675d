// Package apierror writes the gateway's structured JSON error bodies and
// quota headers.
//
// Every rejection produced by the gate, the router or the recovery stage
// goes through [Write], so clients always receive the same shape:
//
//	{"timestamp":"…","status":429,"error":"rate_limited","message":"…","path":"/hello","details":{…}}
//
// # What this package must NOT do
//
//   - Put error causes, stack traces or raw keys into a body.
//   - Decide admission. It only renders decisions made elsewhere.
package apierror

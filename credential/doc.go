// Package credential issues raw API keys and derives their storage digests.
//
// # Formats
//
// Raw keys are 32 bytes from crypto/rand encoded with unpadded base64url
// (43 characters). Digests are SHA-256 over the UTF-8 bytes of the raw key,
// encoded as 64 lowercase hex characters. The digest is the only form that
// is stored, compared, or used to build rate-limit keys.
//
// # What this package must NOT do
//
//   - Store, cache, or log raw keys.
//   - Import any other keygate package.
package credential

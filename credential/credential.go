package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
)

const (
	// KeyBytes is the amount of entropy behind every generated key.
	KeyBytes = 32
	// DigestLength is the length of a hex-encoded SHA-256 digest.
	DigestLength = sha256.Size * 2
)

// reader is swapped in tests to simulate an exhausted entropy source.
var reader io.Reader = rand.Reader

// Digest returns the hex SHA-256 of raw. It is deterministic and never fails.
func Digest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Generate returns a new raw API key.
func Generate() (string, error) {
	var buf [KeyBytes]byte
	if _, err := io.ReadFull(reader, buf[:]); err != nil {
		return "", fmt.Errorf("read entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf[:]), nil
}

// MustGenerate is Generate for callers that treat entropy failure as fatal.
func MustGenerate() string {
	key, err := Generate()
	if err != nil {
		panic(err)
	}
	return key
}

// Matches reports whether raw hashes to digest, in constant time.
func Matches(raw, digest string) bool {
	return subtle.ConstantTimeCompare([]byte(Digest(raw)), []byte(digest)) == 1
}

// IsDigest reports whether s has the shape of a digest produced by Digest.
func IsDigest(s string) bool {
	if len(s) != DigestLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Prefix returns the first n characters of a digest for log correlation.
func Prefix(digest string, n int) string {
	if n <= 0 || len(digest) <= n {
		return digest
	}
	return digest[:n]
}

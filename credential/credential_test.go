package credential

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestDeterministic(t *testing.T) {
	for _, raw := range []string{"", "a", "key-123", "ключ", "🔑 with spaces"} {
		first := Digest(raw)
		assert.Equal(t, first, Digest(raw), "digest of %q", raw)
		assert.Len(t, first, DigestLength)
		assert.True(t, IsDigest(first))
	}
}

func TestDigestKnownVector(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		Digest(""))
	assert.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		Digest("abc"))
}

func TestDigestDistinctInputs(t *testing.T) {
	inputs := []string{"a", "b", "A", "a ", " a", "ab", "ba", "key1", "key2"}
	seen := make(map[string]string, len(inputs))
	for _, in := range inputs {
		d := Digest(in)
		if prev, ok := seen[d]; ok {
			t.Fatalf("digest collision between %q and %q", prev, in)
		}
		seen[d] = in
	}
}

func TestGenerateFormat(t *testing.T) {
	key, err := Generate()
	require.NoError(t, err)
	assert.Len(t, key, 43)
	assert.NotContains(t, key, "=")

	raw, err := base64.RawURLEncoding.DecodeString(key)
	require.NoError(t, err)
	assert.Len(t, raw, KeyBytes)
}

func TestGenerateUnique(t *testing.T) {
	const n = 10000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		key, err := Generate()
		require.NoError(t, err)
		_, dup := seen[key]
		require.False(t, dup, "duplicate key after %d generations", i)
		seen[key] = struct{}{}
	}
	assert.Len(t, seen, n)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("no entropy") }

func TestGenerateEntropyFailure(t *testing.T) {
	prev := reader
	reader = failingReader{}
	t.Cleanup(func() { reader = prev })

	_, err := Generate()
	require.Error(t, err)
	assert.Panics(t, func() { MustGenerate() })
}

func TestMatches(t *testing.T) {
	key := MustGenerate()
	assert.True(t, Matches(key, Digest(key)))
	assert.False(t, Matches(key+"x", Digest(key)))
}

func TestIsDigestRejectsUppercaseAndShort(t *testing.T) {
	d := Digest("abc")
	assert.False(t, IsDigest(d[:10]))
	assert.False(t, IsDigest("BA7816BF8F01CFEA414140DE5DAE2223B00361A396177A9CB410FF61F20015AD"))
	assert.Equal(t, "ba7816bf", Prefix(d, 8))
	assert.Equal(t, "ab", Prefix("ab", 8))
}

package keygate

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/keygate/credential"
	"github.com/MrEthical07/keygate/directory"
)

func newBenchmarkGateway(b *testing.B, quota int) (*Gateway, string, func()) {
	b.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		b.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	rawKey := credential.MustGenerate()
	dir, err := directory.NewMemory(directory.Client{
		ID:               "bench",
		Name:             "bench",
		CredentialDigest: credential.Digest(rawKey),
		QuotaPerMinute:   quota,
	})
	if err != nil {
		b.Fatalf("directory: %v", err)
	}

	gw, err := New().WithRedis(rdb).WithDirectory(dir).Build()
	if err != nil {
		b.Fatalf("build: %v", err)
	}

	return gw, rawKey, func() {
		gw.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

func BenchmarkAuthenticate(b *testing.B) {
	gw, rawKey, cleanup := newBenchmarkGateway(b, 300)
	defer cleanup()

	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := gw.Authenticate(ctx, rawKey); err != nil {
			b.Fatalf("authenticate failed: %v", err)
		}
	}
}

// Quota is spent after the first 300 iterations; the remainder measures
// the rejection path, which costs the same store round trip.
func BenchmarkAdmit(b *testing.B) {
	gw, rawKey, cleanup := newBenchmarkGateway(b, 300)
	defer cleanup()

	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = gw.Admit(ctx, rawKey)
	}
}

func BenchmarkAdmitInvalidKey(b *testing.B) {
	gw, _, cleanup := newBenchmarkGateway(b, 300)
	defer cleanup()

	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := gw.Admit(ctx, "not-a-registered-key"); err == nil {
			b.Fatal("expected rejection")
		}
	}
}

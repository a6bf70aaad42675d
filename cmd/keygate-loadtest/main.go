// Command keygate-loadtest drives the fixed-window limiter concurrently and
// checks that exactly min(requests, limit) requests per key are admitted.
//
// It uses REDIS_ADDR (or --redis-addr) when set and an embedded miniredis
// otherwise. The limiter clock is pinned to the start instant so the run
// never straddles a window boundary.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/MrEthical07/keygate/credential"
	"github.com/MrEthical07/keygate/internal/rate"
	"github.com/MrEthical07/keygate/store"
)

type keyState struct {
	digest   string
	admitted atomic.Int64
	rejected atomic.Int64
}

type runStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func main() {
	var (
		keys        = pflag.Int("keys", 100, "number of distinct API keys")
		perKey      = pflag.Int("requests", 500, "requests issued per key")
		limit       = pflag.Int("limit", 300, "per-key requests per minute")
		concurrency = pflag.Int("concurrency", 256, "number of concurrent workers")
		redisAddr   = pflag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = pflag.String("prefix", "loadtest:", "store key prefix")
		timeout     = pflag.Duration("timeout", 250*time.Millisecond, "per-call store timeout")
	)
	pflag.Parse()

	if *keys <= 0 || *perKey <= 0 || *limit <= 0 || *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "keys, requests, limit, and concurrency must be > 0")
		os.Exit(2)
	}

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	ctx := context.Background()
	counter := store.NewRedis(client, *timeout)
	if err := store.Connect(ctx, counter, store.DefaultConnectConfig(), nil); err != nil {
		fmt.Fprintf(os.Stderr, "connect failed: %v\n", err)
		os.Exit(1)
	}

	pinned := time.Now()
	limiter := rate.New(counter, rate.Config{KeyPrefix: *prefix}, rate.WithClock(func() time.Time { return pinned }))

	states := make([]*keyState, *keys)
	for i := range states {
		states[i] = &keyState{digest: credential.Digest(credential.MustGenerate())}
	}

	total := *keys * *perKey
	fmt.Printf("issuing %d requests over %d keys (limit %d/min, %d workers)...\n",
		total, *keys, *limit, *concurrency)
	stats := runAdmitPhase(ctx, limiter, states, *perKey, *limit, *concurrency)

	fmt.Println("---- results ----")
	printStats("admit", stats)

	want := int64(min(*perKey, *limit))
	var admitted, rejected int64
	mismatches := 0
	for _, s := range states {
		a, r := s.admitted.Load(), s.rejected.Load()
		admitted += a
		rejected += r
		if a != want {
			mismatches++
			if mismatches <= 5 {
				fmt.Printf("key %s: admitted %d, want %d\n", credential.Prefix(s.digest, 8), a, want)
			}
		}
	}
	fmt.Printf("admitted=%d rejected=%d failures=%d\n", admitted, rejected, stats.failures)

	if mismatches > 0 || stats.failures > 0 {
		fmt.Fprintf(os.Stderr, "FAIL: %d keys admitted the wrong number of requests\n", mismatches)
		os.Exit(1)
	}
	fmt.Println("OK: every key admitted exactly min(requests, limit)")
}

func runAdmitPhase(ctx context.Context, limiter *rate.Limiter, states []*keyState, perKey, limit, concurrency int) runStats {
	ops := len(states) * perKey

	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]time.Duration, 0, ops/concurrency+1)
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					break
				}
				s := states[i%len(states)]
				t0 := time.Now()
				ok, _, err := limiter.TryAdmit(ctx, s.digest, limit)
				local = append(local, time.Since(t0))
				switch {
				case err != nil:
					atomic.AddInt64(&failures, 1)
				case ok:
					s.admitted.Add(1)
				default:
					s.rejected.Add(1)
				}
			}
			mu.Lock()
			latencies = append(latencies, local...)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) runStats {
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return runStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s runStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	authclient "github.com/MrEthical07/authclient"
	"github.com/MrEthical07/authclient/authtest"
	"github.com/MrEthical07/authclient/metrics/export/prometheus"
	"github.com/MrEthical07/authclient/tokenstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type options struct {
	concurrency int
	requests    int
	rounds      int
	coalesce    bool
	store       string
	redisAddr   string
	delay       time.Duration
	prom        bool
}

func main() {
	var opts options
	flag.IntVar(&opts.concurrency, "concurrency", 64, "number of concurrent workers")
	flag.IntVar(&opts.requests, "requests", 2000, "requests per round")
	flag.IntVar(&opts.rounds, "rounds", 5, "rounds; access tokens are expired at the start of each")
	flag.BoolVar(&opts.coalesce, "coalesce", true, "share one refresh across concurrent 401s")
	flag.StringVar(&opts.store, "store", authclient.StoreMemory, "token store: memory or redis")
	flag.StringVar(&opts.redisAddr, "redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	flag.DurationVar(&opts.delay, "refresh-delay", 20*time.Millisecond, "artificial latency of the refresh endpoint")
	flag.BoolVar(&opts.prom, "prom", false, "print client metrics in Prometheus format at the end")
	flag.Parse()

	if opts.concurrency <= 0 || opts.requests <= 0 || opts.rounds <= 0 {
		fmt.Fprintln(os.Stderr, "concurrency, requests, and rounds must be > 0")
		os.Exit(2)
	}

	if err := run(context.Background(), opts); err != nil {
		fmt.Fprintf(os.Stderr, "loadtest failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	backend := authtest.NewServer()
	defer backend.Close()
	backend.SetRefreshDelay(opts.delay)
	if _, err := backend.AddUser("load", "load-password", ""); err != nil {
		return err
	}

	store, cleanup, err := openStore(ctx, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := authclient.DefaultConfig()
	cfg.HTTP.BaseURL = backend.URL()
	cfg.Refresh.Coalesce = opts.coalesce
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	client, err := authclient.New().
		WithConfig(cfg).
		WithStore(store).
		WithBaseTransport(&http.Transport{MaxIdleConnsPerHost: opts.concurrency}).
		BuildContext(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if _, err := client.Login(ctx, "load", "load-password"); err != nil {
		return err
	}

	fmt.Printf("rounds=%d requests/round=%d concurrency=%d coalesce=%t store=%s\n",
		opts.rounds, opts.requests, opts.concurrency, opts.coalesce, opts.store)

	var all []phaseStats
	for r := 0; r < opts.rounds; r++ {
		backend.ExpireAccessTokens()
		all = append(all, runRound(ctx, client, opts.requests, opts.concurrency))
	}

	fmt.Println("---- results ----")
	for i, s := range all {
		printStats(fmt.Sprintf("round %d", i+1), s)
	}

	st := backend.Stats()
	snap := client.MetricsSnapshot()
	fmt.Printf("backend: refresh_calls=%d refreshes=%d refresh_failures=%d unauthorized=%d\n",
		st.RefreshRequests, st.Refreshes, st.RefreshFailures, st.Unauthorized)
	fmt.Printf("client: retried=%d coalesced=%d session_expired=%d\n",
		snap.Counters[authclient.MetricRequestRetried],
		snap.Counters[authclient.MetricRefreshCoalesced],
		snap.Counters[authclient.MetricSessionExpired])

	if opts.prom {
		fmt.Print(prometheus.NewPrometheusExporter(client).Render())
	}
	return nil
}

func openStore(ctx context.Context, opts options) (tokenstore.Store, func(), error) {
	if opts.store != authclient.StoreRedis {
		return tokenstore.NewMemoryStore(), func() {}, nil
	}

	addr := opts.redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var cleanup func()
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		addr = mr.Addr()
		cleanup = mr.Close
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		cleanup = func() {}
		fmt.Printf("using redis at %s\n", addr)
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		cleanup()
		return nil, nil, err
	}
	store, err := tokenstore.NewRedisStore(rdb, "loadtest", "default", 0)
	if err != nil {
		_ = rdb.Close()
		cleanup()
		return nil, nil, err
	}
	return store, func() {
		_ = rdb.Close()
		cleanup()
	}, nil
}

func runRound(ctx context.Context, client *authclient.Client, requests, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, requests)
		mu        sync.Mutex
	)

	httpClient := client.HTTPClient()
	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= requests {
					return
				}
				req, err := client.NewRequest(ctx, http.MethodGet, authtest.PathMe, nil)
				if err != nil {
					atomic.AddInt64(&failures, 1)
					continue
				}
				t0 := time.Now()
				resp, err := httpClient.Do(req)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				} else {
					if resp.StatusCode != http.StatusOK {
						atomic.AddInt64(&failures, 1)
					}
					resp.Body.Close()
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total, failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
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

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: requests=%d failures=%d total=%s req/sec=%.0f p50=%s p95=%s p99=%s\n",
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

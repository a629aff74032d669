package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	goSession "github.com/MrEthical07/goSession"
	gsotel "github.com/MrEthical07/goSession/metrics/export/otel"
)

const (
	loadtestIP        = "198.51.100.7"
	loadtestUserAgent = "sessiond-loadtest"
)

type loadtestSession struct {
	sid   string
	token string
}

func newLoadtestCommand() *cobra.Command {
	var (
		sessions    int
		users       int
		concurrency int
		ops         int
		redisAddr   string
		prefix      string
	)

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Measure create, validate and refresh throughput against Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessions <= 0 || users <= 0 || concurrency <= 0 || ops <= 0 {
				return fmt.Errorf("sessions, users, concurrency, and ops must be > 0")
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			out := cmd.OutOrStdout()

			addr := redisAddr
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
					return fmt.Errorf("start miniredis: %w", err)
				}
				client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
				cleanup = func() {
					_ = client.Close()
					mr.Close()
				}
				fmt.Fprintf(out, "using miniredis at %s\n", mr.Addr())
			} else {
				client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
				cleanup = func() { _ = client.Close() }
				fmt.Fprintf(out, "using redis at %s\n", addr)
			}
			defer cleanup()

			cfg := goSession.DefaultConfig()
			cfg.Store.RedisPrefix = prefix
			cfg.Session.MaxConcurrentSessions = sessions/users + 1
			cfg.Metrics.Enabled = true
			cfg.Metrics.EnableLatencyHistograms = true

			m, err := goSession.New().
				WithConfig(cfg).
				WithRedis(client).
				WithLogger(zerolog.Nop()).
				Build()
			if err != nil {
				return fmt.Errorf("build manager: %w", err)
			}
			defer m.Close()

			reader := sdkmetric.NewManualReader()
			provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
			defer provider.Shutdown(context.Background())
			exp, err := gsotel.NewExporter(provider.Meter("sessiond-loadtest"), m)
			if err != nil {
				return fmt.Errorf("otel exporter: %w", err)
			}
			defer exp.Close()

			states := make([]loadtestSession, sessions)
			createStats := runCreatePhase(ctx, m, states, users, concurrency)
			validateStats := runValidatePhase(ctx, m, states, ops, concurrency)
			refreshStats := runRefreshPhase(ctx, m, states, ops, concurrency)

			fmt.Fprintln(out, "---- results ----")
			printStats(out, "create", createStats)
			printStats(out, "validate", validateStats)
			printStats(out, "refresh", refreshStats)

			var rm metricdata.ResourceMetrics
			if err := reader.Collect(ctx, &rm); err != nil {
				return fmt.Errorf("collect metrics: %w", err)
			}
			printCounters(out, rm)
			return nil
		},
	}

	cmd.Flags().IntVar(&sessions, "sessions", 10000, "Number of sessions to create")
	cmd.Flags().IntVar(&users, "users", 1000, "Number of distinct users the sessions are spread over")
	cmd.Flags().IntVar(&concurrency, "concurrency", 64, "Number of concurrent workers")
	cmd.Flags().IntVar(&ops, "ops", 50000, "Operations per validate and refresh phase")
	cmd.Flags().StringVar(&redisAddr, "redis-addr", "", "Redis address; if empty, REDIS_ADDR env or miniredis is used")
	cmd.Flags().StringVar(&prefix, "prefix", "lt", "Session key prefix")
	return cmd
}

func observed(ctx context.Context) context.Context {
	return goSession.WithUserAgent(goSession.WithClientIP(ctx, loadtestIP), loadtestUserAgent)
}

func runCreatePhase(ctx context.Context, m *goSession.Manager, states []loadtestSession, users, concurrency int) phaseStats {
	return runPhase(len(states), concurrency, func(i int, _ *rand.Rand) bool {
		res, err := m.CreateSession(ctx, goSession.UserData{
			UserID: fmt.Sprintf("user-%d", i%users),
			Role:   "member",
		}, goSession.CreateOptions{IPAddress: loadtestIP, UserAgent: loadtestUserAgent})
		if err != nil {
			return false
		}
		states[i] = loadtestSession{sid: res.SessionID, token: res.AccessToken}
		return true
	})
}

func runValidatePhase(ctx context.Context, m *goSession.Manager, states []loadtestSession, ops, concurrency int) phaseStats {
	vctx := observed(ctx)
	return runPhase(ops, concurrency, func(_ int, r *rand.Rand) bool {
		s := states[r.Intn(len(states))]
		if s.sid == "" {
			return false
		}
		_, ok := m.ValidateSession(vctx, s.sid, s.token)
		return ok
	})
}

func runRefreshPhase(ctx context.Context, m *goSession.Manager, states []loadtestSession, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, func(_ int, r *rand.Rand) bool {
		s := states[r.Intn(len(states))]
		if s.sid == "" {
			return false
		}
		_, ok := m.RefreshSession(ctx, s.sid)
		return ok
	})
}

// runPhase spreads ops calls of fn over concurrency workers and records each
// call's latency.
func runPhase(ops, concurrency int, fn func(i int, r *rand.Rand) bool) phaseStats {
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
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				ok := fn(i, r)
				d := time.Since(t0)
				if !ok {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
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
		return phaseStats{total: total}
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

func printStats(w io.Writer, name string, s phaseStats) {
	fmt.Fprintf(w, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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

// printCounters lists every collected sum, bucketed points with their bound.
func printCounters(w io.Writer, rm metricdata.ResourceMetrics) {
	fmt.Fprintln(w, "---- metrics ----")
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				if le, ok := dp.Attributes.Value("le"); ok {
					fmt.Fprintf(w, "%s{le=%q} %d\n", m.Name, le.AsString(), dp.Value)
					continue
				}
				fmt.Fprintf(w, "%s %d\n", m.Name, dp.Value)
			}
		}
	}
}

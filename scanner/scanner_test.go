package scanner

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"net/netip"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// proberFunc adapts a function to the Prober interface.
type proberFunc func(ctx context.Context, addr netip.Addr, port uint16, timeout time.Duration) (ProbeOutcome, error)

func (f proberFunc) Probe(ctx context.Context, addr netip.Addr, port uint16, timeout time.Duration) (ProbeOutcome, error) {
	return f(ctx, addr, port, timeout)
}

// sleepyProber waits delay(port) honouring ctx, then reports the port closed.
func sleepyProber(delay func(port uint16) time.Duration) proberFunc {
	return func(ctx context.Context, _ netip.Addr, port uint16, _ time.Duration) (ProbeOutcome, error) {
		select {
		case <-time.After(delay(port)):
			return ProbeOutcome{Port: port, Status: StatusClosed, Reason: "connection refused"}, nil
		case <-ctx.Done():
			return ProbeOutcome{}, fmt.Errorf("%w: %w", ErrProbeAborted, ctx.Err())
		}
	}
}

func scanConfig(t *testing.T, ports string, concurrency int) ScanConfig {
	t.Helper()
	cfg, err := NewScanConfig(ScanParams{
		Target:      "127.0.0.1",
		Ports:       ports,
		Timeout:     2 * time.Second,
		Concurrency: concurrency,
	})
	require.NoError(t, err)
	return cfg
}

func assertOnePerPort(t *testing.T, cfg *ScanConfig, got *ResultSet) {
	t.Helper()
	ports := make([]uint16, 0, got.Len())
	for o := range got.All() {
		ports = append(ports, o.Port)
	}
	assert.Equal(t, slices.Collect(cfg.Range.All()), ports)
}

func TestScheduler_ExactlyOncePerPortForAnyConcurrency(t *testing.T) {
	t.Parallel()

	for _, concurrency := range []int{1, 2, 7, 32, 100, 150, 500} {
		t.Run(fmt.Sprintf("concurrency=%d", concurrency), func(t *testing.T) {
			t.Parallel()
			cfg := scanConfig(t, "1-150", concurrency)
			prober := sleepyProber(func(uint16) time.Duration {
				return time.Duration(rand.IntN(500)) * time.Microsecond
			})

			rs := NewScheduler(prober).Run(context.Background(), cfg)

			require.True(t, rs.Complete())
			require.Equal(t, 150, rs.Len())
			assertOnePerPort(t, &cfg, rs)
		})
	}
}

func TestScheduler_OrderIndependentOfCompletionOrder(t *testing.T) {
	t.Parallel()

	cfg := scanConfig(t, "1000-1039", 40)
	// Higher ports finish first.
	prober := sleepyProber(func(port uint16) time.Duration {
		return time.Duration(1039-port) * time.Millisecond
	})

	var completion []uint16
	var mu sync.Mutex
	recording := proberFunc(func(ctx context.Context, addr netip.Addr, port uint16, timeout time.Duration) (ProbeOutcome, error) {
		o, err := prober(ctx, addr, port, timeout)
		mu.Lock()
		completion = append(completion, port)
		mu.Unlock()
		return o, err
	})

	rs := NewScheduler(recording).Run(context.Background(), cfg)

	require.True(t, rs.Complete())
	assertOnePerPort(t, &cfg, rs)
	assert.False(t, slices.IsSorted(completion), "completion order should differ from port order")
}

func TestScheduler_RespectsConcurrencyCap(t *testing.T) {
	t.Parallel()

	const limit = 5
	var inFlight, peak atomic.Int32
	prober := proberFunc(func(_ context.Context, _ netip.Addr, port uint16, _ time.Duration) (ProbeOutcome, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return ProbeOutcome{Port: port, Status: StatusClosed}, nil
	})

	rs := NewScheduler(prober).Run(context.Background(), scanConfig(t, "1-100", limit))

	require.Equal(t, 100, rs.Len())
	assert.LessOrEqual(t, peak.Load(), int32(limit))
	assert.Positive(t, peak.Load())
}

func TestScheduler_ProbeErrorDoesNotAbort(t *testing.T) {
	t.Parallel()

	prober := proberFunc(func(_ context.Context, _ netip.Addr, port uint16, _ time.Duration) (ProbeOutcome, error) {
		if port == 5 {
			return ProbeOutcome{Port: port, Status: StatusError, Reason: "local resource exhaustion: too many open files"}, nil
		}
		return ProbeOutcome{Port: port, Status: StatusClosed}, nil
	})

	cfg := scanConfig(t, "1-10", 3)
	rs := NewScheduler(prober).Run(context.Background(), cfg)

	require.True(t, rs.Complete())
	assertOnePerPort(t, &cfg, rs)
	assert.Equal(t, 1, rs.Count(StatusError))
	assert.Equal(t, 9, rs.Count(StatusClosed))

	o, ok := rs.Lookup(5)
	require.True(t, ok)
	assert.Contains(t, o.Reason, "too many open files")
}

func TestScheduler_LocalhostScenario(t *testing.T) {
	t.Parallel()

	// Port 80 accepts, everything else refuses.
	dialer := dialFunc(func(_ context.Context, _, address string) (net.Conn, error) {
		if address == "127.0.0.1:80" {
			client, server := net.Pipe()
			_ = server.Close()
			return client, nil
		}
		return nil, refusedError()
	})

	cfg := scanConfig(t, "80-85", 50)
	rs := NewScheduler(NewTCPProber(dialer)).Run(context.Background(), cfg)

	type row struct {
		Port   uint16
		Status Status
	}
	var got []row
	for o := range rs.All() {
		got = append(got, row{o.Port, o.Status})
	}
	assert.Equal(t, []row{
		{80, StatusOpen},
		{81, StatusClosed},
		{82, StatusClosed},
		{83, StatusClosed},
		{84, StatusClosed},
		{85, StatusClosed},
	}, got)
	assert.True(t, rs.Complete())
}

func TestScheduler_RealLoopbackListener(t *testing.T) {
	_, port := listenLocal(t)

	cfg := scanConfig(t, fmt.Sprintf("%d-%d", port, port), 1)
	rs := NewScheduler(nil).Run(context.Background(), cfg)

	require.Equal(t, 1, rs.Len())
	assert.Equal(t, 1, rs.Count(StatusOpen))
}

func TestScheduler_InvalidRangeFallsBackToDefault(t *testing.T) {
	t.Parallel()

	cfg, err := NewScanConfig(ScanParams{
		Target:       "127.0.0.1",
		Ports:        "invalid",
		Timeout:      2 * time.Second,
		Concurrency:  100,
		LenientRange: true,
	})
	require.NoError(t, err)
	require.Equal(t, PortRange{Start: 1, End: 1024}, cfg.Range)

	prober := proberFunc(func(_ context.Context, _ netip.Addr, port uint16, _ time.Duration) (ProbeOutcome, error) {
		return ProbeOutcome{Port: port, Status: StatusClosed}, nil
	})
	rs := NewScheduler(prober).Run(context.Background(), cfg)

	assert.Equal(t, 1024, rs.Len())
	assert.True(t, rs.Complete())
}

func TestScheduler_CancellationReturnsPartialResults(t *testing.T) {
	t.Parallel()

	cfg := scanConfig(t, "1-1000", 50)
	prober := sleepyProber(func(uint16) time.Duration { return 10 * time.Millisecond })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var cancelledAt time.Time
	var once sync.Once
	progress := func(done, _ int) {
		if done >= 100 {
			once.Do(func() {
				cancelledAt = time.Now()
				cancel()
			})
		}
	}

	rs := NewScheduler(prober, WithProgress(progress)).Run(ctx, cfg)
	returnedAt := time.Now()

	require.False(t, cancelledAt.IsZero())
	assert.Less(t, rs.Len(), 1000)
	assert.GreaterOrEqual(t, rs.Len(), 100)
	assert.False(t, rs.Complete())
	assert.Less(t, returnedAt.Sub(cancelledAt), cfg.Timeout)

	var ports []uint16
	for o := range rs.All() {
		ports = append(ports, o.Port)
	}
	assert.True(t, slices.IsSorted(ports))
	assert.Len(t, slices.Compact(slices.Clone(ports)), len(ports))
}

func TestScheduler_CancellationAbortsBlackHoleProbes(t *testing.T) {
	t.Parallel()

	cfg := scanConfig(t, "1-1000", 50)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	rs := NewScheduler(NewTCPProber(blackHoleDialer)).Run(ctx, cfg)

	assert.Less(t, time.Since(start), cfg.Timeout)
	assert.Zero(t, rs.Len())
	assert.False(t, rs.Complete())
}

func TestScheduler_AlreadyCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	prober := proberFunc(func(_ context.Context, _ netip.Addr, port uint16, _ time.Duration) (ProbeOutcome, error) {
		calls.Add(1)
		return ProbeOutcome{Port: port, Status: StatusClosed}, nil
	})

	rs := NewScheduler(prober).Run(ctx, scanConfig(t, "1-10", 2))
	assert.Zero(t, calls.Load())
	assert.Zero(t, rs.Len())
	assert.False(t, rs.Complete())
}

func TestScheduler_ProgressReportsEveryOutcome(t *testing.T) {
	t.Parallel()

	var calls []int
	progress := func(done, total int) {
		assert.Equal(t, 20, total)
		calls = append(calls, done)
	}
	prober := sleepyProber(func(uint16) time.Duration { return 0 })

	NewScheduler(prober, WithProgress(progress)).Run(context.Background(), scanConfig(t, "1-20", 4))

	require.Len(t, calls, 20)
	assert.Equal(t, 20, calls[len(calls)-1])
	assert.True(t, slices.IsSorted(calls))
}

func TestScheduler_RateLimit(t *testing.T) {
	t.Parallel()

	cfg := scanConfig(t, "1-10", 10)
	cfg.Rate = 50

	prober := sleepyProber(func(uint16) time.Duration { return 0 })
	start := time.Now()
	rs := NewScheduler(prober).Run(context.Background(), cfg)

	assert.Equal(t, 10, rs.Len())
	// 1 burst token then 9 more at 20ms each.
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

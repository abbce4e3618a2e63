package scanner

import (
	"context"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ProgressFunc receives the number of classified ports and the range size.
// It is called from a single goroutine, once per recorded outcome.
type ProgressFunc func(done, total int)

// Scheduler is the scan orchestrator. It fans probes out across a port range
// under a concurrency cap and collects exactly one outcome per scanned port.
type Scheduler struct {
	prober   Prober
	logger   *slog.Logger
	progress ProgressFunc
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithProgress(fn ProgressFunc) Option {
	return func(s *Scheduler) { s.progress = fn }
}

// NewScheduler creates a scheduler around prober. A nil prober uses NewTCPProber(nil).
func NewScheduler(prober Prober, opts ...Option) *Scheduler {
	if prober == nil {
		prober = NewTCPProber(nil)
	}
	s := &Scheduler{
		prober: prober,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run scans every port of cfg.Range and returns once all admitted probes have
// finished. At most cfg.Concurrency probes are in flight at any time.
//
// Cancelling ctx stops admission immediately and aborts in-flight probes;
// ports that were never classified are omitted and the returned set reports
// Complete() == false.
func (s *Scheduler) Run(ctx context.Context, cfg ScanConfig) *ResultSet {
	total := cfg.Range.Len()
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	rs := newResultSet(cfg.Target, cfg.Range, total)
	start := time.Now()
	s.logger.Info("scan started",
		"target", cfg.Target.String(),
		"ports", cfg.Range.String(),
		"concurrency", concurrency,
		"timeout", cfg.Timeout.String(),
	)

	var limiter *rate.Limiter
	if cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), 1)
	}
	sem := semaphore.NewWeighted(int64(concurrency))

	// Single consumer: only this goroutine touches rs until finalize.
	results := make(chan ProbeOutcome, concurrency)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for outcome := range results {
			rs.add(outcome)
			if s.progress != nil {
				s.progress(rs.Len(), total)
			}
		}
	}()

	var wg sync.WaitGroup
	for port := range cfg.Range.All() {
		if ctx.Err() != nil {
			break
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				break
			}
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			s.probe(ctx, cfg.Target, port, cfg.Timeout, results)
		}()
	}

	wg.Wait()
	close(results)
	<-collected
	rs.finalize()

	summary := rs.Summary()
	attrs := []any{
		"target", cfg.Target.String(),
		"ports", cfg.Range.String(),
		"scanned", rs.Len(),
		"open", summary.Open,
		"closed", summary.Closed,
		"errors", summary.Error,
		"elapsed_ms", float64(time.Since(start)) / float64(time.Millisecond),
	}
	if rs.Complete() {
		s.logger.Info("scan completed", attrs...)
	} else {
		s.logger.Warn("scan cancelled", append(attrs, "total", total, "cause", context.Cause(ctx))...)
	}

	return rs
}

func (s *Scheduler) probe(ctx context.Context, addr netip.Addr, port uint16, timeout time.Duration, results chan<- ProbeOutcome) {
	outcome, err := s.prober.Probe(ctx, addr, port, timeout)
	if err != nil {
		s.logger.Debug("probe abandoned", "port", port, "error", err)
		return
	}
	if outcome.Port != port {
		// Keep the one-outcome-per-port invariant even with a misbehaving Prober.
		outcome.Port = port
	}
	if outcome.Status == StatusError {
		s.logger.Debug("probe error", "port", port, "reason", outcome.Reason)
	}
	results <- outcome
}

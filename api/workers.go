package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"portsweep/output"
	"portsweep/scanner"
)

const (
	defaultPopTimeout       = 2 * time.Second
	defaultProgressInterval = time.Second
	persistTimeout          = 5 * time.Second
)

// WorkerPool runs queued scan tasks and routes cancellation requests to them.
type WorkerPool struct {
	store            TaskStore
	prober           scanner.Prober
	logger           *slog.Logger
	popTimeout       time.Duration
	progressInterval time.Duration

	mu      sync.Mutex
	running map[string]context.CancelFunc

	wg sync.WaitGroup
}

// NewWorkerPool builds a pool. A nil prober scans with plain TCP connects.
func NewWorkerPool(store TaskStore, prober scanner.Prober, logger *slog.Logger) *WorkerPool {
	if prober == nil {
		prober = scanner.NewTCPProber(nil)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &WorkerPool{
		store:            store,
		prober:           prober,
		logger:           logger,
		popTimeout:       defaultPopTimeout,
		progressInterval: defaultProgressInterval,
		running:          make(map[string]context.CancelFunc),
	}
}

// StartWorkers launches numWorkers goroutines that process scan tasks until ctx ends.
func StartWorkers(ctx context.Context, store TaskStore, prober scanner.Prober, numWorkers int, logger *slog.Logger) (*WorkerPool, error) {
	pool := NewWorkerPool(store, prober, logger)
	if err := pool.Start(ctx, numWorkers); err != nil {
		return nil, err
	}
	return pool, nil
}

// Start subscribes to cancellation requests and launches the workers.
func (p *WorkerPool) Start(ctx context.Context, numWorkers int) error {
	if numWorkers < 1 {
		numWorkers = 1
	}
	ids, closeSub, err := p.store.SubscribeCancels(ctx)
	if err != nil {
		return err
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.watchCancels(ctx, ids, closeSub)
	}()

	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.workerLoop(ctx)
		}()
	}
	p.logger.Info("scan workers started", "workers", numWorkers)
	return nil
}

// Wait blocks until every worker returned after ctx ended.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

func (p *WorkerPool) watchCancels(ctx context.Context, ids <-chan string, closeSub func() error) {
	defer func() {
		if err := closeSub(); err != nil {
			p.logger.Warn("failed to close cancel subscription", "error", err)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-ids:
			if !ok {
				return
			}
			if p.cancelRunning(id) {
				p.logger.Info("cancelling running scan", "task_id", id)
			}
		}
	}
}

func (p *WorkerPool) register(id string, cancel context.CancelFunc) {
	p.mu.Lock()
	p.running[id] = cancel
	p.mu.Unlock()
}

func (p *WorkerPool) unregister(id string) {
	p.mu.Lock()
	delete(p.running, id)
	p.mu.Unlock()
}

func (p *WorkerPool) cancelRunning(id string) bool {
	p.mu.Lock()
	cancel, ok := p.running[id]
	p.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (p *WorkerPool) workerLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		taskID, err := p.store.PopFromQueue(ctx, p.popTimeout)
		if errors.Is(err, ErrQueueEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("worker failed to pop task", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		p.processTask(ctx, taskID)
	}
}

func (p *WorkerPool) processTask(ctx context.Context, taskID string) {
	logger := p.logger.With("task_id", taskID)

	task, err := p.store.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			logger.Warn("worker task disappeared")
			return
		}
		logger.Error("worker failed to load task", "error", err)
		return
	}
	if task.Status != TaskPending {
		logger.Warn("skipping task that is not pending", "status", task.Status)
		return
	}
	if task.CancelRequested {
		p.finishCancelled(ctx, task, nil)
		return
	}

	cfg, err := scanner.NewScanConfig(scanner.ScanParams{
		Target:      task.Target,
		Ports:       task.Ports,
		Timeout:     time.Duration(task.TimeoutSeconds) * time.Second,
		Concurrency: task.Concurrency,
	})
	if err != nil {
		p.failTask(ctx, task, err)
		return
	}

	scanCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	p.register(task.ID, func() { cancel(errCancelRequested) })
	defer p.unregister(task.ID)

	// A request published before register ran is only visible in the stored flag.
	if fresh, err := p.store.GetTask(ctx, task.ID); err == nil && fresh.CancelRequested {
		p.finishCancelled(ctx, task, nil)
		return
	}

	now := time.Now().UTC()
	task.Status = TaskRunning
	task.Error = ""
	task.Results = nil
	task.Summary = nil
	task.StartedAt = &now
	task.CompletedAt = nil
	task.Progress = Progress{Total: cfg.Range.Len()}
	if err := p.store.UpdateTask(ctx, task); err != nil {
		logger.Error("worker failed to mark task running", "error", err)
		return
	}

	var done atomic.Int64
	flushDone := make(chan struct{})
	flushStopped := make(chan struct{})
	go func() {
		defer close(flushStopped)
		p.flushProgress(scanCtx, task.ID, cfg.Range.Len(), &done, flushDone)
	}()

	scheduler := scanner.NewScheduler(p.prober,
		scanner.WithLogger(logger),
		scanner.WithProgress(func(n, _ int) { done.Store(int64(n)) }),
	)
	rs := scheduler.Run(scanCtx, cfg)
	close(flushDone)
	<-flushStopped

	persistCtx, persistCancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer persistCancel()

	switch {
	case rs.Complete():
		p.finish(persistCtx, task, rs, TaskCompleted)
	case errors.Is(context.Cause(scanCtx), errCancelRequested):
		p.finishCancelled(persistCtx, task, rs)
	default:
		// Shutdown interrupted the scan; hand it to the next worker.
		p.requeue(persistCtx, task)
	}
}

var errCancelRequested = errors.New("scan cancelled by request")

func (p *WorkerPool) flushProgress(ctx context.Context, taskID string, total int, done *atomic.Int64, stop <-chan struct{}) {
	ticker := time.NewTicker(p.progressInterval)
	defer ticker.Stop()
	last := int64(-1)
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := done.Load()
			if n == last {
				continue
			}
			if err := p.store.UpdateProgress(ctx, taskID, Progress{Done: int(n), Total: total}); err != nil {
				p.logger.Warn("failed to flush progress", "task_id", taskID, "error", err)
				continue
			}
			last = n
		}
	}
}

func (p *WorkerPool) finish(ctx context.Context, task *ScanTask, rs *scanner.ResultSet, status string) {
	summary := rs.Summary()
	task.Status = status
	task.Results = output.Records(rs, output.Options{})
	task.Summary = &summary
	task.Complete = rs.Complete()
	task.Progress = Progress{Done: rs.Len(), Total: rs.Range().Len()}
	now := time.Now().UTC()
	task.CompletedAt = &now

	if err := p.store.UpdateTask(ctx, task); err != nil {
		p.logger.Error("worker failed to update task", "task_id", task.ID, "error", err)
		return
	}
	p.logger.Info("scan stored", "task_id", task.ID, "status", status,
		"open", summary.Open, "closed", summary.Closed, "errors", summary.Error)
}

// finishCancelled stores a cancelled task. rs is nil when the scan never started.
func (p *WorkerPool) finishCancelled(ctx context.Context, task *ScanTask, rs *scanner.ResultSet) {
	if rs != nil {
		p.finish(ctx, task, rs, TaskCancelled)
		return
	}
	task.Status = TaskCancelled
	task.Complete = false
	now := time.Now().UTC()
	task.CompletedAt = &now
	if err := p.store.UpdateTask(ctx, task); err != nil {
		p.logger.Error("worker failed to store cancelled task", "task_id", task.ID, "error", err)
		return
	}
	p.logger.Info("scan cancelled before start", "task_id", task.ID)
}

func (p *WorkerPool) requeue(ctx context.Context, task *ScanTask) {
	task.Status = TaskPending
	task.Results = nil
	task.Summary = nil
	task.StartedAt = nil
	task.Progress = Progress{Total: task.Progress.Total}
	if err := p.store.UpdateTask(ctx, task); err != nil {
		p.logger.Error("worker failed to reset interrupted task", "task_id", task.ID, "error", err)
		return
	}
	if err := p.store.PushToQueue(ctx, task.ID); err != nil {
		p.failTask(ctx, task, fmt.Errorf("requeue after shutdown: %w", err))
		return
	}
	p.logger.Warn("scan interrupted by shutdown, requeued", "task_id", task.ID)
}

func (p *WorkerPool) failTask(ctx context.Context, task *ScanTask, err error) {
	p.logger.Error("worker task failed", "task_id", task.ID, "error", err)
	task.Status = TaskFailed
	task.Error = err.Error()
	task.Results = nil
	now := time.Now().UTC()
	task.CompletedAt = &now
	if updateErr := p.store.UpdateTask(ctx, task); updateErr != nil {
		p.logger.Error("worker failed to persist failed task", "task_id", task.ID, "error", updateErr)
	}
}

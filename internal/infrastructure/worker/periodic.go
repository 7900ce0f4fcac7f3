package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one run of a periodic job
type Task func(ctx context.Context) error

// PeriodicWorker runs a task on a fixed interval until stopped
type PeriodicWorker struct {
	name     string
	interval time.Duration
	task     Task
	logger   *zap.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
	runs      int
	failures  int
	lastError error
}

// NewPeriodicWorker creates a worker running task every interval
func NewPeriodicWorker(name string, interval time.Duration, task Task, logger *zap.Logger) *PeriodicWorker {
	return &PeriodicWorker{
		name:     name,
		interval: interval,
		task:     task,
		logger:   logger,
	}
}

// Name returns the worker name for identification
func (w *PeriodicWorker) Name() string {
	return w.name
}

// Start begins the polling loop in the background
func (w *PeriodicWorker) Start(ctx context.Context) error {
	if w.interval <= 0 {
		return fmt.Errorf("%s: interval must be positive", w.name)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isRunning {
		return fmt.Errorf("%s already running", w.name)
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true

	go w.loop(runCtx, w.done)

	w.logger.Info("Periodic worker started", zap.String("worker_name", w.name), zap.Duration("interval", w.interval))
	return nil
}

// Stop cancels the loop and waits for an in-flight run to finish
func (w *PeriodicWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	w.logger.Info("Periodic worker stopped",
		zap.String("worker_name", w.name),
		zap.Int("runs", w.Runs()),
		zap.Int("failures", w.failureCount()))
	return nil
}

// Runs returns how many times the task has run
func (w *PeriodicWorker) Runs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runs
}

// LastError returns the error of the most recent failed run
func (w *PeriodicWorker) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastError
}

func (w *PeriodicWorker) failureCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failures
}

func (w *PeriodicWorker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := w.task(ctx)

			w.mu.Lock()
			w.runs++
			if err != nil {
				w.failures++
				w.lastError = err
			}
			w.mu.Unlock()

			if err != nil && ctx.Err() == nil {
				w.logger.Error("Periodic task failed", zap.String("worker_name", w.name), zap.Error(err))
			}
		}
	}
}

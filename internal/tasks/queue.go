// Package tasks runs keyed units of work on a worker pool with bounded
// retries, a per-attempt time budget and at most one in-flight task per key.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillm/agent-arena/pkg/utils"
)

var (
	ErrQueueClosed = errors.New("task queue is closed")
	ErrQueueFull   = errors.New("task queue is full")
)

// Task is a unit of work. Tasks sharing a Key never run concurrently.
type Task struct {
	Key  string
	Name string
	Run  func(ctx context.Context) error
}

// Config configures a Queue
type Config struct {
	Workers  int
	Capacity int
	Retry    RetryConfig
	// Budget is the time limit of a single attempt; 0 means none
	Budget time.Duration
	// Limiter throttles attempt starts; nil means unlimited
	Limiter *rate.Limiter
	// OnFailure is called once a task has exhausted its attempts
	OnFailure func(t Task, err error)
	// OnRetry is called before a failed attempt is rescheduled
	OnRetry func(t Task, err error)
}

// Stats are cumulative queue counters
type Stats struct {
	Enqueued     uint64
	Deduplicated uint64
	Succeeded    uint64
	Retried      uint64
	Failed       uint64
}

type job struct {
	task    Task
	attempt int
}

// Queue is an in-process task queue
type Queue struct {
	cfg    Config
	logger *utils.Logger
	jobs   chan job

	mu       sync.Mutex
	inflight map[string]struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
	wg       sync.WaitGroup

	enqueued, deduplicated, succeeded, retried, failed atomic.Uint64
}

func NewQueue(cfg Config, logger *utils.Logger) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1024
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if logger == nil {
		logger = utils.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		cfg:      cfg,
		logger:   logger,
		jobs:     make(chan job, cfg.Capacity),
		inflight: make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the workers. They stop when ctx is done or Stop is called.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true

	go func() {
		select {
		case <-ctx.Done():
			q.cancel()
		case <-q.ctx.Done():
		}
	}()

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.logger.Info("Task queue started with %d workers", q.cfg.Workers)
}

// Stop cancels running attempts and pending retries, then waits for the
// workers to exit.
func (q *Queue) Stop() {
	q.cancel()
	q.wg.Wait()
	q.logger.Info("Task queue stopped")
}

// Enqueue schedules t. It returns false without error when a task with the
// same key is already queued, running or waiting to retry.
func (q *Queue) Enqueue(t Task) (bool, error) {
	if q.ctx.Err() != nil {
		return false, ErrQueueClosed
	}

	q.mu.Lock()
	if _, busy := q.inflight[t.Key]; busy {
		q.mu.Unlock()
		q.deduplicated.Add(1)
		q.logger.Debug("Task %s for %s already in flight, skipping", t.Name, t.Key)
		return false, nil
	}
	q.inflight[t.Key] = struct{}{}
	q.mu.Unlock()

	select {
	case q.jobs <- job{task: t}:
		q.enqueued.Add(1)
		return true, nil
	default:
		q.release(t.Key)
		return false, fmt.Errorf("%w: %s %s", ErrQueueFull, t.Name, t.Key)
	}
}

// InFlight returns the number of keys currently reserved
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight)
}

func (q *Queue) Stats() Stats {
	return Stats{
		Enqueued:     q.enqueued.Load(),
		Deduplicated: q.deduplicated.Load(),
		Succeeded:    q.succeeded.Load(),
		Retried:      q.retried.Load(),
		Failed:       q.failed.Load(),
	}
}

func (q *Queue) release(key string) {
	q.mu.Lock()
	delete(q.inflight, key)
	q.mu.Unlock()
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case j := <-q.jobs:
			q.process(j)
		}
	}
}

func (q *Queue) process(j job) {
	if q.cfg.Limiter != nil {
		if err := q.cfg.Limiter.Wait(q.ctx); err != nil {
			q.release(j.task.Key)
			return
		}
	}

	err := q.attempt(j)
	if err == nil {
		q.release(j.task.Key)
		q.succeeded.Add(1)
		return
	}

	attempts := j.attempt + 1
	if IsPermanent(err) || attempts >= q.cfg.Retry.MaxAttempts || q.ctx.Err() != nil {
		q.release(j.task.Key)
		q.failed.Add(1)
		q.logger.Error("Task %s for %s failed after %d attempt(s): %v", j.task.Name, j.task.Key, attempts, err)
		if q.cfg.OnFailure != nil {
			q.cfg.OnFailure(j.task, err)
		}
		return
	}

	delay := q.cfg.Retry.Delay(j.attempt)
	q.retried.Add(1)
	q.logger.Warn("Task %s for %s retrying in %v: %v (attempt %d/%d)",
		j.task.Name, j.task.Key, delay, err, attempts, q.cfg.Retry.MaxAttempts)
	if q.cfg.OnRetry != nil {
		q.cfg.OnRetry(j.task, err)
	}
	q.retryLater(job{task: j.task, attempt: attempts}, delay)
}

// attempt runs one try under the time budget, turning panics into errors
func (q *Queue) attempt(j job) (err error) {
	ctx := q.ctx
	if q.cfg.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.cfg.Budget)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			q.logger.Error("Task %s for %s panicked: %v\n%s", j.task.Name, j.task.Key, rec, debug.Stack())
			err = fmt.Errorf("task panic: %v", rec)
		}
	}()

	return j.task.Run(ctx)
}

func (q *Queue) retryLater(j job, delay time.Duration) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-q.ctx.Done():
			q.release(j.task.Key)
			return
		case <-timer.C:
		}

		select {
		case q.jobs <- j:
		case <-q.ctx.Done():
			q.release(j.task.Key)
		}
	}()
}

// Package jobq provides the bounded in-process job queue the tick and
// candle pipelines run on: a fixed worker pool, a global rate limit,
// per-attempt timeouts, and retries with exponential backoff.
package jobq

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrQueueFull is returned by Enqueue when the buffer is at
	// capacity. The job is dropped, never blocked on.
	ErrQueueFull = errors.New("jobq: queue full")
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("jobq: queue closed")
)

// Handler processes one job attempt. A nil return completes the job;
// an error schedules a retry until the attempt budget is spent. The
// context carries the per-attempt deadline.
type Handler[T any] func(ctx context.Context, id string, payload T) error

// Config sizes a queue. Zero values fall back to the defaults noted.
type Config struct {
	Name        string        // log prefix
	Workers     int           // concurrent handlers, default 1
	Capacity    int           // buffered jobs, default 10000
	RatePerSec  int           // job starts per second, 0 = unpaced
	MaxAttempts int           // total tries per job, default 1
	Backoff     time.Duration // first retry delay, doubles each retry
	JobTimeout  time.Duration // per-attempt deadline, 0 = none
	MaxStalled  int           // timed-out attempts tolerated before drop
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "jobq"
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Capacity <= 0 {
		c.Capacity = 10000
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
}

type job[T any] struct {
	id      string
	payload T
	attempt int // failed attempts so far
	stalls  int // timed-out attempts so far
}

// Queue is a bounded worker queue. Jobs enter through Enqueue, workers
// started by Run drain them, Close stops intake and waits for the
// backlog.
//
// A handler error costs an attempt and earns a backoff retry; hitting
// the per-attempt deadline costs a stall instead, and the job goes
// straight back on the queue. Either budget running out drops the job
// with a log line.
type Queue[T any] struct {
	cfg     Config
	handler Handler[T]
	jobs    chan *job[T]
	quit    chan struct{}
	limiter *rate.Limiter

	mu     sync.Mutex
	closed bool

	work sync.WaitGroup // jobs owned by the queue, incl. pending retries
	wg   sync.WaitGroup // workers

	processed atomic.Uint64
	retried   atomic.Uint64
	dropped   atomic.Uint64
}

// New builds a queue around handler. Call Run to start the workers.
func New[T any](cfg Config, handler Handler[T]) *Queue[T] {
	cfg.applyDefaults()
	q := &Queue[T]{
		cfg:     cfg,
		handler: handler,
		jobs:    make(chan *job[T], cfg.Capacity),
		quit:    make(chan struct{}),
	}
	if cfg.RatePerSec > 0 {
		q.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Workers)
	}
	return q
}

// Run starts the worker pool. It returns immediately; workers live
// until Close.
func (q *Queue[T]) Run(ctx context.Context) {
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	log.Printf("[%s] %d workers started (capacity=%d rate=%d/s)",
		q.cfg.Name, q.cfg.Workers, q.cfg.Capacity, q.cfg.RatePerSec)
}

// Enqueue adds a job without blocking. A full queue rejects the job.
func (q *Queue[T]) Enqueue(id string, payload T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.work.Add(1)
	q.mu.Unlock()

	select {
	case q.jobs <- &job[T]{id: id, payload: payload}:
		return nil
	default:
		q.work.Done()
		q.dropped.Add(1)
		return ErrQueueFull
	}
}

// Depth reports the number of jobs waiting in the buffer.
func (q *Queue[T]) Depth() int { return len(q.jobs) }

// Dropped reports jobs rejected or abandoned since start.
func (q *Queue[T]) Dropped() uint64 { return q.dropped.Load() }

// Processed reports jobs completed successfully since start.
func (q *Queue[T]) Processed() uint64 { return q.processed.Load() }

// Close stops intake, waits for queued jobs and pending retries to
// finish (bounded by ctx), then stops the workers. Retries still
// scheduled when intake stops are dropped.
func (q *Queue[T]) Close(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.work.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Printf("[%s] close timed out with jobs still in flight", q.cfg.Name)
	}
	close(q.quit)
	q.wg.Wait()
	log.Printf("[%s] closed: processed=%d retried=%d dropped=%d",
		q.cfg.Name, q.processed.Load(), q.retried.Load(), q.dropped.Load())
}

func (q *Queue[T]) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-q.quit:
			return
		case j := <-q.jobs:
			if q.limiter != nil {
				// Pacing ends with the context; the backlog still drains.
				_ = q.limiter.Wait(ctx)
			}
			q.process(ctx, j)
		}
	}
}

func (q *Queue[T]) process(ctx context.Context, j *job[T]) {
	actx := ctx
	cancel := func() {}
	if q.cfg.JobTimeout > 0 {
		actx, cancel = context.WithTimeout(ctx, q.cfg.JobTimeout)
	}
	err := q.handler(actx, j.id, j.payload)
	timedOut := errors.Is(actx.Err(), context.DeadlineExceeded)
	cancel()

	if err == nil {
		q.processed.Add(1)
		q.work.Done()
		return
	}

	if timedOut {
		j.stalls++
		if j.stalls > q.cfg.MaxStalled {
			log.Printf("[%s] job %s stalled %d times, dropping", q.cfg.Name, j.id, j.stalls)
			q.dropped.Add(1)
			q.work.Done()
			return
		}
		log.Printf("[%s] job %s stalled, requeueing", q.cfg.Name, j.id)
		q.retried.Add(1)
		q.requeue(j, 0)
		return
	}

	j.attempt++
	if j.attempt >= q.cfg.MaxAttempts {
		log.Printf("[%s] job %s failed after %d attempts: %v", q.cfg.Name, j.id, j.attempt, err)
		q.dropped.Add(1)
		q.work.Done()
		return
	}
	delay := q.cfg.Backoff << (j.attempt - 1)
	log.Printf("[%s] job %s attempt %d/%d failed: %v (retry in %v)",
		q.cfg.Name, j.id, j.attempt, q.cfg.MaxAttempts, err, delay)
	q.retried.Add(1)
	q.requeue(j, delay)
}

// requeue puts a job back on the queue, after delay when retrying with
// backoff. The work counter stays held until the job finally settles,
// which keeps Close honest about pending retries.
func (q *Queue[T]) requeue(j *job[T], delay time.Duration) {
	enqueue := func() {
		q.mu.Lock()
		closed := q.closed
		q.mu.Unlock()
		if closed {
			log.Printf("[%s] job %s retry dropped, queue closed", q.cfg.Name, j.id)
			q.dropped.Add(1)
			q.work.Done()
			return
		}
		select {
		case q.jobs <- j:
		default:
			log.Printf("[%s] job %s retry dropped, queue full", q.cfg.Name, j.id)
			q.dropped.Add(1)
			q.work.Done()
		}
	}
	if delay <= 0 {
		enqueue()
		return
	}
	time.AfterFunc(delay, enqueue)
}

// Package dispatch runs evaluation work on background workers.
//
// Every unit of work is identified by a (kind, id) pair and the dispatcher
// guarantees at most one active worker per pair: a duplicate submission is
// rejected with ErrAlreadyProcessing instead of racing the running worker.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Kind identifies the category of background work.
type Kind string

const (
	KindGrading    Kind = "grading"
	KindEvaluation Kind = "evaluation"
	KindAnalysis   Kind = "analysis"
)

// ErrAlreadyProcessing is returned when a job for the same (kind, id) pair
// is still running.
var ErrAlreadyProcessing = errors.New("job already processing")

// ErrNotRunning is returned when the dispatcher has not been started or has
// been shut down.
var ErrNotRunning = errors.New("dispatcher not running")

// ErrQueueFull is returned when the submission queue is saturated.
var ErrQueueFull = errors.New("dispatcher queue full")

// Job is the unit of work executed on a worker.
type Job func(ctx context.Context) error

// Finalizer runs after a failed or panicked job, before the worker releases
// the (kind, id) slot. Services use it to force the target record into its
// error state and emit the error event.
type Finalizer func(ctx context.Context, jobErr error)

var (
	activeJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "bnf",
		Subsystem: "dispatch",
		Name:      "active_jobs",
		Help:      "Number of jobs currently running on workers",
	})

	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bnf",
		Subsystem: "dispatch",
		Name:      "jobs_total",
		Help:      "Background jobs processed, by kind and outcome",
	}, []string{"kind", "outcome"})
)

type jobKey struct {
	kind Kind
	id   uint
}

type queuedJob struct {
	key      jobKey
	run      Job
	finalize Finalizer
}

// Dispatcher owns the worker pool. It is an explicit lifecycle object so
// tests can start and stop one per test case.
type Dispatcher struct {
	workers int
	logger  zerolog.Logger

	mu      sync.Mutex
	active  map[jobKey]struct{}
	queue   chan queuedJob
	running bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a dispatcher with the given worker count.
func New(workers int, logger zerolog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}

	return &Dispatcher{
		workers: workers,
		logger:  logger.With().Str("component", "dispatcher").Logger(),
		active:  make(map[jobKey]struct{}),
		queue:   make(chan queuedJob, workers*4),
	}
}

// Start spins up the worker goroutines.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.running = true

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}

	d.logger.Info().Int("workers", d.workers).Msg("dispatcher started")
}

// Shutdown stops accepting work and waits for in-flight jobs, or until ctx
// expires.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		d.cancel()
		<-done
	}

	d.cancel()
	d.logger.Info().Msg("dispatcher stopped")
	return ctx.Err()
}

// Submit schedules run on a background worker and returns immediately. The
// finalize hook may be nil.
func (d *Dispatcher) Submit(kind Kind, id uint, run Job, finalize Finalizer) error {
	key := jobKey{kind: kind, id: id}

	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return ErrNotRunning
	}
	if _, busy := d.active[key]; busy {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s %d", ErrAlreadyProcessing, kind, id)
	}
	d.active[key] = struct{}{}

	select {
	case d.queue <- queuedJob{key: key, run: run, finalize: finalize}:
		d.mu.Unlock()
		return nil
	default:
		delete(d.active, key)
		d.mu.Unlock()
		return ErrQueueFull
	}
}

// Active reports whether a job for the pair is queued or running.
func (d *Dispatcher) Active(kind Kind, id uint) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, busy := d.active[jobKey{kind: kind, id: id}]
	return busy
}

func (d *Dispatcher) worker(ctx context.Context, index int) {
	defer d.wg.Done()

	logger := d.logger.With().Int("worker", index).Logger()

	for job := range d.queue {
		if ctx.Err() != nil {
			d.release(job.key)
			continue
		}
		d.execute(ctx, logger, job)
	}
}

func (d *Dispatcher) execute(ctx context.Context, logger zerolog.Logger, job queuedJob) {
	defer d.release(job.key)

	activeJobs.Inc()
	defer activeJobs.Dec()

	var jobErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				jobErr = fmt.Errorf("job panic: %v", r)
			}
		}()
		jobErr = job.run(ctx)
	}()

	if jobErr != nil {
		jobsTotal.WithLabelValues(string(job.key.kind), "error").Inc()
		logger.Error().Err(jobErr).
			Str("kind", string(job.key.kind)).
			Uint("id", job.key.id).
			Msg("background job failed")

		if job.finalize != nil {
			// The finalizer must run even while shutting down; it is what
			// keeps records out of stuck non-terminal states.
			d.runFinalizer(ctx, logger, job, jobErr)
		}
		return
	}

	jobsTotal.WithLabelValues(string(job.key.kind), "ok").Inc()
}

func (d *Dispatcher) runFinalizer(ctx context.Context, logger zerolog.Logger, job queuedJob, jobErr error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str("kind", string(job.key.kind)).
				Uint("id", job.key.id).
				Msgf("job finalizer panic: %v", r)
		}
	}()
	job.finalize(ctx, jobErr)
}

func (d *Dispatcher) release(key jobKey) {
	d.mu.Lock()
	delete(d.active, key)
	d.mu.Unlock()
}

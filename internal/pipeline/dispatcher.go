package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrQueueFull is returned by Submit when every queue slot is taken.
var ErrQueueFull = errors.New("job queue is full")

// Dispatcher queues submitted jobs and runs them on a fixed pool of
// goroutines sharing one Worker.
type Dispatcher struct {
	jobs    *JobStore
	queue   chan *Job
	worker  *Worker
	workers int
	log     *slog.Logger

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates the dispatcher. Call Start before Submit.
func NewDispatcher(w *Worker, workers, queueSize int, ttl time.Duration, log *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		jobs:    NewJobStore(ttl),
		queue:   make(chan *Job, queueSize),
		worker:  w,
		workers: workers,
		log:     log,
	}
}

// Start launches worker goroutines.
func (d *Dispatcher) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	for range d.workers {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-d.queue:
					if !ok {
						return
					}
					d.process(workerCtx, job)
				}
			}
		}()
	}

	// Start job store cleanup.
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				d.jobs.Cleanup()
			}
		}
	}()
}

func (d *Dispatcher) process(ctx context.Context, job *Job) {
	log := d.log.With("job_id", job.ID)
	log.Info("job started", "files", len(job.Files))

	out, err := d.worker.Run(ctx, job.Sources(), RunOptions{
		Name:       job.Name,
		Title:      job.Title,
		OnStatus:   job.SetStatus,
		OnFileDone: func(string) { job.IncrFilesExtracted() },
	})
	switch {
	case err != nil:
		job.AddError(err.Error())
		job.Finish(out, StatusFailed, "failed")
		log.Error("job failed", "error", err)
	case out.Failed:
		job.AddError("analysis failed")
		job.Finish(out, StatusFailed, "analysis_failed")
		log.Warn("job finished with failed analysis", "pdf", out.PDFPath)
	default:
		job.Finish(out, StatusCompleted, "done")
		log.Info("job completed", "pdf", out.PDFPath, "reused", out.Reused)
	}
}

// Stop gracefully shuts down the pipeline. Queued jobs that have not started
// are dropped.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}

// Submit queues a new job for processing.
func (d *Dispatcher) Submit(job *Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("dispatcher stopped")
	}
	d.jobs.Put(job)
	select {
	case d.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("%w (%d)", ErrQueueFull, cap(d.queue))
	}
}

// GetJob returns a job by ID.
func (d *Dispatcher) GetJob(id string) *Job {
	return d.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (d *Dispatcher) QueueDepth() int {
	return len(d.queue)
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgallion1/docaudio/internal/metrics"
)

var (
	ErrQueueFull  = errors.New("job queue is full")
	ErrJobRunning = errors.New("job is still running")
	ErrNotFound   = errors.New("job not found")
)

// Queue runs jobs submitted through the HTTP service on a fixed worker pool.
// Each job owns a directory under the queue's base directory holding its
// input, its chunk workspace and its output.
type Queue struct {
	jobs    *JobStore
	queue   chan *Job
	runner  *Runner
	log     *slog.Logger
	metrics *metrics.Metrics
	baseDir string
	workers int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// QueueConfig sizes the worker pool.
type QueueConfig struct {
	BaseDir      string
	Workers      int
	MaxQueueSize int
	JobTTL       time.Duration
}

func NewQueue(cfg QueueConfig, runner *Runner, log *slog.Logger, m *metrics.Metrics) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 1
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = time.Hour
	}
	return &Queue{
		jobs:    NewJobStore(cfg.JobTTL),
		queue:   make(chan *Job, cfg.MaxQueueSize),
		runner:  runner,
		log:     log,
		metrics: m,
		baseDir: cfg.BaseDir,
		workers: cfg.Workers,
	}
}

// Start launches worker goroutines.
func (q *Queue) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel

	for range q.workers {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-q.queue:
					if !ok {
						return
					}
					q.metrics.SetQueueDepth(len(q.queue))
					// Errors are recorded on the job itself.
					_, _ = q.runner.Process(workerCtx, job)
				}
			}
		}()
	}

	// Evict finished jobs and their files.
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				q.Sweep()
			}
		}
	}()
}

// Stop cancels running jobs and waits for the workers to exit.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	close(q.queue)
	q.wg.Wait()
}

// Stage writes an uploaded document into a new job directory and returns the
// queued job. Settings.Format decides the output extension.
func (q *Queue) Stage(filename, title string, data []byte, s Settings) (*Job, error) {
	job := NewJob("", "", "", s)
	job.Filename = filename
	job.Title = title
	job.SourceHash = ContentHashHex(data)

	job.Root = filepath.Join(q.baseDir, job.ID)
	job.InputPath = filepath.Join(job.Root, "input"+filepath.Ext(filename))
	job.WorkDir = filepath.Join(job.Root, "chunks")
	job.OutputPath = filepath.Join(job.Root, "audiobook"+s.Format.Ext())

	if err := os.MkdirAll(job.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create job dir: %w", err)
	}
	if err := os.WriteFile(job.InputPath, data, 0o644); err != nil {
		os.RemoveAll(job.Root)
		return nil, fmt.Errorf("store upload: %w", err)
	}
	return job, nil
}

// Submit queues a job for processing.
func (q *Queue) Submit(job *Job) error {
	q.jobs.Put(job)
	select {
	case q.queue <- job:
		q.metrics.SetQueueDepth(len(q.queue))
		q.log.Info("job queued", "job_id", job.ID, "filename", job.Filename, "queue_depth", len(q.queue))
		return nil
	default:
		job.AddError(ErrQueueFull.Error())
		job.SetStatus(StatusFailed, "queue_full")
		q.release(job)
		return fmt.Errorf("%w (%d)", ErrQueueFull, cap(q.queue))
	}
}

// GetJob returns a job by ID.
func (q *Queue) GetJob(id string) *Job {
	return q.jobs.Get(id)
}

// List returns snapshots of all known jobs.
func (q *Queue) List() []JobSnapshot {
	return q.jobs.List()
}

// Delete forgets a finished job and removes its files.
func (q *Queue) Delete(id string) error {
	job := q.jobs.Get(id)
	if job == nil {
		return ErrNotFound
	}
	if status, _ := job.State(); !status.Terminal() {
		return ErrJobRunning
	}
	q.jobs.Delete(id)
	q.release(job)
	return nil
}

// Sweep evicts expired jobs.
func (q *Queue) Sweep() {
	for _, job := range q.jobs.Cleanup() {
		q.log.Info("evicting expired job", "job_id", job.ID)
		q.release(job)
	}
}

// QueueDepth returns current queue depth.
func (q *Queue) QueueDepth() int {
	return len(q.queue)
}

func (q *Queue) release(job *Job) {
	if job.Root == "" {
		return
	}
	if err := os.RemoveAll(job.Root); err != nil {
		q.log.Warn("remove job files", "job_id", job.ID, "error", err)
	}
}

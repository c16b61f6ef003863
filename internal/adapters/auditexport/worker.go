package auditexport

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle stage of a queued export.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ErrQueueFull is returned by Enqueue when the worker cannot accept more jobs.
var ErrQueueFull = errors.New("audit export queue full")

// ErrStopped is returned by Enqueue after Stop.
var ErrStopped = errors.New("audit export worker stopped")

// Job tracks one queued export.
type Job struct {
	ID          string     `json:"id"`
	Request     Request    `json:"request"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Artifact    *Artifact  `json:"artifact,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Done reports whether the job reached a final status.
func (j Job) Done() bool { return j.Status == StatusSucceeded || j.Status == StatusFailed }

// Worker runs exports on a background goroutine so HTTP callers are not
// held for the duration of an archive upload.
type Worker struct {
	exporter *Exporter
	queue    chan string

	mu      sync.RWMutex
	jobs    map[string]*Job
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker returns a worker with room for queueSize pending jobs.
func NewWorker(exporter *Exporter, queueSize int) *Worker {
	if queueSize <= 0 {
		queueSize = 16
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		exporter: exporter,
		queue:    make(chan string, queueSize),
		jobs:     make(map[string]*Job),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the processing goroutine.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop cancels in-flight work and waits for the goroutine to exit or ctx to
// expire.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue validates req and schedules it, returning the queued job.
func (w *Worker) Enqueue(_ context.Context, req Request) (Job, error) {
	req, err := req.Normalize()
	if err != nil {
		return Job{}, err
	}
	now := w.exporter.now().UTC()
	job := &Job{ID: uuid.NewString(), Request: req, Status: StatusQueued, CreatedAt: now, UpdatedAt: now}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return Job{}, ErrStopped
	}
	select {
	case w.queue <- job.ID:
	default:
		return Job{}, ErrQueueFull
	}
	w.jobs[job.ID] = job
	return job.copy(), nil
}

// Job returns a snapshot of the job with id.
func (w *Worker) Job(id string) (Job, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	job, ok := w.jobs[id]
	if !ok {
		return Job{}, false
	}
	return job.copy(), true
}

// Jobs returns snapshots of every known job, newest first.
func (w *Worker) Jobs() []Job {
	w.mu.RLock()
	out := make([]Job, 0, len(w.jobs))
	for _, job := range w.jobs {
		out = append(out, job.copy())
	}
	w.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case id := <-w.queue:
			w.process(id)
		}
	}
}

func (w *Worker) process(id string) {
	req, ok := w.transition(id, StatusRunning, nil, nil)
	if !ok {
		return
	}
	artifact, err := w.exporter.Export(w.ctx, req)
	if err != nil {
		w.transition(id, StatusFailed, nil, err)
		return
	}
	w.transition(id, StatusSucceeded, &artifact, nil)
}

func (w *Worker) transition(id string, status Status, artifact *Artifact, cause error) (Request, bool) {
	now := w.exporter.now().UTC()
	w.mu.Lock()
	defer w.mu.Unlock()
	job, ok := w.jobs[id]
	if !ok {
		return Request{}, false
	}
	job.Status = status
	job.UpdatedAt = now
	if cause != nil {
		job.Error = cause.Error()
	}
	if artifact != nil {
		job.Artifact = artifact
	}
	if job.Done() {
		job.CompletedAt = &now
	}
	return job.Request, true
}

func (j *Job) copy() Job {
	dup := *j
	if j.Artifact != nil {
		artifact := *j.Artifact
		dup.Artifact = &artifact
	}
	if j.CompletedAt != nil {
		completed := *j.CompletedAt
		dup.CompletedAt = &completed
	}
	return dup
}

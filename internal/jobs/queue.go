// Package jobs runs template renders in the background with retries
package jobs

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Job statuses
const (
	StatusQueued    = "queued"
	StatusRendering = "rendering"
	StatusFailed    = "failed"
	StatusCompleted = "completed"
)

// Output formats
const (
	FormatPNG  = "png"
	FormatHTML = "html"
)

// Job is a render request and its outcome
type Job struct {
	ID          string    `json:"id"`
	TemplateID  string    `json:"templateId"`
	TenantID    string    `json:"tenantId,omitempty"`
	Width       float64   `json:"width"`
	Format      string    `json:"format"`
	Status      string    `json:"status"`
	Retries     int       `json:"retries"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	CompletedAt time.Time `json:"completedAt,omitempty"`

	Output      []byte `json:"-"`
	ContentType string `json:"contentType,omitempty"`

	notBefore time.Time
}

// Request describes a job to enqueue
type Request struct {
	TemplateID string  `json:"templateId"`
	TenantID   string  `json:"tenantId,omitempty"`
	Width      float64 `json:"width"`
	Format     string  `json:"format"`
}

// RenderFunc produces the output of a job
type RenderFunc func(ctx context.Context, job Job) (output []byte, contentType string, err error)

// Queue renders jobs on a single worker
type Queue struct {
	jobs       []*Job
	mu         sync.Mutex
	render     RenderFunc
	maxRetries int
	retryDelay time.Duration
	onDone     func(Job)
	logger     *zap.Logger
	entropy    *ulid.MonotonicEntropy

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option customizes a queue
type Option func(*Queue)

// WithRetryDelay sets the wait between attempts
func WithRetryDelay(d time.Duration) Option {
	return func(q *Queue) { q.retryDelay = d }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// OnDone registers a callback for jobs that complete or fail for good.
// It runs on the worker goroutine.
func OnDone(fn func(Job)) Option {
	return func(q *Queue) { q.onDone = fn }
}

// NewQueue creates a queue and starts its worker
func NewQueue(render RenderFunc, maxRetries int, opts ...Option) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	if maxRetries < 1 {
		maxRetries = 1
	}

	q := &Queue{
		jobs:       make([]*Job, 0),
		render:     render,
		maxRetries: maxRetries,
		retryDelay: time.Second,
		logger:     zap.NewNop(),
		entropy:    ulid.Monotonic(rand.Reader, 0),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(q)
	}

	q.wg.Add(1)
	go q.worker()

	return q
}

// Enqueue adds a job and returns its ID
func (q *Queue) Enqueue(req Request) (string, error) {
	if req.TemplateID == "" {
		return "", fmt.Errorf("template id is required")
	}
	switch req.Format {
	case "":
		req.Format = FormatPNG
	case FormatPNG, FormatHTML:
	default:
		return "", fmt.Errorf("unsupported format: %s", req.Format)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now().UTC()
	id, err := ulid.New(ulid.Timestamp(now), q.entropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate job id: %w", err)
	}
	job := &Job{
		ID:         id.String(),
		TemplateID: req.TemplateID,
		TenantID:   req.TenantID,
		Width:      req.Width,
		Format:     req.Format,
		Status:     StatusQueued,
		CreatedAt:  now,
	}
	q.jobs = append(q.jobs, job)

	return job.ID, nil
}

func (q *Queue) worker() {
	defer q.wg.Done()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			for q.processNextJob() {
				if q.ctx.Err() != nil {
					return
				}
			}
		}
	}
}

// processNextJob runs one due job and reports whether it found one
func (q *Queue) processNextJob() bool {
	q.mu.Lock()

	var job *Job
	now := time.Now()
	for _, j := range q.jobs {
		if j.Status == StatusQueued && !now.Before(j.notBefore) {
			job = j
			job.Status = StatusRendering
			break
		}
	}
	var snapshot Job
	if job != nil {
		snapshot = *job
	}

	q.mu.Unlock()

	if job == nil {
		return false
	}

	output, contentType, err := q.render(q.ctx, snapshot)

	q.mu.Lock()

	finished := false
	if err != nil {
		job.Retries++
		job.Error = err.Error()

		if job.Retries >= q.maxRetries || q.ctx.Err() != nil {
			job.Status = StatusFailed
			job.CompletedAt = time.Now().UTC()
			finished = true
			q.logger.Warn("render job failed",
				zap.String("job_id", job.ID), zap.Int("retries", job.Retries), zap.Error(err))
		} else {
			job.Status = StatusQueued
			job.notBefore = time.Now().Add(q.retryDelay)
			q.logger.Info("render job failed, retrying",
				zap.String("job_id", job.ID), zap.Int("attempt", job.Retries),
				zap.Int("max_retries", q.maxRetries), zap.Error(err))
		}
	} else {
		job.Status = StatusCompleted
		job.Error = ""
		job.Output = output
		job.ContentType = contentType
		job.CompletedAt = time.Now().UTC()
		finished = true
		q.logger.Info("render job completed", zap.String("job_id", job.ID))
	}
	done := *job

	q.mu.Unlock()

	if finished && q.onDone != nil {
		q.onDone(done)
	}
	return true
}

// GetJob returns a copy of a job, or nil
func (q *Queue) GetJob(jobID string) *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, job := range q.jobs {
		if job.ID == jobID {
			jobCopy := *job
			return &jobCopy
		}
	}

	return nil
}

// GetAllJobs returns copies of every job without their output
func (q *Queue) GetAllJobs() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs := make([]*Job, len(q.jobs))
	for i, job := range q.jobs {
		jobCopy := *job
		jobCopy.Output = nil
		jobs[i] = &jobCopy
	}

	return jobs
}

// ClearCompleted removes completed jobs
func (q *Queue) ClearCompleted() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	filtered := make([]*Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		if job.Status != StatusCompleted {
			filtered = append(filtered, job)
		}
	}
	removed := len(q.jobs) - len(filtered)
	q.jobs = filtered

	return removed
}

// Stop stops the worker and waits for it
func (q *Queue) Stop() {
	q.cancel()
	q.wg.Wait()
}

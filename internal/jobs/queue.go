package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"

	"github.com/cel-labs/cel-translate/internal/chunk"
	"github.com/cel-labs/cel-translate/internal/content"
	"github.com/cel-labs/cel-translate/pkg/log"
)

// Config bounds the queue's behavior. Zero values fall back to the limits
// the service ships with.
type Config struct {
	// MaxCharsPerRequest is the chunker's per-step target size.
	MaxCharsPerRequest int
	// MaxConcurrentJobs caps how many jobs one tick advances, which in
	// turn caps in-flight upstream requests.
	MaxConcurrentJobs int
	// RetryCap limits transient-failure retries per job.
	RetryCap int
	// StuckThreshold demotes a running job with no heartbeat back to retry.
	StuckThreshold time.Duration
	// Retention prunes terminal jobs after this window.
	Retention time.Duration
	// RescheduleDelay spaces self-triggered follow-up ticks.
	RescheduleDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxCharsPerRequest <= 0 {
		c.MaxCharsPerRequest = 10000
	}
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = 1
	}
	if c.RetryCap <= 0 {
		c.RetryCap = 3
	}
	if c.StuckThreshold <= 0 {
		c.StuckThreshold = 5 * time.Minute
	}
	if c.Retention <= 0 {
		c.Retention = 72 * time.Hour
	}
	if c.RescheduleDelay <= 0 {
		c.RescheduleDelay = 3 * time.Second
	}
	return c
}

// Metrics receives queue events. Implemented by the observability package;
// a nil recorder disables reporting.
type Metrics interface {
	JobEnqueued(ctx context.Context)
	JobCompleted(ctx context.Context)
	JobFailed(ctx context.Context)
	JobRetried(ctx context.Context)
	TickCompleted(ctx context.Context, seconds float64, advanced int)
}

// Queue schedules translation jobs. It holds no job state of its own: every
// decision is made against the store, so any number of processes (or
// overlapping ticks) can share one queue table.
type Queue struct {
	cfg       Config
	store     Store
	docs      content.Store
	processor *Processor

	reschedule func(time.Duration)
	now        func() time.Time
	metrics    Metrics

	tickGroup singleflight.Group
}

type Option func(*Queue)

// WithReschedule installs the follow-up trigger hook used when a tick
// leaves work behind.
func WithReschedule(fn func(time.Duration)) Option {
	return func(q *Queue) { q.reschedule = fn }
}

func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

func WithMetrics(m Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

func NewQueue(cfg Config, store Store, docs content.Store, processor *Processor, opts ...Option) *Queue {
	q := &Queue{
		cfg:       cfg.withDefaults(),
		store:     store,
		docs:      docs,
		processor: processor,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue computes the step plan for a document and persists a new pending
// job. It never calls the translation API.
func (q *Queue) Enqueue(ctx context.Context, documentID, targetLanguage string, mode Mode) (*Job, error) {
	if mode == "" {
		mode = ModeFull
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("invalid mode %q", mode)
	}
	if _, err := language.Parse(targetLanguage); err != nil {
		return nil, fmt.Errorf("invalid target language %q: %w", targetLanguage, err)
	}

	doc, err := q.docs.Get(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", documentID, err)
	}

	now := q.now()
	job := &Job{
		ID:             uuid.NewString(),
		DocumentID:     documentID,
		TargetLanguage: targetLanguage,
		Mode:           mode,
		Status:         StatusPending,
		Steps:          buildStepPlan(doc, mode, q.cfg.MaxCharsPerRequest),
		Results:        []string{},
		Log:            []string{"Job enqueued."},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := q.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}

	log.Info("Enqueued translation job %s for document %s to %s (mode: %s, %d steps)",
		job.ID, documentID, targetLanguage, mode, len(job.Steps))
	if q.metrics != nil {
		q.metrics.JobEnqueued(ctx)
	}
	return cloneJob(job), nil
}

// buildStepPlan decomposes a document into ordered translation steps. The
// plan is fixed for the lifetime of the job.
func buildStepPlan(doc *content.Document, mode Mode, maxChars int) []Step {
	steps := make([]Step, 0, 4)
	if mode == ModeFull && strings.TrimSpace(doc.Title) != "" {
		steps = append(steps, Step{Kind: StepTitle, Content: doc.Title})
	}
	for _, part := range chunk.Split(doc.Body, maxChars) {
		steps = append(steps, Step{Kind: StepContent, Content: part})
	}
	if mode == ModeFull && strings.TrimSpace(doc.Excerpt) != "" {
		steps = append(steps, Step{Kind: StepExcerpt, Content: doc.Excerpt})
	}
	return steps
}

// Tick runs one scheduler pass: prune, recover stuck jobs, select up to
// MaxConcurrentJobs eligible jobs, and advance each by exactly one step.
// Redundant concurrent invocations coalesce into a single pass, so the tick
// is safe to trigger from any number of timers or endpoints.
func (q *Queue) Tick(ctx context.Context) error {
	_, err, _ := q.tickGroup.Do("tick", func() (interface{}, error) {
		return nil, q.tick(ctx)
	})
	return err
}

func (q *Queue) tick(ctx context.Context) error {
	started := q.now()

	all, err := q.store.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	q.prune(ctx, all, started)
	q.recoverStuck(ctx, all, started)

	eligible := make([]*Job, 0, q.cfg.MaxConcurrentJobs)
	for _, job := range all {
		if len(eligible) == q.cfg.MaxConcurrentJobs {
			break
		}
		switch job.Status {
		case StatusPending, StatusRetry, StatusRunning:
			eligible = append(eligible, job)
		}
	}

	var group errgroup.Group
	rearm := make([]bool, len(eligible))
	for i, job := range eligible {
		group.Go(func() error {
			rearm[i] = q.advance(ctx, job)
			return nil
		})
	}
	_ = group.Wait()

	moreWork := false
	for _, r := range rearm {
		if r {
			moreWork = true
		}
	}
	if q.metrics != nil {
		q.metrics.TickCompleted(ctx, q.now().Sub(started).Seconds(), len(eligible))
	}
	if moreWork && q.reschedule != nil {
		q.reschedule(q.cfg.RescheduleDelay)
	}
	return nil
}

func (q *Queue) prune(ctx context.Context, all []*Job, now time.Time) {
	cutoff := now.Add(-q.cfg.Retention)
	for _, job := range all {
		if !job.Status.Terminal() || !job.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := q.store.DeleteJob(ctx, job.ID); err != nil {
			log.Error("Failed to prune job %s: %v", job.ID, err)
			continue
		}
		log.Info("Pruned %s job %s (idle since %s)", job.Status, job.ID, job.UpdatedAt.Format(time.RFC3339))
	}
}

// recoverStuck demotes running jobs with a stale heartbeat back to retry.
// Recovery does not consume a retry credit: a crashed worker is not an
// upstream failure.
func (q *Queue) recoverStuck(ctx context.Context, all []*Job, now time.Time) {
	cutoff := now.Add(-q.cfg.StuckThreshold)
	for _, job := range all {
		if job.Status != StatusRunning || !job.UpdatedAt.Before(cutoff) {
			continue
		}
		expected := job.UpdatedAt
		job.Status = StatusRetry
		job.appendLog(fmt.Sprintf("No progress since %s; recovered for retry.", expected.Format(time.RFC3339)))
		job.UpdatedAt = now
		if err := q.store.UpdateJob(ctx, job, expected); err != nil {
			if !errors.Is(err, ErrStaleJob) {
				log.Error("Failed to recover stuck job %s: %v", job.ID, err)
			}
			continue
		}
		log.Warn("Recovered stuck job %s (no heartbeat since %s)", job.ID, expected.Format(time.RFC3339))
	}
}

// advance moves one job forward by one step. Returns true when the job
// remains runnable and a follow-up tick should be requested.
func (q *Queue) advance(ctx context.Context, job *Job) bool {
	expected := job.UpdatedAt
	if job.Status != StatusRunning {
		job.appendLog("Processing started.")
	}
	job.Status = StatusRunning
	job.UpdatedAt = q.now()
	if err := q.store.UpdateJob(ctx, job, expected); err != nil {
		// Another tick (or a cancel) got there first.
		log.Debug("Skipping job %s: %v", job.ID, err)
		return false
	}

	outcome := q.processor.Process(ctx, cloneJob(job))

	switch outcome.Kind {
	case OutcomeAdvanced:
		return true

	case OutcomeSkipped:
		return false

	case OutcomeFinished:
		_, err := q.mutate(ctx, job.ID, func(j *Job) error {
			j.Status = StatusCompleted
			if outcome.Message != "" {
				j.appendLog(outcome.Message)
			}
			j.appendLog("Successfully completed.")
			return nil
		})
		if err != nil {
			log.Error("Failed to mark job %s completed: %v", job.ID, err)
			return false
		}
		if q.metrics != nil {
			q.metrics.JobCompleted(ctx)
		}
		return false

	default: // OutcomeFailed
		retried := false
		_, err := q.mutate(ctx, job.ID, func(j *Job) error {
			if j.Status.Terminal() {
				return fmt.Errorf("job already %s", j.Status)
			}
			j.appendLog("ERROR: " + outcome.Message)
			if outcome.Retryable && j.Retries < q.cfg.RetryCap {
				j.Retries++
				j.Status = StatusRetry
				j.appendLog(fmt.Sprintf("Retry scheduled (attempt %d).", j.Retries))
				retried = true
			} else {
				j.Status = StatusFailed
				j.appendLog("Permanent failure.")
				retried = false
			}
			return nil
		})
		if err != nil {
			log.Error("Failed to record failure for job %s: %v", job.ID, err)
			return false
		}
		if retried {
			log.Info("Retrying job %s: %s", job.ID, outcome.Message)
			if q.metrics != nil {
				q.metrics.JobRetried(ctx)
			}
		} else {
			log.Error("Job %s failed: %s", job.ID, outcome.Message)
			if q.metrics != nil {
				q.metrics.JobFailed(ctx)
			}
		}
		return false
	}
}

// mutate applies fn under optimistic concurrency, re-reading on conflict.
func (q *Queue) mutate(ctx context.Context, id string, fn func(*Job) error) (*Job, error) {
	for attempt := 0; attempt < 3; attempt++ {
		job, err := q.store.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		expected := job.UpdatedAt
		if err := fn(job); err != nil {
			return nil, err
		}
		job.UpdatedAt = q.now()
		err = q.store.UpdateJob(ctx, job, expected)
		if err == nil {
			return job, nil
		}
		if !errors.Is(err, ErrStaleJob) {
			return nil, err
		}
	}
	return nil, ErrStaleJob
}

// Cancel marks a non-terminal job failed. Steps and results are left in
// place so a later manual retry resumes from the existing cursor.
func (q *Queue) Cancel(ctx context.Context, id string) error {
	_, err := q.mutate(ctx, id, func(j *Job) error {
		if j.Status.Terminal() {
			return fmt.Errorf("job is already %s", j.Status)
		}
		j.Status = StatusFailed
		j.appendLog("Cancelled by user.")
		return nil
	})
	return err
}

// Retry re-enters a failed job into the queue with a fresh retry budget.
// Results are deliberately kept: the job resumes from its cursor rather
// than restarting, including a job that was cancelled part-way.
func (q *Queue) Retry(ctx context.Context, id string) error {
	_, err := q.mutate(ctx, id, func(j *Job) error {
		if j.Status != StatusFailed {
			return fmt.Errorf("only failed jobs can be retried (job is %s)", j.Status)
		}
		j.Status = StatusPending
		j.Retries = 0
		j.appendLog(fmt.Sprintf("Manual retry requested; resuming at step %d of %d.",
			len(j.Results)+1, len(j.Steps)))
		return nil
	})
	return err
}

// Delete unconditionally removes a job record.
func (q *Queue) Delete(ctx context.Context, id string) error {
	return q.store.DeleteJob(ctx, id)
}

func (q *Queue) Get(ctx context.Context, id string) (*Job, error) {
	return q.store.GetJob(ctx, id)
}

func (q *Queue) List(ctx context.Context) ([]*Job, error) {
	return q.store.ListJobs(ctx)
}

// ClearTerminal removes all completed and failed jobs, returning how many
// were deleted.
func (q *Queue) ClearTerminal(ctx context.Context) (int, error) {
	all, err := q.store.ListJobs(ctx)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, job := range all {
		if !job.Status.Terminal() {
			continue
		}
		if err := q.store.DeleteJob(ctx, job.ID); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

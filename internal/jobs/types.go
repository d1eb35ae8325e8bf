package jobs

import (
	"math"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusRetry     Status = "retry"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status admits no further automatic
// transitions. A failed job can still be re-entered via manual retry.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Mode string

const (
	// ModeFull translates title, body, and excerpt.
	ModeFull Mode = "full"
	// ModeContentOnly translates the body only; title and excerpt are
	// carried over from the source document unchanged.
	ModeContentOnly Mode = "content-only"
)

func (m Mode) Valid() bool {
	return m == ModeFull || m == ModeContentOnly
}

type StepKind string

const (
	StepTitle   StepKind = "title"
	StepContent StepKind = "content"
	StepExcerpt StepKind = "excerpt"
)

// Step is one bounded-size translation unit. The step plan is computed once
// at enqueue time and never mutated afterwards, so a resumed job can never
// drift from the plan its results were recorded against.
type Step struct {
	Kind    StepKind `json:"kind"`
	Content string   `json:"content"`
}

// Progress is the client-facing progress view of a job.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
	Percent int `json:"percent"`
}

// Job is one request to translate one document into one target language.
type Job struct {
	ID             string    `json:"id"`
	DocumentID     string    `json:"document_id"`
	TargetLanguage string    `json:"target_language"`
	Mode           Mode      `json:"mode"`
	Status         Status    `json:"status"`
	Steps          []Step    `json:"steps"`
	Results        []string  `json:"results"`
	Retries        int       `json:"retries"`
	Log            []string  `json:"log"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Progress derives the progress view from the results cursor. A job with an
// empty step plan counts as fully progressed.
func (j *Job) Progress() Progress {
	total := len(j.Steps)
	current := len(j.Results)
	percent := 100
	if total > 0 {
		percent = int(math.Round(float64(current) / float64(total) * 100))
	}
	return Progress{Current: current, Total: total, Percent: percent}
}

func (j *Job) appendLog(entry string) {
	j.Log = append(j.Log, entry)
}

func cloneJob(job *Job) *Job {
	if job == nil {
		return nil
	}
	tmp := *job
	tmp.Steps = append([]Step(nil), job.Steps...)
	tmp.Results = append([]string(nil), job.Results...)
	tmp.Log = append([]string(nil), job.Log...)
	return &tmp
}

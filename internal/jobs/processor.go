package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cel-labs/cel-translate/internal/aiclient"
	"github.com/cel-labs/cel-translate/internal/chunk"
	"github.com/cel-labs/cel-translate/internal/content"
	"github.com/cel-labs/cel-translate/pkg/log"
)

// Translator is the upstream translation collaborator.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

type OutcomeKind int

const (
	// OutcomeAdvanced: one step completed, more remain.
	OutcomeAdvanced OutcomeKind = iota
	// OutcomeFinished: all steps done and the translation was written.
	OutcomeFinished
	// OutcomeFailed: the step or finalize failed; see Retryable.
	OutcomeFailed
	// OutcomeSkipped: the job changed under us (cancelled or advanced by a
	// concurrent tick); nothing was recorded and nothing should transition.
	OutcomeSkipped
)

// Outcome is the structured result of advancing a job by one step. No errors
// cross the processor boundary.
type Outcome struct {
	Kind       OutcomeKind
	Message    string
	StatusCode int
	Retryable  bool
}

func failedOutcome(err error) Outcome {
	return Outcome{
		Kind:       OutcomeFailed,
		Message:    err.Error(),
		StatusCode: aiclient.StatusCode(err),
		Retryable:  aiclient.IsRetryable(err),
	}
}

type ProcessorConfig struct {
	// DefaultSourceLanguage is used when the source document carries no
	// language metadata.
	DefaultSourceLanguage string
	// PublishStatus is assigned to newly finalized translation documents.
	PublishStatus string
}

// Processor advances a job by exactly one step per invocation, or finalizes
// it when the step plan is exhausted.
type Processor struct {
	translator Translator
	store      Store
	docs       content.Store
	cfg        ProcessorConfig
}

func NewProcessor(translator Translator, store Store, docs content.Store, cfg ProcessorConfig) *Processor {
	if cfg.DefaultSourceLanguage == "" {
		cfg.DefaultSourceLanguage = "en"
	}
	if cfg.PublishStatus == "" {
		cfg.PublishStatus = "draft"
	}
	return &Processor{
		translator: translator,
		store:      store,
		docs:       docs,
		cfg:        cfg,
	}
}

// Process advances job by one step. The results cursor is len(job.Results);
// when it has reached the end of the plan the job goes straight to finalize,
// which also covers a job whose previous finalize attempt failed mid-way.
func (p *Processor) Process(ctx context.Context, job *Job) Outcome {
	current := len(job.Results)
	if current >= len(job.Steps) {
		return p.finalize(ctx, job)
	}

	step := job.Steps[current]
	sourceLang, err := p.sourceLanguage(ctx, job.DocumentID)
	if err != nil {
		return failedOutcome(err)
	}

	log.Debug("Job %s: translating %s step %d of %d", job.ID, step.Kind, current+1, len(job.Steps))
	translated, err := p.translator.Translate(ctx, step.Content, sourceLang, job.TargetLanguage)
	if err != nil {
		return failedOutcome(err)
	}

	// Re-read before recording: the job may have been cancelled (or taken
	// over by a concurrent tick) while the upstream call was in flight.
	fresh, err := p.store.GetJob(ctx, job.ID)
	if err != nil {
		return Outcome{Kind: OutcomeSkipped, Message: err.Error()}
	}
	if fresh.Status != StatusRunning {
		log.Info("Job %s: discarding step result, job is %s", job.ID, fresh.Status)
		return Outcome{Kind: OutcomeSkipped, Message: fmt.Sprintf("job is %s", fresh.Status)}
	}
	if len(fresh.Results) != current {
		log.Info("Job %s: discarding step result, cursor moved from %d to %d", job.ID, current, len(fresh.Results))
		return Outcome{Kind: OutcomeSkipped, Message: "results cursor moved"}
	}

	expected := fresh.UpdatedAt
	fresh.Results = append(fresh.Results, translated)
	fresh.appendLog(fmt.Sprintf("Translated %s step %d of %d.", step.Kind, current+1, len(fresh.Steps)))
	fresh.UpdatedAt = time.Now()
	if err := p.store.UpdateJob(ctx, fresh, expected); err != nil {
		return Outcome{Kind: OutcomeSkipped, Message: err.Error()}
	}

	if len(fresh.Results) == len(fresh.Steps) {
		// Final step: finalize in the same invocation instead of wasting
		// a tick.
		return p.finalize(ctx, fresh)
	}
	return Outcome{Kind: OutcomeAdvanced}
}

// finalize reassembles the results into a translated document and writes it
// to the document store, exactly once per (source, target language) pair:
// an existing translation is updated in place, never duplicated.
//
// Finalize failures are permanent. Retrying a rejected document write is
// unlikely to self-heal and risks publishing twice.
func (p *Processor) finalize(ctx context.Context, job *Job) Outcome {
	source, err := p.docs.Get(ctx, job.DocumentID)
	if err != nil {
		return Outcome{Kind: OutcomeFailed, Message: fmt.Sprintf("original document not found: %v", err)}
	}

	title, body, excerpt := assembleFields(job, source)

	sourceLang, err := p.sourceLanguage(ctx, job.DocumentID)
	if err != nil {
		return Outcome{Kind: OutcomeFailed, Message: err.Error()}
	}
	groupID, err := content.EnsureGroupID(ctx, p.docs, job.DocumentID, p.cfg.DefaultSourceLanguage)
	if err != nil {
		return Outcome{Kind: OutcomeFailed, Message: fmt.Sprintf("resolve translation group: %v", err)}
	}
	translations, err := content.Translations(ctx, p.docs, job.DocumentID)
	if err != nil {
		return Outcome{Kind: OutcomeFailed, Message: fmt.Sprintf("list translations: %v", err)}
	}

	translated := &content.Document{
		Title:   title,
		Body:    body,
		Excerpt: excerpt,
		Type:    source.Type,
		Status:  p.cfg.PublishStatus,
	}

	targetID, exists := translations[job.TargetLanguage]
	if exists {
		translated.ID = targetID
		if err := p.docs.Update(ctx, translated); err != nil {
			return Outcome{Kind: OutcomeFailed, Message: fmt.Sprintf("update translation: %v", err)}
		}
	} else {
		targetID, err = p.docs.Create(ctx, translated)
		if err != nil {
			return Outcome{Kind: OutcomeFailed, Message: fmt.Sprintf("create translation: %v", err)}
		}
	}

	linkage := map[string]string{
		content.MetaGroupID:    groupID,
		content.MetaLanguage:   job.TargetLanguage,
		content.MetaSourceLang: sourceLang,
		content.MetaOriginalID: job.DocumentID,
		content.MetaIsOriginal: "0",
		content.MetaStatus:     p.cfg.PublishStatus,
	}
	for key, value := range linkage {
		if err := p.docs.SetMeta(ctx, targetID, key, value); err != nil {
			return Outcome{Kind: OutcomeFailed, Message: fmt.Sprintf("write linkage metadata: %v", err)}
		}
	}
	if err := content.CopyPassthroughMeta(ctx, p.docs, job.DocumentID, targetID); err != nil {
		return Outcome{Kind: OutcomeFailed, Message: fmt.Sprintf("copy passthrough metadata: %v", err)}
	}

	log.Info("Job %s: published translation as document %s (%s)", job.ID, targetID, p.cfg.PublishStatus)
	return Outcome{
		Kind:    OutcomeFinished,
		Message: fmt.Sprintf("Published translation as document %s (%s).", targetID, p.cfg.PublishStatus),
	}
}

// assembleFields reassembles per-field text from results using each step's
// kind tag. Fields without steps (content-only mode, empty excerpt) carry
// the source value.
func assembleFields(job *Job, source *content.Document) (title, body, excerpt string) {
	title = source.Title
	body = source.Body
	excerpt = source.Excerpt

	var contentParts []string
	hasContentSteps := false
	for i, step := range job.Steps {
		if i >= len(job.Results) {
			break
		}
		switch step.Kind {
		case StepTitle:
			title = job.Results[i]
		case StepContent:
			hasContentSteps = true
			contentParts = append(contentParts, job.Results[i])
		case StepExcerpt:
			excerpt = job.Results[i]
		}
	}
	if hasContentSteps {
		body = strings.Join(contentParts, chunk.Separator)
	}
	return title, body, excerpt
}

func (p *Processor) sourceLanguage(ctx context.Context, docID string) (string, error) {
	lang, err := p.docs.GetMeta(ctx, docID, content.MetaLanguage)
	if err != nil {
		return "", fmt.Errorf("read source language: %w", err)
	}
	if lang == "" {
		lang = p.cfg.DefaultSourceLanguage
	}
	return lang, nil
}

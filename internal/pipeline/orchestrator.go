// Package pipeline drives a submitted job from received to a terminal
// status: preprocess, OCR, classify, project, persisting progress after
// every phase so the client can poll.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/moatazm17/PicDo-sub000/constants"
	"github.com/moatazm17/PicDo-sub000/internal/classify"
	"github.com/moatazm17/PicDo-sub000/internal/errcode"
	"github.com/moatazm17/PicDo-sub000/internal/extract"
	"github.com/moatazm17/PicDo-sub000/internal/fields"
	"github.com/moatazm17/PicDo-sub000/internal/store"
)

// Task carries everything one run needs. The image lives only here and is
// never persisted, which is why interrupted jobs cannot be resumed.
type Task struct {
	JobID     string
	OwnerID   string
	Image     []byte
	WantThumb bool
	Lang      string
}

// ImageProcessor is the preprocessing capability boundary.
type ImageProcessor interface {
	Preprocess(data []byte) ([]byte, error)
	Thumbnail(data []byte) (string, error)
}

// Orchestrator coordinates the per-job state machine. It is not reentrant:
// exactly one run exists per job id, started together with the record.
type Orchestrator struct {
	Jobs       store.JobRepository
	Images     ImageProcessor
	Extractor  extract.TextExtractor
	Classifier classify.Classifier
	Logger     *slog.Logger
}

func NewOrchestrator(jobs store.JobRepository, images ImageProcessor, ex extract.TextExtractor, cl classify.Classifier, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{Jobs: jobs, Images: images, Extractor: ex, Classifier: cl, Logger: logger}
}

// Run executes the full transition sequence for one job. Errors are written
// into the job record, never returned to a caller; the submitter has long
// since been answered.
func (o *Orchestrator) Run(ctx context.Context, task Task) {
	log := o.Logger.With("job_id", task.JobID, "owner_id", task.OwnerID)

	if err := o.Jobs.Transition(ctx, task.JobID, constants.JobStatusReceived, constants.JobStatusOCRInProgress); err != nil {
		log.Error("orchestrator.start.conflict", "err", err)
		return
	}

	prepped, err := o.Images.Preprocess(task.Image)
	if err != nil {
		log.Error("orchestrator.preprocess.failed", "err", err)
		o.fail(ctx, task.JobID, fmt.Errorf("preprocess image: %w", err))
		return
	}

	ocrRes, err := o.Extractor.Extract(ctx, prepped)
	if err != nil {
		// No-text is a distinguishable condition: terminal, and
		// classification is never attempted.
		if errors.Is(err, extract.ErrNoText) {
			log.Info("orchestrator.ocr.no_text")
		} else {
			log.Error("orchestrator.ocr.failed", "err", err)
		}
		o.fail(ctx, task.JobID, err)
		return
	}
	if err := o.Jobs.FinishOCR(ctx, task.JobID, ocrRes.Text); err != nil {
		log.Error("orchestrator.ocr.persist_conflict", "err", err)
		return
	}
	log.Info("orchestrator.ocr.ok", "method", ocrRes.Method, "text_bytes", len(ocrRes.Text))

	// Thumbnail failure must not fail the job; thumb stays null.
	if task.WantThumb {
		if thumb, err := o.Images.Thumbnail(task.Image); err != nil {
			log.Warn("orchestrator.thumb.failed", "err", err)
		} else if err := o.Jobs.SetThumb(ctx, task.JobID, thumb); err != nil {
			log.Warn("orchestrator.thumb.persist_failed", "err", err)
		}
	}

	if err := o.Jobs.Transition(ctx, task.JobID, constants.JobStatusOCRDone, constants.JobStatusAIInProgress); err != nil {
		log.Error("orchestrator.classify.start_conflict", "err", err)
		return
	}

	result, err := o.Classifier.Classify(ctx, ocrRes.Text, task.Lang)
	if err != nil {
		log.Error("orchestrator.classify.failed", "err", err)
		o.fail(ctx, task.JobID, err)
		return
	}

	itemType, recognized := constants.Canonicalize(result.Type)
	if !recognized {
		o.fail(ctx, task.JobID, fmt.Errorf("classification returned unrecognized type %q", result.Type))
		return
	}
	if result.BestTitle() == "" {
		o.fail(ctx, task.JobID, fmt.Errorf("classification returned no title"))
		return
	}

	projected := fields.Project(result)
	summary := fields.Summary(result, projected)

	out := store.ReadyOutcome{
		Type:           itemType,
		Classification: result.Raw,
		Fields:         projected,
		Summary:        summary,
	}
	if err := o.Jobs.MarkReady(ctx, task.JobID, out); err != nil {
		log.Error("orchestrator.ready.persist_conflict", "err", err)
		return
	}
	log.Info("orchestrator.ready", "type", itemType, "summary", summary)
}

// fail normalizes the error and writes the terminal failure. A state
// conflict here means the job already terminated; nothing more to do.
func (o *Orchestrator) fail(ctx context.Context, jobID string, cause error) {
	code, msg := errcode.Normalize(cause)
	if err := o.Jobs.Fail(ctx, jobID, string(code), msg); err != nil {
		if !errors.Is(err, store.ErrStateConflict) {
			o.Logger.Error("orchestrator.fail.persist_failed", "job_id", jobID, "err", err)
		}
	}
}

package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/idscan/constants"
	"github.com/joseph-ayodele/idscan/internal/core/identity"
	"github.com/joseph-ayodele/idscan/internal/core/ocr"
	"github.com/joseph-ayodele/idscan/internal/entity"
	"github.com/joseph-ayodele/idscan/internal/metrics"
	"github.com/joseph-ayodele/idscan/internal/repository"
)

// ErrOCRFailed marks failures of the text recognition stage.
var ErrOCRFailed = errors.New("text recognition failed")

// TextExtractor recognizes the text of an image file.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (ocr.ExtractionResult, error)
}

// Outcome summarizes one processed file.
type Outcome struct {
	FileID        uuid.UUID
	JobID         uuid.UUID
	Result        identity.Result
	OCRConfidence float32
	NeedsReview   bool
	Document      *entity.Document
}

// Processor coordinates OCR (text extract) then rule-based field extraction.
type Processor struct {
	logger        *slog.Logger
	ocrExtractor  TextExtractor
	engine        *identity.Engine
	filesRepo     repository.ScanFileRepository
	jobsRepo      repository.ExtractJobRepository
	documentsRepo repository.DocumentRepository
	metrics       *metrics.Metrics
	minConfidence float32
}

type ProcessorOption func(*Processor)

func WithMetrics(m *metrics.Metrics) ProcessorOption {
	return func(p *Processor) { p.metrics = m }
}

// WithMinConfidence sets the OCR confidence below which documents need review.
func WithMinConfidence(c float32) ProcessorOption {
	return func(p *Processor) {
		if c > 0 {
			p.minConfidence = c
		}
	}
}

func NewProcessor(
	logger *slog.Logger,
	ocrExtractor TextExtractor,
	engine *identity.Engine,
	filesRepo repository.ScanFileRepository,
	jobsRepo repository.ExtractJobRepository,
	documentsRepo repository.DocumentRepository,
	opts ...ProcessorOption,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if engine == nil {
		engine = identity.NewEngine(identity.WithLogger(logger))
	}
	p := &Processor{
		logger:        logger,
		ocrExtractor:  ocrExtractor,
		engine:        engine,
		filesRepo:     filesRepo,
		jobsRepo:      jobsRepo,
		documentsRepo: documentsRepo,
		minConfidence: constants.ImageConfidenceThreshold,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ExtractText runs field extraction over already recognized text. Nothing is persisted.
func (p *Processor) ExtractText(ctx context.Context, text string, docType constants.DocumentType) (identity.Result, error) {
	if !docType.Valid() {
		return identity.Result{}, fmt.Errorf("unknown document type %q", docType)
	}
	res := p.engine.Extract(text, docType)
	p.metrics.ObserveExtraction(docType, res.UndetectedFields())
	p.logger.DebugContext(ctx, "extracted fields from text",
		"document_type", string(docType),
		"text_bytes", len(text),
		"undetected", len(res.UndetectedFields()))
	return res, nil
}

// ScanImage recognizes and extracts an image without touching storage.
func (p *Processor) ScanImage(ctx context.Context, path string, docType constants.DocumentType) (identity.Result, ocr.ExtractionResult, error) {
	if !docType.Valid() {
		return identity.Result{}, ocr.ExtractionResult{}, fmt.Errorf("unknown document type %q", docType)
	}
	ocrRes, err := p.recognize(ctx, path)
	if err != nil {
		return identity.Result{}, ocrRes, err
	}
	res, _ := p.ExtractText(ctx, ocrRes.Text, docType)
	return res, ocrRes, nil
}

func (p *Processor) recognize(ctx context.Context, path string) (ocr.ExtractionResult, error) {
	res, err := p.ocrExtractor.Extract(ctx, path)
	p.metrics.ObserveOCR(res.Duration)
	if err != nil {
		p.metrics.ProcessFailure(metrics.StageOCR)
		return res, fmt.Errorf("%w: %w", ErrOCRFailed, err)
	}
	return res, nil
}

// ProcessFile runs OCR for fileID inside a new extract job, extracts the
// identity fields for the file's declared document type, and upserts the
// document row. The job ends EXTRACTED, or FAILED with the error message.
func (p *Processor) ProcessFile(ctx context.Context, fileID uuid.UUID) (Outcome, error) {
	out := Outcome{FileID: fileID}

	file, err := p.filesRepo.GetByID(ctx, fileID)
	if err != nil {
		p.metrics.ProcessFailure(metrics.StageLoad)
		return out, fmt.Errorf("get file: %w", err)
	}
	ctx = ocr.WithContentHash(ctx, file.ContentHash)

	job, err := p.jobsRepo.Start(ctx, file.ID)
	if err != nil {
		p.metrics.ProcessFailure(metrics.StagePersist)
		return out, fmt.Errorf("start job: %w", err)
	}
	out.JobID = job.ID

	ocrRes, err := p.recognize(ctx, file.SourcePath)
	if err != nil {
		p.logger.Error("processor.ocr.failed", "file_id", fileID, "job_id", job.ID, "err", err)
		return out, p.fail(ctx, job.ID, err)
	}
	out.OCRConfidence = ocrRes.Confidence
	if err := p.jobsRepo.FinishOCR(ctx, job.ID, ocrRes.Text, ocrRes.Method, ocrRes.Confidence); err != nil {
		p.metrics.ProcessFailure(metrics.StagePersist)
		return out, p.fail(ctx, job.ID, fmt.Errorf("store ocr text: %w", err))
	}

	res, _ := p.ExtractText(ctx, ocrRes.Text, file.DocumentType)
	out.Result = res

	data, err := res.JSON()
	if err == nil {
		err = identity.ValidateResultJSON(data)
	}
	if err != nil {
		p.metrics.ProcessFailure(metrics.StageValidate)
		return out, p.fail(ctx, job.ID, fmt.Errorf("validate result: %w", err))
	}

	out.NeedsReview = p.NeedsReview(ocrRes.Confidence, res)
	if out.NeedsReview {
		p.logger.Warn("document needs review",
			"file_id", fileID,
			"job_id", job.ID,
			"ocr_confidence", ocrRes.Confidence,
			"undetected", res.UndetectedFields())
	}

	doc, err := p.documentsRepo.Upsert(ctx, &entity.Document{
		FileID:         file.ID,
		JobID:          job.ID,
		DocumentType:   file.DocumentType,
		FullName:       res.Name,
		DocumentNumber: res.DocumentNumber,
		ExpirationDate: res.ExpirationDate,
		NeedsReview:    out.NeedsReview,
	})
	if err != nil {
		p.metrics.ProcessFailure(metrics.StagePersist)
		return out, p.fail(ctx, job.ID, fmt.Errorf("upsert document: %w", err))
	}
	out.Document = doc

	if err := p.jobsRepo.FinishExtraction(ctx, job.ID, data, out.NeedsReview); err != nil {
		p.metrics.ProcessFailure(metrics.StagePersist)
		return out, fmt.Errorf("finish job: %w", err)
	}

	p.logger.Info("processed document",
		"file_id", fileID,
		"job_id", job.ID,
		"document_id", doc.ID,
		"document_type", string(file.DocumentType),
		"needs_review", out.NeedsReview)
	return out, nil
}

// NeedsReview flags weak OCR or any field left at the sentinel. A zero
// confidence means the recognizer reported none.
func (p *Processor) NeedsReview(conf float32, res identity.Result) bool {
	return (conf > 0 && conf < p.minConfidence) || res.HasUndetectedFields()
}

// fail marks the job FAILED and returns cause. The job update survives
// cancellation of ctx.
func (p *Processor) fail(ctx context.Context, jobID uuid.UUID, cause error) error {
	if err := p.jobsRepo.FinishFailure(context.WithoutCancel(ctx), jobID, cause.Error()); err != nil {
		p.logger.Error("failed to mark job failed", "job_id", jobID, "err", err)
	}
	return cause
}

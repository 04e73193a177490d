package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/idscan/constants"
	"github.com/joseph-ayodele/idscan/internal/entity"
)

type ExtractJobRepository interface {
	Start(ctx context.Context, fileID uuid.UUID) (*entity.ExtractJob, error)
	FinishOCR(ctx context.Context, jobID uuid.UUID, ocrText, method string, confidence float32) error
	FinishExtraction(ctx context.Context, jobID uuid.UUID, extractedJSON []byte, needsReview bool) error
	FinishFailure(ctx context.Context, jobID uuid.UUID, message string) error
	GetByID(ctx context.Context, jobID uuid.UUID) (*entity.ExtractJob, error)
}

var extractJobColumns = []string{
	"id", "file_id", "status", "started_at", "finished_at", "error_message",
	"ocr_text", "ocr_method", "ocr_confidence", "needs_review", "extracted_json",
}

type extractJobRepo struct {
	db  *DB
	log *slog.Logger
}

func NewExtractJobRepository(db *DB, log *slog.Logger) ExtractJobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &extractJobRepo{db: db, log: log}
}

func (r *extractJobRepo) Start(ctx context.Context, fileID uuid.UUID) (*entity.ExtractJob, error) {
	job := &entity.ExtractJob{
		ID:        uuid.New(),
		FileID:    fileID,
		Status:    constants.JobStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	ins := r.db.builder().Insert("extract_jobs").
		Columns("id", "file_id", "status", "started_at", "needs_review").
		Values(job.ID.String(), fileID.String(), string(job.Status), formatTime(job.StartedAt), false)
	if _, err := execBuilder(ctx, r.db.SQL(), ins); err != nil {
		r.log.Error("extract_job start failed", "file_id", fileID, "err", err)
		return nil, fmt.Errorf("insert extract job: %w", err)
	}
	r.log.Info("extract_job started", "job_id", job.ID, "file_id", fileID)
	return job, nil
}

func (r *extractJobRepo) FinishOCR(ctx context.Context, jobID uuid.UUID, ocrText, method string, confidence float32) error {
	upd := r.db.builder().Update("extract_jobs").
		Set("ocr_text", ocrText).
		Set("ocr_method", method).
		Set("ocr_confidence", float64(confidence)).
		Set("status", string(constants.JobStatusOCROK)).
		Where(entsql.EQ("id", jobID.String()))
	if err := r.update(ctx, upd); err != nil {
		r.log.Error("extract_job finish(OCR_OK) failed", "job_id", jobID, "err", err)
		return err
	}
	r.log.Info("extract_job ocr done", "job_id", jobID, "method", method, "confidence", confidence)
	return nil
}

func (r *extractJobRepo) FinishExtraction(ctx context.Context, jobID uuid.UUID, extractedJSON []byte, needsReview bool) error {
	upd := r.db.builder().Update("extract_jobs").
		Set("extracted_json", string(extractedJSON)).
		Set("needs_review", needsReview).
		Set("finished_at", formatTime(time.Now())).
		Set("status", string(constants.JobStatusExtracted)).
		Where(entsql.EQ("id", jobID.String()))
	if err := r.update(ctx, upd); err != nil {
		r.log.Error("extract_job finish(EXTRACTED) failed", "job_id", jobID, "err", err)
		return err
	}
	r.log.Info("extract_job finished (EXTRACTED)", "job_id", jobID, "needs_review", needsReview)
	return nil
}

func (r *extractJobRepo) FinishFailure(ctx context.Context, jobID uuid.UUID, message string) error {
	upd := r.db.builder().Update("extract_jobs").
		Set("finished_at", formatTime(time.Now())).
		Set("status", string(constants.JobStatusFailed)).
		Set("error_message", message).
		Where(entsql.EQ("id", jobID.String()))
	if err := r.update(ctx, upd); err != nil {
		r.log.Error("extract_job finish(FAILED) failed", "job_id", jobID, "err", err)
		return err
	}
	r.log.Warn("extract_job finished (FAILED)", "job_id", jobID, "error", message)
	return nil
}

func (r *extractJobRepo) update(ctx context.Context, upd *entsql.UpdateBuilder) error {
	res, err := execBuilder(ctx, r.db.SQL(), upd)
	if err != nil {
		return fmt.Errorf("update extract job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *extractJobRepo) GetByID(ctx context.Context, jobID uuid.UUID) (*entity.ExtractJob, error) {
	b := r.db.builder()
	sel := b.Select(extractJobColumns...).From(b.Table("extract_jobs")).Where(entsql.EQ("id", jobID.String()))

	var (
		job                            entity.ExtractJob
		id, fileID, status, started    string
		finished, errMsg, text, method sql.NullString
		extracted                      sql.NullString
		conf                           sql.NullFloat64
	)
	err := queryRowBuilder(ctx, r.db.SQL(), sel).Scan(
		&id, &fileID, &status, &started, &finished, &errMsg,
		&text, &method, &conf, &job.NeedsReview, &extracted)
	if err != nil {
		return nil, notFound(err)
	}
	if job.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse job id: %w", err)
	}
	if job.FileID, err = uuid.Parse(fileID); err != nil {
		return nil, fmt.Errorf("parse job file id: %w", err)
	}
	if job.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if job.FinishedAt, err = nullTime(finished); err != nil {
		return nil, err
	}
	job.Status = constants.JobStatus(status)
	job.ErrorMessage = nullString(errMsg)
	job.OCRText = nullString(text)
	job.OCRMethod = nullString(method)
	if conf.Valid {
		c := float32(conf.Float64)
		job.OCRConfidence = &c
	}
	if extracted.Valid {
		job.ExtractedJSON = []byte(extracted.String)
	}
	return &job, nil
}

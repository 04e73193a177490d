package server

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/idscan/constants"
	"github.com/joseph-ayodele/idscan/internal/common"
	"github.com/joseph-ayodele/idscan/internal/core"
	"github.com/joseph-ayodele/idscan/internal/core/async"
	"github.com/joseph-ayodele/idscan/internal/core/identity"
	"github.com/joseph-ayodele/idscan/internal/entity"
	"github.com/joseph-ayodele/idscan/internal/export"
	"github.com/joseph-ayodele/idscan/internal/ingest"
	"github.com/joseph-ayodele/idscan/internal/repository"
)

// ScanFailedMessage is returned to clients in place of OCR error details.
const ScanFailedMessage = "Failed to process document. Please ensure the image is clear and try again."

const (
	maxTextRunes = 1 << 20
	maxListLimit = 1000
)

// Processor is the part of core.Processor the service calls.
type Processor interface {
	ExtractText(ctx context.Context, text string, docType constants.DocumentType) (identity.Result, error)
	ProcessFile(ctx context.Context, fileID uuid.UUID) (core.Outcome, error)
}

type ScannerService struct {
	processor Processor
	ingestor  ingest.Ingestor
	documents repository.DocumentRepository
	exporter  *export.Service
	queue     async.Queue
	logger    *slog.Logger
}

var _ ScannerServer = (*ScannerService)(nil)

type ServiceOption func(*ScannerService)

// WithQueue hands directory scans to q instead of processing them inline.
func WithQueue(q async.Queue) ServiceOption {
	return func(s *ScannerService) { s.queue = q }
}

func WithExporter(e *export.Service) ServiceOption {
	return func(s *ScannerService) { s.exporter = e }
}

func NewScannerService(proc Processor, ing ingest.Ingestor, docs repository.DocumentRepository, logger *slog.Logger, opts ...ServiceOption) *ScannerService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ScannerService{processor: proc, ingestor: ing, documents: docs, logger: logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ExtractText runs field extraction over caller supplied text.
func (s *ScannerService) ExtractText(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	text := stringField(in, "text")
	dtName := stringField(in, "document_type")
	v := common.NewValidator().
		Field("text", text, common.MaxLength(maxTextRunes)).
		Field("document_type", dtName, common.Required, common.DocumentType)
	if err := common.ValidateAndReturnError(v); err != nil {
		return nil, err
	}
	docType, _ := constants.ParseDocumentType(dtName)

	res, err := s.processor.ExtractText(ctx, text, docType)
	if err != nil {
		s.logger.Error("extract text failed", "document_type", dtName, "error", err)
		return nil, common.StatusFromError(err)
	}
	return newStruct(resultFields(res))
}

// ScanFile ingests one image and processes it before returning.
func (s *ScannerService) ScanFile(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	path := strings.TrimSpace(stringField(in, "path"))
	dtName := stringField(in, "document_type")
	v := common.NewValidator().
		Field("path", path, common.Required, common.ImagePath).
		Field("document_type", dtName, common.Required, common.DocumentType)
	if err := common.ValidateAndReturnError(v); err != nil {
		return nil, err
	}
	docType, _ := constants.ParseDocumentType(dtName)

	s.logger.Info("starting file scan", "path", path, "document_type", dtName)
	r, err := s.ingestor.IngestPath(ctx, docType, path)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "ingest: %v", err)
	}
	out := map[string]any{
		"file_id":      r.FileID,
		"deduplicated": r.Deduplicated,
		"source_path":  r.SourcePath,
	}

	fileID, err := uuid.Parse(r.FileID)
	if err != nil {
		return nil, common.InternalErrorf("ingest returned bad file id %q", r.FileID)
	}
	outcome, err := s.processor.ProcessFile(ctx, fileID)
	switch {
	case errors.Is(err, core.ErrOCRFailed):
		s.logger.Error("pipeline.failed", "file_id", r.FileID, "err", err)
		out["error"] = ScanFailedMessage
		return newStruct(out)
	case err != nil:
		s.logger.Error("pipeline.failed", "file_id", r.FileID, "err", err)
		return nil, common.StatusFromError(err)
	}

	out["needs_review"] = outcome.NeedsReview
	out["ocr_confidence"] = float64(outcome.OCRConfidence)
	out["result"] = outcome.Result.Map()
	return newStruct(out)
}

// ScanDirectory ingests every image under root and queues the new files.
// Deduplicated files are queued again only when force is set.
func (s *ScannerService) ScanDirectory(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	root := strings.TrimSpace(stringField(in, "root"))
	dtName := stringField(in, "document_type")
	v := common.NewValidator().
		Field("root", root, common.Required).
		Field("document_type", dtName, common.Required, common.DocumentType)
	if err := common.ValidateAndReturnError(v); err != nil {
		return nil, err
	}
	docType, _ := constants.ParseDocumentType(dtName)
	skipHidden := boolField(in, "skip_hidden", true)
	force := boolField(in, "force", false)

	s.logger.Info("starting directory scan", "root", root, "document_type", dtName, "skip_hidden", skipHidden)
	results, stats, err := s.ingestor.IngestDirectory(ctx, docType, root, skipHidden)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "ingest directory: %v", err)
	}

	items := make([]any, 0, len(results))
	var queued int
	for _, r := range results {
		item := map[string]any{
			"source_path":  r.SourcePath,
			"file_id":      r.FileID,
			"deduplicated": r.Deduplicated,
		}
		if r.Err != "" {
			item["error"] = r.Err
		} else if !r.Deduplicated || force {
			if err := s.dispatch(ctx, r.FileID, force); err != nil {
				item["error"] = err.Error()
			} else {
				queued++
			}
		}
		items = append(items, item)
	}
	s.logger.Info("directory scan dispatched", "root", root, "matched", stats.Matched, "queued", queued, "failed", stats.Failed)

	return newStruct(map[string]any{
		"scanned":      stats.Scanned,
		"matched":      stats.Matched,
		"succeeded":    stats.Succeeded,
		"deduplicated": stats.Deduplicated,
		"failed":       stats.Failed,
		"queued":       queued,
		"results":      items,
	})
}

// dispatch queues fileID, or processes it inline when no queue is set.
func (s *ScannerService) dispatch(ctx context.Context, fileID string, force bool) error {
	id, err := uuid.Parse(fileID)
	if err != nil {
		return err
	}
	if s.queue != nil {
		return s.queue.Enqueue(ctx, async.Job{
			FileID:      id,
			Force:       force,
			SubmittedAt: time.Now(),
			TraceID:     common.RequestIDFromContext(ctx),
		})
	}
	if _, err := s.processor.ProcessFile(ctx, id); err != nil {
		if errors.Is(err, core.ErrOCRFailed) {
			return errors.New(ScanFailedMessage)
		}
		return err
	}
	return nil
}

func (s *ScannerService) ListDocuments(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	filter, err := documentFilter(in)
	if err != nil {
		return nil, err
	}
	docs, err := s.documents.List(ctx, filter)
	if err != nil {
		s.logger.Warn("list documents failed", "error", err)
		return nil, status.Error(codes.Internal, "list documents failed")
	}
	out := make([]any, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentFields(d))
	}
	return newStruct(map[string]any{"documents": out})
}

// ExportDocuments returns an XLSX workbook, base64 encoded.
func (s *ScannerService) ExportDocuments(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.exporter == nil {
		return nil, status.Error(codes.Unimplemented, "export is not configured")
	}
	filter, err := documentFilter(in)
	if err != nil {
		return nil, err
	}
	xlsx, err := s.exporter.ExportDocumentsXLSX(ctx, filter)
	if err != nil {
		s.logger.Error("export.xlsx.failed", "err", err)
		return nil, status.Error(codes.Internal, "export failed")
	}
	return newStruct(map[string]any{
		"xlsx_base64": base64.StdEncoding.EncodeToString(xlsx),
		"size_bytes":  len(xlsx),
	})
}

func documentFilter(in *structpb.Struct) (repository.DocumentFilter, error) {
	var filter repository.DocumentFilter
	v := common.NewValidator()
	if dtName := stringField(in, "document_type"); dtName != "" {
		v.Field("document_type", dtName, common.DocumentType)
		filter.DocumentType, _ = constants.ParseDocumentType(dtName)
	}
	if limit, ok := numberField(in, "limit"); ok {
		v.Field("limit", limit, common.NonNegative)
		filter.Limit = int(min(max(limit, 0), maxListLimit))
	}
	filter.NeedsReviewOnly = boolField(in, "needs_review_only", false)
	if err := common.ValidateAndReturnError(v); err != nil {
		return filter, err
	}
	return filter, nil
}

func resultFields(r identity.Result) map[string]any {
	m := r.Map()
	m["needs_review"] = r.HasUndetectedFields()
	return m
}

func documentFields(d *entity.Document) map[string]any {
	return map[string]any{
		"id":              d.ID.String(),
		"file_id":         d.FileID.String(),
		"document_type":   string(d.DocumentType),
		"name":            d.FullName,
		"document_number": d.DocumentNumber,
		"expiration_date": d.ExpirationDate,
		"needs_review":    d.NeedsReview,
		"source_path":     d.SourcePath,
		"updated_at":      d.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func newStruct(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, common.InternalErrorf("encode response: %v", err)
	}
	return out, nil
}

func stringField(in *structpb.Struct, key string) string {
	return in.GetFields()[key].GetStringValue()
}

func boolField(in *structpb.Struct, key string, def bool) bool {
	v, ok := in.GetFields()[key]
	if !ok {
		return def
	}
	if _, isBool := v.GetKind().(*structpb.Value_BoolValue); !isBool {
		return def
	}
	return v.GetBoolValue()
}

func numberField(in *structpb.Struct, key string) (float64, bool) {
	v, ok := in.GetFields()[key]
	if !ok {
		return 0, false
	}
	if _, isNum := v.GetKind().(*structpb.Value_NumberValue); !isNum {
		return 0, false
	}
	return v.GetNumberValue(), true
}

package ingest

import (
	"context"
	"time"

	"github.com/joseph-ayodele/idscan/constants"
)

// IngestionResult is the per-file ingest outcome.
type IngestionResult struct {
	SourcePath   string
	FileID       string
	DocumentType constants.DocumentType
	Deduplicated bool
	HashHex      string
	FileExt      string
	UploadedAt   time.Time
	Err          string
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// Ingestor registers document images for processing.
type Ingestor interface {
	// IngestPath registers a single image declared as docType.
	IngestPath(ctx context.Context, docType constants.DocumentType, path string) (IngestionResult, error)
	// IngestDirectory ingests all image files under root.
	IngestDirectory(ctx context.Context, docType constants.DocumentType, root string, skipHidden bool) ([]IngestionResult, DirStats, error)
}

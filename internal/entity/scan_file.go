package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/idscan/constants"
)

// ScanFile is an ingested document image.
type ScanFile struct {
	ID           uuid.UUID              `json:"id"`
	DocumentType constants.DocumentType `json:"document_type"`
	SourcePath   string                 `json:"source_path"`
	Filename     string                 `json:"filename"`
	FileExt      string                 `json:"file_ext"`
	FileSize     int64                  `json:"file_size"`
	ContentHash  string                 `json:"content_hash"` // hex SHA-256
	UploadedAt   time.Time              `json:"uploaded_at"`
}

package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/idscan/constants"
)

// Document is the latest extraction result for a ScanFile. Unresolved
// fields hold constants.NotFound.
type Document struct {
	ID             uuid.UUID              `json:"id"`
	FileID         uuid.UUID              `json:"file_id"`
	JobID          uuid.UUID              `json:"job_id"`
	DocumentType   constants.DocumentType `json:"document_type"`
	FullName       string                 `json:"full_name"`
	DocumentNumber string                 `json:"document_number"`
	ExpirationDate string                 `json:"expiration_date"`
	NeedsReview    bool                   `json:"needs_review"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`

	// Filled by listings that join the source file.
	SourcePath string `json:"source_path,omitempty"`
	Filename   string `json:"filename,omitempty"`
}

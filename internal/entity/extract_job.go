package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/idscan/constants"
)

// ExtractJob tracks one OCR + field extraction run over a ScanFile.
type ExtractJob struct {
	ID            uuid.UUID           `json:"id"`
	FileID        uuid.UUID           `json:"file_id"`
	Status        constants.JobStatus `json:"status"`
	StartedAt     time.Time           `json:"started_at"`
	FinishedAt    *time.Time          `json:"finished_at,omitempty"`
	ErrorMessage  *string             `json:"error_message,omitempty"`
	OCRText       *string             `json:"ocr_text,omitempty"`
	OCRMethod     *string             `json:"ocr_method,omitempty"`
	OCRConfidence *float32            `json:"ocr_confidence,omitempty"`
	NeedsReview   bool                `json:"needs_review"`
	ExtractedJSON json.RawMessage     `json:"extracted_json,omitempty"`
}

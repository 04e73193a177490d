package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/idscan/internal/repository"
)

const sheetName = "Documents"

var headers = []string{
	"Document Type",
	"Name",
	"Document Number",
	"Expiration Date",
	"Needs Review",
	"Source File",
	"Scanned At",
}

// Service turns stored documents into XLSX workbooks.
type Service struct {
	documentsRepo repository.DocumentRepository
	logger        *slog.Logger
}

func NewService(documentsRepo repository.DocumentRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{documentsRepo: documentsRepo, logger: logger}
}

// ExportDocumentsXLSX returns a workbook (as bytes) with one row per
// document matching filter, most recently updated first. Unresolved fields
// are written with their "Not Found" value.
func (s *Service) ExportDocumentsXLSX(ctx context.Context, filter repository.DocumentFilter) ([]byte, error) {
	start := time.Now()

	docs, err := s.documentsRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	// Rename the default sheet instead of leaving an empty Sheet1 behind.
	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return nil, fmt.Errorf("xlsx header: %w", err)
		}
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(sheetName, 1, 1, style)
	}

	for i, d := range docs {
		row := i + 2
		source := d.SourcePath
		if source == "" {
			source = d.Filename
		}
		values := []any{
			string(d.DocumentType),
			d.FullName,
			d.DocumentNumber,
			d.ExpirationDate,
			yesNo(d.NeedsReview),
			source,
			d.UpdatedAt.UTC().Format(time.RFC3339),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return nil, fmt.Errorf("xlsx row %d: %w", row, err)
			}
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 14)
	_ = f.SetColWidth(sheetName, "B", "B", 32)
	_ = f.SetColWidth(sheetName, "C", "D", 18)
	_ = f.SetColWidth(sheetName, "E", "E", 13)
	_ = f.SetColWidth(sheetName, "F", "F", 60)
	_ = f.SetColWidth(sheetName, "G", "G", 22)
	_ = f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"document_type", string(filter.DocumentType),
		"rows", len(docs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

package export

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/idscan/constants"
	"github.com/joseph-ayodele/idscan/internal/entity"
	"github.com/joseph-ayodele/idscan/internal/repository"
)

type stubDocuments struct {
	docs   []*entity.Document
	err    error
	filter repository.DocumentFilter
}

func (s *stubDocuments) Upsert(context.Context, *entity.Document) (*entity.Document, error) {
	return nil, errors.New("not implemented")
}

func (s *stubDocuments) GetByFileID(context.Context, uuid.UUID) (*entity.Document, error) {
	return nil, repository.ErrNotFound
}

func (s *stubDocuments) List(_ context.Context, f repository.DocumentFilter) ([]*entity.Document, error) {
	s.filter = f
	return s.docs, s.err
}

func TestExportDocumentsXLSX(t *testing.T) {
	scanned := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	repo := &stubDocuments{docs: []*entity.Document{
		{
			DocumentType:   constants.Passport,
			FullName:       "DOE",
			DocumentNumber: "A1234567",
			ExpirationDate: "2030-11-12",
			SourcePath:     "/scans/passport.jpg",
			UpdatedAt:      scanned,
		},
		{
			DocumentType:   constants.License,
			FullName:       constants.NotFound,
			DocumentNumber: "MH32300011066",
			ExpirationDate: constants.NotFound,
			NeedsReview:    true,
			Filename:       "dl.png",
			UpdatedAt:      scanned,
		},
	}}

	filter := repository.DocumentFilter{NeedsReviewOnly: false, Limit: 10}
	data, err := NewService(repo, nil).ExportDocumentsXLSX(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, filter, repo.filter)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{sheetName}, f.GetSheetList())
	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, headers, rows[0])
	assert.Equal(t, []string{"passport", "DOE", "A1234567", "2030-11-12", "no", "/scans/passport.jpg", "2026-03-04T05:06:07Z"}, rows[1])
	assert.Equal(t, []string{"license", "Not Found", "MH32300011066", "Not Found", "yes", "dl.png", "2026-03-04T05:06:07Z"}, rows[2])
}

func TestExportDocumentsXLSX_Empty(t *testing.T) {
	data, err := NewService(&stubDocuments{}, nil).ExportDocumentsXLSX(context.Background(), repository.DocumentFilter{})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestExportDocumentsXLSX_QueryError(t *testing.T) {
	_, err := NewService(&stubDocuments{err: errors.New("db down")}, nil).
		ExportDocumentsXLSX(context.Background(), repository.DocumentFilter{})
	assert.ErrorContains(t, err, "query documents")
}

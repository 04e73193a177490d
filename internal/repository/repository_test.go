package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/idscan/constants"
	"github.com/joseph-ayodele/idscan/internal/entity"
)

func newFile(hash string, docType constants.DocumentType) *entity.ScanFile {
	return &entity.ScanFile{
		DocumentType: docType,
		SourcePath:   "/scans/" + hash + ".jpg",
		Filename:     hash + ".jpg",
		FileExt:      "jpg",
		FileSize:     1024,
		ContentHash:  hash,
	}
}

func TestScanFileRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewScanFileRepository(newTestDB(t), nil)

	created, err := repo.Create(ctx, newFile("aa11", constants.Passport))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.False(t, created.UploadedAt.IsZero())

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	byHash, err := repo.GetByHash(ctx, "aa11")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byHash.ID)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScanFileRepository_UpsertByHash(t *testing.T) {
	ctx := context.Background()
	repo := NewScanFileRepository(newTestDB(t), nil)

	first, existed, err := repo.UpsertByHash(ctx, newFile("bb22", constants.License))
	require.NoError(t, err)
	assert.False(t, existed)

	dup := newFile("bb22", constants.License)
	dup.SourcePath = "/elsewhere/copy.jpg"
	second, existed, err := repo.UpsertByHash(ctx, dup)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.SourcePath, second.SourcePath)

	_, err = repo.Create(ctx, newFile("bb22", constants.License))
	assert.Error(t, err, "content hash is unique")
}

func TestExtractJobRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	file, err := NewScanFileRepository(db, nil).Create(ctx, newFile("cc33", constants.Passport))
	require.NoError(t, err)
	jobs := NewExtractJobRepository(db, nil)

	job, err := jobs.Start(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusRunning, job.Status)

	require.NoError(t, jobs.FinishOCR(ctx, job.ID, "PASSPORT NO: A1234567", "image-ocr", 0.75))
	got, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusOCROK, got.Status)
	require.NotNil(t, got.OCRText)
	assert.Equal(t, "PASSPORT NO: A1234567", *got.OCRText)
	require.NotNil(t, got.OCRConfidence)
	assert.InDelta(t, 0.75, *got.OCRConfidence, 1e-6)
	assert.Nil(t, got.FinishedAt)

	require.NoError(t, jobs.FinishExtraction(ctx, job.ID, []byte(`{"name":"DOE"}`), true))
	got, err = jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusExtracted, got.Status)
	assert.True(t, got.NeedsReview)
	assert.JSONEq(t, `{"name":"DOE"}`, string(got.ExtractedJSON))
	require.NotNil(t, got.FinishedAt)
	assert.Nil(t, got.ErrorMessage)
}

func TestExtractJobRepository_Failure(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	file, err := NewScanFileRepository(db, nil).Create(ctx, newFile("dd44", constants.License))
	require.NoError(t, err)
	jobs := NewExtractJobRepository(db, nil)

	job, err := jobs.Start(ctx, file.ID)
	require.NoError(t, err)
	require.NoError(t, jobs.FinishFailure(ctx, job.ID, "tesseract: exit status 1"))

	got, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "tesseract: exit status 1", *got.ErrorMessage)

	assert.ErrorIs(t, jobs.FinishFailure(ctx, uuid.New(), "x"), ErrNotFound)
	_, err = jobs.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocumentRepository(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	files := NewScanFileRepository(db, nil)
	jobs := NewExtractJobRepository(db, nil)
	docs := NewDocumentRepository(db, nil)

	store := func(hash string, dt constants.DocumentType, name string, review bool) *entity.Document {
		f, err := files.Create(ctx, newFile(hash, dt))
		require.NoError(t, err)
		j, err := jobs.Start(ctx, f.ID)
		require.NoError(t, err)
		d, err := docs.Upsert(ctx, &entity.Document{
			FileID:         f.ID,
			JobID:          j.ID,
			DocumentType:   dt,
			FullName:       name,
			DocumentNumber: constants.NotFound,
			ExpirationDate: "2030-11-12",
			NeedsReview:    review,
		})
		require.NoError(t, err)
		return d
	}

	p := store("p1", constants.Passport, "DOE", true)
	store("l1", constants.License, "RAHUL SHARMA", false)
	store("l2", constants.License, constants.NotFound, true)

	assert.Equal(t, "/scans/p1.jpg", p.SourcePath)
	assert.Equal(t, "p1.jpg", p.Filename)
	assert.Equal(t, constants.NotFound, p.DocumentNumber)

	all, err := docs.List(ctx, DocumentFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	for _, d := range all {
		assert.Equal(t, "/scans/"+d.Filename, d.SourcePath)
		assert.NotEmpty(t, d.Filename)
	}

	licenses, err := docs.List(ctx, DocumentFilter{DocumentType: constants.License})
	require.NoError(t, err)
	assert.Len(t, licenses, 2)
	for _, d := range licenses {
		assert.Equal(t, constants.License, d.DocumentType)
	}

	review, err := docs.List(ctx, DocumentFilter{NeedsReviewOnly: true})
	require.NoError(t, err)
	assert.Len(t, review, 2)

	limited, err := docs.List(ctx, DocumentFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestDocumentRepository_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	f, err := NewScanFileRepository(db, nil).Create(ctx, newFile("ee55", constants.Passport))
	require.NoError(t, err)
	jobs := NewExtractJobRepository(db, nil)
	docs := NewDocumentRepository(db, nil)

	j1, err := jobs.Start(ctx, f.ID)
	require.NoError(t, err)
	first, err := docs.Upsert(ctx, &entity.Document{
		FileID: f.ID, JobID: j1.ID, DocumentType: constants.Passport,
		FullName: constants.NotFound, DocumentNumber: "A1234567", ExpirationDate: constants.NotFound, NeedsReview: true,
	})
	require.NoError(t, err)

	j2, err := jobs.Start(ctx, f.ID)
	require.NoError(t, err)
	second, err := docs.Upsert(ctx, &entity.Document{
		FileID: f.ID, JobID: j2.ID, DocumentType: constants.Passport,
		FullName: "DOE", DocumentNumber: "A1234567", ExpirationDate: "2030-11-12",
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, j2.ID, second.JobID)
	assert.Equal(t, "DOE", second.FullName)
	assert.False(t, second.NeedsReview)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))

	_, err = docs.GetByFileID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

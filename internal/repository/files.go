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

type ScanFileRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.ScanFile, error)
	GetByHash(ctx context.Context, hash string) (*entity.ScanFile, error)
	Create(ctx context.Context, f *entity.ScanFile) (*entity.ScanFile, error)
	// UpsertByHash inserts f unless a file with the same content hash exists.
	// It reports true with the existing row in that case.
	UpsertByHash(ctx context.Context, f *entity.ScanFile) (*entity.ScanFile, bool, error)
}

var scanFileColumns = []string{"id", "document_type", "source_path", "filename", "file_ext", "file_size", "content_hash", "uploaded_at"}

type scanFileRepo struct {
	db     *DB
	logger *slog.Logger
}

func NewScanFileRepository(db *DB, logger *slog.Logger) ScanFileRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &scanFileRepo{db: db, logger: logger}
}

func (r *scanFileRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.ScanFile, error) {
	return r.getWhere(ctx, entsql.EQ("id", id.String()))
}

func (r *scanFileRepo) GetByHash(ctx context.Context, hash string) (*entity.ScanFile, error) {
	return r.getWhere(ctx, entsql.EQ("content_hash", hash))
}

func (r *scanFileRepo) getWhere(ctx context.Context, p *entsql.Predicate) (*entity.ScanFile, error) {
	b := r.db.builder()
	sel := b.Select(scanFileColumns...).From(b.Table("scan_files")).Where(p)
	f, err := scanFile(queryRowBuilder(ctx, r.db.SQL(), sel))
	if err != nil {
		return nil, notFound(err)
	}
	return f, nil
}

func (r *scanFileRepo) Create(ctx context.Context, f *entity.ScanFile) (*entity.ScanFile, error) {
	row := r.prepare(f)
	ins := r.db.builder().Insert("scan_files").
		Columns(scanFileColumns...).
		Values(row.ID.String(), string(row.DocumentType), row.SourcePath, row.Filename, row.FileExt, row.FileSize, row.ContentHash, formatTime(row.UploadedAt))
	if _, err := execBuilder(ctx, r.db.SQL(), ins); err != nil {
		r.logger.Error("failed to create scan file", "source_path", f.SourcePath, "filename", f.Filename, "error", err)
		return nil, fmt.Errorf("insert scan file: %w", err)
	}
	return row, nil
}

func (r *scanFileRepo) UpsertByHash(ctx context.Context, f *entity.ScanFile) (*entity.ScanFile, bool, error) {
	row := r.prepare(f)
	ins := r.db.builder().Insert("scan_files").
		Columns(scanFileColumns...).
		Values(row.ID.String(), string(row.DocumentType), row.SourcePath, row.Filename, row.FileExt, row.FileSize, row.ContentHash, formatTime(row.UploadedAt)).
		OnConflict(entsql.ConflictColumns("content_hash"), entsql.DoNothing())
	res, err := execBuilder(ctx, r.db.SQL(), ins)
	if err != nil {
		r.logger.Error("failed to upsert scan file by hash", "source_path", f.SourcePath, "filename", f.Filename, "error", err)
		return nil, false, fmt.Errorf("upsert scan file: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return row, false, nil
	}
	existing, err := r.GetByHash(ctx, row.ContentHash)
	if err != nil {
		return nil, false, fmt.Errorf("load existing scan file: %w", err)
	}
	return existing, true, nil
}

// prepare copies f and fills the ID and upload time when unset.
func (r *scanFileRepo) prepare(f *entity.ScanFile) *entity.ScanFile {
	row := *f
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.UploadedAt.IsZero() {
		row.UploadedAt = time.Now()
	}
	row.UploadedAt = row.UploadedAt.UTC().Truncate(time.Nanosecond)
	return &row
}

func scanFile(row *sql.Row) (*entity.ScanFile, error) {
	var (
		f                    entity.ScanFile
		id, docType, uploads string
	)
	if err := row.Scan(&id, &docType, &f.SourcePath, &f.Filename, &f.FileExt, &f.FileSize, &f.ContentHash, &uploads); err != nil {
		return nil, err
	}
	var err error
	if f.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse scan file id: %w", err)
	}
	if f.UploadedAt, err = parseTime(uploads); err != nil {
		return nil, err
	}
	f.DocumentType = constants.DocumentType(docType)
	return &f, nil
}

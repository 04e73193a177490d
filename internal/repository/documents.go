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

// DocumentFilter narrows ListDocuments. Zero values mean no constraint.
type DocumentFilter struct {
	DocumentType    constants.DocumentType
	NeedsReviewOnly bool
	Limit           int
}

type DocumentRepository interface {
	// Upsert stores the latest extraction for a file, replacing any earlier one.
	Upsert(ctx context.Context, d *entity.Document) (*entity.Document, error)
	GetByFileID(ctx context.Context, fileID uuid.UUID) (*entity.Document, error)
	List(ctx context.Context, filter DocumentFilter) ([]*entity.Document, error)
}

var documentColumns = []string{
	"id", "file_id", "job_id", "document_type", "full_name", "document_number",
	"expiration_date", "needs_review", "created_at", "updated_at",
}

type documentRepo struct {
	db     *DB
	logger *slog.Logger
}

func NewDocumentRepository(db *DB, logger *slog.Logger) DocumentRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &documentRepo{db: db, logger: logger}
}

func (r *documentRepo) Upsert(ctx context.Context, d *entity.Document) (*entity.Document, error) {
	now := time.Now().UTC()
	id := d.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	ins := r.db.builder().Insert("documents").
		Columns(documentColumns...).
		Values(id.String(), d.FileID.String(), d.JobID.String(), string(d.DocumentType),
			d.FullName, d.DocumentNumber, d.ExpirationDate, d.NeedsReview,
			formatTime(now), formatTime(now)).
		OnConflict(
			entsql.ConflictColumns("file_id"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				for _, c := range []string{"job_id", "document_type", "full_name", "document_number", "expiration_date", "needs_review", "updated_at"} {
					u.SetExcluded(c)
				}
			}),
		)
	if _, err := execBuilder(ctx, r.db.SQL(), ins); err != nil {
		r.logger.Error("failed to upsert document", "file_id", d.FileID, "job_id", d.JobID, "error", err)
		return nil, fmt.Errorf("upsert document: %w", err)
	}
	return r.GetByFileID(ctx, d.FileID)
}

func (r *documentRepo) GetByFileID(ctx context.Context, fileID uuid.UUID) (*entity.Document, error) {
	docs, err := r.query(ctx, func(s *entsql.Selector, t *entsql.SelectTable) {
		s.Where(entsql.EQ(t.C("file_id"), fileID.String()))
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0], nil
}

func (r *documentRepo) List(ctx context.Context, filter DocumentFilter) ([]*entity.Document, error) {
	docs, err := r.query(ctx, func(s *entsql.Selector, t *entsql.SelectTable) {
		var preds []*entsql.Predicate
		if filter.DocumentType != "" {
			preds = append(preds, entsql.EQ(t.C("document_type"), string(filter.DocumentType)))
		}
		if filter.NeedsReviewOnly {
			preds = append(preds, entsql.EQ(t.C("needs_review"), true))
		}
		if len(preds) > 0 {
			s.Where(entsql.And(preds...))
		}
		s.OrderBy(entsql.Desc(t.C("updated_at")), t.C("id"))
		if filter.Limit > 0 {
			s.Limit(filter.Limit)
		}
	})
	if err != nil {
		r.logger.Error("failed to list documents", "document_type", filter.DocumentType, "error", err)
		return nil, err
	}
	return docs, nil
}

// query selects documents joined with their source file.
func (r *documentRepo) query(ctx context.Context, shape func(*entsql.Selector, *entsql.SelectTable)) ([]*entity.Document, error) {
	b := r.db.builder()
	t := b.Table("documents")
	f := b.Table("scan_files").As("f")
	cols := make([]string, 0, len(documentColumns)+2)
	for _, c := range documentColumns {
		cols = append(cols, t.C(c))
	}
	cols = append(cols, f.C("source_path"), f.C("filename"))

	sel := b.Select(cols...).From(t)
	sel.Join(f).On(t.C("file_id"), f.C("id"))
	shape(sel, t)

	query, args := sel.Query()
	rows, err := r.db.SQL().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var out []*entity.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func scanDocument(rows *sql.Rows) (*entity.Document, error) {
	var (
		d                                      entity.Document
		id, fileID, jobID, docType, cAt, uAt string
	)
	if err := rows.Scan(&id, &fileID, &jobID, &docType, &d.FullName, &d.DocumentNumber,
		&d.ExpirationDate, &d.NeedsReview, &cAt, &uAt, &d.SourcePath, &d.Filename); err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	var err error
	if d.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse document id: %w", err)
	}
	if d.FileID, err = uuid.Parse(fileID); err != nil {
		return nil, fmt.Errorf("parse document file id: %w", err)
	}
	if d.JobID, err = uuid.Parse(jobID); err != nil {
		return nil, fmt.Errorf("parse document job id: %w", err)
	}
	if d.CreatedAt, err = parseTime(cAt); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = parseTime(uAt); err != nil {
		return nil, err
	}
	d.DocumentType = constants.DocumentType(docType)
	return &d, nil
}

package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/idscan/constants"
	"github.com/joseph-ayodele/idscan/internal/entity"
	"github.com/joseph-ayodele/idscan/internal/repository"
)

// FSIngestor reads from the local filesystem.
type FSIngestor struct {
	files  repository.ScanFileRepository
	logger *slog.Logger
}

func NewFSIngestor(files repository.ScanFileRepository, logger *slog.Logger) *FSIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSIngestor{files: files, logger: logger}
}

func (i *FSIngestor) IngestPath(ctx context.Context, docType constants.DocumentType, path string) (IngestionResult, error) {
	var out IngestionResult
	if !docType.Valid() {
		return out, fmt.Errorf("unknown document type %q", docType)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		i.logger.Error("abs path error", "path", path, "error", err)
		return out, fmt.Errorf("abs path: %w", err)
	}

	ext := constants.NormalizeExt(filepath.Ext(abs))
	if ext == "" || !AllowedExt(ext) {
		i.logger.Warn("unsupported or missing extension", "path", abs, "ext", ext)
		return out, fmt.Errorf("unsupported or missing extension: %q", ext)
	}

	hashHex, size, err := HashFile(abs)
	if err != nil {
		i.logger.Error("failed to hash file", "path", abs, "error", err)
		return out, err
	}

	row, dedup, err := i.files.UpsertByHash(ctx, &entity.ScanFile{
		DocumentType: docType,
		SourcePath:   abs,
		Filename:     filepath.Base(abs),
		FileExt:      ext,
		FileSize:     size,
		ContentHash:  hashHex,
		UploadedAt:   time.Now().UTC(),
	})
	if err != nil {
		return out, err
	}
	i.logger.Debug("file ingested", "file_id", row.ID, "path", abs, "deduplicated", dedup)

	return IngestionResult{
		SourcePath:   row.SourcePath,
		FileID:       row.ID.String(),
		DocumentType: row.DocumentType,
		Deduplicated: dedup,
		HashHex:      hashHex,
		FileExt:      row.FileExt,
		UploadedAt:   row.UploadedAt,
	}, nil
}

// IngestDirectory walks root, skips hidden entries if requested, and calls
// IngestPath for each image file. Per-file failures are recorded, not returned.
func (i *FSIngestor) IngestDirectory(ctx context.Context, docType constants.DocumentType, root string, skipHidden bool) ([]IngestionResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root_path is required")
	}

	var results []IngestionResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		r, err := i.IngestPath(ctx, docType, path)
		if err != nil {
			results = append(results, IngestionResult{SourcePath: path, DocumentType: docType, Err: err.Error()})
			stats.Failed++
			return nil
		}
		results = append(results, r)
		stats.Succeeded++
		if r.Deduplicated {
			stats.Deduplicated++
		}
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}

	i.logger.Info("directory ingested",
		"root", root,
		"document_type", string(docType),
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed)
	return results, stats, nil
}

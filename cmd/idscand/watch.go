package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/idscan/constants"
	"github.com/joseph-ayodele/idscan/internal/common"
	"github.com/joseph-ayodele/idscan/internal/core/async"
	"github.com/joseph-ayodele/idscan/internal/ingest"
)

// watchDirs ingests images dropped under the watched directories and queues
// new ones for processing. It returns when ctx is done.
func watchDirs(ctx context.Context, cfg common.WatchConfig, ing ingest.Ingestor, q async.Queue, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	docType, err := constants.ParseDocumentType(cfg.DocumentType)
	if err != nil {
		return err
	}
	paths, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       cfg.Dirs,
		InitialScan: cfg.InitialScan,
		Debounce:    cfg.Debounce,
	}, logger)
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	logger.Info("watching directories", "dirs", cfg.Dirs, "document_type", string(docType))

	for {
		select {
		case path, ok := <-paths:
			if !ok {
				return nil
			}
			r, err := ing.IngestPath(ctx, docType, path)
			if err != nil {
				logger.Warn("watch ingest failed", "path", path, "error", err)
				continue
			}
			if r.Deduplicated {
				logger.Debug("watch skipped known file", "path", path, "file_id", r.FileID)
				continue
			}
			if err := q.Enqueue(ctx, async.Job{FileID: uuid.MustParse(r.FileID), TraceID: "watch"}); err != nil {
				logger.Warn("watch enqueue failed", "path", path, "error", err)
			}
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)
		}
	}
}

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/idscan/constants"
	"github.com/joseph-ayodele/idscan/internal/app"
	"github.com/joseph-ayodele/idscan/internal/common"
	"github.com/joseph-ayodele/idscan/internal/core"
	"github.com/joseph-ayodele/idscan/internal/core/async"
	"github.com/joseph-ayodele/idscan/internal/repository"
)

type batchSummary struct {
	mu          sync.Mutex
	processed   int
	failed      int
	needsReview int
}

func (s *batchSummary) record(_ async.Job, out core.Outcome, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case err != nil:
		s.failed++
	case out.NeedsReview:
		s.needsReview++
		s.processed++
	default:
		s.processed++
	}
}

func batchCmd() *cobra.Command {
	var (
		docType    string
		dir        string
		out        string
		dsn        string
		workers    int
		skipHidden bool
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Scan every image in a directory and export the results to XLSX",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dt, err := constants.ParseDocumentType(docType)
			if err != nil {
				return err
			}
			if out == "" {
				out = filepath.Join(filepath.Dir(filepath.Clean(dir)), "documents.xlsx")
			}

			cfg := common.FromViper(v)
			cfg.Database.DSN = repository.MemoryDSN
			if dsn != "" {
				cfg.Database.DSN = dsn
			}
			if workers > 0 {
				cfg.Queue.Workers = workers
			}
			return runBatch(cmd.Context(), cfg, dt, dir, out, skipHidden, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&docType, "type", "t", "", "document type of every image in the directory")
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "directory to scan (required)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output XLSX path (default: documents.xlsx next to --dir)")
	cmd.Flags().StringVar(&dsn, "db", "", "database DSN (default: in-memory SQLite)")
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel OCR workers (default from config)")
	cmd.Flags().BoolVar(&skipHidden, "skip-hidden", true, "skip hidden files and directories")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

func runBatch(ctx context.Context, cfg *common.Config, dt constants.DocumentType, dir, out string, skipHidden bool, w io.Writer) error {
	logger := slog.Default()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	results, stats, err := a.Ingestor.IngestDirectory(ctx, dt, dir, skipHidden)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", dir, err)
	}

	var summary batchSummary
	q := async.NewProcessorQueue(a.Processor, logger,
		async.WithWorkers(cfg.Queue.Workers),
		async.WithQueueSize(cfg.Queue.Size),
		async.WithProcessTimeout(cfg.Queue.ProcessTimeout),
		async.WithCompletion(summary.record))
	for _, r := range results {
		if r.Err != "" {
			continue
		}
		if err := q.Enqueue(ctx, async.Job{FileID: uuid.MustParse(r.FileID)}); err != nil {
			logger.Warn("enqueue failed", "path", r.SourcePath, "error", err)
		}
	}
	// Drains every queued file; ctx only ends early on interrupt.
	q.Shutdown(ctx)

	xlsx, err := a.Exporter.ExportDocumentsXLSX(context.WithoutCancel(ctx), repository.DocumentFilter{DocumentType: dt})
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, xlsx, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	_, err = fmt.Fprintf(w, "matched %d, processed %d (%d need review), failed %d, ingest errors %d\nwrote %s\n",
		stats.Matched, summary.processed, summary.needsReview, summary.failed, stats.Failed, out)
	return err
}

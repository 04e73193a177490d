// Package app assembles the storage, OCR and extraction components shared by
// the command line tool and the daemon.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joseph-ayodele/idscan/internal/common"
	"github.com/joseph-ayodele/idscan/internal/core"
	"github.com/joseph-ayodele/idscan/internal/core/identity"
	"github.com/joseph-ayodele/idscan/internal/core/ocr"
	"github.com/joseph-ayodele/idscan/internal/export"
	"github.com/joseph-ayodele/idscan/internal/ingest"
	"github.com/joseph-ayodele/idscan/internal/metrics"
	"github.com/joseph-ayodele/idscan/internal/repository"
	"github.com/joseph-ayodele/idscan/internal/server"
)

type App struct {
	Config    *common.Config
	DB        *repository.DB
	Files     repository.ScanFileRepository
	Jobs      repository.ExtractJobRepository
	Documents repository.DocumentRepository
	Engine    *identity.Engine
	Processor *core.Processor
	Ingestor  *ingest.FSIngestor
	Exporter  *export.Service
	Metrics   *metrics.Metrics

	logger *slog.Logger
}

type options struct {
	recognizer core.TextExtractor
	registerer prometheus.Registerer
}

type Option func(*options)

// WithRecognizer replaces the tesseract backed OCR extractor.
func WithRecognizer(r core.TextExtractor) Option {
	return func(o *options) { o.recognizer = r }
}

// WithRegisterer enables metrics, registered on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// OCRConfig maps the OCR configuration section onto the extractor's config.
func OCRConfig(c common.OCRConfig) ocr.Config {
	return ocr.Config{
		Tesseract:           c.Tesseract,
		TesseractLang:       c.Lang,
		TessdataDir:         c.TessdataDir,
		HeicConverter:       c.HeicConverter,
		EnableTSVConfidence: c.TSVConfidence,
		PSM:                 c.PSM,
		ArtifactCacheDir:    c.ArtifactCacheDir,
	}
}

// New connects to the configured database and wires the processing stack.
func New(ctx context.Context, cfg *common.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, logger: logger}
	if o.registerer != nil {
		m, err := metrics.New(o.registerer)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		a.Metrics = m
	}

	db, err := server.ConnectDB(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	a.DB = db
	a.Files = repository.NewScanFileRepository(db, logger)
	a.Jobs = repository.NewExtractJobRepository(db, logger)
	a.Documents = repository.NewDocumentRepository(db, logger)

	recognizer := o.recognizer
	if recognizer == nil {
		recognizer = ocr.NewExtractor(OCRConfig(cfg.OCR), logger)
	}
	a.Engine = identity.NewEngine(identity.WithLogger(logger))
	a.Processor = core.NewProcessor(logger, recognizer, a.Engine, a.Files, a.Jobs, a.Documents,
		core.WithMetrics(a.Metrics),
		core.WithMinConfidence(cfg.OCR.MinConfidence))
	a.Ingestor = ingest.NewFSIngestor(a.Files, logger)
	a.Exporter = export.NewService(a.Documents, logger)
	return a, nil
}

func (a *App) Close() error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Close()
}

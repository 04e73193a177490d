package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/idscan/constants"
	"github.com/joseph-ayodele/idscan/internal/app"
	"github.com/joseph-ayodele/idscan/internal/common"
	"github.com/joseph-ayodele/idscan/internal/core"
	"github.com/joseph-ayodele/idscan/internal/core/identity"
	"github.com/joseph-ayodele/idscan/internal/core/ocr"
	"github.com/joseph-ayodele/idscan/internal/server"
)

type scanOutput struct {
	identity.Result
	NeedsReview   bool    `json:"needs_review"`
	OCRConfidence float32 `json:"ocr_confidence"`
	OCRText       string  `json:"ocr_text,omitempty"`
}

func scanCmd() *cobra.Command {
	var (
		docType  string
		showText bool
	)
	cmd := &cobra.Command{
		Use:   "scan <image>",
		Short: "Recognize an image and extract its fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dt, err := constants.ParseDocumentType(docType)
			if err != nil {
				return err
			}
			path := args[0]
			if constants.MapExtToFormat(filepath.Ext(path)) != constants.IMAGE {
				return fmt.Errorf("unsupported image type %q", filepath.Ext(path))
			}

			cfg := common.FromViper(v)
			logger := slog.Default()
			proc := core.NewProcessor(logger, ocr.NewExtractor(app.OCRConfig(cfg.OCR), logger),
				identity.NewEngine(identity.WithLogger(logger)), nil, nil, nil,
				core.WithMinConfidence(cfg.OCR.MinConfidence))

			res, ocrRes, err := proc.ScanImage(cmd.Context(), path, dt)
			if err != nil {
				logger.Error("scan failed", "path", path, "error", err)
				return fmt.Errorf("%s", server.ScanFailedMessage)
			}
			out := scanOutput{
				Result:        res,
				NeedsReview:   proc.NeedsReview(ocrRes.Confidence, res),
				OCRConfidence: ocrRes.Confidence,
			}
			if showText {
				out.OCRText = ocrRes.Text
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVarP(&docType, "type", "t", "", "document type (passport or license)")
	cmd.Flags().BoolVar(&showText, "show-text", false, "include the recognized text in the output")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

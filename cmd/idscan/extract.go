package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/idscan/constants"
	"github.com/joseph-ayodele/idscan/internal/core/identity"
)

func extractCmd() *cobra.Command {
	var (
		docType string
		file    string
	)
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract fields from already recognized text",
		Long:  "Reads recognized text from --file, or from stdin when no file is given, and prints the extracted fields as JSON.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dt, err := constants.ParseDocumentType(docType)
			if err != nil {
				return err
			}
			var r io.Reader = cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("open text: %w", err)
				}
				defer func() { _ = f.Close() }()
				r = f
			}
			raw, err := io.ReadAll(r)
			if err != nil {
				return fmt.Errorf("read text: %w", err)
			}

			res := identity.NewEngine(identity.WithLogger(slog.Default())).Extract(string(raw), dt)
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVarP(&docType, "type", "t", "", "document type (passport or license)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "text file to read (default stdin)")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

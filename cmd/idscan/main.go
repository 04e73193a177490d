package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joseph-ayodele/idscan/internal/common"
)

var (
	cfgFile string
	version = "dev"
	v       = common.NewViper()
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "idscan",
		Short: "Extract identity fields from passport and driver's license scans",
		Long: `idscan reads the recognized text of a passport or driver's license and
pulls out the holder's name, the document number and the expiration date.

Text can be given directly (extract), recognized from an image (scan), or
collected from a whole directory into a spreadsheet (batch).`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	root.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "console", "log format (console, json)")
	_ = v.BindPFlag("logging.level", root.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("logging.format", root.PersistentFlags().Lookup("log-format"))

	root.AddCommand(extractCmd())
	root.AddCommand(scanCmd())
	root.AddCommand(batchCmd())
	root.AddCommand(versionCmd())
	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	if err := common.ReadConfigFile(v, cfgFile); err != nil {
		return err
	}
	return setupLogging(v)
}

func setupLogging(v *viper.Viper) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString("logging.level"))); err != nil {
		return fmt.Errorf("invalid log level: %s", v.GetString("logging.level"))
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(v.GetString("logging.format")) {
	case "console", "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("invalid log format: %s", v.GetString("logging.format"))
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "idscan", version)
		},
	}
}

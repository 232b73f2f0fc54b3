package commands

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Version is set via ldflags during build.
var Version = "dev"

type globalOptions struct {
	logLevel string
	jsonLogs bool
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:     "reconcile",
		Short:   "Bank statement import and reconciliation",
		Version: Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", envOr("LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&opts.jsonLogs, "json-logs", false, "emit logs as JSON")

	rootCmd.AddCommand(
		newServeCommand(opts),
		newAnalyzeCommand(opts),
		newImportCommand(opts),
		newPostCommand(opts),
		newReverseCommand(opts),
		newAutoPostCommand(opts),
		newBatchesCommand(opts),
		newDeleteBatchCommand(opts),
		newBatchFileCommand(opts),
		newCounterpartiesCommand(opts),
	)

	return rootCmd
}

func (o *globalOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(o.logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	hopts := &slog.HandlerOptions{Level: level}
	if o.jsonLogs {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

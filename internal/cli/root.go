// Package cli implements the sift command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/FranksOps/sift/internal/config"
	"github.com/FranksOps/sift/internal/logging"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// SetVersionInfo records build metadata for the version command.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

type rootOptions struct {
	configPath string
	logLevel   string
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "sift",
		Short: "Collect distinct facts about a topic from the web",
		Long: "sift searches the web for a topic, renders the top pages, extracts substantive paragraphs " +
			"and removes near-duplicates using embeddings, keeping the source of every point.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (default ./sift.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	root.AddCommand(newQueryCommand(opts))
	root.AddCommand(newCacheCommand(opts))
	root.AddCommand(newVersionCommand())
	return root
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger shared by subcommands.
func (o *rootOptions) setup() (*config.Config, *slog.Logger, func() error, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	logger, closeLog, err := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, closeLog, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "sift %s (commit: %s, built: %s)\n", version, commit, date)
}

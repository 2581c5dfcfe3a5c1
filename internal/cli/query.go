package cli

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/FranksOps/sift/internal/report"
	"github.com/spf13/cobra"
)

func newQueryCommand(root *rootOptions) *cobra.Command {
	var (
		format     string
		maxResults int
		noCache    bool
		output     string
	)
	cmd := &cobra.Command{
		Use:   "query <topic...>",
		Short: "Run the pipeline for a topic and print the distinct points",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(report.Formats, format) {
				return fmt.Errorf("--format must be one of %s", strings.Join(report.Formats, ", "))
			}
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				return fmt.Errorf("empty query")
			}

			cfg, logger, closeLog, err := root.setup()
			if err != nil {
				return err
			}
			defer closeLog()
			if maxResults > 0 {
				cfg.Search.MaxResults = maxResults
			}

			ctx := cmd.Context()
			app, err := Build(ctx, cfg, logger, !noCache)
			if err != nil {
				return err
			}
			defer func() {
				if err := app.Close(ctx); err != nil {
					logger.Warn("shutdown failed", "err", err)
				}
			}()

			summary := app.Pipeline.RunReport(ctx, query)

			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				w = f
			}
			return report.Write(w, format, summary)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: "+strings.Join(report.Formats, ", "))
	cmd.Flags().IntVar(&maxResults, "max-results", 0, "number of search results to visit (overrides search.max_results)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "skip the result cache for this run")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the report to a file instead of stdout")
	return cmd
}

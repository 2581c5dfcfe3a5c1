package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/FranksOps/sift/internal/cache"
	"github.com/spf13/cobra"
)

func newCacheCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect cached query results",
	}

	var (
		limit int
		since time.Duration
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List cached queries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, closeLog, err := root.setup()
			if err != nil {
				return err
			}
			defer closeLog()

			qc, err := OpenCache(cmd.Context(), cfg.Cache)
			if err != nil {
				return err
			}
			if qc == nil {
				return fmt.Errorf("no cache configured (cache.backend is %q)", cfg.Cache.Backend)
			}
			defer qc.Close()

			filter := cache.Filter{Limit: limit}
			if since > 0 {
				t := time.Now().Add(-since)
				filter.Since = &t
			}
			entries, err := qc.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CREATED\tPOINTS\tQUERY")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", e.CreatedAt.Local().Format(time.DateTime), len(e.Results), e.Query)
			}
			return tw.Flush()
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum entries to show (0 for all)")
	list.Flags().DurationVar(&since, "since", 0, "only show entries newer than this (e.g. 24h)")

	cmd.AddCommand(list)
	return cmd
}

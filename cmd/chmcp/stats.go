package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/chmcp/companies-house-mcp/pkg/config"
	"github.com/chmcp/companies-house-mcp/pkg/tracker"
)

func newStatsCmd() *cobra.Command {
	var (
		configPath string
		since      string
		recent     int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show gateway call statistics from the call ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			var from time.Time
			if since != "" {
				from, err = time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since (use YYYY-MM-DD): %w", err)
				}
			}

			tr, err := tracker.New(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open tracker: %w", err)
			}
			defer func() { _ = tr.Close() }()

			ctx := context.Background()

			if recent > 0 {
				records, err := tr.Recent(ctx, recent)
				if err != nil {
					return err
				}
				if len(records) == 0 {
					fmt.Println("No calls recorded.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tREQUEST ID\tOPERATION\tOUTCOME\tSTATUS\tLATENCY")
				for _, r := range records {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%dms\n",
						r.CreatedAt.Local().Format("2006-01-02T15:04:05"), r.RequestID, r.Operation, r.Outcome, r.StatusCode, r.LatencyMs)
				}
				return w.Flush()
			}

			summaries, err := tr.Summary(ctx, from)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Println("No calls recorded.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "OPERATION\tCALLS\tCACHE HITS\tUPSTREAM\tERRORS\tAVG LATENCY")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%.0fms\n",
					s.Operation, s.Calls, s.CacheHits, s.Upstream, s.Errors, s.AvgLatencyMs)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&since, "since", "", "only include calls on or after this date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&recent, "recent", 0, "list the N most recent calls instead of the summary")
	return cmd
}

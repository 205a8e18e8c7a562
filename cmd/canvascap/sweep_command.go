package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"canvascapture/internal/config"
	"canvascapture/internal/logging"
	"canvascapture/internal/progress"
	"canvascapture/internal/retention"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	var threshold time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove session directories older than the retention threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if threshold <= 0 {
				threshold = cfg.RetentionThreshold()
			}

			var opts []retention.Option
			tracker, err := openDurableTracker(cfg)
			if err != nil {
				return err
			}
			if tracker != nil {
				defer tracker.Close()
				opts = append(opts, retention.WithTracker(tracker))
			}
			logger := logging.NewNop()
			if ctx.logLevel() != "" {
				if logger, err = logging.New(logging.Options{Level: ctx.logLevel(), Format: "console", OutputPaths: []string{"stderr"}}); err != nil {
					return err
				}
			}
			sweeper := retention.New(cfg.CapturesDir(), threshold, cfg.RetentionInterval(), logger, opts...)
			out := cmd.OutOrStdout()

			if dryRun {
				candidates, scanErrs := sweeper.Scan(cmd.Context())
				rows := make([][]string, 0, len(candidates))
				for _, c := range candidates {
					if !c.Expired {
						continue
					}
					rows = append(rows, []string{c.Name, humanize.Time(c.Created), c.Age.Round(time.Second).String()})
				}
				if len(rows) == 0 {
					fmt.Fprintf(out, "No sessions older than %s\n", threshold)
				} else {
					fmt.Fprintln(out, renderTable([]string{"Session", "Created", "Age"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
				}
				for _, e := range scanErrs {
					fmt.Fprintf(out, "skipped %s: %v\n", e.Path, e.Error)
				}
				return nil
			}

			result := sweeper.SweepOnce(cmd.Context())
			fmt.Fprintf(out, "Removed %d session(s), kept %d", len(result.Removed), result.Kept)
			if result.Pruned > 0 {
				fmt.Fprintf(out, ", pruned %d progress record(s)", result.Pruned)
			}
			fmt.Fprintln(out)
			for _, e := range result.Errors {
				fmt.Fprintf(out, "failed %s: %v\n", e.Path, e.Error)
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d session(s) could not be removed", len(result.Errors))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List expired sessions without removing them")
	cmd.Flags().DurationVar(&threshold, "older-than", 0, "Override retention.threshold_minutes for this sweep")
	return cmd
}

// openDurableTracker returns the sqlite tracker when configured. Memory
// tracker state lives inside the daemon and is not reachable from the CLI.
func openDurableTracker(cfg *config.Config) (progress.Tracker, error) {
	if cfg.Progress.Backend != "sqlite" {
		return nil, nil
	}
	return progress.OpenSQLite(cfg.ProgressDBPath())
}

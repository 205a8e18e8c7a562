package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"canvascapture/internal/progress"
	"canvascapture/internal/session"
)

type sessionRow struct {
	ID           string    `json:"id"`
	State        string    `json:"state"`
	Percent      int       `json:"percent"`
	Frames       int       `json:"frames"`
	CreatedAt    time.Time `json:"created_at"`
	SizeBytes    int64     `json:"size_bytes"`
	ArtifactSize int64     `json:"artifact_size_bytes,omitempty"`
	Reason       string    `json:"reason,omitempty"`
}

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List capture sessions on disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			tracker, err := openDurableTracker(cfg)
			if err != nil {
				return err
			}
			if tracker != nil {
				defer tracker.Close()
			}

			infos, err := session.NewStore(cfg.CapturesDir()).List()
			if err != nil {
				return err
			}
			rows := make([]sessionRow, 0, len(infos))
			for _, info := range infos {
				snap := progress.Snapshot{State: progress.StateOpen}
				if tracker != nil {
					if snap, err = tracker.Query(cmd.Context(), info.ID); err != nil {
						return err
					}
				}
				state := sessionState(info, snap)
				percent := snap.ClientPercent()
				if state == progress.StateDone {
					percent = 100
				}
				rows = append(rows, sessionRow{
					ID:           info.ID,
					State:        string(state),
					Percent:      percent,
					Frames:       info.FrameCount,
					CreatedAt:    info.CreatedAt,
					SizeBytes:    info.Size,
					ArtifactSize: info.ArtifactSize,
					Reason:       snap.Reason,
				})
			}

			if jsonOutput {
				return writeJSON(cmd, rows)
			}
			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "No capture sessions")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Session", "State", "Progress", "Frames", "Created", "Size"},
				sessionTableRows(rows),
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of a table")
	return cmd
}

// sessionState derives a session's state from its directory contents first
// and the tracker second.
func sessionState(info session.Info, snap progress.Snapshot) progress.State {
	if info.HasArtifact {
		return progress.StateDone
	}
	switch snap.State {
	case progress.StateRendering, progress.StateFailed:
		return snap.State
	default:
		return progress.StateOpen
	}
}

func sessionTableRows(rows []sessionRow) [][]string {
	title := cases.Title(language.English)
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		created := "unknown"
		if !row.CreatedAt.IsZero() {
			created = humanize.Time(row.CreatedAt)
		}
		pct := strconv.Itoa(row.Percent) + "%"
		if row.Percent == progress.FailedPercent {
			pct = "-"
		}
		out = append(out, []string{
			row.ID,
			title.String(row.State),
			pct,
			strconv.Itoa(row.Frames),
			created,
			humanize.Bytes(uint64(max(row.SizeBytes, 0))),
		})
	}
	return out
}

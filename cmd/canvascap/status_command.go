package main

import (
	"fmt"
	"strings"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"canvascapture/internal/config"
	"canvascapture/internal/daemonrun"
	"canvascapture/internal/preflight"
	"canvascapture/internal/session"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report daemon, directory and dependency health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			running, pid, err := daemonRunning(cfg)
			if err != nil {
				return err
			}
			checks := preflight.RunAll(cmd.Context(), cfg)
			sessions, err := session.NewStore(cfg.CapturesDir()).List()
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, struct {
					ConfigPath string             `json:"config_path"`
					Running    bool               `json:"running"`
					PID        int                `json:"pid,omitempty"`
					Bind       string             `json:"bind"`
					Sessions   int                `json:"sessions"`
					Checks     []preflight.Result `json:"checks"`
				}{ctx.configPath, running, pid, cfg.Server.Bind, len(sessions), checks})
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			lines := renderSectionHeader("Daemon", colorize)
			if running {
				detail := "listening on " + cfg.Server.Bind
				if pid > 0 {
					detail = fmt.Sprintf("pid %d, %s", pid, detail)
				}
				lines = append(lines, renderStatusLine("Daemon", statusOK, detail, colorize))
			} else {
				lines = append(lines, renderStatusLine("Daemon", statusWarn, "not running", colorize))
			}
			configDetail := ctx.configPath
			if !ctx.configExists {
				configDetail += " (defaults)"
			}
			lines = append(lines,
				renderStatusLine("Config", statusInfo, configDetail, colorize),
				renderStatusLine("Sessions", statusInfo, fmt.Sprintf("%d on disk", len(sessions)), colorize),
				renderStatusLine("Progress backend", statusInfo, cfg.Progress.Backend, colorize),
				renderStatusLine("Retention", statusInfo, retentionSummary(cfg), colorize),
				renderStatusLine("Lenient sessions", statusInfo, yesNo(cfg.Frames.LenientSessions), colorize),
				"",
			)
			lines = append(lines, renderSectionHeader("Checks", colorize)...)
			for _, check := range checks {
				kind := statusOK
				if !check.Passed {
					kind = statusError
				}
				lines = append(lines, renderStatusLine(check.Name, kind, check.Detail, colorize))
			}
			fmt.Fprintln(out, strings.Join(lines, "\n"))
			if failed := preflight.Failed(checks); len(failed) > 0 {
				return fmt.Errorf("%d check(s) failed", len(failed))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of text")
	return cmd
}

// daemonRunning probes the single-instance lock; a held lock means a daemon
// owns the captures root.
func daemonRunning(cfg *config.Config) (bool, int, error) {
	lock := flock.New(cfg.LockPath())
	acquired, err := lock.TryLock()
	if err != nil {
		return false, 0, fmt.Errorf("probe daemon lock: %w", err)
	}
	if acquired {
		_ = lock.Unlock()
		return false, 0, nil
	}
	pid, err := daemonrun.ReadPID(daemonrun.PIDPath(cfg))
	if err != nil {
		return true, 0, nil
	}
	return true, pid, nil
}

func retentionSummary(cfg *config.Config) string {
	if !cfg.Retention.Enabled {
		return "disabled"
	}
	return fmt.Sprintf("sessions older than %s, every %s", cfg.RetentionThreshold(), cfg.RetentionInterval())
}

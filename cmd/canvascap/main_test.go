package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"canvascapture/internal/preflight"
	"canvascapture/internal/progress"
	"canvascapture/internal/session"
)

func setupCLIEnv(t *testing.T) string {
	t.Helper()
	for _, key := range []string{"CANVASCAP_PORT", "CANVASCAP_RETENTION_ENABLED", "CANVASCAP_RETENTION_THRESHOLD", "CANVASCAP_DEFAULT_FPS"} {
		t.Setenv(key, "")
	}
	t.Setenv("HOME", t.TempDir())
	base := t.TempDir()
	t.Setenv("CANVASCAP_BASE_DIR", base)
	t.Chdir(t.TempDir())
	return filepath.Join(base, "captures")
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	setupCLIEnv(t)
	target := filepath.Join(t.TempDir(), "canvascap.toml")

	out, err := runCLI(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("expected target in output, got %q", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config not written: %v", err)
	}
	if _, err := runCLI(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected second init to fail without --overwrite")
	}
	if _, err := runCLI(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("init with --overwrite: %v", err)
	}
}

func TestConfigShowPrintsEffectiveValues(t *testing.T) {
	setupCLIEnv(t)
	out, err := runCLI(t, "config", "show", "--log-level", "debug")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	for _, want := range []string{"# source:", "[server]", "127.0.0.1:8080", "debug"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestInvalidLogLevelIsRejected(t *testing.T) {
	setupCLIEnv(t)
	if _, err := runCLI(t, "config", "show", "--log-level", "loud"); err == nil {
		t.Fatal("expected invalid log level to fail")
	}
}

func TestSessionsListsStoredSessions(t *testing.T) {
	root := setupCLIEnv(t)
	out, err := runCLI(t, "sessions")
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if !strings.Contains(out, "No capture sessions") {
		t.Fatalf("unexpected empty output %q", out)
	}

	store := session.NewStore(root)
	id, err := store.Create(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(session.ArtifactPath(root, id), []byte("mp4 bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err = runCLI(t, "sessions")
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "Done") {
		t.Fatalf("expected session row in output:\n%s", out)
	}

	out, err = runCLI(t, "sessions", "--json")
	if err != nil {
		t.Fatalf("sessions --json: %v", err)
	}
	var rows []sessionRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode json: %v\n%s", err, out)
	}
	if len(rows) != 1 || rows[0].ID != id || rows[0].State != "done" || rows[0].Percent != 100 {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestSweepDryRunThenRemove(t *testing.T) {
	root := setupCLIEnv(t)
	id, err := session.NewStore(root).Create(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	out, err := runCLI(t, "sweep", "--dry-run", "--older-than", "1ms")
	if err != nil {
		t.Fatalf("sweep --dry-run: %v", err)
	}
	if !strings.Contains(out, id) {
		t.Fatalf("expected %s in dry run output:\n%s", id, out)
	}
	if _, err := os.Stat(session.Dir(root, id)); err != nil {
		t.Fatalf("dry run removed the session: %v", err)
	}

	out, err = runCLI(t, "sweep", "--older-than", "1ms")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if !strings.Contains(out, "Removed 1 session(s)") {
		t.Fatalf("unexpected sweep output %q", out)
	}
	if _, err := os.Stat(session.Dir(root, id)); !os.IsNotExist(err) {
		t.Fatalf("expected session removed, got %v", err)
	}
}

func TestSweepKeepsFreshSessions(t *testing.T) {
	root := setupCLIEnv(t)
	if _, err := session.NewStore(root).Create(context.Background()); err != nil {
		t.Fatal(err)
	}
	out, err := runCLI(t, "sweep")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if !strings.Contains(out, "Removed 0 session(s), kept 1") {
		t.Fatalf("unexpected sweep output %q", out)
	}
}

func TestStatusJSONReportsStoppedDaemon(t *testing.T) {
	setupCLIEnv(t)
	out, err := runCLI(t, "status", "--json")
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var payload struct {
		Running  bool               `json:"running"`
		Sessions int                `json:"sessions"`
		Checks   []preflight.Result `json:"checks"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode status: %v\n%s", err, out)
	}
	if payload.Running || payload.Sessions != 0 || len(payload.Checks) == 0 {
		t.Fatalf("unexpected status payload: %+v", payload)
	}
}

func TestSessionState(t *testing.T) {
	tests := []struct {
		name string
		info session.Info
		snap progress.Snapshot
		want progress.State
	}{
		{"artifact wins", session.Info{HasArtifact: true}, progress.Snapshot{State: progress.StateFailed}, progress.StateDone},
		{"rendering", session.Info{}, progress.Snapshot{State: progress.StateRendering}, progress.StateRendering},
		{"failed", session.Info{}, progress.Snapshot{State: progress.StateFailed}, progress.StateFailed},
		{"done without artifact is open", session.Info{}, progress.Snapshot{State: progress.StateDone}, progress.StateOpen},
		{"unknown", session.Info{}, progress.Snapshot{}, progress.StateOpen},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := sessionState(tc.info, tc.snap); got != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestRenderTablePadsRows(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"only"}}, []columnAlignment{alignLeft, alignRight})
	if !strings.Contains(out, "only") || !strings.Contains(out, "A") {
		t.Fatalf("unexpected table:\n%s", out)
	}
	if renderTable(nil, nil, nil) != "" {
		t.Fatal("expected empty output without headers")
	}
}

func TestRenderStatusLine(t *testing.T) {
	plain := renderStatusLine("Daemon", statusWarn, "not running", false)
	if !strings.Contains(plain, "Daemon:") || !strings.Contains(plain, "[WARN] not running") {
		t.Fatalf("unexpected line %q", plain)
	}
	colored := renderStatusLine("Daemon", statusOK, "", true)
	if !strings.HasPrefix(colored, ansiGreen) || !strings.HasSuffix(colored, ansiReset) {
		t.Fatalf("expected ansi colors, got %q", colored)
	}
	if shouldColorize(&bytes.Buffer{}) {
		t.Fatal("buffers are never terminals")
	}
}

func TestLogsPrintsTrailingLines(t *testing.T) {
	setupCLIEnv(t)
	home, _ := os.UserHomeDir()
	logDir := filepath.Join(home, ".local", "share", "canvascap", "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(logDir, "canvascap.log"), []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := runCLI(t, "logs", "-n", "2")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "two\nthree\n" {
		t.Fatalf("unexpected logs output %q", out)
	}
}

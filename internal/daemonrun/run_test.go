package daemonrun

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"canvascapture/internal/config"
)

func TestPIDFileRoundTrip(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()
	path := PIDPath(&cfg)
	if filepath.Base(path) != PIDFileName {
		t.Fatalf("unexpected pid path %q", path)
	}
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	pid, err := ReadPID(path)
	if err != nil {
		t.Fatalf("ReadPID: %v", err)
	}
	if pid != os.Getpid() {
		t.Fatalf("pid %d, want %d", pid, os.Getpid())
	}
}

func TestReadPIDRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), PIDFileName)
	if err := os.WriteFile(path, []byte("abc\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadPID(path); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := ReadPID(filepath.Join(t.TempDir(), "missing.pid")); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestCheckKey(t *testing.T) {
	if got := checkKey("Captures directory"); got != "captures_directory_ok" {
		t.Fatalf("checkKey = %q", got)
	}
}

func TestRunRequiresConfig(t *testing.T) {
	if err := Run(context.Background(), nil, Options{}); err == nil {
		t.Fatal("expected error without config")
	}
}

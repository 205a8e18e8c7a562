package daemon_test

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"canvascapture/internal/config"
	"canvascapture/internal/daemon"
	"canvascapture/internal/encoder"
	"canvascapture/internal/logging"
	"canvascapture/internal/preflight"
	"canvascapture/internal/progress"
	"canvascapture/internal/testsupport"
)

type touchEncoder struct{}

func (touchEncoder) Encode(_ context.Context, job encoder.Job, report func(encoder.Update)) error {
	report(encoder.Update{Percent: 100, Stage: encoder.StageComplete})
	return os.WriteFile(job.Output, []byte("mp4"), 0o644)
}

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	d, err := daemon.New(cfg, logging.NewNop(),
		daemon.WithEncoder(touchEncoder{}),
		daemon.WithHealth(func(context.Context) []preflight.Result {
			return []preflight.Result{{Name: "stub", Passed: true}}
		}),
	)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.Address == "" || status.CapturesDir != cfg.CapturesDir() {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.LockFilePath != cfg.LockPath() {
		t.Fatalf("lock path %q, want %q", status.LockFilePath, cfg.LockPath())
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	status = d.Status(ctx)
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonLockExcludesSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newDaemon(t, cfg)
	second := newDaemon(t, cfg)

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	err := second.Start(ctx)
	if err == nil {
		t.Fatal("expected second daemon to be refused")
	}
	if !strings.Contains(err.Error(), "another canvascap daemon") {
		t.Fatalf("unexpected error: %v", err)
	}

	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("second Start after release: %v", err)
	}
}

func TestDaemonServesCaptureProtocol(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRetentionDisabled(), testsupport.WithProgressBackend("sqlite"))
	d := newDaemon(t, cfg)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	base := "http://" + d.Addr()

	resp, err := http.Get(base + "/capture")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || len(body) != 48 {
		t.Fatalf("create session: status %d body %q", resp.StatusCode, body)
	}
	if _, err := os.Stat(filepath.Join(cfg.CapturesDir(), string(body))); err != nil {
		t.Fatalf("session directory missing: %v", err)
	}
	if _, err := os.Stat(cfg.ProgressDBPath()); err != nil {
		t.Fatalf("sqlite progress database missing: %v", err)
	}

	id := string(body)
	testsupport.WriteFrames(t, filepath.Join(cfg.CapturesDir(), id), 3)
	render, err := http.Post(base+"/capture/"+id+"/render", "application/x-www-form-urlencoded", strings.NewReader("fps=30"))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	render.Body.Close()
	if render.StatusCode != http.StatusOK {
		t.Fatalf("render status %d", render.StatusCode)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(base + "/capture/" + id + "/render-progress")
		if err != nil {
			t.Fatalf("progress: %v", err)
		}
		percent, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if string(percent) == "100" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("render did not complete, last progress %q", percent)
		}
		time.Sleep(10 * time.Millisecond)
	}
	download, err := http.Get(base + "/capture/" + id + "/canvas.mp4")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	download.Body.Close()
	if download.StatusCode != http.StatusOK || download.Header.Get("Content-Type") != "video/mp4" {
		t.Fatalf("download status %d type %q", download.StatusCode, download.Header.Get("Content-Type"))
	}

	health, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", health.StatusCode)
	}

	if status := d.Status(context.Background()); status.Sessions != 1 || status.RetentionEnabled {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func getText(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return string(body)
}

func TestDaemonFailsRendersInterruptedByRestart(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRetentionDisabled(), testsupport.WithProgressBackend("sqlite"))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	id := strings.Repeat("ab", 24)
	testsupport.WriteFrames(t, filepath.Join(cfg.CapturesDir(), id), 2)

	// A previous daemon claimed the render and died at 42%.
	previous, err := progress.OpenSQLite(cfg.ProgressDBPath())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	ctx := context.Background()
	if _, err := previous.Begin(ctx, id); err != nil {
		t.Fatal(err)
	}
	if err := previous.Report(ctx, id, 42); err != nil {
		t.Fatal(err)
	}
	if err := previous.Close(); err != nil {
		t.Fatal(err)
	}

	d := newDaemon(t, cfg)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	base := "http://" + d.Addr() + "/capture/" + id

	if got := getText(t, base+"/render-progress"); got != "-1" {
		t.Fatalf("progress after restart = %q, want -1", got)
	}

	render, err := http.Post(base+"/render", "application/x-www-form-urlencoded", strings.NewReader("fps=30"))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	render.Body.Close()
	if render.StatusCode != http.StatusOK {
		t.Fatalf("render status %d", render.StatusCode)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		got := getText(t, base+"/render-progress")
		if got == "100" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("retried render did not complete, last progress %q", got)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNewRequiresConfigAndLogger(t *testing.T) {
	if _, err := daemon.New(nil, logging.NewNop()); err == nil {
		t.Fatal("expected error without config")
	}
	if _, err := daemon.New(testsupport.NewConfig(t), nil); err == nil {
		t.Fatal("expected error without logger")
	}
}

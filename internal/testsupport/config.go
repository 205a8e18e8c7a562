// Package testsupport builds isolated configurations and fixtures for tests.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"canvascapture/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test
// and an ephemeral listen port.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.BaseDir = filepath.Join(base, "data")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Server.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithProgressBackend selects the progress store.
func WithProgressBackend(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Progress.Backend = backend
	}
}

// WithRetentionDisabled turns the sweeper off.
func WithRetentionDisabled() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Retention.Enabled = false
	}
}

// WithStubbedFFmpeg writes an ffmpeg stub that answers -version and
// -encoders for libx264 and points the config at it.
func WithStubbedFFmpeg() ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := "#!/bin/sh\n" +
			"case \"$*\" in\n" +
			"  *-version*) echo 'ffmpeg version 7.1-stub' ;;\n" +
			"  *-encoders*) echo ' V....D libx264              H.264' ;;\n" +
			"esac\n" +
			"exit 0\n"
		target := filepath.Join(binDir, "ffmpeg")
		if err := os.WriteFile(target, []byte(script), 0o755); err != nil {
			b.t.Fatalf("write ffmpeg stub: %v", err)
		}
		b.cfg.Render.FFmpegBinary = target
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.BaseDir)
}

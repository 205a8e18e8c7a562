package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains storage and state directory configuration.
type Paths struct {
	BaseDir  string `toml:"base_dir"`
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Server contains HTTP listener configuration.
type Server struct {
	Bind                     string `toml:"bind"`
	Prefix                   string `toml:"prefix"`
	ReadHeaderTimeoutSeconds int    `toml:"read_header_timeout_seconds"`
	WriteTimeoutSeconds      int    `toml:"write_timeout_seconds"`
	IdleTimeoutSeconds       int    `toml:"idle_timeout_seconds"`
}

// Frames contains frame ingestion rules.
type Frames struct {
	ContentType     string `toml:"content_type"`
	Encoding        string `toml:"encoding"`
	MaxBytes        int64  `toml:"max_bytes"`
	LenientSessions bool   `toml:"lenient_sessions"`
}

// Render contains external encoder settings.
type Render struct {
	FFmpegBinary   string   `toml:"ffmpeg_binary"`
	DefaultFPS     float64  `toml:"default_fps"`
	MaxFPS         float64  `toml:"max_fps"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
	VideoCodec     string   `toml:"video_codec"`
	PixelFormat    string   `toml:"pixel_format"`
	ExtraArgs      []string `toml:"extra_args"`
}

// Progress selects the render progress store.
type Progress struct {
	Backend string `toml:"backend"`
}

// Retention contains session directory reclamation settings.
type Retention struct {
	Enabled          bool `toml:"enabled"`
	ThresholdMinutes int  `toml:"threshold_minutes"`
	IntervalMinutes  int  `toml:"interval_minutes"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for canvascap.
//
// Configuration sections by subsystem:
//   - Paths: captures root, state and log directories
//   - Server: HTTP bind address, route prefix, and timeouts
//   - Frames: upload content type, body encoding, and size limit
//   - Render: ffmpeg invocation, frame rate defaults, and timeout
//   - Progress: render progress backend
//   - Retention: sweeper threshold and interval
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Server    Server    `toml:"server"`
	Frames    Frames    `toml:"frames"`
	Render    Render    `toml:"render"`
	Progress  Progress  `toml:"progress"`
	Retention Retention `toml:"retention"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and environment overrides applied.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("canvascap.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// CapturesDir returns the root directory holding one subdirectory per session.
func (c *Config) CapturesDir() string {
	return filepath.Join(c.Paths.BaseDir, "captures")
}

// ProgressDBPath returns the sqlite database used by the durable progress backend.
func (c *Config) ProgressDBPath() string {
	return filepath.Join(c.Paths.StateDir, "progress.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "canvascapd.lock")
}

// RenderTimeout returns the hard wall-clock limit for one encoder run.
func (c *Config) RenderTimeout() time.Duration {
	return time.Duration(c.Render.TimeoutSeconds) * time.Second
}

// RetentionThreshold returns the age after which sessions are reclaimed.
func (c *Config) RetentionThreshold() time.Duration {
	return time.Duration(c.Retention.ThresholdMinutes) * time.Minute
}

// RetentionInterval returns the delay between two sweeps.
func (c *Config) RetentionInterval() time.Duration {
	return time.Duration(c.Retention.IntervalMinutes) * time.Minute
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.CapturesDir(), c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

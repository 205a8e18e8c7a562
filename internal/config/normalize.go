package config

import (
	"fmt"
	"math"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	envBaseDir            = "CANVASCAP_BASE_DIR"
	envPort               = "CANVASCAP_PORT"
	envRetentionEnabled   = "CANVASCAP_RETENTION_ENABLED"
	envRetentionThreshold = "CANVASCAP_RETENTION_THRESHOLD"
	envDefaultFPS         = "CANVASCAP_DEFAULT_FPS"
)

func (c *Config) normalize() error {
	if err := c.applyEnv(); err != nil {
		return err
	}
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizeFrames()
	c.normalizeRender()
	c.normalizeProgress()
	c.normalizeRetention()
	c.normalizeLogging()
	return nil
}

func (c *Config) applyEnv() error {
	if value, ok := lookupEnv(envBaseDir); ok {
		c.Paths.BaseDir = value
	}
	if value, ok := lookupEnv(envPort); ok {
		bind, err := replacePort(c.Server.Bind, value)
		if err != nil {
			return fmt.Errorf("%s: %w", envPort, err)
		}
		c.Server.Bind = bind
	}
	if value, ok := lookupEnv(envRetentionEnabled); ok {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: invalid boolean %q", envRetentionEnabled, value)
		}
		c.Retention.Enabled = enabled
	}
	if value, ok := lookupEnv(envRetentionThreshold); ok {
		minutes, err := parseMinutes(value)
		if err != nil {
			return fmt.Errorf("%s: %w", envRetentionThreshold, err)
		}
		c.Retention.ThresholdMinutes = minutes
	}
	if value, ok := lookupEnv(envDefaultFPS); ok {
		fps, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%s: invalid number %q", envDefaultFPS, value)
		}
		c.Render.DefaultFPS = fps
	}
	return nil
}

func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func replacePort(bind, port string) (string, error) {
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return "", fmt.Errorf("invalid port %q", port)
	}
	host := ""
	if strings.TrimSpace(bind) != "" {
		parsedHost, _, err := net.SplitHostPort(bind)
		if err != nil {
			return "", fmt.Errorf("invalid bind address %q: %w", bind, err)
		}
		host = parsedHost
	}
	return net.JoinHostPort(host, port), nil
}

// parseMinutes accepts either a bare integer (minutes) or a Go duration string
// holding a whole, positive number of minutes.
func parseMinutes(value string) (int, error) {
	if minutes, err := strconv.Atoi(value); err == nil {
		if minutes <= 0 {
			return 0, fmt.Errorf("duration %q must be at least one minute", value)
		}
		return minutes, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	if d < time.Minute || d%time.Minute != 0 {
		return 0, fmt.Errorf("duration %q must be a whole number of minutes", value)
	}
	return int(d / time.Minute), nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.BaseDir) == "" {
		c.Paths.BaseDir = defaultBaseDir
	}
	if c.Paths.BaseDir, err = expandPath(c.Paths.BaseDir); err != nil {
		return fmt.Errorf("paths.base_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultBind
	}
	prefix := strings.Trim(strings.TrimSpace(c.Server.Prefix), "/")
	if prefix != "" {
		prefix = "/" + prefix
	}
	c.Server.Prefix = prefix
	if c.Server.ReadHeaderTimeoutSeconds <= 0 {
		c.Server.ReadHeaderTimeoutSeconds = defaultReadHeaderTimeoutSeconds
	}
	if c.Server.WriteTimeoutSeconds <= 0 {
		c.Server.WriteTimeoutSeconds = defaultWriteTimeoutSeconds
	}
	if c.Server.IdleTimeoutSeconds <= 0 {
		c.Server.IdleTimeoutSeconds = defaultIdleTimeoutSeconds
	}
}

func (c *Config) normalizeFrames() {
	c.Frames.ContentType = strings.ToLower(strings.TrimSpace(c.Frames.ContentType))
	if c.Frames.ContentType == "" {
		c.Frames.ContentType = defaultFrameContentType
	}
	c.Frames.Encoding = strings.ToLower(strings.TrimSpace(c.Frames.Encoding))
	if c.Frames.Encoding == "" {
		c.Frames.Encoding = defaultFrameEncoding
	}
	if c.Frames.MaxBytes <= 0 {
		c.Frames.MaxBytes = defaultFrameMaxBytes
	}
}

func (c *Config) normalizeRender() {
	c.Render.FFmpegBinary = strings.TrimSpace(c.Render.FFmpegBinary)
	if c.Render.FFmpegBinary == "" {
		c.Render.FFmpegBinary = defaultFFmpegBinary
	}
	if c.Render.DefaultFPS <= 0 || math.IsNaN(c.Render.DefaultFPS) {
		c.Render.DefaultFPS = defaultFPS
	}
	if c.Render.MaxFPS <= 0 || math.IsNaN(c.Render.MaxFPS) {
		c.Render.MaxFPS = defaultMaxFPS
	}
	if c.Render.TimeoutSeconds <= 0 {
		c.Render.TimeoutSeconds = defaultRenderTimeoutSeconds
	}
	c.Render.VideoCodec = strings.TrimSpace(c.Render.VideoCodec)
	if c.Render.VideoCodec == "" {
		c.Render.VideoCodec = defaultVideoCodec
	}
	c.Render.PixelFormat = strings.TrimSpace(c.Render.PixelFormat)
	if c.Render.PixelFormat == "" {
		c.Render.PixelFormat = defaultPixelFormat
	}
	args := make([]string, 0, len(c.Render.ExtraArgs))
	for _, arg := range c.Render.ExtraArgs {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			args = append(args, trimmed)
		}
	}
	c.Render.ExtraArgs = args
}

func (c *Config) normalizeProgress() {
	c.Progress.Backend = strings.ToLower(strings.TrimSpace(c.Progress.Backend))
	if c.Progress.Backend == "" {
		c.Progress.Backend = defaultProgressBackend
	}
}

func (c *Config) normalizeRetention() {
	if c.Retention.ThresholdMinutes <= 0 {
		c.Retention.ThresholdMinutes = defaultRetentionMinutes
	}
	if c.Retention.IntervalMinutes <= 0 {
		c.Retention.IntervalMinutes = defaultRetentionIntervalMinutes
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

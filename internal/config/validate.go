package config

import (
	"errors"
	"fmt"
	"mime"
	"net"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateFrames(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateProgress(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateServer() error {
	if _, _, err := net.SplitHostPort(c.Server.Bind); err != nil {
		return fmt.Errorf("server.bind: %w", err)
	}
	if strings.ContainsAny(c.Server.Prefix, "{}") {
		return errors.New("server.prefix must not contain route wildcards")
	}
	return nil
}

func (c *Config) validateFrames() error {
	mediaType, _, err := mime.ParseMediaType(c.Frames.ContentType)
	if err != nil {
		return fmt.Errorf("frames.content_type: %w", err)
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return fmt.Errorf("frames.content_type must be an image type, got %q", mediaType)
	}
	switch c.Frames.Encoding {
	case "auto", "raw", "base64":
	default:
		return fmt.Errorf("frames.encoding must be one of auto, raw, base64, got %q", c.Frames.Encoding)
	}
	return nil
}

func (c *Config) validateRender() error {
	if c.Render.DefaultFPS > c.Render.MaxFPS {
		return fmt.Errorf("render.default_fps (%g) must not exceed render.max_fps (%g)", c.Render.DefaultFPS, c.Render.MaxFPS)
	}
	return nil
}

func (c *Config) validateProgress() error {
	switch c.Progress.Backend {
	case "memory", "sqlite":
		return nil
	default:
		return fmt.Errorf("progress.backend must be memory or sqlite, got %q", c.Progress.Backend)
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
}

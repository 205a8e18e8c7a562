package config

const (
	defaultConfigPath               = "~/.config/canvascap/config.toml"
	defaultBaseDir                  = "~/.local/share/canvascap"
	defaultStateDir                 = "~/.local/share/canvascap/state"
	defaultLogDir                   = "~/.local/share/canvascap/logs"
	defaultBind                     = "127.0.0.1:8080"
	defaultReadHeaderTimeoutSeconds = 5
	defaultWriteTimeoutSeconds      = 60
	defaultIdleTimeoutSeconds       = 60
	defaultFrameContentType         = "image/png"
	defaultFrameEncoding            = "auto"
	defaultFrameMaxBytes            = 16 << 20
	defaultFFmpegBinary             = "ffmpeg"
	defaultFPS                      = 60
	defaultMaxFPS                   = 240
	defaultRenderTimeoutSeconds     = 30
	defaultVideoCodec               = "libx264"
	defaultPixelFormat              = "yuv420p"
	defaultProgressBackend          = "memory"
	defaultRetentionMinutes         = 15
	defaultRetentionIntervalMinutes = 15
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			BaseDir:  defaultBaseDir,
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Server: Server{
			Bind:                     defaultBind,
			ReadHeaderTimeoutSeconds: defaultReadHeaderTimeoutSeconds,
			WriteTimeoutSeconds:      defaultWriteTimeoutSeconds,
			IdleTimeoutSeconds:       defaultIdleTimeoutSeconds,
		},
		Frames: Frames{
			ContentType: defaultFrameContentType,
			Encoding:    defaultFrameEncoding,
			MaxBytes:    defaultFrameMaxBytes,
		},
		Render: Render{
			FFmpegBinary:   defaultFFmpegBinary,
			DefaultFPS:     defaultFPS,
			MaxFPS:         defaultMaxFPS,
			TimeoutSeconds: defaultRenderTimeoutSeconds,
			VideoCodec:     defaultVideoCodec,
			PixelFormat:    defaultPixelFormat,
		},
		Progress: Progress{
			Backend: defaultProgressBackend,
		},
		Retention: Retention{
			Enabled:          true,
			ThresholdMinutes: defaultRetentionMinutes,
			IntervalMinutes:  defaultRetentionIntervalMinutes,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

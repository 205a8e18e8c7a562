package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"canvascapture/internal/config"
	"canvascapture/internal/encoder"
	"canvascapture/internal/frames"
	"canvascapture/internal/logging"
	"canvascapture/internal/preflight"
	"canvascapture/internal/progress"
	"canvascapture/internal/render"
	"canvascapture/internal/retention"
	"canvascapture/internal/server"
	"canvascapture/internal/session"
)

// Daemon owns every long-lived component and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *session.Store
	sink    *frames.Sink
	tracker progress.Tracker
	orch    *render.Orchestrator
	sweeper *retention.Sweeper
	server  *server.Server
	health  server.HealthFunc

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running          bool
	Address          string
	CapturesDir      string
	ProgressBackend  string
	LockFilePath     string
	RetentionEnabled bool
	Sessions         int
	Checks           []preflight.Result
}

// Option customizes daemon construction.
type Option func(*options)

type options struct {
	encoder encoder.Encoder
	health  server.HealthFunc
}

// WithEncoder replaces the ffmpeg encoder.
func WithEncoder(enc encoder.Encoder) Option {
	return func(o *options) {
		o.encoder = enc
	}
}

// WithHealth replaces the preflight checks served by /healthz.
func WithHealth(fn server.HealthFunc) Option {
	return func(o *options) {
		o.health = fn
	}
}

// New constructs a daemon with initialized dependencies. The progress
// backend is opened here and released by Close.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.encoder == nil {
		o.encoder = encoder.NewFFmpeg(
			encoder.WithBinary(cfg.Render.FFmpegBinary),
			encoder.WithVideoCodec(cfg.Render.VideoCodec),
			encoder.WithPixelFormat(cfg.Render.PixelFormat),
			encoder.WithExtraArgs(cfg.Render.ExtraArgs...),
		)
	}
	if o.health == nil {
		o.health = func(ctx context.Context) []preflight.Result {
			return preflight.RunAll(ctx, cfg)
		}
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	encoding, err := frames.ParseEncoding(cfg.Frames.Encoding)
	if err != nil {
		return nil, err
	}
	store := session.NewStore(cfg.CapturesDir(), session.WithLogger(logger))
	sink, err := frames.NewSink(store, frames.Options{
		ContentType:     cfg.Frames.ContentType,
		Encoding:        encoding,
		MaxBytes:        cfg.Frames.MaxBytes,
		LenientSessions: cfg.Frames.LenientSessions,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("frame sink: %w", err)
	}

	tracker, err := progress.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("progress tracker: %w", err)
	}

	orch, err := render.New(store, sink, tracker, o.encoder, render.Options{
		DefaultFPS: cfg.Render.DefaultFPS,
		MaxFPS:     cfg.Render.MaxFPS,
		Timeout:    cfg.RenderTimeout(),
	}, logger)
	if err != nil {
		_ = tracker.Close()
		return nil, fmt.Errorf("render orchestrator: %w", err)
	}

	srv, err := server.New(server.Dependencies{
		Store:    store,
		Sink:     sink,
		Renderer: orch,
		Tracker:  tracker,
		Health:   o.health,
	}, server.Options{
		Bind:              cfg.Server.Bind,
		Prefix:            cfg.Server.Prefix,
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.Server.IdleTimeoutSeconds) * time.Second,
	}, logger)
	if err != nil {
		_ = tracker.Close()
		return nil, fmt.Errorf("http server: %w", err)
	}

	sweeper := retention.New(cfg.CapturesDir(), cfg.RetentionThreshold(), cfg.RetentionInterval(), logger,
		retention.WithTracker(tracker))

	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		sink:     sink,
		tracker:  tracker,
		orch:     orch,
		sweeper:  sweeper,
		server:   srv,
		health:   o.health,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, starts the HTTP listener and, when
// retention is enabled, the sweeper.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another canvascap daemon holds %s", d.lockPath)
	}

	// Holding the lock means no other daemon owns these renders.
	reset, err := d.tracker.ResetStuck(ctx)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("reset interrupted renders: %w", err)
	}
	if reset > 0 {
		d.logger.Warn("marked interrupted renders failed",
			logging.Int("count", reset),
			logging.String(logging.FieldEventType, "renders_reset"),
			logging.String(logging.FieldErrorHint, "re-trigger the render to retry"),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.server.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start http server: %w", err)
	}
	d.cancel = cancel

	if d.cfg.Retention.Enabled {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.sweeper.Run(runCtx)
		}()
	} else {
		d.logger.Info("retention sweeper disabled",
			logging.String(logging.FieldEventType, "retention_disabled"),
		)
	}

	d.running.Store(true)
	d.logger.Info("canvascap daemon started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.server.Addr()),
		logging.String("captures_dir", d.store.Root()),
		logging.String("progress_backend", d.cfg.Progress.Backend),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop shuts down the listener, cancels running renders, stops the sweeper
// and releases the daemon lock. A stopped daemon is not restarted; build a
// new one instead.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.server.Stop()
	d.orch.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("canvascap daemon stopped",
		logging.String(logging.FieldEventType, "daemon_stopped"),
	)
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.tracker != nil {
		return d.tracker.Close()
	}
	return nil
}

// Addr returns the HTTP listener address once started.
func (d *Daemon) Addr() string {
	return d.server.Addr()
}

// LockPath returns the single-instance lock file.
func (d *Daemon) LockPath() string {
	return d.lockPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:          d.running.Load(),
		Address:          d.server.Addr(),
		CapturesDir:      d.store.Root(),
		ProgressBackend:  d.cfg.Progress.Backend,
		LockFilePath:     d.lockPath,
		RetentionEnabled: d.cfg.Retention.Enabled,
		Checks:           d.health(ctx),
	}
	if sessions, err := d.store.List(); err == nil {
		status.Sessions = len(sessions)
	} else {
		d.logger.Warn("session listing failed", logging.Error(err))
	}
	return status
}

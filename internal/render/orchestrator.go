package render

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"canvascapture/internal/encoder"
	"canvascapture/internal/fileutil"
	"canvascapture/internal/frames"
	"canvascapture/internal/logging"
	"canvascapture/internal/progress"
	"canvascapture/internal/services"
	"canvascapture/internal/session"
)

// Outcome describes what a render trigger did.
type Outcome string

const (
	OutcomeAccepted         Outcome = "accepted"
	OutcomeAlreadyRendering Outcome = "already_rendering"
	OutcomeAlreadyDone      Outcome = "already_done"
)

// ErrStopped is returned by Start after Stop has been called.
var ErrStopped = errors.New("render orchestrator stopped")

// Options holds render tuning.
type Options struct {
	DefaultFPS float64
	MaxFPS     float64
	Timeout    time.Duration
}

// Orchestrator schedules renders. It owns the goroutines it starts; Stop
// cancels them and waits for their cleanup.
type Orchestrator struct {
	store   *session.Store
	sink    *frames.Sink
	tracker progress.Tracker
	encoder encoder.Encoder
	opts    Options
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// New wires an orchestrator. All collaborators are required.
func New(store *session.Store, sink *frames.Sink, tracker progress.Tracker, enc encoder.Encoder, opts Options, logger *slog.Logger) (*Orchestrator, error) {
	if store == nil || sink == nil || tracker == nil || enc == nil {
		return nil, services.Wrap(services.ErrConfiguration, "render", "init", "store, sink, tracker and encoder are required", nil)
	}
	if opts.DefaultFPS <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "render", "init", "default fps must be positive", nil)
	}
	if opts.Timeout <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "render", "init", "timeout must be positive", nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		store:   store,
		sink:    sink,
		tracker: tracker,
		encoder: enc,
		opts:    opts,
		logger:  logging.NewComponentLogger(logger, "render"),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start triggers a render of id at fps and returns without waiting for it.
// Repeated triggers never restart or abort running work.
func (o *Orchestrator) Start(ctx context.Context, id string, fps float64) (Outcome, error) {
	if err := session.Validate(id); err != nil {
		return "", err
	}
	exists, err := o.store.Exists(id)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", services.Wrap(services.ErrNotFound, "render", "start", "session "+id, nil)
	}
	if _, err := os.Stat(session.ArtifactPath(o.store.Root(), id)); err == nil {
		return OutcomeAlreadyDone, nil
	}
	snap, err := o.tracker.Query(ctx, id)
	if err != nil {
		return "", services.Wrap(services.ErrStorage, "render", "start", "query progress", err)
	}
	if outcome, busy := outcomeFor(snap.State); busy {
		return outcome, nil
	}

	snapshot, err := o.sink.List(ctx, id)
	if err != nil {
		return "", err
	}
	if len(snapshot) == 0 {
		return "", services.Wrap(services.ErrValidation, "render", "start", "session has no frames", nil)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return "", ErrStopped
	}
	claimed, err := o.tracker.Begin(ctx, id)
	if err != nil {
		return "", services.Wrap(services.ErrStorage, "render", "start", "claim session", err)
	}
	if !claimed {
		snap, err := o.tracker.Query(ctx, id)
		if err != nil {
			return "", services.Wrap(services.ErrStorage, "render", "start", "query progress", err)
		}
		if outcome, busy := outcomeFor(snap.State); busy {
			return outcome, nil
		}
		return OutcomeAlreadyRendering, nil
	}

	fps = NormalizeFPS(fps, o.opts.DefaultFPS, o.opts.MaxFPS)
	names := make([]string, len(snapshot))
	for i, frame := range snapshot {
		names[i] = frame.Name
	}

	o.wg.Add(1)
	go o.run(id, names, fps)
	return OutcomeAccepted, nil
}

func outcomeFor(state progress.State) (Outcome, bool) {
	switch state {
	case progress.StateRendering:
		return OutcomeAlreadyRendering, true
	case progress.StateDone:
		return OutcomeAlreadyDone, true
	default:
		return "", false
	}
}

func (o *Orchestrator) run(id string, names []string, fps float64) {
	defer o.wg.Done()

	ctx, cancel := context.WithTimeout(services.WithSessionID(o.ctx, id), o.opts.Timeout)
	defer cancel()
	logger := logging.WithContext(ctx, o.logger)

	root := o.store.Root()
	partial := session.PartialPath(root, id)
	artifact := session.ArtifactPath(root, id)
	_ = os.Remove(partial)

	logger.Info("render started",
		logging.Int("frames", len(names)),
		logging.Float64("fps", fps),
		logging.Duration("timeout", o.opts.Timeout),
		logging.String(logging.FieldEventType, "render_started"),
	)
	started := time.Now()

	sampler := logging.NewProgressSampler(10)
	job := encoder.Job{Dir: session.Dir(root, id), Frames: names, FPS: fps, Output: partial}
	err := o.encoder.Encode(ctx, job, func(update encoder.Update) {
		if reportErr := o.tracker.Report(ctx, id, update.Percent); reportErr != nil {
			logger.Debug("progress update not stored", logging.Error(reportErr))
		}
		if sampler.ShouldLog(update.Percent, update.Stage) {
			logger.Info("render progress",
				logging.Float64("percent", update.Percent),
				logging.Int("frame", update.Frame),
				logging.String("stage", update.Stage),
			)
		}
	})
	if err == nil {
		if publishErr := fileutil.Publish(partial, artifact); publishErr != nil {
			err = services.Wrap(services.ErrStorage, "render", "publish artifact", "", publishErr)
		}
	}

	// Terminal writes must land even when the render context is done.
	final := context.WithoutCancel(ctx)
	if err != nil {
		o.fail(final, logger, id, partial, err)
		return
	}
	if completeErr := o.tracker.Complete(final, id); completeErr != nil {
		logging.ErrorWithContext(logger, "failed to record render completion", "render_complete_failed",
			logging.Error(completeErr),
			logging.String(logging.FieldErrorHint, "check progress backend"),
		)
	}
	logger.Info("render finished",
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldEventType, "render_completed"),
	)

	removed, cleanErr := o.sink.Clean(final, id)
	if cleanErr != nil {
		logging.WarnWithContext(logger, "frame cleanup incomplete", "frame_cleanup_failed",
			logging.Int("removed", removed),
			logging.Error(cleanErr),
			logging.String(logging.FieldErrorHint, "check session directory permissions"),
			logging.String(logging.FieldImpact, "frames linger until the sweeper removes the session"),
		)
	}
}

func (o *Orchestrator) fail(ctx context.Context, logger *slog.Logger, id, partial string, cause error) {
	if err := os.Remove(partial); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("failed to remove partial output", logging.Error(err))
	}
	reason := cause.Error()
	if errors.Is(o.ctx.Err(), context.Canceled) {
		reason = fmt.Sprintf("render cancelled by shutdown: %s", reason)
	}
	if err := o.tracker.Fail(ctx, id, reason); err != nil {
		logger.Warn("failed to record render failure", logging.Error(err))
	}
	logging.ErrorWithContext(logger, "render failed", "render_failed",
		logging.Error(cause),
		logging.String("error_kind", services.Kind(cause)),
		logging.String(logging.FieldErrorHint, "check ffmpeg output and frame files; the render can be retried"),
	)
}

// Wait blocks until every started render has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Stop refuses new renders, cancels running ones and waits for them.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.stopped = true
	o.mu.Unlock()
	o.cancel()
	o.wg.Wait()
}

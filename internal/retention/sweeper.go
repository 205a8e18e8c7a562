package retention

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"canvascapture/internal/fileutil"
	"canvascapture/internal/logging"
	"canvascapture/internal/progress"
)

// Result contains the outcome of one sweep.
type Result struct {
	Removed []string
	Kept    int
	Errors  []SweepError
	Pruned  int
}

// SweepError pairs a directory path with its removal error.
type SweepError struct {
	Path  string
	Error error
}

// Candidate is a directory considered by a sweep.
type Candidate struct {
	Name    string
	Path    string
	Created time.Time
	Age     time.Duration
	Expired bool
}

// Sweeper removes expired session directories below root.
type Sweeper struct {
	root      string
	threshold time.Duration
	interval  time.Duration
	tracker   progress.Tracker
	logger    *slog.Logger
	now       func() time.Time
	created   func(path string) (time.Time, error)
}

// Option customizes a Sweeper.
type Option func(*Sweeper)

// WithTracker forgets tracker records of swept sessions and prunes stale ones.
func WithTracker(tracker progress.Tracker) Option {
	return func(s *Sweeper) { s.tracker = tracker }
}

// WithClock overrides the time source used to compute ages.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a sweeper for root.
func New(root string, threshold, interval time.Duration, logger *slog.Logger, opts ...Option) *Sweeper {
	s := &Sweeper{
		root:      strings.TrimSpace(root),
		threshold: threshold,
		interval:  interval,
		logger:    logging.NewComponentLogger(logger, "retention"),
		now:       time.Now,
		created:   fileutil.CreatedTime,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan lists sweepable directories with their ages without removing anything.
func (s *Sweeper) Scan(ctx context.Context) ([]Candidate, []SweepError) {
	if s.root == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, []SweepError{{Path: s.root, Error: err}}
	}

	now := s.now()
	var (
		candidates []Candidate
		errs       []SweepError
	)
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dirPath := filepath.Join(s.root, entry.Name())
		created, err := s.created(dirPath)
		if err != nil {
			if !os.IsNotExist(err) {
				errs = append(errs, SweepError{Path: dirPath, Error: err})
			}
			continue
		}
		age := now.Sub(created)
		candidates = append(candidates, Candidate{
			Name:    entry.Name(),
			Path:    dirPath,
			Created: created,
			Age:     age,
			Expired: age > s.threshold,
		})
	}
	return candidates, errs
}

// SweepOnce removes every expired directory and returns what happened.
func (s *Sweeper) SweepOnce(ctx context.Context) Result {
	candidates, errs := s.Scan(ctx)
	result := Result{Errors: errs}

	for _, c := range candidates {
		if !c.Expired {
			result.Kept++
			continue
		}
		if err := os.RemoveAll(c.Path); err != nil {
			result.Errors = append(result.Errors, SweepError{Path: c.Path, Error: err})
			logging.WarnWithContext(s.logger, "failed to remove expired session directory", "session_sweep_failed",
				logging.String("path", c.Path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check captures directory permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, c.Path)
		s.logger.Info("removed expired session directory",
			logging.String(logging.FieldSessionID, c.Name),
			logging.Duration("age", c.Age.Round(time.Second)),
			logging.String(logging.FieldEventType, "session_swept"),
		)
		if s.tracker != nil {
			if err := s.tracker.Forget(ctx, c.Name); err != nil {
				s.logger.Debug("tracker forget failed", logging.String(logging.FieldSessionID, c.Name), logging.Error(err))
			}
		}
	}

	if s.tracker != nil {
		pruned, err := s.tracker.Prune(ctx, s.now().Add(-s.threshold))
		if err != nil {
			s.logger.Warn("progress prune failed", logging.Error(err))
		}
		result.Pruned = pruned
	}
	return result
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	interval := s.interval
	if interval <= 0 {
		interval = s.threshold
	}
	if interval <= 0 {
		s.logger.Warn("retention sweeper disabled: no interval configured")
		return
	}

	s.logger.Info("retention sweeper started",
		logging.String("root", s.root),
		logging.Duration("threshold", s.threshold),
		logging.Duration("interval", interval),
	)
	s.sweepAndLog(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepAndLog(ctx)
		}
	}
}

func (s *Sweeper) sweepAndLog(ctx context.Context) {
	result := s.SweepOnce(ctx)
	if len(result.Removed) == 0 && len(result.Errors) == 0 {
		s.logger.Debug("sweep found nothing to remove", logging.Int("kept", result.Kept))
		return
	}
	s.logger.Info("sweep complete",
		logging.Int("removed", len(result.Removed)),
		logging.Int("kept", result.Kept),
		logging.Int("errors", len(result.Errors)),
		logging.Int("pruned", result.Pruned),
		logging.String(logging.FieldEventType, "sweep_complete"),
	)
}

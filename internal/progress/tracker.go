package progress

import (
	"context"
	"fmt"
	"math"
	"time"

	"canvascapture/internal/config"
)

// State is the render lifecycle position of a session.
type State string

const (
	StateOpen      State = "open"
	StateRendering State = "rendering"
	StateDone      State = "done"
	StateFailed    State = "failed"
	StateExpired   State = "expired"
)

// FailedPercent is reported to clients for failed renders.
const FailedPercent = -1

// InterruptedReason is recorded for renders that were running when the
// owning daemon went away.
const InterruptedReason = "interrupted by restart"

// Snapshot is the tracker's view of one session.
type Snapshot struct {
	State     State
	Percent   int
	Reason    string
	UpdatedAt time.Time
}

// ClientPercent is the value the progress endpoint returns. A render that is
// still running never reads 100, since clients download as soon as they see it.
func (s Snapshot) ClientPercent() int {
	switch s.State {
	case StateFailed:
		return FailedPercent
	case StateDone:
		return 100
	case StateRendering:
		return min(s.Percent, 99)
	default:
		return s.Percent
	}
}

// Tracker stores render progress. Implementations are safe for concurrent use.
type Tracker interface {
	// Begin claims id for rendering. It returns false when a render is
	// already running or has completed.
	Begin(ctx context.Context, id string) (bool, error)
	// Report records percent for a rendering session; lower values are ignored.
	Report(ctx context.Context, id string, percent float64) error
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id string, reason string) error
	// Query returns an open snapshot with percent 0 for unknown sessions.
	Query(ctx context.Context, id string) (Snapshot, error)
	Forget(ctx context.Context, id string) error
	// Prune drops records last updated before cutoff.
	Prune(ctx context.Context, cutoff time.Time) (int, error)
	// ResetStuck marks every rendering record failed with InterruptedReason
	// so the session reports failure and may be rendered again.
	ResetStuck(ctx context.Context) (int, error)
	Close() error
}

// New selects a backend from configuration.
func New(cfg *config.Config) (Tracker, error) {
	switch cfg.Progress.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQLite(cfg.ProgressDBPath())
	default:
		return nil, fmt.Errorf("unknown progress backend %q", cfg.Progress.Backend)
	}
}

func clampPercent(percent float64) int {
	if math.IsNaN(percent) || percent <= 0 {
		return 0
	}
	if percent >= 100 {
		return 100
	}
	return int(percent)
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

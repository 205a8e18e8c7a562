// Package encoder drives the external video encoder that turns a session's
// frame snapshot into an mp4.
package encoder

import (
	"context"
	"fmt"
	"strings"

	"canvascapture/internal/services"
)

// Job describes one render. Frames are file names inside Dir in playback
// order; Output is the path the encoder writes to.
type Job struct {
	Dir    string
	Frames []string
	FPS    float64
	Output string
}

// Update is a progress sample emitted while encoding.
type Update struct {
	Percent float64
	Frame   int
	Stage   string
}

const (
	StageEncoding = "encoding"
	StageComplete = "complete"
)

// Encoder renders a Job. Implementations report progress through the callback
// and return only after the output is complete or the attempt has failed.
type Encoder interface {
	Encode(ctx context.Context, job Job, progress func(Update)) error
}

// Validate checks the fields every encoder relies on.
func (j Job) Validate() error {
	switch {
	case strings.TrimSpace(j.Dir) == "":
		return services.Wrap(services.ErrValidation, "encoder", "validate job", "directory required", nil)
	case strings.TrimSpace(j.Output) == "":
		return services.Wrap(services.ErrValidation, "encoder", "validate job", "output path required", nil)
	case len(j.Frames) == 0:
		return services.Wrap(services.ErrValidation, "encoder", "validate job", "no frames", nil)
	case !(j.FPS > 0):
		return services.Wrap(services.ErrValidation, "encoder", "validate job", fmt.Sprintf("invalid fps %v", j.FPS), nil)
	}
	return nil
}

package encoder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"canvascapture/internal/services"
)

var commandContext = exec.CommandContext

const (
	defaultBinary      = "ffmpeg"
	defaultVideoCodec  = "libx264"
	defaultPixelFormat = "yuv420p"
	stderrTailBytes    = 4 << 10

	// ConcatListName is written next to the frames for the duration of a run.
	ConcatListName = "frames.ffconcat"
)

// Option configures the FFmpeg encoder.
type Option func(*FFmpeg)

// WithBinary overrides the ffmpeg executable.
func WithBinary(binary string) Option {
	return func(f *FFmpeg) {
		if binary = strings.TrimSpace(binary); binary != "" {
			f.binary = binary
		}
	}
}

// WithVideoCodec overrides the -c:v value.
func WithVideoCodec(codec string) Option {
	return func(f *FFmpeg) {
		if codec = strings.TrimSpace(codec); codec != "" {
			f.videoCodec = codec
		}
	}
}

// WithPixelFormat overrides the -pix_fmt value.
func WithPixelFormat(format string) Option {
	return func(f *FFmpeg) {
		if format = strings.TrimSpace(format); format != "" {
			f.pixelFormat = format
		}
	}
}

// WithExtraArgs inserts additional output options before the output path.
func WithExtraArgs(args ...string) Option {
	return func(f *FFmpeg) {
		f.extraArgs = append([]string(nil), args...)
	}
}

// FFmpeg encodes frame sequences with the ffmpeg concat demuxer.
type FFmpeg struct {
	binary      string
	videoCodec  string
	pixelFormat string
	extraArgs   []string
}

// NewFFmpeg constructs an encoder using defaults.
func NewFFmpeg(opts ...Option) *FFmpeg {
	f := &FFmpeg{
		binary:      defaultBinary,
		videoCodec:  defaultVideoCodec,
		pixelFormat: defaultPixelFormat,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Binary returns the configured executable name.
func (f *FFmpeg) Binary() string {
	return f.binary
}

func (f *FFmpeg) args(listPath string, job Job) []string {
	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-loglevel", "error",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-r", strconv.FormatFloat(job.FPS, 'f', -1, 64),
		"-c:v", f.videoCodec,
		"-pix_fmt", f.pixelFormat,
		"-movflags", "+faststart",
		"-progress", "pipe:1", "-nostats",
	}
	args = append(args, f.extraArgs...)
	return append(args, "-f", "mp4", job.Output)
}

// Encode runs ffmpeg over job's frames and blocks until it exits.
func (f *FFmpeg) Encode(ctx context.Context, job Job, progress func(Update)) error {
	if err := job.Validate(); err != nil {
		return err
	}

	listPath := filepath.Join(job.Dir, ConcatListName)
	if err := writeConcatList(listPath, job.Frames, job.FPS); err != nil {
		return services.Wrap(services.ErrStorage, "encoder", "write concat list", listPath, err)
	}
	defer os.Remove(listPath)

	cmd := commandContext(ctx, f.binary, f.args(listPath, job)...) //nolint:gosec
	cmd.Dir = job.Dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "encoder", "stdout pipe", "", err)
	}
	stderr := &tailBuffer{limit: stderrTailBytes}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return services.Wrap(services.ErrExternalTool, "encoder", "start ffmpeg", f.binary, err)
	}

	ended := readProgress(stdout, len(job.Frames), progress)

	waitErr := cmd.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return services.Wrap(services.ErrTimeout, "encoder", "encode", "ffmpeg did not finish in time", ctxErr)
		}
		return ctxErr
	}
	if waitErr != nil {
		return services.Wrap(services.ErrExternalTool, "encoder", "encode", stderr.Summary(), waitErr)
	}
	if _, err := os.Stat(job.Output); err != nil {
		return services.Wrap(services.ErrExternalTool, "encoder", "encode", "ffmpeg exited without output", err)
	}
	if !ended && progress != nil {
		progress(Update{Percent: 100, Frame: len(job.Frames), Stage: StageComplete})
	}
	return nil
}

// readProgress consumes -progress key=value blocks. It reports whether the
// stream ended with progress=end.
func readProgress(r io.Reader, total int, progress func(Update)) bool {
	emit := func(u Update) {
		if progress != nil {
			progress(u)
		}
	}
	scanner := bufio.NewScanner(r)
	frame := 0
	ended := false
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "frame":
			if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				frame = n
			}
		case "progress":
			if value == "end" {
				ended = true
				emit(Update{Percent: 100, Frame: frame, Stage: StageComplete})
				continue
			}
			emit(Update{Percent: framePercent(frame, total), Frame: frame, Stage: StageEncoding})
		}
	}
	_, _ = io.Copy(io.Discard, r)
	return ended
}

func framePercent(frame, total int) float64 {
	if total <= 0 || frame <= 0 {
		return 0
	}
	percent := float64(frame) * 100 / float64(total)
	if percent > 100 {
		return 100
	}
	return percent
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

// Summary returns the captured output collapsed onto one line.
func (t *tailBuffer) Summary() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	text := strings.Join(strings.Fields(string(t.buf)), " ")
	if text == "" {
		return "ffmpeg exited with an error"
	}
	return fmt.Sprintf("ffmpeg: %s", text)
}

var _ Encoder = (*FFmpeg)(nil)

package frames

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"canvascapture/internal/fileutil"
	"canvascapture/internal/logging"
	"canvascapture/internal/services"
	"canvascapture/internal/session"
)

var (
	// ErrContentType marks bodies whose media type is not the configured one.
	ErrContentType = errors.New("unsupported frame content type")
	// ErrTooLarge marks bodies over the configured size limit.
	ErrTooLarge = errors.New("frame too large")
)

// Options configures a Sink.
type Options struct {
	ContentType     string
	Encoding        Encoding
	MaxBytes        int64
	LenientSessions bool
}

// Frame is one stored frame file.
type Frame struct {
	Index int
	Name  string
	Path  string
	Size  int64
}

// Sink persists frames into session directories.
type Sink struct {
	store   *session.Store
	opts    Options
	logger  *slog.Logger
	maxRead int64
}

// NewSink returns a sink writing into store's captures root.
func NewSink(store *session.Store, opts Options, logger *slog.Logger) (*Sink, error) {
	if store == nil {
		return nil, services.Wrap(services.ErrConfiguration, "frames", "init", "session store is required", nil)
	}
	mediaType, _, err := mime.ParseMediaType(opts.ContentType)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "frames", "init", "content type", err)
	}
	opts.ContentType = mediaType
	if opts.Encoding == "" {
		opts.Encoding = EncodingAuto
	}
	if opts.MaxBytes <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "frames", "init", "max bytes must be positive", nil)
	}
	return &Sink{
		store:   store,
		opts:    opts,
		logger:  logging.NewComponentLogger(logger, "frames"),
		maxRead: opts.MaxBytes + 1,
	}, nil
}

// ParseIndex converts a path segment into a frame index.
func ParseIndex(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, services.Wrap(services.ErrValidation, "frames", "parse index", "empty index", nil)
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] < '0' || raw[i] > '9' {
			return 0, services.Wrap(services.ErrValidation, "frames", "parse index",
				fmt.Sprintf("index %q is not a non-negative integer", raw), nil)
		}
	}
	index, err := strconv.Atoi(raw)
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "frames", "parse index", "index out of range", err)
	}
	return index, nil
}

// Accept validates and stores one frame. Nothing is written unless the media
// type matches, the session is usable, and the whole body fits the limit.
func (s *Sink) Accept(ctx context.Context, id string, index int, body io.Reader, contentType string) error {
	if err := session.Validate(id); err != nil {
		return err
	}
	if index < 0 {
		return services.Wrap(services.ErrValidation, "frames", "accept", "negative frame index", nil)
	}
	if !s.matchesContentType(contentType) {
		return fmt.Errorf("%w: got %q, want %q", ErrContentType, contentType, s.opts.ContentType)
	}

	exists, err := s.store.Exists(id)
	if err != nil {
		return err
	}
	if !exists {
		if !s.opts.LenientSessions {
			return services.Wrap(services.ErrNotFound, "frames", "accept", "session "+id, nil)
		}
		if err := s.store.Ensure(id); err != nil {
			return err
		}
		s.logger.Debug("recreated session directory for frame upload",
			logging.String(logging.FieldSessionID, id),
			logging.String(logging.FieldEventType, "session_recreated"),
		)
	}

	raw, err := io.ReadAll(io.LimitReader(body, s.maxRead))
	if err != nil {
		return services.Wrap(services.ErrValidation, "frames", "accept", "read body", err)
	}
	if int64(len(raw)) > s.opts.MaxBytes {
		return fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, s.opts.MaxBytes)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := decodeBody(s.opts.Encoding, raw)
	if err != nil {
		return services.Wrap(services.ErrValidation, "frames", "accept", "decode body", err)
	}

	dir := session.Dir(s.store.Root(), id)
	if _, err := fileutil.WriteFileAtomic(dir, session.FrameName(index), bytes.NewReader(data), 0o644); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrNotFound, "frames", "accept", "session removed during upload", err)
		}
		return services.Wrap(services.ErrStorage, "frames", "accept", "write frame", err)
	}
	return nil
}

func (s *Sink) matchesContentType(header string) bool {
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return false
	}
	return strings.EqualFold(mediaType, s.opts.ContentType)
}

// List returns the frames of id sorted by index.
func (s *Sink) List(ctx context.Context, id string) ([]Frame, error) {
	if err := session.Validate(id); err != nil {
		return nil, err
	}
	dir := session.Dir(s.store.Root(), id)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "frames", "list", "session "+id, nil)
		}
		return nil, services.Wrap(services.ErrStorage, "frames", "list", "read session directory", err)
	}
	frames := make([]Frame, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		index, ok := session.ParseFrameName(entry.Name())
		if !ok {
			continue
		}
		frame := Frame{Index: index, Name: entry.Name(), Path: filepath.Join(dir, entry.Name())}
		if info, err := entry.Info(); err == nil {
			frame.Size = info.Size()
		}
		frames = append(frames, frame)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].Index < frames[j].Index })
	return frames, nil
}

// Count returns the number of stored frames for id.
func (s *Sink) Count(ctx context.Context, id string) (int, error) {
	frames, err := s.List(ctx, id)
	if err != nil {
		return 0, err
	}
	return len(frames), nil
}

// Clean removes every frame file of id. It keeps going past individual
// failures and returns them joined.
func (s *Sink) Clean(ctx context.Context, id string) (int, error) {
	frames, err := s.List(ctx, id)
	if err != nil {
		return 0, err
	}
	removed := 0
	var errs []error
	for _, frame := range frames {
		if err := os.Remove(frame.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if len(errs) > 0 {
		return removed, services.Wrap(services.ErrStorage, "frames", "clean",
			fmt.Sprintf("%d frame(s) not removed", len(errs)), errors.Join(errs...))
	}
	return removed, nil
}

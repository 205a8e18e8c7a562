package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"canvascapture/internal/fileutil"
	"canvascapture/internal/logging"
	"canvascapture/internal/services"
)

const createAttempts = 3

// Info summarizes a session directory for listings and state derivation.
type Info struct {
	ID           string
	Dir          string
	CreatedAt    time.Time
	FrameCount   int
	HasArtifact  bool
	ArtifactSize int64
	Size         int64
}

// Store allocates session ids and exposes the captures root layout.
type Store struct {
	root   string
	random io.Reader
	logger *slog.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithRandom replaces the entropy source used for new ids.
func WithRandom(r io.Reader) Option {
	return func(s *Store) {
		if r != nil {
			s.random = r
		}
	}
}

// WithLogger attaches a logger to the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logging.NewComponentLogger(logger, "session")
		}
	}
}

// NewStore returns a store rooted at the captures directory.
func NewStore(root string, opts ...Option) *Store {
	s := &Store{
		root:   root,
		random: rand.Reader,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the captures root.
func (s *Store) Root() string {
	return s.root
}

// Create allocates a new session id and its directory.
func (s *Store) Create(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return "", services.Wrap(services.ErrStorage, "session", "create", "ensure captures root", err)
	}
	raw := make([]byte, IDBytes)
	for attempt := 0; attempt < createAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if _, err := io.ReadFull(s.random, raw); err != nil {
			return "", services.Wrap(services.ErrStorage, "session", "create", "read entropy", err)
		}
		id := encodeID(raw)
		err := os.Mkdir(Dir(s.root, id), 0o755)
		if err == nil {
			s.logger.Info("session created",
				logging.String(logging.FieldSessionID, id),
				logging.String(logging.FieldEventType, "session_created"),
			)
			return id, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", services.Wrap(services.ErrStorage, "session", "create", "make session directory", err)
		}
	}
	return "", services.Wrap(services.ErrConflict, "session", "create",
		fmt.Sprintf("id collision after %d attempts", createAttempts), nil)
}

// Exists reports whether id names a live session directory.
func (s *Store) Exists(id string) (bool, error) {
	if err := Validate(id); err != nil {
		return false, err
	}
	info, err := os.Stat(Dir(s.root, id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, services.Wrap(services.ErrStorage, "session", "exists", "stat session directory", err)
	}
	return info.IsDir(), nil
}

// Ensure recreates the directory of a well-formed id when it is missing.
// Concurrent callers all succeed.
func (s *Store) Ensure(id string) error {
	if err := Validate(id); err != nil {
		return err
	}
	if err := os.MkdirAll(Dir(s.root, id), 0o755); err != nil {
		return services.Wrap(services.ErrStorage, "session", "ensure", "make session directory", err)
	}
	return nil
}

// Info describes a single session. Missing sessions return ErrNotFound.
func (s *Store) Info(id string) (Info, error) {
	if err := Validate(id); err != nil {
		return Info{}, err
	}
	return s.describe(id)
}

func (s *Store) describe(id string) (Info, error) {
	dir := Dir(s.root, id)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Info{}, services.Wrap(services.ErrNotFound, "session", "info", "session "+id, nil)
		}
		return Info{}, services.Wrap(services.ErrStorage, "session", "info", "read session directory", err)
	}
	info := Info{ID: id, Dir: dir}
	if created, err := fileutil.CreatedTime(dir); err == nil {
		info.CreatedAt = created
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		info.Size += fi.Size()
		if name == ArtifactName {
			info.HasArtifact = true
			info.ArtifactSize = fi.Size()
			continue
		}
		if _, ok := ParseFrameName(name); ok {
			info.FrameCount++
		}
	}
	return info, nil
}

// List describes every session below the root, oldest first. Entries that
// are not session directories are ignored.
func (s *Store) List() ([]Info, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrStorage, "session", "list", "read captures root", err)
	}
	sessions := make([]Info, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || strings.HasPrefix(name, ".") || Validate(name) != nil {
			continue
		}
		info, err := s.describe(name)
		if err != nil {
			continue
		}
		sessions = append(sessions, info)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions, nil
}

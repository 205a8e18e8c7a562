package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"canvascapture/internal/frames"
	"canvascapture/internal/logging"
	"canvascapture/internal/preflight"
	"canvascapture/internal/progress"
	"canvascapture/internal/render"
	"canvascapture/internal/services"
	"canvascapture/internal/session"
)

// Renderer starts renders; *render.Orchestrator satisfies it.
type Renderer interface {
	Start(ctx context.Context, id string, fps float64) (render.Outcome, error)
}

// HealthFunc produces the checks reported by /healthz.
type HealthFunc func(ctx context.Context) []preflight.Result

// Dependencies are the collaborators handlers delegate to.
type Dependencies struct {
	Store    *session.Store
	Sink     *frames.Sink
	Renderer Renderer
	Tracker  progress.Tracker
	Health   HealthFunc
}

// Options configures routing and the listener.
type Options struct {
	Bind              string
	Prefix            string
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

// Server serves the capture protocol.
type Server struct {
	deps    Dependencies
	opts    Options
	logger  *slog.Logger
	handler http.Handler

	listener net.Listener
	server   *http.Server
}

// New builds the route table.
func New(deps Dependencies, opts Options, logger *slog.Logger) (*Server, error) {
	if deps.Store == nil || deps.Sink == nil || deps.Renderer == nil || deps.Tracker == nil {
		return nil, services.Wrap(services.ErrConfiguration, "server", "init", "store, sink, renderer and tracker are required", nil)
	}
	opts.Prefix = strings.TrimRight(opts.Prefix, "/")
	if opts.Prefix != "" && !strings.HasPrefix(opts.Prefix, "/") {
		opts.Prefix = "/" + opts.Prefix
	}

	s := &Server{
		deps:   deps,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "http"),
	}

	p := opts.Prefix
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+p+"/capture", s.handleCreate)
	mux.HandleFunc("POST "+p+"/capture/{id}/frame/{n}", s.handleFrame)
	mux.HandleFunc("POST "+p+"/capture/{id}/render", s.handleRender)
	mux.HandleFunc("GET "+p+"/capture/{id}/render-progress", s.handleProgress)
	mux.HandleFunc("GET "+p+"/capture/{id}/canvas.mp4", s.handleDownload)
	mux.HandleFunc("GET "+p+"/healthz", s.handleHealth)
	s.handler = withObservability(mux, s.logger)
	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves until ctx is done or
// Stop is called.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.opts.Bind)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "server", "listen", s.opts.Bind, err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.opts.ReadHeaderTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
		IdleTimeout:       s.opts.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("http server listening",
		logging.String("address", listener.Addr().String()),
		logging.String("prefix", s.opts.Prefix),
	)
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts the listener down.
func (s *Server) Stop() {
	if s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown incomplete", logging.Error(err))
	}
}

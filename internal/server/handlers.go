package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"canvascapture/internal/frames"
	"canvascapture/internal/logging"
	"canvascapture/internal/preflight"
	"canvascapture/internal/progress"
	"canvascapture/internal/render"
	"canvascapture/internal/services"
	"canvascapture/internal/session"
)

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	id, err := s.deps.Store.Create(r.Context())
	if err != nil {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "session create failed", "session_create_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check captures directory and entropy source"),
		)
		writeError(w, http.StatusInternalServerError, "could not create session")
		return
	}
	writeText(w, http.StatusOK, id)
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	index, err := frames.ParseIndex(r.PathValue("n"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid frame index")
		return
	}
	if err := session.Validate(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	ctx := services.WithFrameIndex(services.WithSessionID(r.Context(), id), index)
	logger := logging.WithContext(ctx, s.logger)

	err = s.deps.Sink.Accept(ctx, id, index, r.Body, r.Header.Get("Content-Type"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, frames.ErrContentType):
		// Clients treat any 200 as delivered; the frame is dropped deliberately.
		logging.WarnWithContext(logger, "frame dropped: unexpected content type", "frame_rejected",
			logging.String("content_type", r.Header.Get("Content-Type")),
			logging.String(logging.FieldErrorHint, "send frames as image/png"),
			logging.String(logging.FieldImpact, "frame missing from the rendered video"),
		)
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, frames.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "frame too large")
	case errors.Is(err, services.ErrNotFound):
		writeError(w, http.StatusNotFound, "unknown session")
	case errors.Is(err, services.ErrValidation):
		logger.Debug("frame rejected", logging.Error(err))
		writeError(w, http.StatusBadRequest, "invalid frame")
	default:
		logging.ErrorWithContext(logger, "frame store failed", "frame_store_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check free space and captures directory permissions"),
		)
		writeError(w, http.StatusInternalServerError, "could not store frame")
	}
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := session.Validate(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	ctx := services.WithSessionID(r.Context(), id)
	logger := logging.WithContext(ctx, s.logger)
	fps := render.ParseFPS(r.FormValue("fps"))

	outcome, err := s.deps.Renderer.Start(ctx, id, fps)
	switch {
	case err == nil:
		logger.Info("render triggered",
			logging.String("outcome", string(outcome)),
			logging.Float64("requested_fps", fps),
			logging.String(logging.FieldEventType, "render_triggered"),
		)
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, services.ErrNotFound):
		writeError(w, http.StatusNotFound, "unknown session")
	case errors.Is(err, services.ErrValidation):
		writeError(w, http.StatusConflict, "session has no frames")
	case errors.Is(err, render.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
	default:
		logging.ErrorWithContext(logger, "render trigger failed", "render_trigger_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check progress backend and captures directory"),
		)
		writeError(w, http.StatusInternalServerError, "could not start render")
	}
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	w.Header().Set("Cache-Control", "no-store")
	if err := session.Validate(id); err != nil {
		// No such session can exist; unknown sessions report zero.
		writeText(w, http.StatusOK, "0")
		return
	}
	snap, err := s.deps.Tracker.Query(r.Context(), id)
	if err != nil {
		logging.ErrorWithContext(logging.WithContext(services.WithSessionID(r.Context(), id), s.logger),
			"progress query failed", "progress_query_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check progress backend"),
		)
		writeError(w, http.StatusInternalServerError, "progress unavailable")
		return
	}
	percent := snap.ClientPercent()
	if snap.State == progress.StateOpen {
		// A restarted daemon loses memory-backed state; the artifact is authoritative.
		if _, err := os.Stat(session.ArtifactPath(s.deps.Store.Root(), id)); err == nil {
			percent = 100
		}
	}
	writeText(w, http.StatusOK, strconv.Itoa(percent))
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := session.Validate(id); err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	f, err := os.Open(session.ArtifactPath(s.deps.Store.Root(), id))
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	// The server write timeout bounds small responses; artifacts stream for
	// as long as the client keeps reading.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.logger.Debug("clear download write deadline failed", logging.Error(err))
	}
	w.Header().Set("Content-Type", "video/mp4")
	http.ServeContent(w, r, session.ArtifactName, info.ModTime(), f)
}

type healthResponse struct {
	Status string             `json:"status"`
	Checks []preflight.Result `json:"checks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Checks: []preflight.Result{}}
	if s.deps.Health != nil {
		resp.Checks = s.deps.Health(r.Context())
		if len(preflight.Failed(resp.Checks)) > 0 {
			resp.Status = "degraded"
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func writeError(w http.ResponseWriter, status int, message string) {
	http.Error(w, message, status)
}

// Package server is the HTTP control surface the host overlay talks to:
// status, screenshot and recording lifecycle, backend detection and
// recording probes, all as small JSON endpoints.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/clipdeck/clipdeck/internal/service"
)

// Server wraps the shared service behind HTTP handlers.
type Server struct {
	svc  service.Service
	addr string
}

// GenericResponse is the envelope for operations without a richer payload.
type GenericResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// New creates a control server listening on addr once started.
func New(svc service.Service, addr string) *Server {
	return &Server{svc: svc, addr: addr}
}

// Handler builds the route table. Separated from Start so tests can drive
// the handlers without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/screenshot", s.handleScreenshot)
	mux.HandleFunc("/record/start", s.handleRecordStart)
	mux.HandleFunc("/record/stop", s.handleRecordStop)
	mux.HandleFunc("/record/cancel", s.handleRecordCancel)
	mux.HandleFunc("/backends", s.handleBackends)
	mux.HandleFunc("/backends/refresh", s.handleBackendsRefresh)
	mux.HandleFunc("/last-error", s.handleLastError)
	mux.HandleFunc("/info", s.handleInfo)
	return mux
}

// Start blocks serving HTTP until the listener fails.
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("control server listening", "addr", s.addr)
	return srv.ListenAndServe()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Status())
}

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	path, err := s.svc.TakeScreenshot(r.FormValue("context"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"path":    path,
	})
}

func (s *Server) handleRecordStart(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	session, err := s.svc.StartRecording(r.FormValue("context"))
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"session": session,
	})
}

func (s *Server) handleRecordStop(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	path, err := s.svc.StopRecording()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"path":    path,
	})
}

func (s *Server) handleRecordCancel(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	if err := s.svc.CancelRecording(); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, GenericResponse{
		Success: true,
		Message: "recording cancelled",
	})
}

func (s *Server) handleBackends(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"backends": s.svc.Backends(),
	})
}

func (s *Server) handleBackendsRefresh(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	s.svc.RefreshBackends()
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"backends": s.svc.Backends(),
	})
}

func (s *Server) handleLastError(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"last_error": s.svc.LastError(),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	file := r.URL.Query().Get("file")
	if file == "" {
		writeJSON(w, http.StatusBadRequest, GenericResponse{
			Success: false,
			Error:   "file parameter is required",
		})
		return
	}

	info, err := s.svc.ProbeRecording(file)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	writeJSON(w, http.StatusMethodNotAllowed, GenericResponse{
		Success: false,
		Error:   "method not allowed",
	})
	return false
}

func writeError(w http.ResponseWriter, status int, err error) {
	slog.Debug("request failed", "status", status, "error", err)
	writeJSON(w, status, GenericResponse{
		Success: false,
		Error:   err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

// Package server exposes the router over a thin HTTP JSON API: submit a
// request, resume a suspended run, inspect a run, and list the discovered
// workers.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"goa.design/clue/log"

	"github.com/itep-ai/router/registry"
	"github.com/itep-ai/router/router"
	"github.com/itep-ai/router/run"
)

type (
	// Server handles the HTTP API.
	Server struct {
		router   *router.Router
		registry registry.Client
	}

	// SubmitRequest is the body of POST /requests.
	SubmitRequest struct {
		Messages   []run.Message `json:"messages"`
		Mode       run.Mode      `json:"mode,omitempty"`
		MaxReplans *int          `json:"max_replans,omitempty"`
	}

	// ResumeRequest is the body of POST /runs/{id}/resume.
	ResumeRequest struct {
		Answer string `json:"answer"`
	}

	errorBody struct {
		Error string `json:"error"`
	}
)

// New constructs the HTTP server façade.
func New(rt *router.Router, reg registry.Client) *Server {
	return &Server{router: rt, registry: reg}
}

// Handler returns the routed HTTP handler with request logging attached.
// logCtx carries the logger configuration for request-scoped logs.
func (s *Server) Handler(logCtx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /requests", s.submit)
	mux.HandleFunc("GET /runs/{id}", s.getRun)
	mux.HandleFunc("POST /runs/{id}/resume", s.resume)
	mux.HandleFunc("GET /workers", s.listWorkers)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return log.HTTP(logCtx)(mux)
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages must not be empty")
		return
	}
	res, err := s.router.Start(r.Context(), router.StartRequest{
		Messages:   req.Messages,
		Mode:       req.Mode,
		MaxReplans: req.MaxReplans,
	})
	if err != nil {
		log.Error(r.Context(), err, log.KV{K: "msg", V: "start run"})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusOK
	if res.Suspended {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

func (s *Server) resume(w http.ResponseWriter, r *http.Request) {
	var req ResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := s.router.Resume(r.Context(), r.PathValue("id"), req.Answer)
	switch {
	case errors.Is(err, run.ErrNotFound):
		writeError(w, http.StatusNotFound, "run not found")
		return
	case errors.Is(err, router.ErrRunNotSuspended):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		log.Error(r.Context(), err, log.KV{K: "msg", V: "resume run"})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusOK
	if res.Suspended {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	rc, err := s.router.Load(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, run.ErrNotFound):
		writeError(w, http.StatusNotFound, "run not found")
		return
	case err != nil:
		log.Error(r.Context(), err, log.KV{K: "msg", V: "load run"})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rc)
}

func (s *Server) listWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := s.registry.ListWorkers(r.Context())
	if err != nil {
		log.Error(r.Context(), err, log.KV{K: "msg", V: "list workers"})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if workers == nil {
		workers = []registry.Card{}
	}
	writeJSON(w, http.StatusOK, workers)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

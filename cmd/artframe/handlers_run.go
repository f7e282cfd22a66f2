package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/artframe/internal/frame"
	"github.com/fpang/artframe/internal/jobs"
	"github.com/fpang/artframe/internal/pipeline"
)

const (
	defaultColor     = "000000"
	defaultThickness = 30
)

// startError maps a Manager.Start error to an HTTP status.
func startError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		httpError(w, http.StatusConflict, err.Error())
	case errors.Is(err, frame.ErrInvalidColor), errors.Is(err, frame.ErrInvalidThickness):
		httpError(w, http.StatusBadRequest, err.Error())
	default:
		httpError(w, http.StatusInternalServerError, err.Error())
	}
}

// optionsFromQuery reads frame_color, frame_size and force_download.
func optionsFromQuery(r *http.Request) (pipeline.Options, error) {
	q := r.URL.Query()
	opts := pipeline.Options{Color: defaultColor, Thickness: defaultThickness}
	if v := q.Get("frame_color"); v != "" {
		opts.Color = v
	}
	if v := q.Get("frame_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, fmt.Errorf("%w: %q", frame.ErrInvalidThickness, v)
		}
		opts.Thickness = n
	}
	if v := q.Get("force_download"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("invalid force_download %q", v)
		}
		opts.Force = b
	}
	return opts, nil
}

// GET /api/run?frame_color=RRGGBB&frame_size=N&force_download=bool
//
// Starts a run and streams its progress as plain text, one line per event.
func (s *server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	opts, err := optionsFromQuery(r)
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := s.manager.Start(s.ctx, opts)
	if err != nil {
		startError(w, err)
		return
	}
	events, err := run.Events(r.Context())
	if err != nil {
		httpError(w, http.StatusConflict, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Run-ID", run.ID)
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	for ev := range events {
		if _, err := fmt.Fprintln(w, ev.Text); err != nil {
			log.Debug().Err(err).Str("run", run.ID).Msg("Progress client went away")
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// POST /api/runs
func (s *server) handleRunsCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	opts := pipeline.Options{Color: defaultColor, Thickness: defaultThickness}
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	run, err := s.manager.Start(s.ctx, opts)
	if err != nil {
		startError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"id": run.ID})
}

// Routes under /api/runs/{id}/...
func (s *server) handleRunRoutes(w http.ResponseWriter, r *http.Request) {
	id, action, ok := jobs.ParseRoute(r.URL.Path, "/api/runs/", jobs.RunPrefix)
	if !ok {
		httpError(w, http.StatusNotFound, "not found")
		return
	}
	run := s.manager.Get(id)
	if run == nil {
		httpError(w, http.StatusNotFound, "run not found")
		return
	}

	switch strings.TrimSuffix(action, "/") {
	case "status":
		if r.Method != http.MethodGet {
			httpError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		respondJSON(w, http.StatusOK, run.Status())
	case "ws":
		s.handleRunWS(w, r, run)
	default:
		httpError(w, http.StatusNotFound, "not found")
	}
}

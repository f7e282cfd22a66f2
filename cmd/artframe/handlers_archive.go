package main

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/artframe/internal/frame"
)

// GET /api/archive
func (s *server) handleArchive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	respondJSON(w, http.StatusOK, s.manager.Archive())
}

// GET /api/archive/download
func (s *server) handleArchiveDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	st := s.manager.Archive()
	if !st.Available {
		httpError(w, http.StatusNotFound, "no archive available")
		return
	}
	f, err := os.Open(st.Path)
	if err != nil {
		httpError(w, http.StatusNotFound, "no archive available")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(st.Path)+`"`)
	http.ServeContent(w, r, filepath.Base(st.Path), st.ModTime, f)
}

// GET /api/preview[?name=file]
//
// Returns a JPEG thumbnail of the named framed image, or of the most
// recently framed one.
func (s *server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	dir := s.manager.FramedDir()
	name := r.URL.Query().Get("name")
	if name != "" {
		if containsPathTraversal(name) || strings.ContainsAny(name, `/\`) {
			httpError(w, http.StatusBadRequest, "invalid name")
			return
		}
	} else {
		name = latestFile(dir)
		if name == "" {
			httpError(w, http.StatusNotFound, "no framed images yet")
			return
		}
	}

	data, err := frame.Thumbnail(filepath.Join(dir, name), frame.DefaultThumbnailMaxDimension)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			httpError(w, http.StatusNotFound, "image not found")
			return
		}
		log.Warn().Err(err).Str("name", name).Msg("Failed to generate preview")
		httpError(w, http.StatusUnprocessableEntity, "cannot preview image")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Preview-Name", name)
	w.Write(data)
}

// latestFile returns the most recently modified visible regular file in dir.
func latestFile(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTime time.Time
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") || !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().After(bestTime) {
			best, bestTime = e.Name(), info.ModTime()
		}
	}
	return best
}

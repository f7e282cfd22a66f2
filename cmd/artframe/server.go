package main

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/artframe/internal/metrics"
	"github.com/fpang/artframe/internal/pipeline"
)

//go:embed all:frontend_dist
var frontendFS embed.FS

// server exposes a Manager over HTTP. Runs are started with ctx, not the
// request context, so a dropped client does not abort a run.
type server struct {
	ctx     context.Context
	manager *pipeline.Manager
	metrics *metrics.Recorder
}

func newServer(ctx context.Context, m *pipeline.Manager, rec *metrics.Recorder) *server {
	return &server{ctx: ctx, manager: m, metrics: rec}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	// API routes
	mux.HandleFunc("/api/run", s.handleRunStream)
	mux.HandleFunc("/api/runs", s.handleRunsCreate)
	mux.HandleFunc("/api/runs/", s.handleRunRoutes)
	mux.HandleFunc("/api/archive", s.handleArchive)
	mux.HandleFunc("/api/archive/download", s.handleArchiveDownload)
	mux.HandleFunc("/api/preview", s.handlePreview)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}

	// Frontend static files (SPA fallback)
	frontendSub, err := fs.Sub(frontendFS, "frontend_dist")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to access embedded frontend")
	}
	fileServer := http.FileServer(http.FS(frontendSub))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; img-src 'self' blob: data:; style-src 'self' 'unsafe-inline'; script-src 'self' 'unsafe-inline'; connect-src 'self' ws: wss:")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		path := r.URL.Path
		if path != "/" {
			f, err := frontendSub.Open(strings.TrimPrefix(path, "/"))
			if err != nil {
				r.URL.Path = "/"
			} else {
				f.Close()
			}
		}
		fileServer.ServeHTTP(w, r)
	})

	return withLogging(withCORS(mux))
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/artframe/internal/pipeline"
)

var portFlag int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web UI and HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 8000, "Port to listen on")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, "serve", nil)
	if err != nil {
		return err
	}

	s := newServer(ctx, pipeline.NewManager(a.pipeline), a.metrics)
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", portFlag),
		Handler:     s.routes(),
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: /api/run streams for as long as the run takes.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info().Msg("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Int("port", portFlag).Msg("Starting web server")
	fmt.Printf("\n  artframe UI: http://localhost:%d\n\n", portFlag)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

package main

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/artframe/internal/auth"
	"github.com/fpang/artframe/internal/cli"
	"github.com/fpang/artframe/internal/config"
	"github.com/fpang/artframe/internal/export"
	"github.com/fpang/artframe/internal/fetch"
	"github.com/fpang/artframe/internal/frame"
	"github.com/fpang/artframe/internal/ledger"
	"github.com/fpang/artframe/internal/logging"
	"github.com/fpang/artframe/internal/metrics"
	"github.com/fpang/artframe/internal/pipeline"
	"github.com/fpang/artframe/internal/publish"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "artframe",
	Short: "Frame images posted to a Discord channel",
	Long: `artframe exports a Discord channel, downloads image attachments it has
not seen before, adds a solid border to each one and packs the results
into a zip archive.

Examples:
  artframe serve --port 8000
  artframe run --color ff0000 --thickness 40
  artframe run --data Art_images.json --force`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(serveCmd, runCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the wiring shared by the serve and run commands.
type app struct {
	cfg       *config.Config
	metrics   *metrics.Recorder
	pipeline  *pipeline.Pipeline
	published bool
}

// newApp loads configuration and builds the pipeline. exporter overrides the
// Discord exporter when non-nil.
func newApp(ctx context.Context, name string, exporter export.Exporter) (*app, error) {
	start := time.Now()
	logging.Init()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	if exporter == nil {
		token := cfg.DiscordToken
		if token == "" {
			// Fall back to the encrypted credentials file; a missing token
			// surfaces as a failed export stage, not a startup error.
			if t, err := auth.GetToken(); err == nil {
				token = t
			}
		}
		if err := auth.ValidateCredentials(token, cfg.DiscordChannelID); err != nil {
			log.Warn().Err(err).Msg(cli.CredentialHint(err))
		}
		exporter = &export.DiscordExporter{
			Path:      cfg.ExporterPath,
			Token:     token,
			ChannelID: cfg.DiscordChannelID,
			WorkDir:   cfg.WorkDir,
			Glob:      cfg.ExportGlob,
			DataFile:  cfg.DataFile,
		}
	}

	rec := metrics.New()
	fetcher := fetch.New(cfg.DownloadDir, cfg.HTTPTimeout)
	fetcher.Observer = rec

	p := &pipeline.Pipeline{
		Exporter: exporter,
		Ledger:   ledger.New(cfg.LedgerPath),
		Fetcher:  fetcher,
		Framer: &frame.Runner{
			SrcDir:  cfg.DownloadDir,
			DstDir:  cfg.FramedDir,
			Workers: cfg.WorkerCount(),
		},
		ArchivePath: cfg.ArchivePath,
		Metrics:     rec,
	}

	a := &app{cfg: cfg, metrics: rec, pipeline: p}
	if cfg.S3Enabled() {
		pub, err := publish.NewS3Publisher(ctx, cfg.S3Bucket, cfg.S3Prefix, cfg.PresignTTL)
		if err != nil {
			return nil, err
		}
		p.Publisher = pub
		a.published = true
	}

	logging.NewStartupLogger(name).
		Version(version).
		Dir("work", absOr(cfg.WorkDir)).
		Dir("downloads", absOr(cfg.DownloadDir)).
		Dir("framed", absOr(cfg.FramedDir)).
		Feature("s3Publish", a.published).
		Config("ledger", cfg.LedgerPath).
		Config("archive", cfg.ArchivePath).
		Config("workers", strconv.Itoa(cfg.WorkerCount())).
		Config("httpTimeout", cfg.HTTPTimeout.String()).
		InitDuration(time.Since(start)).
		Log()

	return a, nil
}

func absOr(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

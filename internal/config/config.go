// Package config loads artframe settings from the environment. A .env file in
// the working directory is read first when present; real environment
// variables win over .env entries.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds every tunable used by the pipeline and the driving layer.
type Config struct {
	DiscordToken     string
	DiscordChannelID string

	ExporterPath string
	ExportGlob   string
	DataFile     string
	WorkDir      string

	DownloadDir string
	FramedDir   string
	LedgerPath  string
	ArchivePath string

	Workers     int
	HTTPTimeout time.Duration

	S3Bucket   string
	S3Prefix   string
	PresignTTL time.Duration
}

// Load reads .env (if any) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to read .env file")
	}

	cfg := &Config{
		DiscordToken:     strings.TrimSpace(os.Getenv("DISCORD_TOKEN")),
		DiscordChannelID: strings.TrimSpace(os.Getenv("DISCORD_CHANNEL_ID")),
		ExporterPath:     envOr("ARTFRAME_EXPORTER", "./DiscordChatExporter.CLI"),
		ExportGlob:       envOr("ARTFRAME_EXPORT_GLOB", "*art_channel*.json"),
		DataFile:         envOr("ARTFRAME_DATA_FILE", "Art_images.json"),
		WorkDir:          envOr("ARTFRAME_WORK_DIR", "."),
		DownloadDir:      envOr("ARTFRAME_DOWNLOAD_DIR", "./midjourney_images"),
		FramedDir:        envOr("ARTFRAME_FRAMED_DIR", "./framed_images"),
		LedgerPath:       envOr("ARTFRAME_LEDGER", "./downloaded_images.log"),
		ArchivePath:      envOr("ARTFRAME_ARCHIVE", "./framed_images.zip"),
		S3Bucket:         strings.TrimSpace(os.Getenv("ARTFRAME_S3_BUCKET")),
		S3Prefix:         envOr("ARTFRAME_S3_PREFIX", "artframe"),
	}

	var err error
	if cfg.Workers, err = envInt("ARTFRAME_WORKERS", 0); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = envDuration("ARTFRAME_HTTP_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.PresignTTL, err = envDuration("ARTFRAME_PRESIGN_TTL", time.Hour); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and required paths. Credentials are not required
// here: a server may start without them and report the problem per run.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("ARTFRAME_WORKERS must be >= 0, got %d", c.Workers)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("ARTFRAME_HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout)
	}
	if c.PresignTTL <= 0 {
		return fmt.Errorf("ARTFRAME_PRESIGN_TTL must be positive, got %s", c.PresignTTL)
	}
	for name, v := range map[string]string{
		"ARTFRAME_DOWNLOAD_DIR": c.DownloadDir,
		"ARTFRAME_FRAMED_DIR":   c.FramedDir,
		"ARTFRAME_LEDGER":       c.LedgerPath,
		"ARTFRAME_ARCHIVE":      c.ArchivePath,
		"ARTFRAME_DATA_FILE":    c.DataFile,
	} {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%s must not be empty", name)
		}
	}
	if filepath.Clean(c.DownloadDir) == filepath.Clean(c.FramedDir) {
		return fmt.Errorf("download and framed directories must differ (%s)", c.DownloadDir)
	}
	return nil
}

// WorkerCount resolves Workers, where zero means one per CPU.
func (c *Config) WorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

// S3Enabled reports whether archives should be published to S3.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != ""
}

// EnsureDirs creates the download and framed directories.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.DownloadDir, c.FramedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, raw, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, raw, err)
	}
	return d, nil
}

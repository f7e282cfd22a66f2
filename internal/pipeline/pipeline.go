// Package pipeline sequences one run: export, load candidates, download new
// attachments, frame them, and package the framed directory.
//
// Stages advance strictly forward:
//
//	exporting -> loading -> downloading -> transforming -> packaging -> done
//
// Any fatal error ends the run in failed, recording the stage it happened in.
// Per-item problems (a bad download, an undecodable image) are progress lines,
// not failures.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/artframe/internal/archive"
	"github.com/fpang/artframe/internal/export"
	"github.com/fpang/artframe/internal/fetch"
	"github.com/fpang/artframe/internal/frame"
	"github.com/fpang/artframe/internal/ledger"
	"github.com/fpang/artframe/internal/metrics"
	"github.com/fpang/artframe/internal/progress"
	"github.com/fpang/artframe/internal/publish"
)

// Stage names a step of a run. The values double as progress stage labels.
type Stage string

const (
	StagePending      Stage = "pending"
	StageExporting    Stage = "exporting"
	StageLoading      Stage = "loading"
	StageDownloading  Stage = Stage(fetch.Stage)
	StageTransforming Stage = Stage(frame.Stage)
	StagePackaging    Stage = Stage(archive.Stage)
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// StageError is a fatal error and the stage it ended the run in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// Outcome summarises a finished run.
type Outcome struct {
	RunID      string         `json:"runId"`
	Seen       int            `json:"seen"`
	Downloaded int            `json:"downloaded"`
	Framed     int            `json:"framed"`
	Archive    string         `json:"archive,omitempty"`
	ArchiveURL string         `json:"archiveUrl,omitempty"`
	Results    []frame.Result `json:"results,omitempty"`
	Lines      []string       `json:"lines,omitempty"`
	Duration   time.Duration  `json:"duration"`
}

// Reporter receives progress lines and stage transitions.
type Reporter interface {
	progress.Sink
	Enter(stage Stage)
}

// Pipeline holds the collaborators for a run. Publisher and Metrics are optional.
type Pipeline struct {
	Exporter    export.Exporter
	Ledger      *ledger.Ledger
	Fetcher     *fetch.Fetcher
	Framer      *frame.Runner
	ArchivePath string
	Publisher   publish.Publisher
	Metrics     *metrics.Recorder
}

// Execute performs one run, reporting every step to rep. On a fatal error it
// returns the partial outcome and a *StageError; rep has already been told.
func (p *Pipeline) Execute(ctx context.Context, runID string, params frame.Params, force bool, rep Reporter) (Outcome, error) {
	start := time.Now()
	out := Outcome{RunID: runID}
	stage := StagePending

	enter := func(s Stage) {
		stage = s
		rep.Enter(s)
	}
	say := func(format string, args ...any) {
		progress.Emitf(rep, string(stage), format, args...)
	}
	fail := func(err error) (Outcome, error) {
		rep.Emit(string(stage), progress.LevelError, fmt.Sprintf("Run failed during %s: %v", stage, err))
		failedAt := stage
		enter(StageFailed)
		out.Duration = time.Since(start)
		if p.Metrics != nil {
			p.Metrics.RunFinished(string(StageFailed), out.Duration)
		}
		log.Error().Err(err).Str("run", runID).Str("stage", string(failedAt)).Msg("Run failed")
		return out, &StageError{Stage: failedAt, Err: err}
	}

	if p.Metrics != nil {
		p.Metrics.RunStarted()
	}

	// Exporting
	enter(StageExporting)
	say("Starting automation (frame %s, %dpx, force=%t)...", params.Hex(), params.Thickness, force)
	say("Exporting Discord chat...")
	dataPath, err := p.Exporter.Export(ctx)
	if err != nil {
		return fail(err)
	}
	say("Discord export complete.")
	say("Found JSON file: %s", dataPath)

	// Loading
	enter(StageLoading)
	atts, messages, err := export.LoadAttachments(dataPath)
	if err != nil {
		return fail(err)
	}
	known, err := p.Ledger.Load(force)
	if err != nil {
		return fail(err)
	}
	out.Seen = len(atts)
	if force {
		say("Force download enabled, ignoring download log.")
	}
	say("Found %d attachments in %d messages (%d already downloaded).", len(atts), messages, len(known))

	// Downloading
	enter(StageDownloading)
	say("Checking %d attachments for new images...", len(atts))
	downloaded := p.Fetcher.Fetch(ctx, atts, known, rep)
	out.Downloaded = len(downloaded)
	if err := p.Ledger.Append(downloaded); err != nil {
		return fail(err)
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	// Transforming
	enter(StageTransforming)
	if len(downloaded) == 0 {
		say("No new images to process.")
	} else {
		say("Applying frames to %d images...", len(downloaded))
		total := len(downloaded)
		out.Results = p.Framer.Run(ctx, downloaded, params, func(i int, res frame.Result) {
			if res.OK() {
				out.Framed++
			}
			if p.Metrics != nil {
				p.Metrics.ObserveFrame(res.OK())
			}
			level := progress.LevelInfo
			if !res.OK() {
				level = progress.LevelWarn
			}
			rep.Emit(string(stage), level, progress.Framing(progress.Counter{N: i + 1, Total: total}, res.String()))
		})
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
	}

	// Packaging
	enter(StagePackaging)
	if out.Framed == 0 {
		say("No images were framed, skipping ZIP creation.")
	} else {
		entries, err := archive.Package(p.Framer.DstDir, p.ArchivePath, rep)
		switch {
		case errors.Is(err, archive.ErrNothingToPackage):
			say("Nothing to package.")
		case err != nil:
			return fail(err)
		default:
			out.Archive = p.ArchivePath
			if p.Metrics != nil {
				p.Metrics.ArchiveWritten(len(entries))
			}
			if p.Publisher != nil {
				say("Uploading archive...")
				url, err := p.Publisher.Publish(ctx, runID, p.ArchivePath)
				if err != nil {
					progress.Warnf(rep, string(stage), "Archive upload failed: %v", err)
				} else {
					out.ArchiveURL = url
					say("Archive uploaded: %s", url)
				}
			}
		}
	}

	// Done
	enter(StageDone)
	out.Duration = time.Since(start)
	say("Processed %d new images, framed %d.", out.Downloaded, out.Framed)
	if p.Metrics != nil {
		p.Metrics.RunFinished(string(StageDone), out.Duration)
	}
	log.Info().
		Str("run", runID).
		Int("seen", out.Seen).
		Int("downloaded", out.Downloaded).
		Int("framed", out.Framed).
		Dur("duration", out.Duration).
		Msg("Run complete")
	return out, nil
}

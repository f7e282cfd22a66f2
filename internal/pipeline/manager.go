package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/artframe/internal/archive"
	"github.com/fpang/artframe/internal/frame"
	"github.com/fpang/artframe/internal/jobs"
	"github.com/fpang/artframe/internal/progress"
)

// ErrRunInProgress is returned by Start while another run is active.
var ErrRunInProgress = errors.New("a run is already in progress")

// maxHistory bounds how many finished runs stay addressable by ID.
const maxHistory = 20

// Options are the user-facing parameters of a run.
type Options struct {
	Color     string `json:"frameColor"`
	Thickness int    `json:"frameThickness"`
	Force     bool   `json:"forceDownload"`
}

// Run is one execution of the pipeline. Its progress stream is written by
// the run goroutine only.
type Run struct {
	ID      string
	Options Options
	Started time.Time

	stream *progress.Stream
	done   chan struct{}

	mu          sync.Mutex
	stage       Stage
	failedStage Stage
	outcome     Outcome
	err         error
}

// Status is a point-in-time snapshot of a run.
type Status struct {
	ID          string   `json:"id"`
	Stage       Stage    `json:"stage"`
	FailedStage Stage    `json:"failedStage,omitempty"`
	Finished    bool     `json:"finished"`
	Lines       []string `json:"lines"`
	Outcome     *Outcome `json:"outcome,omitempty"`
	Error       string   `json:"error,omitempty"`
}

func newRun(id string, opts Options) *Run {
	return &Run{
		ID:      id,
		Options: opts,
		Started: time.Now(),
		stream:  progress.NewStream(),
		done:    make(chan struct{}),
		stage:   StagePending,
	}
}

// Emit implements Reporter.
func (r *Run) Emit(stage string, level progress.Level, text string) {
	r.stream.Emit(stage, level, text)
}

// Enter implements Reporter.
func (r *Run) Enter(stage Stage) {
	r.mu.Lock()
	if stage == StageFailed {
		r.failedStage = r.stage
	}
	r.stage = stage
	r.mu.Unlock()
}

// Events returns the live event channel. Only one consumer may attach.
func (r *Run) Events(ctx context.Context) (<-chan progress.Event, error) {
	return r.stream.Events(ctx)
}

// Lines returns every line emitted so far.
func (r *Run) Lines() []string { return r.stream.Lines() }

// Done is closed when the run has finished and its stream is closed.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run finishes or ctx is done.
func (r *Run) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-r.done:
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcome, r.err
}

// Stage reports the current stage.
func (r *Run) Stage() Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stage
}

// Status snapshots the run.
func (r *Run) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := Status{
		ID:          r.ID,
		Stage:       r.stage,
		FailedStage: r.failedStage,
		Lines:       r.stream.Lines(),
	}
	select {
	case <-r.done:
		st.Finished = true
		o := r.outcome
		st.Outcome = &o
		if r.err != nil {
			st.Error = r.err.Error()
		}
	default:
	}
	return st
}

func (r *Run) finish(out Outcome, err error) {
	r.stream.Close()
	out.Lines = r.stream.Lines()
	r.mu.Lock()
	r.outcome = out
	r.err = err
	r.mu.Unlock()
	close(r.done)
}

// ArchiveStatus describes the current archive and, when published, its URL.
type ArchiveStatus struct {
	archive.Status
	URL string `json:"url,omitempty"`
}

// Manager starts runs and keeps recent ones addressable by ID. At most one
// run is active at a time.
type Manager struct {
	pipeline *Pipeline

	mu      sync.Mutex
	active  *Run
	runs    map[string]*Run
	order   []string
	lastURL string
}

// NewManager creates a Manager for p.
func NewManager(p *Pipeline) *Manager {
	return &Manager{pipeline: p, runs: make(map[string]*Run)}
}

// Start validates opts and launches a run in the background. The run uses
// ctx for cancellation, so callers pass a process-lifetime context rather
// than a request context.
func (m *Manager) Start(ctx context.Context, opts Options) (*Run, error) {
	params, err := frame.NewParams(opts.Color, opts.Thickness)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.active != nil {
		m.mu.Unlock()
		return nil, ErrRunInProgress
	}
	run := newRun(jobs.GenerateID(jobs.RunPrefix), opts)
	m.active = run
	m.runs[run.ID] = run
	m.order = append(m.order, run.ID)
	if len(m.order) > maxHistory {
		delete(m.runs, m.order[0])
		m.order = m.order[1:]
	}
	m.mu.Unlock()

	log.Info().
		Str("run", run.ID).
		Str("color", params.Hex()).
		Int("thickness", params.Thickness).
		Bool("force", opts.Force).
		Msg("Run started")

	go func() {
		out, err := m.pipeline.Execute(ctx, run.ID, params, opts.Force, run)
		m.mu.Lock()
		if m.active == run {
			m.active = nil
		}
		if out.Archive != "" {
			// A rebuilt archive invalidates any earlier upload.
			m.lastURL = out.ArchiveURL
		}
		m.mu.Unlock()
		run.finish(out, err)
	}()

	return run, nil
}

// Get returns the run with the given ID, or nil.
func (m *Manager) Get(id string) *Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[id]
}

// Active returns the running run, or nil.
func (m *Manager) Active() *Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Archive reports on the archive file.
func (m *Manager) Archive() ArchiveStatus {
	m.mu.Lock()
	url := m.lastURL
	m.mu.Unlock()
	st := ArchiveStatus{Status: archive.Stat(m.pipeline.ArchivePath)}
	if st.Available {
		st.URL = url
	}
	return st
}

// FramedDir is where framed images are written.
func (m *Manager) FramedDir() string { return m.pipeline.Framer.DstDir }

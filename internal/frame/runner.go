package frame

import (
	"context"
	"path/filepath"
	"runtime"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Runner applies the border to a batch of files on a bounded worker pool.
type Runner struct {
	SrcDir  string
	DstDir  string
	Workers int // <= 0 means runtime.NumCPU()
}

// Run frames every name and returns one Result per name, in input order.
// A failed item never cancels its siblings. If fn is non-nil it is called
// from the calling goroutine in input order, as soon as each result and all
// results before it are ready. Cancelling ctx marks unstarted items skipped.
func (r *Runner) Run(ctx context.Context, names []string, p Params, fn func(i int, res Result)) []Result {
	results := make([]Result, len(names))
	if len(names) == 0 {
		return results
	}

	workers := r.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	done := make([]chan struct{}, len(names))
	for i := range done {
		done[i] = make(chan struct{})
	}

	var g errgroup.Group
	g.SetLimit(workers)
	go func() {
		for i, name := range names {
			i, name := i, name
			g.Go(func() error {
				defer close(done[i])
				if ctx.Err() != nil {
					results[i] = Result{FileName: name, Status: StatusSkipped, Reason: "cancelled"}
					return nil
				}
				results[i] = Apply(filepath.Join(r.SrcDir, name), filepath.Join(r.DstDir, name), p)
				return nil
			})
		}
	}()

	for i := range names {
		<-done[i]
		if fn != nil {
			fn(i, results[i])
		}
	}
	g.Wait()

	log.Debug().Int("count", len(names)).Int("workers", workers).Msg("Frame batch complete")
	return results
}

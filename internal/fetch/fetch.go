// Package fetch downloads export attachments into the download directory.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/artframe/internal/export"
	"github.com/fpang/artframe/internal/ledger"
	"github.com/fpang/artframe/internal/progress"
)

// Stage is the progress stage name used for download lines.
const Stage = "downloading"

// Observer is told about every attempted download. Optional.
type Observer interface {
	ObserveDownload(ok bool, bytes int64, d time.Duration)
}

// Fetcher downloads attachments one at a time.
type Fetcher struct {
	Client   *http.Client
	Dir      string
	Observer Observer
}

// New returns a Fetcher writing into dir with the given request timeout.
func New(dir string, timeout time.Duration) *Fetcher {
	return &Fetcher{Client: &http.Client{Timeout: timeout}, Dir: dir}
}

// Fetch downloads every attachment that has a URL and is not in known.
// known is matched against the stored name (see SafeName). Skipped
// attachments produce no events; a name that cannot be stored is a failure
// line. Each attempt produces one event:
// "Downloading n/total" on success where total is len(atts) and n counts
// successes, or a failure line naming the URL. Failures never stop the loop;
// only ctx cancellation does. Returns the downloaded filenames in order.
func (f *Fetcher) Fetch(ctx context.Context, atts []export.Attachment, known ledger.Set, sink progress.Sink) []string {
	total := len(atts)
	var downloaded []string

	for _, a := range atts {
		if ctx.Err() != nil {
			break
		}
		if a.URL == "" {
			continue
		}
		name, err := SafeName(a.FileName)
		if err != nil {
			sink.Emit(Stage, progress.LevelWarn, progress.DownloadError(a.URL, err))
			log.Warn().Err(err).Str("url", a.URL).Msg("Rejected attachment name")
			continue
		}
		if known.Has(name) {
			continue
		}

		start := time.Now()
		n, err := f.download(ctx, a.URL, name)
		if f.Observer != nil {
			f.Observer.ObserveDownload(err == nil, n, time.Since(start))
		}
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) {
				sink.Emit(Stage, progress.LevelWarn, progress.DownloadFailed(a.URL, se.Code))
			} else {
				sink.Emit(Stage, progress.LevelWarn, progress.DownloadError(a.URL, err))
			}
			log.Warn().Err(err).Str("url", a.URL).Str("file", a.FileName).Msg("Download failed")
			continue
		}

		downloaded = append(downloaded, name)
		sink.Emit(Stage, progress.LevelInfo, progress.Downloading(progress.Counter{N: len(downloaded), Total: total}, name))
		log.Debug().Str("file", name).Int64("bytes", n).Dur("took", time.Since(start)).Msg("Downloaded")
	}
	return downloaded
}

// StatusError is a non-2xx response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.Code)
}

// download streams url to a temp file and renames it to name, so a failed
// transfer never leaves a truncated image behind.
func (f *Fetcher) download(ctx context.Context, url, name string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, &StatusError{URL: url, Code: resp.StatusCode}
	}

	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return 0, fmt.Errorf("create download dir: %w", err)
	}
	tmp, err := os.CreateTemp(f.Dir, ".part-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return n, fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, filepath.Join(f.Dir, name)); err != nil {
		os.Remove(tmpPath)
		return n, fmt.Errorf("rename %s: %w", name, err)
	}
	return n, nil
}

// SafeName reduces an attachment filename to a plain base name. Dot-prefixed
// names are rejected: the download and framed directories reserve them for
// temp files, and the packager ignores them.
func SafeName(name string) (string, error) {
	base := filepath.Base(filepath.Clean("/" + filepath.FromSlash(name)))
	if base == "" || base == string(filepath.Separator) || strings.HasPrefix(base, ".") {
		return "", fmt.Errorf("invalid attachment filename %q", name)
	}
	return base, nil
}

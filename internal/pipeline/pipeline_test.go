package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpang/artframe/internal/export"
	"github.com/fpang/artframe/internal/fetch"
	"github.com/fpang/artframe/internal/frame"
	"github.com/fpang/artframe/internal/ledger"
	"github.com/fpang/artframe/internal/progress"
)

type recorder struct {
	progress.Recorder
	stages []Stage
}

func (r *recorder) Enter(s Stage) { r.stages = append(r.stages, s) }

type fixture struct {
	t       *testing.T
	root    string
	srv     *httptest.Server
	ledger  *ledger.Ledger
	archive string
	data    string
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newFixture(t *testing.T) *fixture {
	body := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/missing") {
			http.NotFound(w, r)
			return
		}
		w.Write(body)
	}))
	t.Cleanup(srv.Close)

	root := t.TempDir()
	for _, d := range []string{"downloads", "framed"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, d), 0o755))
	}
	return &fixture{
		t:       t,
		root:    root,
		srv:     srv,
		ledger:  ledger.New(filepath.Join(root, "downloaded_images.log")),
		archive: filepath.Join(root, "framed_images.zip"),
		data:    filepath.Join(root, "Art_images.json"),
	}
}

func (f *fixture) writeData(names ...string) {
	type att struct {
		URL      string `json:"url"`
		FileName string `json:"fileName"`
	}
	type msg struct {
		Attachments []att `json:"attachments"`
	}
	var doc struct {
		Messages []msg `json:"messages"`
	}
	for _, n := range names {
		doc.Messages = append(doc.Messages, msg{Attachments: []att{{URL: f.srv.URL + "/" + n, FileName: n}}})
	}
	b, err := json.Marshal(doc)
	require.NoError(f.t, err)
	require.NoError(f.t, os.WriteFile(f.data, b, 0o644))
}

func (f *fixture) pipeline() *Pipeline {
	return &Pipeline{
		Exporter:    export.FileExporter{Path: f.data},
		Ledger:      f.ledger,
		Fetcher:     fetch.New(filepath.Join(f.root, "downloads"), 5*time.Second),
		Framer:      &frame.Runner{SrcDir: filepath.Join(f.root, "downloads"), DstDir: filepath.Join(f.root, "framed"), Workers: 2},
		ArchivePath: f.archive,
	}
}

func params(t *testing.T) frame.Params {
	p, err := frame.NewParams("#000000", 3)
	require.NoError(t, err)
	return p
}

func zipNames(t *testing.T, path string) []string {
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func TestExecuteSkipsKnownAttachments(t *testing.T) {
	f := newFixture(t)
	f.writeData("a.png", "known.png", "b.png")
	require.NoError(t, f.ledger.Append([]string{"known.png"}))

	var rec recorder
	out, err := f.pipeline().Execute(context.Background(), "run-1", params(t), false, &rec)
	require.NoError(t, err)

	assert.Equal(t, 3, out.Seen)
	assert.Equal(t, 2, out.Downloaded)
	assert.Equal(t, 2, out.Framed)
	assert.Equal(t, f.archive, out.Archive)
	assert.ElementsMatch(t, []string{"a.png", "b.png"}, zipNames(t, f.archive))

	known, err := f.ledger.Load(false)
	require.NoError(t, err)
	assert.Len(t, known, 3)

	assert.Equal(t, []Stage{StageExporting, StageLoading, StageDownloading, StageTransforming, StagePackaging, StageDone}, rec.stages)
	lines := rec.Lines()
	assert.Contains(t, lines, "Downloading 1/3: a.png")
	assert.Contains(t, lines, "Downloading 2/3: b.png")
	assert.Contains(t, lines, "Framing 1/2: Framed: a.png")
	assert.Contains(t, lines, "Framing 2/2: Framed: b.png")
	assert.Equal(t, "Processed 2 new images, framed 2.", lines[len(lines)-1])
}

func TestExecuteReportsFailedDownload(t *testing.T) {
	f := newFixture(t)
	f.writeData("ok.png", "missing.png")

	var rec recorder
	out, err := f.pipeline().Execute(context.Background(), "run-1", params(t), false, &rec)
	require.NoError(t, err)

	assert.Equal(t, 2, out.Seen)
	assert.Equal(t, 1, out.Downloaded)
	assert.LessOrEqual(t, out.Framed, 1)

	found := false
	for _, l := range rec.Lines() {
		if strings.HasPrefix(l, "Failed to download "+f.srv.URL+"/missing.png") {
			found = true
		}
	}
	assert.True(t, found, "missing failure line in %v", rec.Lines())

	known, err := f.ledger.Load(false)
	require.NoError(t, err)
	assert.True(t, known.Has("ok.png"))
	assert.False(t, known.Has("missing.png"))
}

func TestExecuteNothingNew(t *testing.T) {
	f := newFixture(t)
	f.writeData("a.png")
	require.NoError(t, f.ledger.Append([]string{"a.png"}))

	var rec recorder
	out, err := f.pipeline().Execute(context.Background(), "run-1", params(t), false, &rec)
	require.NoError(t, err)

	assert.Zero(t, out.Downloaded)
	assert.Empty(t, out.Archive)
	assert.Contains(t, rec.Lines(), "No new images to process.")
	assert.Contains(t, rec.Lines(), "No images were framed, skipping ZIP creation.")
	assert.NoFileExists(t, f.archive)
	assert.Equal(t, StageDone, rec.stages[len(rec.stages)-1])
}

func TestExecuteForceRefetches(t *testing.T) {
	f := newFixture(t)
	f.writeData("a.png")
	require.NoError(t, f.ledger.Append([]string{"a.png"}))

	var rec recorder
	out, err := f.pipeline().Execute(context.Background(), "run-1", params(t), true, &rec)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Downloaded)
	assert.Equal(t, 1, out.Framed)
}

func TestExecuteFailsOnMalformedData(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.data, []byte("{not json"), 0o644))

	var rec recorder
	_, err := f.pipeline().Execute(context.Background(), "run-1", params(t), false, &rec)
	require.Error(t, err)

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StageLoading, se.Stage)
	assert.Equal(t, StageFailed, rec.stages[len(rec.stages)-1])
	assert.Equal(t, progress.LevelError, rec.Events[len(rec.Events)-1].Level)
}

func TestExecuteFailsWithoutCredentials(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline()
	p.Exporter = &export.DiscordExporter{Path: "/nonexistent", WorkDir: f.root}

	var rec recorder
	_, err := p.Execute(context.Background(), "run-1", params(t), false, &rec)
	require.ErrorIs(t, err, export.ErrMissingCredentials)

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StageExporting, se.Stage)
	assert.NoFileExists(t, f.ledger.Path())
}

type fakePublisher struct {
	url string
	err error
}

func (p fakePublisher) Publish(ctx context.Context, runID, archivePath string) (string, error) {
	return p.url, p.err
}

func TestExecutePublishesArchive(t *testing.T) {
	f := newFixture(t)
	f.writeData("a.png")
	p := f.pipeline()
	p.Publisher = fakePublisher{url: "https://example.test/a.zip"}

	var rec recorder
	out, err := p.Execute(context.Background(), "run-1", params(t), false, &rec)
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/a.zip", out.ArchiveURL)
}

func TestExecutePublishFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.writeData("a.png")
	p := f.pipeline()
	p.Publisher = fakePublisher{err: errors.New("denied")}

	var rec recorder
	out, err := p.Execute(context.Background(), "run-1", params(t), false, &rec)
	require.NoError(t, err)
	assert.Empty(t, out.ArchiveURL)
	assert.Contains(t, rec.Lines(), "Archive upload failed: denied")
}

// Package archive bundles the framed images into a single zip file.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog/log"

	"github.com/fpang/artframe/internal/progress"
)

// Stage is the progress stage name used for packaging lines.
const Stage = "packaging"

// ErrNothingToPackage means the source directory holds no files.
var ErrNothingToPackage = errors.New("nothing to package")

// Package writes a fresh zip at archivePath holding every regular file in
// srcDir (hidden temp files excluded), one entry per file named by its base
// name, in directory listing order. One progress line is emitted per entry.
// The previous archive is replaced only once the new one is complete.
func Package(srcDir, archivePath string, sink progress.Sink) ([]string, error) {
	files, err := listFiles(srcDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNothingToPackage
	}

	dir := filepath.Dir(archivePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".zip-*")
	if err != nil {
		return nil, fmt.Errorf("create temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	zw := zip.NewWriter(tmp)
	// Images are already compressed; favour speed over ratio.
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestSpeed)
	})

	var entries []string
	for _, name := range files {
		if err := addFile(zw, filepath.Join(srcDir, name), name); err != nil {
			zw.Close()
			tmp.Close()
			return nil, err
		}
		entries = append(entries, name)
		sink.Emit(Stage, progress.LevelInfo, progress.AddedToZip(name))
	}

	if err := zw.Close(); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("finish archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(tmpPath, archivePath); err != nil {
		return nil, fmt.Errorf("replace archive: %w", err)
	}

	sink.Emit(Stage, progress.LevelInfo, progress.ZipCreated(archivePath))
	log.Info().Str("archive", archivePath).Int("entries", len(entries)).Msg("ZIP archive created")
	return entries, nil
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", name, err)
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("header %s: %w", name, err)
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("create entry %s: %w", name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("write entry %s: %w", name, err)
	}
	return nil
}

// Status describes the archive on disk.
type Status struct {
	Available bool      `json:"available"`
	Path      string    `json:"path,omitempty"`
	Size      int64     `json:"size,omitempty"`
	ModTime   time.Time `json:"modTime,omitempty"`
}

// Stat reports whether an archive exists at path.
func Stat(path string) Status {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return Status{}
	}
	return Status{Available: true, Path: path, Size: info.Size(), ModTime: info.ModTime()}
}

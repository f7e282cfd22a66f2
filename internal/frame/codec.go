package frame

import (
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// JPEGQuality is used when re-encoding JPEG inputs.
const JPEGQuality = 95

func encode(w io.Writer, format string, m image.Image) error {
	switch format {
	case "png":
		return png.Encode(w, m)
	case "jpeg":
		return jpeg.Encode(w, m, &jpeg.Options{Quality: JPEGQuality})
	case "gif":
		opts := &gif.Options{NumColors: 256, Drawer: draw.Src}
		if pm, ok := m.(*image.Paletted); ok && len(pm.Palette) > 0 {
			opts.NumColors = len(pm.Palette)
		}
		return gif.Encode(w, m, opts)
	case "bmp":
		return bmp.Encode(w, m)
	case "tiff":
		return tiff.Encode(w, m, &tiff.Options{Compression: tiff.Deflate})
	}
	return fmt.Errorf("no encoder for %s", format)
}

func canEncode(format string) bool {
	switch format {
	case "png", "jpeg", "gif", "bmp", "tiff":
		return true
	}
	return false
}

// encodeFile writes m in the given format via a temp file in the target
// directory, replacing any existing file.
func encodeFile(path, format string, m image.Image) error {
	if !canEncode(format) {
		return fmt.Errorf("no encoder for %s", format)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".frame-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	err = encode(tmp, format, m)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("encode %s: %w", format, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

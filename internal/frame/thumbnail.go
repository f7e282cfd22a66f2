package frame

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// DefaultThumbnailMaxDimension is the preview size used by the web UI.
const DefaultThumbnailMaxDimension = 800

// Thumbnail decodes path and returns a JPEG no larger than maxDimension on
// either side, keeping the aspect ratio. Smaller images are re-encoded as is.
func Thumbnail(path string, maxDimension int) ([]byte, error) {
	img, _, err := decodeFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := thumbnailDimensions(bounds.Dx(), bounds.Dy(), maxDimension)

	out := img
	if w != bounds.Dx() || h != bounds.Dy() {
		resized := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
		out = resized
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

func thumbnailDimensions(width, height, maxDimension int) (int, int) {
	if width <= maxDimension && height <= maxDimension {
		return width, height
	}
	if width > height {
		return maxDimension, max(1, int(float64(height)*float64(maxDimension)/float64(width)))
	}
	return max(1, int(float64(width)*float64(maxDimension)/float64(height))), maxDimension
}

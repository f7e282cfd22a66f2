// Package frame adds a solid-colored border to image files.
//
// Supported input formats: PNG, JPEG, GIF (standard library) and BMP, TIFF,
// WebP (golang.org/x/image). Output keeps the input's format and filename.
// WebP inputs are skipped because there is no pure Go WebP encoder.
package frame

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
)

// Stage is the progress stage name used for framing lines.
const Stage = "transforming"

// MaxThickness caps the border width accepted from callers.
const MaxThickness = 1000

var (
	ErrInvalidColor     = errors.New("invalid frame color")
	ErrInvalidThickness = errors.New("invalid frame thickness")
)

// Params are applied to every image in a run.
type Params struct {
	Color     color.RGBA
	Thickness int
}

// NewParams parses a hex color and validates the thickness.
func NewParams(hex string, thickness int) (Params, error) {
	c, err := ParseHexColor(hex)
	if err != nil {
		return Params{}, err
	}
	p := Params{Color: c, Thickness: thickness}
	return p, p.Validate()
}

// Validate checks the thickness range.
func (p Params) Validate() error {
	if p.Thickness <= 0 || p.Thickness > MaxThickness {
		return fmt.Errorf("%w: %d (must be 1..%d)", ErrInvalidThickness, p.Thickness, MaxThickness)
	}
	return nil
}

// Hex renders the color as "#rrggbb".
func (p Params) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", p.Color.R, p.Color.G, p.Color.B)
}

// ParseHexColor accepts "#rrggbb", "rrggbb", "#rgb" or "rgb". The result is
// in R,G,B order, which is what image/color uses, so no channel swap is
// needed before drawing.
func ParseHexColor(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return color.RGBA{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

// Status is the outcome of framing one file.
type Status string

const (
	StatusFramed  Status = "framed"
	StatusSkipped Status = "skipped"
)

// Result describes what happened to one file.
type Result struct {
	FileName string `json:"fileName"`
	Status   Status `json:"status"`
	Reason   string `json:"reason,omitempty"`
}

// OK reports whether the file was framed.
func (r Result) OK() bool { return r.Status == StatusFramed }

func (r Result) String() string {
	if r.OK() {
		return "Framed: " + r.FileName
	}
	return fmt.Sprintf("Skipping %s (%s)", r.FileName, r.Reason)
}

// Border returns a new image T pixels larger on every edge, filled with c,
// with src drawn unshifted in the centre. The result's bounds start at 0,0.
func Border(src image.Image, c color.Color, t int) draw.Image {
	b := src.Bounds()
	rect := image.Rect(0, 0, b.Dx()+2*t, b.Dy()+2*t)

	var dst draw.Image
	switch s := src.(type) {
	case *image.Paletted:
		return borderPaletted(s, c, t)
	case *image.NRGBA:
		// Keep straight alpha so translucent pixels round-trip exactly.
		dst = image.NewNRGBA(rect)
	default:
		dst = image.NewRGBA(rect)
	}

	draw.Draw(dst, rect, image.NewUniform(c), image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(t, t, t+b.Dx(), t+b.Dy()), src, b.Min, draw.Src)
	return dst
}

// borderPaletted keeps a paletted source paletted so GIF output needs no
// quantization. Source indices are copied as is. The border color reuses an
// equal palette entry, is appended, or replaces the least-used entry of a
// full palette; pixels of a replaced entry move to the nearest other entry.
func borderPaletted(src *image.Paletted, c color.Color, t int) *image.Paletted {
	b := src.Bounds()
	pal := append(color.Palette(nil), src.Palette...)

	idx := -1
	for i, pc := range pal {
		if rgba(pc) == rgba(c) {
			idx = i
			break
		}
	}

	remap := -1
	if idx < 0 {
		if len(pal) < 256 {
			pal = append(pal, c)
			idx = len(pal) - 1
		} else {
			var counts [256]int
			for y := b.Min.Y; y < b.Max.Y; y++ {
				for _, v := range src.Pix[src.PixOffset(b.Min.X, y):src.PixOffset(b.Max.X, y)] {
					counts[v]++
				}
			}
			idx = 0
			for i := range pal {
				if counts[i] < counts[idx] {
					idx = i
				}
			}
			if counts[idx] > 0 {
				remap = nearestExcept(pal, pal[idx], idx)
			}
			pal[idx] = c
		}
	}

	dst := image.NewPaletted(image.Rect(0, 0, b.Dx()+2*t, b.Dy()+2*t), pal)
	for i := range dst.Pix {
		dst.Pix[i] = uint8(idx)
	}
	for y := 0; y < b.Dy(); y++ {
		row := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):src.PixOffset(b.Max.X, b.Min.Y+y)]
		out := dst.Pix[dst.PixOffset(t, t+y):dst.PixOffset(t+b.Dx(), t+y)]
		for x, v := range row {
			if remap >= 0 && int(v) == idx {
				v = uint8(remap)
			}
			out[x] = v
		}
	}
	return dst
}

func rgba(c color.Color) [4]uint32 {
	r, g, b, a := c.RGBA()
	return [4]uint32{r, g, b, a}
}

// nearestExcept returns the index of the palette entry closest to c, skipping skip.
func nearestExcept(pal color.Palette, c color.Color, skip int) int {
	want := rgba(c)
	best, bestDist := -1, uint64(0)
	for i, pc := range pal {
		if i == skip {
			continue
		}
		got := rgba(pc)
		var d uint64
		for k := range got {
			diff := int64(got[k]) - int64(want[k])
			d += uint64(diff * diff)
		}
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// Apply frames srcPath and writes the result to dstPath. Decode failures and
// unsupported formats are Skipped results, never errors.
func Apply(srcPath, dstPath string, p Params) Result {
	name := filepath.Base(srcPath)

	img, format, err := decodeFile(srcPath)
	if err != nil {
		log.Warn().Err(err).Str("path", srcPath).Msg("Cannot decode image")
		return Result{FileName: name, Status: StatusSkipped, Reason: "invalid image"}
	}
	if !canEncode(format) {
		return Result{FileName: name, Status: StatusSkipped, Reason: "unsupported output format " + format}
	}

	framed := Border(img, p.Color, p.Thickness)

	if err := encodeFile(dstPath, format, framed); err != nil {
		log.Error().Err(err).Str("path", dstPath).Msg("Failed to write framed image")
		return Result{FileName: name, Status: StatusSkipped, Reason: err.Error()}
	}

	log.Debug().
		Str("file", name).
		Str("format", format).
		Int("width", framed.Bounds().Dx()).
		Int("height", framed.Bounds().Dy()).
		Msg("Framed image")
	return Result{FileName: name, Status: StatusFramed}
}

func decodeFile(path string) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	return image.Decode(f)
}

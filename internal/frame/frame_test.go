package frame

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

// testImage returns a W×H opaque image with a distinct color per pixel.
func testImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 17), G: uint8(y * 29), B: uint8(x + y), A: 0xff})
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func readImage(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, _, err := image.Decode(f)
	require.NoError(t, err)
	return img
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.RGBA
	}{
		{"#ff0000", color.RGBA{R: 0xff, A: 0xff}},
		{"00ff00", color.RGBA{G: 0xff, A: 0xff}},
		{"#0000FF", color.RGBA{B: 0xff, A: 0xff}},
		{"#abc", color.RGBA{R: 0xaa, G: 0xbb, B: 0xcc, A: 0xff}},
		{" 123456 ", color.RGBA{R: 0x12, G: 0x34, B: 0x56, A: 0xff}},
	}
	for _, tt := range tests {
		got, err := ParseHexColor(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "#12", "#1234567", "zzzzzz", "#12345g"} {
		_, err := ParseHexColor(bad)
		assert.True(t, errors.Is(err, ErrInvalidColor), bad)
	}
}

func TestNewParams(t *testing.T) {
	p, err := NewParams("ff8800", 30)
	require.NoError(t, err)
	assert.Equal(t, "#ff8800", p.Hex())

	_, err = NewParams("ff8800", 0)
	assert.True(t, errors.Is(err, ErrInvalidThickness))
	_, err = NewParams("ff8800", MaxThickness+1)
	assert.True(t, errors.Is(err, ErrInvalidThickness))
	_, err = NewParams("nope", 10)
	assert.True(t, errors.Is(err, ErrInvalidColor))
}

func TestBorderRoundTrip(t *testing.T) {
	const w, h, th = 7, 5, 3
	src := testImage(w, h)
	red := color.RGBA{R: 0xff, A: 0xff}

	out := Border(src, red, th)
	require.Equal(t, image.Rect(0, 0, w+2*th, h+2*th), out.Bounds())

	for y := 0; y < h+2*th; y++ {
		for x := 0; x < w+2*th; x++ {
			inside := x >= th && x < th+w && y >= th && y < th+h
			if inside {
				assert.Equal(t, rgba(src.At(x-th, y-th)), rgba(out.At(x, y)), "centre pixel %d,%d", x, y)
			} else {
				assert.Equal(t, rgba(red), rgba(out.At(x, y)), "border pixel %d,%d", x, y)
			}
		}
	}
}

func TestBorderOffsetBounds(t *testing.T) {
	src := testImage(6, 6).SubImage(image.Rect(2, 2, 5, 4))
	out := Border(src, color.Black, 1)
	assert.Equal(t, image.Rect(0, 0, 5, 4), out.Bounds())
	assert.Equal(t, rgba(src.At(2, 2)), rgba(out.At(1, 1)))
}

func TestApplyPNG(t *testing.T) {
	dir := t.TempDir()
	srcDir, dstDir := filepath.Join(dir, "in"), filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(srcDir, 0o755))

	src := testImage(4, 3)
	writePNG(t, filepath.Join(srcDir, "a.png"), src)

	p, err := NewParams("#ff0000", 2)
	require.NoError(t, err)
	res := Apply(filepath.Join(srcDir, "a.png"), filepath.Join(dstDir, "a.png"), p)
	require.True(t, res.OK(), res.Reason)
	assert.Equal(t, "Framed: a.png", res.String())

	out := readImage(t, filepath.Join(dstDir, "a.png"))
	assert.Equal(t, 8, out.Bounds().Dx())
	assert.Equal(t, 7, out.Bounds().Dy())
	// The hex string is R,G,B; a red frame must come out red, not blue.
	r, g, b, _ := out.At(0, 0).RGBA()
	assert.Equal(t, [3]uint32{0xffff, 0, 0}, [3]uint32{r, g, b})
	assert.Equal(t, rgba(src.At(1, 1)), rgba(out.At(3, 3)))
}

func TestApplyJPEGAndBMPKeepFormat(t *testing.T) {
	dir := t.TempDir()
	p, err := NewParams("000000", 1)
	require.NoError(t, err)

	jpgPath := filepath.Join(dir, "photo.jpg")
	f, err := os.Create(jpgPath)
	require.NoError(t, err)
	require.NoError(t, jpeg.Encode(f, testImage(8, 8), nil))
	require.NoError(t, f.Close())

	bmpPath := filepath.Join(dir, "old.bmp")
	f, err = os.Create(bmpPath)
	require.NoError(t, err)
	require.NoError(t, bmp.Encode(f, testImage(3, 3)))
	require.NoError(t, f.Close())

	outDir := filepath.Join(dir, "out")
	for _, name := range []string{"photo.jpg", "old.bmp"} {
		res := Apply(filepath.Join(dir, name), filepath.Join(outDir, name), p)
		require.True(t, res.OK(), "%s: %s", name, res.Reason)
	}

	f, err = os.Open(filepath.Join(outDir, "photo.jpg"))
	require.NoError(t, err)
	_, format, err := image.DecodeConfig(f)
	f.Close()
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)

	f, err = os.Open(filepath.Join(outDir, "old.bmp"))
	require.NoError(t, err)
	cfg, format, err := image.DecodeConfig(f)
	f.Close()
	require.NoError(t, err)
	assert.Equal(t, "bmp", format)
	assert.Equal(t, 5, cfg.Width)
}

func TestApplyGIFIsExact(t *testing.T) {
	dir := t.TempDir()
	src := image.NewPaletted(image.Rect(0, 0, 8, 8), palette.WebSafe)
	for i := range src.Pix {
		src.Pix[i] = uint8((i * 7) % len(palette.WebSafe))
	}
	f, err := os.Create(filepath.Join(dir, "anim.gif"))
	require.NoError(t, err)
	require.NoError(t, gif.Encode(f, src, nil))
	require.NoError(t, f.Close())

	p, err := NewParams("#123456", 4)
	require.NoError(t, err)
	res := Apply(filepath.Join(dir, "anim.gif"), filepath.Join(dir, "out", "anim.gif"), p)
	require.True(t, res.OK(), res.Reason)

	f, err = os.Open(filepath.Join(dir, "out", "anim.gif"))
	require.NoError(t, err)
	out, err := gif.Decode(f)
	f.Close()
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 16, 16), out.Bounds())

	want := rgba(color.RGBA{R: 0x12, G: 0x34, B: 0x56, A: 0xff})
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			if x >= 4 && x < 12 && y >= 4 && y < 12 {
				assert.Equal(t, rgba(src.At(x-4, y-4)), rgba(out.At(x, y)), "centre pixel %d,%d", x, y)
			} else {
				assert.Equal(t, want, rgba(out.At(x, y)), "border pixel %d,%d", x, y)
			}
		}
	}
}

func grayPalette() color.Palette {
	pal := make(color.Palette, 256)
	for i := range pal {
		pal[i] = color.Gray{Y: uint8(i)}
	}
	return pal
}

func TestBorderPalettedFullPaletteReusesUnusedEntry(t *testing.T) {
	src := image.NewPaletted(image.Rect(0, 0, 16, 16), grayPalette())
	for i := range src.Pix {
		src.Pix[i] = uint8(i)
	}
	src.Pix[200] = 201 // entry 200 is now unused

	red := color.RGBA{R: 0xff, A: 0xff}
	out := Border(src, red, 1)
	pm, ok := out.(*image.Paletted)
	require.True(t, ok)
	assert.Len(t, pm.Palette, 256)
	assert.Equal(t, rgba(red), rgba(out.At(0, 0)))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			assert.Equal(t, rgba(src.At(x, y)), rgba(out.At(x+1, y+1)), "pixel %d,%d", x, y)
		}
	}
}

func TestBorderPalettedFullPaletteRemapsLeastUsed(t *testing.T) {
	src := image.NewPaletted(image.Rect(0, 0, 16, 16), grayPalette())
	for i := range src.Pix {
		src.Pix[i] = uint8(i)
	}

	red := color.RGBA{R: 0xff, A: 0xff}
	out := Border(src, red, 1)
	assert.Equal(t, rgba(red), rgba(out.At(0, 0)))
	// Every entry is used once, so entry 0 gives way and its pixel moves to
	// the nearest remaining gray.
	assert.Equal(t, rgba(color.Gray{Y: 1}), rgba(out.At(1, 1)))
	assert.Equal(t, rgba(src.At(5, 3)), rgba(out.At(6, 4)))
}

func TestBorderPalettedReusesExistingEntry(t *testing.T) {
	src := image.NewPaletted(image.Rect(0, 0, 2, 2), color.Palette{color.Black, color.White})
	src.Pix = []uint8{1, 1, 1, 1}
	out := Border(src, color.RGBA{A: 0xff}, 1).(*image.Paletted)
	assert.Len(t, out.Palette, 2)
	assert.Equal(t, uint8(0), out.ColorIndexAt(0, 0))
	assert.Equal(t, uint8(1), out.ColorIndexAt(1, 1))
}

func TestApplyInvalidImage(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "b.png")
	require.NoError(t, os.WriteFile(src, []byte("not an image"), 0o644))

	p, _ := NewParams("#000000", 5)
	res := Apply(src, filepath.Join(dir, "out", "b.png"), p)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Equal(t, "invalid image", res.Reason)
	assert.Equal(t, "Skipping b.png (invalid image)", res.String())
	assert.NoFileExists(t, filepath.Join(dir, "out", "b.png"))
}

func TestThumbnail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.png")
	writePNG(t, path, testImage(200, 100))

	data, err := Thumbnail(path, 50)
	require.NoError(t, err)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 50, cfg.Width)
	assert.Equal(t, 25, cfg.Height)
}

func TestThumbnailDimensions(t *testing.T) {
	w, h := thumbnailDimensions(100, 50, 200)
	assert.Equal(t, [2]int{100, 50}, [2]int{w, h})
	w, h = thumbnailDimensions(100, 400, 200)
	assert.Equal(t, [2]int{50, 200}, [2]int{w, h})
	w, h = thumbnailDimensions(1000, 1, 10)
	assert.Equal(t, [2]int{10, 1}, [2]int{w, h})
}

package imaging_test

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avatar-backend/internal/imaging"
)

func solidImage(width, height int, fill color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: fill}, image.Point{}, draw.Src)
	return img
}

func encode(t *testing.T, img image.Image) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decode(t *testing.T, data []byte) image.Image {
	img, _, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func TestSplitGrid(t *testing.T) {
	// Four quadrants with distinct colors, row-major order expected.
	colors := []color.RGBA{
		{R: 255, A: 255},         // top-left
		{G: 255, A: 255},         // top-right
		{B: 255, A: 255},         // bottom-left
		{R: 255, G: 255, A: 255}, // bottom-right
	}

	grid := image.NewRGBA(image.Rect(0, 0, 100, 80))
	draw.Draw(grid, image.Rect(0, 0, 50, 40), &image.Uniform{C: colors[0]}, image.Point{}, draw.Src)
	draw.Draw(grid, image.Rect(50, 0, 100, 40), &image.Uniform{C: colors[1]}, image.Point{}, draw.Src)
	draw.Draw(grid, image.Rect(0, 40, 50, 80), &image.Uniform{C: colors[2]}, image.Point{}, draw.Src)
	draw.Draw(grid, image.Rect(50, 40, 100, 80), &image.Uniform{C: colors[3]}, image.Point{}, draw.Src)

	cells, err := imaging.SplitGrid(encode(t, grid), 2, 2)
	require.NoError(t, err)
	require.Len(t, cells, 4)

	for i, cell := range cells {
		img := decode(t, cell)
		assert.Equal(t, 50, img.Bounds().Dx())
		assert.Equal(t, 40, img.Bounds().Dy())

		r, g, b, _ := img.At(25, 20).RGBA()
		want := colors[i]
		assert.EqualValues(t, want.R, r>>8, "cell %d red", i)
		assert.EqualValues(t, want.G, g>>8, "cell %d green", i)
		assert.EqualValues(t, want.B, b>>8, "cell %d blue", i)
	}
}

func TestSplitGridFourByTwo(t *testing.T) {
	grid := solidImage(200, 400, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	cells, err := imaging.SplitGrid(encode(t, grid), 4, 2)
	require.NoError(t, err)
	require.Len(t, cells, 8)

	img := decode(t, cells[0])
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 100, img.Bounds().Dy())
}

func TestSplitGridErrors(t *testing.T) {
	_, err := imaging.SplitGrid([]byte("not an image"), 2, 2)
	assert.Error(t, err)

	_, err = imaging.SplitGrid(encode(t, solidImage(10, 10, color.RGBA{A: 255})), 0, 2)
	assert.Error(t, err)

	_, err = imaging.SplitGrid(encode(t, solidImage(2, 2, color.RGBA{A: 255})), 10, 10)
	assert.Error(t, err)
}

func TestTrimWhiteBorders(t *testing.T) {
	// Dark content framed by a 10px white border on every edge.
	img := solidImage(100, 100, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	draw.Draw(img, image.Rect(10, 10, 90, 90), &image.Uniform{C: color.RGBA{R: 30, G: 30, B: 30, A: 255}}, image.Point{}, draw.Src)

	trimmed := imaging.TrimWhiteBorders(encode(t, img))
	out := decode(t, trimmed)

	assert.Equal(t, 80, out.Bounds().Dx())
	assert.Equal(t, 80, out.Bounds().Dy())

	r, _, _, _ := out.At(0, 0).RGBA()
	assert.EqualValues(t, 30, r>>8)
}

func TestTrimWhiteBordersKeepsNarrowBorder(t *testing.T) {
	// A 2px border is below the minimum width and must survive.
	img := solidImage(100, 100, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	draw.Draw(img, image.Rect(2, 2, 98, 98), &image.Uniform{C: color.RGBA{R: 30, G: 30, B: 30, A: 255}}, image.Point{}, draw.Src)

	data := encode(t, img)
	trimmed := imaging.TrimWhiteBorders(data)
	assert.Equal(t, data, trimmed)
}

func TestTrimWhiteBordersNoBorder(t *testing.T) {
	data := encode(t, solidImage(50, 50, color.RGBA{R: 30, G: 30, B: 30, A: 255}))
	assert.Equal(t, data, imaging.TrimWhiteBorders(data))
}

func TestTrimWhiteBordersAllWhiteImage(t *testing.T) {
	data := encode(t, solidImage(40, 40, color.RGBA{R: 255, G: 255, B: 255, A: 255}))
	assert.Equal(t, data, imaging.TrimWhiteBorders(data))
}

func TestTrimWhiteBordersInvalidInput(t *testing.T) {
	data := []byte("not an image")
	assert.Equal(t, data, imaging.TrimWhiteBorders(data))
}

func TestJitterKeepsGeometry(t *testing.T) {
	data := encode(t, solidImage(60, 40, color.RGBA{R: 100, G: 120, B: 140, A: 255}))

	jittered := imaging.Jitter(data)
	out := decode(t, jittered)

	assert.Equal(t, 60, out.Bounds().Dx())
	assert.Equal(t, 40, out.Bounds().Dy())

	// The shift is small: channels stay in the neighborhood of the source.
	r, g, b, a := out.At(30, 20).RGBA()
	assert.InDelta(t, 100, float64(r>>8), 25)
	assert.InDelta(t, 120, float64(g>>8), 25)
	assert.InDelta(t, 140, float64(b>>8), 25)
	assert.EqualValues(t, 255, a>>8)
}

func TestJitterInvalidInput(t *testing.T) {
	data := []byte("not an image")
	assert.Equal(t, data, imaging.Jitter(data))
}

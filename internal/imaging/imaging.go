package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"math/rand"
)

// White border detection tuning. Pixels with all channels at or above
// whiteThreshold count as white; a row or column is a border row when at
// least 95% of its pixels are white. Borders narrower than minBorderWidth
// are treated as image content, and scanning stops edgeScanDepth pixels in.
const (
	whiteThreshold = 230
	edgeScanDepth  = 50
	minBorderWidth = 5
	whiteRowRatio  = 0.95
)

// SplitGrid cuts a composite grid image into rows*cols cells, row-major.
func SplitGrid(imageBytes []byte, rows, cols int) ([][]byte, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("invalid grid geometry %dx%d", rows, cols)
	}

	img, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, fmt.Errorf("error decoding grid image: %w", err)
	}

	bounds := img.Bounds()
	cellW := bounds.Dx() / cols
	cellH := bounds.Dy() / rows
	if cellW == 0 || cellH == 0 {
		return nil, fmt.Errorf("grid image %dx%d too small for %dx%d split", bounds.Dx(), bounds.Dy(), rows, cols)
	}

	cells := make([][]byte, 0, rows*cols)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			rect := image.Rect(0, 0, cellW, cellH)
			cell := image.NewRGBA(rect)
			origin := image.Pt(bounds.Min.X+col*cellW, bounds.Min.Y+row*cellH)
			draw.Draw(cell, rect, img, origin, draw.Src)

			encoded, err := encodePNG(cell)
			if err != nil {
				return nil, err
			}
			cells = append(cells, encoded)
		}
	}

	return cells, nil
}

// TrimWhiteBorders removes white padding from the image edges. On any
// processing failure the original bytes come back unchanged; a bad trim is
// worse than a white border.
func TrimWhiteBorders(imageBytes []byte) []byte {
	img, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		slog.Warn("error decoding image for border trim, keeping original", "error", err)
		return imageBytes
	}

	bounds := img.Bounds()
	top := detectBorder(bounds.Dy(), func(i int) bool { return isWhiteRow(img, bounds.Min.Y+i) })
	bottom := detectBorder(bounds.Dy(), func(i int) bool { return isWhiteRow(img, bounds.Max.Y-1-i) })
	left := detectBorder(bounds.Dx(), func(i int) bool { return isWhiteColumn(img, bounds.Min.X+i) })
	right := detectBorder(bounds.Dx(), func(i int) bool { return isWhiteColumn(img, bounds.Max.X-1-i) })

	if top+bottom+left+right == 0 {
		return imageBytes
	}

	cropMinX := bounds.Min.X + left
	cropMinY := bounds.Min.Y + top
	cropMaxX := bounds.Max.X - right
	cropMaxY := bounds.Max.Y - bottom
	if cropMinX >= cropMaxX || cropMinY >= cropMaxY {
		slog.Warn("border trim would remove entire image, keeping original")
		return imageBytes
	}

	rect := image.Rect(0, 0, cropMaxX-cropMinX, cropMaxY-cropMinY)
	cropped := image.NewRGBA(rect)
	draw.Draw(cropped, rect, img, image.Pt(cropMinX, cropMinY), draw.Src)

	encoded, err := encodePNG(cropped)
	if err != nil {
		slog.Warn("error encoding trimmed image, keeping original", "error", err)
		return imageBytes
	}

	slog.Debug("trimmed white borders", "top", top, "bottom", bottom, "left", left, "right", right)
	return encoded
}

// Jitter applies a small random brightness and contrast shift so a task's
// images do not all share identical post-processing. Failures fall back to
// the original bytes.
func Jitter(imageBytes []byte) []byte {
	img, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		slog.Warn("error decoding image for style jitter, keeping original", "error", err)
		return imageBytes
	}

	contrast := 0.95 + rand.Float64()*0.2  // 0.95x .. 1.15x
	brightness := -8 + rand.Float64()*16.0 // -8 .. +8 per channel

	bounds := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			out.SetRGBA(x-bounds.Min.X, y-bounds.Min.Y, color.RGBA{
				R: adjustChannel(r, contrast, brightness),
				G: adjustChannel(g, contrast, brightness),
				B: adjustChannel(b, contrast, brightness),
				A: uint8(a >> 8),
			})
		}
	}

	encoded, err := encodePNG(out)
	if err != nil {
		slog.Warn("error encoding jittered image, keeping original", "error", err)
		return imageBytes
	}
	return encoded
}

func adjustChannel(channel uint32, contrast, brightness float64) uint8 {
	value := float64(channel>>8)/255.0 - 0.5
	value = value*contrast + 0.5
	scaled := value*255.0 + brightness
	if scaled < 0 {
		return 0
	}
	if scaled > 255 {
		return 255
	}
	return uint8(scaled)
}

func detectBorder(extent int, isWhite func(i int) bool) int {
	depth := min(edgeScanDepth, extent)
	for i := 0; i < depth; i++ {
		if !isWhite(i) {
			if i >= minBorderWidth {
				return i
			}
			return 0
		}
	}
	return 0
}

func isWhiteRow(img image.Image, y int) bool {
	bounds := img.Bounds()
	white := 0
	for x := bounds.Min.X; x < bounds.Max.X; x++ {
		if isWhitePixel(img.At(x, y)) {
			white++
		}
	}
	return float64(white) >= float64(bounds.Dx())*whiteRowRatio
}

func isWhiteColumn(img image.Image, x int) bool {
	bounds := img.Bounds()
	white := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		if isWhitePixel(img.At(x, y)) {
			white++
		}
	}
	return float64(white) >= float64(bounds.Dy())*whiteRowRatio
}

func isWhitePixel(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r>>8 >= whiteThreshold && g>>8 >= whiteThreshold && b>>8 >= whiteThreshold
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("error encoding image: %w", err)
	}
	return buf.Bytes(), nil
}

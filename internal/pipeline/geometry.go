package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/noah-isme/supermarks-api/internal/models"
)

// Placeholder crop dimensions used when a question has no regions.
const (
	PlaceholderWidth  = 400
	PlaceholderHeight = 100
)

// PixelRect denormalizes a fractional region against a page of width x height pixels. Edges are
// truncated, clamped into the page and the result is at least one pixel wide and tall.
func PixelRect(region models.Region, width, height int) image.Rectangle {
	left := clamp(int(math.Floor(region.X*float64(width))), 0, width-1)
	top := clamp(int(math.Floor(region.Y*float64(height))), 0, height-1)
	right := clamp(int(math.Floor((region.X+region.W)*float64(width))), 0, width)
	bottom := clamp(int(math.Floor((region.Y+region.H)*float64(height))), 0, height)

	if right <= left {
		right = left + 1
	}
	if bottom <= top {
		bottom = top + 1
	}

	return image.Rect(left, top, right, bottom)
}

func clamp(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

// Stitch stacks parts top to bottom on a white canvas as wide as the widest part. Narrower parts
// stay left-aligned at their natural size.
func Stitch(parts []image.Image) *image.NRGBA {
	if len(parts) == 0 {
		return Placeholder()
	}

	width, height := 0, 0
	for _, part := range parts {
		bounds := part.Bounds()
		if bounds.Dx() > width {
			width = bounds.Dx()
		}
		height += bounds.Dy()
	}

	canvas := imaging.New(width, height, color.White)
	offset := 0
	for _, part := range parts {
		canvas = imaging.Paste(canvas, part, image.Pt(0, offset))
		offset += part.Bounds().Dy()
	}

	return canvas
}

// Placeholder is the blank crop stored for questions without regions.
func Placeholder() *image.NRGBA {
	return imaging.New(PlaceholderWidth, PlaceholderHeight, color.White)
}

// Normalize converts any decoded image to 8-bit non-premultiplied RGBA anchored at the origin.
func Normalize(img image.Image) *image.NRGBA {
	return imaging.Clone(img)
}

// DecodeImage decodes PNG, JPEG, GIF, WebP, TIFF or BMP bytes applying EXIF orientation.
func DecodeImage(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// EncodePNG encodes img as PNG. The output is byte-identical for identical pixels.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

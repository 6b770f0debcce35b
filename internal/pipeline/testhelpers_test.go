package pipeline

import (
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
)

func solid(width, height int, fill color.Color) *image.NRGBA {
	return imaging.New(width, height, fill)
}

func solidPNG(t *testing.T, width, height int, fill color.Color) []byte {
	t.Helper()
	data, err := EncodePNG(solid(width, height, fill))
	require.NoError(t, err)
	return data
}

func rgbaAt(img image.Image, x, y int) color.NRGBA {
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}

var (
	white = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	red   = color.NRGBA{R: 255, A: 255}
	blue  = color.NRGBA{B: 255, A: 255}
)

package roadseg

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskFromBackground(t *testing.T) {
	bounds := image.Rect(0, 0, 10, 10)
	img := image.NewRGBA(bounds)

	// Fill with red
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.Set(x, y, color.RGBA{255, 0, 0, 255})
		}
	}
	// A road-colored square in the middle, and one almost-red pixel
	for y := 4; y < 6; y++ {
		for x := 4; x < 6; x++ {
			img.Set(x, y, color.RGBA{255, 0, 255, 255})
		}
	}
	img.Set(0, 9, color.RGBA{254, 0, 0, 255})

	t.Run("Exact", func(t *testing.T) {
		mask := MaskFromBackground(img, BackgroundColor, 0)
		assert.Equal(t, uint8(0), mask.GrayAt(0, 0).Y, "background")
		assert.Equal(t, uint8(255), mask.GrayAt(5, 5).Y, "object")
		assert.Equal(t, uint8(255), mask.GrayAt(0, 9).Y, "near-red pixel is foreground with zero tolerance")
	})

	t.Run("Tolerance", func(t *testing.T) {
		mask := MaskFromBackground(img, BackgroundColor, 10)
		assert.Equal(t, uint8(0), mask.GrayAt(0, 9).Y, "near-red pixel is background within tolerance")
		assert.Equal(t, uint8(255), mask.GrayAt(5, 5).Y, "object")
	})

	t.Run("OffsetBounds", func(t *testing.T) {
		sub := img.SubImage(image.Rect(4, 4, 6, 6))
		mask := MaskFromBackground(sub, BackgroundColor, 0)
		require.Equal(t, image.Rect(0, 0, 2, 2), mask.Bounds())
		assert.Equal(t, []uint8{255, 255, 255, 255}, mask.Pix)
	})
}

func TestSegmentationMask(t *testing.T) {
	shape := Shape{Height: 2, Width: 3}
	probs := []float32{0.1, 0.5, 0.51, 0.9, 0.0, 1.0}

	mask := SegmentationMask(probs, shape, Threshold)
	require.Equal(t, image.Rect(0, 0, 3, 2), mask.Bounds())

	want := [][]uint8{{0, 0, 255}, {255, 0, 255}}
	for y := range want {
		for x := range want[y] {
			assert.Equal(t, want[y][x], mask.GrayAt(x, y).Y, "at (%d,%d)", x, y)
		}
	}
}

func TestSegmentationMaskShortProbabilities(t *testing.T) {
	shape := Shape{Height: 2, Width: 3}

	for _, probs := range [][]float32{nil, {0.9, 0.9, 0.9}} {
		var mask *image.Gray
		require.NotPanics(t, func() { mask = SegmentationMask(probs, shape, Threshold) })
		require.Equal(t, image.Rect(0, 0, 3, 2), mask.Bounds())
		assert.Equal(t, make([]uint8, 6), mask.Pix)
	}
}

func TestSegmentationMaskLongProbabilities(t *testing.T) {
	shape := Shape{Height: 1, Width: 2}
	mask := SegmentationMask([]float32{0.9, 0.1, 0.9}, shape, Threshold)
	assert.Equal(t, []uint8{255, 0}, mask.Pix)
}

func TestOverlay(t *testing.T) {
	bounds := image.Rect(0, 0, 4, 1)
	src := image.NewNRGBA(bounds)
	for x := 0; x < 4; x++ {
		src.SetNRGBA(x, 0, color.NRGBA{100, 100, 100, 255})
	}
	mask := image.NewGray(bounds)
	mask.SetGray(1, 0, color.Gray{Y: 255})
	mask.SetGray(3, 0, color.Gray{Y: 255})

	out := Overlay(src, mask, Tint)

	// Unmasked pixels are untouched
	assert.Equal(t, color.NRGBA{100, 100, 100, 255}, out.NRGBAAt(0, 0))
	// Masked: src*(128/255) + tint*(127/255)
	want := color.NRGBA{50, 177, 50, 255}
	assert.Equal(t, want, out.NRGBAAt(1, 0))
	assert.Equal(t, want, out.NRGBAAt(3, 0))
	// Source is not modified
	assert.Equal(t, color.NRGBA{100, 100, 100, 255}, src.NRGBAAt(1, 0))
}

func TestCoverage(t *testing.T) {
	mask := image.NewGray(image.Rect(0, 0, 2, 2))
	assert.Equal(t, 0.0, coverage(mask))
	mask.SetGray(0, 0, color.Gray{Y: 255})
	assert.Equal(t, 0.25, coverage(mask))
	assert.Equal(t, 0.0, coverage(&image.Gray{}))
}

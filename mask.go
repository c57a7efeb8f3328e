package roadseg

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// MaskFromBackground builds a mask by comparing each pixel's RGB to bg.
// Pixels farther than tolerance (in 8-bit units) are 255, the rest 0.
// Alpha is ignored. The mask always starts at the origin.
func MaskFromBackground(img image.Image, bg color.Color, tolerance int) *image.Gray {
	nrgba := imaging.Clone(img)
	bounds := nrgba.Bounds()
	mask := image.NewGray(bounds)

	c := color.NRGBAModel.Convert(bg).(color.NRGBA)
	tol := tolerance * tolerance
	for y := range bounds.Dy() {
		row := nrgba.Pix[y*nrgba.Stride:]
		for x := range bounds.Dx() {
			dr := int(row[x*4+0]) - int(c.R)
			dg := int(row[x*4+1]) - int(c.G)
			db := int(row[x*4+2]) - int(c.B)
			if dr*dr+dg*dg+db*db > tol {
				mask.Pix[y*mask.Stride+x] = 255
			}
		}
	}
	return mask
}

// SegmentationMask marks the pixels whose probability is strictly above threshold.
// probs is row-major with shape.Pixels() entries; a shorter map gives an empty mask.
func SegmentationMask(probs []float32, shape Shape, threshold float32) *image.Gray {
	mask := image.NewGray(image.Rect(0, 0, shape.Width, shape.Height))
	if len(probs) < shape.Pixels() {
		return mask
	}
	for i, p := range probs[:shape.Pixels()] {
		if p > threshold {
			mask.Pix[(i/shape.Width)*mask.Stride+i%shape.Width] = 255
		}
	}
	return mask
}

// Overlay returns a copy of img with tint composited over every nonzero mask
// pixel, using the tint's alpha as the blend weight. Other pixels are unchanged.
func Overlay(img image.Image, mask *image.Gray, tint color.NRGBA) *image.NRGBA {
	out := imaging.Clone(img)
	bounds := out.Bounds()
	alpha := float64(tint.A) / 255.0

	for y := range min(bounds.Dy(), mask.Bounds().Dy()) {
		for x := range min(bounds.Dx(), mask.Bounds().Dx()) {
			if mask.Pix[y*mask.Stride+x] == 0 {
				continue
			}
			i := y*out.Stride + x*4
			out.Pix[i+0] = blend(out.Pix[i+0], tint.R, alpha)
			out.Pix[i+1] = blend(out.Pix[i+1], tint.G, alpha)
			out.Pix[i+2] = blend(out.Pix[i+2], tint.B, alpha)
		}
	}
	return out
}

func blend(dst, src uint8, alpha float64) uint8 {
	return uint8(float64(src)*alpha + float64(dst)*(1-alpha) + 0.5)
}

// coverage is the fraction of nonzero mask pixels.
func coverage(mask *image.Gray) float64 {
	if len(mask.Pix) == 0 {
		return 0
	}
	n := 0
	for _, v := range mask.Pix {
		if v != 0 {
			n++
		}
	}
	return float64(n) / float64(len(mask.Pix))
}

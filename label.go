package roadseg

import (
	"image"

	"gorgonia.org/tensor"
)

// OneHotLabel encodes a ground-truth image as a (height, width, 2) bool tensor.
// Channel 0 is set where the pixel is BackgroundColor, channel 1 everywhere else.
func OneHotLabel(gt image.Image) *tensor.Dense {
	mask := MaskFromBackground(gt, BackgroundColor, 0)
	h, w := mask.Bounds().Dy(), mask.Bounds().Dx()
	return tensor.New(tensor.WithShape(h, w, NumClasses), tensor.WithBacking(oneHot(mask)))
}

func oneHot(mask *image.Gray) []bool {
	h, w := mask.Bounds().Dy(), mask.Bounds().Dx()
	data := make([]bool, h*w*NumClasses)
	for y := range h {
		for x := range w {
			bg := mask.Pix[y*mask.Stride+x] == 0
			i := (y*w + x) * NumClasses
			data[i] = bg
			data[i+1] = !bg
		}
	}
	return data
}

package roadseg

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

// writeImage saves a w x h PNG at path, colored by fill.
func writeImage(t *testing.T, path string, w, h int, fill func(x, y int) color.NRGBA) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, fill(x, y))
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := imaging.Save(img, path); err != nil {
		t.Fatal(err)
	}
}

func solid(c color.NRGBA) func(x, y int) color.NRGBA {
	return func(x, y int) color.NRGBA { return c }
}

// leftBackground paints the left half red (background) and the rest white (road).
func leftBackground(w int) func(x, y int) color.NRGBA {
	return func(x, y int) color.NRGBA {
		if x < w/2 {
			return BackgroundColor
		}
		return color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	}
}

// writePair writes folder/image_2/<prefix>_<id>.png and its road ground truth.
func writePair(t *testing.T, folder, prefix, id string, w, h int) {
	t.Helper()
	writeImage(t, filepath.Join(folder, ImageDir, prefix+"_"+id+".png"), w, h, solid(color.NRGBA{R: 10, G: 20, B: 30, A: 255}))
	writeImage(t, filepath.Join(folder, GroundTruthDir, prefix+"_road_"+id+".png"), w, h, leftBackground(w))
}

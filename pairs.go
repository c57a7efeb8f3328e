package roadseg

import (
	"path/filepath"
	"regexp"

	"github.com/pkg/errors"
)

const (
	// ImageDir holds the raw camera images of a data folder.
	ImageDir = "image_2"
	// GroundTruthDir holds the color-coded ground-truth images of a data folder.
	GroundTruthDir = "gt_image_2"
)

// ErrMissingGroundTruth is returned when an image has no matching ground-truth file.
var ErrMissingGroundTruth = errors.New("no ground truth for image")

var gtInfix = regexp.MustCompile(`_(lane|road)_`)

// ImageNameForGroundTruth returns the image base name a ground-truth file
// belongs to, e.g. um_road_000000.png -> um_000000.png.
func ImageNameForGroundTruth(path string) string {
	return gtInfix.ReplaceAllString(filepath.Base(path), "_")
}

func imagePaths(folder string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(folder, ImageDir, "*.png"))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list images in %s", folder)
	}
	return paths, nil
}

// groundTruthPaths maps image base names to the road ground-truth file for that image.
func groundTruthPaths(folder string) (map[string]string, error) {
	paths, err := filepath.Glob(filepath.Join(folder, GroundTruthDir, "*_road_*.png"))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list ground truth in %s", folder)
	}
	labels := make(map[string]string, len(paths))
	for _, path := range paths {
		labels[ImageNameForGroundTruth(path)] = path
	}
	return labels, nil
}

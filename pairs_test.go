package roadseg

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageNameForGroundTruth(t *testing.T) {
	tests := []struct {
		gt   string
		want string
	}{
		{"um_road_000000.png", "um_000000.png"},
		{"umm_road_000093.png", "umm_000093.png"},
		{"um_lane_000012.png", "um_000012.png"},
		{"/data/gt_image_2/uu_road_000001.png", "uu_000001.png"},
		{"um_000000.png", "um_000000.png"},
		{"xxx_road_yyy.png", "xxx_yyy.png"},
	}

	for _, tt := range tests {
		t.Run(tt.gt, func(t *testing.T) {
			assert.Equal(t, tt.want, ImageNameForGroundTruth(tt.gt))
		})
	}
}

func TestGroundTruthPaths(t *testing.T) {
	folder := t.TempDir()
	writePair(t, folder, "um", "000000", 2, 2)
	writePair(t, folder, "uu", "000001", 2, 2)
	// lane annotations are not used as labels
	writeImage(t, filepath.Join(folder, GroundTruthDir, "um_lane_000000.png"), 2, 2, solid(BackgroundColor))

	labels, err := groundTruthPaths(folder)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"um_000000.png": filepath.Join(folder, GroundTruthDir, "um_road_000000.png"),
		"uu_000001.png": filepath.Join(folder, GroundTruthDir, "uu_road_000001.png"),
	}, labels)

	images, err := imagePaths(folder)
	require.NoError(t, err)
	assert.Len(t, images, 2)
}

func TestScanEmptyFolder(t *testing.T) {
	folder := t.TempDir()

	images, err := imagePaths(folder)
	require.NoError(t, err)
	assert.Empty(t, images)

	labels, err := groundTruthPaths(folder)
	require.NoError(t, err)
	assert.Empty(t, labels)
}

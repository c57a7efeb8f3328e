package roadseg

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"github.com/benbjohnson/clock"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// TestingDir is the test split under a data directory.
var TestingDir = filepath.Join("data_road", "testing")

// SaveOptions configures SaveInferenceSamples.
type SaveOptions struct {
	// Clock names the run directory (default: wall clock).
	Clock     clock.Clock
	Inference *InferenceOptions
	Logger    *zap.SugaredLogger
}

func (o *SaveOptions) withDefaults() SaveOptions {
	var out SaveOptions
	if o != nil {
		out = *o
	}
	if out.Clock == nil {
		out.Clock = clock.New()
	}
	out.Logger = orNop(out.Logger)
	if out.Inference == nil {
		out.Inference = &InferenceOptions{Logger: out.Logger}
	}
	return out
}

// SaveInferenceSamples segments <dataDir>/data_road/testing and writes every
// composited image, under its original name, into runsDir/<unix seconds>.
// An existing directory of that name is replaced. The first failure stops the
// run; images written before it are kept. The output directory is returned.
func SaveInferenceSamples(ctx context.Context, runsDir, dataDir string, model Model, shape Shape, opts *SaveOptions) (string, error) {
	o := opts.withDefaults()

	outputDir := filepath.Join(runsDir, strconv.FormatInt(o.Clock.Now().Unix(), 10))
	if err := os.RemoveAll(outputDir); err != nil {
		return "", errors.Wrapf(err, "failed to clean %s", outputDir)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create %s", outputDir)
	}

	o.Logger.Infow("saving test images", "dir", outputDir)
	saved := 0
	for res, err := range GenTestOutput(ctx, model, filepath.Join(dataDir, TestingDir), shape, o.Inference) {
		if err != nil {
			return outputDir, err
		}
		if err := imaging.Save(res.Image, filepath.Join(outputDir, res.Name)); err != nil {
			return outputDir, errors.Wrapf(err, "failed to save %s", res.Name)
		}
		saved++
	}
	o.Logger.Infow("test images saved", "dir", outputDir, "count", saved)
	return outputDir, nil
}

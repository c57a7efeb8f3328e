package roadseg

import (
	"context"
	"image"
	"image/color"
	"iter"
	"math"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gorgonia.org/tensor"
)

// Result is one composited test image.
type Result struct {
	// Name is the base name of the source image.
	Name  string
	Image *image.NRGBA
	// Coverage is the fraction of pixels predicted as road.
	Coverage float64
}

// InferenceOptions configures GenTestOutput.
type InferenceOptions struct {
	Filter    *imaging.ResampleFilter // default: imaging.Linear
	Threshold *float32                // default: Threshold
	Tint      *color.NRGBA            // default: Tint
	Logger    *zap.SugaredLogger
}

func (o *InferenceOptions) withDefaults() InferenceOptions {
	var out InferenceOptions
	if o != nil {
		out = *o
	}
	if out.Filter == nil {
		out.Filter = &imaging.Linear
	}
	if out.Threshold == nil {
		threshold := float32(Threshold)
		out.Threshold = &threshold
	}
	if out.Tint == nil {
		out.Tint = &Tint
	}
	out.Logger = orNop(out.Logger)
	return out
}

// GenTestOutput runs model over every folder/image_2/*.png and yields the
// resized image with predicted road pixels tinted. Dropout is disabled by
// passing a keep probability of 1. The first error ends the sequence.
func GenTestOutput(ctx context.Context, model Model, folder string, shape Shape, opts *InferenceOptions) iter.Seq2[*Result, error] {
	o := opts.withDefaults()
	return func(yield func(*Result, error) bool) {
		if !shape.valid() {
			yield(nil, errors.Errorf("invalid image shape %dx%d", shape.Height, shape.Width))
			return
		}
		paths, err := imagePaths(folder)
		if err != nil {
			yield(nil, err)
			return
		}
		o.Logger.Debugw("running inference", "folder", folder, "images", len(paths))

		pool := newProbBufferPool()
		for _, path := range paths {
			res, err := segment(ctx, model, path, shape, &o, pool)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(res, nil) {
				return
			}
		}
	}
}

func segment(ctx context.Context, model Model, path string, shape Shape, o *InferenceOptions, pool *probBufferPool) (*Result, error) {
	img, err := openResized(path, shape, *o.Filter)
	if err != nil {
		return nil, err
	}
	input := tensor.New(tensor.WithShape(1, shape.Height, shape.Width, 3), tensor.WithBacking(rgbPixels(img)))

	logits, err := model.Logits(ctx, input, 1.0)
	if err != nil {
		return nil, errors.Wrapf(err, "inference on %s failed", filepath.Base(path))
	}

	buf := pool.get(shape.Pixels())
	defer pool.put(buf)
	if err := ForegroundProbabilities(logits, buf.probs); err != nil {
		return nil, errors.Wrapf(err, "bad logits for %s", filepath.Base(path))
	}

	mask := SegmentationMask(buf.probs, shape, *o.Threshold)
	res := &Result{
		Name:     filepath.Base(path),
		Image:    Overlay(img, mask, *o.Tint),
		Coverage: coverage(mask),
	}
	o.Logger.Debugw("segmented", "image", res.Name, "coverage", res.Coverage)
	return res, nil
}

// ForegroundProbabilities applies a softmax to each row of logits, shaped
// (pixels, classes), and writes the road channel (index 1) into dst.
func ForegroundProbabilities(logits *tensor.Dense, dst []float32) error {
	shape := logits.Shape()
	if len(shape) != 2 || shape[1] < NumClasses {
		return errors.Errorf("expected logits shaped (pixels, %d), got %v", NumClasses, shape)
	}
	if shape[0] != len(dst) {
		return errors.Errorf("logits cover %d pixels, expected %d", shape[0], len(dst))
	}

	classes := shape[1]
	row := make([]float64, classes)
	switch data := logits.Data().(type) {
	case []float32:
		for i := range dst {
			for c := range classes {
				row[c] = float64(data[i*classes+c])
			}
			dst[i] = float32(math.Exp(row[1] - floats.LogSumExp(row)))
		}
	case []float64:
		for i := range dst {
			copy(row, data[i*classes:(i+1)*classes])
			dst[i] = float32(math.Exp(row[1] - floats.LogSumExp(row)))
		}
	default:
		return errors.Errorf("unsupported logits type %T", data)
	}
	return nil
}

package roadseg

import (
	"image"
	"iter"
	"math/rand/v2"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorgonia.org/tensor"
)

// Batch is one step of training data.
type Batch struct {
	// Names are the image base names, in batch order.
	Names []string
	// Images is (n, height, width, 3) uint8.
	Images *tensor.Dense
	// Labels is (n, height, width, 2) bool, see OneHotLabel.
	Labels *tensor.Dense
}

// Len returns the number of pairs in the batch.
func (b *Batch) Len() int {
	return len(b.Names)
}

// BatchFunc yields the batches of one shuffled pass over a data folder.
type BatchFunc func(batchSize int) iter.Seq2[*Batch, error]

// BatchOptions configures GenBatchFunction.
type BatchOptions struct {
	// Filter resizes both images and ground truth (default: imaging.Linear).
	Filter *imaging.ResampleFilter
	// Shuffle reorders the image list before slicing (default: math/rand/v2 Shuffle).
	Shuffle func(n int, swap func(i, j int))
	Logger  *zap.SugaredLogger
}

func (o *BatchOptions) withDefaults() BatchOptions {
	var out BatchOptions
	if o != nil {
		out = *o
	}
	if out.Filter == nil {
		out.Filter = &imaging.Linear
	}
	if out.Shuffle == nil {
		out.Shuffle = rand.Shuffle
	}
	out.Logger = orNop(out.Logger)
	return out
}

// GenBatchFunction returns a BatchFunc over folder/image_2 and folder/gt_image_2.
// Every sequence rescans and reshuffles the folder when iteration starts, then
// reads, resizes and labels each pair only when its batch is pulled. A pair
// without ground truth ends the sequence with ErrMissingGroundTruth.
func GenBatchFunction(folder string, shape Shape, opts *BatchOptions) BatchFunc {
	o := opts.withDefaults()
	return func(batchSize int) iter.Seq2[*Batch, error] {
		return func(yield func(*Batch, error) bool) {
			if batchSize <= 0 {
				yield(nil, errors.Errorf("invalid batch size %d", batchSize))
				return
			}
			if !shape.valid() {
				yield(nil, errors.Errorf("invalid image shape %dx%d", shape.Height, shape.Width))
				return
			}

			images, err := imagePaths(folder)
			if err != nil {
				yield(nil, err)
				return
			}
			labels, err := groundTruthPaths(folder)
			if err != nil {
				yield(nil, err)
				return
			}
			o.Shuffle(len(images), func(i, j int) {
				images[i], images[j] = images[j], images[i]
			})
			o.Logger.Debugw("batching", "folder", folder, "images", len(images), "labels", len(labels), "batch_size", batchSize)

			for start := 0; start < len(images); start += batchSize {
				end := min(start+batchSize, len(images))
				batch, err := loadBatch(images[start:end], labels, shape, *o.Filter)
				if err != nil {
					yield(nil, err)
					return
				}
				if !yield(batch, nil) {
					return
				}
			}
		}
	}
}

func loadBatch(paths []string, labels map[string]string, shape Shape, filter imaging.ResampleFilter) (*Batch, error) {
	n := len(paths)
	pixels := shape.Pixels()
	names := make([]string, 0, n)
	images := make([]uint8, 0, n*pixels*3)
	gts := make([]bool, 0, n*pixels*NumClasses)

	for _, path := range paths {
		name := filepath.Base(path)
		gtPath, ok := labels[name]
		if !ok {
			return nil, errors.Wrap(ErrMissingGroundTruth, name)
		}

		img, err := openResized(path, shape, filter)
		if err != nil {
			return nil, err
		}
		gt, err := openResized(gtPath, shape, filter)
		if err != nil {
			return nil, err
		}

		names = append(names, name)
		images = append(images, rgbPixels(img)...)
		gts = append(gts, oneHot(MaskFromBackground(gt, BackgroundColor, 0))...)
	}

	return &Batch{
		Names:  names,
		Images: tensor.New(tensor.WithShape(n, shape.Height, shape.Width, 3), tensor.WithBacking(images)),
		Labels: tensor.New(tensor.WithShape(n, shape.Height, shape.Width, NumClasses), tensor.WithBacking(gts)),
	}, nil
}

func openResized(path string, shape Shape, filter imaging.ResampleFilter) (*image.NRGBA, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	return imaging.Resize(img, shape.Width, shape.Height, filter), nil
}

// rgbPixels drops the alpha channel of img, giving height*width*3 bytes.
func rgbPixels(img *image.NRGBA) []uint8 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := make([]uint8, 0, w*h*3)
	for y := range h {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := range w {
			out = append(out, row[x*4+0], row[x*4+1], row[x*4+2])
		}
	}
	return out
}

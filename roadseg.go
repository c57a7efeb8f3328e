// Package roadseg holds the data plumbing around a road segmentation network:
// fetching the pretrained encoder, batching KITTI-style image/ground-truth
// pairs, and rendering predicted road masks over test images.
package roadseg

import (
	"context"
	"image/color"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorgonia.org/tensor"
)

const (
	// NumClasses is the number of output channels per pixel: background and road.
	NumClasses = 2

	// Threshold is applied to the road softmax channel; strictly greater is road.
	Threshold = 0.5
)

var (
	// BackgroundColor marks non-road pixels in the ground-truth images.
	BackgroundColor = color.NRGBA{R: 255, A: 255}

	// Tint is painted over pixels predicted as road.
	Tint = color.NRGBA{G: 255, A: 127}
)

var (
	envOnce sync.Once
	envErr  error
)

// Shape is the size every image is resized to before batching or inference.
type Shape struct {
	Height int
	Width  int
}

// Pixels returns Height*Width.
func (s Shape) Pixels() int {
	return s.Height * s.Width
}

func (s Shape) valid() bool {
	return s.Height > 0 && s.Width > 0
}

// Model runs one forward pass of a segmentation network.
type Model interface {
	// Logits takes a (1, height, width, 3) uint8 image and returns the
	// pre-softmax scores shaped (height*width, NumClasses).
	Logits(ctx context.Context, img *tensor.Dense, keepProb float32) (*tensor.Dense, error)
}

// Config configures an ONNXModel.
type Config struct {
	// ModelPath is the exported .onnx network.
	ModelPath string
	// SharedLibraryPath overrides where the onnxruntime library is loaded from.
	SharedLibraryPath string

	InputName    string
	KeepProbName string // empty if the graph has no dropout input
	OutputName   string

	Shape Shape

	IntraOpNumThreads int
	InterOpNumThreads int
	CpuMemArena       bool
	MemPattern        bool

	Logger *zap.SugaredLogger
}

// DefaultConfig returns the tensor names used by the FCN export.
func DefaultConfig(modelPath string, shape Shape) *Config {
	return &Config{
		ModelPath:         modelPath,
		InputName:         "image_input",
		KeepProbName:      "keep_prob",
		OutputName:        "logits",
		Shape:             shape,
		IntraOpNumThreads: 2,
		InterOpNumThreads: 1,
		MemPattern:        true,
	}
}

// ONNXModel is a Model backed by an ONNX Runtime session, with pooled tensors.
type ONNXModel struct {
	cfg        Config
	session    *ort.DynamicAdvancedSession
	sessionMu  sync.Mutex
	tensorPool *tensorPool
	logger     *zap.SugaredLogger
}

func initEnvironment(libPath string) error {
	envOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		envErr = ort.InitializeEnvironment()
	})
	return envErr
}

func createSession(cfg *Config) (*ort.DynamicAdvancedSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session options")
	}
	defer options.Destroy()

	if cfg.IntraOpNumThreads > 0 {
		options.SetIntraOpNumThreads(cfg.IntraOpNumThreads)
	}
	if cfg.InterOpNumThreads > 0 {
		options.SetInterOpNumThreads(cfg.InterOpNumThreads)
	}
	options.SetCpuMemArena(cfg.CpuMemArena)
	options.SetMemPattern(cfg.MemPattern)
	options.SetExecutionMode(ort.ExecutionModeSequential)
	options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll)

	inputs := []string{cfg.InputName}
	if cfg.KeepProbName != "" {
		inputs = append(inputs, cfg.KeepProbName)
	}

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		inputs,
		[]string{cfg.OutputName},
		options,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create ONNX session for %s", cfg.ModelPath)
	}

	return session, nil
}

// New initializes the ONNX Runtime environment, if needed, and opens a session for cfg.ModelPath.
func New(cfg *Config) (*ONNXModel, error) {
	if cfg == nil || cfg.ModelPath == "" {
		return nil, errors.New("model path is required")
	}
	if !cfg.Shape.valid() {
		return nil, errors.Errorf("invalid image shape %dx%d", cfg.Shape.Height, cfg.Shape.Width)
	}
	if cfg.InputName == "" || cfg.OutputName == "" {
		return nil, errors.New("input and output tensor names are required")
	}
	if err := initEnvironment(cfg.SharedLibraryPath); err != nil {
		return nil, errors.Wrap(err, "failed to init ORT env")
	}

	session, err := createSession(cfg)
	if err != nil {
		return nil, err
	}

	logger := orNop(cfg.Logger)
	logger.Debugw("onnx session ready", "model", cfg.ModelPath, "height", cfg.Shape.Height, "width", cfg.Shape.Width)

	return &ONNXModel{
		cfg:        *cfg,
		session:    session,
		tensorPool: newTensorPool(cfg.Shape),
		logger:     logger,
	}, nil
}

// Close destroys the session and the pooled tensors.
func (m *ONNXModel) Close() error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()
	var err error
	if m.session != nil {
		m.logger.Debugw("closing onnx session", "model", m.cfg.ModelPath)
		err = m.session.Destroy()
		m.session = nil
	}
	if m.tensorPool != nil {
		err = multierr.Append(err, m.tensorPool.destroy())
		m.tensorPool = nil
	}
	return err
}

// Shutdown releases the process-wide ONNX Runtime environment.
func Shutdown() error {
	return ort.DestroyEnvironment()
}

// Logits implements Model.
func (m *ONNXModel) Logits(ctx context.Context, img *tensor.Dense, keepProb float32) (*tensor.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pix, ok := img.Data().([]uint8)
	if !ok {
		return nil, errors.Errorf("expected uint8 image tensor, got %T", img.Data())
	}
	if want := m.cfg.Shape.Pixels() * 3; len(pix) != want {
		return nil, errors.Errorf("image tensor has %d values, model expects %d", len(pix), want)
	}

	pool := m.tensorPool
	if pool == nil {
		return nil, errors.New("session is closed")
	}
	inputTensor := pool.getInput()
	outputTensor := pool.getOutput()
	defer func() {
		pool.putInput(inputTensor)
		pool.putOutput(outputTensor)
	}()
	if inputTensor == nil || outputTensor == nil {
		if err := pool.lastErr(); err != nil {
			return nil, errors.Wrap(err, "failed to allocate ORT tensors")
		}
		return nil, errors.New("failed to allocate ORT tensors")
	}

	inputData := inputTensor.GetData()
	for i, v := range pix {
		inputData[i] = float32(v)
	}

	inputs := []ort.Value{inputTensor}
	if m.cfg.KeepProbName != "" {
		kp, err := ort.NewScalar(keepProb)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create keep probability")
		}
		defer kp.Destroy()
		inputs = append(inputs, kp)
	}

	if err := m.RunInference(inputs, []ort.Value{outputTensor}); err != nil {
		return nil, errors.Wrap(err, "inference failed")
	}

	out := outputTensor.GetData()
	logits := make([]float32, len(out))
	copy(logits, out)
	return tensor.New(tensor.WithShape(m.cfg.Shape.Pixels(), NumClasses), tensor.WithBacking(logits)), nil
}

// RunInference runs the session; concurrent callers are serialized.
func (m *ONNXModel) RunInference(input []ort.Value, output []ort.Value) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()
	if m.session == nil {
		return errors.New("session is closed")
	}
	return m.session.Run(input, output)
}

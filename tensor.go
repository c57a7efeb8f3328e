package roadseg

import (
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"
)

// tensorPool recycles the NHWC image input and the per-pixel logits output of one image shape.
// Every tensor it allocates is tracked so destroy can release the native memory.
type tensorPool struct {
	shape      Shape
	inputPool  sync.Pool
	outputPool sync.Pool

	mu        sync.Mutex
	allocated []*ort.Tensor[float32]
	err       error
}

func newTensorPool(shape Shape) *tensorPool {
	h, w := int64(shape.Height), int64(shape.Width)
	p := &tensorPool{shape: shape}
	p.inputPool.New = func() any {
		return p.alloc(ort.NewShape(1, h, w, 3))
	}
	p.outputPool.New = func() any {
		return p.alloc(ort.NewShape(h*w, NumClasses))
	}
	return p
}

// alloc returns nil on failure and keeps the error for lastErr.
func (p *tensorPool) alloc(shape ort.Shape) *ort.Tensor[float32] {
	t, err := ort.NewEmptyTensor[float32](shape)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.err = err
		return nil
	}
	p.allocated = append(p.allocated, t)
	return t
}

// lastErr reports the most recent allocation failure.
func (p *tensorPool) lastErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *tensorPool) getInput() *ort.Tensor[float32] {
	t, _ := p.inputPool.Get().(*ort.Tensor[float32])
	return t
}

func (p *tensorPool) putInput(t *ort.Tensor[float32]) {
	if t != nil {
		p.inputPool.Put(t)
	}
}

func (p *tensorPool) getOutput() *ort.Tensor[float32] {
	t, _ := p.outputPool.Get().(*ort.Tensor[float32])
	return t
}

func (p *tensorPool) putOutput(t *ort.Tensor[float32]) {
	if t != nil {
		p.outputPool.Put(t)
	}
}

// destroy releases every tensor the pool ever handed out. The pool must not be used afterwards.
func (p *tensorPool) destroy() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	for _, t := range p.allocated {
		err = multierr.Append(err, t.Destroy())
	}
	p.allocated = nil
	return err
}

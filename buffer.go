package roadseg

import "sync"

// probBufferPool recycles the per-image road probability maps of the inference runner.
type probBufferPool struct {
	pool sync.Pool
}

func newProbBufferPool() *probBufferPool {
	return &probBufferPool{
		pool: sync.Pool{
			New: func() any {
				return &probBuffer{}
			},
		},
	}
}

type probBuffer struct {
	probs []float32
}

func (p *probBufferPool) get(size int) *probBuffer {
	buf := p.pool.Get().(*probBuffer)
	if cap(buf.probs) < size {
		buf.probs = make([]float32, size)
	} else {
		buf.probs = buf.probs[:size]
	}
	return buf
}

func (p *probBufferPool) put(buf *probBuffer) {
	p.pool.Put(buf)
}

package server

import "sync"

// bufferPool recycles the fixed-size buffers workers read requests into.
// Buffers travel by pointer so put does not allocate.
type bufferPool struct {
	size int
	pool sync.Pool
}

func newBufferPool(size int) *bufferPool {
	p := &bufferPool{size: size}
	p.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return p
}

func (p *bufferPool) get() *[]byte {
	return p.pool.Get().(*[]byte)
}

// put drops buffers that no longer have the pool's size.
func (p *bufferPool) put(b *[]byte) {
	if b == nil || len(*b) != p.size {
		return
	}
	p.pool.Put(b)
}

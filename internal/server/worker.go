package server

import (
	"sync"
	"sync/atomic"

	"github.com/WalidBenTouhami/server-bench/internal/metrics"
	"github.com/WalidBenTouhami/server-bench/internal/queue"
)

// WorkerPool runs a fixed number of goroutines that pop jobs until the
// queue is closed and empty.
type WorkerPool struct {
	size   int
	jobs   *queue.Queue[Job]
	handle func(Job)
	busy   atomic.Int64
	wg     sync.WaitGroup
}

// NewWorkerPool registers the queue depth and busy count with m; both are
// read when metrics are collected.
func NewWorkerPool(size int, jobs *queue.Queue[Job], handle func(Job), m metrics.Metrics) *WorkerPool {
	p := &WorkerPool{
		size:   size,
		jobs:   jobs,
		handle: handle,
	}
	metrics.OrNoop(m).TrackPool(jobs.Len, p.Busy)
	return p
}

func (p *WorkerPool) Start() {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.run()
	}
}

func (p *WorkerPool) run() {
	defer p.wg.Done()
	for {
		job, ok := p.jobs.Pop()
		if !ok {
			return
		}
		p.busy.Add(1)
		p.handle(job)
		p.busy.Add(-1)
	}
}

// Wait blocks until every worker has returned.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

// Busy reports how many workers are inside handle.
func (p *WorkerPool) Busy() int64 {
	return p.busy.Load()
}

func (p *WorkerPool) Size() int {
	return p.size
}

// Package workload simulates the cost of a heavy request on the binary
// surface: a CPU-bound loop followed by a random pause.
package workload

import (
	"context"
	"math"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/WalidBenTouhami/server-bench/internal/config"
)

type Simulator struct {
	Enabled    bool
	Iterations int
	MinDelay   time.Duration
	MaxDelay   time.Duration
}

func New(cfg config.WorkloadConfig) *Simulator {
	return &Simulator{
		Enabled:    cfg.Enabled,
		Iterations: cfg.Iterations,
		MinDelay:   cfg.MinDelay,
		MaxDelay:   cfg.MaxDelay,
	}
}

// Run burns Iterations square roots, then sleeps for a uniform duration in
// [MinDelay, MaxDelay]. It returns ctx.Err() if ctx ends during the sleep.
func (s *Simulator) Run(ctx context.Context) error {
	if s == nil || !s.Enabled {
		return nil
	}

	runtime.KeepAlive(burn(s.Iterations))

	d := s.delay()
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Simulator) delay() time.Duration {
	if s.MaxDelay <= s.MinDelay {
		return s.MinDelay
	}
	return s.MinDelay + rand.N(s.MaxDelay-s.MinDelay+1)
}

func burn(n int) float64 {
	x := 0.0
	for i := 0; i < n; i++ {
		x += math.Sqrt(float64(i))
	}
	return x
}

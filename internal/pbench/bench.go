// Package pbench drives a running server through its public ports and
// summarises round-trip times.
package pbench

import (
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/distuv"
)

func (c *Config) validate() error {
	switch {
	case c.Protocol != Binary && c.Protocol != HTTP:
		return fmt.Errorf("%w: unknown protocol %q", ErrInvalidConfig, c.Protocol)
	case c.Addr == "":
		return fmt.Errorf("%w: empty address", ErrInvalidConfig)
	case c.Requests < 1:
		return fmt.Errorf("%w: requests must be at least 1", ErrInvalidConfig)
	case c.Rate < 0:
		return fmt.Errorf("%w: negative rate", ErrInvalidConfig)
	}
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Path == "" {
		c.Path = "/hello"
	}
	return nil
}

// Bench sends c.Requests requests with c.Concurrency in flight at most. When
// out is not nil one "seq;status;rtt_us;error" line per request is written
// to it.
func Bench(ctx context.Context, c Config, out io.Writer) (Summary, error) {
	if err := c.validate(); err != nil {
		return Summary{}, err
	}

	g, ctx := errgroup.WithContext(ctx)

	requests := make(chan int)
	samples := make(chan Sample, c.Concurrency)

	g.Go(func() error {
		defer close(requests)
		return sendJobs(ctx, c.Requests, c.Rate, requests)
	})

	workers, wctx := errgroup.WithContext(ctx)
	for i := 0; i < c.Concurrency; i++ {
		workers.Go(func() error {
			for seq := range requests {
				samples <- c.do(wctx, seq)
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(samples)
		return workers.Wait()
	})

	start := time.Now()
	collected := make([]Sample, 0, c.Requests)
	var writeErr error
	for s := range samples {
		collected = append(collected, s)
		if out != nil && writeErr == nil {
			writeErr = WriteSample(out, s)
		}
	}

	summary := Summarize(collected)
	summary.Elapsed = time.Since(start)
	if secs := summary.Elapsed.Seconds(); secs > 0 {
		summary.Throughput = float64(summary.Requests) / secs
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}
	return summary, writeErr
}

func (c *Config) do(ctx context.Context, seq int) Sample {
	start := time.Now()
	var (
		status string
		err    error
	)
	switch c.Protocol {
	case Binary:
		status, err = requestBinary(ctx, c.Addr, c.Timeout, seq)
	case HTTP:
		status, err = requestHTTP(ctx, c.Addr, c.Timeout, c.Path)
	}
	return Sample{Seq: seq, RTT: time.Since(start), Status: status, Err: err}
}

// sendJobs emits n sequence numbers separated by exponentially distributed
// gaps with the given mean rate.
func sendJobs(ctx context.Context, n int, rate float64, jobs chan<- int) error {
	var exp *distuv.Exponential
	if rate > 0 {
		exp = &distuv.Exponential{Rate: rate}
	}
	for i := 0; i < n; i++ {
		if exp != nil {
			gap := time.Duration(exp.Rand() * float64(time.Second))
			timer := time.NewTimer(gap)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
		select {
		case jobs <- i:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// String renders the summary the way cmd/client prints it.
func (s Summary) String() string {
	return fmt.Sprintf("requests=%d ok=%d failed=%d statuses=%v mean=%s p50=%s p99=%s elapsed=%s rps=%.1f",
		s.Requests, s.Succeeded, s.Failed, s.Statuses,
		s.Mean, s.P50, s.P99, s.Elapsed.Round(time.Millisecond), s.Throughput)
}

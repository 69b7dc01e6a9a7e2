package pbench

import (
	"errors"
	"time"
)

type Protocol string

const (
	Binary Protocol = "binary"
	HTTP   Protocol = "http"
)

var ErrInvalidConfig = errors.New("invalid bench config")

const DefaultTimeout = 5 * time.Second

type Config struct {
	Protocol    Protocol
	Addr        string
	Requests    int
	Concurrency int
	// Rate is the mean number of requests per second. Gaps between
	// requests are exponentially distributed; 0 sends back to back.
	Rate    float64
	Path    string
	Timeout time.Duration
}

// Sample is the outcome of one request.
type Sample struct {
	Seq    int
	RTT    time.Duration
	Status string
	Err    error
}

type Summary struct {
	Requests   int
	Succeeded  int
	Failed     int
	Statuses   map[string]int
	Mean       time.Duration
	P50        time.Duration
	P99        time.Duration
	Elapsed    time.Duration
	Throughput float64
}

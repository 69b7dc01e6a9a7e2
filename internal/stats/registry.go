// Package stats holds the request counters shared by every worker.
package stats

import "sync"

type Kind int

const (
	Total Kind = iota
	Hello
	NotFound
)

func (k Kind) String() string {
	switch k {
	case Total:
		return "total_requests"
	case Hello:
		return "hello_requests"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Snapshot is a consistent copy of all counters.
type Snapshot struct {
	TotalRequests uint64 `json:"total_requests"`
	HelloRequests uint64 `json:"hello_requests"`
	NotFound      uint64 `json:"not_found"`
}

// Registry owns the counters. The zero value is ready to use.
type Registry struct {
	mu       sync.Mutex
	total    uint64
	hello    uint64
	notFound uint64
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Increment bumps every given counter inside one critical section, so a
// concurrent Snapshot sees either none or all of them.
func (r *Registry) Increment(kinds ...Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, k := range kinds {
		switch k {
		case Total:
			r.total++
		case Hello:
			r.hello++
		case NotFound:
			r.notFound++
		}
	}
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Snapshot{
		TotalRequests: r.total,
		HelloRequests: r.hello,
		NotFound:      r.notFound,
	}
}

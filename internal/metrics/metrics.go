// Package metrics records server activity. Components take a Metrics and
// fall back to the no-op implementation when none is configured.
package metrics

import "time"

const (
	ReasonQueueFull   = "queue_full"
	ReasonRateLimited = "rate_limited"
	ReasonShutdown    = "shutdown"
	ReasonError       = "error"
)

type Metrics interface {
	// ConnectionAccepted counts a connection handed to the job queue.
	ConnectionAccepted(proto string)

	// ConnectionRejected counts a connection closed by the dispatcher
	// without being queued.
	ConnectionRejected(proto, reason string)

	// JobCompleted records how long a job spent between accept and close.
	JobCompleted(proto string, d time.Duration)

	// Response counts an HTTP answer by route and status.
	Response(route, status string)

	// TrackPool samples the queue depth and busy worker count whenever
	// metrics are read. Only the first call has an effect.
	TrackPool(queueDepth func() int, busyWorkers func() int64)

	// ConnectionsForceClosed counts connections closed when the shutdown
	// grace period ran out.
	ConnectionsForceClosed(n int)
}

// OrNoop returns m, or a no-op implementation if m is nil.
func OrNoop(m Metrics) Metrics {
	if m == nil {
		return Noop()
	}
	return m
}

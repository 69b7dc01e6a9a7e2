package server

import (
	"errors"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/WalidBenTouhami/server-bench/internal/metrics"
	"github.com/WalidBenTouhami/server-bench/internal/queue"
)

// Dispatcher accepts connections on one listener and queues them. It never
// reads from a socket.
type Dispatcher struct {
	proto    Protocol
	listener net.Listener
	jobs     *queue.Queue[Job]
	limiter  *rate.Limiter
	accepted *xsync.Counter
	rejected *xsync.Counter
	metrics  metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

func (d *Dispatcher) Addr() net.Addr {
	return d.listener.Addr()
}

// Run accepts until the listener is closed.
func (d *Dispatcher) Run() error {
	d.logger.Info("accepting", zap.Stringer("addr", d.listener.Addr()))
	for {
		conn, err := d.listener.Accept()
		if errors.Is(err, net.ErrClosed) {
			d.logger.Info("listener closed")
			return nil
		} else if err != nil {
			d.logger.Warn("accept failed", zap.Error(err))
			continue
		}
		d.dispatch(conn)
	}
}

func (d *Dispatcher) Close() error {
	return d.listener.Close()
}

func (d *Dispatcher) dispatch(conn net.Conn) {
	if d.limiter != nil && !d.limiter.Allow() {
		d.reject(conn, metrics.ReasonRateLimited)
		return
	}

	job := Job{
		ID:         uuid.NewString(),
		Conn:       conn,
		Proto:      d.proto,
		AcceptedAt: d.now(),
	}

	if err := d.jobs.TryPush(job); err != nil {
		reason := rejectReason(err)
		if reason == metrics.ReasonError {
			d.logger.Error("cannot schedule", zap.Error(err))
		}
		d.reject(conn, reason)
		return
	}
	d.accepted.Inc()
	d.metrics.ConnectionAccepted(d.proto.String())
}

// rejectReason maps a TryPush error onto the fixed set of metric reasons.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, queue.ErrFull):
		return metrics.ReasonQueueFull
	case errors.Is(err, queue.ErrClosed):
		return metrics.ReasonShutdown
	default:
		return metrics.ReasonError
	}
}

// reject closes conn straight away; there is no retry.
func (d *Dispatcher) reject(conn net.Conn, reason string) {
	d.rejected.Inc()
	d.metrics.ConnectionRejected(d.proto.String(), reason)
	d.logger.Warn("connection rejected",
		zap.Stringer("remote", conn.RemoteAddr()),
		zap.String("reason", reason),
	)
	_ = conn.Close()
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

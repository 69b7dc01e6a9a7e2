// Package server wires the accept loops, the bounded job queue and the
// worker pool together and owns their lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/WalidBenTouhami/server-bench/internal/config"
	"github.com/WalidBenTouhami/server-bench/internal/metrics"
	"github.com/WalidBenTouhami/server-bench/internal/queue"
	"github.com/WalidBenTouhami/server-bench/internal/router"
	"github.com/WalidBenTouhami/server-bench/internal/stats"
	"github.com/WalidBenTouhami/server-bench/internal/workload"
)

var (
	ErrNotListening    = errors.New("server is not listening")
	ErrShutdownTimeout = errors.New("shutdown grace period expired")
)

type Server struct {
	cfg     config.Config
	logger  *zap.Logger
	metrics metrics.Metrics
	stats   *stats.Registry
	now     func() time.Time

	jobs        *queue.Queue[Job]
	conns       *connRegistry
	accepted    *xsync.Counter
	rejected    *xsync.Counter
	processed   *xsync.Counter
	dispatchers []*Dispatcher
	binary      *Dispatcher
	http        *Dispatcher
	pool        *WorkerPool
	handler     *handler
	stopWork    context.CancelFunc
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func WithMetrics(m metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithStats shares a registry with the caller instead of creating one.
func WithStats(r *stats.Registry) Option {
	return func(s *Server) { s.stats = r }
}

// WithClock replaces time.Now for timestamps written to clients.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func New(cfg config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		logger:    zap.NewNop(),
		now:       time.Now,
		conns:     newConnRegistry(),
		accepted:  xsync.NewCounter(),
		rejected:  xsync.NewCounter(),
		processed: xsync.NewCounter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = metrics.OrNoop(s.metrics)
	if s.stats == nil {
		s.stats = stats.NewRegistry()
	}

	jobs, err := queue.New[Job](cfg.Server.QueueSize)
	if err != nil {
		return nil, fmt.Errorf("job queue: %w", err)
	}
	if cfg.Server.Workers < 1 {
		return nil, fmt.Errorf("worker count must be at least 1, got %d", cfg.Server.Workers)
	}
	s.jobs = jobs

	work, stop := context.WithCancel(context.Background())
	s.stopWork = stop
	s.handler = &handler{
		readTimeout:  cfg.Server.ReadTimeout,
		writeTimeout: cfg.Server.WriteTimeout,
		router:       router.New(s.stats, router.WithClock(s.now)),
		simulator:    workload.New(cfg.Binary.Workload),
		conns:        s.conns,
		buffers:      newBufferPool(cfg.Server.ReadBufferSize),
		processed:    s.processed,
		metrics:      s.metrics,
		logger:       s.logger.Named("worker"),
		now:          s.now,
		work:         work,
	}
	s.pool = NewWorkerPool(cfg.Server.Workers, jobs, s.handler.handle, s.metrics)
	return s, nil
}

// Listen binds every enabled surface. Bind errors are fatal and returned
// here, before anything is served.
func (s *Server) Listen() error {
	var err error
	if s.cfg.Binary.Enabled() {
		if s.binary, err = s.listen(ProtoBinary, s.cfg.Binary.ListenerConfig); err != nil {
			return err
		}
	}
	if s.cfg.HTTP.Enabled() {
		if s.http, err = s.listen(ProtoHTTP, s.cfg.HTTP.ListenerConfig); err != nil {
			s.closeListeners()
			return err
		}
	}
	if len(s.dispatchers) == 0 {
		return fmt.Errorf("%w: no surface enabled", ErrNotListening)
	}

	s.logger.Info("listening",
		zap.Stringer("binary", addrOrNone(s.binary)),
		zap.Stringer("http", addrOrNone(s.http)),
		zap.Int("workers", s.cfg.Server.Workers),
		zap.Int("queue_size", s.cfg.Server.QueueSize),
		zap.Int("backlog", s.cfg.Server.Backlog),
	)
	return nil
}

func (s *Server) listen(proto Protocol, lc config.ListenerConfig) (*Dispatcher, error) {
	ln, err := net.Listen("tcp", lc.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen %s on %s: %w", proto, lc.Listen, err)
	}
	d := &Dispatcher{
		proto:    proto,
		listener: ln,
		jobs:     s.jobs,
		limiter:  newLimiter(lc.AcceptRate, lc.AcceptBurst),
		accepted: s.accepted,
		rejected: s.rejected,
		metrics:  s.metrics,
		logger:   s.logger.Named("dispatcher").With(zap.Stringer("proto", proto)),
		now:      s.now,
	}
	s.dispatchers = append(s.dispatchers, d)
	return d, nil
}

// Serve runs until ctx is cancelled, then shuts down: listeners close,
// the queue closes so idle workers exit and queued jobs are still served,
// and after shutdown_timeout any connection left is force-closed.
func (s *Server) Serve(ctx context.Context) error {
	if len(s.dispatchers) == 0 {
		return ErrNotListening
	}

	s.pool.Start()

	g, gctx := errgroup.WithContext(ctx)
	for _, d := range s.dispatchers {
		g.Go(d.Run)
	}
	g.Go(func() error {
		<-gctx.Done()
		s.closeListeners()
		return nil
	})

	err := g.Wait()
	s.logger.Info("dispatchers stopped, draining queue", zap.Int("queued", s.jobs.Len()))
	s.jobs.Close()

	if shutdownErr := s.waitWorkers(); shutdownErr != nil {
		return errors.Join(err, shutdownErr)
	}
	return err
}

// Run is Listen followed by Serve.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

func (s *Server) waitWorkers() error {
	done := make(chan struct{})
	go func() {
		s.pool.Wait()
		close(done)
	}()

	timer := time.NewTimer(s.cfg.Server.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
		s.stopWork()
		s.logger.Info("shutdown complete", zap.Int64("processed", s.Processed()))
		return nil
	case <-timer.C:
	}

	// Drain before closing active connections so a worker freed by the
	// close cannot pop a queued job first.
	s.stopWork()
	forced := 0
	for _, job := range s.jobs.Drain() {
		_ = job.Conn.Close()
		forced++
	}
	forced += s.conns.closeAll()
	s.metrics.ConnectionsForceClosed(forced)
	s.logger.Warn("shutdown grace period expired, connections closed",
		zap.Duration("timeout", s.cfg.Server.ShutdownTimeout),
		zap.Int("forced", forced),
	)
	<-done
	return fmt.Errorf("%w: force-closed %d connections", ErrShutdownTimeout, forced)
}

func (s *Server) closeListeners() {
	for _, d := range s.dispatchers {
		if err := d.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Warn("closing listener", zap.Error(err))
		}
	}
}

// BinaryAddr is nil when the binary surface is disabled or not yet bound.
func (s *Server) BinaryAddr() net.Addr {
	if s.binary == nil {
		return nil
	}
	return s.binary.Addr()
}

// HTTPAddr is nil when the HTTP surface is disabled or not yet bound.
func (s *Server) HTTPAddr() net.Addr {
	if s.http == nil {
		return nil
	}
	return s.http.Addr()
}

// Accepted counts connections handed to the job queue.
func (s *Server) Accepted() int64 {
	return s.accepted.Value()
}

// Rejected counts connections closed by a dispatcher without service.
func (s *Server) Rejected() int64 {
	return s.rejected.Value()
}

// Processed counts jobs a worker has finished with, answered or not.
func (s *Server) Processed() int64 {
	return s.processed.Value()
}

func (s *Server) Stats() stats.Snapshot {
	return s.stats.Snapshot()
}

func (s *Server) QueueLen() int {
	return s.jobs.Len()
}

func (s *Server) BusyWorkers() int64 {
	return s.pool.Busy()
}

type noAddr struct{}

func (noAddr) String() string { return "disabled" }

func addrOrNone(d *Dispatcher) fmt.Stringer {
	if d == nil {
		return noAddr{}
	}
	return d.Addr()
}

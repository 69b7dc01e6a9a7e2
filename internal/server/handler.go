package server

import (
	"context"
	"net"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/WalidBenTouhami/server-bench/internal/codec"
	"github.com/WalidBenTouhami/server-bench/internal/metrics"
	"github.com/WalidBenTouhami/server-bench/internal/router"
	"github.com/WalidBenTouhami/server-bench/internal/workload"
)

// handler serves exactly one request per connection and closes it.
type handler struct {
	readTimeout  time.Duration
	writeTimeout time.Duration

	router    *router.Router
	simulator *workload.Simulator
	conns     *connRegistry
	buffers   *bufferPool
	processed *xsync.Counter
	metrics   metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time

	// work is cancelled when the shutdown grace period expires.
	work context.Context
}

func (h *handler) handle(job Job) {
	log := h.logger.With(zap.String("job", job.ID), zap.Stringer("proto", job.Proto))

	defer func() {
		if r := recover(); r != nil {
			log.Error("recovered from panic while handling job", zap.Any("panic", r), zap.Stack("stack"))
		}
		h.conns.remove(job.ID)
		_ = job.Conn.Close()
		h.processed.Inc()
		h.metrics.JobCompleted(job.Proto.String(), h.now().Sub(job.AcceptedAt))
	}()

	if !h.conns.add(job.ID, job.Conn) {
		log.Debug("shutting down, dropping job")
		return
	}

	switch job.Proto {
	case ProtoBinary:
		h.serveBinary(job.Conn, log)
	case ProtoHTTP:
		h.serveHTTP(job.Conn, log)
	default:
		log.Warn("unknown protocol")
	}
}

func (h *handler) serveBinary(conn net.Conn, log *zap.Logger) {
	if err := conn.SetReadDeadline(time.Now().Add(h.readTimeout)); err != nil {
		log.Debug("set read deadline", zap.Error(err))
		return
	}
	n, err := codec.ReadSquareRequest(conn)
	if err != nil {
		log.Debug("read failed, abandoning connection", zap.Error(err))
		return
	}

	if err := h.simulator.Run(h.work); err != nil {
		log.Debug("workload interrupted", zap.Error(err))
		return
	}

	var out [codec.SquareResponseSize]byte
	resp := codec.EncodeSquareResponse(out[:0], codec.Square(n), h.now())

	if err := conn.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
		log.Debug("set write deadline", zap.Error(err))
		return
	}
	if _, err := conn.Write(resp); err != nil {
		log.Debug("write failed", zap.Error(err))
	}
}

func (h *handler) serveHTTP(conn net.Conn, log *zap.Logger) {
	bufp := h.buffers.get()
	defer h.buffers.put(bufp)
	buf := *bufp

	if err := conn.SetReadDeadline(time.Now().Add(h.readTimeout)); err != nil {
		log.Debug("set read deadline", zap.Error(err))
		return
	}
	n, err := codec.ReadRequestLine(conn, buf)
	if err != nil {
		log.Debug("read failed, abandoning connection", zap.Error(err))
		return
	}

	var resp codec.Response
	req, err := codec.ParseRequest(buf[:n])
	if err != nil {
		log.Debug("malformed request", zap.Error(err))
		resp = h.router.NotFound()
	} else {
		resp = h.router.Dispatch(req)
	}

	route := req.Path
	if resp.Status == codec.StatusNotFound {
		route = "not_found"
	}
	h.metrics.Response(route, resp.Status)

	if err := conn.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
		log.Debug("set write deadline", zap.Error(err))
		return
	}
	if _, err := resp.WriteTo(conn); err != nil {
		log.Debug("write failed", zap.Error(err))
	}
}

// Package monitor periodically logs server counters and host load.
package monitor

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/load"
	"go.uber.org/zap"

	"github.com/WalidBenTouhami/server-bench/internal/stats"
)

// Source is what the monitor reads on every tick.
type Source interface {
	Stats() stats.Snapshot
	QueueLen() int
	BusyWorkers() int64
	Accepted() int64
	Rejected() int64
	Processed() int64
}

type Monitor struct {
	src      Source
	interval time.Duration
	logger   *zap.Logger
	loadAvg  func() (*load.AvgStat, error)
}

func New(src Source, interval time.Duration, logger *zap.Logger) *Monitor {
	return &Monitor{
		src:      src,
		interval: interval,
		logger:   logger.Named("monitor"),
		loadAvg:  load.Avg,
	}
}

// Run logs one line per interval until ctx is done. A zero interval
// returns immediately.
func (m *Monitor) Run(ctx context.Context) error {
	if m.interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.report()
		}
	}
}

func (m *Monitor) report() {
	snap := m.src.Stats()
	fields := []zap.Field{
		zap.Uint64("total_requests", snap.TotalRequests),
		zap.Uint64("hello_requests", snap.HelloRequests),
		zap.Uint64("not_found", snap.NotFound),
		zap.Int("queue_depth", m.src.QueueLen()),
		zap.Int64("busy_workers", m.src.BusyWorkers()),
		zap.Int64("accepted", m.src.Accepted()),
		zap.Int64("rejected", m.src.Rejected()),
		zap.Int64("processed", m.src.Processed()),
	}

	if avg, err := m.loadAvg(); err != nil {
		m.logger.Debug("load average unavailable", zap.Error(err))
	} else {
		fields = append(fields,
			zap.Float64("load1", avg.Load1),
			zap.Float64("load5", avg.Load5),
			zap.Float64("load15", avg.Load15),
		)
	}

	m.logger.Info("status", fields...)
}

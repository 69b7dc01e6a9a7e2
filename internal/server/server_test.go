package server

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/WalidBenTouhami/server-bench/internal/config"
	"github.com/WalidBenTouhami/server-bench/internal/metrics"
	"github.com/WalidBenTouhami/server-bench/internal/stats"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Binary.Listen = "127.0.0.1:0"
	cfg.HTTP.Listen = "127.0.0.1:0"
	cfg.Server.Workers = 4
	cfg.Server.QueueSize = 64
	cfg.Server.ReadTimeout = 2 * time.Second
	cfg.Server.WriteTimeout = 2 * time.Second
	cfg.Server.ShutdownTimeout = 3 * time.Second
	return cfg
}

type running struct {
	*Server
	cancel context.CancelFunc
	errc   chan error
	once   sync.Once
	err    error
}

// stop cancels the server and returns what Serve returned.
func (r *running) stop(t *testing.T) error {
	t.Helper()
	r.once.Do(func() {
		r.cancel()
		select {
		case r.err = <-r.errc:
		case <-time.After(10 * time.Second):
			r.err = errors.New("Serve did not return")
		}
	})
	return r.err
}

func start(t *testing.T, cfg config.Config, opts ...Option) *running {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	s, err := New(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, s.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	r := &running{Server: s, cancel: cancel, errc: make(chan error, 1)}
	go func() { r.errc <- s.Serve(ctx) }()
	t.Cleanup(func() { _ = r.stop(t) })
	return r
}

func dial(t *testing.T, addr net.Addr) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr.String(), 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func square(t *testing.T, addr net.Addr, n int32) (int32, int64) {
	t.Helper()
	conn := dial(t, addr)
	var req [4]byte
	binary.BigEndian.PutUint32(req[:], uint32(n))
	_, err := conn.Write(req[:])
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var resp [12]byte
	_, err = io.ReadFull(conn, resp[:])
	require.NoError(t, err)
	return int32(binary.BigEndian.Uint32(resp[:4])), int64(binary.BigEndian.Uint64(resp[4:]))
}

func rawHTTP(t *testing.T, addr net.Addr, request string) (string, string) {
	t.Helper()
	conn := dial(t, addr)
	_, err := io.WriteString(conn, request)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	data, err := io.ReadAll(conn)
	require.NoError(t, err)

	head, body, ok := strings.Cut(string(data), "\r\n\r\n")
	require.True(t, ok, "no header terminator in %q", data)
	return head, body
}

func get(t *testing.T, addr net.Addr, path string) (string, string) {
	return rawHTTP(t, addr, fmt.Sprintf("GET %s HTTP/1.1\r\nHost: test\r\n\r\n", path))
}

// expectClosed asserts the server closes conn without sending anything.
func expectClosed(t *testing.T, conn net.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var b [1]byte
	n, err := conn.Read(b[:])
	assert.Zero(t, n)
	require.Error(t, err)
	var ne net.Error
	if errors.As(err, &ne) {
		assert.False(t, ne.Timeout(), "server did not close the connection")
	}
}

func TestBinarySquare(t *testing.T) {
	fixed := time.UnixMicro(1_712_345_678_901_234)
	s := start(t, testConfig(), WithClock(func() time.Time { return fixed }))

	for _, n := range []int32{0, 7, -12, 46341} {
		got, ts := square(t, s.BinaryAddr(), n)
		assert.Equal(t, n*n, got)
		assert.Equal(t, fixed.UnixMicro(), ts)
	}
}

func TestBinaryShortRequestIsAbandoned(t *testing.T) {
	cfg := testConfig()
	cfg.Server.ReadTimeout = 200 * time.Millisecond
	s := start(t, cfg)

	conn := dial(t, s.BinaryAddr())
	_, err := conn.Write([]byte{0, 1})
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())
	expectClosed(t, conn)
}

func TestHTTPRoutes(t *testing.T) {
	s := start(t, testConfig())

	head, body := get(t, s.HTTPAddr(), "/hello")
	assert.True(t, strings.HasPrefix(head, "HTTP/1.1 200 OK\r\n"))
	assert.Contains(t, head, "Content-Type: application/json")
	assert.Contains(t, head, fmt.Sprintf("Content-Length: %d", len(body)))
	assert.Contains(t, head, "Connection: close")
	assert.Contains(t, body, `"msg"`)

	head, body = get(t, s.HTTPAddr(), "/unknown-path")
	assert.True(t, strings.HasPrefix(head, "HTTP/1.1 404 Not Found\r\n"))
	assert.Contains(t, head, "Content-Type: text/plain")
	assert.Equal(t, "404 NOT FOUND", body)

	head, body = get(t, s.HTTPAddr(), "/")
	assert.Contains(t, head, "Content-Type: text/html")
	assert.Contains(t, body, "/stats")

	_, body = get(t, s.HTTPAddr(), "/time")
	assert.Contains(t, body, `"server_time"`)

	assert.Equal(t, stats.Snapshot{TotalRequests: 4, HelloRequests: 1, NotFound: 1}, s.Stats())
}

func TestHTTPMalformedGets404(t *testing.T) {
	s := start(t, testConfig())

	head, body := rawHTTP(t, s.HTTPAddr(), strings.Repeat("X", 40)+" / HTTP/1.1\r\n\r\n")
	assert.True(t, strings.HasPrefix(head, "HTTP/1.1 404 Not Found\r\n"))
	assert.Equal(t, "404 NOT FOUND", body)

	head, _ = rawHTTP(t, s.HTTPAddr(), "GET /"+strings.Repeat("a", 600)+" HTTP/1.1\r\n\r\n")
	assert.True(t, strings.HasPrefix(head, "HTTP/1.1 404 Not Found\r\n"))

	assert.Equal(t, uint64(2), s.Stats().NotFound)
}

func TestStatsAfterConcurrentClients(t *testing.T) {
	s := start(t, testConfig())

	const k = 20
	var wg sync.WaitGroup
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			head, _ := get(t, s.HTTPAddr(), "/hello")
			assert.True(t, strings.HasPrefix(head, "HTTP/1.1 200 OK"))
		}()
	}
	wg.Wait()
	get(t, s.HTTPAddr(), "/a")
	get(t, s.HTTPAddr(), "/b")

	_, body := get(t, s.HTTPAddr(), "/stats")
	var snap stats.Snapshot
	require.NoError(t, json.Unmarshal([]byte(body), &snap))
	assert.Equal(t, stats.Snapshot{TotalRequests: k + 3, HelloRequests: k, NotFound: 2}, snap)
	assert.Zero(t, s.Rejected())
	require.Eventually(t, func() bool {
		return s.Accepted() == k+3 && s.Processed() == k+3
	}, time.Second, 5*time.Millisecond)
}

func TestIdleConnectionTimesOut(t *testing.T) {
	cfg := testConfig()
	cfg.Server.ReadTimeout = 200 * time.Millisecond
	s := start(t, cfg)

	begin := time.Now()
	conn := dial(t, s.HTTPAddr())
	expectClosed(t, conn)
	assert.GreaterOrEqual(t, time.Since(begin), 150*time.Millisecond)

	require.Eventually(t, func() bool { return s.Processed() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, stats.Snapshot{}, s.Stats())
}

func TestIdleConnectionDoesNotBlockOthers(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Workers = 2
	cfg.Server.ReadTimeout = time.Second
	s := start(t, cfg)

	begin := time.Now()
	idle := dial(t, s.HTTPAddr())
	require.Eventually(t, func() bool { return s.BusyWorkers() == 1 }, time.Second, 5*time.Millisecond)

	head, body := get(t, s.HTTPAddr(), "/hello")
	assert.True(t, strings.HasPrefix(head, "HTTP/1.1 200 OK"))
	assert.Contains(t, body, "Hello from the multi-worker HTTP server")
	assert.Less(t, time.Since(begin), cfg.Server.ReadTimeout)
	// The idle connection still holds its worker.
	require.Eventually(t, func() bool { return s.BusyWorkers() == 1 }, 500*time.Millisecond, 5*time.Millisecond)

	expectClosed(t, idle)
	assert.GreaterOrEqual(t, time.Since(begin), 900*time.Millisecond)
	assert.Equal(t, stats.Snapshot{TotalRequests: 1, HelloRequests: 1}, s.Stats())
}

func TestQueueFullRejects(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Workers = 1
	cfg.Server.QueueSize = 1
	cfg.Server.ReadTimeout = 5 * time.Second

	reg := prometheus.NewRegistry()
	s := start(t, cfg, WithMetrics(metrics.NewPrometheus(reg)))

	// a occupies the only worker, b fills the queue.
	a := dial(t, s.HTTPAddr())
	require.Eventually(t, func() bool { return s.BusyWorkers() == 1 }, 2*time.Second, 5*time.Millisecond)
	b := dial(t, s.HTTPAddr())
	require.Eventually(t, func() bool { return s.QueueLen() == 1 }, 2*time.Second, 5*time.Millisecond)

	c := dial(t, s.HTTPAddr())
	expectClosed(t, c)
	require.Eventually(t, func() bool { return s.Rejected() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP serverbench_busy_workers Workers currently handling a job.
# TYPE serverbench_busy_workers gauge
serverbench_busy_workers 1
# HELP serverbench_queue_depth Jobs waiting for a worker.
# TYPE serverbench_queue_depth gauge
serverbench_queue_depth 1
`), "serverbench_queue_depth", "serverbench_busy_workers"))

	// Releasing a lets b through.
	_, err := io.WriteString(a, "GET /hello HTTP/1.1\r\n\r\n")
	require.NoError(t, err)
	_, err = io.WriteString(b, "GET /stats HTTP/1.1\r\n\r\n")
	require.NoError(t, err)
	for _, conn := range []net.Conn{a, b} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		data, err := io.ReadAll(conn)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(data), "HTTP/1.1 200 OK"))
	}
	assert.Equal(t, int64(1), s.Rejected())
}

func TestRateLimitRejects(t *testing.T) {
	cfg := testConfig()
	cfg.HTTP.AcceptRate = 0.001
	cfg.HTTP.AcceptBurst = 1
	s := start(t, cfg)

	head, _ := get(t, s.HTTPAddr(), "/hello")
	assert.True(t, strings.HasPrefix(head, "HTTP/1.1 200 OK"))

	expectClosed(t, dial(t, s.HTTPAddr()))
	assert.Equal(t, int64(1), s.Rejected())

	// The binary surface has its own, unlimited, dispatcher.
	got, _ := square(t, s.BinaryAddr(), 3)
	assert.Equal(t, int32(9), got)
}

func TestGracefulShutdownDrainsQueue(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Workers = 1
	cfg.Binary.Workload = config.WorkloadConfig{Enabled: true, MinDelay: 50 * time.Millisecond, MaxDelay: 50 * time.Millisecond}
	s := start(t, cfg)

	const n = 3
	conns := make([]net.Conn, n)
	for i := range conns {
		conns[i] = dial(t, s.BinaryAddr())
		var req [4]byte
		binary.BigEndian.PutUint32(req[:], uint32(i+2))
		_, err := conns[i].Write(req[:])
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return s.Accepted() == n }, 2*time.Second, 5*time.Millisecond)

	errc := make(chan error, 1)
	go func() { errc <- s.stop(t) }()

	for i, conn := range conns {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var resp [12]byte
		_, err := io.ReadFull(conn, resp[:])
		require.NoError(t, err)
		assert.Equal(t, int32((i+2)*(i+2)), int32(binary.BigEndian.Uint32(resp[:4])))
	}
	assert.NoError(t, <-errc)

	_, err := net.DialTimeout("tcp", s.BinaryAddr().String(), time.Second)
	assert.Error(t, err, "listener still open after shutdown")
}

func TestShutdownTimeoutForcesClose(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Workers = 1
	cfg.Server.QueueSize = 4
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 100 * time.Millisecond
	s := start(t, cfg)

	a := dial(t, s.HTTPAddr())
	require.Eventually(t, func() bool { return s.BusyWorkers() == 1 }, 2*time.Second, 5*time.Millisecond)
	b := dial(t, s.HTTPAddr())
	require.Eventually(t, func() bool { return s.QueueLen() == 1 }, 2*time.Second, 5*time.Millisecond)

	begin := time.Now()
	err := s.stop(t)
	require.ErrorIs(t, err, ErrShutdownTimeout)
	assert.Contains(t, err.Error(), "force-closed 2 connections")
	assert.Less(t, time.Since(begin), 5*time.Second)

	expectClosed(t, a)
	expectClosed(t, b)
}

func TestListenErrors(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	cfg := testConfig()
	cfg.HTTP.Listen = taken.Addr().String()
	s, err := New(cfg)
	require.NoError(t, err)
	assert.Error(t, s.Listen())

	cfg = testConfig()
	cfg.Binary.Listen = ""
	cfg.HTTP.Listen = ""
	s, err = New(cfg)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Listen(), ErrNotListening)
	assert.ErrorIs(t, s.Serve(context.Background()), ErrNotListening)
}

func TestNewRejectsBadSizes(t *testing.T) {
	cfg := testConfig()
	cfg.Server.QueueSize = 0
	_, err := New(cfg)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Server.Workers = 0
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestDisabledSurface(t *testing.T) {
	cfg := testConfig()
	cfg.Binary.Listen = ""
	s := start(t, cfg)

	assert.Nil(t, s.BinaryAddr())
	require.NotNil(t, s.HTTPAddr())
	head, _ := get(t, s.HTTPAddr(), "/hello")
	assert.True(t, strings.HasPrefix(head, "HTTP/1.1 200 OK"))
}

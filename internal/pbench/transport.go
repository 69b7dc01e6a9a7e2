package pbench

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/WalidBenTouhami/server-bench/internal/codec"
)

const maxResponse = 64 << 10

// StatusOK is the status recorded for a correct binary answer.
const StatusOK = "OK"

func dial(ctx context.Context, addr string, timeout time.Duration) (net.Conn, func(), error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, err
	}
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		conn.Close()
		return nil, nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	return conn, func() {
		stop()
		conn.Close()
	}, nil
}

// squareOperand keeps requests varied without leaving the non-overflowing
// range.
func squareOperand(seq int) int32 {
	return int32(seq%46341) - 23170
}

func requestBinary(ctx context.Context, addr string, timeout time.Duration, seq int) (string, error) {
	conn, done, err := dial(ctx, addr, timeout)
	if err != nil {
		return "", err
	}
	defer done()

	n := squareOperand(seq)
	var req [codec.SquareRequestSize]byte
	if _, err := conn.Write(codec.EncodeSquareRequest(req[:0], n)); err != nil {
		return "", err
	}

	var resp [codec.SquareResponseSize]byte
	if _, err := io.ReadFull(conn, resp[:]); err != nil {
		return "", err
	}
	got, _, err := codec.DecodeSquareResponse(resp[:])
	if err != nil {
		return "", err
	}
	if want := codec.Square(n); got != want {
		return "", fmt.Errorf("square(%d): got %d, want %d", n, got, want)
	}
	return StatusOK, nil
}

func requestHTTP(ctx context.Context, addr string, timeout time.Duration, path string) (string, error) {
	conn, done, err := dial(ctx, addr, timeout)
	if err != nil {
		return "", err
	}
	defer done()

	if _, err := fmt.Fprintf(conn, "GET %s HTTP/1.1\r\nHost: %s\r\nConnection: close\r\n\r\n", path, addr); err != nil {
		return "", err
	}

	r := bufio.NewReader(io.LimitReader(conn, maxResponse))
	line, err := r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading status line: %w", err)
	}
	status, ok := strings.CutPrefix(strings.TrimRight(line, "\r\n"), "HTTP/1.1 ")
	if !ok {
		return "", fmt.Errorf("malformed status line %q", line)
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return status, err
	}
	return status, nil
}

// Package codec turns wire bytes into requests and responses for the two
// protocols the server speaks: a fixed-width binary squaring protocol and a
// minimal HTTP/1.1 subset.
package codec

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

const (
	SquareRequestSize  = 4
	SquareResponseSize = 12
)

func DecodeSquareRequest(b []byte) (int32, error) {
	if len(b) != SquareRequestSize {
		return 0, fmt.Errorf("%w: got %d", ErrShortRequest, len(b))
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

// EncodeSquareRequest is the client side of DecodeSquareRequest.
func EncodeSquareRequest(dst []byte, n int32) []byte {
	return binary.BigEndian.AppendUint32(dst, uint32(n))
}

// ReadSquareRequest reads exactly one request from r.
func ReadSquareRequest(r io.Reader) (int32, error) {
	var b [SquareRequestSize]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return DecodeSquareRequest(b[:])
}

// Square wraps around on overflow like any int32 multiplication.
func Square(n int32) int32 {
	return n * n
}

// EncodeSquareResponse appends the result followed by ts in microseconds
// since the epoch, both big-endian.
func EncodeSquareResponse(dst []byte, result int32, ts time.Time) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(result))
	return binary.BigEndian.AppendUint64(dst, uint64(ts.UnixMicro()))
}

// DecodeSquareResponse is the client side of EncodeSquareResponse.
func DecodeSquareResponse(b []byte) (int32, time.Time, error) {
	if len(b) != SquareResponseSize {
		return 0, time.Time{}, fmt.Errorf("binary response must be %d bytes, got %d", SquareResponseSize, len(b))
	}
	result := int32(binary.BigEndian.Uint32(b[:4]))
	ts := time.UnixMicro(int64(binary.BigEndian.Uint64(b[4:])))
	return result, ts, nil
}

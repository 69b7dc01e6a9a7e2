package codec

import "errors"

var (
	ErrShortRequest = errors.New("binary request must be exactly 4 bytes")

	ErrEmptyRequest       = errors.New("empty request")
	ErrInvalidRequestLine = errors.New("invalid request line")
	ErrInvalidMethod      = errors.New("invalid method")
	ErrMethodTooLong      = errors.New("method too long")
	ErrURITooLong         = errors.New("request URI too long")
	ErrQueryTooLong       = errors.New("query string too long")
)

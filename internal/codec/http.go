package codec

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strconv"
)

const (
	MaxRequestLine = 1024
	MaxMethod      = 15
	MaxURI         = 511
	MaxQuery       = 255

	DefaultPath       = "/"
	DefaultConnection = "close"
)

const (
	StatusOK       = "200 OK"
	StatusNotFound = "404 Not Found"
)

const (
	ContentTypeHTML = "text/html"
	ContentTypeJSON = "application/json"
	ContentTypeText = "text/plain"
)

var crlf = []byte("\r\n")

type Request struct {
	Method string
	Path   string
	Query  string
}

// ParseRequest extracts method, path and query from the request line at the
// start of buf. Every field is checked against its capacity. On error the
// returned Request still carries the default path so callers can answer it.
func ParseRequest(buf []byte) (Request, error) {
	req := Request{Path: DefaultPath}

	line := buf
	if i := bytes.Index(buf, crlf); i >= 0 {
		line = buf[:i]
	}
	if len(line) > MaxRequestLine {
		line = line[:MaxRequestLine]
	}

	fields := bytes.Fields(line)
	if len(fields) == 0 {
		return req, ErrEmptyRequest
	}

	method := fields[0]
	if len(method) > MaxMethod {
		return req, ErrMethodTooLong
	}
	if !isToken(method) {
		return req, ErrInvalidMethod
	}
	req.Method = string(method)

	if len(fields) < 2 {
		return req, ErrInvalidRequestLine
	}
	uri := fields[1]
	if len(uri) > MaxURI {
		return req, ErrURITooLong
	}

	path, query := uri, []byte(nil)
	if i := bytes.IndexByte(uri, '?'); i >= 0 {
		path, query = uri[:i], uri[i+1:]
	}
	if len(query) > MaxQuery {
		return req, ErrQueryTooLong
	}

	req.Path = string(path)
	req.Query = string(query)
	return req, nil
}

// ReadRequestLine fills buf from r until a line terminator has arrived, buf
// is full or the peer stops sending. It only reports an error when nothing
// was read.
func ReadRequestLine(r io.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if bytes.Contains(buf[:n], crlf) {
			return n, nil
		}
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}
		if m == 0 {
			break
		}
	}
	if n == 0 {
		return 0, io.ErrUnexpectedEOF
	}
	return n, nil
}

type Response struct {
	Status      string
	ContentType string
	Body        []byte
	// Connection defaults to "close" when empty.
	Connection string
}

func (r Response) Header() []byte {
	conn := r.Connection
	if conn == "" {
		conn = DefaultConnection
	}

	b := make([]byte, 0, 96+len(r.Status)+len(r.ContentType))
	b = append(b, "HTTP/1.1 "...)
	b = append(b, r.Status...)
	b = append(b, "\r\nContent-Type: "...)
	b = append(b, r.ContentType...)
	b = append(b, "\r\nContent-Length: "...)
	b = strconv.AppendInt(b, int64(len(r.Body)), 10)
	b = append(b, "\r\nConnection: "...)
	b = append(b, conn...)
	b = append(b, "\r\n\r\n"...)
	return b
}

// WriteTo writes the header and the body in a single vectored write.
func (r Response) WriteTo(w io.Writer) (int64, error) {
	bufs := net.Buffers{r.Header()}
	if len(r.Body) > 0 {
		bufs = append(bufs, r.Body)
	}
	return bufs.WriteTo(w)
}

// IsParseError reports whether err came from ParseRequest.
func IsParseError(err error) bool {
	return errors.Is(err, ErrEmptyRequest) ||
		errors.Is(err, ErrInvalidRequestLine) ||
		errors.Is(err, ErrInvalidMethod) ||
		errors.Is(err, ErrMethodTooLong) ||
		errors.Is(err, ErrURITooLong) ||
		errors.Is(err, ErrQueryTooLong)
}

func isToken(b []byte) bool {
	for _, c := range b {
		if !isTokenChar(c) {
			return false
		}
	}
	return len(b) > 0
}

func isTokenChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	switch c {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}

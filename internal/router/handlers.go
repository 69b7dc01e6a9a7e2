package router

import (
	"github.com/goccy/go-json"

	"github.com/WalidBenTouhami/server-bench/internal/codec"
	"github.com/WalidBenTouhami/server-bench/internal/stats"
)

const (
	HelloMessage = "Hello from the multi-worker HTTP server"
	HelloWorker  = "goroutine-pool"

	NotFoundBody = "404 NOT FOUND"
	TimeLayout   = "2006-01-02 15:04:05"
)

const indexPage = `<!DOCTYPE html>
<html>
<head><title>server-bench</title></head>
<body>
<h1>server-bench</h1>
<ul>
<li><a href="/hello">/hello</a></li>
<li><a href="/time">/time</a></li>
<li><a href="/stats">/stats</a></li>
</ul>
</body>
</html>
`

type helloBody struct {
	Msg    string `json:"msg"`
	Worker string `json:"worker"`
}

type timeBody struct {
	ServerTime string `json:"server_time"`
}

var (
	helloJSON    = mustMarshal(helloBody{Msg: HelloMessage, Worker: HelloWorker})
	notFoundText = []byte(NotFoundBody)
	indexHTML    = []byte(indexPage)
)

func (r *Router) index(codec.Request) codec.Response {
	r.stats.Increment(stats.Total)
	return codec.Response{Status: codec.StatusOK, ContentType: codec.ContentTypeHTML, Body: indexHTML}
}

func (r *Router) hello(codec.Request) codec.Response {
	r.stats.Increment(stats.Total, stats.Hello)
	return codec.Response{Status: codec.StatusOK, ContentType: codec.ContentTypeJSON, Body: helloJSON}
}

func (r *Router) serverTime(codec.Request) codec.Response {
	r.stats.Increment(stats.Total)
	body := mustMarshal(timeBody{ServerTime: r.now().Local().Format(TimeLayout)})
	return codec.Response{Status: codec.StatusOK, ContentType: codec.ContentTypeJSON, Body: body}
}

// snapshot counts itself before reading, so a fresh server answers
// total_requests=1.
func (r *Router) snapshot(codec.Request) codec.Response {
	r.stats.Increment(stats.Total)
	body := mustMarshal(r.stats.Snapshot())
	return codec.Response{Status: codec.StatusOK, ContentType: codec.ContentTypeJSON, Body: body}
}

func (r *Router) missing(codec.Request) codec.Response {
	r.stats.Increment(stats.Total, stats.NotFound)
	return codec.Response{Status: codec.StatusNotFound, ContentType: codec.ContentTypeText, Body: notFoundText}
}

// mustMarshal is only used on fixed struct types that cannot fail to encode.
func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

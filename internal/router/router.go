// Package router maps a parsed HTTP request onto one of a fixed set of
// handlers.
package router

import (
	"time"

	"github.com/WalidBenTouhami/server-bench/internal/codec"
	"github.com/WalidBenTouhami/server-bench/internal/stats"
)

const (
	RouteIndex = "/"
	RouteHello = "/hello"
	RouteTime  = "/time"
	RouteStats = "/stats"
)

type Handler func(codec.Request) codec.Response

type Router struct {
	stats    *stats.Registry
	now      func() time.Time
	routes   map[string]Handler
	notFound Handler
}

type Option func(*Router)

// WithClock replaces time.Now for the /time handler.
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		r.now = now
	}
}

func New(reg *stats.Registry, opts ...Option) *Router {
	r := &Router{
		stats: reg,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.routes = map[string]Handler{
		RouteIndex: r.index,
		RouteHello: r.hello,
		RouteTime:  r.serverTime,
		RouteStats: r.snapshot,
	}
	r.notFound = r.missing
	return r
}

// Dispatch matches the path exactly. Anything else gets the 404 handler.
func (r *Router) Dispatch(req codec.Request) codec.Response {
	if h, ok := r.routes[req.Path]; ok {
		return h(req)
	}
	return r.notFound(req)
}

// NotFound answers a request that could not be parsed.
func (r *Router) NotFound() codec.Response {
	return r.notFound(codec.Request{Path: codec.DefaultPath})
}

// Routes lists the registered paths.
func (r *Router) Routes() []string {
	return []string{RouteIndex, RouteHello, RouteTime, RouteStats}
}

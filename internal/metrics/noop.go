package metrics

import "time"

type noop struct{}

func Noop() Metrics { return noop{} }

func (noop) ConnectionAccepted(string) {}
func (noop) ConnectionRejected(string, string) {}
func (noop) JobCompleted(string, time.Duration) {}
func (noop) Response(string, string) {}
func (noop) TrackPool(func() int, func() int64) {}
func (noop) ConnectionsForceClosed(int) {}

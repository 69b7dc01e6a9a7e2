package server

import (
	"net"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// connRegistry tracks connections currently owned by a worker so that
// shutdown can close them once the grace period is over.
type connRegistry struct {
	conns  *xsync.MapOf[string, net.Conn]
	closed atomic.Bool
}

func newConnRegistry() *connRegistry {
	return &connRegistry{
		conns: xsync.NewMapOf[string, net.Conn](),
	}
}

// add returns false once closeAll has run; the caller must then close conn
// itself.
func (r *connRegistry) add(id string, conn net.Conn) bool {
	r.conns.Store(id, conn)
	if r.closed.Load() {
		r.conns.Delete(id)
		return false
	}
	return true
}

func (r *connRegistry) remove(id string) {
	r.conns.Delete(id)
}

func (r *connRegistry) len() int {
	return r.conns.Size()
}

// closeAll closes every registered connection and refuses later adds.
func (r *connRegistry) closeAll() int {
	r.closed.Store(true)
	n := 0
	r.conns.Range(func(id string, conn net.Conn) bool {
		_ = conn.Close()
		r.conns.Delete(id)
		n++
		return true
	})
	return n
}

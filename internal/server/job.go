package server

import (
	"net"
	"time"
)

type Protocol uint8

const (
	ProtoBinary Protocol = iota
	ProtoHTTP
)

func (p Protocol) String() string {
	switch p {
	case ProtoBinary:
		return "binary"
	case ProtoHTTP:
		return "http"
	default:
		return "unknown"
	}
}

// Job is one accepted connection waiting for a worker. The worker that pops
// it owns Conn and must close it.
type Job struct {
	ID         string
	Conn       net.Conn
	Proto      Protocol
	AcceptedAt time.Time
}

package engine

import (
	"context"
	"net"
	"time"
)

// ConnectivityProbe answers "is the network up at all", separating "network
// down" from "upstream error" when a refresh fails.
type ConnectivityProbe interface {
	Online(ctx context.Context) bool
}

// DialProbe checks reachability with a bounded TCP dial.
type DialProbe struct {
	Addr    string
	Timeout time.Duration
}

// NewDialProbe builds a probe against addr ("host:port").
func NewDialProbe(addr string, timeout time.Duration) *DialProbe {
	if addr == "" {
		addr = "1.1.1.1:53"
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &DialProbe{Addr: addr, Timeout: timeout}
}

// Online dials the probe address and reports success.
func (p *DialProbe) Online(ctx context.Context) bool {
	dialer := net.Dialer{Timeout: p.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.Addr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

var _ ConnectivityProbe = (*DialProbe)(nil)

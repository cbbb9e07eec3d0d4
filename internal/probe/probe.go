// Package probe implements bounded TCP reachability checks.
package probe

import (
	"context"
	"net"
	"strconv"
	"time"
)

// DefaultTimeout is used when a prober is built without a positive timeout.
const DefaultTimeout = 3 * time.Second

// Prober checks whether host:port accepts connections.
// Implementations must never block past their timeout and never return errors:
// every failure collapses to false.
type Prober interface {
	Probe(ctx context.Context, host string, port int32) bool
}

// TCPProber opens a TCP connection and closes it immediately.
type TCPProber struct {
	Timeout time.Duration
}

// NewTCPProber creates a TCP prober. A zero or negative timeout falls back to
// DefaultTimeout so the dial is never unbounded.
func NewTCPProber(timeout time.Duration) *TCPProber {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &TCPProber{Timeout: timeout}
}

// Probe implements Prober
func (p *TCPProber) Probe(ctx context.Context, host string, port int32) bool {
	if host == "" || port < 1 || port > 65535 {
		return false
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		return false
	}

	// Reset instead of FIN so the socket does not linger in TIME_WAIT.
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetLinger(0)
	}
	_ = conn.Close()

	return true
}

// Func adapts a plain function to the Prober interface.
type Func func(ctx context.Context, host string, port int32) bool

// Probe implements Prober
func (f Func) Probe(ctx context.Context, host string, port int32) bool {
	return f(ctx, host, port)
}

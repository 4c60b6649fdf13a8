// Package probe answers "is something listening on host:port" with a single
// bounded TCP connect.
package probe

import (
	"context"
	"net"
	"strconv"
	"time"
)

const DefaultTimeout = 2 * time.Second

// Result is the outcome of one connect attempt. Err carries the transport
// error for logging; callers that only need up/down read Reachable.
type Result struct {
	Host      string
	Port      int
	Reachable bool
	Latency   time.Duration
	Err       error
}

type TCPProber struct {
	Timeout time.Duration
}

func NewTCPProber(timeout time.Duration) *TCPProber {
	return &TCPProber{Timeout: timeout}
}

// Probe dials host:port once. The connection is closed before returning and
// is never reused.
func (p *TCPProber) Probe(ctx context.Context, host string, port int) Result {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res := Result{Host: host, Port: port}
	start := time.Now()
	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	res.Latency = time.Since(start)
	if err != nil {
		res.Err = err
		return res
	}
	_ = conn.Close()
	res.Reachable = true
	return res
}

// Reachable is the boolean form of Probe.
func Reachable(ctx context.Context, host string, port int, timeout time.Duration) bool {
	return NewTCPProber(timeout).Probe(ctx, host, port).Reachable
}

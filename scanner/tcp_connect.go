package scanner

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"syscall"
	"time"
)

// Prober performs one bounded-time connectivity check against a single port.
// A non-nil error means ctx ended before the attempt was classified and the
// outcome must be discarded.
type Prober interface {
	Probe(ctx context.Context, addr netip.Addr, port uint16, timeout time.Duration) (ProbeOutcome, error)
}

// Dialer establishes network connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// TCPProber classifies ports with a full TCP three-way handshake.
type TCPProber struct {
	dialer Dialer
}

// NewTCPProber creates a prober using dialer, or a plain net.Dialer when nil.
func NewTCPProber(dialer Dialer) *TCPProber {
	if dialer == nil {
		dialer = &net.Dialer{KeepAlive: -1}
	}
	return &TCPProber{dialer: dialer}
}

// Probe attempts a TCP connection to addr:port. The attempt carries its own
// deadline so it never outlives timeout, whatever the OS connect timeout is.
// No data is sent or read; an established connection is closed immediately.
func (p *TCPProber) Probe(ctx context.Context, addr netip.Addr, port uint16, timeout time.Duration) (ProbeOutcome, error) {
	if err := ctx.Err(); err != nil {
		return ProbeOutcome{}, fmt.Errorf("%w: %w", ErrProbeAborted, err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	conn, err := p.dialer.DialContext(dialCtx, "tcp", netip.AddrPortFrom(addr, port).String())
	outcome := ProbeOutcome{Port: port, Elapsed: time.Since(start)}

	if err == nil {
		_ = conn.Close()
		outcome.Status = StatusOpen
		return outcome, nil
	}

	if ctx.Err() != nil {
		return ProbeOutcome{}, fmt.Errorf("%w: %w", ErrProbeAborted, ctx.Err())
	}

	outcome.Status, outcome.Reason = classifyDialError(err)
	return outcome, nil
}

// classifyDialError maps a failed connect to CLOSED (the port is reachable
// network state: refused, dropped or unroutable) or ERROR (the attempt itself
// could not be evaluated).
func classifyDialError(err error) (Status, string) {
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &dnsErr):
		return StatusError, "resolution failed: " + dnsErr.Err
	case isTimeout(err):
		return StatusClosed, "timeout"
	case isConnectionRefused(err):
		return StatusClosed, "connection refused"
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		return StatusClosed, "unreachable"
	case isResourceExhausted(err):
		return StatusError, "local resource exhaustion: " + err.Error()
	default:
		return StatusError, err.Error()
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isConnectionRefused checks if the error is a connection refused error.
// Connection refused (RST packet) indicates the port is definitively closed.
func isConnectionRefused(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	// Windows reports WSAECONNREFUSED with its own wording.
	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "actively refused")
}

func isResourceExhausted(err error) bool {
	for _, errno := range []syscall.Errno{syscall.EMFILE, syscall.ENFILE, syscall.ENOBUFS, syscall.ENOMEM, syscall.EADDRNOTAVAIL} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}

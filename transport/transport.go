// Package transport provides the datagram sockets the rclink nodes talk over.
//
// UDPConn is a broadcast-capable UDP socket bound to a port on all addresses, optionally tied
// to one network interface. MemNetwork is an in-memory network with the same semantics
// (unicast, subnet broadcast, silent loss when a receiver falls behind) used by tests and
// simulations.
package transport

import (
	"errors"
	"net/netip"
	"os"
	"time"
)

// ErrNoIPv4 indicates that a network interface has no IPv4 address yet.
var ErrNoIPv4 = errors.New("no IPv4 address on interface")

// Conn is a datagram connection.
//
// ReadFrom blocks until a datagram arrives, the read deadline passes or the connection is
// closed. A passed deadline is reported with an error matching os.ErrDeadlineExceeded, see
// IsTimeout. Conn must be safe for one reader and one writer at the same time.
type Conn interface {
	ReadFrom(buf []byte) (n int, src netip.AddrPort, err error)
	WriteTo(b []byte, dst netip.AddrPort) (int, error)
	SetReadDeadline(t time.Time) error
	LocalAddr() netip.AddrPort
	Close() error
}

// IsTimeout reports whether err is a read deadline expiry.
func IsTimeout(err error) bool {
	return errors.Is(err, os.ErrDeadlineExceeded)
}

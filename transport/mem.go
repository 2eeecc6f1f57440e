package transport

import (
	"fmt"
	"net"
	"net/netip"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const memQueueSize = 64

// MemNetwork is an in-memory IPv4 subnet.
//
// Datagrams sent to a bound address are delivered to that connection, datagrams sent to the
// broadcast address are delivered to every other connection bound to the destination port.
// A datagram is dropped when the receiver's queue is full or nobody listens, like UDP.
type MemNetwork struct {
	prefix netip.Prefix

	mu    sync.RWMutex
	conns map[netip.AddrPort]*MemConn
	drops atomic.Uint64
}

// NewMemNetwork creates a network for prefix, e.g. 192.168.4.0/24.
func NewMemNetwork(prefix netip.Prefix) *MemNetwork {
	return &MemNetwork{
		prefix: prefix.Masked(),
		conns:  make(map[netip.AddrPort]*MemConn),
	}
}

// Prefix returns the subnet of the network.
func (n *MemNetwork) Prefix() netip.Prefix { return n.prefix }

// Broadcast returns the broadcast address of the network.
func (n *MemNetwork) Broadcast() netip.Addr { return Broadcast(n.prefix) }

// Dropped returns the number of datagrams that were not delivered.
func (n *MemNetwork) Dropped() uint64 { return n.drops.Load() }

// Listen binds a connection to addr.
func (n *MemNetwork) Listen(addr netip.AddrPort) (*MemConn, error) {
	if !n.prefix.Contains(addr.Addr()) {
		return nil, fmt.Errorf("address %s outside %s", addr, n.prefix)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.conns[addr]; ok {
		return nil, fmt.Errorf("address %s already in use", addr)
	}

	c := &MemConn{
		network: n,
		local:   addr,
		inbox:   make(chan memDatagram, memQueueSize),
		closed:  make(chan struct{}),
	}
	n.conns[addr] = c

	return c, nil
}

func (n *MemNetwork) unbind(c *MemConn) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conns[c.local] == c {
		delete(n.conns, c.local)
	}
}

func (n *MemNetwork) send(src netip.AddrPort, b []byte, dst netip.AddrPort) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if dst.Addr() == n.Broadcast() {
		delivered := false
		for addr, c := range n.conns {
			if addr.Port() == dst.Port() && addr != src {
				c.deliver(src, b)
				delivered = true
			}
		}
		if !delivered {
			n.drops.Add(1)
		}
		return
	}

	c, ok := n.conns[dst]
	if !ok {
		n.drops.Add(1)
		return
	}
	c.deliver(src, b)
}

type memDatagram struct {
	data []byte
	src  netip.AddrPort
}

// MemConn is a connection on a MemNetwork.
type MemConn struct {
	network *MemNetwork
	local   netip.AddrPort
	inbox   chan memDatagram

	deadline  atomic.Pointer[time.Time]
	closeOnce sync.Once
	closed    chan struct{}
}

var _ Conn = (*MemConn)(nil)

func (c *MemConn) deliver(src netip.AddrPort, b []byte) {
	select {
	case <-c.closed:
		return
	default:
	}

	select {
	case c.inbox <- memDatagram{data: append([]byte(nil), b...), src: src}:
	default:
		c.network.drops.Add(1)
	}
}

// ReadFrom implements Conn.
func (c *MemConn) ReadFrom(buf []byte) (int, netip.AddrPort, error) {
	var timeout <-chan time.Time
	if d := c.deadline.Load(); d != nil && !d.IsZero() {
		wait := time.Until(*d)
		if wait <= 0 {
			return 0, netip.AddrPort{}, c.opError("read", os.ErrDeadlineExceeded)
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case dg := <-c.inbox:
		return copy(buf, dg.data), dg.src, nil
	case <-timeout:
		return 0, netip.AddrPort{}, c.opError("read", os.ErrDeadlineExceeded)
	case <-c.closed:
		return 0, netip.AddrPort{}, c.opError("read", net.ErrClosed)
	}
}

// WriteTo implements Conn.
func (c *MemConn) WriteTo(b []byte, dst netip.AddrPort) (int, error) {
	select {
	case <-c.closed:
		return 0, c.opError("write", net.ErrClosed)
	default:
	}

	c.network.send(c.local, b, dst)

	return len(b), nil
}

// SetReadDeadline implements Conn.
func (c *MemConn) SetReadDeadline(t time.Time) error {
	c.deadline.Store(&t)
	return nil
}

// LocalAddr implements Conn.
func (c *MemConn) LocalAddr() netip.AddrPort { return c.local }

// Close implements Conn.
func (c *MemConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.network.unbind(c)
	})

	return nil
}

func (c *MemConn) opError(op string, err error) error {
	return &net.OpError{Op: op, Net: "mem", Addr: net.UDPAddrFromAddrPort(c.local), Err: err}
}

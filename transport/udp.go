package transport

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"syscall"
	"time"
)

// ListenConfig configures ListenUDP.
type ListenConfig struct {
	// Port is the local UDP port.
	Port uint16
	// Interface binds the socket to one network interface (SO_BINDTODEVICE) when set.
	// Binding needs CAP_NET_RAW; when it is refused the socket stays unbound.
	Interface string
	// BindToDevice enables SO_BINDTODEVICE for Interface.
	BindToDevice bool
}

// UDPConn is a broadcast-enabled IPv4 UDP socket.
type UDPConn struct {
	conn  *net.UDPConn
	local netip.AddrPort
}

var _ Conn = (*UDPConn)(nil)

// ListenUDP opens a UDP socket on cfg.Port with SO_BROADCAST and SO_REUSEADDR set.
func ListenUDP(ctx context.Context, cfg ListenConfig) (*UDPConn, error) {
	device := ""
	if cfg.BindToDevice {
		device = cfg.Interface
	}

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = setSocketOptions(fd, device)
			})
			if err != nil {
				return err
			}

			return sockErr
		},
	}

	address := net.JoinHostPort("0.0.0.0", strconv.Itoa(int(cfg.Port)))
	pc, err := lc.ListenPacket(ctx, "udp4", address)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", address, err)
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		_ = pc.Close()
		return nil, fmt.Errorf("listen udp %s: unexpected connection type %T", address, pc)
	}

	local := netip.AddrPortFrom(netip.IPv4Unspecified(), cfg.Port)
	if ua, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		local = ua.AddrPort()
	}

	return &UDPConn{conn: conn, local: local}, nil
}

// ReadFrom implements Conn.
func (c *UDPConn) ReadFrom(buf []byte) (int, netip.AddrPort, error) {
	n, src, err := c.conn.ReadFromUDPAddrPort(buf)
	return n, netip.AddrPortFrom(src.Addr().Unmap(), src.Port()), err
}

// WriteTo implements Conn.
func (c *UDPConn) WriteTo(b []byte, dst netip.AddrPort) (int, error) {
	return c.conn.WriteToUDPAddrPort(b, dst)
}

// SetReadDeadline implements Conn.
func (c *UDPConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// LocalAddr implements Conn.
func (c *UDPConn) LocalAddr() netip.AddrPort {
	return c.local
}

// Close implements Conn.
func (c *UDPConn) Close() error {
	return c.conn.Close()
}

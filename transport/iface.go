package transport

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/arloliu/go-rclink/logger"
)

// AddrLookup returns the IPv4 address and prefix length of an interface.
type AddrLookup func(ifname string) (netip.Prefix, error)

// InterfaceAddr returns the first IPv4 address of the named interface.
//
// An empty name selects the first interface that is up, not a loopback and has an IPv4
// address. It returns an error wrapping ErrNoIPv4 when there is no such address yet.
func InterfaceAddr(ifname string) (netip.Prefix, error) {
	if ifname != "" {
		iface, err := net.InterfaceByName(ifname)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("%w: %s: %w", ErrNoIPv4, ifname, err)
		}
		return ipv4Of(iface)
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("list interfaces: %w", err)
	}
	for i := range ifaces {
		iface := &ifaces[i]
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if p, err := ipv4Of(iface); err == nil {
			return p, nil
		}
	}

	return netip.Prefix{}, fmt.Errorf("%w: no interface is up", ErrNoIPv4)
}

func ipv4Of(iface *net.Interface) (netip.Prefix, error) {
	addrs, err := iface.Addrs()
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("%w: %s: %w", ErrNoIPv4, iface.Name, err)
	}

	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip4 := ipnet.IP.To4()
		if ip4 == nil {
			continue
		}
		ones, bits := ipnet.Mask.Size()
		if bits == 128 {
			ones -= 96
		}
		addr := netip.AddrFrom4([4]byte(ip4))

		return netip.PrefixFrom(addr, ones), nil
	}

	return netip.Prefix{}, fmt.Errorf("%w: %s", ErrNoIPv4, iface.Name)
}

// Broadcast returns the directed broadcast address of prefix, the address with all host bits
// set.
func Broadcast(prefix netip.Prefix) netip.Addr {
	a := prefix.Addr().Unmap().As4()
	bits := prefix.Bits()
	if bits < 0 {
		bits = 32
	}

	v := uint32(a[0])<<24 | uint32(a[1])<<16 | uint32(a[2])<<8 | uint32(a[3])
	if bits < 32 {
		v |= ^uint32(0) >> bits
	}

	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}

// WaitForIPv4 polls lookup every interval until ifname has an IPv4 address or ctx is done.
//
// Startup must not fail because the network is still coming up, so every failed attempt is
// logged and retried.
func WaitForIPv4(ctx context.Context, lookup AddrLookup, ifname string, interval time.Duration, l logger.Logger) (netip.Prefix, error) {
	if lookup == nil {
		lookup = InterfaceAddr
	}
	if l == nil {
		l = logger.GetLogger()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		prefix, err := lookup(ifname)
		if err == nil {
			l.Info("network interface ready", "interface", ifname, "address", prefix)
			return prefix, nil
		}
		l.Info("waiting for networking", "interface", ifname, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return netip.Prefix{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

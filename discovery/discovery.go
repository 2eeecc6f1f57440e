// Package discovery keeps track of where the other nodes of an rclink installation are.
//
// Nodes announce themselves with identify telegrams, a short burst at startup and then one per
// beacon interval, sent to the subnet broadcast address. A node that receives an identify
// telegram records the datagram's source address under the sender's role and sends to it by
// unicast from then on. While the link is lost it falls back to broadcast so a peer that came
// back with a new address is found again.
package discovery

import (
	"fmt"
	"net/netip"

	"github.com/arloliu/go-rclink/telegram"
	"github.com/puzpuzpuz/xsync/v3"
)

// Role is the role a node plays.
type Role uint8

const (
	RoleReceiver Role = iota + 1
	RoleTransmitter
	RoleScreen
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleReceiver:
		return "receiver"
	case RoleTransmitter:
		return "transmitter"
	case RoleScreen:
		return "screen"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// RoleOf returns the role announced by an identify telegram.
func RoleOf(t telegram.Telegram) (Role, bool) {
	switch t.(type) {
	case telegram.IdentifyReceiver, *telegram.IdentifyReceiver:
		return RoleReceiver, true
	case telegram.IdentifyTransmitter, *telegram.IdentifyTransmitter:
		return RoleTransmitter, true
	case telegram.IdentifyScreen, *telegram.IdentifyScreen:
		return RoleScreen, true
	default:
		return 0, false
	}
}

// Identify returns the identify telegram a node of role r sends, carrying addr.
func Identify(r Role, addr netip.Addr) (telegram.Telegram, error) {
	switch r {
	case RoleReceiver:
		return telegram.IdentifyReceiver{Addr: addr}, nil
	case RoleTransmitter:
		return telegram.IdentifyTransmitter{Addr: addr}, nil
	case RoleScreen:
		return telegram.IdentifyScreen{Addr: addr}, nil
	default:
		return nil, fmt.Errorf("unknown role %d", r)
	}
}

// PeerTable maps a role to the last source address it was heard from. Entries are created on
// the first identification, overwritten by every later one and never expire.
//
// PeerTable is safe for concurrent use.
type PeerTable struct {
	peers *xsync.MapOf[Role, netip.Addr]
}

// NewPeerTable creates an empty table.
func NewPeerTable() *PeerTable {
	return &PeerTable{peers: xsync.NewMapOf[Role, netip.Addr]()}
}

// Learn records src as the address of role r and reports whether the address changed.
//
// src is the source address of the datagram, not the address carried in the telegram.
func (p *PeerTable) Learn(r Role, src netip.Addr) bool {
	src = src.Unmap()
	prev, loaded := p.peers.LoadAndStore(r, src)

	return !loaded || prev != src
}

// LearnTelegram records src for the role announced by t. It returns the role and whether the
// address changed, ok is false when t is not an identify telegram.
func (p *PeerTable) LearnTelegram(t telegram.Telegram, src netip.Addr) (r Role, changed bool, ok bool) {
	r, ok = RoleOf(t)
	if !ok {
		return 0, false, false
	}

	return r, p.Learn(r, src), true
}

// Lookup returns the address of role r.
func (p *PeerTable) Lookup(r Role) (netip.Addr, bool) {
	return p.peers.Load(r)
}

// Target returns where to send to role r on port.
//
// It is the learned address of r, or broadcast when r is unknown or fallback is set (the
// link to r is lost).
func (p *PeerTable) Target(r Role, port uint16, broadcast netip.Addr, fallback bool) netip.AddrPort {
	if !fallback {
		if addr, ok := p.Lookup(r); ok {
			return netip.AddrPortFrom(addr, port)
		}
	}

	return netip.AddrPortFrom(broadcast, port)
}

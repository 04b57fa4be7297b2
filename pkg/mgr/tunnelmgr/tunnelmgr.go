// Package tunnelmgr owns the lazily-created IP-in-IP decap tunnel
// device (tun0): it initializes the local peer IP from the PEER_SWITCH
// table on startup, creates tun0 on the first route that needs it, and
// deletes it once the last such route drops (spec.md §4.7 "Tunnel
// manager").
//
// Grounded on the teacher's pkg/newtron/network/node/vrf_ops.go
// ref-counted "create on first use, destroy on last release" shape,
// reused here for tun0's lifetime instead of a VRF table id.
package tunnelmgr

import (
	"context"
	"fmt"
	"strings"

	"github.com/fabricwire/swssd/pkg/dbadapter"
	"github.com/fabricwire/swssd/pkg/mgr"
)

// TunnelDevice is the well-known IP-in-IP decap interface name.
const TunnelDevice = "tun0"

// Manager owns tun0's lifecycle and the peer-switch IP it decapsulates
// against.
type Manager struct {
	*mgr.Base
	peerIP    string
	routeRefs int
	created   bool
}

// New creates a tunnel manager.
func New(base *mgr.Base) *Manager { return &Manager{Base: base} }

// Init reads the "address_ipv4" field of PEER_SWITCH|switch, the peer IP
// every IP-in-IP decap route needs as tun0's local endpoint (spec.md
// §4.7 "initializes the peer IP from a peer-switch table").
func (m *Manager) Init(ctx context.Context) error {
	fields, ok, err := m.Config.Read(ctx, "PEER_SWITCH", "switch")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("tunnelmgr: PEER_SWITCH:switch not configured")
	}
	ip, ok := fields["address_ipv4"]
	if !ok || ip == "" {
		return fmt.Errorf("tunnelmgr: PEER_SWITCH:switch missing address_ipv4")
	}
	m.peerIP = ip
	return nil
}

// Run drives the ROUTE_TABLE subscription for decap routes (identified
// by a "tunnel_decap" field set to "true") that reference tun0.
func (m *Manager) Run(ctx context.Context) error {
	return m.RunLoop(ctx, "ROUTE_TABLE", m.handleBatch)
}

func (m *Manager) handleBatch(ctx context.Context, batch []dbadapter.Event) {
	for _, ev := range batch {
		isDecap := ev.Fields["tunnel_decap"] == "true"
		switch {
		case ev.Op == dbadapter.Delete:
			if err := m.onRouteRemoved(ctx, ev.Key); err != nil {
				m.Log().Warnf("tunnelmgr: %v", err)
			}
		case isDecap:
			if err := m.onDecapRouteAdded(ctx, ev.Key); err != nil {
				m.Log().Warnf("tunnelmgr: %v", err)
			}
		}
	}
}

// routeReplaceArgs builds the ip(8) invocation that points prefix at
// tun0, using the -6 form for an IPv6 prefix (spec.md §8 scenario 6:
// "a decap route pointing at tun0 is installed into the kernel routing
// table").
func routeReplaceArgs(prefix string) []string {
	if strings.Contains(prefix, ":") {
		return []string{"/sbin/ip", "-6", "route", "replace", prefix, "dev", TunnelDevice}
	}
	return []string{"/sbin/ip", "route", "replace", prefix, "dev", TunnelDevice}
}

func routeDelArgs(prefix string) []string {
	if strings.Contains(prefix, ":") {
		return []string{"/sbin/ip", "-6", "route", "del", prefix, "dev", TunnelDevice}
	}
	return []string{"/sbin/ip", "route", "del", prefix, "dev", TunnelDevice}
}

// onDecapRouteAdded creates tun0 lazily on the first decap route that
// needs it, then installs prefix into the kernel routing table pointed
// at tun0 (spec.md §4.7, §8 scenario 6).
func (m *Manager) onDecapRouteAdded(ctx context.Context, prefix string) error {
	m.routeRefs++
	if !m.created {
		if m.peerIP == "" {
			return fmt.Errorf("tunnelmgr: cannot create %s before Init", TunnelDevice)
		}
		if _, err := m.Eff.Run(ctx, "/sbin/ip", "tunnel", "add", TunnelDevice,
			"mode", "ipip", "local", m.peerIP); err != nil {
			return err
		}
		if _, err := m.Eff.Run(ctx, "/sbin/ip", "link", "set", "dev", TunnelDevice, "up"); err != nil {
			return err
		}
		m.created = true
	}
	args := routeReplaceArgs(prefix)
	_, err := m.Eff.Run(ctx, args[0], args[1:]...)
	return err
}

// onRouteRemoved withdraws prefix from the kernel routing table and
// drops tun0 once the last referencing route is gone (spec.md §4.7
// "deletes it when the last route drops").
func (m *Manager) onRouteRemoved(ctx context.Context, prefix string) error {
	if m.routeRefs == 0 {
		return nil
	}
	m.routeRefs--
	args := routeDelArgs(prefix)
	if _, err := m.Eff.Run(ctx, args[0], args[1:]...); err != nil {
		return err
	}
	if m.routeRefs > 0 || !m.created {
		return nil
	}
	if _, err := m.Eff.Run(ctx, "/sbin/ip", "tunnel", "del", TunnelDevice); err != nil {
		return err
	}
	m.created = false
	return nil
}

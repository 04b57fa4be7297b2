// Package intfmgr programs IP addresses onto kernel interfaces with
// IPv4/IPv6 parity, retrying once with the per-interface IPv6 sysctl
// flag enabled on failure, clamping sub-interface MTU to the parent's,
// and canonicalizing short LAG prefixes (spec.md §4.7 "Interface
// manager").
//
// Grounded on the teacher's pkg/newtron/network/node/interface_ops.go
// (address add/remove via validated preconditions) and
// portchannel_ops.go (the "Po<n>" <-> "PortChannel<n>" canonicalization
// the teacher already performs for operator-typed shorthand).
package intfmgr

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/fabricwire/swssd/pkg/dbadapter"
	"github.com/fabricwire/swssd/pkg/mgr"
	"github.com/fabricwire/swssd/pkg/swtypes"
)

// CanonicalizeLAGPrefix expands a short "Po<n>" interface name to the
// canonical "PortChannel<n>" form; any other name passes through
// unchanged (spec.md §4.7).
func CanonicalizeLAGPrefix(name string) string {
	if strings.HasPrefix(name, "Po") && !strings.HasPrefix(name, "PortChannel") {
		if _, err := strconv.Atoi(name[2:]); err == nil {
			return "PortChannel" + name[2:]
		}
	}
	return name
}

// SplitSubInterface splits "<parent>.<vlan>" into its parent interface
// name and VLAN id. ok is false if name carries no "." suffix.
func SplitSubInterface(name string) (parent string, vlan swtypes.VLANID, ok bool, err error) {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return name, 0, false, nil
	}
	parent = CanonicalizeLAGPrefix(name[:idx])
	n, convErr := strconv.Atoi(name[idx+1:])
	if convErr != nil {
		return "", 0, true, fmt.Errorf("intfmgr: malformed sub-interface %q: %w", name, convErr)
	}
	id, vErr := swtypes.ParseVLANID(n)
	if vErr != nil {
		return "", 0, true, vErr
	}
	return parent, id, true, nil
}

// ClampSubInterfaceMTU returns the MTU to apply for a sub-interface
// given its own requested MTU and the parent's current MTU: the
// sub-interface MTU is clamped down to the parent's with a warning
// (spec.md §4.7), never raised.
func ClampSubInterfaceMTU(requested, parentMTU int) (mtu int, clamped bool) {
	if requested > parentMTU {
		return parentMTU, true
	}
	return requested, false
}

// Manager reconciles CONFIG_DB's INTERFACE/VLAN_INTERFACE/
// LAG_INTERFACE/LOOPBACK_INTERFACE address tables.
type Manager struct {
	*mgr.Base
	// voq enables SWITCH_TYPE=voq IPv6 address-metric behavior
	// (spec.md §6 "VOQ-specific behavior in the interface manager
	// (IPv6 address metric 256)").
	voq bool
}

// New creates an interface manager. voq should be set when the
// environment variable SWITCH_TYPE=voq.
func New(base *mgr.Base, voq bool) *Manager { return &Manager{Base: base, voq: voq} }

// Run drives the INTERFACE table subscription (address assignment);
// VLAN_INTERFACE, LAG_INTERFACE, and LOOPBACK_INTERFACE share the same
// key shape ("<ifname>|<prefix>") and reuse Run under their own table
// name.
func (m *Manager) Run(ctx context.Context, table string) error {
	return m.RunLoop(ctx, table, func(ctx context.Context, batch []dbadapter.Event) {
		m.handleBatch(ctx, table, batch)
	})
}

func (m *Manager) handleBatch(ctx context.Context, table string, batch []dbadapter.Event) {
	for _, ev := range batch {
		ifname, prefixStr, ok := splitAddressKey(ev.Key)
		if !ok {
			m.Log().Warnf("%s: malformed key %q", table, ev.Key)
			continue
		}
		if ev.Op == dbadapter.Delete {
			if err := m.removeAddress(ctx, ifname, prefixStr); err != nil {
				m.Log().Warnf("%s: remove %s on %s: %v", table, prefixStr, ifname, err)
			}
			continue
		}
		if err := m.addAddress(ctx, ifname, prefixStr); err != nil {
			m.Log().Warnf("%s: add %s on %s: %v", table, prefixStr, ifname, err)
		}
	}
}

func splitAddressKey(key string) (ifname, prefix string, ok bool) {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[:i], key[i+1:], true
		}
	}
	return "", "", false
}

// addAddress programs prefix onto ifname. On an IPv6 prefix that fails,
// it enables the interface's IPv6 sysctl flag and retries exactly once
// (spec.md §4.7 "on IPv6 failure it enables the per-interface IPv6
// sysctl flag and retries once").
func (m *Manager) addAddress(ctx context.Context, ifname, prefixStr string) error {
	ifname = CanonicalizeLAGPrefix(ifname)
	hostCIDR, isIPv6, err := parseHostCIDR(prefixStr)
	if err != nil {
		return err
	}

	args := []string{"/sbin/ip", "addr", "replace", hostCIDR, "dev", ifname}
	if isIPv6 && m.voq {
		args = append(args, "metric", "256")
	}
	_, runErr := m.Eff.Run(ctx, args...)
	if runErr == nil {
		return nil
	}
	if !isIPv6 {
		return runErr
	}

	m.Log().Warnf("ipv6 address add failed on %s, enabling sysctl and retrying once: %v", ifname, runErr)
	if _, err := m.Eff.Run(ctx, "sysctl", "-w", fmt.Sprintf("net.ipv6.conf.%s.disable_ipv6=0", ifname)); err != nil {
		return fmt.Errorf("enable ipv6 sysctl on %s: %w", ifname, err)
	}
	_, err = m.Eff.Run(ctx, args...)
	return err
}

func (m *Manager) removeAddress(ctx context.Context, ifname, prefixStr string) error {
	ifname = CanonicalizeLAGPrefix(ifname)
	hostCIDR, _, err := parseHostCIDR(prefixStr)
	if err != nil {
		return err
	}
	_, err = m.Eff.Run(ctx, "/sbin/ip", "addr", "del", hostCIDR, "dev", ifname)
	return err
}

// parseHostCIDR validates prefixStr as a CIDR address, preserving the
// host bits (unlike swtypes.IPPrefix, which canonicalizes to the
// network address) since an interface address command must carry the
// host's own address, not its network's.
func parseHostCIDR(prefixStr string) (cidr string, isIPv6 bool, err error) {
	ip, ipNet, err := net.ParseCIDR(strings.TrimSpace(prefixStr))
	if err != nil {
		return "", false, fmt.Errorf("invalid interface address %q: %w", prefixStr, err)
	}
	ones, _ := ipNet.Mask.Size()
	return fmt.Sprintf("%s/%d", ip.String(), ones), ip.To4() == nil, nil
}

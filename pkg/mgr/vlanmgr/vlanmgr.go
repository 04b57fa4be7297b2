// Package vlanmgr creates the kernel 802.1Q bridge and reconciles VLAN
// membership/tagging mode (spec.md §4.7 "VLAN manager").
//
// Grounded on the teacher's pkg/newtron/network/node/vlan_ops.go shape
// (validate membership, then mutate), generalized into idempotent
// kernel commands per spec.md §4.7's "ip route replace" discipline —
// here, "bridge vlan add ... self" style calls that are safe to repeat.
package vlanmgr

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fabricwire/swssd/pkg/dbadapter"
	"github.com/fabricwire/swssd/pkg/mgr"
	"github.com/fabricwire/swssd/pkg/swtypes"
)

// BridgeName is the single 802.1Q bridge every VLAN interface attaches to.
const BridgeName = "Bridge"

// TaggingMode is a VLAN_MEMBER's tagging semantics.
type TaggingMode int

const (
	Tagged TaggingMode = iota
	Untagged
	PriorityTagged
)

// ParseTaggingMode parses the VLAN_MEMBER "tagging_mode" field.
func ParseTaggingMode(s string) (TaggingMode, error) {
	switch s {
	case "tagged":
		return Tagged, nil
	case "untagged":
		return Untagged, nil
	case "priority_tagged":
		return PriorityTagged, nil
	default:
		return 0, fmt.Errorf("vlanmgr: unknown tagging mode %q", s)
	}
}

// Manager reconciles CONFIG_DB's VLAN and VLAN_MEMBER tables.
type Manager struct {
	*mgr.Base
	bridgeCreated bool
}

// New creates a VLAN manager.
func New(base *mgr.Base) *Manager { return &Manager{Base: base} }

// EnsureBridge creates the 802.1Q bridge if it doesn't already exist.
// Idempotent and safe to call again after a warm restart, where it is
// a no-op because the bridge survives the agent's process replacement
// (spec.md §4.7 "skipped on warm restart if already present").
func (m *Manager) EnsureBridge(ctx context.Context, warmRestart bool) error {
	if m.bridgeCreated {
		return nil
	}
	if warmRestart {
		m.bridgeCreated = true
		return nil
	}
	if _, err := m.Eff.Run(ctx, "/sbin/ip", "link", "add", "name", BridgeName, "type", "bridge", "vlan_filtering", "1"); err != nil {
		return err
	}
	if _, err := m.Eff.Run(ctx, "/sbin/ip", "link", "set", "dev", BridgeName, "up"); err != nil {
		return err
	}
	m.bridgeCreated = true
	return nil
}

// RunVLAN drives the VLAN table subscription.
func (m *Manager) RunVLAN(ctx context.Context) error {
	return m.RunLoop(ctx, "VLAN", m.handleVLANBatch)
}

// RunMembership drives the VLAN_MEMBER table subscription.
func (m *Manager) RunMembership(ctx context.Context) error {
	return m.RunLoop(ctx, "VLAN_MEMBER", m.handleMembershipBatch)
}

func (m *Manager) handleVLANBatch(ctx context.Context, batch []dbadapter.Event) {
	for _, ev := range batch {
		if ev.Op == dbadapter.Delete {
			if _, err := m.Eff.Run(ctx, "/sbin/ip", "link", "delete", ev.Key); err != nil {
				m.Log().Warnf("vlan %s delete: %v", ev.Key, err)
			}
			continue
		}
		if err := m.createVLAN(ctx, ev.Key); err != nil {
			m.Log().Warnf("vlan %s: %v", ev.Key, err)
		}
	}
}

func (m *Manager) createVLAN(ctx context.Context, vlanKey string) error {
	id, err := parseVLANKey(vlanKey)
	if err != nil {
		return err
	}
	ifname := fmt.Sprintf("Vlan%d", id)
	_, err = m.Eff.Run(ctx, "/sbin/ip", "link", "add",
		"link", BridgeName, "name", ifname, "type", "vlan", "id", fmt.Sprintf("%d", id))
	return err
}

func (m *Manager) handleMembershipBatch(ctx context.Context, batch []dbadapter.Event) {
	for _, ev := range batch {
		if err := m.reconcileMember(ctx, ev); err != nil {
			m.Log().Warnf("vlan member %s: %v", ev.Key, err)
		}
	}
}

func (m *Manager) reconcileMember(ctx context.Context, ev dbadapter.Event) error {
	vlanKey, port, ok := splitMemberKey(ev.Key)
	if !ok {
		return fmt.Errorf("malformed VLAN_MEMBER key %q", ev.Key)
	}
	id, err := parseVLANKey(vlanKey)
	if err != nil {
		return err
	}

	if ev.Op == dbadapter.Delete {
		_, err := m.Eff.Run(ctx, "bridge", "vlan", "del", "vid", fmt.Sprintf("%d", id), "dev", port)
		return err
	}

	mode, err := ParseTaggingMode(ev.Fields["tagging_mode"])
	if err != nil {
		return err
	}
	args := []string{"bridge", "vlan", "add", "vid", fmt.Sprintf("%d", id), "dev", port}
	switch mode {
	case Untagged:
		args = append(args, "pvid", "untagged")
	case PriorityTagged:
		args = append(args, "pvid")
	}
	_, err = m.Eff.Run(ctx, args...)
	return err
}

func trimVLANPrefix(s string) string {
	const prefix = "Vlan"
	if len(s) > len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):]
	}
	return s
}

// parseVLANKey parses a "VlanNNNN" CONFIG key (or a bare numeral) into
// a validated VLAN id.
func parseVLANKey(s string) (swtypes.VLANID, error) {
	n, err := strconv.Atoi(trimVLANPrefix(s))
	if err != nil {
		return 0, fmt.Errorf("malformed VLAN key %q: %w", s, err)
	}
	return swtypes.ParseVLANID(n)
}

func splitMemberKey(key string) (vlan, port string, ok bool) {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' || key[i] == ':' {
			return key[:i], key[i+1:], true
		}
	}
	return "", "", false
}

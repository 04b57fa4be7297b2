// Package vlan implements the orchagent-side VLAN resource handler:
// one SAI VLAN object per vlan id, with VLAN_MEMBER children
// referencing it by tagging mode. This is the ASIC-facing counterpart
// to the vlanmgr configuration manager, which drives the Linux bridge
// side of VLAN membership (pkg/mgr/vlanmgr); orchagent's VLAN handler
// instead programs the switch chip when APPL_DB delivers VLAN_TABLE/
// VLAN_MEMBER_TABLE entries.
package vlan

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fabricwire/swssd/pkg/consumer"
	"github.com/fabricwire/swssd/pkg/dbadapter"
	"github.com/fabricwire/swssd/pkg/handler"
	"github.com/fabricwire/swssd/pkg/handler/simple"
	"github.com/fabricwire/swssd/pkg/registry"
	"github.com/fabricwire/swssd/pkg/sai"
	"github.com/fabricwire/swssd/pkg/swtypes"
)

// TaggingMode mirrors pkg/mgr/vlanmgr.TaggingMode for the ASIC-facing
// member attribute.
type TaggingMode int

const (
	Tagged TaggingMode = iota
	Untagged
	PriorityTagged
)

// MemberAttrs is one VLAN membership's configuration.
type MemberAttrs struct {
	VLAN    swtypes.VLANID
	Port    string
	Tagging TaggingMode
}

// Registry owns every live VLAN and its memberships.
type Registry struct {
	vlans   *registry.Registry[struct{}]
	members *registry.Registry[MemberAttrs]
	sai     sai.Client
}

// New creates a VLAN/membership registry.
func New(client sai.Client) *Registry {
	return &Registry{
		vlans:   registry.New[struct{}]("VLAN"),
		members: registry.New[MemberAttrs]("VLAN_MEMBER"),
		sai:     client,
	}
}

// RawVLANs/RawMembers expose the underlying generic registries for
// warm-restart bake/load.
func (r *Registry) RawVLANs() *registry.Registry[struct{}]    { return r.vlans }
func (r *Registry) RawMembers() *registry.Registry[MemberAttrs] { return r.members }

func vlanKey(id swtypes.VLANID) string { return fmt.Sprintf("%d", id) }

// Exists reports whether vlanID already has a SAI VLAN object, the
// precondition spec.md §3 requires of an FDB entry's VLAN.
func (r *Registry) Exists(vlanID swtypes.VLANID) bool {
	_, ok := r.vlans.Lookup(vlanKey(vlanID))
	return ok
}

// CreateVLAN creates the SAI VLAN object for vlanID if absent.
func (r *Registry) CreateVLAN(ctx context.Context, vlanID swtypes.VLANID) handler.Result {
	key := vlanKey(vlanID)
	if _, ok := r.vlans.Lookup(key); ok {
		return handler.NoOp()
	}
	oid, err := r.sai.Create(ctx, sai.ObjectVLAN, sai.Attrs{"vlan_id": key})
	if err != nil {
		return handler.FromSAIError(err)
	}
	if _, _, err := r.vlans.GetOrCreate(key, func() (uint64, struct{}) { return oid, struct{}{} }); err != nil {
		r.sai.Remove(ctx, sai.ObjectVLAN, oid)
		return handler.Fail(err)
	}
	return handler.Ok()
}

// RemoveVLAN destroys a VLAN, refusing while any membership remains.
func (r *Registry) RemoveVLAN(ctx context.Context, vlanID swtypes.VLANID) handler.Result {
	return simple.FromRegistryError(simple.DestroyIfUnreferenced(ctx, r.vlans, r.sai, sai.ObjectVLAN, vlanKey(vlanID)))
}

func memberKey(vlanID swtypes.VLANID, port string) string { return fmt.Sprintf("%d|%s", vlanID, port) }

// AddMember creates a VLAN membership, requiring the VLAN to already
// exist and bumping its refcount.
func (r *Registry) AddMember(ctx context.Context, vlanID swtypes.VLANID, port string, tagging TaggingMode) handler.Result {
	vKey := vlanKey(vlanID)
	if _, ok := r.vlans.Lookup(vKey); !ok {
		return handler.Invalid(fmt.Errorf("vlan: membership on unknown vlan %d", vlanID))
	}
	key := memberKey(vlanID, port)
	attrs := MemberAttrs{VLAN: vlanID, Port: port, Tagging: tagging}
	saiAttrs := sai.Attrs{"vlan_id": vKey, "port": port, "tagging_mode": fmt.Sprintf("%d", tagging)}

	if e, ok := r.members.Lookup(key); ok {
		if err := r.sai.SetAttribute(ctx, sai.ObjectVLAN, e.SAIID, saiAttrs); err != nil {
			return handler.FromSAIError(err)
		}
		e.Attrs = attrs
		return handler.Ok()
	}
	oid, err := r.sai.Create(ctx, sai.ObjectVLAN, saiAttrs)
	if err != nil {
		return handler.FromSAIError(err)
	}
	if _, _, err := r.members.GetOrCreate(key, func() (uint64, MemberAttrs) { return oid, attrs }); err != nil {
		r.sai.Remove(ctx, sai.ObjectVLAN, oid)
		return handler.Fail(err)
	}
	if _, err := r.vlans.Incref(vKey); err != nil {
		return handler.Fail(err)
	}
	return handler.Ok()
}

// RemoveMember destroys a VLAN membership and releases the VLAN's
// reference.
func (r *Registry) RemoveMember(ctx context.Context, vlanID swtypes.VLANID, port string) handler.Result {
	key := memberKey(vlanID, port)
	e, ok := r.members.Lookup(key)
	if !ok {
		return handler.NoOp()
	}
	if err := r.sai.Remove(ctx, sai.ObjectVLAN, e.SAIID); err != nil {
		return handler.FromSAIError(err)
	}
	if err := r.members.Destroy(key); err != nil {
		return handler.Fail(err)
	}
	if _, err := r.vlans.Decref(vlanKey(vlanID)); err != nil {
		return handler.Fail(err)
	}
	return handler.Ok()
}

// Handler adapts a Registry to the dispatcher's handler.Handler
// contract for VLAN_TABLE and VLAN_MEMBER_TABLE, registered together
// since a membership's VLAN binding must resolve against live VLAN
// state regardless of which table a mutation lands on. Keys follow
// SONiC's "VlanNNNN" naming: VLAN_TABLE keys are "VlanNNNN", and
// VLAN_MEMBER_TABLE keys are "VlanNNNN|port".
type Handler struct {
	reg   *Registry
	state *dbadapter.Adapter
}

// NewHandler wraps reg as a dispatcher handler.
func NewHandler(reg *Registry, state *dbadapter.Adapter) *Handler {
	return &Handler{reg: reg, state: state}
}

func (h *Handler) Name() string { return "vlan" }

func (h *Handler) Priority() int { return 1 }

func parseVlanName(s string) (swtypes.VLANID, error) {
	s = strings.TrimPrefix(s, "Vlan")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("vlan: malformed vlan name %q: %w", s, err)
	}
	return swtypes.VLANID(n), nil
}

func parseTaggingMode(s string) TaggingMode {
	switch s {
	case "untagged":
		return Untagged
	case "priority_tagged":
		return PriorityTagged
	default:
		return Tagged
	}
}

// ProcessBatch implements handler.Handler for VLAN_TABLE and
// VLAN_MEMBER_TABLE mutations.
func (h *Handler) ProcessBatch(ctx context.Context, batch []consumer.Mutation) []handler.Result {
	results := make([]handler.Result, len(batch))
	for i, m := range batch {
		switch m.Table {
		case "VLAN_TABLE", "VLAN":
			vlanID, err := parseVlanName(m.Key)
			if err != nil {
				results[i] = handler.Invalid(err)
				continue
			}
			if m.Op == dbadapter.Delete {
				results[i] = h.reg.RemoveVLAN(ctx, vlanID)
				continue
			}
			results[i] = h.reg.CreateVLAN(ctx, vlanID)
		default: // VLAN_MEMBER_TABLE
			idx := strings.IndexByte(m.Key, '|')
			if idx < 0 {
				results[i] = handler.Invalid(fmt.Errorf("vlan: malformed membership key %q", m.Key))
				continue
			}
			vlanID, err := parseVlanName(m.Key[:idx])
			if err != nil {
				results[i] = handler.Invalid(err)
				continue
			}
			port := m.Key[idx+1:]
			if m.Op == dbadapter.Delete {
				results[i] = h.reg.RemoveMember(ctx, vlanID, port)
				continue
			}
			results[i] = h.reg.AddMember(ctx, vlanID, port, parseTaggingMode(m.Fields["tagging_mode"]))
		}
	}
	return results
}

// Bake snapshots VLANs and memberships onto STATE_DB ahead of a warm
// restart (spec.md §4.9 phase 1).
func (h *Handler) Bake(ctx context.Context) (bool, error) {
	bakedVLANs, err := simple.Bake(ctx, h.reg.RawVLANs(), h.state, "VLAN_TABLE", func(struct{}) map[string]string {
		return map[string]string{}
	})
	if err != nil {
		return bakedVLANs, err
	}
	bakedMembers, err := simple.Bake(ctx, h.reg.RawMembers(), h.state, "VLAN_MEMBER_TABLE", func(a MemberAttrs) map[string]string {
		return map[string]string{"port": a.Port}
	})
	return bakedVLANs || bakedMembers, err
}

// OnWarmBootEnd reloads both registries from their STATE_DB snapshots
// and rebuilds their reverse OID indices (spec.md §4.9 phase 3).
func (h *Handler) OnWarmBootEnd(ctx context.Context) error {
	if err := simple.OnWarmBootEnd(ctx, h.reg.RawVLANs(), h.state, "VLAN_TABLE", func(string, map[string]string) struct{} {
		return struct{}{}
	}); err != nil {
		return err
	}
	return simple.OnWarmBootEnd(ctx, h.reg.RawMembers(), h.state, "VLAN_MEMBER_TABLE", func(key string, fields map[string]string) MemberAttrs {
		idx := strings.IndexByte(key, '|')
		var vlanID swtypes.VLANID
		if idx >= 0 {
			if n, err := strconv.Atoi(key[:idx]); err == nil {
				vlanID = swtypes.VLANID(n)
			}
		}
		return MemberAttrs{VLAN: vlanID, Port: fields["port"], Tagging: parseTaggingMode(fields["tagging_mode"])}
	})
}

// Package tunnel implements the decap tunnel handler (spec.md §3's
// "Tunnel (decap)" row): termination entries and NVGRE/VXLAN tunnel map
// entries are children of a tunnel, and a tunnel cannot be destroyed
// while any live termination exists.
package tunnel

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
)

// Attrs is one decap tunnel's configuration.
type Attrs struct {
	SrcIP, DstIP string
	Type         string // e.g. "ipinip", "vxlan", "nvgre"
	DSCPMode     string
	TTLMode      string
	ECNMode      string
}

// TermAttrs is one termination entry's configuration, a child of a
// tunnel.
type TermAttrs struct {
	Tunnel string
	DstIP  string
	SrcIP  string // empty for a P2MP termination
}

// MapEntryAttrs is one NVGRE/VXLAN tunnel map entry: the (tunnel,
// vlan_id, vsid/vni) triple of spec.md §3.
type MapEntryAttrs struct {
	Tunnel string
	VLAN   int
	VNI    uint32
}

// Registry owns tunnels, their termination children, and their tunnel
// map entries.
type Registry struct {
	tunnels *registry.Registry[Attrs]
	terms   *registry.Registry[TermAttrs]
	maps    *registry.Registry[MapEntryAttrs]
	sai     sai.Client
}

// New creates a tunnel registry.
func New(client sai.Client) *Registry {
	return &Registry{
		tunnels: registry.New[Attrs]("TUNNEL"),
		terms:   registry.New[TermAttrs]("TUNNEL_TERM"),
		maps:    registry.New[MapEntryAttrs]("TUNNEL_MAP_ENTRY"),
		sai:     client,
	}
}

// RawTunnels/RawTerminations/RawMapEntries expose the underlying
// generic registries for warm-restart bake/load.
func (r *Registry) RawTunnels() *registry.Registry[Attrs]            { return r.tunnels }
func (r *Registry) RawTerminations() *registry.Registry[TermAttrs]   { return r.terms }
func (r *Registry) RawMapEntries() *registry.Registry[MapEntryAttrs] { return r.maps }

// SetTunnel creates or updates a decap tunnel.
func (r *Registry) SetTunnel(ctx context.Context, name string, attrs Attrs) handler.Result {
	saiAttrs := sai.Attrs{
		"src_ip": attrs.SrcIP, "dst_ip": attrs.DstIP, "type": attrs.Type,
		"dscp_mode": attrs.DSCPMode, "ttl_mode": attrs.TTLMode, "ecn_mode": attrs.ECNMode,
	}
	if e, ok := r.tunnels.Lookup(name); ok {
		if err := r.sai.SetAttribute(ctx, sai.ObjectTunnel, e.SAIID, saiAttrs); err != nil {
			return handler.FromSAIError(err)
		}
		e.Attrs = attrs
		return handler.Ok()
	}
	oid, err := r.sai.Create(ctx, sai.ObjectTunnel, saiAttrs)
	if err != nil {
		return handler.FromSAIError(err)
	}
	if _, _, err := r.tunnels.GetOrCreate(name, func() (uint64, Attrs) { return oid, attrs }); err != nil {
		r.sai.Remove(ctx, sai.ObjectTunnel, oid)
		return handler.Fail(err)
	}
	return handler.Ok()
}

// RemoveTunnel destroys a tunnel, refusing while it has live
// terminations (spec.md §3 "destroying the tunnel requires zero live
// terminations").
func (r *Registry) RemoveTunnel(ctx context.Context, name string) handler.Result {
	return simple.FromRegistryError(simple.DestroyIfUnreferenced(ctx, r.tunnels, r.sai, sai.ObjectTunnel, name))
}

// termKey derives a termination entry's registry key.
func termKey(tunnel, dstIP string) string { return tunnel + "|" + dstIP }

// AddTermination creates a termination entry under tunnel, bumping the
// tunnel's refcount.
func (r *Registry) AddTermination(ctx context.Context, tunnel string, attrs TermAttrs) handler.Result {
	if _, ok := r.tunnels.Lookup(tunnel); !ok {
		return handler.Invalid(fmt.Errorf("tunnel: termination on unknown tunnel %s", tunnel))
	}
	key := termKey(tunnel, attrs.DstIP)
	saiAttrs := sai.Attrs{"tunnel": tunnel, "dst_ip": attrs.DstIP, "src_ip": attrs.SrcIP}
	oid, err := r.sai.Create(ctx, sai.ObjectTunnelTerm, saiAttrs)
	if err != nil {
		return handler.FromSAIError(err)
	}
	if _, _, err := r.terms.GetOrCreate(key, func() (uint64, TermAttrs) { return oid, attrs }); err != nil {
		r.sai.Remove(ctx, sai.ObjectTunnelTerm, oid)
		return handler.Fail(err)
	}
	if _, err := r.tunnels.Incref(tunnel); err != nil {
		return handler.Fail(err)
	}
	return handler.Ok()
}

// RemoveTermination destroys a termination entry and releases the
// parent tunnel's reference.
func (r *Registry) RemoveTermination(ctx context.Context, tunnel, dstIP string) handler.Result {
	key := termKey(tunnel, dstIP)
	e, ok := r.terms.Lookup(key)
	if !ok {
		return handler.NoOp()
	}
	if err := r.sai.Remove(ctx, sai.ObjectTunnelTerm, e.SAIID); err != nil {
		return handler.FromSAIError(err)
	}
	if err := r.terms.Destroy(key); err != nil {
		return handler.Fail(err)
	}
	if _, err := r.tunnels.Decref(tunnel); err != nil {
		return handler.Fail(err)
	}
	return handler.Ok()
}

// mapKey derives a tunnel map entry's registry key.
func mapKey(tunnel string, vlan int) string { return fmt.Sprintf("%s|%d", tunnel, vlan) }

// SetMapEntry creates or updates an NVGRE/VXLAN tunnel map entry. The
// VSID/VNI bound must fall in (0, 2^24-1]; 0 is reserved (spec.md §3).
func (r *Registry) SetMapEntry(ctx context.Context, tunnel string, vlan int, vni uint32) handler.Result {
	const maxVNI = 1<<24 - 1
	if vni == 0 || vni > maxVNI {
		return handler.Invalid(fmt.Errorf("tunnel: vni/vsid %d out of range (0, %d]", vni, maxVNI))
	}
	if _, ok := r.tunnels.Lookup(tunnel); !ok {
		return handler.Invalid(fmt.Errorf("tunnel: map entry on unknown tunnel %s", tunnel))
	}
	key := mapKey(tunnel, vlan)
	attrs := MapEntryAttrs{Tunnel: tunnel, VLAN: vlan, VNI: vni}
	saiAttrs := sai.Attrs{"tunnel": tunnel, "vlan": fmt.Sprintf("%d", vlan), "vni": fmt.Sprintf("%d", vni)}

	if e, ok := r.maps.Lookup(key); ok {
		if err := r.sai.SetAttribute(ctx, sai.ObjectTunnelMapEntry, e.SAIID, saiAttrs); err != nil {
			return handler.FromSAIError(err)
		}
		e.Attrs = attrs
		return handler.Ok()
	}
	oid, err := r.sai.Create(ctx, sai.ObjectTunnelMapEntry, saiAttrs)
	if err != nil {
		return handler.FromSAIError(err)
	}
	if _, _, err := r.maps.GetOrCreate(key, func() (uint64, MapEntryAttrs) { return oid, attrs }); err != nil {
		r.sai.Remove(ctx, sai.ObjectTunnelMapEntry, oid)
		return handler.Fail(err)
	}
	return handler.Ok()
}

// RemoveMapEntry destroys a tunnel map entry.
func (r *Registry) RemoveMapEntry(ctx context.Context, tunnel string, vlan int) handler.Result {
	key := mapKey(tunnel, vlan)
	e, ok := r.maps.Lookup(key)
	if !ok {
		return handler.NoOp()
	}
	if err := r.sai.Remove(ctx, sai.ObjectTunnelMapEntry, e.SAIID); err != nil {
		return handler.FromSAIError(err)
	}
	return simple.FromRegistryError(r.maps.Destroy(key))
}

// Handler adapts a Registry to the dispatcher's handler.Handler
// contract for TUNNEL_TABLE, TUNNEL_TERM_TABLE, and
// TUNNEL_MAP_ENTRY_TABLE, registered together since terminations and
// map entries reference a tunnel by name and must resolve against live
// tunnel state regardless of which table a mutation lands on.
type Handler struct {
	reg   *Registry
	state *dbadapter.Adapter
}

// NewHandler wraps reg as a dispatcher handler.
func NewHandler(reg *Registry, state *dbadapter.Adapter) *Handler {
	return &Handler{reg: reg, state: state}
}

func (h *Handler) Name() string { return "tunnel" }

func (h *Handler) Priority() int { return 15 }

func splitPipe(key string) (first, second string) {
	i := strings.IndexByte(key, '|')
	if i < 0 {
		return key, ""
	}
	return key[:i], key[i+1:]
}

// ProcessBatch implements handler.Handler for TUNNEL_TABLE,
// TUNNEL_TERM_TABLE, and TUNNEL_MAP_ENTRY_TABLE mutations.
func (h *Handler) ProcessBatch(ctx context.Context, batch []consumer.Mutation) []handler.Result {
	results := make([]handler.Result, len(batch))
	for i, m := range batch {
		switch m.Table {
		case "TUNNEL_TABLE", "TUNNEL":
			if m.Op == dbadapter.Delete {
				results[i] = h.reg.RemoveTunnel(ctx, m.Key)
				continue
			}
			results[i] = h.reg.SetTunnel(ctx, m.Key, Attrs{
				SrcIP: m.Fields["src_ip"], DstIP: m.Fields["dst_ip"], Type: m.Fields["tunnel_type"],
				DSCPMode: m.Fields["dscp_mode"], TTLMode: m.Fields["ttl_mode"], ECNMode: m.Fields["ecn_mode"],
			})
		case "TUNNEL_TERM_TABLE", "TUNNEL_TERM":
			tunnel, dstIP := splitPipe(m.Key)
			if m.Op == dbadapter.Delete {
				results[i] = h.reg.RemoveTermination(ctx, tunnel, dstIP)
				continue
			}
			results[i] = h.reg.AddTermination(ctx, tunnel, TermAttrs{Tunnel: tunnel, DstIP: dstIP, SrcIP: m.Fields["src_ip"]})
		default: // TUNNEL_MAP_ENTRY_TABLE
			tunnel, vlanStr := splitPipe(m.Key)
			vlan, err := strconv.Atoi(vlanStr)
			if err != nil {
				results[i] = handler.Invalid(fmt.Errorf("tunnel: malformed map entry key %q: %w", m.Key, err))
				continue
			}
			if m.Op == dbadapter.Delete {
				results[i] = h.reg.RemoveMapEntry(ctx, tunnel, vlan)
				continue
			}
			vni64, _ := strconv.ParseUint(m.Fields["vni"], 10, 32)
			results[i] = h.reg.SetMapEntry(ctx, tunnel, vlan, uint32(vni64))
		}
	}
	return results
}

// Bake snapshots tunnels, terminations, and map entries onto STATE_DB
// ahead of a warm restart (spec.md §4.9 phase 1).
func (h *Handler) Bake(ctx context.Context) (bool, error) {
	bakedTunnels, err := simple.Bake(ctx, h.reg.RawTunnels(), h.state, "TUNNEL_TABLE", func(a Attrs) map[string]string {
		return map[string]string{"src_ip": a.SrcIP, "dst_ip": a.DstIP, "tunnel_type": a.Type}
	})
	if err != nil {
		return bakedTunnels, err
	}
	bakedTerms, err := simple.Bake(ctx, h.reg.RawTerminations(), h.state, "TUNNEL_TERM_TABLE", func(a TermAttrs) map[string]string {
		return map[string]string{"tunnel": a.Tunnel, "dst_ip": a.DstIP, "src_ip": a.SrcIP}
	})
	if err != nil {
		return bakedTunnels || bakedTerms, err
	}
	bakedMaps, err := simple.Bake(ctx, h.reg.RawMapEntries(), h.state, "TUNNEL_MAP_ENTRY_TABLE", func(a MapEntryAttrs) map[string]string {
		return map[string]string{"tunnel": a.Tunnel, "vlan": strconv.Itoa(a.VLAN), "vni": strconv.FormatUint(uint64(a.VNI), 10)}
	})
	return bakedTunnels || bakedTerms || bakedMaps, err
}

// OnWarmBootEnd reloads all three registries from their STATE_DB
// snapshots and rebuilds their reverse OID indices (spec.md §4.9
// phase 3).
func (h *Handler) OnWarmBootEnd(ctx context.Context) error {
	if err := simple.OnWarmBootEnd(ctx, h.reg.RawTunnels(), h.state, "TUNNEL_TABLE", func(key string, fields map[string]string) Attrs {
		return Attrs{SrcIP: fields["src_ip"], DstIP: fields["dst_ip"], Type: fields["tunnel_type"]}
	}); err != nil {
		return err
	}
	if err := simple.OnWarmBootEnd(ctx, h.reg.RawTerminations(), h.state, "TUNNEL_TERM_TABLE", func(key string, fields map[string]string) TermAttrs {
		return TermAttrs{Tunnel: fields["tunnel"], DstIP: fields["dst_ip"], SrcIP: fields["src_ip"]}
	}); err != nil {
		return err
	}
	return simple.OnWarmBootEnd(ctx, h.reg.RawMapEntries(), h.state, "TUNNEL_MAP_ENTRY_TABLE", func(key string, fields map[string]string) MapEntryAttrs {
		vlan, _ := strconv.Atoi(fields["vlan"])
		vni, _ := strconv.ParseUint(fields["vni"], 10, 32)
		return MapEntryAttrs{Tunnel: fields["tunnel"], VLAN: vlan, VNI: uint32(vni)}
	})
}

// Package route implements spec.md §4.5's route handler: resolve the
// target next-hop group, swap the SAI route's forwarding attribute to
// it make-before-break, then release the previous group.
//
// Grounded on pkg/handler/nexthopgroup for group resolution and on the
// teacher's pkg/newtron/network/node/bgp_ops.go commit-before-teardown
// ordering for route/policy replacement, generalized into an explicit
// make-before-break swap.
package route

import (
	"context"
	"fmt"

	"github.com/fabricwire/swssd/pkg/consumer"
	"github.com/fabricwire/swssd/pkg/dbadapter"
	"github.com/fabricwire/swssd/pkg/handler"
	"github.com/fabricwire/swssd/pkg/handler/nexthop"
	"github.com/fabricwire/swssd/pkg/handler/nexthopgroup"
	"github.com/fabricwire/swssd/pkg/handler/simple"
	"github.com/fabricwire/swssd/pkg/handler/vrf"
	"github.com/fabricwire/swssd/pkg/registry"
	"github.com/fabricwire/swssd/pkg/sai"
)

// Attrs is one route entry's persisted binding: which next-hop group key
// currently backs it.
type Attrs struct {
	NHGKey string
	VRF    string
}

// Registry owns the VRF/prefix → NHG mapping (spec.md §4.5 step 4:
// "Persist the route → NHG key mapping in the registry").
type Registry struct {
	reg  *registry.Registry[Attrs]
	nhg  *nexthopgroup.Registry
	vrfs *vrf.Registry
	sai  sai.Client
}

// New creates a route registry bound to a next-hop-group registry, a
// VRF registry for the "VRF must exist" precondition (spec.md:56), and
// a SAI client.
func New(nhg *nexthopgroup.Registry, vrfs *vrf.Registry, client sai.Client) *Registry {
	return &Registry{reg: registry.New[Attrs]("ROUTE"), nhg: nhg, vrfs: vrfs, sai: client}
}

// Raw exposes the underlying generic registry for warm-restart bake/load.
func (r *Registry) Raw() *registry.Registry[Attrs] { return r.reg }

// Key derives the route registry key from its VRF and prefix.
func Key(vrf, prefix string) string { return vrf + "|" + prefix }

// Set implements spec.md §4.5's route handler steps 1-5 for one route
// mutation. members is the new next-hop set, already destined for
// nexthop.SortMembers by the caller's canonicalization step.
func (r *Registry) Set(ctx context.Context, vrfName, prefix string, members []nexthop.Attrs) handler.Result {
	if !r.vrfs.Exists(vrfName) {
		return handler.WaitFor("VRF_TABLE:" + vrfName)
	}
	key := Key(vrfName, prefix)

	nhgKey, nhgID, _, err := r.nhg.Resolve(ctx, members)
	if err != nil {
		return handler.FromSAIError(err)
	}

	existing, hadOld := r.reg.Lookup(key)
	var oldNHGKey string
	if hadOld {
		oldNHGKey = existing.Attrs.NHGKey
	}

	routeAttrs := sai.Attrs{"next_hop_group_id": fmt.Sprintf("%d", nhgID)}

	if hadOld {
		// Make-before-break: switch the SAI route to the new group
		// before touching the old group's refcount (spec.md §4.5 step 2).
		if err := r.sai.SetAttribute(ctx, sai.ObjectRoute, existing.SAIID, routeAttrs); err != nil {
			// Step 5: release the new NHG's bumped refcount, leave the
			// route bound to its previous group.
			r.nhg.Release(ctx, nhgKey)
			return handler.FromSAIError(err)
		}
		if oldNHGKey != nhgKey {
			r.nhg.Release(ctx, oldNHGKey)
		} else {
			// Same group resolved again: undo the redundant Incref from
			// Resolve rather than leaving the route's true refcount
			// inflated.
			r.nhg.Release(ctx, nhgKey)
		}
		existing.Attrs.NHGKey = nhgKey
		return handler.Ok()
	}

	oid, err := r.sai.Create(ctx, sai.ObjectRoute, routeAttrs)
	if err != nil {
		r.nhg.Release(ctx, nhgKey)
		return handler.FromSAIError(err)
	}
	if _, _, err := r.reg.GetOrCreate(key, func() (uint64, Attrs) { return oid, Attrs{NHGKey: nhgKey, VRF: vrfName} }); err != nil {
		r.sai.Remove(ctx, sai.ObjectRoute, oid)
		r.nhg.Release(ctx, nhgKey)
		return handler.Fail(err)
	}
	if err := r.vrfs.Incref(vrfName); err != nil {
		return handler.Fail(err)
	}
	return handler.Ok()
}

// Remove deletes a route entry, releasing its bound next-hop group and
// its VRF reference.
func (r *Registry) Remove(ctx context.Context, vrf, prefix string) handler.Result {
	key := Key(vrf, prefix)
	e, ok := r.reg.Lookup(key)
	if !ok {
		return handler.NoOp()
	}
	if err := r.sai.Remove(ctx, sai.ObjectRoute, e.SAIID); err != nil {
		return handler.FromSAIError(err)
	}
	if err := r.nhg.Release(ctx, e.Attrs.NHGKey); err != nil {
		return handler.Fail(err)
	}
	vrfName := e.Attrs.VRF
	if err := r.reg.Destroy(key); err != nil {
		return handler.Fail(err)
	}
	if err := r.vrfs.Release(vrfName); err != nil {
		return handler.Fail(err)
	}
	return handler.Ok()
}

// Handler adapts a Registry to the dispatcher's handler.Handler
// contract for ROUTE_TABLE. Mutation keys are "vrf|prefix"; a bare
// prefix with no "|" is treated as the default VRF. "nexthop" and
// "ifname" are parallel comma-separated lists of next-hop IPs and
// owning interfaces, matching SONiC's ROUTE_TABLE field convention.
type Handler struct {
	reg   *Registry
	state *dbadapter.Adapter
}

// NewHandler wraps reg as a dispatcher handler. state is the STATE_DB
// adapter used by Bake to snapshot ahead of a warm restart.
func NewHandler(reg *Registry, state *dbadapter.Adapter) *Handler {
	return &Handler{reg: reg, state: state}
}

func (h *Handler) Name() string { return "route" }

// Priority runs after next-hop-group-dependent resources but before
// nothing in particular; routes are leaves of the reference graph.
func (h *Handler) Priority() int { return 50 }

func splitVRFPrefix(key string) (vrf, prefix string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[:i], key[i+1:]
		}
	}
	return "default", key
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}

// ProcessBatch implements handler.Handler for ROUTE_TABLE mutations.
func (h *Handler) ProcessBatch(ctx context.Context, batch []consumer.Mutation) []handler.Result {
	results := make([]handler.Result, len(batch))
	for i, m := range batch {
		vrf, prefix := splitVRFPrefix(m.Key)
		if m.Op == dbadapter.Delete {
			results[i] = h.reg.Remove(ctx, vrf, prefix)
			continue
		}
		ips := splitCSV(m.Fields["nexthop"])
		ifnames := splitCSV(m.Fields["ifname"])
		if len(ips) == 0 || len(ips) != len(ifnames) {
			results[i] = handler.Invalid(fmt.Errorf("route %s: mismatched nexthop/ifname lists", m.Key))
			continue
		}
		members := make([]nexthop.Attrs, len(ips))
		for j := range ips {
			members[j] = nexthop.Attrs{Alias: ifnames[j], IP: ips[j]}
		}
		nexthop.SortMembers(members)
		results[i] = h.reg.Set(ctx, vrf, prefix, members)
	}
	return results
}

// Bake snapshots the route registry onto STATE_DB ahead of a warm
// restart (spec.md §4.9 phase 1).
func (h *Handler) Bake(ctx context.Context) (bool, error) {
	return simple.Bake(ctx, h.reg.Raw(), h.state, "ROUTE_TABLE", func(a Attrs) map[string]string {
		return map[string]string{"nhg_key": a.NHGKey, "vrf": a.VRF}
	})
}

// OnWarmBootEnd reloads the route registry from its STATE_DB snapshot
// and rebuilds its reverse OID index (spec.md §4.9 phase 3). Restoring
// the route's VRF binding here (rather than just nhg_key) keeps a
// subsequent Remove's vrfs.Release balanced against the Incref Set
// performed before the restart.
func (h *Handler) OnWarmBootEnd(ctx context.Context) error {
	return simple.OnWarmBootEnd(ctx, h.reg.Raw(), h.state, "ROUTE_TABLE", func(key string, fields map[string]string) Attrs {
		vrfName, _ := splitVRFPrefix(key)
		if fields["vrf"] != "" {
			vrfName = fields["vrf"]
		}
		return Attrs{NHGKey: fields["nhg_key"], VRF: vrfName}
	})
}

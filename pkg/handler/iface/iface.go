// Package iface implements the router interface handler (spec.md §3's
// "Interface" row): one SAI router interface object per alias, bound
// to a VRF and carrying zero or more IP addresses, with a refcount
// that covers both its bound IPs and any external references (a
// neighbor entry keyed on this interface's port).
//
// Grounded on pkg/handler/fdb's ref-counted registry shape, generalized
// to the two-level refcounting (per-IP plus external) spec.md:52
// describes: "refcount ≥ number of IPs configured plus external
// references (e.g. neighbor entries bound to this interface)".
package iface

import (
	"context"
	"fmt"

	"github.com/fabricwire/swssd/pkg/consumer"
	"github.com/fabricwire/swssd/pkg/dbadapter"
	"github.com/fabricwire/swssd/pkg/handler"
	"github.com/fabricwire/swssd/pkg/handler/simple"
	"github.com/fabricwire/swssd/pkg/handler/vrf"
	"github.com/fabricwire/swssd/pkg/registry"
	"github.com/fabricwire/swssd/pkg/sai"
)

// Attrs is one interface entry's persisted state.
type Attrs struct {
	VRF string
	MAC string
	IPs []string
}

// Registry owns every live interface and its VRF binding.
type Registry struct {
	reg  *registry.Registry[Attrs]
	vrfs *vrf.Registry
	sai  sai.Client
}

// New creates an interface registry bound to vrfs for VRF-existence
// checks and incref/release on bind/unbind.
func New(vrfs *vrf.Registry, client sai.Client) *Registry {
	return &Registry{
		reg:  registry.New[Attrs]("INTERFACE"),
		vrfs: vrfs,
		sai:  client,
	}
}

// Raw exposes the underlying generic registry for warm-restart bake/load.
func (r *Registry) Raw() *registry.Registry[Attrs] { return r.reg }

// Exists reports whether alias has a live interface entry, the
// dependency check neighbor gates on (spec.md:57 "Interface must
// exist").
func (r *Registry) Exists(alias string) bool {
	_, ok := r.reg.Lookup(alias)
	return ok
}

// Incref bumps alias's external refcount, held e.g. by a neighbor entry
// bound to this interface's port.
func (r *Registry) Incref(alias string) error {
	_, err := r.reg.Incref(alias)
	return err
}

// Release drops one external reference.
func (r *Registry) Release(alias string) error {
	_, err := r.reg.Decref(alias)
	return err
}

func ipSet(ips []string) map[string]bool {
	out := make(map[string]bool, len(ips))
	for _, ip := range ips {
		out[ip] = true
	}
	return out
}

// reconcileIPs diffs the interface's previous IP set against next,
// incref/decref-ing the registry entry once per added/removed address
// so Refcount always reflects "number of IPs configured" plus whatever
// external references were separately held (spec.md:52).
func (r *Registry) reconcileIPs(alias string, prev, next []string) error {
	oldSet, newSet := ipSet(prev), ipSet(next)
	for ip := range newSet {
		if !oldSet[ip] {
			if _, err := r.reg.Incref(alias); err != nil {
				return err
			}
		}
	}
	for ip := range oldSet {
		if !newSet[ip] {
			if _, err := r.reg.Decref(alias); err != nil {
				return err
			}
		}
	}
	return nil
}

// Set creates or updates an interface bound to vrfName. The VRF must
// already exist (spec.md:56-57's "VRF must exist" family of
// invariants); a VRF-name change releases the old VRF and increfs the
// new one.
func (r *Registry) Set(ctx context.Context, alias, vrfName, mac string, ips []string) handler.Result {
	if !r.vrfs.Exists(vrfName) {
		return handler.WaitFor("VRF_TABLE:" + vrfName)
	}
	saiAttrs := sai.Attrs{"vrf": vrfName, "mac": mac}

	if e, ok := r.reg.Lookup(alias); ok {
		if err := r.sai.SetAttribute(ctx, sai.ObjectRouterInterface, e.SAIID, saiAttrs); err != nil {
			return handler.FromSAIError(err)
		}
		prevVRF, prevIPs := e.Attrs.VRF, e.Attrs.IPs
		if err := r.reconcileIPs(alias, prevIPs, ips); err != nil {
			return handler.Fail(err)
		}
		if prevVRF != vrfName {
			if err := r.vrfs.Incref(vrfName); err != nil {
				return handler.Fail(err)
			}
			if err := r.vrfs.Release(prevVRF); err != nil {
				return handler.Fail(err)
			}
		}
		e.Attrs = Attrs{VRF: vrfName, MAC: mac, IPs: ips}
		return handler.Ok()
	}

	oid, err := r.sai.Create(ctx, sai.ObjectRouterInterface, saiAttrs)
	if err != nil {
		return handler.FromSAIError(err)
	}
	if _, _, err := r.reg.GetOrCreate(alias, func() (uint64, Attrs) {
		return oid, Attrs{VRF: vrfName, MAC: mac, IPs: nil}
	}); err != nil {
		r.sai.Remove(ctx, sai.ObjectRouterInterface, oid)
		return handler.Fail(err)
	}
	if err := r.vrfs.Incref(vrfName); err != nil {
		return handler.Fail(err)
	}
	if err := r.reconcileIPs(alias, nil, ips); err != nil {
		return handler.Fail(err)
	}
	if e, ok := r.reg.Lookup(alias); ok {
		e.Attrs.IPs = ips
	}
	return handler.Ok()
}

// Remove destroys an interface, refusing while any IP or external
// reference remains (spec.md:52).
func (r *Registry) Remove(ctx context.Context, alias string) handler.Result {
	e, ok := r.reg.Lookup(alias)
	if !ok {
		return handler.NoOp()
	}
	if e.Refcount > 0 {
		return handler.Invalid(fmt.Errorf("interface %s: refcount %d, IPs or references remain", alias, e.Refcount))
	}
	if err := r.sai.Remove(ctx, sai.ObjectRouterInterface, e.SAIID); err != nil {
		return handler.FromSAIError(err)
	}
	vrfName := e.Attrs.VRF
	if err := r.reg.Destroy(alias); err != nil {
		return handler.Fail(err)
	}
	if err := r.vrfs.Release(vrfName); err != nil {
		return handler.Fail(err)
	}
	return handler.Ok()
}

// Handler adapts a Registry to the dispatcher's handler.Handler
// contract for INTERFACE_TABLE. Mutation keys are the interface alias.
type Handler struct {
	reg   *Registry
	state *dbadapter.Adapter
}

// NewHandler wraps reg as a dispatcher handler.
func NewHandler(reg *Registry, state *dbadapter.Adapter) *Handler {
	return &Handler{reg: reg, state: state}
}

func (h *Handler) Name() string { return "iface" }

// Priority runs after vrf (on which it depends) and before neighbor and
// route (which depend on it).
func (h *Handler) Priority() int { return 2 }

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func joinCSV(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

// ProcessBatch implements handler.Handler for INTERFACE_TABLE mutations.
func (h *Handler) ProcessBatch(ctx context.Context, batch []consumer.Mutation) []handler.Result {
	results := make([]handler.Result, len(batch))
	for i, m := range batch {
		if m.Op == dbadapter.Delete {
			results[i] = h.reg.Remove(ctx, m.Key)
			continue
		}
		results[i] = h.reg.Set(ctx, m.Key, m.Fields["vrf"], m.Fields["mac"], splitCSV(m.Fields["ip_address"]))
	}
	return results
}

// Bake snapshots the interface registry onto STATE_DB ahead of a warm
// restart (spec.md §4.9 phase 1).
func (h *Handler) Bake(ctx context.Context) (bool, error) {
	return simple.Bake(ctx, h.reg.Raw(), h.state, "INTERFACE_TABLE", func(a Attrs) map[string]string {
		return map[string]string{"vrf": a.VRF, "mac": a.MAC, "ip_address": joinCSV(a.IPs)}
	})
}

// OnWarmBootEnd reloads the interface registry from its STATE_DB
// snapshot and rebuilds its reverse OID index (spec.md §4.9 phase 3).
func (h *Handler) OnWarmBootEnd(ctx context.Context) error {
	return simple.OnWarmBootEnd(ctx, h.reg.Raw(), h.state, "INTERFACE_TABLE", func(key string, fields map[string]string) Attrs {
		return Attrs{VRF: fields["vrf"], MAC: fields["mac"], IPs: splitCSV(fields["ip_address"])}
	})
}

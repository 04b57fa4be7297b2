// Package mirror implements the mirror session handler (spec.md §3's
// "Mirror session" row): refcount floor equal to the number of ACL
// rules redirecting traffic to it. ACL rule handlers call AddRef/Release
// as they bind/unbind a redirect action.
package mirror

import (
	"context"

	"github.com/fabricwire/swssd/pkg/consumer"
	"github.com/fabricwire/swssd/pkg/dbadapter"
	"github.com/fabricwire/swssd/pkg/handler"
	"github.com/fabricwire/swssd/pkg/handler/simple"
	"github.com/fabricwire/swssd/pkg/registry"
	"github.com/fabricwire/swssd/pkg/sai"
)

// Attrs is one mirror session's configuration.
type Attrs struct {
	SrcIP, DstIP string
	VLAN         string
	Direction    string // "rx", "tx", or "both"
	Policer      string // name of a bound policer, or ""
}

// Registry owns every live mirror session.
type Registry struct {
	reg *registry.Registry[Attrs]
	sai sai.Client
}

// New creates a mirror session registry.
func New(client sai.Client) *Registry {
	return &Registry{reg: registry.New[Attrs]("MIRROR_SESSION"), sai: client}
}

// Raw exposes the underlying generic registry for warm-restart bake/load.
func (r *Registry) Raw() *registry.Registry[Attrs] { return r.reg }

// Set creates or updates a mirror session, named by its CONFIG_DB key.
func (r *Registry) Set(ctx context.Context, name string, attrs Attrs) handler.Result {
	saiAttrs := sai.Attrs{
		"src_ip": attrs.SrcIP, "dst_ip": attrs.DstIP,
		"vlan": attrs.VLAN, "direction": attrs.Direction,
	}
	if e, ok := r.reg.Lookup(name); ok {
		if err := r.sai.SetAttribute(ctx, sai.ObjectMirrorSession, e.SAIID, saiAttrs); err != nil {
			return handler.FromSAIError(err)
		}
		e.Attrs = attrs
		return handler.Ok()
	}
	oid, err := r.sai.Create(ctx, sai.ObjectMirrorSession, saiAttrs)
	if err != nil {
		return handler.FromSAIError(err)
	}
	if _, _, err := r.reg.GetOrCreate(name, func() (uint64, Attrs) { return oid, attrs }); err != nil {
		r.sai.Remove(ctx, sai.ObjectMirrorSession, oid)
		return handler.Fail(err)
	}
	return handler.Ok()
}

// AddRef bumps a mirror session's refcount when an ACL rule binds a
// redirect action to it.
func (r *Registry) AddRef(name string) (int, error) { return r.reg.Incref(name) }

// Release drops one ACL-rule reference. It never tears the session
// down, even at zero: the session is only removed via Remove —
// AddRef/Release track redirect-rule usage so Remove can refuse to
// destroy a still-referenced session.
func (r *Registry) Release(name string) (int, error) { return r.reg.Decref(name) }

// Remove deletes a mirror session, refusing while any ACL rule still
// redirects to it (spec.md §3 "refcount ≥ number of ACL rules
// redirecting to it").
func (r *Registry) Remove(ctx context.Context, name string) handler.Result {
	return simple.FromRegistryError(simple.DestroyIfUnreferenced(ctx, r.reg, r.sai, sai.ObjectMirrorSession, name))
}

// Handler adapts a Registry to the dispatcher's handler.Handler
// contract for MIRROR_SESSION.
type Handler struct {
	reg   *Registry
	state *dbadapter.Adapter
}

// NewHandler wraps reg as a dispatcher handler.
func NewHandler(reg *Registry, state *dbadapter.Adapter) *Handler {
	return &Handler{reg: reg, state: state}
}

func (h *Handler) Name() string { return "mirror" }

// Priority runs ahead of ACL, whose redirect actions reference mirror
// sessions by name.
func (h *Handler) Priority() int { return 10 }

// ProcessBatch implements handler.Handler for MIRROR_SESSION mutations.
func (h *Handler) ProcessBatch(ctx context.Context, batch []consumer.Mutation) []handler.Result {
	results := make([]handler.Result, len(batch))
	for i, m := range batch {
		if m.Op == dbadapter.Delete {
			results[i] = h.reg.Remove(ctx, m.Key)
			continue
		}
		results[i] = h.reg.Set(ctx, m.Key, Attrs{
			SrcIP: m.Fields["src_ip"], DstIP: m.Fields["dst_ip"],
			VLAN: m.Fields["vlan"], Direction: m.Fields["direction"],
		})
	}
	return results
}

// Bake snapshots every mirror session onto STATE_DB ahead of a warm
// restart (spec.md §4.9 phase 1).
func (h *Handler) Bake(ctx context.Context) (bool, error) {
	return simple.Bake(ctx, h.reg.Raw(), h.state, "MIRROR_SESSION_TABLE", func(a Attrs) map[string]string {
		return map[string]string{"src_ip": a.SrcIP, "dst_ip": a.DstIP, "vlan": a.VLAN, "direction": a.Direction}
	})
}

// OnWarmBootEnd reloads the mirror registry from its STATE_DB snapshot
// and rebuilds its reverse OID index (spec.md §4.9 phase 3).
func (h *Handler) OnWarmBootEnd(ctx context.Context) error {
	return simple.OnWarmBootEnd(ctx, h.reg.Raw(), h.state, "MIRROR_SESSION_TABLE", func(key string, fields map[string]string) Attrs {
		return Attrs{SrcIP: fields["src_ip"], DstIP: fields["dst_ip"], VLAN: fields["vlan"], Direction: fields["direction"]}
	})
}

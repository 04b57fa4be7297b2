// Package vrf implements the Virtual Routing and Forwarding instance
// handler (spec.md §3's "VRF" row): one SAI virtual router object per
// name, with a table-id pool allocation mirroring pkg/mgr/vrfmgr's
// kernel-facing routing-table pool, and a refcount driven by the
// interfaces bound to it.
//
// Grounded on pkg/handler/fdb's ref-counted registry shape and on
// pkg/mgr/vrfmgr's TableIDMin/TableIDMax/MgmtVRFID pool constants
// (spec.md:161 "Allocates table ids from a pool [1001, 2000]; reserves
// id 5000 for the management VRF"), reapplied here to the SAI-facing
// object instead of the Linux routing table vrfmgr programs.
package vrf

import (
	"context"
	"fmt"

	"github.com/fabricwire/swssd/pkg/consumer"
	"github.com/fabricwire/swssd/pkg/dbadapter"
	"github.com/fabricwire/swssd/pkg/handler"
	"github.com/fabricwire/swssd/pkg/handler/simple"
	"github.com/fabricwire/swssd/pkg/registry"
	"github.com/fabricwire/swssd/pkg/sai"
)

// Table-id pool bounds, spec.md:53 "table ids allocated from a pool
// [lo,hi]" and spec.md:161's concrete bounds.
const (
	TableIDMin = 1001
	TableIDMax = 2000
	MgmtVRFID  = 5000
)

// Attrs is one VRF entry's persisted state.
type Attrs struct {
	TableID uint32
}

// Registry owns every live VRF and the table-id pool backing it.
type Registry struct {
	reg  *registry.Registry[Attrs]
	sai  sai.Client
	next uint32
	used map[uint32]bool
}

// New creates a VRF registry with an empty table-id pool.
func New(client sai.Client) *Registry {
	return &Registry{
		reg:  registry.New[Attrs]("VRF"),
		sai:  client,
		next: TableIDMin,
		used: make(map[uint32]bool),
	}
}

// Raw exposes the underlying generic registry for warm-restart bake/load.
func (r *Registry) Raw() *registry.Registry[Attrs] { return r.reg }

// Exists reports whether name has a live VRF entry, the dependency
// check the route and interface handlers gate on (spec.md:56 "VRF must
// exist").
func (r *Registry) Exists(name string) bool {
	_, ok := r.reg.Lookup(name)
	return ok
}

// Incref bumps name's refcount; called by the interface handler when
// binding an interface to this VRF (spec.md:53 "refcount ≥ number of
// interfaces bound").
func (r *Registry) Incref(name string) error {
	_, err := r.reg.Incref(name)
	return err
}

// Release drops one reference held by an interface unbinding from
// this VRF.
func (r *Registry) Release(name string) error {
	_, err := r.reg.Decref(name)
	return err
}

// allocate picks the next free table id from [TableIDMin, TableIDMax];
// "Mgmt" is reserved directly to MgmtVRFID without consuming the pool,
// matching vrfmgr's reservation (spec.md:161).
func (r *Registry) allocate(name string) (uint32, error) {
	if name == "Mgmt" {
		if r.used[MgmtVRFID] {
			return 0, fmt.Errorf("vrf: management VRF already allocated")
		}
		r.used[MgmtVRFID] = true
		return MgmtVRFID, nil
	}
	for id := r.next; id <= TableIDMax; id++ {
		if !r.used[id] {
			r.used[id] = true
			r.next = id + 1
			return id, nil
		}
	}
	return 0, fmt.Errorf("vrf: table id pool [%d,%d] exhausted", TableIDMin, TableIDMax)
}

func (r *Registry) release(id uint32) {
	delete(r.used, id)
}

// rebuildPool reconstructs the table-id pool's used/next state from the
// registry's current entries, called once after a warm-restart Load so
// future allocations never collide with a restored VRF's table id.
func (r *Registry) rebuildPool() {
	r.used = make(map[uint32]bool)
	r.next = TableIDMin
	for _, e := range r.reg.Snapshot() {
		r.used[e.Attrs.TableID] = true
		if e.Attrs.TableID >= r.next && e.Attrs.TableID < TableIDMax {
			r.next = e.Attrs.TableID + 1
		}
	}
}

// Set creates a VRF if absent. A VRF's table-id binding is immutable
// once allocated; a repeat Set for an existing name is a no-op.
func (r *Registry) Set(ctx context.Context, name string) handler.Result {
	if _, ok := r.reg.Lookup(name); ok {
		return handler.NoOp()
	}
	tableID, err := r.allocate(name)
	if err != nil {
		return handler.Invalid(err)
	}
	oid, err := r.sai.Create(ctx, sai.ObjectVirtualRouter, sai.Attrs{"table_id": fmt.Sprintf("%d", tableID)})
	if err != nil {
		r.release(tableID)
		return handler.FromSAIError(err)
	}
	if _, _, err := r.reg.GetOrCreate(name, func() (uint64, Attrs) { return oid, Attrs{TableID: tableID} }); err != nil {
		r.sai.Remove(ctx, sai.ObjectVirtualRouter, oid)
		r.release(tableID)
		return handler.Fail(err)
	}
	return handler.Ok()
}

// Remove destroys a VRF, refusing while any interface still references
// it (spec.md:53 "refcount ≥ number of interfaces bound").
func (r *Registry) Remove(ctx context.Context, name string) handler.Result {
	e, ok := r.reg.Lookup(name)
	if !ok {
		return handler.NoOp()
	}
	if e.Refcount > 0 {
		return handler.Invalid(fmt.Errorf("vrf %s: refcount %d, interfaces still bound", name, e.Refcount))
	}
	if err := r.sai.Remove(ctx, sai.ObjectVirtualRouter, e.SAIID); err != nil {
		return handler.FromSAIError(err)
	}
	tableID := e.Attrs.TableID
	if err := r.reg.Destroy(name); err != nil {
		return handler.Fail(err)
	}
	r.release(tableID)
	return handler.Ok()
}

// Handler adapts a Registry to the dispatcher's handler.Handler
// contract for VRF_TABLE. Mutation keys are the VRF name.
type Handler struct {
	reg   *Registry
	state *dbadapter.Adapter
}

// NewHandler wraps reg as a dispatcher handler.
func NewHandler(reg *Registry, state *dbadapter.Adapter) *Handler {
	return &Handler{reg: reg, state: state}
}

func (h *Handler) Name() string { return "vrf" }

// Priority runs before interface (which binds to a VRF) and before
// route (which requires one to exist).
func (h *Handler) Priority() int { return 1 }

// ProcessBatch implements handler.Handler for VRF_TABLE mutations.
func (h *Handler) ProcessBatch(ctx context.Context, batch []consumer.Mutation) []handler.Result {
	results := make([]handler.Result, len(batch))
	for i, m := range batch {
		if m.Op == dbadapter.Delete {
			results[i] = h.reg.Remove(ctx, m.Key)
			continue
		}
		results[i] = h.reg.Set(ctx, m.Key)
	}
	return results
}

// Bake snapshots the VRF registry onto STATE_DB ahead of a warm
// restart (spec.md §4.9 phase 1).
func (h *Handler) Bake(ctx context.Context) (bool, error) {
	return simple.Bake(ctx, h.reg.Raw(), h.state, "VRF_TABLE", func(a Attrs) map[string]string {
		return map[string]string{"table_id": fmt.Sprintf("%d", a.TableID)}
	})
}

// OnWarmBootEnd reloads the VRF registry from its STATE_DB snapshot,
// rebuilds its reverse OID index, and reconstructs the table-id pool
// so future allocations don't collide with a restored VRF (spec.md
// §4.9 phase 3).
func (h *Handler) OnWarmBootEnd(ctx context.Context) error {
	if err := simple.OnWarmBootEnd(ctx, h.reg.Raw(), h.state, "VRF_TABLE", func(key string, fields map[string]string) Attrs {
		var tableID uint32
		fmt.Sscanf(fields["table_id"], "%d", &tableID)
		return Attrs{TableID: tableID}
	}); err != nil {
		return err
	}
	h.reg.rebuildPool()
	return nil
}

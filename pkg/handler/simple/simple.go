// Package simple factors out the create-or-get-with-rollback and
// decref-destroy-at-zero shapes shared by every resource type in
// spec.md §3 whose handler does not need a bespoke algorithm of its own
// (FDB, mirror session, policer, buffer pool/profile, tunnel, ACL
// table/rule, tunnel map entry). The richer algorithms (next-hop group,
// route, port, neighbor/BFD) have their own packages; this one is the
// generic tail.
//
// Grounded on pkg/registry's ref-counted registry and on the teacher's
// discipline (pkg/newtron/network/node/*_ops.go) of never bracket-
// indexing a registry to create an entry as a side effect of a lookup.
package simple

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fabricwire/swssd/pkg/dbadapter"
	"github.com/fabricwire/swssd/pkg/handler"
	"github.com/fabricwire/swssd/pkg/registry"
	"github.com/fabricwire/swssd/pkg/sai"
)

// CreateOrGet resolves key in reg, creating a new SAI object of objType
// via client when absent. It never bumps refcount — callers that want
// reference-counted semantics call reg.Incref explicitly, per spec.md
// §4.5's "Reference-count contract".
func CreateOrGet[A any](ctx context.Context, reg *registry.Registry[A], client sai.Client, objType sai.ObjectType, key string, attrs sai.Attrs, zero func() A) (*registry.Entry[A], error) {
	if e, ok := reg.Lookup(key); ok {
		return e, nil
	}
	oid, err := client.Create(ctx, objType, attrs)
	if err != nil {
		return nil, err
	}
	e, created, err := reg.GetOrCreate(key, func() (uint64, A) { return oid, zero() })
	if err != nil {
		client.Remove(ctx, objType, oid)
		return nil, err
	}
	if !created {
		client.Remove(ctx, objType, oid)
	}
	return e, nil
}

// DestroyIfUnreferenced removes key's SAI object and registry entry
// provided its refcount is already zero; it refuses to destroy an
// entry still referenced.
func DestroyIfUnreferenced[A any](ctx context.Context, reg *registry.Registry[A], client sai.Client, objType sai.ObjectType, key string) error {
	e, ok := reg.Lookup(key)
	if !ok {
		return nil
	}
	if e.Refcount > 0 {
		return fmt.Errorf("simple: %s: refcount %d, refusing to destroy", key, e.Refcount)
	}
	if err := client.Remove(ctx, objType, e.SAIID); err != nil {
		return err
	}
	return reg.Destroy(key)
}

// Release decrements key's refcount and destroys it once the count
// reaches zero.
func Release[A any](ctx context.Context, reg *registry.Registry[A], client sai.Client, objType sai.ObjectType, key string) error {
	n, err := reg.Decref(key)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	return DestroyIfUnreferenced(ctx, reg, client, objType, key)
}

// FromRegistryError maps a registry lookup/refcount failure onto the
// handler Outcome alphabet for callers that want a handler.Result
// rather than a bare error.
func FromRegistryError(err error) handler.Result {
	if err == nil {
		return handler.Ok()
	}
	return handler.Fail(err)
}

// Bake implements the common shape of spec.md §4.9 phase 1: snapshot
// every entry of reg onto stateTable in STATE_DB, keyed by its
// registry key, with the SAI id and refcount alongside whatever fields
// encode derives from the entry's attributes. Returns false (nothing
// baked) when the registry is empty, matching the Handler.Bake
// contract's "false if the handler has nothing to snapshot".
func Bake[A any](ctx context.Context, reg *registry.Registry[A], state *dbadapter.Adapter, stateTable string, encode func(A) map[string]string) (bool, error) {
	snapshot := reg.Snapshot()
	if len(snapshot) == 0 {
		return false, nil
	}
	for key, e := range snapshot {
		fields := encode(e.Attrs)
		if fields == nil {
			fields = make(map[string]string)
		}
		fields["sai_id"] = strconv.FormatUint(e.SAIID, 10)
		fields["refcount"] = strconv.Itoa(e.Refcount)
		if err := state.Write(ctx, stateTable, key, fields); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Load implements spec.md §4.9 phase 3's "the new process starts, loads
// each registry from STATE before subscribing to any CONFIG/APPL table":
// it reads stateTable's snapshot back out of STATE_DB and calls
// reg.Restore with it, reconstructing each entry's SAI id, refcount, and
// attributes via decode (the inverse of Bake's encode). decode receives
// both the registry key and the row's fields, since some attributes
// (e.g. a VLAN membership's VLAN id) are only recoverable from the key.
func Load[A any](ctx context.Context, reg *registry.Registry[A], state *dbadapter.Adapter, stateTable string, decode func(key string, fields map[string]string) A) error {
	keys, err := state.Keys(ctx, stateTable)
	if err != nil {
		return err
	}
	snapshot := make(map[string]registry.Entry[A], len(keys))
	for _, key := range keys {
		fields, ok, err := state.Read(ctx, stateTable, key)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		saiID, _ := strconv.ParseUint(fields["sai_id"], 10, 64)
		refcount, _ := strconv.Atoi(fields["refcount"])
		snapshot[key] = registry.Entry[A]{
			Key:      key,
			SAIID:    saiID,
			Refcount: refcount,
			Attrs:    decode(key, fields),
		}
	}
	reg.Restore(snapshot)
	return nil
}

// OnWarmBootEnd implements the common shape of spec.md §4.9 phase 3:
// load the registry back from its STATE_DB snapshot (spec.md §8
// scenario 5 — no SAI create/remove call is issued here, only the
// in-memory registry is rebuilt), then rebuild the reverse OID index so
// SAI notifications can resolve back to a registry key immediately
// after warm boot (spec.md §4.6).
func OnWarmBootEnd[A any](ctx context.Context, reg *registry.Registry[A], state *dbadapter.Adapter, stateTable string, decode func(key string, fields map[string]string) A) error {
	if err := Load(ctx, reg, state, stateTable, decode); err != nil {
		return err
	}
	reg.RebuildReverseIndex()
	return nil
}

// Package buffer implements the buffer pool/profile handler (spec.md
// §3's "Buffer pool/profile" row): a profile references a pool by name,
// and a pool is destroyed only once every profile referencing it has
// been destroyed.
package buffer

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fabricwire/swssd/pkg/consumer"
	"github.com/fabricwire/swssd/pkg/dbadapter"
	"github.com/fabricwire/swssd/pkg/handler"
	"github.com/fabricwire/swssd/pkg/handler/simple"
	"github.com/fabricwire/swssd/pkg/registry"
	"github.com/fabricwire/swssd/pkg/sai"
)

// PoolAttrs is one buffer pool's configuration.
type PoolAttrs struct {
	Size          uint64
	ThresholdMode string // "static" or "dynamic"
}

// ProfileAttrs is one buffer profile's configuration, referencing its
// owning pool by name.
type ProfileAttrs struct {
	Pool       string
	XON, XOFF  uint64
	Size       uint64
	Dynamic    string // dynamic threshold value, e.g. "3" for alpha
}

// Registry owns every live buffer pool and profile.
type Registry struct {
	pools    *registry.Registry[PoolAttrs]
	profiles *registry.Registry[ProfileAttrs]
	sai      sai.Client
}

// New creates a buffer pool/profile registry.
func New(client sai.Client) *Registry {
	return &Registry{
		pools:    registry.New[PoolAttrs]("BUFFER_POOL"),
		profiles: registry.New[ProfileAttrs]("BUFFER_PROFILE"),
		sai:      client,
	}
}

// RawPools/RawProfiles expose the underlying generic registries for
// warm-restart bake/load.
func (r *Registry) RawPools() *registry.Registry[PoolAttrs]       { return r.pools }
func (r *Registry) RawProfiles() *registry.Registry[ProfileAttrs] { return r.profiles }

// SetPool creates or updates a buffer pool.
func (r *Registry) SetPool(ctx context.Context, name string, attrs PoolAttrs) handler.Result {
	saiAttrs := sai.Attrs{"size": fmt.Sprintf("%d", attrs.Size), "threshold_mode": attrs.ThresholdMode}
	if e, ok := r.pools.Lookup(name); ok {
		if err := r.sai.SetAttribute(ctx, sai.ObjectBufferPool, e.SAIID, saiAttrs); err != nil {
			return handler.FromSAIError(err)
		}
		e.Attrs = attrs
		return handler.Ok()
	}
	oid, err := r.sai.Create(ctx, sai.ObjectBufferPool, saiAttrs)
	if err != nil {
		return handler.FromSAIError(err)
	}
	if _, _, err := r.pools.GetOrCreate(name, func() (uint64, PoolAttrs) { return oid, attrs }); err != nil {
		r.sai.Remove(ctx, sai.ObjectBufferPool, oid)
		return handler.Fail(err)
	}
	return handler.Ok()
}

// RemovePool destroys a buffer pool, refusing while any profile
// references it (spec.md §3 "pool destroyed only when all profiles
// destroyed").
func (r *Registry) RemovePool(ctx context.Context, name string) handler.Result {
	return simple.FromRegistryError(simple.DestroyIfUnreferenced(ctx, r.pools, r.sai, sai.ObjectBufferPool, name))
}

// SetProfile creates or updates a buffer profile bound to pool. The
// pool must already exist; binding bumps the pool's refcount exactly
// once per profile.
func (r *Registry) SetProfile(ctx context.Context, name string, attrs ProfileAttrs) handler.Result {
	poolEntry, ok := r.pools.Lookup(attrs.Pool)
	if !ok {
		return handler.Invalid(fmt.Errorf("buffer: profile %s: pool %s does not exist", name, attrs.Pool))
	}
	saiAttrs := sai.Attrs{
		"pool_id": fmt.Sprintf("%d", poolEntry.SAIID),
		"xon":     fmt.Sprintf("%d", attrs.XON),
		"xoff":    fmt.Sprintf("%d", attrs.XOFF),
		"size":    fmt.Sprintf("%d", attrs.Size),
	}

	if e, ok := r.profiles.Lookup(name); ok {
		if err := r.sai.SetAttribute(ctx, sai.ObjectBufferProfile, e.SAIID, saiAttrs); err != nil {
			return handler.FromSAIError(err)
		}
		if e.Attrs.Pool != attrs.Pool {
			r.pools.Decref(e.Attrs.Pool)
			r.pools.Incref(attrs.Pool)
		}
		e.Attrs = attrs
		return handler.Ok()
	}

	oid, err := r.sai.Create(ctx, sai.ObjectBufferProfile, saiAttrs)
	if err != nil {
		return handler.FromSAIError(err)
	}
	if _, _, err := r.profiles.GetOrCreate(name, func() (uint64, ProfileAttrs) { return oid, attrs }); err != nil {
		r.sai.Remove(ctx, sai.ObjectBufferProfile, oid)
		return handler.Fail(err)
	}
	if _, err := r.pools.Incref(attrs.Pool); err != nil {
		return handler.Fail(err)
	}
	return handler.Ok()
}

// RemoveProfile destroys a buffer profile and releases its pool
// reference.
func (r *Registry) RemoveProfile(ctx context.Context, name string) handler.Result {
	e, ok := r.profiles.Lookup(name)
	if !ok {
		return handler.NoOp()
	}
	if err := r.sai.Remove(ctx, sai.ObjectBufferProfile, e.SAIID); err != nil {
		return handler.FromSAIError(err)
	}
	pool := e.Attrs.Pool
	if err := r.profiles.Destroy(name); err != nil {
		return handler.Fail(err)
	}
	if _, err := r.pools.Decref(pool); err != nil {
		return handler.Fail(err)
	}
	return handler.Ok()
}

// Handler adapts a Registry to the dispatcher's handler.Handler
// contract for BUFFER_POOL_TABLE and BUFFER_PROFILE_TABLE, registered
// together since a profile's pool binding must resolve against live
// pool state regardless of which table a mutation lands on.
type Handler struct {
	reg   *Registry
	state *dbadapter.Adapter
}

// NewHandler wraps reg as a dispatcher handler.
func NewHandler(reg *Registry, state *dbadapter.Adapter) *Handler {
	return &Handler{reg: reg, state: state}
}

func (h *Handler) Name() string { return "buffer" }

func (h *Handler) Priority() int { return 5 }

func parseUint(s string) uint64 {
	n, _ := strconv.ParseUint(s, 10, 64)
	return n
}

// ProcessBatch implements handler.Handler for BUFFER_POOL_TABLE and
// BUFFER_PROFILE_TABLE mutations.
func (h *Handler) ProcessBatch(ctx context.Context, batch []consumer.Mutation) []handler.Result {
	results := make([]handler.Result, len(batch))
	for i, m := range batch {
		switch m.Table {
		case "BUFFER_POOL_TABLE", "BUFFER_POOL":
			if m.Op == dbadapter.Delete {
				results[i] = h.reg.RemovePool(ctx, m.Key)
				continue
			}
			results[i] = h.reg.SetPool(ctx, m.Key, PoolAttrs{
				Size:          parseUint(m.Fields["size"]),
				ThresholdMode: m.Fields["threshold_mode"],
			})
		default: // BUFFER_PROFILE_TABLE / BUFFER_PROFILE
			if m.Op == dbadapter.Delete {
				results[i] = h.reg.RemoveProfile(ctx, m.Key)
				continue
			}
			results[i] = h.reg.SetProfile(ctx, m.Key, ProfileAttrs{
				Pool: m.Fields["pool"],
				XON:  parseUint(m.Fields["xon"]), XOFF: parseUint(m.Fields["xoff"]),
				Size: parseUint(m.Fields["size"]), Dynamic: m.Fields["dynamic_th"],
			})
		}
	}
	return results
}

// Bake snapshots pools and profiles onto STATE_DB ahead of a warm
// restart (spec.md §4.9 phase 1).
func (h *Handler) Bake(ctx context.Context) (bool, error) {
	bakedPools, err := simple.Bake(ctx, h.reg.RawPools(), h.state, "BUFFER_POOL_TABLE", func(a PoolAttrs) map[string]string {
		return map[string]string{"size": strconv.FormatUint(a.Size, 10), "threshold_mode": a.ThresholdMode}
	})
	if err != nil {
		return bakedPools, err
	}
	bakedProfiles, err := simple.Bake(ctx, h.reg.RawProfiles(), h.state, "BUFFER_PROFILE_TABLE", func(a ProfileAttrs) map[string]string {
		return map[string]string{"pool": a.Pool, "xon": strconv.FormatUint(a.XON, 10), "xoff": strconv.FormatUint(a.XOFF, 10), "size": strconv.FormatUint(a.Size, 10)}
	})
	return bakedPools || bakedProfiles, err
}

// OnWarmBootEnd reloads both registries from their STATE_DB snapshots
// and rebuilds their reverse OID indices (spec.md §4.9 phase 3).
func (h *Handler) OnWarmBootEnd(ctx context.Context) error {
	if err := simple.OnWarmBootEnd(ctx, h.reg.RawPools(), h.state, "BUFFER_POOL_TABLE", func(key string, fields map[string]string) PoolAttrs {
		size, _ := strconv.ParseUint(fields["size"], 10, 64)
		return PoolAttrs{Size: size, ThresholdMode: fields["threshold_mode"]}
	}); err != nil {
		return err
	}
	return simple.OnWarmBootEnd(ctx, h.reg.RawProfiles(), h.state, "BUFFER_PROFILE_TABLE", func(key string, fields map[string]string) ProfileAttrs {
		xon, _ := strconv.ParseUint(fields["xon"], 10, 64)
		xoff, _ := strconv.ParseUint(fields["xoff"], 10, 64)
		size, _ := strconv.ParseUint(fields["size"], 10, 64)
		return ProfileAttrs{Pool: fields["pool"], XON: xon, XOFF: xoff, Size: size}
	})
}

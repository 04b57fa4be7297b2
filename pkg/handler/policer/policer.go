// Package policer implements the policer handler (spec.md §3's
// "Policer" row): refcount floor equal to the number of referencing
// traps or ACL rules. CoPP trap groups and ACL rules call AddRef/Release
// as they bind a policer.
package policer

import (
	"context"
	"strconv"

	"github.com/fabricwire/swssd/pkg/consumer"
	"github.com/fabricwire/swssd/pkg/dbadapter"
	"github.com/fabricwire/swssd/pkg/handler"
	"github.com/fabricwire/swssd/pkg/handler/simple"
	"github.com/fabricwire/swssd/pkg/registry"
	"github.com/fabricwire/swssd/pkg/sai"
)

// Mode is the metering mode.
type Mode int

const (
	ModeSrTCM Mode = iota
	ModeTrTCM
)

// Attrs is one policer's configuration.
type Attrs struct {
	MeterType           string // "packets" or "bytes"
	Mode                Mode
	CIR, PIR, CBS, PBS  uint64
	GreenAction         string
	YellowAction        string
	RedAction           string
}

// Registry owns every live policer.
type Registry struct {
	reg *registry.Registry[Attrs]
	sai sai.Client
}

// New creates a policer registry.
func New(client sai.Client) *Registry {
	return &Registry{reg: registry.New[Attrs]("POLICER"), sai: client}
}

// Raw exposes the underlying generic registry for warm-restart bake/load.
func (r *Registry) Raw() *registry.Registry[Attrs] { return r.reg }

func toSAIAttrs(a Attrs) sai.Attrs {
	return sai.Attrs{
		"meter_type":    a.MeterType,
		"cir":           strconv.FormatUint(a.CIR, 10),
		"pir":           strconv.FormatUint(a.PIR, 10),
		"cbs":           strconv.FormatUint(a.CBS, 10),
		"pbs":           strconv.FormatUint(a.PBS, 10),
		"green_action":  a.GreenAction,
		"yellow_action": a.YellowAction,
		"red_action":    a.RedAction,
	}
}

// Set creates or updates a policer.
func (r *Registry) Set(ctx context.Context, name string, attrs Attrs) handler.Result {
	saiAttrs := toSAIAttrs(attrs)
	if e, ok := r.reg.Lookup(name); ok {
		if err := r.sai.SetAttribute(ctx, sai.ObjectPolicer, e.SAIID, saiAttrs); err != nil {
			return handler.FromSAIError(err)
		}
		e.Attrs = attrs
		return handler.Ok()
	}
	oid, err := r.sai.Create(ctx, sai.ObjectPolicer, saiAttrs)
	if err != nil {
		return handler.FromSAIError(err)
	}
	if _, _, err := r.reg.GetOrCreate(name, func() (uint64, Attrs) { return oid, attrs }); err != nil {
		r.sai.Remove(ctx, sai.ObjectPolicer, oid)
		return handler.Fail(err)
	}
	return handler.Ok()
}

// AddRef bumps a policer's refcount when a trap or ACL rule binds it.
func (r *Registry) AddRef(name string) (int, error) { return r.reg.Incref(name) }

// Release drops one reference.
func (r *Registry) Release(name string) (int, error) { return r.reg.Decref(name) }

// Remove deletes a policer, refusing while any trap/rule still
// references it.
func (r *Registry) Remove(ctx context.Context, name string) handler.Result {
	return simple.FromRegistryError(simple.DestroyIfUnreferenced(ctx, r.reg, r.sai, sai.ObjectPolicer, name))
}

// Handler adapts a Registry to the dispatcher's handler.Handler
// contract for POLICER_TABLE.
type Handler struct {
	reg   *Registry
	state *dbadapter.Adapter
}

// NewHandler wraps reg as a dispatcher handler.
func NewHandler(reg *Registry, state *dbadapter.Adapter) *Handler {
	return &Handler{reg: reg, state: state}
}

func (h *Handler) Name() string { return "policer" }

// Priority runs ahead of ACL and CoPP, whose trap/rule actions bind
// policers by name.
func (h *Handler) Priority() int { return 10 }

func attrsFromFields(fields map[string]string) Attrs {
	mode := ModeSrTCM
	if fields["meter_mode"] == "trtcm" {
		mode = ModeTrTCM
	}
	parse := func(key string) uint64 {
		n, _ := strconv.ParseUint(fields[key], 10, 64)
		return n
	}
	return Attrs{
		MeterType:    fields["meter_type"],
		Mode:         mode,
		CIR:          parse("cir"),
		PIR:          parse("pir"),
		CBS:          parse("cbs"),
		PBS:          parse("pbs"),
		GreenAction:  fields["green_action"],
		YellowAction: fields["yellow_action"],
		RedAction:    fields["red_action"],
	}
}

// ProcessBatch implements handler.Handler for POLICER_TABLE mutations.
func (h *Handler) ProcessBatch(ctx context.Context, batch []consumer.Mutation) []handler.Result {
	results := make([]handler.Result, len(batch))
	for i, m := range batch {
		if m.Op == dbadapter.Delete {
			results[i] = h.reg.Remove(ctx, m.Key)
			continue
		}
		results[i] = h.reg.Set(ctx, m.Key, attrsFromFields(m.Fields))
	}
	return results
}

// Bake snapshots every policer onto STATE_DB ahead of a warm restart
// (spec.md §4.9 phase 1).
func (h *Handler) Bake(ctx context.Context) (bool, error) {
	return simple.Bake(ctx, h.reg.Raw(), h.state, "POLICER_TABLE", func(a Attrs) map[string]string {
		fields := toSAIAttrs(a)
		out := make(map[string]string, len(fields))
		for k, v := range fields {
			out[k] = v
		}
		return out
	})
}

// OnWarmBootEnd reloads the policer registry from its STATE_DB
// snapshot and rebuilds its reverse OID index (spec.md §4.9 phase 3).
func (h *Handler) OnWarmBootEnd(ctx context.Context) error {
	return simple.OnWarmBootEnd(ctx, h.reg.Raw(), h.state, "POLICER_TABLE", func(key string, fields map[string]string) Attrs {
		return attrsFromFields(fields)
	})
}

// Package acl implements the ACL table/rule handler (spec.md §3's "ACL
// table/rule" row): priority uniqueness within a table is not required,
// and ties break on insertion order.
package acl

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fabricwire/swssd/pkg/consumer"
	"github.com/fabricwire/swssd/pkg/dbadapter"
	"github.com/fabricwire/swssd/pkg/handler"
	"github.com/fabricwire/swssd/pkg/handler/simple"
	"github.com/fabricwire/swssd/pkg/registry"
	"github.com/fabricwire/swssd/pkg/sai"
)

// TableAttrs is one ACL table's configuration.
type TableAttrs struct {
	Stage     string // "ingress" or "egress"
	BindPoint string
}

// RuleAttrs is one ACL rule's configuration: match set, action set,
// priority, and (for a redirect rule) the mirror session it targets.
type RuleAttrs struct {
	Table        string
	Priority     int
	Matches      map[string]string
	Actions      map[string]string
	RedirectName string // mirror session name, or ""
	seq          uint64 // insertion sequence, for tie-break ordering
}

// Registry owns every live ACL table and rule.
type Registry struct {
	tables  *registry.Registry[TableAttrs]
	rules   *registry.Registry[RuleAttrs]
	sai     sai.Client
	nextSeq uint64
}

// New creates an ACL table/rule registry.
func New(client sai.Client) *Registry {
	return &Registry{
		tables: registry.New[TableAttrs]("ACL_TABLE"),
		rules:  registry.New[RuleAttrs]("ACL_RULE"),
		sai:    client,
	}
}

// RawTables/RawRules expose the underlying generic registries for
// warm-restart bake/load.
func (r *Registry) RawTables() *registry.Registry[TableAttrs] { return r.tables }
func (r *Registry) RawRules() *registry.Registry[RuleAttrs]   { return r.rules }

// SetTable creates or updates an ACL table.
func (r *Registry) SetTable(ctx context.Context, name string, attrs TableAttrs) handler.Result {
	saiAttrs := sai.Attrs{"stage": attrs.Stage, "bind_point": attrs.BindPoint}
	if e, ok := r.tables.Lookup(name); ok {
		if err := r.sai.SetAttribute(ctx, sai.ObjectACLTable, e.SAIID, saiAttrs); err != nil {
			return handler.FromSAIError(err)
		}
		e.Attrs = attrs
		return handler.Ok()
	}
	oid, err := r.sai.Create(ctx, sai.ObjectACLTable, saiAttrs)
	if err != nil {
		return handler.FromSAIError(err)
	}
	if _, _, err := r.tables.GetOrCreate(name, func() (uint64, TableAttrs) { return oid, attrs }); err != nil {
		r.sai.Remove(ctx, sai.ObjectACLTable, oid)
		return handler.Fail(err)
	}
	return handler.Ok()
}

// RemoveTable destroys an ACL table, refusing while any rule remains.
func (r *Registry) RemoveTable(ctx context.Context, name string) handler.Result {
	return simple.FromRegistryError(simple.DestroyIfUnreferenced(ctx, r.tables, r.sai, sai.ObjectACLTable, name))
}

func ruleKey(table, rule string) string { return table + "|" + rule }

// SetRule creates or updates an ACL rule within table. The table must
// already exist and gains one reference per rule, refused for
// destruction while any rule remains bound.
func (r *Registry) SetRule(ctx context.Context, table, rule string, attrs RuleAttrs) handler.Result {
	if _, ok := r.tables.Lookup(table); !ok {
		return handler.Invalid(fmt.Errorf("acl: rule %s/%s: table does not exist", table, rule))
	}
	key := ruleKey(table, rule)
	attrs.Table = table
	saiAttrs := sai.Attrs{"priority": fmt.Sprintf("%d", attrs.Priority)}

	if e, ok := r.rules.Lookup(key); ok {
		if err := r.sai.SetAttribute(ctx, sai.ObjectACLEntry, e.SAIID, saiAttrs); err != nil {
			return handler.FromSAIError(err)
		}
		attrs.seq = e.Attrs.seq
		e.Attrs = attrs
		return handler.Ok()
	}

	oid, err := r.sai.Create(ctx, sai.ObjectACLEntry, saiAttrs)
	if err != nil {
		return handler.FromSAIError(err)
	}
	attrs.seq = r.nextSeq
	r.nextSeq++
	if _, _, err := r.rules.GetOrCreate(key, func() (uint64, RuleAttrs) { return oid, attrs }); err != nil {
		r.sai.Remove(ctx, sai.ObjectACLEntry, oid)
		return handler.Fail(err)
	}
	if _, err := r.tables.Incref(table); err != nil {
		return handler.Fail(err)
	}
	return handler.Ok()
}

// RemoveRule destroys an ACL rule and releases its table's reference.
func (r *Registry) RemoveRule(ctx context.Context, table, rule string) handler.Result {
	key := ruleKey(table, rule)
	e, ok := r.rules.Lookup(key)
	if !ok {
		return handler.NoOp()
	}
	if err := r.sai.Remove(ctx, sai.ObjectACLEntry, e.SAIID); err != nil {
		return handler.FromSAIError(err)
	}
	if err := r.rules.Destroy(key); err != nil {
		return handler.Fail(err)
	}
	if _, err := r.tables.Decref(table); err != nil {
		return handler.Fail(err)
	}
	return handler.Ok()
}

// OrderedRules returns every rule bound to table, sorted by priority
// (descending, matching the convention that a higher priority number
// is evaluated first) with ties broken by insertion order — spec.md §3
// "Priority uniqueness within a table is not required; tie-break on
// priority uses insertion order".
func (r *Registry) OrderedRules(table string) []RuleAttrs {
	var out []RuleAttrs
	for _, key := range r.rules.Keys() {
		e, ok := r.rules.Lookup(key)
		if !ok || e.Attrs.Table != table {
			continue
		}
		out = append(out, e.Attrs)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// Handler adapts a Registry to the dispatcher's handler.Handler
// contract for ACL_TABLE and ACL_RULE_TABLE, registered together since
// a rule's table binding must resolve against live table state
// regardless of which table a mutation lands on.
type Handler struct {
	reg   *Registry
	state *dbadapter.Adapter
}

// NewHandler wraps reg as a dispatcher handler.
func NewHandler(reg *Registry, state *dbadapter.Adapter) *Handler {
	return &Handler{reg: reg, state: state}
}

func (h *Handler) Name() string { return "acl" }

// Priority runs after mirror/policer, whose names a rule's redirect or
// policer-binding action references.
func (h *Handler) Priority() int { return 30 }

// ruleAttrsFromFields splits rule fields into matches ("MATCH_*") and
// actions ("ACTION_*"), matching SONiC's ACL_RULE field convention;
// PRIORITY and REDIRECT_ACTION are recognized separately.
func ruleAttrsFromFields(fields map[string]string) RuleAttrs {
	attrs := RuleAttrs{Matches: map[string]string{}, Actions: map[string]string{}}
	for k, v := range fields {
		switch {
		case k == "PRIORITY":
			attrs.Priority, _ = strconv.Atoi(v)
		case k == "REDIRECT_ACTION":
			attrs.RedirectName = v
		case strings.HasPrefix(k, "MATCH_"):
			attrs.Matches[strings.TrimPrefix(k, "MATCH_")] = v
		case strings.HasPrefix(k, "ACTION_"):
			attrs.Actions[strings.TrimPrefix(k, "ACTION_")] = v
		}
	}
	return attrs
}

// ProcessBatch implements handler.Handler for ACL_TABLE and
// ACL_RULE_TABLE mutations.
func (h *Handler) ProcessBatch(ctx context.Context, batch []consumer.Mutation) []handler.Result {
	results := make([]handler.Result, len(batch))
	for i, m := range batch {
		switch m.Table {
		case "ACL_TABLE":
			if m.Op == dbadapter.Delete {
				results[i] = h.reg.RemoveTable(ctx, m.Key)
				continue
			}
			results[i] = h.reg.SetTable(ctx, m.Key, TableAttrs{Stage: m.Fields["stage"], BindPoint: m.Fields["bind_point"]})
		default: // ACL_RULE_TABLE
			i2 := strings.IndexByte(m.Key, '|')
			if i2 < 0 {
				results[i] = handler.Invalid(fmt.Errorf("acl: malformed rule key %q", m.Key))
				continue
			}
			table, rule := m.Key[:i2], m.Key[i2+1:]
			if m.Op == dbadapter.Delete {
				results[i] = h.reg.RemoveRule(ctx, table, rule)
				continue
			}
			results[i] = h.reg.SetRule(ctx, table, rule, ruleAttrsFromFields(m.Fields))
		}
	}
	return results
}

// Bake snapshots tables and rules onto STATE_DB ahead of a warm restart
// (spec.md §4.9 phase 1).
func (h *Handler) Bake(ctx context.Context) (bool, error) {
	bakedTables, err := simple.Bake(ctx, h.reg.RawTables(), h.state, "ACL_TABLE_TABLE", func(a TableAttrs) map[string]string {
		return map[string]string{"stage": a.Stage, "bind_point": a.BindPoint}
	})
	if err != nil {
		return bakedTables, err
	}
	bakedRules, err := simple.Bake(ctx, h.reg.RawRules(), h.state, "ACL_RULE_TABLE", func(a RuleAttrs) map[string]string {
		return map[string]string{"table": a.Table, "priority": strconv.Itoa(a.Priority), "redirect": a.RedirectName}
	})
	return bakedTables || bakedRules, err
}

// OnWarmBootEnd reloads both registries from their STATE_DB snapshots
// and rebuilds their reverse OID indices (spec.md §4.9 phase 3).
func (h *Handler) OnWarmBootEnd(ctx context.Context) error {
	if err := simple.OnWarmBootEnd(ctx, h.reg.RawTables(), h.state, "ACL_TABLE_TABLE", func(key string, fields map[string]string) TableAttrs {
		return TableAttrs{Stage: fields["stage"], BindPoint: fields["bind_point"]}
	}); err != nil {
		return err
	}
	return simple.OnWarmBootEnd(ctx, h.reg.RawRules(), h.state, "ACL_RULE_TABLE", func(key string, fields map[string]string) RuleAttrs {
		priority, _ := strconv.Atoi(fields["priority"])
		return RuleAttrs{Table: fields["table"], Priority: priority, RedirectName: fields["redirect"]}
	})
}

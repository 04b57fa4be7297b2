// Package nexthop owns the NEXT_HOP registry: one SAI next-hop object
// per distinct (alias, ip, vni, MPLS stack, weight, SRv6 fields) tuple,
// ref-counted by the next-hop groups that reference it (spec.md §4.5
// "Next-hop group handler" step 4).
//
// Grounded on pkg/registry's generic ref-counted registry and on the
// teacher's pkg/newtron/network/node/interface_ops.go validate-then-act
// shape for Resolve's precondition checks.
package nexthop

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fabricwire/swssd/pkg/registry"
	"github.com/fabricwire/swssd/pkg/sai"
	"github.com/fabricwire/swssd/pkg/swtypes"
)

// Attrs is the semantic payload of one next-hop entry.
type Attrs struct {
	Alias     string
	IP        string
	VNI       swtypes.VNI
	MPLSStack []uint32
	Weight    int
	SRv6SID   string
}

// CanonicalKey renders a total order over next-hop identity so that two
// textually-different but semantically-identical specs land on the
// same registry key (spec.md §4.5 step 1's per-member ordering applied
// to a single next-hop).
func (a Attrs) CanonicalKey() string {
	var b strings.Builder
	b.WriteString(a.Alias)
	b.WriteByte('|')
	b.WriteString(a.IP)
	b.WriteByte('|')
	fmt.Fprintf(&b, "%d", a.VNI)
	b.WriteByte('|')
	for i, label := range a.MPLSStack {
		if i > 0 {
			b.WriteByte('-')
		}
		fmt.Fprintf(&b, "%d", label)
	}
	b.WriteByte('|')
	fmt.Fprintf(&b, "%d", a.Weight)
	b.WriteByte('|')
	b.WriteString(a.SRv6SID)
	return b.String()
}

// Registry owns every live next-hop entry.
type Registry struct {
	reg *registry.Registry[Attrs]
	sai sai.Client
}

// New creates a next-hop registry bound to a SAI client.
func New(client sai.Client) *Registry {
	return &Registry{reg: registry.New[Attrs]("NEXT_HOP"), sai: client}
}

// Raw exposes the underlying generic registry for warm-restart bake/load.
func (r *Registry) Raw() *registry.Registry[Attrs] { return r.reg }

// Resolve looks up or creates the next-hop entry for attrs, bumping its
// refcount exactly once per call (spec.md §4.5 step 4: "bump each
// member's refcount"). On creation failure no entry is left behind and
// the refcount is never bumped.
func (r *Registry) Resolve(ctx context.Context, attrs Attrs) (key string, saiID uint64, err error) {
	key = attrs.CanonicalKey()
	if e, ok := r.reg.Lookup(key); ok {
		if _, err := r.reg.Incref(key); err != nil {
			return "", 0, err
		}
		return key, e.SAIID, nil
	}

	saiAttrs := toSAIAttrs(attrs)
	oid, createErr := r.sai.Create(ctx, sai.ObjectNextHop, saiAttrs)
	if createErr != nil {
		return "", 0, createErr
	}
	e, created, err := r.reg.GetOrCreate(key, func() (uint64, Attrs) { return oid, attrs })
	if err != nil {
		r.sai.Remove(ctx, sai.ObjectNextHop, oid)
		return "", 0, err
	}
	if !created {
		// Lost a race with a concurrent resolve for the same key (only
		// possible across a warm-restart reconciliation boundary, never
		// within one dispatcher tick per spec.md §5); release the
		// duplicate SAI object and use the winner's id.
		r.sai.Remove(ctx, sai.ObjectNextHop, oid)
	}
	if _, err := r.reg.Incref(key); err != nil {
		return "", 0, err
	}
	return key, e.SAIID, nil
}

// Release drops one reference; when it reaches zero the SAI object is
// destroyed and the registry entry removed.
func (r *Registry) Release(ctx context.Context, key string) error {
	n, err := r.reg.Decref(key)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	e, ok := r.reg.Lookup(key)
	if !ok {
		return nil
	}
	if err := r.sai.Remove(ctx, sai.ObjectNextHop, e.SAIID); err != nil {
		return err
	}
	return r.reg.Destroy(key)
}

func toSAIAttrs(a Attrs) sai.Attrs {
	out := sai.Attrs{"alias": a.Alias, "ip": a.IP}
	if a.VNI != 0 {
		out["vni"] = strconv.FormatUint(uint64(a.VNI), 10)
	}
	if len(a.MPLSStack) > 0 {
		labels := make([]string, len(a.MPLSStack))
		for i, l := range a.MPLSStack {
			labels[i] = strconv.FormatUint(uint64(l), 10)
		}
		out["mpls_stack"] = strings.Join(labels, "-")
	}
	if a.Weight != 0 {
		out["weight"] = strconv.Itoa(a.Weight)
	}
	if a.SRv6SID != "" {
		out["srv6_sid"] = a.SRv6SID
	}
	return out
}

// SortMembers establishes the total order spec.md §4.5 step 1 requires
// over a next-hop-group's members before canonicalization.
func SortMembers(members []Attrs) {
	sort.Slice(members, func(i, j int) bool {
		return members[i].CanonicalKey() < members[j].CanonicalKey()
	})
}

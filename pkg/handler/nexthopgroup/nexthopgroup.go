// Package nexthopgroup implements spec.md §4.5's next-hop group
// handler: canonicalize a route's next-hop set, reuse or allocate the
// matching SAI next-hop group, and roll back cleanly on any partial
// SAI failure. Groups that cannot fully resolve their members become
// temporary and are atomically promoted to permanent once resolution
// completes.
//
// Grounded on pkg/handler/nexthop.Registry for member resolution, and
// on the teacher's pkg/newtron/network/node/portchannel_ops.go
// "validate every member before committing any" discipline, generalized
// into the explicit rollback loop spec.md §4.5 step 5 requires.
package nexthopgroup

import (
	"context"
	"fmt"
	"strings"

	"github.com/fabricwire/swssd/pkg/handler/nexthop"
	"github.com/fabricwire/swssd/pkg/registry"
	"github.com/fabricwire/swssd/pkg/sai"
)

// GroupAttrs is the semantic payload of one next-hop group entry.
type GroupAttrs struct {
	MemberKeys []string // canonical nexthop.Attrs keys, in canonical order
	IsTemp     bool
}

// CanonicalKey joins the (already-sorted) member keys into the group's
// registry key (spec.md §4.5 step 1).
func CanonicalKey(memberKeys []string) string {
	return strings.Join(memberKeys, ",")
}

// DefaultBucketSize is the fixed bucket count a weighted (fine-grained
// ECMP / SPREAD) group divides proportionally among its members,
// grounded on orchagent/src/fg_nhg/types.rs's FgNhgEntry.bucket_size.
const DefaultBucketSize = 256

// hasWeightedMembers reports whether any member carries a weight above
// the unweighted default of 1, the signal that triggers SPREAD bucket
// assignment rather than a flat per-member share.
func hasWeightedMembers(members []nexthop.Attrs) bool {
	for _, m := range members {
		if m.Weight > 1 {
			return true
		}
	}
	return false
}

// WeightBuckets divides bucketSize among members proportionally to
// their Weight, using largest-remainder rounding so the shares sum to
// exactly bucketSize: orchagent/src/fg_nhg/types.rs's FgNextHop.weight
// drives a fixed-size bucket table rather than a raw SAI weight
// passthrough.
func WeightBuckets(members []nexthop.Attrs, bucketSize int) []int {
	totalWeight := 0
	for _, m := range members {
		w := m.Weight
		if w < 1 {
			w = 1
		}
		totalWeight += w
	}
	if totalWeight == 0 {
		return make([]int, len(members))
	}

	shares := make([]int, len(members))
	remainders := make([]float64, len(members))
	assigned := 0
	for i, m := range members {
		w := m.Weight
		if w < 1 {
			w = 1
		}
		exact := float64(w) * float64(bucketSize) / float64(totalWeight)
		shares[i] = int(exact)
		remainders[i] = exact - float64(shares[i])
		assigned += shares[i]
	}
	for assigned < bucketSize {
		best := -1
		for i := range remainders {
			if best == -1 || remainders[i] > remainders[best] {
				best = i
			}
		}
		shares[best]++
		remainders[best] = -1 // already topped up, no longer a candidate
		assigned++
	}
	return shares
}

// Registry owns every live next-hop group.
type Registry struct {
	reg *registry.Registry[GroupAttrs]
	nh  *nexthop.Registry
	sai sai.Client
}

// New creates a next-hop group registry.
func New(nh *nexthop.Registry, client sai.Client) *Registry {
	return &Registry{reg: registry.New[GroupAttrs]("NEXT_HOP_GROUP"), nh: nh, sai: client}
}

// Raw exposes the underlying generic registry for warm-restart bake/load.
func (r *Registry) Raw() *registry.Registry[GroupAttrs] { return r.reg }

// Resolve implements spec.md §4.5's next-hop group handler steps 1-5.
// members must already be in canonical order (nexthop.SortMembers).
// partial reports whether fewer than all requested members resolved —
// the caller uses this to decide is_temp (step 6).
func (r *Registry) Resolve(ctx context.Context, members []nexthop.Attrs) (key string, saiID uint64, partial bool, err error) {
	memberKeys := make([]string, len(members))
	for i, m := range members {
		memberKeys[i] = m.CanonicalKey()
	}
	key = CanonicalKey(memberKeys)

	if e, ok := r.reg.Lookup(key); ok {
		if _, err := r.reg.Incref(key); err != nil {
			return "", 0, false, err
		}
		return key, e.SAIID, e.Attrs.IsTemp, nil
	}

	return r.createGroup(ctx, key, members, memberKeys)
}

// createGroup allocates a SAI next-hop group and its members, rolling
// back everything created so far on the first failure (spec.md §4.5
// step 5).
func (r *Registry) createGroup(ctx context.Context, key string, members []nexthop.Attrs, memberKeys []string) (string, uint64, bool, error) {
	groupID, err := r.sai.Create(ctx, sai.ObjectNextHopGroup, sai.Attrs{})
	if err != nil {
		return "", 0, false, err
	}

	var resolvedKeys []string // member nexthop keys successfully Resolve()d, for rollback
	var memberOIDs []uint64   // NEXT_HOP_GROUP_MEMBER object ids created, for rollback

	rollback := func() {
		for _, oid := range memberOIDs {
			r.sai.Remove(ctx, sai.ObjectNextHopGroupMbr, oid)
		}
		for _, mk := range resolvedKeys {
			r.nh.Release(ctx, mk)
		}
		r.sai.Remove(ctx, sai.ObjectNextHopGroup, groupID)
	}

	// A weighted group divides DefaultBucketSize proportionally across
	// members (fine-grained ECMP / SPREAD); an unweighted group leaves
	// SAI's own default per-member weight in place.
	var buckets []int
	if hasWeightedMembers(members) {
		buckets = WeightBuckets(members, DefaultBucketSize)
	}

	partial := false
	for i, m := range members {
		mk, nhID, err := r.nh.Resolve(ctx, m)
		if err != nil {
			if sai.IsTransient(err) {
				rollback()
				return "", 0, false, err
			}
			// Permanent failure resolving this one member: the group
			// becomes temporary rather than aborting entirely, per
			// spec.md §4.5 step 6.
			partial = true
			continue
		}
		resolvedKeys = append(resolvedKeys, mk)

		memberAttrs := sai.Attrs{
			"next_hop_group_id": fmt.Sprintf("%d", groupID),
			"next_hop_id":       fmt.Sprintf("%d", nhID),
		}
		if buckets != nil {
			memberAttrs["weight"] = fmt.Sprintf("%d", buckets[i])
		}
		memberOID, err := r.sai.Create(ctx, sai.ObjectNextHopGroupMbr, memberAttrs)
		if err != nil {
			rollback()
			return "", 0, false, err
		}
		memberOIDs = append(memberOIDs, memberOID)
	}

	if len(resolvedKeys) == 0 && len(members) > 0 {
		rollback()
		return "", 0, false, fmt.Errorf("nexthopgroup: no members resolved for %s", key)
	}

	attrs := GroupAttrs{MemberKeys: memberKeys, IsTemp: partial}
	e, _, err := r.reg.GetOrCreate(key, func() (uint64, GroupAttrs) { return groupID, attrs })
	if err != nil {
		rollback()
		return "", 0, false, err
	}
	if _, err := r.reg.Incref(key); err != nil {
		rollback()
		return "", 0, false, err
	}
	return key, e.SAIID, partial, nil
}

// PromoteToPermanent atomically replaces a temporary group's entry with
// a now-fully-resolved permanent one, carrying over the existing
// refcount so referencing routes see uninterrupted forwarding (spec.md
// §4.5 step 6: "atomically replace it ... so that references (routes)
// see uninterrupted forwarding").
func (r *Registry) PromoteToPermanent(oldKey, newKey string) error {
	old, ok := r.reg.Lookup(oldKey)
	if !ok {
		return fmt.Errorf("nexthopgroup: promote: %s not found", oldKey)
	}
	newEntry, ok := r.reg.Lookup(newKey)
	if !ok {
		return fmt.Errorf("nexthopgroup: promote: target %s not found", newKey)
	}
	if oldKey == newKey {
		newEntry.Attrs.IsTemp = false
		return nil
	}
	for i := 0; i < old.Refcount; i++ {
		if _, err := r.reg.Incref(newKey); err != nil {
			return err
		}
	}
	newEntry.Attrs.IsTemp = false
	return r.reg.Destroy(oldKey)
}

// Release drops one reference; when it reaches zero the SAI group and
// every remaining member are destroyed.
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
	for _, mk := range e.Attrs.MemberKeys {
		r.nh.Release(ctx, mk)
	}
	if err := r.sai.Remove(ctx, sai.ObjectNextHopGroup, e.SAIID); err != nil {
		return err
	}
	return r.reg.Destroy(key)
}

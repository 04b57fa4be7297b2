package route

import (
	"context"
	"testing"

	"github.com/fabricwire/swssd/pkg/consumer"
	"github.com/fabricwire/swssd/pkg/dbadapter"
	"github.com/fabricwire/swssd/pkg/handler"
	"github.com/fabricwire/swssd/pkg/handler/nexthop"
	"github.com/fabricwire/swssd/pkg/handler/nexthopgroup"
	"github.com/fabricwire/swssd/pkg/handler/vrf"
	"github.com/fabricwire/swssd/pkg/sai"
)

// newFixture pre-creates VRF "default", which every test routes into.
func newFixture() (*Registry, *nexthopgroup.Registry, *sai.Mock) {
	m := sai.NewMock()
	nh := nexthop.New(m)
	nhg := nexthopgroup.New(nh, m)
	vrfs := vrf.New(m)
	vrfs.Set(context.Background(), "default")
	return New(nhg, vrfs, m), nhg, m
}

func TestSetCreatesNewRoute(t *testing.T) {
	r, _, m := newFixture()
	members := []nexthop.Attrs{{Alias: "Ethernet0", IP: "10.0.0.1"}}

	res := r.Set(context.Background(), "default", "10.1.0.0/24", members)
	if res.Outcome != handler.Success {
		t.Fatalf("Set = %v, want Success", res.Outcome)
	}
	if m.Count(sai.ObjectRoute) != 1 {
		t.Fatalf("expected one SAI route, got %d", m.Count(sai.ObjectRoute))
	}
}

func TestSetSwitchesNHGMakeBeforeBreak(t *testing.T) {
	r, nhg, m := newFixture()
	a := []nexthop.Attrs{{Alias: "Ethernet0", IP: "10.0.0.1"}}
	b := []nexthop.Attrs{{Alias: "Ethernet4", IP: "10.0.0.2"}}

	res := r.Set(context.Background(), "default", "10.1.0.0/24", a)
	if res.Outcome != handler.Success {
		t.Fatalf("first Set = %v", res.Outcome)
	}
	oldKey, _, _, err := nhg.Resolve(context.Background(), a)
	if err != nil {
		t.Fatal(err)
	}
	nhg.Release(context.Background(), oldKey) // undo the probe Incref

	res = r.Set(context.Background(), "default", "10.1.0.0/24", b)
	if res.Outcome != handler.Success {
		t.Fatalf("second Set = %v", res.Outcome)
	}
	if m.Count(sai.ObjectRoute) != 1 {
		t.Fatalf("expected route object reused not duplicated, count = %d", m.Count(sai.ObjectRoute))
	}
	// The old group should have been released back to zero refcount and
	// destroyed once the route stopped referencing it.
	if _, ok := nhg.Raw().Lookup(oldKey); ok {
		t.Fatal("expected old next-hop group released after make-before-break switch")
	}
}

func TestRemoveReleasesNHGAndDestroysRoute(t *testing.T) {
	r, nhg, m := newFixture()
	members := []nexthop.Attrs{{Alias: "Ethernet0", IP: "10.0.0.1"}}

	r.Set(context.Background(), "default", "10.1.0.0/24", members)
	res := r.Remove(context.Background(), "default", "10.1.0.0/24")
	if res.Outcome != handler.Success {
		t.Fatalf("Remove = %v, want Success", res.Outcome)
	}
	if m.Count(sai.ObjectRoute) != 0 {
		t.Fatal("expected route object destroyed")
	}
	if nhg.Raw().Len() != 0 {
		t.Fatal("expected next-hop group released to zero and destroyed")
	}
}

func TestRemoveUnknownRouteIsNoOp(t *testing.T) {
	r, _, _ := newFixture()
	res := r.Remove(context.Background(), "default", "10.9.0.0/24")
	if res.Outcome != handler.Ignore {
		t.Fatalf("Remove on unknown route = %v, want Ignore", res.Outcome)
	}
}

func TestHandlerProcessBatchSetsAndDeletes(t *testing.T) {
	r, _, m := newFixture()
	h := NewHandler(r, (*dbadapter.Adapter)(nil))

	batch := []consumer.Mutation{
		{
			Table: "ROUTE_TABLE",
			Key:   "default|10.1.0.0/24",
			Op:    dbadapter.Set,
			Fields: map[string]string{
				"nexthop": "10.0.0.1,10.0.0.2",
				"ifname":  "Ethernet0,Ethernet4",
			},
		},
	}
	results := h.ProcessBatch(context.Background(), batch)
	if len(results) != 1 || results[0].Outcome != handler.Success {
		t.Fatalf("ProcessBatch(set) = %+v, want one Success", results)
	}
	if m.Count(sai.ObjectRoute) != 1 {
		t.Fatalf("expected one SAI route, got %d", m.Count(sai.ObjectRoute))
	}

	del := []consumer.Mutation{{Table: "ROUTE_TABLE", Key: "default|10.1.0.0/24", Op: dbadapter.Delete}}
	results = h.ProcessBatch(context.Background(), del)
	if len(results) != 1 || results[0].Outcome != handler.Success {
		t.Fatalf("ProcessBatch(delete) = %+v, want one Success", results)
	}
	if m.Count(sai.ObjectRoute) != 0 {
		t.Fatal("expected route removed")
	}
}

func TestHandlerProcessBatchRejectsMismatchedLists(t *testing.T) {
	r, _, _ := newFixture()
	h := NewHandler(r, (*dbadapter.Adapter)(nil))

	batch := []consumer.Mutation{{
		Table:  "ROUTE_TABLE",
		Key:    "default|10.2.0.0/24",
		Op:     dbadapter.Set,
		Fields: map[string]string{"nexthop": "10.0.0.1,10.0.0.2", "ifname": "Ethernet0"},
	}}
	results := h.ProcessBatch(context.Background(), batch)
	if len(results) != 1 || results[0].Outcome != handler.InvalidEntry {
		t.Fatalf("ProcessBatch(mismatched) = %+v, want one InvalidEntry", results)
	}
}

func TestSplitVRFPrefixDefaultsVRF(t *testing.T) {
	if vrf, prefix := splitVRFPrefix("10.1.0.0/24"); vrf != "default" || prefix != "10.1.0.0/24" {
		t.Fatalf("splitVRFPrefix(no vrf) = %q, %q", vrf, prefix)
	}
	if vrf, prefix := splitVRFPrefix("Vrf1|10.1.0.0/24"); vrf != "Vrf1" || prefix != "10.1.0.0/24" {
		t.Fatalf("splitVRFPrefix(with vrf) = %q, %q", vrf, prefix)
	}
}

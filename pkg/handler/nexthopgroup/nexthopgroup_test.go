package nexthopgroup

import (
	"context"
	"testing"

	"github.com/fabricwire/swssd/pkg/handler/nexthop"
	"github.com/fabricwire/swssd/pkg/sai"
)

func newFixture() (*Registry, *nexthop.Registry, *sai.Mock) {
	m := sai.NewMock()
	nh := nexthop.New(m)
	return New(nh, m), nh, m
}

func TestResolveCreatesGroupAndMembersOnce(t *testing.T) {
	r, _, m := newFixture()
	members := []nexthop.Attrs{
		{Alias: "Ethernet0", IP: "10.0.0.1"},
		{Alias: "Ethernet4", IP: "10.0.0.2"},
	}
	nexthop.SortMembers(members)

	key1, id1, partial, err := r.Resolve(context.Background(), members)
	if err != nil {
		t.Fatal(err)
	}
	if partial {
		t.Fatal("expected a fully-resolved group")
	}
	key2, id2, _, err := r.Resolve(context.Background(), members)
	if err != nil {
		t.Fatal(err)
	}
	if key1 != key2 || id1 != id2 {
		t.Fatalf("expected reuse of existing group: (%s,%d) vs (%s,%d)", key1, id1, key2, id2)
	}
	if m.Count(sai.ObjectNextHopGroup) != 1 {
		t.Fatalf("expected exactly one SAI group, got %d", m.Count(sai.ObjectNextHopGroup))
	}
	if m.Count(sai.ObjectNextHopGroupMbr) != 2 {
		t.Fatalf("expected 2 member objects, got %d", m.Count(sai.ObjectNextHopGroupMbr))
	}
}

func TestResolveDistinctMemberSetsProduceDistinctGroups(t *testing.T) {
	r, _, _ := newFixture()
	a := []nexthop.Attrs{{Alias: "Ethernet0", IP: "10.0.0.1"}}
	b := []nexthop.Attrs{{Alias: "Ethernet4", IP: "10.0.0.2"}}

	key1, _, _, err := r.Resolve(context.Background(), a)
	if err != nil {
		t.Fatal(err)
	}
	key2, _, _, err := r.Resolve(context.Background(), b)
	if err != nil {
		t.Fatal(err)
	}
	if key1 == key2 {
		t.Fatal("expected distinct member sets to produce distinct group keys")
	}
}

func TestResolveRollsBackOnTransientMemberFailure(t *testing.T) {
	r, _, m := newFixture()
	members := []nexthop.Attrs{
		{Alias: "Ethernet0", IP: "10.0.0.1"},
		{Alias: "Ethernet4", IP: "10.0.0.2"},
	}

	// The first Create call (the group itself) succeeds; inject the
	// failure so it strikes the first member's next-hop Create.
	m.InjectErrorAfter = 1
	m.InjectError = sai.ErrTableFull

	_, _, _, err := r.Resolve(context.Background(), members)
	if err == nil {
		t.Fatal("expected transient error to propagate")
	}
	if m.Count(sai.ObjectNextHopGroup) != 0 {
		t.Fatalf("expected group rolled back, count = %d", m.Count(sai.ObjectNextHopGroup))
	}
	if m.Count(sai.ObjectNextHop) != 0 {
		t.Fatalf("expected no next-hop left behind, count = %d", m.Count(sai.ObjectNextHop))
	}
}

func TestReleaseDestroysGroupAndMembersAtZero(t *testing.T) {
	r, nh, m := newFixture()
	members := []nexthop.Attrs{{Alias: "Ethernet0", IP: "10.0.0.1"}}

	key, _, _, err := r.Resolve(context.Background(), members)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Release(context.Background(), key); err != nil {
		t.Fatal(err)
	}
	if m.Count(sai.ObjectNextHopGroup) != 0 {
		t.Fatal("expected group destroyed at refcount 0")
	}
	if nh.Raw().Len() != 0 {
		t.Fatal("expected member next-hop released along with the group")
	}
}

func TestPromoteToPermanentCarriesRefcountAndClearsIsTemp(t *testing.T) {
	r, _, _ := newFixture()
	tempKey := "temp-key"
	r.reg.GetOrCreate(tempKey, func() (uint64, GroupAttrs) { return 1, GroupAttrs{IsTemp: true} })
	r.reg.Incref(tempKey)
	r.reg.Incref(tempKey)

	permMembers := []nexthop.Attrs{{Alias: "Ethernet0", IP: "10.0.0.1"}}
	permKey, _, _, err := r.Resolve(context.Background(), permMembers)
	if err != nil {
		t.Fatal(err)
	}

	if err := r.PromoteToPermanent(tempKey, permKey); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.reg.Lookup(tempKey); ok {
		t.Fatal("expected temporary entry removed after promotion")
	}
	e, ok := r.reg.Lookup(permKey)
	if !ok {
		t.Fatal("expected permanent entry to remain")
	}
	if e.Attrs.IsTemp {
		t.Fatal("expected is_temp cleared after promotion")
	}
	if e.Refcount != 3 {
		t.Fatalf("expected refcount carried over (1 original + 2 from temp), got %d", e.Refcount)
	}
}

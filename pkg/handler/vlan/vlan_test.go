package vlan

import (
	"context"
	"testing"

	"github.com/fabricwire/swssd/pkg/consumer"
	"github.com/fabricwire/swssd/pkg/dbadapter"
	"github.com/fabricwire/swssd/pkg/handler"
	"github.com/fabricwire/swssd/pkg/sai"
)

func TestAddMemberRequiresExistingVLAN(t *testing.T) {
	m := sai.NewMock()
	r := New(m)
	res := r.AddMember(context.Background(), 100, "Ethernet0", Tagged)
	if res.Outcome != handler.InvalidEntry {
		t.Fatalf("AddMember() on unknown vlan = %v, want InvalidEntry", res.Outcome)
	}
}

func TestRemoveVLANRefusesWhileMembersRemain(t *testing.T) {
	m := sai.NewMock()
	r := New(m)
	ctx := context.Background()
	r.CreateVLAN(ctx, 100)
	r.AddMember(ctx, 100, "Ethernet0", Untagged)

	if res := r.RemoveVLAN(ctx, 100); res.Outcome != handler.Failed {
		t.Fatalf("RemoveVLAN() with member bound = %v, want Failed", res.Outcome)
	}
	r.RemoveMember(ctx, 100, "Ethernet0")
	if res := r.RemoveVLAN(ctx, 100); res.Outcome != handler.Success {
		t.Fatalf("RemoveVLAN() after member removed = %v, want Success", res.Outcome)
	}
}

func TestExistsReflectsVLANLifecycle(t *testing.T) {
	m := sai.NewMock()
	r := New(m)
	ctx := context.Background()
	if r.Exists(100) {
		t.Fatal("expected vlan 100 not to exist yet")
	}
	r.CreateVLAN(ctx, 100)
	if !r.Exists(100) {
		t.Fatal("expected vlan 100 to exist after creation")
	}
}

func TestHandlerProcessBatchRoutesByTable(t *testing.T) {
	m := sai.NewMock()
	r := New(m)
	h := NewHandler(r, (*dbadapter.Adapter)(nil))
	ctx := context.Background()

	batch := []consumer.Mutation{
		{Table: "VLAN_TABLE", Key: "Vlan100", Op: dbadapter.Set, Fields: map[string]string{}},
		{Table: "VLAN_MEMBER_TABLE", Key: "Vlan100|Ethernet0", Op: dbadapter.Set, Fields: map[string]string{"tagging_mode": "untagged"}},
	}
	results := h.ProcessBatch(ctx, batch)
	if len(results) != 2 || results[0].Outcome != handler.Success || results[1].Outcome != handler.Success {
		t.Fatalf("ProcessBatch(set) = %+v, want two Success", results)
	}
	if !r.Exists(100) {
		t.Fatal("expected vlan 100 created via handler")
	}

	del := []consumer.Mutation{
		{Table: "VLAN_MEMBER_TABLE", Key: "Vlan100|Ethernet0", Op: dbadapter.Delete},
		{Table: "VLAN_TABLE", Key: "Vlan100", Op: dbadapter.Delete},
	}
	results = h.ProcessBatch(ctx, del)
	if len(results) != 2 || results[0].Outcome != handler.Success || results[1].Outcome != handler.Success {
		t.Fatalf("ProcessBatch(delete) = %+v, want two Success", results)
	}
	if r.Exists(100) {
		t.Fatal("expected vlan 100 removed via handler")
	}
}

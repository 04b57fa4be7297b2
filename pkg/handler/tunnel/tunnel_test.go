package tunnel

import (
	"context"
	"testing"

	"github.com/fabricwire/swssd/pkg/consumer"
	"github.com/fabricwire/swssd/pkg/dbadapter"
	"github.com/fabricwire/swssd/pkg/handler"
	"github.com/fabricwire/swssd/pkg/sai"
)

func TestRemoveTunnelRefusesWhileTerminationLive(t *testing.T) {
	m := sai.NewMock()
	r := New(m)
	ctx := context.Background()
	r.SetTunnel(ctx, "ipip_tunnel0", Attrs{SrcIP: "10.0.0.1", Type: "ipinip"})
	r.AddTermination(ctx, "ipip_tunnel0", TermAttrs{DstIP: "10.0.0.1"})

	if res := r.RemoveTunnel(ctx, "ipip_tunnel0"); res.Outcome != handler.Failed {
		t.Fatalf("RemoveTunnel() with live termination = %v, want Failed", res.Outcome)
	}
	r.RemoveTermination(ctx, "ipip_tunnel0", "10.0.0.1")
	if res := r.RemoveTunnel(ctx, "ipip_tunnel0"); res.Outcome != handler.Success {
		t.Fatalf("RemoveTunnel() after termination removed = %v, want Success", res.Outcome)
	}
}

func TestAddTerminationRequiresExistingTunnel(t *testing.T) {
	m := sai.NewMock()
	r := New(m)
	res := r.AddTermination(context.Background(), "missing_tunnel", TermAttrs{DstIP: "10.0.0.1"})
	if res.Outcome != handler.InvalidEntry {
		t.Fatalf("AddTermination() on unknown tunnel = %v, want InvalidEntry", res.Outcome)
	}
}

func TestSetMapEntryRejectsReservedAndOutOfRangeVNI(t *testing.T) {
	m := sai.NewMock()
	r := New(m)
	ctx := context.Background()
	r.SetTunnel(ctx, "vxlan_tunnel0", Attrs{Type: "vxlan"})

	if res := r.SetMapEntry(ctx, "vxlan_tunnel0", 100, 0); res.Outcome != handler.InvalidEntry {
		t.Fatalf("SetMapEntry(vni=0) = %v, want InvalidEntry", res.Outcome)
	}
	if res := r.SetMapEntry(ctx, "vxlan_tunnel0", 100, 1<<24); res.Outcome != handler.InvalidEntry {
		t.Fatalf("SetMapEntry(vni=2^24) = %v, want InvalidEntry", res.Outcome)
	}
	if res := r.SetMapEntry(ctx, "vxlan_tunnel0", 100, 12345); res.Outcome != handler.Success {
		t.Fatalf("SetMapEntry(vni=12345) = %v, want Success", res.Outcome)
	}
}

func TestRemoveMapEntryUnknownIsNoOp(t *testing.T) {
	m := sai.NewMock()
	r := New(m)
	res := r.RemoveMapEntry(context.Background(), "vxlan_tunnel0", 999)
	if res.Outcome != handler.Ignore {
		t.Fatalf("RemoveMapEntry() on unknown entry = %v, want Ignore", res.Outcome)
	}
}

func TestHandlerProcessBatchRoutesByTable(t *testing.T) {
	m := sai.NewMock()
	r := New(m)
	h := NewHandler(r, (*dbadapter.Adapter)(nil))
	ctx := context.Background()

	batch := []consumer.Mutation{
		{Table: "TUNNEL_TABLE", Key: "vxlan_tunnel0", Op: dbadapter.Set, Fields: map[string]string{"tunnel_type": "vxlan"}},
		{Table: "TUNNEL_TERM_TABLE", Key: "vxlan_tunnel0|10.0.0.1", Op: dbadapter.Set, Fields: map[string]string{}},
		{Table: "TUNNEL_MAP_ENTRY_TABLE", Key: "vxlan_tunnel0|100", Op: dbadapter.Set, Fields: map[string]string{"vni": "12345"}},
	}
	results := h.ProcessBatch(ctx, batch)
	for i, res := range results {
		if res.Outcome != handler.Success {
			t.Fatalf("ProcessBatch(set)[%d] = %+v, want Success", i, res)
		}
	}

	del := []consumer.Mutation{
		{Table: "TUNNEL_MAP_ENTRY_TABLE", Key: "vxlan_tunnel0|100", Op: dbadapter.Delete},
		{Table: "TUNNEL_TERM_TABLE", Key: "vxlan_tunnel0|10.0.0.1", Op: dbadapter.Delete},
		{Table: "TUNNEL_TABLE", Key: "vxlan_tunnel0", Op: dbadapter.Delete},
	}
	results = h.ProcessBatch(ctx, del)
	for i, res := range results {
		if res.Outcome != handler.Success {
			t.Fatalf("ProcessBatch(delete)[%d] = %+v, want Success", i, res)
		}
	}
}

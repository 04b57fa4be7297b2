package port

import (
	"context"
	"testing"

	"github.com/fabricwire/swssd/pkg/consumer"
	"github.com/fabricwire/swssd/pkg/dbadapter"
	"github.com/fabricwire/swssd/pkg/handler"
	"github.com/fabricwire/swssd/pkg/sai"
)

func TestNewPortDefaultsToConfigMissing(t *testing.T) {
	tr := NewTracker()
	if tr.State("Ethernet0") != ConfigMissing {
		t.Fatalf("State() = %v, want ConfigMissing", tr.State("Ethernet0"))
	}
}

func TestFullLifecycleTransitions(t *testing.T) {
	tr := NewTracker()
	ctx := context.Background()
	if err := tr.OnConfigReceived(ctx, "Ethernet0"); err != nil {
		t.Fatal(err)
	}
	if tr.State("Ethernet0") != ConfigReceived {
		t.Fatalf("State() = %v, want ConfigReceived", tr.State("Ethernet0"))
	}
	if err := tr.OnProgrammed(ctx, "Ethernet0"); err != nil {
		t.Fatal(err)
	}
	if tr.State("Ethernet0") != ConfigDone {
		t.Fatalf("State() = %v, want ConfigDone", tr.State("Ethernet0"))
	}
}

func TestRejectsSkippingConfigReceived(t *testing.T) {
	tr := NewTracker()
	if err := tr.Transition("Ethernet0", ConfigDone); err == nil {
		t.Fatal("expected error transitioning ConfigMissing -> ConfigDone directly")
	}
}

func TestRequireReadyBlocksUntilConfigDone(t *testing.T) {
	tr := NewTracker()
	ctx := context.Background()

	res := tr.RequireReady("Ethernet0")
	if res == nil || res.Outcome != handler.WaitingForDependency || res.DependencyKey != "Ethernet0" {
		t.Fatalf("RequireReady() = %+v, want WaitingForDependency(Ethernet0)", res)
	}

	tr.OnConfigReceived(ctx, "Ethernet0")
	res = tr.RequireReady("Ethernet0")
	if res == nil || res.Outcome != handler.WaitingForDependency {
		t.Fatalf("RequireReady() at ConfigReceived = %+v, want still blocked", res)
	}

	tr.OnProgrammed(ctx, "Ethernet0")
	if res := tr.RequireReady("Ethernet0"); res != nil {
		t.Fatalf("RequireReady() at ConfigDone = %+v, want nil (ready)", res)
	}
}

func TestOnRemovedResetsToConfigMissing(t *testing.T) {
	tr := NewTracker()
	ctx := context.Background()
	tr.OnConfigReceived(ctx, "Ethernet0")
	tr.OnProgrammed(ctx, "Ethernet0")
	tr.OnRemoved(ctx, "Ethernet0")
	if tr.State("Ethernet0") != ConfigMissing {
		t.Fatalf("State() after removal = %v, want ConfigMissing", tr.State("Ethernet0"))
	}
}

func TestHandlerProcessBatchProgramsAndRemoves(t *testing.T) {
	tr := NewTracker()
	m := sai.NewMock()
	h := NewHandler(tr, m, (*dbadapter.Adapter)(nil))
	ctx := context.Background()

	batch := []consumer.Mutation{{
		Table:  "PORT_TABLE",
		Key:    "Ethernet0",
		Op:     dbadapter.Set,
		Fields: map[string]string{"speed": "100000", "mtu": "9100"},
	}}
	results := h.ProcessBatch(ctx, batch)
	if len(results) != 1 || results[0].Outcome != handler.Success {
		t.Fatalf("ProcessBatch(set) = %+v, want one Success", results)
	}
	if tr.State("Ethernet0") != ConfigDone {
		t.Fatalf("State() after ProcessBatch = %v, want ConfigDone", tr.State("Ethernet0"))
	}
	if m.Count(sai.ObjectPort) != 1 {
		t.Fatalf("expected one SAI port object, got %d", m.Count(sai.ObjectPort))
	}

	del := []consumer.Mutation{{Table: "PORT_TABLE", Key: "Ethernet0", Op: dbadapter.Delete}}
	results = h.ProcessBatch(ctx, del)
	if len(results) != 1 || results[0].Outcome != handler.Success {
		t.Fatalf("ProcessBatch(delete) = %+v, want one Success", results)
	}
	if tr.State("Ethernet0") != ConfigMissing {
		t.Fatalf("State() after delete = %v, want ConfigMissing", tr.State("Ethernet0"))
	}
	if m.Count(sai.ObjectPort) != 0 {
		t.Fatal("expected SAI port object removed")
	}
}

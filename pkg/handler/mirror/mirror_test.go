package mirror

import (
	"context"
	"testing"

	"github.com/fabricwire/swssd/pkg/consumer"
	"github.com/fabricwire/swssd/pkg/dbadapter"
	"github.com/fabricwire/swssd/pkg/handler"
	"github.com/fabricwire/swssd/pkg/sai"
)

func TestSetCreatesSession(t *testing.T) {
	m := sai.NewMock()
	r := New(m)
	res := r.Set(context.Background(), "everflow0", Attrs{SrcIP: "1.1.1.1", DstIP: "2.2.2.2", Direction: "both"})
	if res.Outcome != handler.Success {
		t.Fatalf("Set() = %v, want Success", res.Outcome)
	}
	if m.Count(sai.ObjectMirrorSession) != 1 {
		t.Fatal("expected one SAI mirror session")
	}
}

func TestRemoveRefusesWhileACLRuleReferences(t *testing.T) {
	m := sai.NewMock()
	r := New(m)
	ctx := context.Background()
	r.Set(ctx, "everflow0", Attrs{SrcIP: "1.1.1.1", DstIP: "2.2.2.2"})
	r.AddRef("everflow0")

	res := r.Remove(ctx, "everflow0")
	if res.Outcome != handler.Failed {
		t.Fatalf("Remove() while referenced = %v, want Failed", res.Outcome)
	}

	r.Release("everflow0")
	res = r.Remove(ctx, "everflow0")
	if res.Outcome != handler.Success {
		t.Fatalf("Remove() after release = %v, want Success", res.Outcome)
	}
}

func TestHandlerProcessBatchSetsAndDeletes(t *testing.T) {
	m := sai.NewMock()
	r := New(m)
	h := NewHandler(r, (*dbadapter.Adapter)(nil))
	ctx := context.Background()

	batch := []consumer.Mutation{{
		Table:  "MIRROR_SESSION",
		Key:    "everflow0",
		Op:     dbadapter.Set,
		Fields: map[string]string{"src_ip": "1.1.1.1", "dst_ip": "2.2.2.2", "direction": "both"},
	}}
	results := h.ProcessBatch(ctx, batch)
	if len(results) != 1 || results[0].Outcome != handler.Success {
		t.Fatalf("ProcessBatch(set) = %+v, want one Success", results)
	}

	del := []consumer.Mutation{{Table: "MIRROR_SESSION", Key: "everflow0", Op: dbadapter.Delete}}
	results = h.ProcessBatch(ctx, del)
	if len(results) != 1 || results[0].Outcome != handler.Success {
		t.Fatalf("ProcessBatch(delete) = %+v, want one Success", results)
	}
}

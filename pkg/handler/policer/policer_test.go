package policer

import (
	"context"
	"testing"

	"github.com/fabricwire/swssd/pkg/consumer"
	"github.com/fabricwire/swssd/pkg/dbadapter"
	"github.com/fabricwire/swssd/pkg/handler"
	"github.com/fabricwire/swssd/pkg/sai"
)

func TestSetCreatesPolicer(t *testing.T) {
	m := sai.NewMock()
	r := New(m)
	res := r.Set(context.Background(), "copp-policer", Attrs{MeterType: "packets", CIR: 600})
	if res.Outcome != handler.Success {
		t.Fatalf("Set() = %v, want Success", res.Outcome)
	}
}

func TestRemoveRefusesWhileReferenced(t *testing.T) {
	m := sai.NewMock()
	r := New(m)
	ctx := context.Background()
	r.Set(ctx, "copp-policer", Attrs{MeterType: "packets", CIR: 600})
	r.AddRef("copp-policer")

	if res := r.Remove(ctx, "copp-policer"); res.Outcome != handler.Failed {
		t.Fatalf("Remove() while referenced = %v, want Failed", res.Outcome)
	}
	r.Release("copp-policer")
	if res := r.Remove(ctx, "copp-policer"); res.Outcome != handler.Success {
		t.Fatalf("Remove() after release = %v, want Success", res.Outcome)
	}
}

func TestHandlerProcessBatchParsesNumericFields(t *testing.T) {
	m := sai.NewMock()
	r := New(m)
	h := NewHandler(r, (*dbadapter.Adapter)(nil))
	ctx := context.Background()

	batch := []consumer.Mutation{{
		Table: "POLICER_TABLE",
		Key:   "copp-policer",
		Op:    dbadapter.Set,
		Fields: map[string]string{
			"meter_type": "packets", "meter_mode": "trtcm",
			"cir": "600", "pir": "600", "cbs": "600", "pbs": "600",
			"green_action": "forward", "red_action": "drop",
		},
	}}
	results := h.ProcessBatch(ctx, batch)
	if len(results) != 1 || results[0].Outcome != handler.Success {
		t.Fatalf("ProcessBatch(set) = %+v, want one Success", results)
	}
	e, ok := r.Raw().Lookup("copp-policer")
	if !ok || e.Attrs.CIR != 600 || e.Attrs.Mode != ModeTrTCM {
		t.Fatalf("expected parsed policer attrs, got %+v", e)
	}

	del := []consumer.Mutation{{Table: "POLICER_TABLE", Key: "copp-policer", Op: dbadapter.Delete}}
	results = h.ProcessBatch(ctx, del)
	if len(results) != 1 || results[0].Outcome != handler.Success {
		t.Fatalf("ProcessBatch(delete) = %+v, want one Success", results)
	}
}


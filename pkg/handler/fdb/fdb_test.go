package fdb

import (
	"context"
	"testing"

	"github.com/fabricwire/swssd/pkg/consumer"
	"github.com/fabricwire/swssd/pkg/dbadapter"
	"github.com/fabricwire/swssd/pkg/handler"
	"github.com/fabricwire/swssd/pkg/sai"
	"github.com/fabricwire/swssd/pkg/swtypes"
)

func newFixture(vlanExists bool) *Registry {
	m := sai.NewMock()
	return New(m, func(swtypes.VLANID) bool { return vlanExists })
}

func TestSetRejectsUnknownVLAN(t *testing.T) {
	r := newFixture(false)
	res := r.Set(context.Background(), 10, "aa:bb:cc:dd:ee:ff", "Ethernet0", Dynamic, Learned)
	if res.Outcome != handler.InvalidEntry {
		t.Fatalf("Set() = %v, want InvalidEntry", res.Outcome)
	}
}

func TestSetCreatesThenPromotesDynamicToStatic(t *testing.T) {
	r := newFixture(true)
	ctx := context.Background()
	mac := "aa:bb:cc:dd:ee:ff"

	res := r.Set(ctx, 10, mac, "Ethernet0", Dynamic, Learned)
	if res.Outcome != handler.Success {
		t.Fatalf("Set() = %v, want Success", res.Outcome)
	}
	e, ok := r.Raw().Lookup(Key(10, mac))
	if !ok || e.Attrs.Type != Dynamic {
		t.Fatalf("expected dynamic entry recorded, got %+v", e)
	}

	res = r.Set(ctx, 10, mac, "Ethernet0", Static, Provisioned)
	if res.Outcome != handler.Success {
		t.Fatalf("promote Set() = %v, want Success", res.Outcome)
	}
	e, ok = r.Raw().Lookup(Key(10, mac))
	if !ok || e.Attrs.Type != Static {
		t.Fatalf("expected entry promoted to static, got %+v", e)
	}
}

func TestFlushRemovesOnlyMatchingVLAN(t *testing.T) {
	r := newFixture(true)
	ctx := context.Background()
	r.Set(ctx, 10, "aa:bb:cc:dd:ee:01", "Ethernet0", Dynamic, Learned)
	r.Set(ctx, 10, "aa:bb:cc:dd:ee:02", "Ethernet0", Dynamic, Learned)
	r.Set(ctx, 20, "aa:bb:cc:dd:ee:03", "Ethernet4", Dynamic, Learned)

	res := r.Flush(ctx, 10)
	if res.Outcome != handler.Success {
		t.Fatalf("Flush() = %v, want Success", res.Outcome)
	}
	if r.Raw().Len() != 1 {
		t.Fatalf("expected only the VLAN 20 entry to survive, len = %d", r.Raw().Len())
	}
}

func TestRemoveUnknownIsNoOp(t *testing.T) {
	r := newFixture(true)
	res := r.Remove(context.Background(), 10, "aa:bb:cc:dd:ee:ff")
	if res.Outcome != handler.Ignore {
		t.Fatalf("Remove() = %v, want Ignore", res.Outcome)
	}
}

func TestHandlerProcessBatchSetsAndDeletes(t *testing.T) {
	r := newFixture(true)
	h := NewHandler(r, (*dbadapter.Adapter)(nil))
	ctx := context.Background()

	batch := []consumer.Mutation{{
		Table:  "FDB_TABLE",
		Key:    "10|aa:bb:cc:dd:ee:ff",
		Op:     dbadapter.Set,
		Fields: map[string]string{"port": "Ethernet0", "type": "static"},
	}}
	results := h.ProcessBatch(ctx, batch)
	if len(results) != 1 || results[0].Outcome != handler.Success {
		t.Fatalf("ProcessBatch(set) = %+v, want one Success", results)
	}
	e, ok := r.Raw().Lookup(Key(10, "aa:bb:cc:dd:ee:ff"))
	if !ok || e.Attrs.Type != Static {
		t.Fatalf("expected static entry recorded, got %+v", e)
	}

	del := []consumer.Mutation{{Table: "FDB_TABLE", Key: "10|aa:bb:cc:dd:ee:ff", Op: dbadapter.Delete}}
	results = h.ProcessBatch(ctx, del)
	if len(results) != 1 || results[0].Outcome != handler.Success {
		t.Fatalf("ProcessBatch(delete) = %+v, want one Success", results)
	}
}

func TestHandlerProcessBatchRejectsMalformedKey(t *testing.T) {
	r := newFixture(true)
	h := NewHandler(r, (*dbadapter.Adapter)(nil))
	batch := []consumer.Mutation{{Table: "FDB_TABLE", Key: "not-a-valid-key", Op: dbadapter.Set, Fields: map[string]string{}}}
	results := h.ProcessBatch(context.Background(), batch)
	if len(results) != 1 || results[0].Outcome != handler.InvalidEntry {
		t.Fatalf("ProcessBatch(malformed) = %+v, want one InvalidEntry", results)
	}
}

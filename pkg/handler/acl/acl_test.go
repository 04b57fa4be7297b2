package acl

import (
	"context"
	"testing"

	"github.com/fabricwire/swssd/pkg/consumer"
	"github.com/fabricwire/swssd/pkg/dbadapter"
	"github.com/fabricwire/swssd/pkg/handler"
	"github.com/fabricwire/swssd/pkg/sai"
)

func TestSetRuleRequiresExistingTable(t *testing.T) {
	m := sai.NewMock()
	r := New(m)
	res := r.SetRule(context.Background(), "DATAACL", "rule1", RuleAttrs{Priority: 100})
	if res.Outcome != handler.InvalidEntry {
		t.Fatalf("SetRule() on missing table = %v, want InvalidEntry", res.Outcome)
	}
}

func TestRemoveTableRefusesWhileRulesRemain(t *testing.T) {
	m := sai.NewMock()
	r := New(m)
	ctx := context.Background()
	r.SetTable(ctx, "DATAACL", TableAttrs{Stage: "ingress"})
	r.SetRule(ctx, "DATAACL", "rule1", RuleAttrs{Priority: 100})

	if res := r.RemoveTable(ctx, "DATAACL"); res.Outcome != handler.Failed {
		t.Fatalf("RemoveTable() with rule bound = %v, want Failed", res.Outcome)
	}
	r.RemoveRule(ctx, "DATAACL", "rule1")
	if res := r.RemoveTable(ctx, "DATAACL"); res.Outcome != handler.Success {
		t.Fatalf("RemoveTable() after rule removed = %v, want Success", res.Outcome)
	}
}

func TestOrderedRulesTieBreaksOnInsertionOrder(t *testing.T) {
	m := sai.NewMock()
	r := New(m)
	ctx := context.Background()
	r.SetTable(ctx, "DATAACL", TableAttrs{Stage: "ingress"})
	r.SetRule(ctx, "DATAACL", "rule_first", RuleAttrs{Priority: 100})
	r.SetRule(ctx, "DATAACL", "rule_second", RuleAttrs{Priority: 100})
	r.SetRule(ctx, "DATAACL", "rule_high", RuleAttrs{Priority: 200})

	ordered := r.OrderedRules("DATAACL")
	if len(ordered) != 3 {
		t.Fatalf("expected 3 rules, got %d", len(ordered))
	}
	if ordered[0].Priority != 200 {
		t.Fatalf("expected highest priority first, got %+v", ordered[0])
	}
	if ordered[1].seq >= ordered[2].seq {
		t.Fatalf("expected equal-priority rules ordered by insertion sequence, got %+v then %+v", ordered[1], ordered[2])
	}
}

func TestHandlerProcessBatchRoutesByTable(t *testing.T) {
	m := sai.NewMock()
	r := New(m)
	h := NewHandler(r, (*dbadapter.Adapter)(nil))
	ctx := context.Background()

	batch := []consumer.Mutation{
		{Table: "ACL_TABLE", Key: "DATAACL", Op: dbadapter.Set, Fields: map[string]string{"stage": "ingress"}},
		{Table: "ACL_RULE_TABLE", Key: "DATAACL|rule1", Op: dbadapter.Set, Fields: map[string]string{
			"PRIORITY": "100", "MATCH_SRC_IP": "10.0.0.0/8", "ACTION_PACKET_ACTION": "forward",
		}},
	}
	results := h.ProcessBatch(ctx, batch)
	if len(results) != 2 || results[0].Outcome != handler.Success || results[1].Outcome != handler.Success {
		t.Fatalf("ProcessBatch(set) = %+v, want two Success", results)
	}
	e, ok := r.RawRules().Lookup(ruleKey("DATAACL", "rule1"))
	if !ok || e.Attrs.Priority != 100 || e.Attrs.Matches["SRC_IP"] != "10.0.0.0/8" || e.Attrs.Actions["PACKET_ACTION"] != "forward" {
		t.Fatalf("expected parsed rule attrs, got %+v", e)
	}

	del := []consumer.Mutation{
		{Table: "ACL_RULE_TABLE", Key: "DATAACL|rule1", Op: dbadapter.Delete},
		{Table: "ACL_TABLE", Key: "DATAACL", Op: dbadapter.Delete},
	}
	results = h.ProcessBatch(ctx, del)
	if len(results) != 2 || results[0].Outcome != handler.Success || results[1].Outcome != handler.Success {
		t.Fatalf("ProcessBatch(delete) = %+v, want two Success", results)
	}
}

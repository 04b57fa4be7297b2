package consumer

import (
	"testing"
	"time"

	"github.com/fabricwire/swssd/pkg/dbadapter"
)

func TestEnqueueLastWriteWins(t *testing.T) {
	c := New("ROUTE_TABLE")
	c.Enqueue(Mutation{Table: "ROUTE_TABLE", Key: "default|10.0.0.0/24", Fields: map[string]string{"nexthop": "10.0.0.1"}})
	c.Enqueue(Mutation{Table: "ROUTE_TABLE", Key: "default|10.0.0.0/24", Fields: map[string]string{"nexthop": "10.0.0.2"}})

	if c.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", c.Pending())
	}
	batch := c.Drain(0)
	if batch[0].Fields["nexthop"] != "10.0.0.2" {
		t.Errorf("final state = %v, want nexthop=10.0.0.2", batch[0])
	}
}

func TestEnqueuePreservesOrderAcrossKeys(t *testing.T) {
	c := New("ROUTE_TABLE")
	c.Enqueue(Mutation{Key: "a"})
	c.Enqueue(Mutation{Key: "b"})
	c.Enqueue(Mutation{Key: "a"}) // replace in place, not move to back
	batch := c.Drain(0)
	if len(batch) != 2 || batch[0].Key != "a" || batch[1].Key != "b" {
		t.Fatalf("batch = %v, want [a b]", batch)
	}
}

func TestDrainPartial(t *testing.T) {
	c := New("PORT")
	c.Enqueue(Mutation{Key: "Ethernet0"})
	c.Enqueue(Mutation{Key: "Ethernet4"})
	c.Enqueue(Mutation{Key: "Ethernet8"})

	first := c.Drain(2)
	if len(first) != 2 {
		t.Fatalf("len(first) = %d, want 2", len(first))
	}
	if c.Pending() != 1 {
		t.Fatalf("Pending() after partial drain = %d, want 1", c.Pending())
	}
	rest := c.Drain(0)
	if len(rest) != 1 || rest[0].Key != "Ethernet8" {
		t.Fatalf("rest = %v", rest)
	}
}

func TestDeferRetryWithConstraintPromotes(t *testing.T) {
	c := New("NEIGH_TABLE")
	m := Mutation{Table: "NEIGH_TABLE", Key: "Ethernet0:10.0.0.2", Fields: map[string]string{"mac": "00:11:22:33:44:55"}}
	c.DeferRetry(m, "INTERFACE:Ethernet0")

	if c.RetryCount() != 1 || c.Pending() != 0 {
		t.Fatalf("after defer: retry=%d pending=%d", c.RetryCount(), c.Pending())
	}

	// Unrelated constraint does not promote it.
	if n := c.PromoteConstraint("INTERFACE:Ethernet4"); n != 0 {
		t.Fatalf("unrelated promote moved %d entries", n)
	}
	if c.RetryCount() != 1 {
		t.Fatal("entry should remain parked")
	}

	n := c.PromoteConstraint("INTERFACE:Ethernet0")
	if n != 1 {
		t.Fatalf("PromoteConstraint = %d, want 1", n)
	}
	if c.RetryCount() != 0 || c.Pending() != 1 {
		t.Fatalf("after promote: retry=%d pending=%d", c.RetryCount(), c.Pending())
	}
}

func TestDeferRetryUnconstrainedBackoff(t *testing.T) {
	clock := time.Unix(0, 0)
	c := New("ROUTE_TABLE", WithClock(func() time.Time { return clock }), WithInitialBackoff(1*time.Second))
	m := Mutation{Key: "r1"}
	c.DeferRetry(m, "")

	// Not due yet.
	if n := c.PromoteDue(); n != 0 {
		t.Fatalf("PromoteDue too early = %d, want 0", n)
	}

	clock = clock.Add(2 * time.Second)
	if n := c.PromoteDue(); n != 1 {
		t.Fatalf("PromoteDue after backoff = %d, want 1", n)
	}
	if c.Pending() != 1 {
		t.Fatal("expected mutation promoted to queue")
	}
}

func TestDeferRetryBackoffDoublesAndCaps(t *testing.T) {
	clock := time.Unix(0, 0)
	c := New("ROUTE_TABLE", WithClock(func() time.Time { return clock }), WithInitialBackoff(10*time.Second))
	m := Mutation{Key: "r1"}

	c.DeferRetry(m, "") // backoff = 10s
	c.DeferRetry(m, "") // doubles to 20s
	c.DeferRetry(m, "") // doubles to 40s, capped at 30s

	clock = clock.Add(31 * time.Second)
	if n := c.PromoteDue(); n != 1 {
		t.Fatalf("PromoteDue = %d, want 1", n)
	}
}

func TestEnqueueClearsRetryCacheForKey(t *testing.T) {
	c := New("ROUTE_TABLE")
	c.DeferRetry(Mutation{Key: "r1"}, "")
	if c.RetryCount() != 1 {
		t.Fatal("expected retry entry")
	}
	c.Enqueue(Mutation{Key: "r1", Op: dbadapter.Set})
	if c.RetryCount() != 0 {
		t.Fatal("fresh enqueue should clear stale retry entry")
	}
	if c.Pending() != 1 {
		t.Fatal("fresh enqueue should land in main queue")
	}
}

package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/fabricwire/swssd/pkg/consumer"
	"github.com/fabricwire/swssd/pkg/handler"
)

type stubHandler struct {
	name     string
	priority int
	order    *[]string
	process  func(batch []consumer.Mutation) []handler.Result
	timers   int
}

func (s *stubHandler) Name() string     { return s.name }
func (s *stubHandler) Priority() int    { return s.priority }
func (s *stubHandler) Bake(ctx context.Context) (bool, error) { return false, nil }
func (s *stubHandler) OnWarmBootEnd(ctx context.Context) error { return nil }
func (s *stubHandler) ProcessBatch(ctx context.Context, batch []consumer.Mutation) []handler.Result {
	*s.order = append(*s.order, s.name)
	if s.process != nil {
		return s.process(batch)
	}
	out := make([]handler.Result, len(batch))
	for i := range out {
		out[i] = handler.Ok()
	}
	return out
}
func (s *stubHandler) OnTimer(ctx context.Context) { s.timers++ }

func TestDispatchPriorityOrdering(t *testing.T) {
	d := New()
	var order []string

	portH := &stubHandler{name: "port", priority: 0, order: &order}
	routeH := &stubHandler{name: "route", priority: 50, order: &order}

	d.Register(routeH, "ROUTE_TABLE")
	d.Register(portH, "PORT")

	pc, _ := d.ConsumerFor("PORT")
	rc, _ := d.ConsumerFor("ROUTE_TABLE")
	pc.Enqueue(consumer.Mutation{Key: "Ethernet0"})
	rc.Enqueue(consumer.Mutation{Key: "default|10.0.0.0/24"})

	d.Tick(context.Background())

	if len(order) != 2 || order[0] != "port" || order[1] != "route" {
		t.Fatalf("dispatch order = %v, want [port route]", order)
	}
}

func TestDispatchTieBreakOnRegistrationOrder(t *testing.T) {
	d := New()
	var order []string

	first := &stubHandler{name: "first", priority: 10, order: &order}
	second := &stubHandler{name: "second", priority: 10, order: &order}

	d.Register(first, "A")
	d.Register(second, "B")

	ac, _ := d.ConsumerFor("A")
	bc, _ := d.ConsumerFor("B")
	ac.Enqueue(consumer.Mutation{Key: "k1"})
	bc.Enqueue(consumer.Mutation{Key: "k2"})

	d.Tick(context.Background())

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("order = %v, want [first second] (registration-order tie-break)", order)
	}
}

func TestDispatchNeedRetryRequeues(t *testing.T) {
	d := New()
	var order []string
	attempts := 0
	h := &stubHandler{
		name: "route", priority: 0, order: &order,
		process: func(batch []consumer.Mutation) []handler.Result {
			attempts++
			out := make([]handler.Result, len(batch))
			for i := range out {
				if attempts == 1 {
					out[i] = handler.Retry(nil)
				} else {
					out[i] = handler.Ok()
				}
			}
			return out
		},
	}
	d.Register(h, "ROUTE_TABLE")

	c, _ := d.ConsumerFor("ROUTE_TABLE")
	c.Enqueue(consumer.Mutation{Key: "r1"})

	d.Tick(context.Background())
	if c.Pending() != 0 || c.RetryCount() != 1 {
		t.Fatalf("after first tick: pending=%d retry=%d", c.Pending(), c.RetryCount())
	}
}

func TestDispatchWaitingForDependencyPromotesOnSuccess(t *testing.T) {
	d := New()
	var order []string

	neighAttempts := 0
	neighHandler := &stubHandler{
		name: "neighbor", priority: 10, order: &order,
		process: func(batch []consumer.Mutation) []handler.Result {
			neighAttempts++
			out := make([]handler.Result, len(batch))
			for i := range out {
				if neighAttempts == 1 {
					out[i] = handler.WaitFor("INTERFACE:Ethernet0")
				} else {
					out[i] = handler.Ok()
				}
			}
			return out
		},
	}
	intfHandler := &stubHandler{name: "interface", priority: 0, order: &order}

	d.Register(intfHandler, "INTERFACE")
	d.Register(neighHandler, "NEIGH_TABLE")

	nc, _ := d.ConsumerFor("NEIGH_TABLE")
	nc.Enqueue(consumer.Mutation{Key: "Ethernet0:10.0.0.2"})

	d.Tick(context.Background())
	if nc.Pending() != 0 || nc.RetryCount() != 1 {
		t.Fatalf("after first tick: pending=%d retry=%d", nc.Pending(), nc.RetryCount())
	}

	ic, _ := d.ConsumerFor("INTERFACE")
	ic.Enqueue(consumer.Mutation{Key: "Ethernet0"})
	d.Tick(context.Background())

	if nc.RetryCount() != 0 {
		t.Fatalf("expected neighbor promoted after interface success, retry=%d", nc.RetryCount())
	}
}

func TestCRMTimerFiresOnInterval(t *testing.T) {
	d := New().WithCRMInterval(10 * time.Millisecond)
	var order []string
	h := &stubHandler{name: "crm", priority: 0, order: &order}
	d.Register(h, "PORT")

	d.Tick(context.Background()) // first tick always runs timers (lastCRM zero value)
	if h.timers != 1 {
		t.Fatalf("timers = %d, want 1 after first tick", h.timers)
	}

	d.Tick(context.Background()) // too soon
	if h.timers != 1 {
		t.Fatalf("timers = %d, want still 1", h.timers)
	}

	time.Sleep(15 * time.Millisecond)
	d.Tick(context.Background())
	if h.timers != 2 {
		t.Fatalf("timers = %d, want 2 after interval elapsed", h.timers)
	}
}

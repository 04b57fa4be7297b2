// Package dispatcher implements the single-threaded cooperative event
// loop of spec.md §4.3/§5: it polls every consumer, routes batches to
// the owning handler in priority order, drives timer-based maintenance,
// demultiplexes asynchronous SAI notifications, and flushes a final
// dispatch pass on shutdown.
//
// New control-flow component: the teacher never runs an event loop (its
// CLI issues one synchronous change and exits). Grounded on the
// teacher's single-goroutine discipline as the model for "no background
// worker" (spec.md §5), and on pkg/util/log.go's structured logging for
// tick/dispatch tracing.
package dispatcher

import (
	"context"
	"sort"
	"time"

	"github.com/fabricwire/swssd/pkg/consumer"
	"github.com/fabricwire/swssd/pkg/handler"
	"github.com/fabricwire/swssd/pkg/sai"
	"github.com/fabricwire/swssd/pkg/swutil"
)

// Defaults from spec.md §4.3.
const (
	DefaultPollTimeout = 1 * time.Second
	DefaultCRMInterval = 300 * time.Second
)

type registration struct {
	h        handler.Handler
	priority int
	seq      int // registration order, tie-break per spec.md §9(iii)
	tables   []string
}

// Dispatcher is the agent's single event loop. It is not safe for
// concurrent use from more than one goroutine: spec.md §5 requires
// exactly one thread driving it.
type Dispatcher struct {
	regs      []*registration
	consumers map[string]*consumer.Consumer // table -> consumer
	ownerOf   map[string]*registration       // table -> owning handler registration

	pollTimeout time.Duration
	crmInterval time.Duration
	lastCRM     time.Time

	saiNotifications <-chan sai.Notification
	seqCounter       int

	shuttingDown bool
}

// New creates an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{
		consumers:   make(map[string]*consumer.Consumer),
		ownerOf:     make(map[string]*registration),
		pollTimeout: DefaultPollTimeout,
		crmInterval: DefaultCRMInterval,
	}
}

// WithPollTimeout overrides the default 1s poll timeout.
func (d *Dispatcher) WithPollTimeout(t time.Duration) *Dispatcher {
	d.pollTimeout = t
	return d
}

// WithCRMInterval overrides the default 300s CRM polling interval.
func (d *Dispatcher) WithCRMInterval(t time.Duration) *Dispatcher {
	d.crmInterval = t
	return d
}

// WithSAINotifications wires the dispatcher to a SAI notification
// channel, demultiplexed on every tick (spec.md §4.3 step 4).
func (d *Dispatcher) WithSAINotifications(ch <-chan sai.Notification) *Dispatcher {
	d.saiNotifications = ch
	return d
}

// Register adds h to the dispatcher, owning the given tables' consumers.
// Priority orders invocation (smaller runs earlier, spec.md §4.3 "the
// port handler has priority 0"); ties break on registration order.
// Register creates a Consumer for each table that doesn't already have
// one and returns it so the caller (typically the owning handler's
// constructor) can retain a reference for Enqueue-side testing.
func (d *Dispatcher) Register(h handler.Handler, tables ...string) []*consumer.Consumer {
	reg := &registration{h: h, priority: h.Priority(), seq: d.seqCounter, tables: tables}
	d.seqCounter++
	d.regs = append(d.regs, reg)
	sort.SliceStable(d.regs, func(i, j int) bool {
		if d.regs[i].priority != d.regs[j].priority {
			return d.regs[i].priority < d.regs[j].priority
		}
		return d.regs[i].seq < d.regs[j].seq
	})

	cons := make([]*consumer.Consumer, 0, len(tables))
	for _, t := range tables {
		c, ok := d.consumers[t]
		if !ok {
			c = consumer.New(t)
			d.consumers[t] = c
		}
		d.ownerOf[t] = reg
		cons = append(cons, c)
	}
	return cons
}

// ConsumerFor returns the consumer queue for table, for tests and for
// config-manager-facing APPL/CONFIG writers feeding the agent directly
// in-process.
func (d *Dispatcher) ConsumerFor(table string) (*consumer.Consumer, bool) {
	c, ok := d.consumers[table]
	return c, ok
}

// Tick runs one scheduling pass (spec.md §4.3 steps 1-4): drain due
// retries, dispatch pending batches to their owning handler in priority
// order, run timer callbacks if the CRM interval elapsed, and
// demultiplex pending SAI notifications.
func (d *Dispatcher) Tick(ctx context.Context) {
	for _, c := range d.consumers {
		c.PromoteDue()
	}

	for _, reg := range d.regs {
		var batch []consumer.Mutation
		for _, t := range reg.tables {
			c := d.consumers[t]
			tableBatch := c.Drain(0)
			for i := range tableBatch {
				tableBatch[i].Table = t
			}
			batch = append(batch, tableBatch...)
		}
		if len(batch) == 0 {
			continue
		}
		results := reg.h.ProcessBatch(ctx, batch)
		d.applyResults(reg, batch, results)
	}

	if time.Since(d.lastCRM) >= d.crmInterval {
		d.runTimers(ctx)
		d.lastCRM = time.Now()
	}

	d.demuxNotifications(ctx)
}

func (d *Dispatcher) applyResults(reg *registration, batch []consumer.Mutation, results []handler.Result) {
	for i, m := range batch {
		if i >= len(results) {
			break
		}
		r := results[i]
		log := swutil.WithResource(reg.h.Name(), m.Table+":"+m.Key)
		switch r.Outcome {
		case handler.Success:
			log.Debug("applied")
			d.promoteWaiters(m.Table + ":" + m.Key)
		case handler.Ignore:
			log.Debug("ignored (no-op)")
		case handler.InvalidEntry:
			log.Warnf("invalid entry: %v", r.Err)
		case handler.NeedRetry:
			log.Infof("deferred for retry: %v", r.Err)
			cons := d.consumers[m.Table]
			if cons != nil {
				cons.DeferRetry(m, "")
			}
		case handler.WaitingForDependency:
			log.Infof("waiting on %s", r.DependencyKey)
			cons := d.consumers[m.Table]
			if cons != nil {
				cons.DeferRetry(m, r.DependencyKey)
			}
		case handler.Failed:
			log.Errorf("failed: %v", r.Err)
		}
	}
}

// promoteWaiters unblocks any retry-cache entry across every table whose
// constraint matches the resource key that just changed (spec.md §4.2).
func (d *Dispatcher) promoteWaiters(resourceKey string) {
	for _, c := range d.consumers {
		c.PromoteConstraint(resourceKey)
	}
}

func (d *Dispatcher) runTimers(ctx context.Context) {
	for _, reg := range d.regs {
		if th, ok := reg.h.(handler.TimerHandler); ok {
			th.OnTimer(ctx)
		}
	}
}

// demuxNotifications drains all currently pending SAI notifications
// (non-blocking) and routes each to every handler implementing
// NotificationHandler; a handler ignores notifications for object
// types/ids it doesn't own.
func (d *Dispatcher) demuxNotifications(ctx context.Context) {
	if d.saiNotifications == nil {
		return
	}
	for {
		select {
		case n, ok := <-d.saiNotifications:
			if !ok {
				d.saiNotifications = nil
				return
			}
			for _, reg := range d.regs {
				if nh, ok := reg.h.(handler.NotificationHandler); ok {
					nh.OnNotification(ctx, n)
				}
			}
		default:
			return
		}
	}
}

// Shutdown flushes pending mutations through one final dispatch pass
// and marks the dispatcher as shut down (spec.md §4.3, §5).
func (d *Dispatcher) Shutdown(ctx context.Context) {
	d.shuttingDown = true
	d.Tick(ctx)
}

// ShuttingDown reports whether Shutdown has been called.
func (d *Dispatcher) ShuttingDown() bool { return d.shuttingDown }

// Run drives the event loop until ctx is cancelled, sleeping between
// ticks up to the poll timeout — the agent's one suspension point
// (spec.md §4.3 "Cancellation and suspension").
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.pollTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			d.Shutdown(context.Background())
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

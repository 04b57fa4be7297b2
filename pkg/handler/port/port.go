// Package port implements the port-initialization state machine of
// spec.md §4.5: ConfigMissing -> ConfigReceived -> ConfigDone. The
// neighbor handler consults this package before accepting a reference
// to a port, becoming WaitingForDependency(port) for any earlier state.
// The route handler does not consult port state.
//
// Grounded on the teacher's pkg/newtron/network/node/interface_ops.go
// DependencyChecker (itself a "is this resource safe to reference yet"
// gate), generalized from ACL/VLAN/service membership checks into an
// explicit three-state machine.
package port

import (
	"context"
	"fmt"
	"sync"

	"github.com/fabricwire/swssd/pkg/consumer"
	"github.com/fabricwire/swssd/pkg/dbadapter"
	"github.com/fabricwire/swssd/pkg/handler"
	"github.com/fabricwire/swssd/pkg/handler/simple"
	"github.com/fabricwire/swssd/pkg/registry"
	"github.com/fabricwire/swssd/pkg/sai"
)

// State is one stage of a port's initialization lifecycle.
type State int

const (
	ConfigMissing State = iota
	ConfigReceived
	ConfigDone
)

func (s State) String() string {
	switch s {
	case ConfigMissing:
		return "ConfigMissing"
	case ConfigReceived:
		return "ConfigReceived"
	case ConfigDone:
		return "ConfigDone"
	default:
		return "Unknown"
	}
}

// validTransitions enumerates the only state machine edges spec.md
// §4.5 permits; anything else is a caller bug.
var validTransitions = map[State][]State{
	ConfigMissing:  {ConfigReceived},
	ConfigReceived: {ConfigDone, ConfigMissing},
	ConfigDone:     {ConfigMissing},
}

// Tracker owns every known port's initialization state.
type Tracker struct {
	mu     sync.RWMutex
	states map[string]State
}

// NewTracker creates an empty port-state tracker.
func NewTracker() *Tracker {
	return &Tracker{states: make(map[string]State)}
}

// State returns a port's current state, defaulting to ConfigMissing for
// a port never seen before.
func (t *Tracker) State(port string) State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.states[port]
}

// Transition moves a port to a new state, rejecting any edge outside
// validTransitions.
func (t *Tracker) Transition(port string, to State) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	from := t.states[port]
	if from == to {
		return nil
	}
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			t.states[port] = to
			return nil
		}
	}
	return fmt.Errorf("port %s: invalid transition %s -> %s", port, from, to)
}

// RequireReady returns nil for a port in ConfigDone and a
// WaitingForDependency(port) result for any earlier state. The neighbor
// handler calls this before accepting a port; the route handler does
// not call it.
func (t *Tracker) RequireReady(port string) *handler.Result {
	if t.State(port) == ConfigDone {
		return nil
	}
	r := handler.WaitFor(port)
	return &r
}

// OnConfigReceived records that CONFIG_DB has delivered the port's
// configuration; it does not yet mean SAI has programmed the port.
func (t *Tracker) OnConfigReceived(ctx context.Context, port string) error {
	return t.Transition(port, ConfigReceived)
}

// OnProgrammed records that SAI has finished programming the port,
// moving it to ConfigDone and unblocking anything parked on this port
// as a dependency.
func (t *Tracker) OnProgrammed(ctx context.Context, port string) error {
	return t.Transition(port, ConfigDone)
}

// OnRemoved resets a port back to ConfigMissing, e.g. on a CONFIG_DB
// delete or a SAI port-removed notification.
func (t *Tracker) OnRemoved(ctx context.Context, port string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, port)
	return nil
}

// Handler adapts a Tracker to the dispatcher's handler.Handler contract
// for PORT_TABLE: a Set moves a port ConfigMissing -> ConfigReceived,
// programs its SAI port object, then moves it to ConfigDone, unblocking
// anything parked on it via RequireReady; a Delete tears the SAI object
// down and resets the port to ConfigMissing.
type Handler struct {
	tracker *Tracker
	reg     *registry.Registry[struct{}]
	sai     sai.Client
	state   *dbadapter.Adapter
}

// NewHandler wraps tracker as a dispatcher handler bound to a SAI
// client for port object lifecycle.
func NewHandler(tracker *Tracker, client sai.Client, state *dbadapter.Adapter) *Handler {
	return &Handler{tracker: tracker, reg: registry.New[struct{}]("PORT"), sai: client, state: state}
}

// Raw exposes the underlying generic registry for warm-restart bake/load
// and CRM polling.
func (h *Handler) Raw() *registry.Registry[struct{}] { return h.reg }

func (h *Handler) Name() string { return "port" }

// Priority runs before every other handler: neighbor resolution gates
// on port readiness.
func (h *Handler) Priority() int { return 0 }

// ProcessBatch implements handler.Handler for PORT_TABLE mutations.
func (h *Handler) ProcessBatch(ctx context.Context, batch []consumer.Mutation) []handler.Result {
	results := make([]handler.Result, len(batch))
	for i, m := range batch {
		if m.Op == dbadapter.Delete {
			if e, ok := h.reg.Lookup(m.Key); ok {
				if err := h.sai.Remove(ctx, sai.ObjectPort, e.SAIID); err != nil {
					results[i] = handler.FromSAIError(err)
					continue
				}
				h.reg.Destroy(m.Key)
			}
			h.tracker.OnRemoved(ctx, m.Key)
			results[i] = handler.Ok()
			continue
		}

		if err := h.tracker.OnConfigReceived(ctx, m.Key); err != nil {
			results[i] = handler.Fail(err)
			continue
		}
		entry, err := simple.CreateOrGet(ctx, h.reg, h.sai, sai.ObjectPort, m.Key, sai.Attrs{"speed": m.Fields["speed"], "mtu": m.Fields["mtu"]}, func() struct{} { return struct{}{} })
		if err != nil {
			results[i] = handler.FromSAIError(err)
			continue
		}
		_ = entry
		if err := h.tracker.OnProgrammed(ctx, m.Key); err != nil {
			results[i] = handler.Fail(err)
			continue
		}
		results[i] = handler.Ok()
	}
	return results
}

// Bake snapshots every programmed port onto STATE_DB ahead of a warm
// restart (spec.md §4.9 phase 1).
func (h *Handler) Bake(ctx context.Context) (bool, error) {
	return simple.Bake(ctx, h.reg, h.state, "PORT_TABLE", func(struct{}) map[string]string {
		return map[string]string{}
	})
}

// OnWarmBootEnd reloads the port registry from its STATE_DB snapshot
// and rebuilds its reverse OID index (spec.md §4.9 phase 3), promoting
// every previously-ConfigDone port back to ConfigDone so neighbor/route
// dependency gating does not re-block on a port that was already ready
// before the restart.
func (h *Handler) OnWarmBootEnd(ctx context.Context) error {
	if err := simple.OnWarmBootEnd(ctx, h.reg, h.state, "PORT_TABLE", func(string, map[string]string) struct{} {
		return struct{}{}
	}); err != nil {
		return err
	}
	for _, key := range h.reg.Keys() {
		h.tracker.OnConfigReceived(ctx, key)
		h.tracker.OnProgrammed(ctx, key)
	}
	return nil
}

// Package neighbor implements the neighbor handler and its BFD session
// state machine (spec.md §4.5): AdminDown -> Init -> Up -> Down ->
// AdminDown, driven by external notifications, with a Down transition
// firing every callback registered through ObserveDown (grounded on
// orchagent/src/bfd/mod.rs). No handler in this module registers one:
// the route and next-hop-group handlers do not react to a BFD Down.
//
// Traffic Shift (TSA) interacts with this state machine by removing and
// later restoring any session marked shutdown_bfd_during_tsa, per
// spec.md §4.5's third state-machine bullet.
package neighbor

import (
	"context"
	"fmt"
	"sync"

	"github.com/fabricwire/swssd/pkg/consumer"
	"github.com/fabricwire/swssd/pkg/dbadapter"
	"github.com/fabricwire/swssd/pkg/handler"
	"github.com/fabricwire/swssd/pkg/handler/iface"
	"github.com/fabricwire/swssd/pkg/handler/port"
	"github.com/fabricwire/swssd/pkg/handler/simple"
	"github.com/fabricwire/swssd/pkg/registry"
	"github.com/fabricwire/swssd/pkg/sai"
)

// BFDState is one stage of a BFD session's lifecycle.
type BFDState int

const (
	AdminDown BFDState = iota
	Init
	Up
	Down
)

func (s BFDState) String() string {
	switch s {
	case AdminDown:
		return "AdminDown"
	case Init:
		return "Init"
	case Up:
		return "Up"
	case Down:
		return "Down"
	default:
		return "Unknown"
	}
}

var bfdTransitions = map[BFDState][]BFDState{
	AdminDown: {Init},
	Init:      {Up, Down, AdminDown},
	Up:        {Down, AdminDown},
	Down:      {AdminDown, Init},
}

// NeighborAttrs is the semantic payload of one neighbor entry: the
// resolved MAC binding plus the BFD session tracking its reachability,
// if one is configured.
type NeighborAttrs struct {
	Port string
	MAC  string

	bfdState        BFDState
	shutdownOnTSA   bool
	savedBeforeTSA  BFDState // state to restore when TSA is disabled
}

// DownObserver is notified when a BFD session transitions to Down, with
// the neighbor's registry key.
type DownObserver func(ctx context.Context, neighborKey string)

// Registry owns every live neighbor entry and its BFD session state.
type Registry struct {
	reg    *registry.Registry[*NeighborAttrs]
	ports  *port.Tracker
	ifaces *iface.Registry
	sai    sai.Client
	mu     sync.Mutex
	onDown []DownObserver
}

// New creates a neighbor registry gated on a port-readiness tracker and
// on ifaces's interface-existence check (spec.md:57 "Interface must
// exist").
func New(ports *port.Tracker, ifaces *iface.Registry, client sai.Client) *Registry {
	return &Registry{reg: registry.New[*NeighborAttrs]("NEIGHBOR"), ports: ports, ifaces: ifaces, sai: client}
}

// Raw exposes the underlying generic registry for warm-restart bake/load.
func (r *Registry) Raw() *registry.Registry[*NeighborAttrs] { return r.reg }

// ObserveDown registers a callback invoked on every BFD Down transition.
func (r *Registry) ObserveDown(obs DownObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDown = append(r.onDown, obs)
}

// Key derives a neighbor's registry key.
func Key(vrf, ip string) string { return vrf + "|" + ip }

// Set creates or updates a neighbor entry. Per spec.md §4.5's port
// state-machine rule, a neighbor on a port that has not reached
// ConfigDone becomes WaitingForDependency(port) rather than Failed.
func (r *Registry) Set(ctx context.Context, vrf, ip, portName, mac string) handler.Result {
	if wait := r.ports.RequireReady(portName); wait != nil {
		return *wait
	}
	if !r.ifaces.Exists(portName) {
		return handler.WaitFor("INTERFACE_TABLE:" + portName)
	}
	key := Key(vrf, ip)
	attrs := sai.Attrs{"port": portName, "mac": mac}

	if e, ok := r.reg.Lookup(key); ok {
		if err := r.sai.SetAttribute(ctx, sai.ObjectNeighbor, e.SAIID, attrs); err != nil {
			return handler.FromSAIError(err)
		}
		prevPort := e.Attrs.Port
		e.Attrs.Port = portName
		e.Attrs.MAC = mac
		if prevPort != portName {
			if err := r.ifaces.Incref(portName); err != nil {
				return handler.Fail(err)
			}
			if err := r.ifaces.Release(prevPort); err != nil {
				return handler.Fail(err)
			}
		}
		return handler.Ok()
	}

	oid, err := r.sai.Create(ctx, sai.ObjectNeighbor, attrs)
	if err != nil {
		return handler.FromSAIError(err)
	}
	if _, _, err := r.reg.GetOrCreate(key, func() (uint64, *NeighborAttrs) {
		return oid, &NeighborAttrs{Port: portName, MAC: mac, bfdState: AdminDown}
	}); err != nil {
		r.sai.Remove(ctx, sai.ObjectNeighbor, oid)
		return handler.Fail(err)
	}
	if err := r.ifaces.Incref(portName); err != nil {
		return handler.Fail(err)
	}
	return handler.Ok()
}

// Remove deletes a neighbor entry and releases its interface reference.
func (r *Registry) Remove(ctx context.Context, vrf, ip string) handler.Result {
	key := Key(vrf, ip)
	e, ok := r.reg.Lookup(key)
	if !ok {
		return handler.NoOp()
	}
	if err := r.sai.Remove(ctx, sai.ObjectNeighbor, e.SAIID); err != nil {
		return handler.FromSAIError(err)
	}
	portName := e.Attrs.Port
	if err := r.reg.Destroy(key); err != nil {
		return handler.Fail(err)
	}
	if err := r.ifaces.Release(portName); err != nil {
		return handler.Fail(err)
	}
	return handler.Ok()
}

// BFDState returns the current BFD session state for a neighbor, or
// AdminDown if none is tracked.
func (r *Registry) BFDState(vrf, ip string) BFDState {
	e, ok := r.reg.Lookup(Key(vrf, ip))
	if !ok {
		return AdminDown
	}
	return e.Attrs.bfdState
}

// TransitionBFD applies an external BFD notification to a neighbor's
// session, firing Down observers exactly once per transition into Down.
func (r *Registry) TransitionBFD(ctx context.Context, vrf, ip string, to BFDState) error {
	key := Key(vrf, ip)
	e, ok := r.reg.Lookup(key)
	if !ok {
		return fmt.Errorf("neighbor %s: no BFD session tracked", key)
	}
	from := e.Attrs.bfdState
	if from == to {
		return nil
	}
	allowed := false
	for _, s := range bfdTransitions[from] {
		if s == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("neighbor %s: invalid BFD transition %s -> %s", key, from, to)
	}
	e.Attrs.bfdState = to
	if to == Down {
		r.fireDown(ctx, key)
	}
	return nil
}

func (r *Registry) fireDown(ctx context.Context, key string) {
	r.mu.Lock()
	observers := append([]DownObserver(nil), r.onDown...)
	r.mu.Unlock()
	for _, obs := range observers {
		obs(ctx, key)
	}
}

// SetShutdownOnTSA marks whether a neighbor's BFD session is torn down
// while TSA is active (spec.md §4.5's shutdown_bfd_during_tsa flag).
func (r *Registry) SetShutdownOnTSA(vrf, ip string, shutdown bool) error {
	e, ok := r.reg.Lookup(Key(vrf, ip))
	if !ok {
		return fmt.Errorf("neighbor %s: not found", Key(vrf, ip))
	}
	e.Attrs.shutdownOnTSA = shutdown
	return nil
}

// ApplyTSA implements spec.md §4.5's third state machine: when enabled,
// every session with shutdownOnTSA=true is moved to AdminDown (its
// prior state saved); when disabled, each is restored to the state it
// held before TSA began.
func (r *Registry) ApplyTSA(ctx context.Context, enabled bool) error {
	for _, key := range r.reg.Keys() {
		e, ok := r.reg.Lookup(key)
		if !ok || !e.Attrs.shutdownOnTSA {
			continue
		}
		if enabled {
			if e.Attrs.bfdState == AdminDown {
				continue
			}
			e.Attrs.savedBeforeTSA = e.Attrs.bfdState
			e.Attrs.bfdState = AdminDown
		} else {
			if e.Attrs.savedBeforeTSA == 0 && e.Attrs.bfdState != AdminDown {
				continue
			}
			e.Attrs.bfdState = e.Attrs.savedBeforeTSA
			e.Attrs.savedBeforeTSA = AdminDown
		}
	}
	return nil
}

// Handler adapts a Registry to the dispatcher's handler.Handler
// contract for NEIGH_TABLE. Mutation keys are "vrf|ip"; the "neigh"
// field carries the resolved MAC, and "port" the owning interface,
// matching SONiC's NEIGH_TABLE field convention.
type Handler struct {
	reg   *Registry
	state *dbadapter.Adapter
}

// NewHandler wraps reg as a dispatcher handler.
func NewHandler(reg *Registry, state *dbadapter.Adapter) *Handler {
	return &Handler{reg: reg, state: state}
}

func (h *Handler) Name() string { return "neighbor" }

// Priority runs after port (which it depends on via RequireReady) but
// before route, since routes resolve next hops through this table.
func (h *Handler) Priority() int { return 40 }

func splitVRFIP(key string) (vrf, ip string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[:i], key[i+1:]
		}
	}
	return "default", key
}

// ProcessBatch implements handler.Handler for NEIGH_TABLE mutations.
func (h *Handler) ProcessBatch(ctx context.Context, batch []consumer.Mutation) []handler.Result {
	results := make([]handler.Result, len(batch))
	for i, m := range batch {
		vrf, ip := splitVRFIP(m.Key)
		if m.Op == dbadapter.Delete {
			results[i] = h.reg.Remove(ctx, vrf, ip)
			continue
		}
		results[i] = h.reg.Set(ctx, vrf, ip, m.Fields["port"], m.Fields["neigh"])
	}
	return results
}

// Bake snapshots the neighbor registry onto STATE_DB ahead of a warm
// restart (spec.md §4.9 phase 1).
func (h *Handler) Bake(ctx context.Context) (bool, error) {
	return simple.Bake(ctx, h.reg.Raw(), h.state, "NEIGH_TABLE", func(a *NeighborAttrs) map[string]string {
		return map[string]string{"port": a.Port, "neigh": a.MAC, "bfd_state": a.bfdState.String()}
	})
}

// parseBFDState is the inverse of BFDState.String, used to reconstruct
// a neighbor's BFD session state from its STATE_DB snapshot.
func parseBFDState(s string) BFDState {
	switch s {
	case "Init":
		return Init
	case "Up":
		return Up
	case "Down":
		return Down
	default:
		return AdminDown
	}
}

// OnWarmBootEnd reloads the neighbor registry from its STATE_DB
// snapshot and rebuilds its reverse OID index (spec.md §4.9 phase 3).
func (h *Handler) OnWarmBootEnd(ctx context.Context) error {
	return simple.OnWarmBootEnd(ctx, h.reg.Raw(), h.state, "NEIGH_TABLE", func(key string, fields map[string]string) *NeighborAttrs {
		return &NeighborAttrs{Port: fields["port"], MAC: fields["neigh"], bfdState: parseBFDState(fields["bfd_state"])}
	})
}

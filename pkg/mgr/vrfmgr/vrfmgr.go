// Package vrfmgr allocates kernel routing-table ids for VRFs and
// manages the FIB-rule ordering that routes lookups into them (spec.md
// §4.7 "VRF manager").
//
// Grounded on the teacher's pkg/newtron/network/node/vrf_ops.go
// (validated allocation, never bracket-index auto-vivification) and
// registry.Registry's Incref/Decref discipline, reused here for the
// table-id pool instead of a SAI object.
package vrfmgr

import (
	"context"
	"fmt"

	"github.com/fabricwire/swssd/pkg/dbadapter"
	"github.com/fabricwire/swssd/pkg/mgr"
)

// Table-id pool and reserved ids, spec.md §4.7.
const (
	TableIDMin  = 1001
	TableIDMax  = 2000
	MgmtVRFID   = 5000
	localRuleIDIPv4Priority = 1001
	defaultRuleIDPriority   = 0
)

// Pool allocates table ids from [TableIDMin, TableIDMax], reserving
// MgmtVRFID for the management VRF out of band.
type Pool struct {
	next      int
	allocated map[string]int
	free      []int
}

// NewPool creates an empty allocation pool.
func NewPool() *Pool {
	return &Pool{next: TableIDMin, allocated: make(map[string]int)}
}

// Allocate returns the table id assigned to vrfName, allocating a new
// one from the pool (preferring a freed id) if none exists yet.
func (p *Pool) Allocate(vrfName string) (int, error) {
	if id, ok := p.allocated[vrfName]; ok {
		return id, nil
	}
	var id int
	if n := len(p.free); n > 0 {
		id = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		if p.next > TableIDMax {
			return 0, fmt.Errorf("vrfmgr: table id pool [%d,%d] exhausted", TableIDMin, TableIDMax)
		}
		id = p.next
		p.next++
	}
	p.allocated[vrfName] = id
	return id, nil
}

// Release returns vrfName's table id to the free list.
func (p *Pool) Release(vrfName string) {
	id, ok := p.allocated[vrfName]
	if !ok {
		return
	}
	delete(p.allocated, vrfName)
	p.free = append(p.free, id)
}

// Lookup returns the table id already allocated to vrfName, if any.
func (p *Pool) Lookup(vrfName string) (int, bool) {
	id, ok := p.allocated[vrfName]
	return id, ok
}

// Len reports how many VRFs currently hold an allocation.
func (p *Pool) Len() int { return len(p.allocated) }

// Manager reconciles CONFIG_DB's VRF table: table-id allocation and the
// local-rule swap that happens exactly once, after the first VRF is
// created.
type Manager struct {
	*mgr.Base
	pool          *Pool
	localRuleDone bool
}

// New creates a VRF manager.
func New(base *mgr.Base) *Manager {
	return &Manager{Base: base, pool: NewPool()}
}

// Run drives the VRF table subscription.
func (m *Manager) Run(ctx context.Context) error {
	return m.RunLoop(ctx, "VRF", m.handleBatch)
}

func (m *Manager) handleBatch(ctx context.Context, batch []dbadapter.Event) {
	for _, ev := range batch {
		if ev.Op == dbadapter.Delete {
			m.pool.Release(ev.Key)
			continue
		}
		if err := m.createVRF(ctx, ev.Key); err != nil {
			m.Log().Warnf("vrf %s: %v", ev.Key, err)
		}
	}
}

// createVRF allocates a table id for name (MgmtVRF gets the reserved
// id 5000, never the pool), creates the kernel VRF device, and —
// exactly once, the first time any VRF is created — installs the
// priority-1001 local rules and removes the default priority-0 rule,
// in that order (spec.md §4.7).
func (m *Manager) createVRF(ctx context.Context, name string) error {
	var tableID int
	if name == "mgmt" {
		tableID = MgmtVRFID
	} else {
		id, err := m.pool.Allocate(name)
		if err != nil {
			return err
		}
		tableID = id
	}

	if _, err := m.Eff.Run(ctx, "/sbin/ip", "link", "add", name, "type", "vrf", "table", fmt.Sprintf("%d", tableID)); err != nil {
		return err
	}
	if _, err := m.Eff.Run(ctx, "/sbin/ip", "link", "set", "dev", name, "up"); err != nil {
		return err
	}

	if !m.localRuleDone {
		if err := m.installLocalRules(ctx); err != nil {
			return err
		}
		m.localRuleDone = true
	}
	return nil
}

// installLocalRules installs the priority-1001 local lookup rule for
// IPv4 and IPv6 and then removes the default priority-0 rule, in that
// order (spec.md §4.7) — reordered would leave a window with no local
// lookup rule at all.
func (m *Manager) installLocalRules(ctx context.Context) error {
	if _, err := m.Eff.Run(ctx, "/sbin/ip", "rule", "add", "pref", fmt.Sprintf("%d", localRuleIDIPv4Priority), "table", "local"); err != nil {
		return err
	}
	if _, err := m.Eff.Run(ctx, "/sbin/ip", "-6", "rule", "add", "pref", fmt.Sprintf("%d", localRuleIDIPv4Priority), "table", "local"); err != nil {
		return err
	}
	if _, err := m.Eff.Run(ctx, "/sbin/ip", "rule", "del", "pref", fmt.Sprintf("%d", defaultRuleIDPriority)); err != nil {
		return err
	}
	if _, err := m.Eff.Run(ctx, "/sbin/ip", "-6", "rule", "del", "pref", fmt.Sprintf("%d", defaultRuleIDPriority)); err != nil {
		return err
	}
	return nil
}

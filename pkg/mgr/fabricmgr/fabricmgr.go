// Package fabricmgr passes fabric monitoring configuration from
// CONFIG_DB straight through to APPL_DB: global threshold data
// (FABRIC_MONITOR_DATA) and per-port configuration (FABRIC_PORT), field
// by field, with no kernel effector involved (spec.md §6 table list;
// no shell-command semantics are specified for this manager, matching
// the pure pass-through original_source/crates/fabricmgrd implements).
package fabricmgr

import (
	"context"

	"github.com/fabricwire/swssd/pkg/dbadapter"
	"github.com/fabricwire/swssd/pkg/mgr"
)

// Manager passes FABRIC_MONITOR_DATA and FABRIC_PORT straight through.
type Manager struct {
	*mgr.Base
}

// New creates a fabric manager.
func New(base *mgr.Base) *Manager { return &Manager{Base: base} }

// RunMonitorData drives the FABRIC_MONITOR_DATA table subscription.
func (m *Manager) RunMonitorData(ctx context.Context) error {
	return m.RunLoop(ctx, "FABRIC_MONITOR_DATA", m.passthrough("FABRIC_MONITOR_DATA"))
}

// RunPorts drives the FABRIC_PORT table subscription.
func (m *Manager) RunPorts(ctx context.Context) error {
	return m.RunLoop(ctx, "FABRIC_PORT", m.passthrough("FABRIC_PORT"))
}

func (m *Manager) passthrough(table string) func(context.Context, []dbadapter.Event) {
	return func(ctx context.Context, batch []dbadapter.Event) {
		for _, ev := range batch {
			var err error
			if ev.Op == dbadapter.Delete {
				err = m.Appl.DeleteKey(ctx, table, ev.Key)
			} else {
				err = m.Appl.Write(ctx, table, ev.Key, ev.Fields)
			}
			if err != nil {
				m.Log().Warnf("%s %s: %v", table, ev.Key, err)
			}
		}
	}
}

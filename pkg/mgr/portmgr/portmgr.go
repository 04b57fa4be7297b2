// Package portmgr reconciles PORT table configuration (MTU, admin
// status) with the kernel, waiting for SAI-confirmed STATE readiness
// before publishing to APPL (spec.md §4.7 "Port manager").
//
// Grounded on the teacher's pkg/newtron/network/node/interface_ops.go
// precondition-then-effect shape, adapted from a one-shot CLI mutation
// to a CONFIG-subscribed reconciliation loop; kernel commands follow
// the idempotent-form discipline of spec.md §4.7 ("ip route replace
// rather than add").
package portmgr

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/fabricwire/swssd/pkg/dbadapter"
	"github.com/fabricwire/swssd/pkg/mgr"
)

const (
	// StateReadyTimeout bounds how long the manager waits for SAI to
	// report a port as operational before publishing APPL config for it.
	StateReadyTimeout = 5 * time.Second

	fieldMTU         = "mtu"
	fieldAdminStatus = "admin_status"
	fieldOperStatus  = "oper_status"
)

// Manager reconciles CONFIG_DB's PORT table against the kernel.
type Manager struct {
	*mgr.Base
}

// New creates a port manager.
func New(base *mgr.Base) *Manager { return &Manager{Base: base} }

// Run drives the PORT table subscription until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	return m.RunLoop(ctx, "PORT", m.handleBatch)
}

func (m *Manager) handleBatch(ctx context.Context, batch []dbadapter.Event) {
	for _, ev := range batch {
		if ev.Op == dbadapter.Delete {
			continue
		}
		if err := m.reconcile(ctx, ev.Key, ev.Fields); err != nil {
			m.Log().Warnf("port %s: %v", ev.Key, err)
		}
	}
}

// reconcile applies MTU and admin-status changes for one port, waiting
// for SAI readiness before writing APPL (spec.md §4.7).
func (m *Manager) reconcile(ctx context.Context, port string, fields map[string]string) error {
	if !m.WaitForState(ctx, "PORT_TABLE", port, fieldOperStatus, "up", StateReadyTimeout) {
		m.Log().Debugf("port %s: not yet ready, skipping this cycle", port)
		return nil
	}

	cmds, err := buildPortCommands(port, fields)
	if err != nil {
		return err
	}
	for _, argv := range cmds {
		if _, err := m.Eff.Run(ctx, argv...); err != nil {
			return err
		}
	}

	return m.Appl.Write(ctx, "PORT_TABLE", port, fields)
}

// buildPortCommands renders the idempotent `ip link set` invocations
// for a port's MTU and admin-status fields. Pure and order-stable so it
// can be tested without a live effector or kernel.
func buildPortCommands(port string, fields map[string]string) ([][]string, error) {
	var cmds [][]string
	if mtuStr, ok := fields[fieldMTU]; ok {
		mtu, err := strconv.Atoi(mtuStr)
		if err != nil {
			return nil, fmt.Errorf("invalid mtu %q: %w", mtuStr, err)
		}
		cmds = append(cmds, []string{"/sbin/ip", "link", "set", "dev", port, "mtu", strconv.Itoa(mtu)})
	}
	if admin, ok := fields[fieldAdminStatus]; ok {
		state := "down"
		if admin == "up" {
			state = "up"
		}
		cmds = append(cmds, []string{"/sbin/ip", "link", "set", "dev", port, state})
	}
	return cmds, nil
}

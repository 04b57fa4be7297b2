// Package mgr provides the shared scaffolding every configuration
// manager daemon builds on: a CONFIG subscription loop, an APPL writer,
// and a dry-run-aware shell effector (spec.md §4.7). Manager-specific
// transform logic lives in its own sub-package (pkg/mgr/portmgr,
// pkg/mgr/vlanmgr, ...); this package only owns what's common.
//
// Grounded on the teacher's per-device polling loop in
// pkg/newtron/device/sonic/*.go (subscribe, transform, write) reduced to
// the single-table-family shape a SONiC config manager has, and on
// cmd/newtron/main.go's flag-parsing/log-setup style for the daemon
// entrypoints that embed a Base.
package mgr

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fabricwire/swssd/pkg/dbadapter"
	"github.com/fabricwire/swssd/pkg/effector"
	"github.com/fabricwire/swssd/pkg/swutil"
)

// Base is embedded by every manager's top-level type. It owns the three
// database adapters a manager typically needs (CONFIG read, APPL write,
// STATE read for readiness gating) and the shell effector.
type Base struct {
	Name   string
	Config *dbadapter.Adapter
	Appl   *dbadapter.Adapter
	State  *dbadapter.Adapter
	Eff    *effector.Effector
}

// NewBase wires a manager's adapters. config/appl/state may share one
// *redis.Client under the hood (dbadapter.Adapter instances differ only
// by logical DB instance); state may be nil for managers with no
// readiness dependency.
func NewBase(name string, config, appl, state *dbadapter.Adapter, dryRun bool) *Base {
	return &Base{
		Name:   name,
		Config: config,
		Appl:   appl,
		State:  state,
		Eff:    effector.New(name).WithDryRun(dryRun),
	}
}

// Log returns a logger scoped to this manager.
func (b *Base) Log() *logrus.Entry { return swutil.WithField("manager", b.Name) }

// RunLoop subscribes to table on Config and calls handle for every
// batch of events until ctx is cancelled, matching spec.md §5's
// "configuration managers are also single-threaded" and "awaits
// completion of each [command] before proceeding" — handle is called
// synchronously and RunLoop does not fan events out concurrently.
func (b *Base) RunLoop(ctx context.Context, table string, handle func(context.Context, []dbadapter.Event)) error {
	events, err := b.Config.Subscribe(ctx, table)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-events:
			if !ok {
				return nil
			}
			handle(ctx, batch)
		}
	}
}

// WaitForState polls State for table:key to appear with the given
// field set to value, used by managers that must not publish to APPL
// before SAI has confirmed readiness (spec.md §4.7 "waits for STATE
// port readiness"). It gives up after timeout and returns false.
func (b *Base) WaitForState(ctx context.Context, table, key, field, value string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		fields, ok, err := b.State.Read(ctx, table, key)
		if err == nil && ok && fields[field] == value {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
}

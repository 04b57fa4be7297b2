// Package warmrestart implements the cooperative process-replacement
// protocol of spec.md §4.9: freeze (snapshot every registry to STATE_DB),
// handover (SAI enters warm-boot mode), thaw (the new process reloads
// registries before subscribing to anything), and a bounded
// reconciliation window.
//
// Grounded on the teacher's pkg/newtron/device/sonic/state.go and
// statedb.go (STATE_DB snapshot read/write shape), generalized from a
// one-shot CLI read into the four-phase handoff protocol.
package warmrestart

import (
	"context"
	"fmt"
	"time"

	"github.com/fabricwire/swssd/pkg/handler"
	"github.com/fabricwire/swssd/pkg/sai"
	"github.com/fabricwire/swssd/pkg/swutil"
)

// DefaultReconciliationWindow bounds how long a handler tolerates
// missing pieces after thaw before it gives up and proceeds (spec.md
// §4.9 phase 4).
const DefaultReconciliationWindow = 90 * time.Second

// Controller drives the warm-restart protocol across every registered
// handler. It holds no registry state itself — each handler owns its
// own Bake/OnWarmBootEnd implementation — per spec.md §9 "Replacing
// global singletons".
type Controller struct {
	handlers []handler.Handler
	window   time.Duration
	now      func() time.Time
}

// New creates a Controller for the given handlers.
func New(handlers ...handler.Handler) *Controller {
	return &Controller{
		handlers: handlers,
		window:   DefaultReconciliationWindow,
		now:      time.Now,
	}
}

// WithReconciliationWindow overrides the default 90s window.
func (c *Controller) WithReconciliationWindow(d time.Duration) *Controller {
	c.window = d
	return c
}

// Freeze runs phase 1: every handler bakes its registry onto STATE_DB.
// The old process continues servicing SAI until Handover is called; a
// failure from one handler does not stop the others from baking, but
// all failures are returned together.
func (c *Controller) Freeze(ctx context.Context) error {
	var errs []error
	for _, h := range c.handlers {
		if _, err := h.Bake(ctx); err != nil {
			errs = append(errs, fmt.Errorf("bake %s: %w", h.Name(), err))
		}
	}
	return joinErrors(errs)
}

// Handover runs phase 2: SAI enters warm-boot mode, after which its
// create calls become idempotent reattachments (spec.md §4.9 phase 2).
func (c *Controller) Handover(ctx context.Context, client sai.Client) error {
	if err := client.WarmBoot(ctx); err != nil {
		return fmt.Errorf("sai warm boot handover: %w", err)
	}
	return nil
}

// Thaw runs phase 3: each handler loads its registry from STATE_DB
// before any CONFIG/APPL subscription is active (the caller is
// responsible for that sequencing — Thaw only drives the
// OnWarmBootEnd hook, which rebuilds the reverse id index and diffs
// fresh CONFIG against the loaded registry per spec.md §4.6, §4.9).
// It opens one ReconciliationWindow per handler and returns them so the
// caller can track unresolved deltas against each.
func (c *Controller) Thaw(ctx context.Context) (map[string]*ReconciliationWindow, error) {
	var errs []error
	windows := make(map[string]*ReconciliationWindow, len(c.handlers))
	for _, h := range c.handlers {
		if err := h.OnWarmBootEnd(ctx); err != nil {
			errs = append(errs, fmt.Errorf("warm boot end %s: %w", h.Name(), err))
			continue
		}
		windows[h.Name()] = &ReconciliationWindow{
			handler: h.Name(),
			start:   c.now(),
			window:  c.window,
			now:     c.now,
		}
	}
	return windows, joinErrors(errs)
}

// ReconciliationWindow tracks one handler's phase-4 tolerance for
// missing pieces after thaw.
type ReconciliationWindow struct {
	handler string
	start   time.Time
	window  time.Duration
	now     func() time.Time
}

// Elapsed returns how much of the window has passed.
func (w *ReconciliationWindow) Elapsed() time.Duration {
	return w.now().Sub(w.start)
}

// Expired reports whether the window has elapsed (spec.md §4.9 "If the
// window elapses with unresolved deltas, the handler logs, reports, and
// proceeds").
func (w *ReconciliationWindow) Expired() bool {
	return w.Elapsed() >= w.window
}

// LogIfExpired logs and reports once the window has elapsed; callers
// poll this once per tick while unresolved deltas remain outstanding.
func (w *ReconciliationWindow) LogIfExpired() {
	if !w.Expired() {
		return
	}
	swutil.WithHandler(w.handler).Warnf(
		"reconciliation window (%s) elapsed with unresolved deltas; proceeding", w.window)
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	msg := errs[0].Error()
	for _, e := range errs[1:] {
		msg += "; " + e.Error()
	}
	return fmt.Errorf("%s", msg)
}

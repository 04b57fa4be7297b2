// Package crm implements Critical Resource Monitoring: periodic
// polling of each resource registry's live entry count against a fixed
// capacity, logging a threshold crossing the way SONiC's "crm show"
// alerting does (spec.md's CRM supplement, grounded on
// orchagent/src/crm/mod.rs's DEFAULT_POLLING_INTERVAL/
// DEFAULT_HIGH_THRESHOLD/DEFAULT_LOW_THRESHOLD and its
// CrmResourceType enumeration of IPv4/IPv6 routes, next hops, next hop
// groups/members, neighbors, ACL, and FDB entries).
//
// orchagent/src/crm/mod.rs's own resource counts come from a SAI
// "available resource" query this module's mock sai.Client has no
// equivalent for, so Resource.Capacity is a fixed per-resource-type
// constant rather than a queried value (see DESIGN.md).
package crm

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/fabricwire/swssd/pkg/consumer"
	"github.com/fabricwire/swssd/pkg/handler"
	"github.com/fabricwire/swssd/pkg/swutil"
)

// Default thresholds, percent of Capacity, matching
// orchagent/src/crm/mod.rs's DEFAULT_HIGH_THRESHOLD/
// DEFAULT_LOW_THRESHOLD.
const (
	DefaultHighThreshold = 85
	DefaultLowThreshold  = 70
)

// ResourceCounter reports a resource type's current live count; every
// pkg/registry.Registry[A] satisfies this via its Len method.
type ResourceCounter func() int

// Resource is one CRM-tracked resource type.
type Resource struct {
	Name     string
	Capacity int
	Count    ResourceCounter
}

// Orch polls a fixed set of resources on each dispatcher timer tick,
// logging when a resource's utilization crosses the high or low
// threshold (with hysteresis: a crossing logs once, not every tick
// while above threshold).
type Orch struct {
	resources []Resource
	high, low int
	exceeded  map[string]bool
	log       *logrus.Entry
}

// New creates a CRM orchestrator over resources using the default
// thresholds.
func New(resources []Resource) *Orch {
	return &Orch{
		resources: resources,
		high:      DefaultHighThreshold,
		low:       DefaultLowThreshold,
		exceeded:  make(map[string]bool),
		log:       swutil.WithField("component", "crm"),
	}
}

// WithThresholds overrides the default high/low percentages.
func (o *Orch) WithThresholds(high, low int) *Orch {
	o.high = high
	o.low = low
	return o
}

func utilization(count, capacity int) int {
	if capacity <= 0 {
		return 0
	}
	return count * 100 / capacity
}

// OnTimer implements handler.TimerHandler: one pass over every tracked
// resource, comparing its current utilization against the high/low
// thresholds.
func (o *Orch) OnTimer(ctx context.Context) {
	for _, r := range o.resources {
		util := utilization(r.Count(), r.Capacity)
		switch {
		case util >= o.high && !o.exceeded[r.Name]:
			o.exceeded[r.Name] = true
			o.log.Warnf("crm: %s utilization %d%% (%d/%d) crossed high threshold %d%%", r.Name, util, r.Count(), r.Capacity, o.high)
		case util <= o.low && o.exceeded[r.Name]:
			o.exceeded[r.Name] = false
			o.log.Infof("crm: %s utilization %d%% (%d/%d) dropped below low threshold %d%%", r.Name, util, r.Count(), r.Capacity, o.low)
		}
	}
}

// Snapshot returns each tracked resource's current live count, keyed by
// name, for CLI/"crm show" style introspection.
func (o *Orch) Snapshot() map[string]int {
	out := make(map[string]int, len(o.resources))
	for _, r := range o.resources {
		out[r.Name] = r.Count()
	}
	return out
}

// Name identifies this handler for logging and registration.
func (o *Orch) Name() string { return "crm" }

// Priority is irrelevant here: Orch owns no table and ProcessBatch is
// never invoked with a non-empty batch, but it must still rank after
// every resource-owning handler so a first tick sees fully-baked state.
func (o *Orch) Priority() int { return 90 }

// ProcessBatch is a no-op: Orch is registered with zero tables and only
// ever receives empty batches.
func (o *Orch) ProcessBatch(ctx context.Context, batch []consumer.Mutation) []handler.Result {
	return nil
}

// Bake has nothing to snapshot: CRM state is derived, not configured.
func (o *Orch) Bake(ctx context.Context) (bool, error) { return false, nil }

// OnWarmBootEnd has nothing to reload; polling resumes against whatever
// registries warm restart has already repopulated.
func (o *Orch) OnWarmBootEnd(ctx context.Context) error { return nil }

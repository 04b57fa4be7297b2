// Package handler defines the handler contract of spec.md §4.4: the
// closed sum of outcomes a handler may return for each mutation it
// processes, and the interface the dispatcher invokes every resource
// type's handler through.
//
// Grounded on the teacher's pkg/newtron/network/node/*_ops.go shape —
// validate via a precondition check, then either return an error or
// commit a mutation — generalized from "return (*ChangeSet, error)" to
// the richer six-outcome alphabet spec.md §9 calls for ("Replacing
// exceptions for control flow": every fallible operation returns a
// result value, never a non-local exit).
package handler

import (
	"context"

	"github.com/fabricwire/swssd/pkg/consumer"
	"github.com/fabricwire/swssd/pkg/sai"
)

// Outcome is the closed sum of per-mutation results, spec.md §4.4.
type Outcome int

const (
	Success Outcome = iota
	Ignore
	InvalidEntry
	NeedRetry
	WaitingForDependency
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "Success"
	case Ignore:
		return "Ignore"
	case InvalidEntry:
		return "InvalidEntry"
	case NeedRetry:
		return "NeedRetry"
	case WaitingForDependency:
		return "WaitingForDependency"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Result is the full return value for one processed mutation: the
// outcome, and for WaitingForDependency the blocking resource key, or
// for any failing outcome the underlying error for logging/STATE_DB
// surfacing (spec.md §7 "failure messages include the resource kind,
// the offending key, and a short reason").
type Result struct {
	Outcome       Outcome
	DependencyKey string // set iff Outcome == WaitingForDependency
	Err           error  // set iff Outcome is InvalidEntry, NeedRetry, or Failed
}

// Ok builds a Success result.
func Ok() Result { return Result{Outcome: Success} }

// NoOp builds an Ignore result (duplicate or no-op given current state).
func NoOp() Result { return Result{Outcome: Ignore} }

// Invalid builds an InvalidEntry result; not retried (spec.md §4.4).
func Invalid(err error) Result { return Result{Outcome: InvalidEntry, Err: err} }

// Retry builds a NeedRetry result; re-enqueued with backoff.
func Retry(err error) Result { return Result{Outcome: NeedRetry, Err: err} }

// WaitFor builds a WaitingForDependency result parked under key.
func WaitFor(key string) Result { return Result{Outcome: WaitingForDependency, DependencyKey: key} }

// Fail builds a Failed result; not retried.
func Fail(err error) Result { return Result{Outcome: Failed, Err: err} }

// FromSAIError classifies a SAI boundary error into NeedRetry (transient)
// or Failed (permanent), spec.md §4.8.
func FromSAIError(err error) Result {
	if sai.IsTransient(err) {
		return Retry(err)
	}
	return Fail(err)
}

// Handler is the mandatory contract every resource-type handler
// implements (spec.md §4.4).
type Handler interface {
	// Name identifies the handler for logging and registration.
	Name() string

	// Priority orders handler invocation; smaller runs earlier. Ties
	// break on registration order (spec.md §4.3, §9 Open Question iii).
	Priority() int

	// ProcessBatch consumes a batch of pending mutations, returning one
	// Result per input mutation in the same order.
	ProcessBatch(ctx context.Context, batch []consumer.Mutation) []Result

	// Bake snapshots this handler's registries onto STATE_DB ahead of a
	// warm restart (spec.md §4.9 phase 1). Returns false if the handler
	// has nothing to snapshot.
	Bake(ctx context.Context) (bool, error)

	// OnWarmBootEnd runs once SAI signals "apply view": rebuild the
	// reverse id index, then diff fresh CONFIG against the loaded
	// registry and emit only the delta (spec.md §4.9 phase 3).
	OnWarmBootEnd(ctx context.Context) error
}

// TimerHandler is implemented by handlers with periodic maintenance work
// (spec.md §4.4 "on_timer()"). The dispatcher type-asserts for this.
type TimerHandler interface {
	OnTimer(ctx context.Context)
}

// NotificationHandler is implemented by handlers that react to
// asynchronous SAI notifications (spec.md §4.4 "on_notification(n)").
type NotificationHandler interface {
	OnNotification(ctx context.Context, n sai.Notification)
}

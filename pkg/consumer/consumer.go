// Package consumer implements the per-table consumer queue and retry
// cache of spec.md §4.2: an in-order FIFO of pending mutations (where the
// most recent write for a key supersedes any older pending write for
// that key) plus a retry cache of mutations a handler could not yet
// apply, either because of a named dependency constraint or because of a
// transient failure subject to exponential backoff.
//
// New component: the teacher CLI applies CONFIG_DB writes directly and
// has no pending-mutation notion. This is modeled on the "last write for
// a key wins" batching idea behind the teacher's
// ConfigDBClient.ReplaceAll/PipelineSet, generalized into a queue.
package consumer

import (
	"time"

	"github.com/fabricwire/swssd/pkg/dbadapter"
)

// Mutation is one pending change for a table key, spec.md §4.2.
type Mutation struct {
	Table  string
	Key    string
	Op     dbadapter.Op
	Fields map[string]string
}

// retryState tracks one retry-cache entry's backoff and optional
// dependency constraint.
type retryState struct {
	mutation    Mutation
	constraint  string // empty means "no constraint": retried every pass
	nextAttempt time.Time
	backoff     time.Duration
}

// Consumer owns one subscribed table's pending-mutation queue and retry
// cache, spec.md §4.2.
type Consumer struct {
	table string

	queue    []Mutation
	queuePos map[string]int // key -> index into queue, for in-place replace

	retry map[string]*retryState // key -> retry state

	initialBackoff time.Duration
	maxBackoff     time.Duration

	now func() time.Time
}

// Option configures a Consumer at construction time.
type Option func(*Consumer)

// WithInitialBackoff overrides the starting backoff for unconstrained
// retry-cache entries (default 100ms), per spec.md §4.2 and DESIGN.md
// Open Question 2 ("the initial interval [is left] configurable").
func WithInitialBackoff(d time.Duration) Option {
	return func(c *Consumer) { c.initialBackoff = d }
}

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(c *Consumer) { c.now = now }
}

// New creates a Consumer for table.
func New(table string, opts ...Option) *Consumer {
	c := &Consumer{
		table:          table,
		queuePos:       make(map[string]int),
		retry:          make(map[string]*retryState),
		initialBackoff: 100 * time.Millisecond,
		maxBackoff:     30 * time.Second,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Table returns the owned table name.
func (c *Consumer) Table() string { return c.table }

// Enqueue appends a mutation, or replaces the still-pending mutation for
// the same key in place if one exists — only the final state for a key
// is semantically meaningful (spec.md §4.2). Enqueuing a key also clears
// any retry-cache entry for it: a fresh write supersedes a stale retry.
func (c *Consumer) Enqueue(m Mutation) {
	delete(c.retry, m.Key)
	if idx, ok := c.queuePos[m.Key]; ok {
		c.queue[idx] = m
		return
	}
	c.queuePos[m.Key] = len(c.queue)
	c.queue = append(c.queue, m)
}

// Drain removes and returns up to max pending mutations in submission
// order (spec.md §5 "within a single key, events are processed in
// submission order"). Pass 0 for "all".
func (c *Consumer) Drain(max int) []Mutation {
	if max <= 0 || max > len(c.queue) {
		max = len(c.queue)
	}
	batch := c.queue[:max]
	c.queue = c.queue[max:]
	for _, m := range batch {
		delete(c.queuePos, m.Key)
	}
	// Re-index remaining entries.
	for i, m := range c.queue {
		c.queuePos[m.Key] = i
	}
	return batch
}

// Pending returns the number of mutations waiting in the main queue.
func (c *Consumer) Pending() int { return len(c.queue) }

// RetryCount returns the number of mutations parked in the retry cache.
func (c *Consumer) RetryCount() int { return len(c.retry) }

// DeferRetry parks m in the retry cache. If constraint is non-empty, m
// is only promoted back to the queue when PromoteConstraint(constraint)
// is called (spec.md §4.2 "the name of another resource whose presence
// or non-presence unblocks it"); otherwise it is retried on every
// PromoteDue pass with exponential backoff, starting at the consumer's
// initial backoff and capped at 30s.
func (c *Consumer) DeferRetry(m Mutation, constraint string) {
	existing, had := c.retry[m.Key]
	backoff := c.initialBackoff
	if had && existing.constraint == constraint {
		backoff = existing.backoff * 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
	c.retry[m.Key] = &retryState{
		mutation:    m,
		constraint:  constraint,
		backoff:     backoff,
		nextAttempt: c.now().Add(backoff),
	}
}

// PromoteConstraint moves every retry-cache entry whose constraint
// matches the given resource key back into the main queue, in
// unspecified order among themselves but each appended after the
// current queue tail. Called when a Set/Delete for that resource key is
// observed (spec.md §4.2).
func (c *Consumer) PromoteConstraint(resourceKey string) int {
	promoted := 0
	for key, st := range c.retry {
		if st.constraint != resourceKey {
			continue
		}
		c.enqueueDirect(st.mutation)
		delete(c.retry, key)
		promoted++
	}
	return promoted
}

// PromoteDue moves every unconstrained retry-cache entry whose backoff
// has elapsed back into the main queue.
func (c *Consumer) PromoteDue() int {
	now := c.now()
	promoted := 0
	for key, st := range c.retry {
		if st.constraint != "" {
			continue
		}
		if now.Before(st.nextAttempt) {
			continue
		}
		c.enqueueDirect(st.mutation)
		delete(c.retry, key)
		promoted++
	}
	return promoted
}

// enqueueDirect re-inserts a mutation without touching the retry cache
// (the caller already owns removal from it).
func (c *Consumer) enqueueDirect(m Mutation) {
	if idx, ok := c.queuePos[m.Key]; ok {
		c.queue[idx] = m
		return
	}
	c.queuePos[m.Key] = len(c.queue)
	c.queue = append(c.queue, m)
}

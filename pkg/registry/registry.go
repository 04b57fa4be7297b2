// Package registry implements the ref-counted object registry that backs
// every resource type in spec.md §3: a map from a stable key to an entry
// holding a SAI object id, a refcount, an attribute set, and an
// epoch/version used during warm-restart reconciliation.
//
// Grounded on the teacher's (pkg/newtron/network/node/*_ops.go) discipline
// of never bracket-indexing a map to mutate it — every access here is
// either Lookup (returns ok=false on miss, never creates) or GetOrCreate
// (explicit creation), per spec.md §9 "Replacing unchecked map access".
package registry

import (
	"sync"

	"github.com/fabricwire/swssd/pkg/swutil"
)

// Entry is the registry's unit of storage. A is the semantic attribute
// type for this resource (e.g. a next-hop group's member set and
// hashing flags); the registry itself is attribute-type-agnostic.
type Entry[A any] struct {
	Key      string
	SAIID    uint64
	Refcount int
	Attrs    A
	Epoch    uint64
}

// Registry is a generic ref-counted map from key to Entry[A], exclusively
// owned by whichever handler constructs it (spec.md §3 "Ownership in
// design terms"). It is not safe to share a *Registry[A] between
// goroutines without external synchronization beyond what it provides;
// the dispatcher's single-threaded model (spec.md §5) means handlers
// themselves never need to lock, but the mutex is retained so warm
// restart's bake()/load() can run from a different goroutine than the
// main loop during the freeze/thaw handoff.
type Registry[A any] struct {
	mu      sync.RWMutex
	kind    string
	entries map[string]*Entry[A]
	byOID   map[uint64]string // reverse index, rebuilt on warm boot (spec.md §4.6)
}

// New creates an empty registry for the named resource kind (used in
// error messages and logging).
func New[A any](kind string) *Registry[A] {
	return &Registry[A]{
		kind:    kind,
		entries: make(map[string]*Entry[A]),
		byOID:   make(map[uint64]string),
	}
}

// Kind returns the resource type name this registry was created for.
func (r *Registry[A]) Kind() string { return r.kind }

// Lookup returns the entry for key without creating it. Reading a
// missing key returns ok=false; auto-vivification is forbidden
// (spec.md §3 "Lifecycle").
func (r *Registry[A]) Lookup(key string) (*Entry[A], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key]
	return e, ok
}

// LookupByOID resolves a SAI object id back to its registry key via the
// reverse index, used to route asynchronous SAI notifications
// (spec.md §4.6).
func (r *Registry[A]) LookupByOID(oid uint64) (*Entry[A], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.byOID[oid]
	if !ok {
		return nil, false
	}
	return r.entries[key], true
}

// Create explicitly inserts a brand-new entry with refcount 0. It
// returns swutil.ErrAlreadyExists if the key is already present; callers
// must Lookup first if they want create-or-get semantics (GetOrCreate).
func (r *Registry[A]) Create(key string, saiID uint64, attrs A) (*Entry[A], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[key]; ok {
		return nil, swutil.ErrAlreadyExists
	}
	e := &Entry[A]{Key: key, SAIID: saiID, Attrs: attrs}
	r.entries[key] = e
	if saiID != 0 {
		r.byOID[saiID] = key
	}
	return e, nil
}

// GetOrCreate returns the existing entry for key, or creates one with
// refcount 0 via the supplied constructor if absent. This is the only
// sanctioned "create on access" path spec.md §9 permits — it is always
// an explicit call, never an implicit side effect of indexing.
func (r *Registry[A]) GetOrCreate(key string, create func() (uint64, A)) (*Entry[A], bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		return e, false, nil
	}
	saiID, attrs := create()
	e := &Entry[A]{Key: key, SAIID: saiID, Attrs: attrs}
	r.entries[key] = e
	if saiID != 0 {
		r.byOID[saiID] = key
	}
	return e, true, nil
}

// Incref increments the refcount of the entry at key. Returns
// swutil.ErrNotFound if the key is absent.
func (r *Registry[A]) Incref(key string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return 0, swutil.ErrNotFound
	}
	e.Refcount++
	return e.Refcount, nil
}

// Decref decrements the refcount of the entry at key. Decrementing a
// zero refcount is a bug: it returns a *swutil.RefcountError and leaves
// the entry unchanged (spec.md §8 "Refcount decrement on an entry with
// refcount 0 returns an error and does not change state" — the
// behavioral tightening from the saturating-in-release source, see
// DESIGN.md Open Question 1).
func (r *Registry[A]) Decref(key string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return 0, swutil.ErrNotFound
	}
	if e.Refcount <= 0 {
		return e.Refcount, &swutil.RefcountError{Resource: r.kind, Key: key}
	}
	e.Refcount--
	return e.Refcount, nil
}

// Refcount returns the current refcount for key, or -1 if absent.
func (r *Registry[A]) Refcount(key string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key]
	if !ok {
		return -1
	}
	return e.Refcount
}

// Destroy removes the entry at key. Callers must have already verified
// refcount == 0 (spec.md §3 "a next-hop group with refcount 0 is
// destroyed"); Destroy itself does not re-check, since some pinned
// resources (ports) are destroyed by a configuration delete regardless
// of refcount, and share this same primitive.
func (r *Registry[A]) Destroy(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return swutil.ErrNotFound
	}
	delete(r.entries, key)
	if e.SAIID != 0 {
		delete(r.byOID, e.SAIID)
	}
	return nil
}

// Len returns the number of live entries, used by CRM polling.
func (r *Registry[A]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Keys returns a snapshot of all registry keys, used by warm-restart
// baking and CRM polling. The returned slice is a copy; mutating it does
// not affect the registry.
func (r *Registry[A]) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	return keys
}

// Snapshot returns a copy of every entry, keyed by registry key, used by
// warm-restart bake() to write a STATE_DB snapshot (spec.md §4.9 phase 1).
func (r *Registry[A]) Snapshot() map[string]Entry[A] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Entry[A], len(r.entries))
	for k, e := range r.entries {
		out[k] = *e
	}
	return out
}

// Restore repopulates the registry from a STATE_DB snapshot, used by
// warm-restart thaw (spec.md §4.9 phase 3), before any CONFIG/APPL
// subscription is active. It clears any existing entries first.
func (r *Registry[A]) Restore(snapshot map[string]Entry[A]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*Entry[A], len(snapshot))
	r.byOID = make(map[uint64]string, len(snapshot))
	for k, e := range snapshot {
		cp := e
		r.entries[k] = &cp
		if cp.SAIID != 0 {
			r.byOID[cp.SAIID] = k
		}
	}
}

// RebuildReverseIndex recomputes the OID->key reverse index from the
// current entries. Called once during on_warm_boot_end before any
// mutation is accepted (spec.md §4.6).
func (r *Registry[A]) RebuildReverseIndex() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byOID = make(map[uint64]string, len(r.entries))
	for k, e := range r.entries {
		if e.SAIID != 0 {
			r.byOID[e.SAIID] = k
		}
	}
}

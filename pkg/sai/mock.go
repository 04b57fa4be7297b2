package sai

import (
	"context"
	"fmt"
	"sync"
)

// Mock is an in-memory SAI capability implementation used by handler
// tests and by the agent's no-ASIC development mode. It never returns
// ErrBusy/ErrTableFull on its own; tests that need to exercise retry
// paths set InjectError to force a specific failure on the next call.
type Mock struct {
	mu       sync.Mutex
	next     uint64
	objects  map[uint64]mockObject
	warmBoot bool

	notifications chan Notification

	// InjectError, if non-nil, is returned (and cleared) on the next
	// Create call, letting tests drive the rollback paths of spec.md
	// §4.5 step 5.
	InjectError error

	// InjectErrorAfter delays InjectError's effect until this many
	// prior Create calls have already succeeded, for tests that need
	// the failure to strike a specific step in a multi-object sequence
	// (e.g. the first group member rather than the group itself).
	InjectErrorAfter int
	createCalls      int
}

type mockObject struct {
	objType ObjectType
	attrs   Attrs
}

// NewMock creates an empty mock SAI client.
func NewMock() *Mock {
	return &Mock{
		next:          1,
		objects:       make(map[uint64]mockObject),
		notifications: make(chan Notification, 64),
	}
}

func (m *Mock) Create(ctx context.Context, objType ObjectType, attrs Attrs) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InjectError != nil {
		if m.createCalls < m.InjectErrorAfter {
			m.createCalls++
		} else {
			err := m.InjectError
			m.InjectError = nil
			return 0, err
		}
	}
	oid := m.next
	m.next++
	m.objects[oid] = mockObject{objType: objType, attrs: cloneAttrs(attrs)}
	return oid, nil
}

func (m *Mock) Remove(ctx context.Context, objType ObjectType, oid uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[oid]
	if !ok {
		return fmt.Errorf("%w: oid=0x%x", ErrNotFound, oid)
	}
	if obj.objType != objType {
		return fmt.Errorf("%w: oid=0x%x type mismatch", ErrInvalidValue, oid)
	}
	delete(m.objects, oid)
	return nil
}

func (m *Mock) SetAttribute(ctx context.Context, objType ObjectType, oid uint64, attrs Attrs) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[oid]
	if !ok {
		return fmt.Errorf("%w: oid=0x%x", ErrNotFound, oid)
	}
	for k, v := range attrs {
		obj.attrs[k] = v
	}
	m.objects[oid] = obj
	return nil
}

func (m *Mock) GetAttribute(ctx context.Context, objType ObjectType, oid uint64, keys []string) (Attrs, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[oid]
	if !ok {
		return nil, fmt.Errorf("%w: oid=0x%x", ErrNotFound, oid)
	}
	out := make(Attrs, len(keys))
	for _, k := range keys {
		if v, ok := obj.attrs[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (m *Mock) Notifications() <-chan Notification { return m.notifications }

func (m *Mock) WarmBoot(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warmBoot = true
	return nil
}

// Emit injects a notification, used by tests exercising
// on_notification hooks.
func (m *Mock) Emit(n Notification) {
	m.notifications <- n
}

// Count returns the number of live mock objects of a given type.
func (m *Mock) Count(objType ObjectType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.objects {
		if o.objType == objType {
			n++
		}
	}
	return n
}

func cloneAttrs(a Attrs) Attrs {
	out := make(Attrs, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

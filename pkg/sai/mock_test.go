package sai

import (
	"context"
	"errors"
	"testing"
)

func TestMockCreateRemoveRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMock()
	oid, err := m.Create(ctx, ObjectNextHop, Attrs{"ip": "10.0.0.2"})
	if err != nil {
		t.Fatal(err)
	}
	if oid == 0 {
		t.Fatal("expected non-zero oid")
	}
	got, err := m.GetAttribute(ctx, ObjectNextHop, oid, []string{"ip"})
	if err != nil {
		t.Fatal(err)
	}
	if got["ip"] != "10.0.0.2" {
		t.Errorf("ip = %q", got["ip"])
	}
	if err := m.Remove(ctx, ObjectNextHop, oid); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetAttribute(ctx, ObjectNextHop, oid, []string{"ip"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after remove, got %v", err)
	}
}

func TestMockInjectedErrorRollback(t *testing.T) {
	ctx := context.Background()
	m := NewMock()
	m.InjectError = ErrBusy
	_, err := m.Create(ctx, ObjectNextHopGroup, Attrs{})
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if !IsTransient(err) {
		t.Error("ErrBusy should be classified transient")
	}
	// Injected error is one-shot.
	oid, err := m.Create(ctx, ObjectNextHopGroup, Attrs{})
	if err != nil || oid == 0 {
		t.Fatalf("expected success on retry, got oid=%d err=%v", oid, err)
	}
}

func TestMockCount(t *testing.T) {
	ctx := context.Background()
	m := NewMock()
	m.Create(ctx, ObjectPort, Attrs{})
	m.Create(ctx, ObjectPort, Attrs{})
	m.Create(ctx, ObjectNextHop, Attrs{})
	if got := m.Count(ObjectPort); got != 2 {
		t.Errorf("Count(PORT) = %d, want 2", got)
	}
}

package tunnelmgr

import (
	"context"
	"testing"

	"github.com/fabricwire/swssd/pkg/mgr"
)

func newTestManager() *Manager {
	base := mgr.NewBase("tunnelmgr", nil, nil, nil, true)
	return New(base)
}

func TestOnDecapRouteAddedRequiresInit(t *testing.T) {
	m := newTestManager()
	if err := m.onDecapRouteAdded(context.Background(), "10.1.0.0/24"); err == nil {
		t.Fatal("expected error before peer IP is initialized")
	}
}

func TestOnDecapRouteAddedCreatesOnce(t *testing.T) {
	m := newTestManager()
	m.peerIP = "10.0.0.1"

	if err := m.onDecapRouteAdded(context.Background(), "10.1.0.0/24"); err != nil {
		t.Fatal(err)
	}
	if !m.created || m.routeRefs != 1 {
		t.Fatalf("created=%v routeRefs=%d", m.created, m.routeRefs)
	}

	if err := m.onDecapRouteAdded(context.Background(), "10.2.0.0/24"); err != nil {
		t.Fatal(err)
	}
	if m.routeRefs != 2 {
		t.Fatalf("routeRefs = %d, want 2 after second route", m.routeRefs)
	}
}

func TestOnRouteRemovedDeletesOnLastRef(t *testing.T) {
	m := newTestManager()
	m.peerIP = "10.0.0.1"
	m.onDecapRouteAdded(context.Background(), "10.1.0.0/24")
	m.onDecapRouteAdded(context.Background(), "10.2.0.0/24")

	if err := m.onRouteRemoved(context.Background(), "10.1.0.0/24"); err != nil {
		t.Fatal(err)
	}
	if !m.created {
		t.Fatal("tun0 should still exist with one reference remaining")
	}

	if err := m.onRouteRemoved(context.Background(), "10.2.0.0/24"); err != nil {
		t.Fatal(err)
	}
	if m.created {
		t.Fatal("tun0 should be deleted once the last route drops")
	}
}

func TestOnRouteRemovedWithoutAnyRoutesIsNoOp(t *testing.T) {
	m := newTestManager()
	if err := m.onRouteRemoved(context.Background(), "10.1.0.0/24"); err != nil {
		t.Fatal(err)
	}
}

func TestRouteReplaceArgsIPv6UsesDashSix(t *testing.T) {
	args := routeReplaceArgs("2001:db8::/32")
	want := []string{"/sbin/ip", "-6", "route", "replace", "2001:db8::/32", "dev", TunnelDevice}
	if len(args) != len(want) {
		t.Fatalf("routeReplaceArgs = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("routeReplaceArgs = %v, want %v", args, want)
		}
	}
}

func TestRouteReplaceArgsIPv4OmitsDashSix(t *testing.T) {
	args := routeReplaceArgs("10.1.0.0/24")
	want := []string{"/sbin/ip", "route", "replace", "10.1.0.0/24", "dev", TunnelDevice}
	if len(args) != len(want) {
		t.Fatalf("routeReplaceArgs = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("routeReplaceArgs = %v, want %v", args, want)
		}
	}
}

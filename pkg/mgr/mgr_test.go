package mgr

import "testing"

func TestNewBaseWiresEffectorDryRun(t *testing.T) {
	b := NewBase("testmgr", nil, nil, nil, true)
	if b.Name != "testmgr" {
		t.Errorf("Name = %q", b.Name)
	}
	if b.Eff == nil {
		t.Fatal("expected effector to be wired")
	}
}

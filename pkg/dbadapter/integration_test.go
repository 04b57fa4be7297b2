//go:build integration

package dbadapter

import (
	"context"
	"os"
	"testing"
)

func skipIfNoRedis(t *testing.T) string {
	t.Helper()
	addr := os.Getenv("SWSSD_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SWSSD_TEST_REDIS_ADDR not set; skipping redis integration test")
	}
	return addr
}

func TestWriteReadRoundTrip(t *testing.T) {
	addr := skipIfNoRedis(t)
	ctx := context.Background()
	a := New(addr, ConfigDB)
	if err := a.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer a.Close()

	if err := a.Write(ctx, "PORT", "Ethernet0", map[string]string{"mtu": "9100"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	fields, ok, err := a.Read(ctx, "PORT", "Ethernet0")
	if err != nil || !ok {
		t.Fatalf("Read: %v, ok=%v", err, ok)
	}
	if fields["mtu"] != "9100" {
		t.Errorf("mtu = %q, want 9100", fields["mtu"])
	}
	if err := a.DeleteKey(ctx, "PORT", "Ethernet0"); err != nil {
		t.Fatalf("DeleteKey: %v", err)
	}
	if _, ok, _ := a.Read(ctx, "PORT", "Ethernet0"); ok {
		t.Error("expected key to be gone after delete")
	}
}

func TestWriteBatchAtomic(t *testing.T) {
	addr := skipIfNoRedis(t)
	ctx := context.Background()
	a := New(addr, ConfigDB)
	if err := a.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer a.Close()

	events := []Event{
		{Op: Set, Table: "VRF", Key: "Vrf1", Fields: map[string]string{"vni": "10001"}},
		{Op: Set, Table: "VRF", Key: "Vrf2", Fields: map[string]string{"vni": "10002"}},
	}
	if err := a.WriteBatch(ctx, events); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	for _, key := range []string{"Vrf1", "Vrf2"} {
		if _, ok, _ := a.Read(ctx, "VRF", key); !ok {
			t.Errorf("expected %s to exist after WriteBatch", key)
		}
	}
}

package dbadapter

import "testing"

func TestRedisKeyFormat(t *testing.T) {
	if got, want := redisKey("PORT", "Ethernet0"), "PORT|Ethernet0"; got != want {
		t.Errorf("redisKey = %q, want %q", got, want)
	}
}

func TestDBInstanceString(t *testing.T) {
	cases := map[DBInstance]string{
		ApplDB:     "APPL_DB",
		AsicDB:     "ASIC_DB",
		CountersDB: "COUNTERS_DB",
		ConfigDB:   "CONFIG_DB",
		StateDB:    "STATE_DB",
	}
	for inst, want := range cases {
		if got := inst.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", inst, got, want)
		}
	}
}

func TestSubscribePattern(t *testing.T) {
	got := subscribePattern(ConfigDB, "NEIGH_TABLE")
	want := "__keyspace@4__:NEIGH_TABLE|*"
	if got != want {
		t.Errorf("subscribePattern = %q, want %q", got, want)
	}
}

func TestIsTransientRedisErr(t *testing.T) {
	transient := []string{
		"dial tcp: connection refused",
		"read tcp: i/o timeout",
		"context deadline exceeded",
	}
	for _, msg := range transient {
		if !isTransientRedisErr(fmtErr(msg)) {
			t.Errorf("expected %q to be transient", msg)
		}
	}
	if isTransientRedisErr(fmtErr("WRONGTYPE Operation against a key")) {
		t.Error("expected WRONGTYPE to be permanent")
	}
}

type testErr string

func (e testErr) Error() string { return string(e) }

func fmtErr(s string) error { return testErr(s) }

package coppmgr

import (
	"strings"
	"testing"
)

const sampleInit = `{
  "traps": [
    {"name": "bgp", "trap_group": "bgp-group", "always_enabled": false},
    {"name": "lacp", "trap_group": "lacp-group", "always_enabled": true},
    {"name": "arp", "trap_group": "arp-group", "always_enabled": false}
  ],
  "groups": [
    {"name": "bgp-group", "queue": 4, "cir": 600, "cbs": 600}
  ]
}`

func TestParseInitFile(t *testing.T) {
	f, err := ParseInitFile(strings.NewReader(sampleInit))
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Traps) != 3 || len(f.Groups) != 1 {
		t.Fatalf("got %d traps, %d groups", len(f.Traps), len(f.Groups))
	}
}

func TestMergeSuppressesDisabledFeatureTraps(t *testing.T) {
	f, _ := ParseInitFile(strings.NewReader(sampleInit))
	features := map[string]FeatureState{
		"bgp": {Enabled: false, Traps: []string{"bgp"}},
	}
	merged := Merge(f, features)
	names := trapNames(merged)
	if contains(names, "bgp") {
		t.Errorf("expected bgp trap suppressed, got %v", names)
	}
	if !contains(names, "arp") {
		t.Errorf("expected arp trap to survive, got %v", names)
	}
}

func TestMergeAlwaysEnabledSurvivesDisable(t *testing.T) {
	f, _ := ParseInitFile(strings.NewReader(sampleInit))
	features := map[string]FeatureState{
		"lacp": {Enabled: false, Traps: []string{"lacp"}},
	}
	merged := Merge(f, features)
	names := trapNames(merged)
	if !contains(names, "lacp") {
		t.Errorf("expected always_enabled lacp trap to survive disable, got %v", names)
	}
}

func TestGroupByName(t *testing.T) {
	f, _ := ParseInitFile(strings.NewReader(sampleInit))
	groups := GroupByName(f)
	g, ok := groups["bgp-group"]
	if !ok || g.CIR != 600 {
		t.Fatalf("groups[bgp-group] = %+v, ok=%v", g, ok)
	}
}

func trapNames(traps []Trap) []string {
	out := make([]string, len(traps))
	for i, t := range traps {
		out[i] = t.Name
	}
	return out
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

package intfmgr

import "testing"

func TestCanonicalizeLAGPrefix(t *testing.T) {
	cases := map[string]string{
		"Po1":           "PortChannel1",
		"Po42":          "PortChannel42",
		"PortChannel3":  "PortChannel3",
		"Ethernet0":     "Ethernet0",
		"Portal":        "Portal", // "Po" prefix but not numeric suffix
	}
	for in, want := range cases {
		if got := CanonicalizeLAGPrefix(in); got != want {
			t.Errorf("CanonicalizeLAGPrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSplitSubInterface(t *testing.T) {
	parent, vlan, ok, err := SplitSubInterface("Po1.100")
	if err != nil || !ok || parent != "PortChannel1" || vlan != 100 {
		t.Fatalf("SplitSubInterface = %q %v %v %v", parent, vlan, ok, err)
	}
}

func TestSplitSubInterfaceNoSuffix(t *testing.T) {
	_, _, ok, err := SplitSubInterface("Ethernet0")
	if err != nil || ok {
		t.Fatalf("expected ok=false, no error; got ok=%v err=%v", ok, err)
	}
}

func TestSplitSubInterfaceInvalidVLAN(t *testing.T) {
	_, _, ok, err := SplitSubInterface("Ethernet0.9000")
	if !ok || err == nil {
		t.Fatalf("expected ok=true with range error, got ok=%v err=%v", ok, err)
	}
}

func TestClampSubInterfaceMTU(t *testing.T) {
	mtu, clamped := ClampSubInterfaceMTU(9100, 1500)
	if mtu != 1500 || !clamped {
		t.Fatalf("ClampSubInterfaceMTU(9100,1500) = %d, %v", mtu, clamped)
	}
	mtu, clamped = ClampSubInterfaceMTU(1400, 1500)
	if mtu != 1400 || clamped {
		t.Fatalf("ClampSubInterfaceMTU(1400,1500) = %d, %v", mtu, clamped)
	}
}

func TestParseHostCIDRPreservesHostBits(t *testing.T) {
	cidr, isIPv6, err := parseHostCIDR("10.0.0.5/24")
	if err != nil {
		t.Fatal(err)
	}
	if cidr != "10.0.0.5/24" {
		t.Errorf("cidr = %q, want host address preserved", cidr)
	}
	if isIPv6 {
		t.Error("expected isIPv6=false")
	}
}

func TestParseHostCIDRIPv6(t *testing.T) {
	_, isIPv6, err := parseHostCIDR("2001:db8::1/64")
	if err != nil {
		t.Fatal(err)
	}
	if !isIPv6 {
		t.Error("expected isIPv6=true")
	}
}

func TestSplitAddressKey(t *testing.T) {
	ifname, prefix, ok := splitAddressKey("Ethernet0|10.0.0.1/24")
	if !ok || ifname != "Ethernet0" || prefix != "10.0.0.1/24" {
		t.Fatalf("splitAddressKey = %q %q %v", ifname, prefix, ok)
	}
}

package swtypes

import "testing"

func TestMACRoundTrip(t *testing.T) {
	cases := []string{
		"00:11:22:33:44:55",
		"aa:bb:cc:dd:ee:ff",
		"00:00:00:00:00:00",
	}
	for _, s := range cases {
		m, err := ParseMAC(s)
		if err != nil {
			t.Fatalf("ParseMAC(%q): %v", s, err)
		}
		if got := m.String(); got != s {
			t.Errorf("ParseMAC(%q).String() = %q, want %q", s, got, s)
		}
	}
}

func TestMACInvalid(t *testing.T) {
	if _, err := ParseMAC("not-a-mac"); err == nil {
		t.Fatal("expected error for invalid MAC")
	}
}

func TestIPPrefixRoundTrip(t *testing.T) {
	cases := []string{
		"10.0.0.0/24",
		"2001:db8::/32",
		"0.0.0.0/0",
	}
	for _, s := range cases {
		p, err := ParseIPPrefix(s)
		if err != nil {
			t.Fatalf("ParseIPPrefix(%q): %v", s, err)
		}
		if got := p.String(); got != s {
			t.Errorf("ParseIPPrefix(%q).String() = %q, want %q", s, got, s)
		}
	}
}

func TestIPPrefixMasksHostBits(t *testing.T) {
	p, err := ParseIPPrefix("10.1.1.5/24")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := p.String(), "10.1.1.0/24"; got != want {
		t.Errorf("masked prefix = %q, want %q", got, want)
	}
}

func TestVLANIDBounds(t *testing.T) {
	if _, err := ParseVLANID(0); err == nil {
		t.Error("VLAN 0 should be rejected")
	}
	if _, err := ParseVLANID(4095); err == nil {
		t.Error("VLAN 4095 should be rejected")
	}
	if _, err := ParseVLANID(1); err != nil {
		t.Errorf("VLAN 1 should be accepted: %v", err)
	}
	if _, err := ParseVLANID(4094); err != nil {
		t.Errorf("VLAN 4094 should be accepted: %v", err)
	}
}

func TestVNIBounds(t *testing.T) {
	if _, err := ParseVNI(0); err == nil {
		t.Error("VNI 0 should be rejected (reserved)")
	}
	if _, err := ParseVNI(1 << 24); err == nil {
		t.Error("VNI 2^24 should be rejected")
	}
	if _, err := ParseVNI(1); err != nil {
		t.Errorf("VNI 1 should be accepted: %v", err)
	}
	if _, err := ParseVNI(1<<24 - 1); err != nil {
		t.Errorf("VNI 2^24-1 should be accepted: %v", err)
	}
}

func TestMACsecANBounds(t *testing.T) {
	for _, v := range []int{0, 1, 2, 3} {
		if _, err := ParseMACsecAN(v); err != nil {
			t.Errorf("AN %d should be accepted: %v", v, err)
		}
	}
	for _, v := range []int{-1, 4} {
		if _, err := ParseMACsecAN(v); err == nil {
			t.Errorf("AN %d should be rejected", v)
		}
	}
}

func TestMPLSLabelBounds(t *testing.T) {
	if _, err := ParseMPLSLabel(1<<20 - 1); err != nil {
		t.Errorf("label 2^20-1 should be accepted: %v", err)
	}
	if _, err := ParseMPLSLabel(1 << 20); err == nil {
		t.Error("label 2^20 should be rejected")
	}
}

func TestOIDZeroIsNil(t *testing.T) {
	var o PortOID
	if o.Valid() {
		t.Error("zero OID should not be valid")
	}
	o = 42
	if !o.Valid() {
		t.Error("non-zero OID should be valid")
	}
}

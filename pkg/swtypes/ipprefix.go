package swtypes

import (
	"fmt"
	"net"
	"strings"
)

// IPPrefix is a parsed CIDR prefix (e.g. "10.0.0.0/24" or "2001:db8::/32").
// Canonical form masks the host bits out of the stored network address,
// so two textual spellings of the same prefix compare equal.
type IPPrefix struct {
	ip     net.IP
	ones   int
	isIPv6 bool
}

// ParseIPPrefix parses a CIDR prefix into its canonical network form.
// ParsePrefix ∘ String is the identity on canonical input (spec.md §8).
func ParseIPPrefix(s string) (IPPrefix, error) {
	ip, ipNet, err := net.ParseCIDR(strings.TrimSpace(s))
	if err != nil {
		return IPPrefix{}, fmt.Errorf("invalid IP prefix %q: %w", s, err)
	}
	ones, _ := ipNet.Mask.Size()
	return IPPrefix{
		ip:     ipNet.IP,
		ones:   ones,
		isIPv6: ip.To4() == nil,
	}, nil
}

// String renders the prefix in canonical CIDR notation.
func (p IPPrefix) String() string {
	if p.ip == nil {
		return ""
	}
	return fmt.Sprintf("%s/%d", p.ip.String(), p.ones)
}

// IsIPv6 reports whether this is an IPv6 prefix.
func (p IPPrefix) IsIPv6() bool { return p.isIPv6 }

// MaskLen returns the prefix length in bits.
func (p IPPrefix) MaskLen() int { return p.ones }

// Equal reports whether two prefixes denote the same network.
func (p IPPrefix) Equal(other IPPrefix) bool {
	return p.ones == other.ones && p.ip.Equal(other.ip)
}

// Less provides a total order over prefixes for canonicalization and
// deterministic iteration (route table dumps, CRM polling).
func (p IPPrefix) Less(other IPPrefix) bool {
	if c := strings.Compare(p.ip.String(), other.ip.String()); c != 0 {
		return c < 0
	}
	return p.ones < other.ones
}

// ParseIP parses a bare IP address (no mask), used for next-hop and
// neighbor keys.
func ParseIP(s string) (net.IP, error) {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return nil, fmt.Errorf("invalid IP address %q", s)
	}
	return ip, nil
}

package swtypes

import "fmt"

// Boundary constants from spec.md §8 "Boundary behaviors".
const (
	VLANMin = 1
	VLANMax = 4094

	// VSID/VNI (NVGRE/VXLAN) occupy a 24-bit space; 0 is reserved.
	VSIDMin = 1
	VSIDMax = 1<<24 - 1

	MACsecANMin = 0
	MACsecANMax = 3

	MPLSLabelMax = 1<<20 - 1
)

// VLANID is a validated VLAN identifier in [VLANMin, VLANMax].
type VLANID uint16

// ParseVLANID validates a raw integer against the VLAN id range.
func ParseVLANID(v int) (VLANID, error) {
	if v < VLANMin || v > VLANMax {
		return 0, fmt.Errorf("VLAN id %d out of range [%d,%d]", v, VLANMin, VLANMax)
	}
	return VLANID(v), nil
}

// VNI is a validated 24-bit NVGRE/VXLAN virtual network identifier.
// 0 is reserved and rejected; the valid range is (0, 2^24-1].
type VNI uint32

// ParseVNI validates a raw integer against the VSID/VNI range.
func ParseVNI(v int64) (VNI, error) {
	if v < VSIDMin || v > VSIDMax {
		return 0, fmt.Errorf("VNI/VSID %d out of range (0,%d]", v, VSIDMax)
	}
	return VNI(v), nil
}

// MACsecAN is a validated MACsec association number in [0,3].
type MACsecAN uint8

// ParseMACsecAN validates a raw integer against the MACsec AN range.
func ParseMACsecAN(v int) (MACsecAN, error) {
	if v < MACsecANMin || v > MACsecANMax {
		return 0, fmt.Errorf("MACsec association number %d out of range [%d,%d]", v, MACsecANMin, MACsecANMax)
	}
	return MACsecAN(v), nil
}

// MPLSLabel is a validated 20-bit MPLS label.
type MPLSLabel uint32

// ParseMPLSLabel validates a raw integer against the MPLS label range.
func ParseMPLSLabel(v int64) (MPLSLabel, error) {
	if v < 0 || v > MPLSLabelMax {
		return 0, fmt.Errorf("MPLS label %d out of range [0,%d]", v, MPLSLabelMax)
	}
	return MPLSLabel(v), nil
}

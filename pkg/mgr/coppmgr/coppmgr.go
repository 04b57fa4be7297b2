// Package coppmgr merges a JSON CoPP (control-plane policing) init
// file with CONFIG_DB overrides and emits the merged result to APPL,
// tracking traps marked always_enabled so they survive a feature
// disable (spec.md §4.7 "CoPP manager").
//
// Grounded on the teacher's config-merge helpers in
// pkg/newtron/configlet (CONFIG_DB entries layered over a declarative
// base file) and gopkg.in/yaml.v3 usage elsewhere in the teacher for
// structured-file parsing, here swapped for encoding/json to match the
// init file's actual format.
package coppmgr

import (
	"encoding/json"
	"io"
)

// Trap is one COPP_TRAP entry: a named control-plane packet class
// bound to a trap group.
type Trap struct {
	Name          string `json:"name"`
	TrapGroup     string `json:"trap_group"`
	AlwaysEnabled bool   `json:"always_enabled"`
}

// Group is one COPP_GROUP entry: policer parameters shared by every
// trap bound to it.
type Group struct {
	Name  string `json:"name"`
	Queue int    `json:"queue"`
	CIR   int64  `json:"cir"`
	CBS   int64  `json:"cbs"`
}

// InitFile is the on-disk JSON shape of the CoPP init file.
type InitFile struct {
	Traps  []Trap  `json:"traps"`
	Groups []Group `json:"groups"`
}

// ParseInitFile decodes a CoPP init file.
func ParseInitFile(r io.Reader) (InitFile, error) {
	var f InitFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return InitFile{}, err
	}
	return f, nil
}

// FeatureState is CONFIG_DB's FEATURE table entry for one feature:
// whether it is enabled, and which traps it owns.
type FeatureState struct {
	Enabled bool
	Traps   []string
}

// Merge layers CONFIG_DB feature-disable state over the init file's
// traps: a trap is suppressed if its owning feature is disabled,
// unless the trap is marked always_enabled (spec.md §4.7 "tracks
// always_enabled traps that survive feature disables").
func Merge(init InitFile, features map[string]FeatureState) []Trap {
	disabledTraps := make(map[string]bool)
	for _, fs := range features {
		if fs.Enabled {
			continue
		}
		for _, t := range fs.Traps {
			disabledTraps[t] = true
		}
	}

	var out []Trap
	for _, t := range init.Traps {
		if disabledTraps[t.Name] && !t.AlwaysEnabled {
			continue
		}
		out = append(out, t)
	}
	return out
}

// GroupByName indexes init.Groups by name for APPL emission lookups.
func GroupByName(init InitFile) map[string]Group {
	out := make(map[string]Group, len(init.Groups))
	for _, g := range init.Groups {
		out[g.Name] = g
	}
	return out
}

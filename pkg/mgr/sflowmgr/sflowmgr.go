// Package sflowmgr reconciles per-port sFlow sampling configuration:
// whether a rate/admin-state/direction override is locally configured,
// falling back to the port's own configured speed as the default
// sampling rate when it isn't (spec.md §6 SFLOW/SFLOW_SESSION tables;
// original_source/crates/sflowmgrd "default sampling rate equals port
// speed").
//
// Grounded on the teacher's pkg/newtron/network/node field-tracking
// structs (explicit "is this locally overridden" booleans rather than
// sentinel values) for PortConfig below.
package sflowmgr

import (
	"context"

	"github.com/fabricwire/swssd/pkg/dbadapter"
	"github.com/fabricwire/swssd/pkg/mgr"
)

const (
	errorSpeed = "error"
	naSpeed    = "N/A"
)

// PortConfig tracks one port's sFlow configuration, distinguishing
// "explicitly configured" from "falls back to derived default" per
// field — mirrors original_source's SflowPortInfo flags.
type PortConfig struct {
	localRateCfg  bool
	localAdminCfg bool
	localDirCfg   bool

	Speed     string // CONFIG_DB PORT speed
	OperSpeed string // STATE_DB operational speed

	rate  string
	admin string
	dir   string
}

// NewPortConfig creates a PortConfig with the error/N-A sentinel
// defaults original_source uses before any CONFIG_DB/STATE_DB read.
func NewPortConfig() *PortConfig {
	return &PortConfig{Speed: errorSpeed, OperSpeed: naSpeed}
}

// SetRate records a locally-configured sampling rate.
func (p *PortConfig) SetRate(rate string) {
	p.localRateCfg = true
	p.rate = rate
}

// SetAdmin records a locally-configured admin state ("up"/"down").
func (p *PortConfig) SetAdmin(admin string) {
	p.localAdminCfg = true
	p.admin = admin
}

// SetDir records a locally-configured sample direction
// ("rx"/"tx"/"both").
func (p *PortConfig) SetDir(dir string) {
	p.localDirCfg = true
	p.dir = dir
}

// HasLocalConfig reports whether any field has been locally configured.
func (p *PortConfig) HasLocalConfig() bool {
	return p.localRateCfg || p.localAdminCfg || p.localDirCfg
}

// ClearLocalConfig resets every local override, reverting every field
// to its derived default.
func (p *PortConfig) ClearLocalConfig() {
	p.localRateCfg = false
	p.localAdminCfg = false
	p.localDirCfg = false
	p.rate = ""
	p.admin = ""
	p.dir = ""
}

// EffectiveRate returns the locally-configured rate if set, else the
// port's own speed as the default sampling rate (original_source
// "default sampling rate equals port speed").
func (p *PortConfig) EffectiveRate() string {
	if p.localRateCfg {
		return p.rate
	}
	return p.Speed
}

// EffectiveAdmin returns the locally-configured admin state if set,
// else "up"; the port's own admin state is not consulted.
func (p *PortConfig) EffectiveAdmin() string {
	if p.localAdminCfg {
		return p.admin
	}
	return "up"
}

// EffectiveDir returns the locally-configured sample direction if set,
// else "both".
func (p *PortConfig) EffectiveDir() string {
	if p.localDirCfg {
		return p.dir
	}
	return "both"
}

// Manager reconciles CONFIG_DB's SFLOW_SESSION table into per-port
// sampling configuration, publishing the effective (locally-overridden
// or derived-default) values to APPL.
type Manager struct {
	*mgr.Base
	ports map[string]*PortConfig
}

// New creates an sFlow manager.
func New(base *mgr.Base) *Manager {
	return &Manager{Base: base, ports: make(map[string]*PortConfig)}
}

// Run drives the SFLOW_SESSION table subscription.
func (m *Manager) Run(ctx context.Context) error {
	return m.RunLoop(ctx, "SFLOW_SESSION", m.handleBatch)
}

func (m *Manager) portConfig(port string) *PortConfig {
	pc, ok := m.ports[port]
	if !ok {
		pc = NewPortConfig()
		m.ports[port] = pc
	}
	return pc
}

func (m *Manager) handleBatch(ctx context.Context, batch []dbadapter.Event) {
	for _, ev := range batch {
		pc := m.portConfig(ev.Key)
		if fields, ok, err := m.Config.Read(ctx, "PORT", ev.Key); err == nil && ok && fields["speed"] != "" {
			pc.Speed = fields["speed"]
		}
		if ev.Op == dbadapter.Delete {
			pc.ClearLocalConfig()
		} else {
			if rate, ok := ev.Fields["sample_rate"]; ok {
				pc.SetRate(rate)
			}
			if admin, ok := ev.Fields["admin_state"]; ok {
				pc.SetAdmin(admin)
			}
			if dir, ok := ev.Fields["sample_direction"]; ok {
				pc.SetDir(dir)
			}
		}
		fields := map[string]string{
			"sample_rate":      pc.EffectiveRate(),
			"admin_state":      pc.EffectiveAdmin(),
			"sample_direction": pc.EffectiveDir(),
		}
		if err := m.Appl.Write(ctx, "SFLOW_SESSION_TABLE", ev.Key, fields); err != nil {
			m.Log().Warnf("sflow %s: %v", ev.Key, err)
		}
	}
}

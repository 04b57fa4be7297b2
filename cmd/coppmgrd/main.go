// Command coppmgrd merges the CoPP (control-plane policing) init file
// with CONFIG_DB FEATURE overrides and publishes the merged trap set to
// APPL_DB (spec.md §4.7 "CoPP manager").
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fabricwire/swssd/pkg/dbadapter"
	"github.com/fabricwire/swssd/pkg/mgr/coppmgr"
	"github.com/fabricwire/swssd/pkg/swutil"
)

type flags struct {
	configAddr   string
	applAddr     string
	logLevel     string
	initFilePath string
}

var f = &flags{}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "coppmgrd",
	Short:         "Merges the CoPP init file with CONFIG_DB FEATURE overrides",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return swutil.SetLogLevel(f.logLevel)
	},
	RunE: run,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&f.configAddr, "config-db-addr", "localhost:6379", "CONFIG_DB redis address")
	flags.StringVar(&f.applAddr, "appl-db-addr", "localhost:6379", "APPL_DB redis address")
	flags.StringVar(&f.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.StringVar(&f.initFilePath, "init-file", "/etc/sonic/copp_cfg.json", "CoPP init file (JSON)")
}

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := swutil.WithField("manager", "coppmgr")

	file, err := os.Open(f.initFilePath)
	if err != nil {
		return fmt.Errorf("coppmgrd: opening init file: %w", err)
	}
	initFile, err := coppmgr.ParseInitFile(file)
	file.Close()
	if err != nil {
		return fmt.Errorf("coppmgrd: %w", err)
	}
	log.Infof("loaded %d traps, %d groups from init file", len(initFile.Traps), len(initFile.Groups))

	config := dbadapter.New(f.configAddr, dbadapter.ConfigDB)
	appl := dbadapter.New(f.applAddr, dbadapter.ApplDB)
	for _, a := range []*dbadapter.Adapter{config, appl} {
		if err := a.Connect(ctx); err != nil {
			return fmt.Errorf("coppmgrd: %w", err)
		}
		defer a.Close()
	}

	groups := coppmgr.GroupByName(initFile)
	features := make(map[string]coppmgr.FeatureState)

	if err := publish(ctx, appl, initFile, features, groups); err != nil {
		return err
	}

	events, err := config.Subscribe(ctx, "FEATURE")
	if err != nil {
		return fmt.Errorf("coppmgrd: subscribing to FEATURE: %w", err)
	}
	log.Info("coppmgrd started")
	for {
		select {
		case <-ctx.Done():
			log.Info("coppmgrd stopped")
			return nil
		case batch, ok := <-events:
			if !ok {
				log.Info("coppmgrd stopped")
				return nil
			}
			for _, ev := range batch {
				if ev.Op == dbadapter.Delete {
					delete(features, ev.Key)
					continue
				}
				features[ev.Key] = coppmgr.FeatureState{
					Enabled: ev.Fields["state"] == "enabled",
					Traps:   splitCSV(ev.Fields["owned_traps"]),
				}
			}
			if err := publish(ctx, appl, initFile, features, groups); err != nil {
				log.Warnf("publishing merged trap set: %v", err)
			}
		}
	}
}

// publish writes the merged trap set and its referenced groups to
// APPL_DB, deleting the entry of every init-file trap the merge
// suppressed.
func publish(ctx context.Context, appl *dbadapter.Adapter, init coppmgr.InitFile, features map[string]coppmgr.FeatureState, groups map[string]coppmgr.Group) error {
	merged := coppmgr.Merge(init, features)
	kept := make(map[string]bool, len(merged))
	for _, t := range merged {
		kept[t.Name] = true
	}
	for _, t := range init.Traps {
		if !kept[t.Name] {
			if err := appl.DeleteKey(ctx, "COPP_TRAP_TABLE", t.Name); err != nil {
				return err
			}
		}
	}
	for _, t := range merged {
		if err := appl.Write(ctx, "COPP_TRAP_TABLE", t.Name, map[string]string{"trap_group": t.TrapGroup}); err != nil {
			return err
		}
		g, ok := groups[t.TrapGroup]
		if !ok {
			continue
		}
		fields := map[string]string{
			"queue": itoa(g.Queue),
			"cir":   itoa64(g.CIR),
			"cbs":   itoa64(g.CBS),
		}
		if err := appl.Write(ctx, "COPP_GROUP_TABLE", g.Name, fields); err != nil {
			return err
		}
	}
	return nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}

func itoa(n int) string     { return fmt.Sprintf("%d", n) }
func itoa64(n int64) string { return fmt.Sprintf("%d", n) }

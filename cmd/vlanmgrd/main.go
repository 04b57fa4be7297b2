// Command vlanmgrd drives the Linux bridge side of VLAN and VLAN
// membership configuration (spec.md §4.7 "VLAN manager"); the
// ASIC-facing counterpart lives in orchagent's pkg/handler/vlan.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fabricwire/swssd/pkg/dbadapter"
	"github.com/fabricwire/swssd/pkg/mgr"
	"github.com/fabricwire/swssd/pkg/mgr/vlanmgr"
	"github.com/fabricwire/swssd/pkg/swutil"
)

type flags struct {
	configAddr string
	applAddr   string
	logLevel   string
	dryRun     bool
}

var f = &flags{}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "vlanmgrd",
	Short:         "Drives the Linux bridge side of VLAN configuration",
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
	flags.BoolVar(&f.dryRun, "dry-run", false, "log kernel commands instead of executing them")
}

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config := dbadapter.New(f.configAddr, dbadapter.ConfigDB)
	appl := dbadapter.New(f.applAddr, dbadapter.ApplDB)
	for _, a := range []*dbadapter.Adapter{config, appl} {
		if err := a.Connect(ctx); err != nil {
			return fmt.Errorf("vlanmgrd: %w", err)
		}
		defer a.Close()
	}

	base := mgr.NewBase("vlanmgr", config, appl, nil, f.dryRun)
	m := vlanmgr.New(base)

	base.Log().Info("vlanmgrd started")
	var wg sync.WaitGroup
	var vlanErr, memberErr error
	wg.Add(2)
	go func() { defer wg.Done(); vlanErr = m.RunVLAN(ctx) }()
	go func() { defer wg.Done(); memberErr = m.RunMembership(ctx) }()
	wg.Wait()
	base.Log().Info("vlanmgrd stopped")

	if vlanErr != nil {
		return vlanErr
	}
	return memberErr
}

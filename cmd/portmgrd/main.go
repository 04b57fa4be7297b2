// Command portmgrd reconciles PORT table configuration with the kernel
// (spec.md §4.7 "Port manager").
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fabricwire/swssd/pkg/dbadapter"
	"github.com/fabricwire/swssd/pkg/mgr"
	"github.com/fabricwire/swssd/pkg/mgr/portmgr"
	"github.com/fabricwire/swssd/pkg/swutil"
)

type flags struct {
	configAddr string
	applAddr   string
	stateAddr  string
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
	Use:           "portmgrd",
	Short:         "Reconciles PORT table configuration with the kernel",
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
	flags.StringVar(&f.stateAddr, "state-db-addr", "localhost:6379", "STATE_DB redis address")
	flags.StringVar(&f.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.BoolVar(&f.dryRun, "dry-run", false, "log kernel commands instead of executing them")
}

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config := dbadapter.New(f.configAddr, dbadapter.ConfigDB)
	appl := dbadapter.New(f.applAddr, dbadapter.ApplDB)
	state := dbadapter.New(f.stateAddr, dbadapter.StateDB)
	for _, a := range []*dbadapter.Adapter{config, appl, state} {
		if err := a.Connect(ctx); err != nil {
			return fmt.Errorf("portmgrd: %w", err)
		}
		defer a.Close()
	}

	base := mgr.NewBase("portmgr", config, appl, state, f.dryRun)
	m := portmgr.New(base)

	base.Log().Info("portmgrd started")
	err := m.Run(ctx)
	base.Log().Info("portmgrd stopped")
	return err
}

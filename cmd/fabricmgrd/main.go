// Command fabricmgrd passes fabric monitor data and fabric port state
// through from CONFIG_DB to APPL_DB unchanged (spec.md §4.7 "Fabric
// manager").
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
	"github.com/fabricwire/swssd/pkg/mgr/fabricmgr"
	"github.com/fabricwire/swssd/pkg/swutil"
)

type flags struct {
	configAddr string
	applAddr   string
	logLevel   string
}

var f = &flags{}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "fabricmgrd",
	Short:         "Passes fabric monitor data and port state through to APPL_DB",
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
}

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config := dbadapter.New(f.configAddr, dbadapter.ConfigDB)
	appl := dbadapter.New(f.applAddr, dbadapter.ApplDB)
	for _, a := range []*dbadapter.Adapter{config, appl} {
		if err := a.Connect(ctx); err != nil {
			return fmt.Errorf("fabricmgrd: %w", err)
		}
		defer a.Close()
	}

	base := mgr.NewBase("fabricmgr", config, appl, nil, false)
	m := fabricmgr.New(base)

	base.Log().Info("fabricmgrd started")
	var wg sync.WaitGroup
	var monitorErr, portsErr error
	wg.Add(2)
	go func() { defer wg.Done(); monitorErr = m.RunMonitorData(ctx) }()
	go func() { defer wg.Done(); portsErr = m.RunPorts(ctx) }()
	wg.Wait()
	base.Log().Info("fabricmgrd stopped")

	if monitorErr != nil {
		return monitorErr
	}
	return portsErr
}

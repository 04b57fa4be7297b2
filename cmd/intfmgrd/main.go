// Command intfmgrd programs IP addresses onto kernel interfaces across
// physical, VLAN, LAG, and loopback interface tables (spec.md §4.7
// "Interface manager").
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
	"github.com/fabricwire/swssd/pkg/mgr/intfmgr"
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
	Use:           "intfmgrd",
	Short:         "Programs IP addresses onto kernel interfaces",
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

// interfaceTables are the four CONFIG_DB tables sharing the
// "<ifname>|<prefix>" key shape that intfmgr.Manager.Run accepts,
// spec.md §4.7.
var interfaceTables = []string{"INTERFACE", "VLAN_INTERFACE", "LAG_INTERFACE", "LOOPBACK_INTERFACE"}

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config := dbadapter.New(f.configAddr, dbadapter.ConfigDB)
	appl := dbadapter.New(f.applAddr, dbadapter.ApplDB)
	for _, a := range []*dbadapter.Adapter{config, appl} {
		if err := a.Connect(ctx); err != nil {
			return fmt.Errorf("intfmgrd: %w", err)
		}
		defer a.Close()
	}

	voq := os.Getenv("SWITCH_TYPE") == "voq"
	base := mgr.NewBase("intfmgr", config, appl, nil, f.dryRun)
	m := intfmgr.New(base, voq)

	base.Log().Info("intfmgrd started")
	var wg sync.WaitGroup
	errs := make([]error, len(interfaceTables))
	wg.Add(len(interfaceTables))
	for i, table := range interfaceTables {
		i, table := i, table
		go func() {
			defer wg.Done()
			errs[i] = m.Run(ctx, table)
		}()
	}
	wg.Wait()
	base.Log().Info("intfmgrd stopped")

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Command sflowmgrd reconciles per-port sFlow sampling configuration,
// falling back to the port's configured speed as the default sampling
// rate (spec.md §4.7 "sFlow manager").
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
	"github.com/fabricwire/swssd/pkg/mgr/sflowmgr"
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
	Use:           "sflowmgrd",
	Short:         "Reconciles per-port sFlow sampling configuration",
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
			return fmt.Errorf("sflowmgrd: %w", err)
		}
		defer a.Close()
	}

	base := mgr.NewBase("sflowmgr", config, appl, nil, false)
	m := sflowmgr.New(base)

	base.Log().Info("sflowmgrd started")
	err := m.Run(ctx)
	base.Log().Info("sflowmgrd stopped")
	return err
}

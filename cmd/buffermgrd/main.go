// Command buffermgrd derives per-port BUFFER_PG entries from each port's
// PFC-enabled priority bitmap (spec.md §4.7 "Buffer manager"). The
// platform's priority-group lookup file is parsed and validated at
// startup, but its profiles are not consulted when writing entries:
// every entry references the fixed profile name "pg_profile".
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fabricwire/swssd/pkg/dbadapter"
	"github.com/fabricwire/swssd/pkg/mgr/buffermgr"
	"github.com/fabricwire/swssd/pkg/swutil"
)

type flags struct {
	configAddr   string
	applAddr     string
	logLevel     string
	pgLookupFile string
}

var f = &flags{}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "buffermgrd",
	Short:         "Derives per-port BUFFER_PG entries from each port's PFC-enabled priorities",
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
	flags.StringVar(&f.pgLookupFile, "pg-lookup-file", "/usr/share/sonic/hwsku/pg_profile_lookup.ini", "platform PG-profile lookup file")
}

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := swutil.WithField("manager", "buffermgr")

	vendor := buffermgr.ParseVendor(os.Getenv("ASIC_VENDOR"))
	log.Infof("buffermgrd started, vendor=%s", vendor)

	file, err := os.Open(f.pgLookupFile)
	if err != nil {
		return fmt.Errorf("buffermgrd: opening PG lookup file: %w", err)
	}
	profiles, err := buffermgr.ParsePGLookupFile(file)
	file.Close()
	if err != nil {
		return fmt.Errorf("buffermgrd: %w", err)
	}
	log.Infof("loaded %d PG profiles", len(profiles))

	config := dbadapter.New(f.configAddr, dbadapter.ConfigDB)
	appl := dbadapter.New(f.applAddr, dbadapter.ApplDB)
	for _, a := range []*dbadapter.Adapter{config, appl} {
		if err := a.Connect(ctx); err != nil {
			return fmt.Errorf("buffermgrd: %w", err)
		}
		defer a.Close()
	}

	events, err := config.Subscribe(ctx, "PORT")
	if err != nil {
		return fmt.Errorf("buffermgrd: subscribing to PORT: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			log.Info("buffermgrd stopped")
			return nil
		case batch, ok := <-events:
			if !ok {
				log.Info("buffermgrd stopped")
				return nil
			}
			for _, ev := range batch {
				if ev.Op == dbadapter.Delete {
					continue
				}
				if err := reconcilePort(ctx, appl, ev.Key, ev.Fields); err != nil {
					log.Warnf("port %s: %v", ev.Key, err)
				}
			}
		}
	}
}

// reconcilePort parses a port's pfc_enable priority bitmap and writes
// one BUFFER_PG_TABLE entry per range PGRanges derives from it,
// spec.md §4.7's worked examples.
func reconcilePort(ctx context.Context, appl *dbadapter.Adapter, port string, fields map[string]string) error {
	raw, ok := fields["pfc_enable"]
	if !ok || raw == "" {
		return nil
	}
	var bits []int
	for _, s := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("invalid pfc_enable %q: %w", raw, err)
		}
		bits = append(bits, n)
	}
	for _, r := range buffermgr.PGRanges(bits) {
		key := port + "|" + r
		if err := appl.Write(ctx, "BUFFER_PG_TABLE", key, map[string]string{"profile": "pg_profile"}); err != nil {
			return err
		}
	}
	return nil
}

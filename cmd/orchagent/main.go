// Command orchagent is the ASIC-facing control-plane agent of spec.md
// §4: it subscribes APPL_DB, routes each table's mutations through its
// owning handler in priority order, and snapshots state to STATE_DB on
// SIGHUP ahead of a warm restart.
//
// Grounded on cmd/newtron/main.go's flag-parsing and logging setup
// (persistent flags, SetLogLevel applied in PersistentPreRunE),
// generalized from a one-shot CLI into a long-running daemon driven by
// pkg/dispatcher.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fabricwire/swssd/pkg/consumer"
	"github.com/fabricwire/swssd/pkg/crm"
	"github.com/fabricwire/swssd/pkg/dbadapter"
	"github.com/fabricwire/swssd/pkg/dispatcher"
	"github.com/fabricwire/swssd/pkg/handler/acl"
	"github.com/fabricwire/swssd/pkg/handler/buffer"
	"github.com/fabricwire/swssd/pkg/handler/fdb"
	"github.com/fabricwire/swssd/pkg/handler/iface"
	"github.com/fabricwire/swssd/pkg/handler/mirror"
	"github.com/fabricwire/swssd/pkg/handler/neighbor"
	"github.com/fabricwire/swssd/pkg/handler/nexthop"
	"github.com/fabricwire/swssd/pkg/handler/nexthopgroup"
	"github.com/fabricwire/swssd/pkg/handler/policer"
	"github.com/fabricwire/swssd/pkg/handler/port"
	"github.com/fabricwire/swssd/pkg/handler/route"
	"github.com/fabricwire/swssd/pkg/handler/tunnel"
	"github.com/fabricwire/swssd/pkg/handler/vlan"
	"github.com/fabricwire/swssd/pkg/handler/vrf"
	"github.com/fabricwire/swssd/pkg/sai"
	"github.com/fabricwire/swssd/pkg/swutil"
	"github.com/fabricwire/swssd/pkg/warmrestart"
)

type flags struct {
	applAddr  string
	stateAddr string
	logLevel  string
	jsonLogs  bool
	warmStart bool
}

var f = &flags{}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "orchagent",
	Short:         "Programs the ASIC from APPL_DB configuration",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := swutil.SetLogLevel(f.logLevel); err != nil {
			return err
		}
		if f.jsonLogs {
			swutil.SetJSONFormat()
		}
		return nil
	},
	RunE: runAgent,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&f.applAddr, "appl-db-addr", "localhost:6379", "APPL_DB redis address")
	flags.StringVar(&f.stateAddr, "state-db-addr", "localhost:6379", "STATE_DB redis address")
	flags.StringVar(&f.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.BoolVar(&f.jsonLogs, "json-logs", false, "emit structured JSON log lines")
	flags.BoolVar(&f.warmStart, "warm-start", false, "thaw registries from STATE_DB instead of starting cold (spec.md §4.9 phase 3)")
}

// runAgent wires every resource handler to the dispatcher and drives
// the event loop until SIGINT/SIGTERM, per spec.md §4.3/§5.
func runAgent(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := swutil.WithField("component", "orchagent")

	appl := dbadapter.New(f.applAddr, dbadapter.ApplDB)
	if err := appl.Connect(ctx); err != nil {
		return fmt.Errorf("orchagent: connecting to APPL_DB: %w", err)
	}
	defer appl.Close()

	state := dbadapter.New(f.stateAddr, dbadapter.StateDB)
	if err := state.Connect(ctx); err != nil {
		return fmt.Errorf("orchagent: connecting to STATE_DB: %w", err)
	}
	defer state.Close()

	// A real vendor SAI binding is a cgo boundary outside this module's
	// scope (spec.md §1); the mock's "no-ASIC development mode" is the
	// agent's only Client today.
	client := sai.NewMock()

	d := dispatcher.New().WithSAINotifications(client.Notifications())

	portTracker := port.NewTracker()
	portHandler := port.NewHandler(portTracker, client, state)
	d.Register(portHandler, "PORT_TABLE")

	vlanReg := vlan.New(client)
	vlanHandler := vlan.NewHandler(vlanReg, state)
	d.Register(vlanHandler, "VLAN_TABLE", "VLAN_MEMBER_TABLE")

	bufferReg := buffer.New(client)
	bufferHandler := buffer.NewHandler(bufferReg, state)
	d.Register(bufferHandler, "BUFFER_POOL_TABLE", "BUFFER_PROFILE_TABLE")

	mirrorReg := mirror.New(client)
	mirrorHandler := mirror.NewHandler(mirrorReg, state)
	d.Register(mirrorHandler, "MIRROR_SESSION")

	policerReg := policer.New(client)
	policerHandler := policer.NewHandler(policerReg, state)
	d.Register(policerHandler, "POLICER_TABLE")

	tunnelReg := tunnel.New(client)
	tunnelHandler := tunnel.NewHandler(tunnelReg, state)
	d.Register(tunnelHandler, "TUNNEL_TABLE", "TUNNEL_TERM_TABLE", "TUNNEL_MAP_ENTRY_TABLE")

	fdbReg := fdb.New(client, vlanReg.Exists)
	fdbHandler := fdb.NewHandler(fdbReg, state)
	d.Register(fdbHandler, "FDB_TABLE")

	aclReg := acl.New(client)
	aclHandler := acl.NewHandler(aclReg, state)
	d.Register(aclHandler, "ACL_TABLE", "ACL_RULE_TABLE")

	vrfReg := vrf.New(client)
	vrfHandler := vrf.NewHandler(vrfReg, state)
	d.Register(vrfHandler, "VRF_TABLE")

	ifaceReg := iface.New(vrfReg, client)
	ifaceHandler := iface.NewHandler(ifaceReg, state)
	d.Register(ifaceHandler, "INTERFACE_TABLE")

	neighborReg := neighbor.New(portTracker, ifaceReg, client)
	neighborHandler := neighbor.NewHandler(neighborReg, state)
	d.Register(neighborHandler, "NEIGH_TABLE")

	nhReg := nexthop.New(client)
	nhgReg := nexthopgroup.New(nhReg, client)
	routeReg := route.New(nhgReg, vrfReg, client)
	routeHandler := route.NewHandler(routeReg, state)
	d.Register(routeHandler, "ROUTE_TABLE")

	wr := warmrestart.New(
		portHandler, vlanHandler, bufferHandler, mirrorHandler,
		policerHandler, tunnelHandler, fdbHandler, aclHandler,
		vrfHandler, ifaceHandler, neighborHandler, routeHandler,
	)

	crmOrch := crm.New([]crm.Resource{
		{Name: "port", Capacity: 256, Count: portHandler.Raw().Len},
		{Name: "vlan", Capacity: 4094, Count: vlanReg.RawVLANs().Len},
		{Name: "vlan_member", Capacity: 1024 * 1024, Count: vlanReg.RawMembers().Len},
		{Name: "buffer_pool", Capacity: 16, Count: bufferReg.RawPools().Len},
		{Name: "buffer_profile", Capacity: 32, Count: bufferReg.RawProfiles().Len},
		{Name: "mirror_session", Capacity: 4, Count: mirrorReg.Raw().Len},
		{Name: "policer", Capacity: 128, Count: policerReg.Raw().Len},
		{Name: "tunnel", Capacity: 16, Count: tunnelReg.RawTunnels().Len},
		{Name: "fdb_entry", Capacity: 32768, Count: fdbReg.Raw().Len},
		{Name: "acl_table", Capacity: 16, Count: aclReg.RawTables().Len},
		{Name: "acl_rule", Capacity: 4096, Count: aclReg.RawRules().Len},
		{Name: "vrf", Capacity: vrf.TableIDMax - vrf.TableIDMin + 1, Count: vrfReg.Raw().Len},
		{Name: "interface", Capacity: 1024, Count: ifaceReg.Raw().Len},
		{Name: "neighbor", Capacity: 8192, Count: neighborReg.Raw().Len},
		{Name: "nexthop", Capacity: 16384, Count: nhReg.Raw().Len},
		{Name: "nexthop_group", Capacity: 4096, Count: nhgReg.Raw().Len},
		{Name: "route", Capacity: 65536, Count: routeReg.Raw().Len},
	})
	d.Register(crmOrch)

	if f.warmStart {
		if err := client.WarmBoot(ctx); err != nil {
			return fmt.Errorf("orchagent: warm boot: %w", err)
		}
		if _, err := wr.Thaw(ctx); err != nil {
			return fmt.Errorf("orchagent: thaw: %w", err)
		}
		log.Info("thawed registries from STATE_DB")
	}

	go watchForFreezeSignal(ctx, wr)

	for _, table := range []string{
		"PORT_TABLE", "VLAN_TABLE", "VLAN_MEMBER_TABLE",
		"BUFFER_POOL_TABLE", "BUFFER_PROFILE_TABLE", "MIRROR_SESSION",
		"POLICER_TABLE", "TUNNEL_TABLE", "TUNNEL_TERM_TABLE",
		"TUNNEL_MAP_ENTRY_TABLE", "FDB_TABLE", "ACL_TABLE", "ACL_RULE_TABLE",
		"VRF_TABLE", "INTERFACE_TABLE", "NEIGH_TABLE", "ROUTE_TABLE",
	} {
		if err := subscribeTable(ctx, d, appl, table); err != nil {
			return err
		}
	}

	log.Info("orchagent started")
	d.Run(ctx)
	log.Info("orchagent stopped")
	return nil
}

// subscribeTable bridges an APPL_DB keyspace subscription into the
// dispatcher's per-table consumer queue, translating dbadapter.Event
// batches into consumer.Mutation Enqueue calls (spec.md §4.1 -> §4.2).
func subscribeTable(ctx context.Context, d *dispatcher.Dispatcher, appl *dbadapter.Adapter, table string) error {
	cons, ok := d.ConsumerFor(table)
	if !ok {
		return fmt.Errorf("orchagent: no consumer registered for %s", table)
	}
	events, err := appl.Subscribe(ctx, table)
	if err != nil {
		return fmt.Errorf("orchagent: subscribing to %s: %w", table, err)
	}
	go func() {
		for batch := range events {
			for _, ev := range batch {
				cons.Enqueue(consumer.Mutation{Table: table, Key: ev.Key, Op: ev.Op, Fields: ev.Fields})
			}
		}
	}()
	return nil
}

// watchForFreezeSignal runs warm restart phase 1 (every handler bakes
// its registry to STATE_DB) when the process receives SIGHUP, the
// signal a supervisor sends ahead of replacing this process with a
// --warm-start instance (spec.md §4.9 phase 1).
func watchForFreezeSignal(ctx context.Context, wr *warmrestart.Controller) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP)
	defer signal.Stop(sig)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			log := swutil.WithField("component", "orchagent")
			log.Info("SIGHUP received, freezing registries to STATE_DB")
			if err := wr.Freeze(ctx); err != nil {
				log.Errorf("freeze: %v", err)
			}
		}
	}
}

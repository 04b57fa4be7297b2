// Command swssctl is the introspection CLI for the agent's databases: it
// lists and dumps table contents and offers a small interactive shell for
// ad hoc exploration, the read-only counterpart to the *mgrd daemons that
// write these tables (spec.md §6).
//
//	swssctl -d config keys PORT
//	swssctl -d appl get PORT_TABLE Ethernet0
//	swssctl -d state dump VLAN_TABLE
//	swssctl shell
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fabricwire/swssd/pkg/cli"
	"github.com/fabricwire/swssd/pkg/dbadapter"
)

// App holds CLI state shared across all commands.
type App struct {
	addr string
	db   string
}

var app = &App{}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, cli.Red(err.Error()))
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "swssctl",
	Short:             "Introspects the agent's Redis-backed databases",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&app.addr, "redis-addr", "a", "localhost:6379", "redis address")
	flags.StringVarP(&app.db, "db", "d", "appl", "database instance (appl, asic, counters, config, state)")

	rootCmd.AddCommand(keysCmd, getCmd, dumpCmd, shellCmd)
}

// parseDB resolves the --db flag to a DBInstance, the way newtron's -d
// flag resolves a device name before every command runs.
func parseDB(name string) (dbadapter.DBInstance, error) {
	switch strings.ToLower(name) {
	case "appl", "appl_db", "application":
		return dbadapter.ApplDB, nil
	case "asic", "asic_db":
		return dbadapter.AsicDB, nil
	case "counters", "counters_db":
		return dbadapter.CountersDB, nil
	case "config", "config_db":
		return dbadapter.ConfigDB, nil
	case "state", "state_db":
		return dbadapter.StateDB, nil
	default:
		return 0, fmt.Errorf("unknown database %q (want appl, asic, counters, config, or state)", name)
	}
}

// connect opens an adapter against the database named by the --db flag.
func connect(ctx context.Context) (*dbadapter.Adapter, error) {
	instance, err := parseDB(app.db)
	if err != nil {
		return nil, err
	}
	a := dbadapter.New(app.addr, instance)
	if err := a.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connecting to %s at %s: %w", instance, app.addr, err)
	}
	return a, nil
}

var keysCmd = &cobra.Command{
	Use:   "keys <table>",
	Short: "Lists the keys present in a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := connect(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		keys, err := a.Keys(ctx, args[0])
		if err != nil {
			return err
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Println(k)
		}
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <table> <key>",
	Short: "Prints the field/value pairs stored for one key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := connect(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		fields, ok, err := a.Read(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s|%s: not found", args[0], args[1])
		}
		printFields(fields)
		return nil
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump <table>",
	Short: "Dumps every key in a table as a field-aligned table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := connect(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		return dumpTable(ctx, a, args[0])
	},
}

// dumpTable renders a table's keys and fields using the shared tabular
// formatter, falling back to one column per distinct field name seen
// across all keys (fields a given key lacks print as "-").
func dumpTable(ctx context.Context, a *dbadapter.Adapter, table string) error {
	keys, err := a.Keys(ctx, table)
	if err != nil {
		return err
	}
	sort.Strings(keys)

	rows := make([]map[string]string, len(keys))
	fieldSet := map[string]bool{}
	for i, k := range keys {
		fields, ok, err := a.Read(ctx, table, k)
		if err != nil {
			return err
		}
		if !ok {
			fields = map[string]string{}
		}
		rows[i] = fields
		for name := range fields {
			fieldSet[name] = true
		}
	}

	fieldNames := make([]string, 0, len(fieldSet))
	for name := range fieldSet {
		fieldNames = append(fieldNames, name)
	}
	sort.Strings(fieldNames)

	t := cli.NewTable(append([]string{"KEY"}, fieldNames...)...).WithTitle(table)
	for i, k := range keys {
		row := make([]string, 1+len(fieldNames))
		row[0] = k
		for j, name := range fieldNames {
			if v, ok := rows[i][name]; ok {
				row[1+j] = statusCell(name, v)
			} else {
				row[1+j] = cli.Dim("-")
			}
		}
		t.Row(row...)
	}
	t.Flush()
	return nil
}

// statusCell colorizes a field's value when its name looks like a
// status/state column, leaving every other field plain.
func statusCell(field, value string) string {
	lower := strings.ToLower(field)
	if strings.HasSuffix(lower, "state") || strings.HasSuffix(lower, "status") {
		return cli.StatusColor(value)
	}
	return value
}

func printFields(fields map[string]string) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	t := cli.NewTable("FIELD", "VALUE")
	for _, name := range names {
		t.Row(name, fields[name])
	}
	t.Flush()
}

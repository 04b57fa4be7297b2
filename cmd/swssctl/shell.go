package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fabricwire/swssd/pkg/dbadapter"
)

// Shell is an interactive REPL holding one database connection across
// commands; "use <db>" closes it and connects to the named instance.
type Shell struct {
	reader  *bufio.Reader
	adapter *dbadapter.Adapter
	db      string
	addr    string
}

// NewShell creates a shell pointed at the database named by the current
// --db/--redis-addr flags.
func NewShell(db, addr string) *Shell {
	return &Shell{
		reader: bufio.NewReader(os.Stdin),
		db:     db,
		addr:   addr,
	}
}

// Run starts the interactive loop.
func (s *Shell) Run() error {
	ctx := context.Background()
	if err := s.connect(ctx); err != nil {
		return err
	}
	defer s.adapter.Close()

	fmt.Printf("Connected to %s.\n", s.db)
	fmt.Println("Type 'help' for available commands.")

	for {
		fmt.Printf("%s> ", s.db)
		line, err := s.reader.ReadString('\n')
		if err != nil { // EOF
			fmt.Println("Disconnecting...")
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		args := strings.Fields(line)
		cmd, rest := args[0], args[1:]

		switch cmd {
		case "quit", "exit", "q":
			fmt.Println("Disconnecting...")
			return nil
		case "help", "?":
			s.cmdHelp()
		case "use":
			s.cmdUse(ctx, rest)
		case "keys":
			s.cmdKeys(ctx, rest)
		case "get":
			s.cmdGet(ctx, rest)
		case "dump":
			s.cmdDump(ctx, rest)
		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (s *Shell) connect(ctx context.Context) error {
	instance, err := parseDB(s.db)
	if err != nil {
		return err
	}
	if s.adapter != nil {
		s.adapter.Close()
	}
	s.adapter = dbadapter.New(s.addr, instance)
	return s.adapter.Connect(ctx)
}

func (s *Shell) cmdUse(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Println("Usage: use <appl|asic|counters|config|state>")
		return
	}
	s.db = args[0]
	if err := s.connect(ctx); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("Switched to %s.\n", s.db)
}

func (s *Shell) cmdKeys(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Println("Usage: keys <table>")
		return
	}
	keys, err := s.adapter.Keys(ctx, args[0])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	for _, k := range keys {
		fmt.Printf("  %s\n", k)
	}
	if len(keys) == 0 {
		fmt.Println("  (none)")
	}
}

func (s *Shell) cmdGet(ctx context.Context, args []string) {
	if len(args) != 2 {
		fmt.Println("Usage: get <table> <key>")
		return
	}
	fields, ok, err := s.adapter.Read(ctx, args[0], args[1])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if !ok {
		fmt.Println("(not found)")
		return
	}
	printFields(fields)
}

func (s *Shell) cmdDump(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Println("Usage: dump <table>")
		return
	}
	if err := dumpTable(ctx, s.adapter, args[0]); err != nil {
		fmt.Printf("Error: %v\n", err)
	}
}

func (s *Shell) cmdHelp() {
	fmt.Println("Commands:")
	fmt.Println("  use <db>           Switch database (appl, asic, counters, config, state)")
	fmt.Println("  keys <table>       List keys in a table")
	fmt.Println("  get <table> <key>  Show fields for one key")
	fmt.Println("  dump <table>       Show all keys and fields in a table")
	fmt.Println("  quit               Disconnect")
	fmt.Println("  help               Show this help")
}

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive shell with a persistent database connection",
	RunE: func(cmd *cobra.Command, args []string) error {
		sh := NewShell(app.db, app.addr)
		return sh.Run()
	},
}

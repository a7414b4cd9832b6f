// Streamline Studio CLI - interactive editor for substreams module graphs
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	_ "github.com/tliron/commonlog/simple"

	"github.com/avgusev/streamline-studio/blockcache"
	"github.com/avgusev/streamline-studio/bus"
	"github.com/avgusev/streamline-studio/codegen"
	"github.com/avgusev/streamline-studio/config"
	"github.com/avgusev/streamline-studio/graph"
	"github.com/avgusev/streamline-studio/script"
	"github.com/avgusev/streamline-studio/stream"
	"github.com/avgusev/streamline-studio/worker"
	"github.com/avgusev/streamline-studio/workspace"
)

type studio struct {
	cfg   *config.Config
	store *graph.Store
	cache *blockcache.Cache
	ws    *workspace.Workspace

	execIn   *bus.Queue[bus.ExecRequest]
	streamIn *bus.Queue[bus.StreamRequest]
	notes    *bus.Queue[bus.Notification]

	execDone    chan struct{}
	streamDone  chan struct{}
	printerDone chan struct{}
}

func main() {
	dir := flag.String("dir", ".", "Directory to search for studio.toml")
	expr := flag.String("e", "", "Evaluate a script expression and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: studio [options]\n\n")
		fmt.Fprintf(os.Stderr, "Starts the interactive module graph editor.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  studio                       # Start the REPL\n")
		fmt.Fprintf(os.Stderr, "  studio -dir ./proj           # Use ./proj/studio.toml\n")
		fmt.Fprintf(os.Stderr, "  studio -e 'let x = 40 + 2;'  # Evaluate one expression\n")
	}
	flag.Parse()

	cfg, err := config.FindAndLoad(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	ws, err := workspace.Open(cfg.WorkspacePath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening workspace: %v\n", err)
		os.Exit(1)
	}
	defer ws.Close()

	s := &studio{
		cfg:         cfg,
		store:       graph.NewStoreWithDefaults(),
		cache:       blockcache.New(),
		ws:          ws,
		execIn:      bus.NewQueue[bus.ExecRequest](),
		streamIn:    bus.NewQueue[bus.StreamRequest](),
		notes:       bus.NewQueue[bus.Notification](),
		execDone:    make(chan struct{}),
		streamDone:  make(chan struct{}),
		printerDone: make(chan struct{}),
	}
	defer s.store.Close()

	exec, err := worker.NewExec(script.NewGojaEngine(), s.execIn, s.notes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting script engine: %v\n", err)
		os.Exit(1)
	}
	single := worker.SingleBlock{
		Package: cfg.SingleBlockPackage,
		Module:  cfg.SingleBlockModule,
	}
	sw := worker.NewStream(stream.NewGRPCClient(), s.cache, single, s.streamIn, s.notes)

	go func() { exec.Run(); close(s.execDone) }()
	go func() { sw.Run(); close(s.streamDone) }()
	go func() { s.printNotifications(); close(s.printerDone) }()

	if *expr != "" {
		s.execIn.Send(bus.Evaluate{Source: *expr})
		s.shutdown()
		return
	}

	s.runREPL()
	s.shutdown()
}

// shutdown closes the request queues, waits for the workers to drain
// them, then waits for the printer to flush remaining notifications.
func (s *studio) shutdown() {
	s.execIn.Close()
	s.streamIn.Close()
	<-s.execDone
	<-s.streamDone
	s.notes.Close()
	<-s.printerDone
}

func (s *studio) printNotifications() {
	for n := range s.notes.Receive() {
		switch n := n.(type) {
		case bus.TextMessage:
			fmt.Println(n.Text)
		case bus.JsonMessage:
			if data, err := sonic.MarshalString(n.Value); err == nil {
				fmt.Println(data)
			} else {
				fmt.Printf("%v\n", n.Value)
			}
		case bus.BlockCacheUpdated:
			fmt.Printf("Block cache slot %d updated\n", n.Slot)
		case bus.MessagesCleared:
			fmt.Println("--- cleared ---")
		}
	}
}

// runREPL starts an interactive read-eval-print loop. Script input
// accumulates until a blank line or a line ending in ';' executes it;
// lines starting with ':' are editor commands.
func (s *studio) runREPL() {
	fmt.Println("Streamline Studio (type 'exit' to quit, ':help' for commands)")
	fmt.Printf("Endpoint: %s\n", s.cfg.Endpoint)
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	lineBuffer := strings.Builder{}

	for {
		if lineBuffer.Len() == 0 {
			fmt.Print(">> ")
		} else {
			fmt.Print(".. ")
		}

		if !scanner.Scan() {
			break
		}

		line := scanner.Text()

		if lineBuffer.Len() == 0 && (line == "exit" || line == "quit") {
			break
		}

		if lineBuffer.Len() == 0 && strings.HasPrefix(line, ":") {
			s.handleCommand(line)
			continue
		}

		// Empty line executes accumulated input
		if line == "" && lineBuffer.Len() > 0 {
			s.flushInput(&lineBuffer)
			continue
		}

		if lineBuffer.Len() > 0 {
			lineBuffer.WriteString("\n")
		}
		lineBuffer.WriteString(line)

		// If line ends with ';', execute immediately
		if strings.HasSuffix(strings.TrimSpace(line), ";") {
			s.flushInput(&lineBuffer)
		}
	}

	fmt.Println()
}

func (s *studio) flushInput(buf *strings.Builder) {
	input := strings.TrimSpace(buf.String())
	buf.Reset()
	if input != "" {
		s.execIn.Send(bus.Evaluate{Source: input})
	}
}

// handleCommand handles editor meta-commands
func (s *studio) handleCommand(cmd string) {
	fields := strings.Fields(cmd)
	args := fields[1:]

	switch fields[0] {
	case ":help", ":h", ":?":
		printHelp()

	case ":modules", ":m":
		for _, m := range s.store.Snapshot().Modules {
			policy := ""
			if m.Kind == graph.KindStore {
				policy = fmt.Sprintf(" policy=%s", m.Policy)
			}
			fmt.Printf("  %d  %-5s %-20s inputs=[%s]%s\n",
				m.ID, m.Kind, m.Name, strings.Join(m.Inputs, ", "), policy)
		}

	case ":add":
		s.cmdAdd(args)

	case ":rm":
		if id, ok := parseID(args); ok {
			s.store.Remove(id)
		}

	case ":rename":
		if len(args) != 2 {
			fmt.Println("usage: :rename <id> <new-name>")
			return
		}
		if id, ok := parseID(args[:1]); ok {
			if !s.store.Rename(id, args[1]) {
				fmt.Printf("no module with id %d\n", id)
			}
		}

	case ":inputs":
		if len(args) < 1 {
			fmt.Println("usage: :inputs <id> [input ...]")
			return
		}
		if id, ok := parseID(args[:1]); ok {
			if !s.store.SetInputs(id, args[1:]) {
				fmt.Printf("no module with id %d\n", id)
			}
		}

	case ":policy":
		s.cmdPolicy(args)

	case ":gen":
		out, err := codegen.Generate(s.store.Snapshot())
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Print(out)

	case ":write":
		if len(args) != 1 {
			fmt.Println("usage: :write <path>")
			return
		}
		if err := codegen.WriteFile(args[0], s.store.Snapshot()); err != nil {
			fmt.Printf("Error: %v\n", err)
		}

	case ":source":
		s.cmdSource(args)

	case ":build":
		s.execIn.Send(bus.Build{})

	case ":call":
		if len(args) < 1 {
			fmt.Println("usage: :call <function> [json-arg ...]")
			return
		}
		s.execIn.Send(bus.EvaluateFunction{Name: args[0], Args: args[1:]})

	case ":reset":
		s.cmdReset(args)

	case ":run":
		s.cmdRun(args)

	case ":get":
		s.cmdGet(args)

	case ":slot":
		if len(args) != 1 {
			fmt.Println("usage: :slot <n>")
			return
		}
		slot, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Printf("bad slot: %v\n", err)
			return
		}
		v := s.cache.Get(slot)
		if v == nil {
			fmt.Println("empty")
			return
		}
		if data, err := sonic.MarshalString(v); err == nil {
			fmt.Println(data)
		} else {
			fmt.Printf("%v\n", v)
		}

	case ":save":
		if len(args) != 1 {
			fmt.Println("usage: :save <name>")
			return
		}
		if err := s.ws.Save(args[0], s.store.Snapshot()); err != nil {
			fmt.Printf("Error: %v\n", err)
		}

	case ":load":
		if len(args) != 1 {
			fmt.Println("usage: :load <name>")
			return
		}
		snap, err := s.ws.Load(args[0])
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		s.store.Restore(snap)

	case ":graphs":
		names, err := s.ws.List()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		for _, name := range names {
			fmt.Printf("  %s\n", name)
		}

	case ":export":
		if len(args) != 1 {
			fmt.Println("usage: :export <path>")
			return
		}
		if err := workspace.Export(args[0], s.store.Snapshot()); err != nil {
			fmt.Printf("Error: %v\n", err)
		}

	case ":import":
		if len(args) != 1 {
			fmt.Println("usage: :import <path>")
			return
		}
		snap, err := workspace.Import(args[0])
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		s.store.Restore(snap)

	default:
		fmt.Printf("Unknown command: %s (type :help for commands)\n", fields[0])
	}
}

func (s *studio) cmdAdd(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: :add map|store <name> [input ...]")
		return
	}
	kind := graph.Kind(args[0])
	if kind != graph.KindMap && kind != graph.KindStore {
		fmt.Printf("bad kind %q: want map or store\n", args[0])
		return
	}
	name := args[1]
	inputs := args[2:]
	if len(inputs) == 0 {
		inputs = []string{graph.SourceInput}
	}

	m := graph.Module{Kind: kind, Name: name, Inputs: inputs}
	if kind == graph.KindStore {
		m.Policy = graph.PolicySet
	}
	m.Code = defaultBody(m)
	id := s.store.Insert(m)
	fmt.Printf("added %s %s (id %d)\n", kind, name, id)
}

func (s *studio) cmdPolicy(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: :policy <id> set|setOnce")
		return
	}
	id, ok := parseID(args[:1])
	if !ok {
		return
	}
	policy := graph.UpdatePolicy(args[1])
	if policy != graph.PolicySet && policy != graph.PolicySetOnce {
		fmt.Printf("bad policy %q: want set or setOnce\n", args[1])
		return
	}
	if !s.store.SetPolicy(id, policy) {
		fmt.Printf("cannot set policy on module %d\n", id)
	}
}

// cmdSource reads a module body from stdin (terminated by a line with
// a single '.') and stores it as the module's code.
func (s *studio) cmdSource(args []string) {
	id, ok := parseID(args)
	if !ok {
		fmt.Println("usage: :source <id>")
		return
	}
	if _, found := s.store.Get(id); !found {
		fmt.Printf("no module with id %d\n", id)
		return
	}

	fmt.Println("enter code, end with a single '.' on its own line:")
	scanner := bufio.NewScanner(os.Stdin)
	var body strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		if line == "." {
			break
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	s.store.SetCode(id, strings.TrimRight(body.String(), "\n"))
}

func (s *studio) cmdReset(args []string) {
	r := bus.ResetScope{ClearScope: true, ClearUnits: true}
	if len(args) == 1 {
		switch args[0] {
		case "scope":
			r.ClearUnits = false
		case "units":
			r.ClearScope = false
		case "all":
		default:
			fmt.Println("usage: :reset [scope|units|all]")
			return
		}
	}
	s.execIn.Send(r)
}

func (s *studio) cmdRun(args []string) {
	start, stop := s.cfg.StartBlock, s.cfg.StopBlock
	if len(args) == 2 {
		var err error
		if start, err = strconv.ParseInt(args[0], 10, 64); err != nil {
			fmt.Printf("bad start block: %v\n", err)
			return
		}
		if stop, err = strconv.ParseUint(args[1], 10, 64); err != nil {
			fmt.Printf("bad stop block: %v\n", err)
			return
		}
	} else if len(args) != 0 {
		fmt.Println("usage: :run [start stop]")
		return
	}

	s.streamIn.Send(bus.RunRange{
		Start:    start,
		Stop:     stop,
		Endpoint: s.cfg.Endpoint,
		Package:  s.cfg.Package,
		Module:   s.cfg.ModuleName,
		Token:    s.cfg.Token(),
	})
}

func (s *studio) cmdGet(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: :get <block-number> <slot>")
		return
	}
	number, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Printf("bad block number: %v\n", err)
		return
	}
	slot, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Printf("bad slot: %v\n", err)
		return
	}

	s.streamIn.Send(bus.FetchSingleBlock{
		Number:   number,
		Endpoint: s.cfg.Endpoint,
		Token:    s.cfg.Token(),
		Slot:     slot,
	})
}

func defaultBody(m graph.Module) string {
	return fmt.Sprintf("function %s(%s) {\n}", m.Name, strings.Join(m.Inputs, ", "))
}

func parseID(args []string) (int64, bool) {
	if len(args) < 1 {
		fmt.Println("expected a module id")
		return 0, false
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Printf("bad module id %q\n", args[0])
		return 0, false
	}
	return id, true
}

func printHelp() {
	fmt.Println("Editor Commands:")
	fmt.Println("  :help, :h, :?            Show this help")
	fmt.Println("  :modules, :m             List graph modules")
	fmt.Println("  :add map|store <name> [input ...]   Add a module")
	fmt.Println("  :rm <id>                 Remove a module")
	fmt.Println("  :rename <id> <name>      Rename a module (references follow)")
	fmt.Println("  :inputs <id> [input ...] Set a module's inputs")
	fmt.Println("  :policy <id> set|setOnce Set a store module's update policy")
	fmt.Println("  :source <id>             Enter a module's code")
	fmt.Println("  :gen                     Print the generated registration script")
	fmt.Println("  :write <path>            Write the generated script to a file")
	fmt.Println("  :build                   Run codegen() inside the script scope")
	fmt.Println("  :call <fn> [json ...]    Call a scope function with JSON arguments")
	fmt.Println("  :reset [scope|units|all] Reset the script scope")
	fmt.Println("  :run [start stop]        Stream a block range")
	fmt.Println("  :get <block> <slot>      Fetch one block into a cache slot")
	fmt.Println("  :slot <n>                Show a cache slot's contents")
	fmt.Println("  :save/:load <name>       Save or load a graph in the workspace")
	fmt.Println("  :graphs                  List saved graphs")
	fmt.Println("  :export/:import <path>   Write or read a portable graph snapshot")
	fmt.Println("  exit, quit               Exit")
	fmt.Println()
	fmt.Println("Anything else is script source: a blank line or a trailing ';' runs it.")
}

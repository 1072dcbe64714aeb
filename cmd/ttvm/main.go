// Command ttvm is the entrypoint for the actor-process virtual machine:
// assemble/load a .ttvm or .ttb program, optionally optimize it, and run
// it to completion under the work-stealing scheduler. Flag parsing and
// the subcommand dispatch below mirror the teacher's main.go: a handful
// of flag.Bool/flag.String/flag.Int globals parsed once in init, then
// os.Args[len(os.Args)-flag.NArg():] to recover the positional arguments
// flag.Parse left behind.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/rs/zerolog"

	"tinytotvm/bytecode"
	"tinytotvm/config"
	"tinytotvm/console"
	"tinytotvm/logging"
	"tinytotvm/metrics"
	"tinytotvm/modulecache"
	"tinytotvm/optimizer"
	"tinytotvm/scheduler"
)

var (
	debugFlag    = flag.Bool("debug", false, "log at debug level")
	optimizeFlag = flag.Bool("optimize", false, "run the optimizer before executing")
	profileFlag  = flag.String("profile", "", "address to serve Prometheus metrics on, e.g. :9090")
	consoleFlag  = flag.String("console", "", "address to serve the remote debug console on, e.g. :9091")
	workersFlag  = flag.Int("workers", 0, "scheduler worker count (0 = GOMAXPROCS)")
	baseDirFlag  = flag.String("basedir", ".", "base directory IMPORT paths are resolved against")
)

func init() {
	flag.Parse()
}

func main() {
	args := os.Args[len(os.Args)-flag.NArg():]
	if len(args) == 0 {
		fmt.Println("Usage: ttvm <run|compile|optimize|compile-lisp> <file> [more files...]")
		os.Exit(1)
	}

	cmd := args[0]
	rest := args[1:]

	log := logging.New(*debugFlag)
	settings := config.Load()
	if *workersFlag > 0 {
		settings.Workers = *workersFlag
	}
	if *profileFlag == "" {
		*profileFlag = settings.ProfileAddr
	}
	if *consoleFlag == "" {
		*consoleFlag = settings.ConsoleAddr
	}

	switch cmd {
	case "run":
		runCommand(rest, settings, log)
	case "compile":
		compileCommand(rest)
	case "optimize":
		optimizeCommand(rest)
	case "compile-lisp":
		// The S-expression front end is explicitly out of scope; this
		// subcommand exists only so the dispatcher recognizes the name.
		fmt.Println("compile-lisp: not supported by this build")
		os.Exit(1)
	default:
		fmt.Printf("unknown subcommand: %s\n", cmd)
		os.Exit(1)
	}
}

func loadProgram(path string) (*bytecode.Program, error) {
	return bytecode.LoadFile(path)
}

// startMetricsServer spins up the Prometheus exposition endpoint on a
// background goroutine and returns its collector; runCommand increments
// ProcessesSpawned and nothing else updates it.
func startMetricsServer(addr string) *metrics.Collector {
	collector, reg := metrics.NewCollector()
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	go http.ListenAndServe(addr, mux)
	return collector
}

func runCommand(files []string, settings config.Settings, log zerolog.Logger) {
	if len(files) == 0 {
		fmt.Println("run: expected at least one program file")
		os.Exit(1)
	}

	var collector *metrics.Collector
	if *profileFlag != "" {
		collector = startMetricsServer(*profileFlag)
		log.Info().Str("addr", *profileFlag).Msg("metrics server listening")
	}

	var dbg *console.Console
	if *consoleFlag != "" {
		dbg = console.New()
		defer dbg.Close()
		mux := http.NewServeMux()
		mux.HandleFunc("/attach", dbg.Handler)
		go http.ListenAndServe(*consoleFlag, mux)
		log.Info().Str("addr", *consoleFlag).Msg("debug console listening")
	}

	loader := modulecache.FileLoader{BaseDir: *baseDirFlag}

	pool := scheduler.New(scheduler.Config{
		Workers:         settings.Workers,
		ReductionBudget: settings.ReductionBudget,
		Out:             os.Stdout,
		Loader:          loader,
	})
	pool.Start()
	defer pool.Shutdown()

	for _, f := range files {
		prog, err := loadProgram(f)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		if *optimizeFlag {
			prog, _ = optimizer.Run(prog)
		}
		pid, err := pool.SpawnProgram(prog)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		log.Debug().Int64("pid", int64(pid)).Str("file", f).Msg("spawned process")
		if collector != nil {
			collector.ProcessesSpawned.Inc()
		}
	}

	pool.WaitForCompletion()

	if dbg != nil {
		dbg.Publish(pool.Snapshot())
	}
}

func compileCommand(files []string) {
	if len(files) < 2 {
		fmt.Println("compile: expected <input.ttvm> <output.ttb>")
		os.Exit(1)
	}
	prog, err := bytecode.AssembleFile(files[0])
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := bytecode.WriteBinaryFile(files[1], prog); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func optimizeCommand(files []string) {
	if len(files) < 2 {
		fmt.Println("optimize: expected <input> <output.ttb>")
		os.Exit(1)
	}
	prog, err := loadProgram(files[0])
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	out, report := optimizer.Run(prog)
	fmt.Printf("folded=%d tail_calls=%d dead=%d\n", report.ConstantsFolded, report.TailCalls, report.DeadInstructions)
	if err := bytecode.WriteBinaryFile(files[1], out); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

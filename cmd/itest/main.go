// Command itest runs golden-comparison integration tests against the
// bassovac variant caller.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/deixis/itest"
	"github.com/deixis/itest/internal/config"
	itestmcp "github.com/deixis/itest/internal/mcp"
	"github.com/deixis/itest/internal/report"
	"github.com/deixis/itest/internal/runner"
	"github.com/deixis/itest/internal/watch"
	"github.com/deixis/itest/internal/workflow"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("itest: ")
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches a subcommand and returns the process exit code:
// 0 when everything passed, 1 on test failure or fatal error, 2 on
// usage error.
func run(args []string, stdout, stderr io.Writer) int {
	logger := log.New(stderr, "itest: ", 0)

	if len(args) < 1 {
		fmt.Fprintln(stderr, "No test specified!")
		usage(stderr)
		return 2
	}

	cmd := args[0]
	args = args[1:]

	switch cmd {
	case "run":
		return runMain(args, stdout, stderr, logger)
	case "list":
		return listMain(args, stdout, stderr, logger)
	case "inspect":
		return inspectMain(args, stdout, stderr, logger)
	case "watch":
		return watchMain(args, stdout, stderr, logger)
	case "mcp":
		return mcpMain(args, stdout, stderr, logger)
	case "version":
		fmt.Fprintln(stdout, itest.Version)
		return 0
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "itest: unknown command %q\n", cmd)
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `Usage: itest <command> [flags] [modules]

Commands:
  run         Run test modules against the executable under test
  list        List the registered test modules and their cases
  inspect     Show a stored run, or one case of it in full
  watch       Re-run test modules when the executable or fixtures change
  mcp         Start the MCP server
  version     Print the version
  help        Show this help

The executable under test is taken from -exe, then $`+config.EnvExecutable+`,
then the "executable" setting in the nearest .itest file.

Use "itest <command> -h" for command-specific flags.`)
}

// --- run ---

func runMain(args []string, stdout, stderr io.Writer, logger *log.Logger) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var cf configFlags
	cf.register(fs)
	jsonFlag := fs.Bool("json", false, "output results as JSON")
	verboseFlag := fs.Bool("v", false, "verbose output (stderr of every case)")
	reportDir := fs.String("report-dir", "", "write the run result as JSON into this directory")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: itest run [flags] MODULE...")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	modules := fs.Args()
	if len(modules) == 0 {
		fmt.Fprintln(stderr, "itest run: No test specified!")
		fs.Usage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	eng, err := cf.newEngine(logger)
	if err != nil {
		logger.Print(err)
		return 1
	}

	p := newPrinter(stdout, *verboseFlag)
	if !*jsonFlag {
		eng.OnCase = p.caseLine
	}

	result, err := eng.Run(ctx, modules)
	if err != nil {
		logger.Print(err)
		return 1
	}

	if *reportDir != "" {
		if err := report.NewDiskStore(*reportDir).Save(result); err != nil {
			logger.Print(err)
			return 1
		}
	}

	if *jsonFlag {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			logger.Print(err)
			return 1
		}
	} else {
		p.summary(result)
	}

	if !result.Passed() {
		return 1
	}
	return 0
}

// --- list ---

func listMain(args []string, stdout, stderr io.Writer, logger *log.Logger) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var cf configFlags
	cf.register(fs)
	jsonFlag := fs.Bool("json", false, "output modules as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	eng, err := cf.newEngine(logger)
	if err != nil {
		logger.Print(err)
		return 1
	}

	modules := eng.Modules()
	if *jsonFlag {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(modules); err != nil {
			logger.Print(err)
			return 1
		}
		return 0
	}
	newPrinter(stdout, false).modules(modules)
	return 0
}

// --- inspect ---

func inspectMain(args []string, stdout, stderr io.Writer, logger *log.Logger) int {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	reportDir := fs.String("report-dir", "", "directory the run was written to with run -report-dir")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: itest inspect -report-dir DIR RUN_ID [CASE]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *reportDir == "" || fs.NArg() < 1 || fs.NArg() > 2 {
		fs.Usage()
		return 2
	}

	result, err := report.NewDiskStore(*reportDir).Load(fs.Arg(0))
	if err != nil {
		logger.Print(err)
		return 1
	}

	p := newPrinter(stdout, true)
	if fs.NArg() == 1 {
		for _, c := range result.Cases {
			p.caseLine(c)
		}
		p.summary(result)
		return 0
	}

	c, err := result.Case(fs.Arg(1))
	if err != nil {
		logger.Print(err)
		return 1
	}
	p.detail(*c)
	return 0
}

// --- watch ---

func watchMain(args []string, stdout, stderr io.Writer, logger *log.Logger) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var cf configFlags
	cf.register(fs)
	verboseFlag := fs.Bool("v", false, "verbose output (stderr of every case)")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: itest watch [flags] MODULE...")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	modules := fs.Args()
	if len(modules) == 0 {
		fmt.Fprintln(stderr, "itest watch: No test specified!")
		fs.Usage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	eng, err := cf.newEngine(logger)
	if err != nil {
		logger.Print(err)
		return 1
	}
	if err := eng.Config.Validate(); err != nil {
		logger.Print(err)
		return 1
	}
	if _, err := eng.Resolve(modules); err != nil {
		logger.Print(err)
		return 1
	}

	w, err := watch.New(eng.Config.Executable, eng.Config.Data())
	if err != nil {
		logger.Printf("watching: %v", err)
		return 1
	}
	defer w.Close()

	p := newPrinter(stdout, *verboseFlag)
	eng.OnCase = p.caseLine
	w.Loop(ctx, func(ctx context.Context, changed string) {
		if changed != "" {
			p.banner(changed)
		}
		result, err := eng.Run(ctx, modules)
		if err != nil {
			// The executable may be mid-rebuild; wait for the next change.
			logger.Print(err)
			return
		}
		p.summary(result)
	})
	return 0
}

// --- mcp ---

func mcpMain(args []string, stdout, stderr io.Writer, logger *log.Logger) int {
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var cf configFlags
	cf.register(fs)
	instructions := fs.Bool("instructions", false, "print model instructions and exit")
	httpAddr := fs.String("http", "", "start HTTP server on address (e.g. :9090)")
	reportDir := fs.String("report-dir", "", "directory for stored run results (default: a temp dir)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *instructions {
		fmt.Fprint(stdout, itestmcp.Instructions)
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := serve(ctx, &cf, *reportDir, *httpAddr, logger); err != nil {
		logger.Print(err)
		return 1
	}
	return 0
}

func serve(ctx context.Context, cf *configFlags, reportDir, httpAddr string, logger *log.Logger) error {
	eng, err := cf.newEngine(logger)
	if err != nil {
		return err
	}
	r, ok := eng.Runner.(*runner.Runner)
	if !ok {
		return fmt.Errorf("unexpected runner %T", eng.Runner)
	}

	disk := report.NewDiskStore(reportDir)
	store := report.NewLRUStore(5, disk)

	overrides, err := cf.overrides()
	if err != nil {
		return err
	}
	server := itestmcp.NewServer(eng, r, store, itestmcp.WithRootsReload(overrides))

	if httpAddr != "" {
		return serveHTTP(ctx, server, httpAddr, logger)
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

func serveHTTP(ctx context.Context, server *mcpsdk.Server, addr string, logger *log.Logger) error {
	handler := mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	logger.Printf("listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// --- shared ---

// configFlags are the configuration overrides shared by all commands
// that touch the executable under test.
type configFlags struct {
	exe     string
	data    string
	ref     string
	timeout time.Duration
}

func (c *configFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.exe, "exe", "", "path to the executable under test (overrides $"+config.EnvExecutable+")")
	fs.StringVar(&c.data, "data", "", "fixture data directory (default: data/ next to the itest binary)")
	fs.StringVar(&c.ref, "ref", "", "reference sequence passed with -f")
	fs.DurationVar(&c.timeout, "timeout", 0, "kill the executable after this long (default: no timeout)")
}

// overrides returns the flag and environment values, with relative flag
// paths made absolute against the current directory.
func (c *configFlags) overrides() (config.Overrides, error) {
	wd, err := os.Getwd()
	if err != nil {
		return config.Overrides{}, fmt.Errorf("determining working directory: %w", err)
	}
	return config.Overrides{
		Getenv:     os.Getenv,
		WorkDir:    wd,
		Executable: absFlag(wd, c.exe),
		DataDir:    absFlag(wd, c.data),
		Reference:  absFlag(wd, c.ref),
		Timeout:    c.timeout,
	}, nil
}

// absFlag resolves a path flag against the working directory, so that it
// keeps its meaning when the configuration is reloaded from another root.
func absFlag(wd, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(wd, p)
}

// load builds the Test Configuration: the nearest .itest file, then the
// environment, then flags.
func (c *configFlags) load() (*config.Config, error) {
	o, err := c.overrides()
	if err != nil {
		return nil, err
	}
	loaded, err := config.Load(o.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg := loaded.Config
	if dir, err := config.HarnessDir(); err == nil {
		cfg.HarnessDir = dir
	}
	cfg.Apply(o)
	return cfg, nil
}

func (c *configFlags) newEngine(logger *log.Logger) (*workflow.Engine, error) {
	cfg, err := c.load()
	if err != nil {
		return nil, err
	}
	reg, err := workflow.NewRegistry(cfg)
	if err != nil {
		return nil, err
	}
	r := &runner.Runner{
		Workspace: cfg.ScratchRoot(),
		Timeout:   cfg.Timeout(),
		MaxOutput: cfg.MaxOutputBytes(),
	}
	return &workflow.Engine{
		Config:   cfg,
		Registry: reg,
		Runner:   r,
		Log:      logger,
	}, nil
}

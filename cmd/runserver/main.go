// Command runserver launches the project's start command and streams its
// standard output to the console.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/deixis/runserver"
	"github.com/deixis/runserver/internal/config"
	srvmcp "github.com/deixis/runserver/internal/mcp"
	"github.com/deixis/runserver/internal/report"
	"github.com/deixis/runserver/internal/runner"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("runserver: ")

	// The bare invocation takes no flags and just launches.
	if len(os.Args) < 2 {
		if err := launch(false, false); err != nil {
			log.Fatal(err)
		}
		return
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "run":
		err = runMain(args)
	case "runs":
		err = runsMain(args)
	case "inspect":
		err = inspectMain(args)
	case "mcp":
		err = mcpMain(args)
	case "version":
		fmt.Println(runserver.Version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "runserver: unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: runserver [<command> [flags]]

With no command, runs the project's start command (npm start) and prints
its stdout line by line.

Commands:
  run         Run the start command (same as no command)
  runs        List recorded runs
  inspect     Print lines of a recorded run
  mcp         Start the MCP server
  version     Print the version
  help        Show this help

Use "runserver <command> -h" for command-specific flags.`)
}

// --- run ---

func runMain(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	verbose := fs.Bool("v", false, "log launcher lifecycle to stderr")
	record := fs.Bool("record", false, "save the stdout transcript to the runs directory")
	_ = fs.Parse(args)

	return launch(*verbose, *record)
}

// launch runs the configured command in the current directory. The child
// is neither reaped nor signalled by runserver; it ends on its own terms.
func launch(verbose, record bool) error {
	workspace, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determining workspace: %w", err)
	}
	loaded, err := config.Load(workspace)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := loaded.Config

	r := &runner.Runner{
		Command:   cfg.Command(),
		Stderr:    runner.StderrMode(cfg.StderrMode()),
		Reap:      cfg.Reap,
		MaxStderr: cfg.MaxStderrBytes(),
	}
	if verbose {
		r.Logger = log.Default()
	}
	if record {
		r.MaxOutput = cfg.MaxOutputBytes()
	}

	res, runErr := r.Run(context.Background(), "", os.Stdout)

	if rr := report.FromRun(res, runErr); record && rr != nil {
		store := report.NewDiskStore(cfg.RunsDir(loaded.ProjectRoot))
		if err := store.Save(rr); err != nil {
			log.Printf("recording run %s: %v", rr.ID, err)
		} else if verbose {
			log.Printf("recorded run %s", rr.ID)
		}
	}
	return runErr
}

// --- runs ---

func runsMain(args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	limit := fs.Int("n", 20, "show at most n runs")
	_ = fs.Parse(args)

	store, err := openStore()
	if err != nil {
		return err
	}
	runs, err := store.List()
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("no recorded runs")
		return nil
	}
	if *limit > 0 && len(runs) > *limit {
		runs = runs[:*limit]
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tSTATUS\tLINES\tCOMMAND")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", r.ID, r.StartedAt.Format(time.DateTime), r.Status, r.Lines, strings.Join(r.Command, " "))
	}
	return tw.Flush()
}

// --- inspect ---

func inspectMain(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	from := fs.Int("from", 0, "first line (1-based)")
	to := fs.Int("to", 0, "last line (inclusive)")
	grep := fs.String("grep", "", "only print lines matching this regular expression")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("inspect: expected exactly one run ID")
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	result, err := store.Load(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("inspect: %w", err)
	}

	lines, err := report.Select(result, *from, *to, *grep)
	if err != nil {
		return fmt.Errorf("inspect: %w", err)
	}
	for _, l := range lines {
		fmt.Printf("%6d  %s\n", l.Number, l.Text)
	}
	if result.Truncated {
		log.Printf("transcript truncated: %d of %d lines stored", len(result.Output), result.Lines)
	}
	return nil
}

func openStore() (*report.DiskStore, error) {
	workspace, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("determining workspace: %w", err)
	}
	loaded, err := config.Load(workspace)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return report.NewDiskStore(loaded.Config.RunsDir(loaded.ProjectRoot)), nil
}

// --- mcp ---

func mcpMain(args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	instructions := fs.Bool("instructions", false, "print model instructions and exit")
	httpAddr := fs.String("http", "", "start HTTP server on address (e.g. :9090)")
	_ = fs.Parse(args)

	if *instructions {
		fmt.Print(srvmcp.Instructions)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return serve(ctx, *httpAddr)
}

func serve(ctx context.Context, httpAddr string) error {
	workspace, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determining workspace: %w", err)
	}

	loaded, err := config.Load(workspace)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := loaded.Config

	disk := report.NewDiskStore(cfg.RunsDir(loaded.ProjectRoot))
	store := report.NewLRUStore(5, disk)

	server := srvmcp.NewServer(cfg, workspace, loaded.ProjectRoot, store)

	if httpAddr != "" {
		return serveHTTP(ctx, server, httpAddr)
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

func serveHTTP(ctx context.Context, server *mcpsdk.Server, addr string) error {
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

	log.Printf("listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

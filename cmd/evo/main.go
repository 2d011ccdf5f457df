package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/suykerbuyk/evolve/internal/archive"
	"github.com/suykerbuyk/evolve/internal/check"
	"github.com/suykerbuyk/evolve/internal/config"
	"github.com/suykerbuyk/evolve/internal/engine"
	"github.com/suykerbuyk/evolve/internal/help"
	"github.com/suykerbuyk/evolve/internal/ledger"
	"github.com/suykerbuyk/evolve/internal/scheduler"
	"github.com/suykerbuyk/evolve/internal/stats"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "check":
		runCheck(args)
	case "reset":
		runReset(args)
	case "force":
		runForce(args)
	case "generate":
		runGenerate(args)
	case "serve":
		runServe(args)
	case "nudge":
		runNudge(args)
	case "status":
		runStatus(args)
	case "stats":
		runStats(args)
	case "history":
		runHistory(args)
	case "runs":
		runRuns(args)
	case "archives":
		runArchives(args)
	case "init":
		runInit(args)
	case "version":
		fmt.Printf("evo v%s\n", help.Version)
	case "help", "--help", "-h":
		runHelp(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, help.FormatUsage(help.TopLevel, help.Subcommands))
}

func runHelp(args []string) {
	if len(args) == 0 {
		fmt.Print(help.FormatUsage(help.TopLevel, help.Subcommands))
		return
	}
	c, ok := help.Lookup(strings.Join(args, " "))
	if !ok {
		fatal("no help for %q", strings.Join(args, " "))
	}
	fmt.Print(help.FormatTerminal(c))
}

// parseFlags parses args for c, printing c's help on -h/--help.
func parseFlags(c help.Command, fs *flag.FlagSet, args []string) []string {
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fmt.Print(help.FormatTerminal(c))
			os.Exit(0)
		}
		fatal("%s: %v\nusage: %s", c.Name, err, c.Usage)
	}
	return fs.Args()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runCheck(args []string) {
	parseFlags(help.CmdCheck, flag.NewFlagSet("check", flag.ContinueOnError), args)
	runEngine(mustLoadConfig(), (*engine.Engine).Check)
}

func runReset(args []string) {
	parseFlags(help.CmdReset, flag.NewFlagSet("reset", flag.ContinueOnError), args)
	runEngine(mustLoadConfig(), (*engine.Engine).Reset)
}

func runForce(args []string) {
	rest := parseFlags(help.CmdForce, flag.NewFlagSet("force", flag.ContinueOnError), args)
	if len(rest) != 1 {
		fatal("usage: %s", help.CmdForce.Usage)
	}
	n, err := strconv.Atoi(rest[0])
	if err != nil || n <= 0 {
		fatal("force: maxCommits must be a positive integer, got %q", rest[0])
	}
	runEngine(mustLoadConfig(), func(e *engine.Engine, ctx context.Context) (engine.Report, error) {
		return e.ForceReplay(ctx, n)
	})
}

func runGenerate(args []string) {
	rest := parseFlags(help.CmdGenerate, flag.NewFlagSet("generate", flag.ContinueOnError), args)
	desc := strings.TrimSpace(strings.Join(rest, " "))
	if desc == "" {
		fatal("usage: %s", help.CmdGenerate.Usage)
	}
	runEngine(mustLoadConfig(), func(e *engine.Engine, ctx context.Context) (engine.Report, error) {
		rep, err := e.Generate(ctx, desc)
		if err == nil {
			fmt.Printf("description: %s\n", rep.Description)
		}
		return rep, err
	})
}

// runEngine runs one operation against a freshly wired engine and exits
// with its status once the engine's resources are released.
func runEngine(cfg config.Config, op func(*engine.Engine, context.Context) (engine.Report, error)) {
	code := func() int {
		ctx, stop := signalContext()
		defer stop()

		a := mustBuild(ctx, cfg)
		defer a.Close()
		rep, err := op(a.engine, ctx)
		return finish(rep, err)
	}()
	os.Exit(code)
}

// finish prints the outcome of a one-shot operation and returns the exit
// code.
func finish(rep engine.Report, err error) int {
	fmt.Println(rep.Summary())
	if rep.Snapshot != "" {
		fmt.Printf("snapshot: %s\n", rep.Snapshot)
	}
	if rep.Warning != "" {
		fmt.Fprintf(os.Stderr, "evo: warning: %s\n", rep.Warning)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "evo: %s: %v\n", rep.Op, err)
		return 1
	}
	return 0
}

func runServe(args []string) {
	parseFlags(help.CmdServe, flag.NewFlagSet("serve", flag.ContinueOnError), args)
	cfg := mustLoadConfig()
	interval, err := cfg.Interval()
	if err != nil {
		fatal("%v", err)
	}
	ctx, stop := signalContext()
	defer stop()

	a := mustBuild(ctx, cfg)
	defer a.Close()

	s, err := scheduler.New(a.engine, scheduler.Options{
		Interval:   interval,
		TriggerDir: cfg.TriggerDir(),
		Logger:     a.logger,
	})
	if err == nil {
		err = s.Start(ctx)
	}
	if err != nil {
		a.Close()
		stop()
		fatal("start scheduler: %v", err)
	}
	a.logger.Info("serving", "interval", interval.String(), "triggers", cfg.TriggerDir(), "ledger", cfg.LedgerPath())

	<-ctx.Done()
	a.logger.Info("shutting down")
	s.Stop()
}

func runNudge(args []string) {
	rest := parseFlags(help.CmdNudge, flag.NewFlagSet("nudge", flag.ContinueOnError), args)
	t, err := parseNudge(rest)
	if err != nil {
		fatal("%v\nusage: %s", err, help.CmdNudge.Usage)
	}
	cfg := mustLoadConfig()
	path, err := scheduler.WriteTrigger(cfg.TriggerDir(), t)
	if err != nil {
		fatal("nudge: %v", err)
	}
	fmt.Printf("queued %s (%s)\n", t.Name(), config.CompressHome(path))
}

func parseNudge(args []string) (scheduler.Trigger, error) {
	if len(args) == 0 {
		return scheduler.Trigger{}, errors.New("nudge: missing operation")
	}
	switch args[0] {
	case "check", "reset":
		if len(args) != 1 {
			return scheduler.Trigger{}, fmt.Errorf("nudge %s takes no arguments", args[0])
		}
		return scheduler.Trigger{Op: args[0]}, nil
	case "force":
		if len(args) != 2 {
			return scheduler.Trigger{}, errors.New("nudge force needs a commit count")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return scheduler.Trigger{}, fmt.Errorf("nudge force: count must be a positive integer, got %q", args[1])
		}
		return scheduler.Trigger{Op: "force", Count: n}, nil
	}
	return scheduler.Trigger{}, fmt.Errorf("nudge: unknown operation %q", args[0])
}

func runStatus(args []string) {
	parseFlags(help.CmdStatus, flag.NewFlagSet("status", flag.ContinueOnError), args)
	cfg := mustLoadConfig()
	report := check.Run(cfg)
	fmt.Print(report.Format())
	if report.HasFailures() {
		os.Exit(1)
	}
}

func runStats(args []string) {
	parseFlags(help.CmdStats, flag.NewFlagSet("stats", flag.ContinueOnError), args)
	cfg := mustLoadConfig()

	l := mustLoadLedger(cfg)
	var counts map[string]int
	if j := openJournalIfExists(cfg); j != nil {
		defer j.Close()
		var err error
		counts, err = j.Counts(context.Background())
		if err != nil {
			fatal("stats: %v", err)
		}
	}
	fmt.Print(stats.Format(stats.Compute(l, counts)))
}

func runHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	asCSV := fs.Bool("csv", false, "")
	parseFlags(help.CmdHistory, fs, args)
	cfg := mustLoadConfig()

	l := mustLoadLedger(cfg)
	if *asCSV {
		if err := stats.WriteCSV(os.Stdout, l.History); err != nil {
			fatal("history: %v", err)
		}
		return
	}
	fmt.Print(stats.FormatHistory(l.History))
}

func runRuns(args []string) {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "")
	parseFlags(help.CmdRuns, fs, args)
	if *limit <= 0 {
		fatal("runs: --limit must be positive")
	}
	cfg := mustLoadConfig()

	j := openJournalIfExists(cfg)
	if j == nil {
		fmt.Print(stats.FormatRuns(nil))
		return
	}
	defer j.Close()
	runs, err := j.Recent(context.Background(), *limit)
	if err != nil {
		fatal("runs: %v", err)
	}
	fmt.Print(stats.FormatRuns(runs))
}

func runArchives(args []string) {
	if len(args) > 0 && args[0] == "show" {
		rest := parseFlags(help.CmdArchivesShow, flag.NewFlagSet("archives show", flag.ContinueOnError), args[1:])
		if len(rest) != 1 {
			fatal("usage: %s", help.CmdArchivesShow.Usage)
		}
		cfg := mustLoadConfig()
		a := archive.New(cfg.ArchiveDir(), cfg.Archive.Compress, 0)
		e, err := a.Find(rest[0])
		if err != nil {
			fatal("%v", err)
		}
		data, err := archive.Read(e.Path)
		if err != nil {
			fatal("%v", err)
		}
		os.Stdout.Write(data)
		return
	}

	rest := parseFlags(help.CmdArchives, flag.NewFlagSet("archives", flag.ContinueOnError), args)
	if len(rest) != 0 {
		fatal("usage: %s", help.CmdArchives.Usage)
	}
	cfg := mustLoadConfig()
	entries, err := archive.New(cfg.ArchiveDir(), cfg.Archive.Compress, 0).List()
	if err != nil {
		fatal("%v", err)
	}
	if len(entries) == 0 {
		fmt.Printf("no snapshots in %s\n", config.CompressHome(cfg.ArchiveDir()))
		return
	}
	for _, e := range entries {
		fmt.Printf("  %s  %-8s  %8d  %s\n", e.TakenAt.Format("2006-01-02 15:04:05"), e.Reason, e.Size, e.Name)
	}
}

func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	author := fs.String("author", "", "")
	state := fs.String("state", "", "")
	parseFlags(help.CmdInit, fs, args)

	path, err := config.WriteDefault(*author, *state)
	if err != nil {
		fatal("init: %v", err)
	}
	fmt.Printf("config: %s\n", config.CompressHome(path))
	if *author == "" {
		fmt.Println("set source.author before running evo check")
	}
}

func mustLoadConfig() config.Config {
	cfg, err := config.Load()
	if err != nil {
		fatal("load config: %v", err)
	}
	return cfg
}

func mustLoadLedger(cfg config.Config) *ledger.Ledger {
	l, err := ledger.NewStore(cfg.LedgerPath()).Load()
	if err != nil {
		fatal("%v", err)
	}
	return l
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "evo: "+format+"\n", args...)
	os.Exit(1)
}

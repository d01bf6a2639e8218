package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// environment carries the state shared by every command.
type environment struct {
	config *Config
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

type command struct {
	summary string
	run     func(ctx context.Context, env *environment, args []string) error
}

var commands = map[string]command{
	"train":    {summary: "train a model from a corpus file", run: runTrain},
	"sample":   {summary: "complete a prefix with a trained model", run: runSample},
	"complete": {summary: "complete the last, partially typed token of a prefix", run: runComplete},
	"stats":    {summary: "print statistics of a trained model", run: runStats},
	"prune":    {summary: "write a pruned copy of a trained model", run: runPrune},
	"serve":    {summary: "serve trained models over an HTTP API", run: runServe},
	"version":  {summary: "print build information", run: runVersion},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err == nil || errors.Is(err, flag.ErrHelp) {
		return
	}
	newLogger("error", os.Stderr).Error("Fatal error", slog.String("error", err.Error()))
	os.Exit(1)
}

// run parses the global flags, loads the configuration and dispatches to the
// requested command.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("outloud", flag.ContinueOnError)
	global.SetOutput(stderr)
	configPath := global.String("config", "./config.json", "path to the JSON configuration file")
	global.Usage = func() {
		_, _ = fmt.Fprintln(stderr, "Usage: outloud [-config path] <command> [flags]")
		_, _ = fmt.Fprintln(stderr, "\nCommands:")
		names := make([]string, 0, len(commands))
		for name := range commands {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			_, _ = fmt.Fprintf(stderr, "  %-9s %s\n", name, commands[name].summary)
		}
		_, _ = fmt.Fprintln(stderr, "\nGlobal flags:")
		global.PrintDefaults()
	}

	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return errors.New("no command given")
	}

	name := global.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		global.Usage()
		return fmt.Errorf("unknown command %q", name)
	}

	config, err := LoadConfig(*configPath, name == "serve")
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	env := &environment{
		config: config,
		logger: newLogger(config.Server.LogLevel, stderr),
		stdout: stdout,
		stderr: stderr,
	}
	return cmd.run(ctx, env, global.Args()[1:])
}

// flagSet returns a FlagSet for a command that reports errors instead of exiting.
func (env *environment) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(env.stderr)
	return fs
}

// isFlagSet reports whether the flag called name was given on the command line.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func runVersion(_ context.Context, env *environment, args []string) error {
	if err := env.flagSet("version").Parse(args); err != nil {
		return err
	}
	_, err := fmt.Fprintf(env.stdout, "outloud %s (commit %s, built %s)\n", Version, Commit, BuildDate)
	return err
}

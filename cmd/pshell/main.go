package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/S1riyS/pocketfs/internal/config"
	"github.com/S1riyS/pocketfs/internal/pocket"
	"github.com/S1riyS/pocketfs/internal/store"
	"github.com/S1riyS/pocketfs/pkg/logging"
)

const defaultConfigPath = "configs/config.yaml"

type globals struct {
	configPath   string
	namenode     string
	storageClass int32
	logLevel     string
}

type command struct {
	name    string
	usage   string
	summary string
	run     func(ctx context.Context, d *pocket.Dispatcher, args []string) error
}

var commands = []command{
	{"mkdir", "mkdir <path>", "create a directory", runMkdir},
	{"lookup", "lookup <path>", "show a node's metadata", runLookup},
	{"ls", "ls <dir>", "list the enumerable entries of a directory", runList},
	{"put", "put [--hidden] <local> <path>", "upload a local file", runPut},
	{"get", "get <path> <local>", "download a file", runGet},
	{"rm", "rm <path>", "remove a file or an empty directory", runRemove},
	{"rmdir", "rmdir <path>", "remove a directory recursively", runRemoveDir},
	{"count", "count <dir>", "count the children of a directory", runCount},
	{"bench", "bench [flags]", "measure write and read throughput", runBench},
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var g globals

	flagSet := pflag.NewFlagSet("pshell", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.StringVarP(&g.configPath, "config", "c", defaultConfigPath, "path to the YAML config")
	flagSet.StringVar(&g.namenode, "namenode", "", "metadata server address (overrides the config)")
	flagSet.Int32Var(&g.storageClass, "class", 0, "storage class for new files and directories")
	flagSet.StringVar(&g.logLevel, "log-level", "", "log level (overrides the config)")
	flagSet.Usage = func() { printUsage(flagSet) }

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	args := flagSet.Args()
	if len(args) == 0 {
		printUsage(flagSet)
		return errors.New("no command given")
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == args[0] {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		return fmt.Errorf("unknown command %q", args[0])
	}

	cfg, err := config.Load(g.configPath)
	if err != nil {
		return err
	}
	if g.namenode != "" {
		cfg.Client.NamenodeAddress = g.namenode
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.MakeContextWithLogger(ctx, logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format))

	s, err := store.Dial(ctx, cfg.Client)
	if err != nil {
		return err
	}
	defer s.Close()

	d := pocket.New(s, pocket.WithStorageClass(g.storageClass), pocket.WithBufferSize(cfg.Client.BufferSize))
	return cmd.run(ctx, d, args[1:])
}

func printUsage(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "Usage:\n  pshell [flags] <command> [args]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-32s %s\n", c.usage, c.summary)
	}
	fmt.Fprintf(os.Stderr, "\nFlags:\n%s", flagSet.FlagUsages())
}

func wantArgs(args []string, n int, usage string) error {
	if len(args) != n {
		return fmt.Errorf("usage: pshell %s", usage)
	}
	return nil
}

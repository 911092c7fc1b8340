package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/S1riyS/pocketfs/internal/pocket"
)

func runMkdir(ctx context.Context, d *pocket.Dispatcher, args []string) error {
	if err := wantArgs(args, 1, "mkdir <path>"); err != nil {
		return err
	}
	return d.MakeDir(ctx, args[0])
}

func runLookup(ctx context.Context, d *pocket.Dispatcher, args []string) error {
	if err := wantArgs(args, 1, "lookup <path>"); err != nil {
		return err
	}
	info, err := d.Lookup(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("path:      %s\n", args[0])
	fmt.Printf("type:      %s\n", info.Type)
	fmt.Printf("fd:        %d\n", info.FD)
	fmt.Printf("capacity:  %d\n", info.Capacity)
	fmt.Printf("dir slot:  %d\n", info.DirOffset)
	fmt.Printf("modified:  %s\n", time.UnixMilli(info.ModificationTime).Format(time.RFC3339))
	return nil
}

func runList(ctx context.Context, d *pocket.Dispatcher, args []string) error {
	if err := wantArgs(args, 1, "ls <dir>"); err != nil {
		return err
	}
	names, err := d.Enumerate(ctx, args[0])
	if err != nil {
		return err
	}

	dir := color.New(color.FgBlue, color.Bold)
	for _, name := range names {
		p := joinPath(args[0], name)
		info, err := d.Lookup(ctx, p)
		if err != nil {
			// Removed between enumerate and lookup.
			continue
		}
		if info.IsDir() {
			fmt.Printf("%12s  %s/\n", "-", dir.Sprint(name))
		} else {
			fmt.Printf("%12d  %s\n", info.Capacity, name)
		}
	}
	return nil
}

func runPut(ctx context.Context, d *pocket.Dispatcher, args []string) error {
	var hidden bool

	flagSet := pflag.NewFlagSet("put", pflag.ContinueOnError)
	flagSet.BoolVar(&hidden, "hidden", false, "do not list the file in its directory")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if err := wantArgs(flagSet.Args(), 2, "put [--hidden] <local> <path>"); err != nil {
		return err
	}

	start := time.Now()
	t, err := d.PutFile(ctx, flagSet.Arg(0), flagSet.Arg(1), !hidden)
	if err != nil {
		return err
	}
	printTransfer("put", t, time.Since(start))
	return nil
}

func runGet(ctx context.Context, d *pocket.Dispatcher, args []string) error {
	if err := wantArgs(args, 2, "get <path> <local>"); err != nil {
		return err
	}

	start := time.Now()
	t, err := d.GetFile(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	printTransfer("get", t, time.Since(start))
	return nil
}

func runRemove(ctx context.Context, d *pocket.Dispatcher, args []string) error {
	if err := wantArgs(args, 1, "rm <path>"); err != nil {
		return err
	}
	return d.DeleteFile(ctx, args[0])
}

func runRemoveDir(ctx context.Context, d *pocket.Dispatcher, args []string) error {
	if err := wantArgs(args, 1, "rmdir <path>"); err != nil {
		return err
	}
	return d.DeleteDir(ctx, args[0])
}

func runCount(ctx context.Context, d *pocket.Dispatcher, args []string) error {
	if err := wantArgs(args, 1, "count <dir>"); err != nil {
		return err
	}
	n, err := d.CountFiles(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Println(n)
	return nil
}

func printTransfer(verb string, t pocket.Transfer, elapsed time.Duration) {
	fmt.Printf("%s %d bytes in %s (%s)  blake3 %s\n",
		verb, t.Bytes, elapsed.Round(time.Microsecond), throughput(t.Bytes, elapsed), color.GreenString(t.Digest.String()))
}

func throughput(bytes int64, elapsed time.Duration) string {
	if elapsed <= 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.1f MiB/s", float64(bytes)/(1<<20)/elapsed.Seconds())
}

func joinPath(dir, name string) string {
	if dir == "/" || dir == "" {
		return "/" + name
	}
	return dir + "/" + name
}

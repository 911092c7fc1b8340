package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/S1riyS/pocketfs/internal/pocket"
)

type benchParams struct {
	dir         string
	size        int
	files       int
	concurrency int
	keep        bool
}

// latencies collects per-operation durations from concurrent workers.
type latencies struct {
	mu sync.Mutex
	d  []time.Duration
}

func (l *latencies) add(d time.Duration) {
	l.mu.Lock()
	l.d = append(l.d, d)
	l.mu.Unlock()
}

func (l *latencies) percentile(p float64) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.d) == 0 {
		return 0
	}
	slices.Sort(l.d)
	i := int(p * float64(len(l.d)-1))
	return l.d[i]
}

func runBench(ctx context.Context, d *pocket.Dispatcher, args []string) error {
	var p benchParams

	flagSet := pflag.NewFlagSet("bench", pflag.ContinueOnError)
	flagSet.StringVar(&p.dir, "dir", "/bench", "directory to create the files in")
	flagSet.IntVar(&p.size, "size", 1<<20, "bytes per file")
	flagSet.IntVar(&p.files, "files", 64, "number of files")
	flagSet.IntVarP(&p.concurrency, "concurrency", "j", 4, "concurrent workers")
	flagSet.BoolVar(&p.keep, "keep", false, "keep the files afterwards")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if p.size <= 0 || p.files <= 0 || p.concurrency <= 0 {
		return fmt.Errorf("size, files and concurrency must be positive")
	}

	data := make([]byte, p.size)
	if _, err := rand.Read(data); err != nil {
		return err
	}

	if err := d.MakeDir(ctx, p.dir); err != nil {
		return err
	}
	if !p.keep {
		defer d.DeleteDir(context.WithoutCancel(ctx), p.dir)
	}

	var writes, reads latencies

	elapsed, err := benchPhase(ctx, p, func(ctx context.Context, path string) error {
		start := time.Now()
		if _, err := d.PutBuffer(ctx, data, path, true); err != nil {
			return err
		}
		writes.add(time.Since(start))
		return nil
	})
	if err != nil {
		return err
	}
	report("write", p, elapsed, &writes)

	elapsed, err = benchPhase(ctx, p, func(ctx context.Context, path string) error {
		start := time.Now()
		got, err := d.GetBuffer(ctx, path, p.size)
		if err != nil {
			return err
		}
		reads.add(time.Since(start))
		if !bytes.Equal(got, data) {
			return fmt.Errorf("%s: read back different bytes", path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	report("read", p, elapsed, &reads)

	return nil
}

// benchPhase runs op once per file across the configured number of workers
// and returns the wall time of the whole phase.
func benchPhase(ctx context.Context, p benchParams, op func(ctx context.Context, path string) error) (time.Duration, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	start := time.Now()
	for i := 0; i < p.files; i++ {
		path := fmt.Sprintf("%s/file-%d", p.dir, i)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return op(ctx, path)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

func report(phase string, p benchParams, elapsed time.Duration, l *latencies) {
	total := int64(p.size) * int64(p.files)
	fmt.Printf("%-5s %s  %d files x %d bytes in %s  p50 %s  p99 %s\n",
		phase,
		color.CyanString("%12s", throughput(total, elapsed)),
		p.files, p.size,
		elapsed.Round(time.Millisecond),
		l.percentile(0.50).Round(time.Microsecond),
		l.percentile(0.99).Round(time.Microsecond),
	)
}

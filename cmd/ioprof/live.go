package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bjdonie/ioprof"
	"github.com/bjdonie/ioprof/internal/blockevent"
	"github.com/bjdonie/ioprof/internal/geometry"
	"github.com/bjdonie/ioprof/internal/live"
	"github.com/bjdonie/ioprof/internal/report"
	"golang.org/x/xerrors"
)

const liveHelp = `ioprof live [-flags] <device>

live runs blktrace against device continuously, printing a fresh report
every -interval until -runtime elapses (or forever, with -runtime=0).
Rendering a terminal heatmap from the accumulator is out of scope; this
prints the same plain-text report "ioprof post" produces.
`

func cmdlive(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("live", flag.ExitOnError)
	var (
		runDuration = fset.Duration("runtime", 0, "how long to run before stopping (0 = until interrupted)")
		interval    = fset.Duration("interval", 2*time.Second, "how often to print a fresh snapshot")
		bucketSize  = fset.Uint64("bucket_size", ioprof.DefaultBucketSize, "granularity of the spatial histogram, in bytes")
		percent     = fset.Float64("percent", ioprof.DefaultPercent, "capacity band width for the histogram")
		topLimit    = fset.Int("top_count_limit", ioprof.DefaultTopCountLimit, "file ranking cutoff")
	)
	fset.Usage = usage(fset, liveHelp)
	fset.Parse(args)

	if fset.NArg() != 1 {
		return ioprof.Wrap(ioprof.KindValidationError, xerrors.New("live requires exactly one device path argument"))
	}
	device := fset.Arg(0)

	if err := checkTracePrereqs(); err != nil {
		return err
	}

	geometryText, err := runFdisk(ctx, device)
	if err != nil {
		return err
	}
	g, err := geometry.Parse(string(geometryText), *bucketSize)
	if err != nil {
		return err
	}

	devName := strings.TrimPrefix(device, "/dev/")
	events, err := live.WatchDevice(ctx, devName)
	if err != nil {
		return xerrors.Errorf("subscribing to uevents for %s: %w", devName, err)
	}

	workDir, err := os.MkdirTemp("", "ioprof-live-"+devName)
	if err != nil {
		return err
	}
	defer os.RemoveAll(workDir)

	acc := live.NewAccumulator()

	var deadline time.Time
	if *runDuration > 0 {
		deadline = time.Now().Add(*runDuration)
	}

	removed := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if ok && ev.Action == "remove" {
				removed = true
				fmt.Fprintf(os.Stderr, "warning: %s was removed; stopping after this window\n", devName)
			}
		default:
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil
		}

		window := *interval
		if !deadline.IsZero() {
			if remaining := time.Until(deadline); remaining < window {
				window = remaining
			}
		}
		if window < time.Second {
			window = time.Second
		}

		rawOut := filepath.Join(workDir, "blk.out."+devName+".live")
		if err := runBlktrace(ctx, device, rawOut, 1024, 8, window); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return ioprof.Wrap(ioprof.KindPrereqMissing, xerrors.Errorf("blktrace: %w", err))
		}
		parsed, err := runBlkparse(ctx, rawOut)
		if err != nil {
			return err
		}
		set, err := blockevent.Parse(parsed, g, *bucketSize, blockevent.Options{})
		if err != nil {
			return err
		}
		acc.MergeSet(set)

		res := acc.Snapshot(nil, g, *bucketSize, *percent, *topLimit)
		if err := report.Write(os.Stdout, g, res); err != nil {
			return err
		}

		if removed {
			return nil
		}
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/bjdonie/ioprof"
	"github.com/bjdonie/ioprof/internal/analyze"
	"github.com/bjdonie/ioprof/internal/blockevent"
	"github.com/bjdonie/ioprof/internal/bundle"
	"github.com/bjdonie/ioprof/internal/correlate"
	"github.com/bjdonie/ioprof/internal/geometry"
	"github.com/bjdonie/ioprof/internal/reduce"
	"github.com/bjdonie/ioprof/internal/report"
	"github.com/bjdonie/ioprof/internal/trace"
	"github.com/google/renameio"
	"golang.org/x/xerrors"
)

const postHelp = `ioprof post [-flags] <archive.tar>

post ingests an archive produced by "ioprof trace", runs the parallel
parse/reduce/correlate/analyze pipeline over it, and prints a structured
report.
`

func cmdpost(ctx context.Context, args []string) error {
	defaults := ioprof.NewOptions()

	fset := flag.NewFlagSet("post", flag.ExitOnError)
	var (
		bucketSize      = fset.Uint64("bucket_size", ioprof.DefaultBucketSize, "granularity of the spatial histogram, in bytes")
		percent         = fset.Float64("percent", ioprof.DefaultPercent, "capacity band width for the histogram, as a fraction of total device capacity")
		topCountLimit   = fset.Int("top_count_limit", ioprof.DefaultTopCountLimit, "file ranking cutoff")
		workerCap       = fset.Int("worker_cap", defaults.WorkerCap, "max concurrent shard parsers (default overridable via $IOPROF_WORKER_CAP)")
		multiBucketHits = fset.Bool("multi_bucket_hits", false, "count a request against ceil(size*sector_size/bucket_size) consecutive buckets from its starting bucket instead of only its starting bucket")
		out             = fset.String("out", "", "write the report to this path instead of stdout")
	)
	fset.Usage = usage(fset, postHelp)
	fset.Parse(args)

	if fset.NArg() != 1 {
		return ioprof.Wrap(ioprof.KindValidationError, xerrors.New("post requires exactly one archive path argument"))
	}
	archivePath := fset.Arg(0)

	cctx := ioprof.NewContext(nil)
	cctx.Options.BucketSize = *bucketSize
	cctx.Options.Percent = *percent
	cctx.Options.TopCountLimit = *topCountLimit
	cctx.Options.WorkerCap = *workerCap
	cctx.Options.MultiBucketHits = *multiBucketHits

	f, err := os.Open(archivePath)
	if err != nil {
		return ioprof.Wrap(ioprof.KindInputCorrupt, xerrors.Errorf("opening archive: %w", err))
	}
	defer f.Close()

	var b *bundle.Bundle
	if err := trace.Phase("read-bundle", 0, func() error {
		var readErr error
		b, readErr = bundle.Read(f, cctx.Log.Printf)
		return readErr
	}); err != nil {
		return err
	}

	g, err := geometry.Parse(b.GeometryText, cctx.Options.BucketSize)
	if err != nil {
		return err
	}

	var global *reduce.Global
	if err := trace.Phase("reduce", 0, func() error {
		var runErr error
		global, runErr = reduce.Run(ctx, b, g, cctx.Options.BucketSize, blockevent.Options{MultiBucketHits: cctx.Options.MultiBucketHits}, cctx.Options.WorkerCap)
		return runErr
	}); err != nil {
		return err
	}

	var c *correlate.Correlator
	if len(global.FileRanges) > 0 {
		trace.Phase("correlate", 0, func() error {
			c = correlate.Build(global.FileRanges, g, cctx.Options.BucketSize)
			return nil
		})
	}

	var res analyze.Result
	trace.Phase("analyze", 0, func() error {
		res = analyze.Run(global.Counters, c, g, cctx.Options.BucketSize, cctx.Options.Percent, cctx.Options.TopCountLimit)
		return nil
	})

	if *out == "" {
		return report.Write(os.Stdout, g, res)
	}

	pf, err := renameio.TempFile("", *out)
	if err != nil {
		return xerrors.Errorf("creating temp file for %q: %w", *out, err)
	}
	defer pf.Cleanup()
	if err := report.Write(pf, g, res); err != nil {
		return err
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return xerrors.Errorf("committing report to %q: %w", *out, err)
	}
	fmt.Fprintf(cctx.Log.Writer(), "wrote report to %s\n", *out)
	return nil
}

// Package report renders the Analyzer's output as the plain-text report
// described in spec §6: Device, Histogram IOPS, Zipfian Theta, and (when
// a file map was supplied) Top files by IOPS.
package report

import (
	"fmt"
	"io"
	"os"

	"github.com/bjdonie/ioprof/internal/analyze"
	"github.com/bjdonie/ioprof/internal/geometry"
	"github.com/mattn/go-isatty"
)

// Write renders res (plus the device geometry g described it) to w.
// Section headers are emphasized with ANSI bold when w is a terminal
// (mattn/go-isatty), matching distri's terminal-aware CLI output; piped
// or redirected output gets plain text.
func Write(w io.Writer, g geometry.Geometry, res analyze.Result) error {
	bold, reset := "", ""
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		bold, reset = "\033[1m", "\033[0m"
	}

	header := func(title string) {
		fmt.Fprintf(w, "%s%s%s\n", bold, title, reset)
	}

	header("Device")
	fmt.Fprintf(w, "  name:           %s\n", g.DeviceName)
	fmt.Fprintf(w, "  sector size:    %d bytes\n", g.SectorSize)
	fmt.Fprintf(w, "  total sectors:  %d\n", g.TotalSectors)
	fmt.Fprintf(w, "  total capacity: %d bytes\n", g.TotalCapacity)
	fmt.Fprintf(w, "  num buckets:    %d\n\n", g.NumBuckets)

	header("Histogram IOPS")
	if !res.PercentagesAvailable {
		fmt.Fprintln(w, "  unavailable (no accepted I/O events)")
	} else {
		fmt.Fprintf(w, "  %12s %12s %12s %12s\n", "GiB so far", "IO% in band", "cumulative IO%", "BW% in band")
		for _, row := range res.HistogramIOPS {
			fmt.Fprintf(w, "  %12.3f %12.3f %12.3f %12.3f\n", row.GiBSoFar, row.IOPercentInBand, row.CumulativeIOPercent, row.BWPercentInBand)
		}
	}
	fmt.Fprintln(w)

	header("Zipfian Theta")
	if res.Theta.Count < 2 {
		fmt.Fprintln(w, "  unavailable (fewer than two distinct nonzero bucket totals)")
	} else {
		fmt.Fprintf(w, "  count: %d  min: %.4f  max: %.4f  avg: %.4f  approx: %.4f\n",
			res.Theta.Count, res.Theta.Min, res.Theta.Max, res.Theta.Avg, res.Theta.Approx)
	}
	fmt.Fprintln(w)

	if len(res.TopFiles) > 0 {
		header("Top files by IOPS")
		for _, fh := range res.TopFiles {
			if res.PercentagesAvailable {
				fmt.Fprintf(w, "  %6.2f%%  %10d  %s\n", fh.HitRatePercent, fh.Hits, fh.Path)
			} else {
				fmt.Fprintf(w, "  %8s  %10d  %s\n", "n/a", fh.Hits, fh.Path)
			}
		}
	}

	return nil
}

package ioprof

import (
	"log"
	"os"
	"strconv"
)

// Default tunables (spec §6).
const (
	DefaultBucketSize    = 1 << 20 // 1 MiB
	DefaultPercent       = 0.020   // 2% capacity bands
	DefaultTopCountLimit = 10
	DefaultWorkerCap     = 32
)

// Options holds the tunables documented in spec §6. Zero value is invalid;
// use NewOptions to get the documented defaults.
type Options struct {
	// BucketSize is the granularity of the spatial histogram, in bytes.
	BucketSize uint64
	// Percent is the capacity band width for the IOPS/bandwidth histogram,
	// expressed as a fraction of total device capacity (e.g. 0.020 = 2%).
	Percent float64
	// TopCountLimit caps the number of files reported in the top-files
	// ranking.
	TopCountLimit int
	// WorkerCap bounds the number of shard-parsing workers in flight at
	// once (spec §5's "bounded worker fan-out").
	WorkerCap int
	// MultiBucketHits restores the original implementation's discarded
	// ceil(size*sectorSize/BucketSize) accounting instead of the
	// one-hit-per-event default (spec §9 Open Question).
	MultiBucketHits bool
}

// NewOptions returns an Options populated with the spec-defined defaults,
// with WorkerCap overridable via $IOPROF_WORKER_CAP, the same
// environment-override convention distri's internal/env package uses for
// $DISTRIROOT. Flags passed to cmd/ioprof still take precedence over
// both, since fset.Int's default is only consulted when the flag is
// unset.
func NewOptions() Options {
	return Options{
		BucketSize:    DefaultBucketSize,
		Percent:       DefaultPercent,
		TopCountLimit: DefaultTopCountLimit,
		WorkerCap:     workerCapFromEnv(),
	}
}

func workerCapFromEnv() int {
	if v := os.Getenv("IOPROF_WORKER_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return DefaultWorkerCap
}

// Context bundles the Options with the ambient logger, passed explicitly
// to every component rather than kept in package-level state (spec §9
// "Removed patterns": no global singleton bag of state).
type Context struct {
	Log     *log.Logger
	Options Options
}

// NewContext returns a Context with default Options and a logger writing
// to the given *log.Logger (or log.Default() if nil).
func NewContext(logger *log.Logger) *Context {
	if logger == nil {
		logger = log.Default()
	}
	return &Context{Log: logger, Options: NewOptions()}
}

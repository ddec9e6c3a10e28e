// Package live implements the live-mode accumulator described in spec
// §1/§4: a thread-safe running Set plus kernel-uevent-driven awareness of
// the traced device going away (or reappearing) mid-run, so the driver
// loop in cmd/ioprof can stop cleanly instead of reporting on a dead
// device. Rendering the accumulator as a terminal heatmap is a spec
// non-goal; this package stops at the data model.
package live

import (
	"context"
	"strings"
	"sync"

	"github.com/bjdonie/ioprof/internal/analyze"
	"github.com/bjdonie/ioprof/internal/correlate"
	"github.com/bjdonie/ioprof/internal/counters"
	"github.com/bjdonie/ioprof/internal/geometry"
	"github.com/s-urbaniak/uevent"
)

// Accumulator wraps a counters.Set with a mutex so a polling snapshot
// loop (Snapshot) can run concurrently with the goroutine feeding it
// parsed events (Record).
type Accumulator struct {
	mu sync.Mutex
	cs *counters.Set
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{cs: counters.New()}
}

// Record folds one classified event into the running counters (spec
// §4.3's per-event accounting, applied directly instead of through a
// parsed shard).
func (a *Accumulator) Record(dir counters.Direction, bucket, sizeSectors uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cs.RecordEvent(dir, bucket, sizeSectors)
}

// MergeSet folds one capture window's counters.Set into the running
// totals, matching the same field-by-field Merge internal/reduce uses for
// cross-shard accumulation.
func (a *Accumulator) MergeSet(src *counters.Set) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cs.Merge(src)
}

// Snapshot runs the Analyzer (internal/analyze) over the accumulator's
// current state without blocking further Record calls for longer than
// the copy takes.
func (a *Accumulator) Snapshot(c *correlate.Correlator, g geometry.Geometry, bucketSize uint64, percent float64, topCountLimit int) analyze.Result {
	a.mu.Lock()
	snap := a.cs.Clone()
	a.mu.Unlock()
	return analyze.Run(snap, c, g, bucketSize, percent, topCountLimit)
}

// DeviceEvent reports a kernel uevent affecting the traced device:
// Action is "add", "change", or "remove" as delivered by the kernel.
type DeviceEvent struct {
	Action string
}

// WatchDevice subscribes to the kernel uevent netlink socket (via
// s-urbaniak/uevent, the same library distri's minitrd vendors for device
// hotplug awareness: cmd/minitrd/minitrd.go) and forwards add/change/
// remove events naming devname on the returned channel. The channel is
// closed when ctx is done or the underlying reader errors.
//
// devname is matched against the kernel DEVNAME variable exactly as
// minitrd matches it, e.g. "sda" rather than "/dev/sda".
func WatchDevice(ctx context.Context, devname string) (<-chan DeviceEvent, error) {
	r, err := uevent.NewReader()
	if err != nil {
		return nil, err
	}

	out := make(chan DeviceEvent)
	dec := uevent.NewDecoder(r)

	go func() {
		defer close(out)
		defer r.Close()

		go func() {
			<-ctx.Done()
			r.Close()
		}()

		for {
			ev, err := dec.Decode()
			if err != nil {
				return
			}
			if ev.Subsystem != "block" {
				continue
			}
			name, ok := ev.Vars["DEVNAME"]
			if !ok || !strings.EqualFold(name, devname) {
				continue
			}
			select {
			case out <- DeviceEvent{Action: ev.Action}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Package trace adapts distri's Chrome-trace-event sink (originally used
// to profile package builds) to the profiling pipeline's own phases:
// bundle reading, reduce, correlate, and analyze in post mode, and the
// fdisk/blktrace/blkparse/filemap steps in trace mode. Feed the resulting file to
// chrome://tracing or the Perfetto UI.
package trace

import (
	"encoding/json"
	"io"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

var start = time.Now()

var (
	sinkMu sync.Mutex
	sink   io.Writer = ioutil.Discard
)

// Sink writes all following Event()s as a Chrome trace event file into w.
func Sink(w io.Writer) {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	sink = w
	// Start the JSON Array Format. The closing ] is optional, so we skip it.
	w.Write([]byte{'['})
}

// Enable is a convenience function for creating a trace file in
// $TMPDIR/ioprof.traces/prefix.$PID.
//
// The filename assumes the OS does not frequently re-use the same pid.
func Enable(prefix string) error {
	fn := filepath.Join(os.TempDir(), "ioprof.traces", prefix+"."+strconv.Itoa(os.Getpid()))
	if err := os.MkdirAll(filepath.Dir(fn), 0755); err != nil {
		return err
	}
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	Sink(f)
	return nil
}

// PendingEvent is one open span; call Done to close it and emit it to the
// sink.
type PendingEvent struct {
	Name           string      `json:"name"` // name of the event, as displayed in Trace Viewer
	Categories     string      `json:"cat"`  // event categories (comma-separated)
	Type           string      `json:"ph"`   // event type (single character)
	ClockTimestamp uint64      `json:"ts"`   // tracing clock timestamp (microsecond granularity)
	Duration       uint64      `json:"dur"`
	Pid            uint64      `json:"pid"` // process ID for the process that output this event
	Tid            uint64      `json:"tid"` // thread ID (here: the lane number passed to Event)
	Args           interface{} `json:"args"`

	start time.Time
}

// Done closes pe and writes it to the current sink.
func (pe *PendingEvent) Done() {
	pe.Duration = uint64(time.Since(pe.start) / time.Microsecond)
	b, err := json.Marshal(pe)
	if err != nil {
		panic(err)
	}
	sinkMu.Lock()
	defer sinkMu.Unlock()
	if _, err := sink.Write(append(b, ',')); err != nil {
		log.Printf("[trace] %v", err)
	}
}

// Event opens a span named name on trace lane tid; the caller picks the
// lane number, which the viewer shows as the thread ID.
func Event(name string, tid int) *PendingEvent {
	return &PendingEvent{
		Name:           name,
		Type:           "X",
		ClockTimestamp: uint64(time.Since(start) / time.Microsecond),
		Tid:            uint64(tid),
		start:          time.Now(),
	}
}

// Phase runs fn as one named span on tid, recording its wall-clock extent
// regardless of whether fn returns an error.
func Phase(name string, tid int, fn func() error) error {
	ev := Event(name, tid)
	defer ev.Done()
	return fn()
}

// Package reduce implements the Reducer (spec §4.5) and the shard-parallel
// worker pool orchestration of spec §5: a fixed-size pool of workers
// drains a channel of shards, each parsing its shard into a thread-local
// counters.Set before handing it to the reducer, which merges every
// thread-local set into the single global set under the fixed eight-lock
// order spec §4.5 specifies.
//
// The worker-pool shape (errgroup.WithContext, N goroutines draining a
// work channel) is adapted from distri/internal/batch.scheduler.run, the
// closest analog in the teacher for "N workers consume independent units
// of work, one goroutine reduces results as they complete."
package reduce

import (
	"context"
	"runtime"
	"sync"

	"github.com/bjdonie/ioprof"
	"github.com/bjdonie/ioprof/internal/blockevent"
	"github.com/bjdonie/ioprof/internal/bundle"
	"github.com/bjdonie/ioprof/internal/counters"
	"github.com/bjdonie/ioprof/internal/filemap"
	"github.com/bjdonie/ioprof/internal/geometry"
	"golang.org/x/sync/errgroup"
)

// Global is the merged counter set plus the accumulated file->ranges map,
// each protected by its own lock so concurrent merges never block on
// unrelated state (spec §4.5/§5 "shared-resource policy").
type Global struct {
	Counters *counters.Set

	lockMaxBucketHits   sync.Mutex
	lockTotalBlocks     sync.Mutex
	lockIOTotal         sync.Mutex
	lockReadTotals      sync.Mutex
	lockWriteTotals     sync.Mutex
	lockReads           sync.Mutex
	lockWrites          sync.Mutex
	lockBucketHitsTotal sync.Mutex

	FileRanges   map[string][]string
	fileRangesMu sync.Mutex
}

// NewGlobal returns an empty Global ready to receive merges.
func NewGlobal() *Global {
	return &Global{
		Counters:   counters.New(),
		FileRanges: make(map[string][]string),
	}
}

// MergeCounters merges src into g under the fixed lock order of spec
// §4.5: max_bucket_hits -> total_blocks -> io_total -> read_totals ->
// write_totals -> reads -> writes -> bucket_hits_total. Each lock is held
// only for the duration of its one merge and released before the next is
// acquired, so no lock is ever held across the acquisition of another.
func (g *Global) MergeCounters(src *counters.Set) {
	g.lockMaxBucketHits.Lock()
	g.Counters.MergeMaxBucketHits(src)
	g.lockMaxBucketHits.Unlock()

	g.lockTotalBlocks.Lock()
	g.Counters.MergeTotalBlocks(src)
	g.lockTotalBlocks.Unlock()

	g.lockIOTotal.Lock()
	g.Counters.MergeIOTotal(src)
	g.lockIOTotal.Unlock()

	g.lockReadTotals.Lock()
	g.Counters.MergeReadTotals(src)
	g.lockReadTotals.Unlock()

	g.lockWriteTotals.Lock()
	g.Counters.MergeWriteTotals(src)
	g.lockWriteTotals.Unlock()

	g.lockReads.Lock()
	g.Counters.MergeReads(src)
	g.lockReads.Unlock()

	g.lockWrites.Lock()
	g.Counters.MergeWrites(src)
	g.lockWrites.Unlock()

	g.lockBucketHitsTotal.Lock()
	g.Counters.MergeBucketHitsTotal(src)
	g.lockBucketHitsTotal.Unlock()
}

// MergeFileRanges merges one file-map shard's partial map into the global
// file->ranges map. The file map has its own lock, acquired once per
// file-map shard (spec §4.5).
func (g *Global) MergeFileRanges(p *filemap.Partial) {
	g.fileRangesMu.Lock()
	defer g.fileRangesMu.Unlock()
	filemap.Merge(g.FileRanges, p)
}

// shardJob is one unit of work handed to the worker pool: either a
// block-event shard or a file-map shard, distinguished by isFileMap.
type shardJob struct {
	name string
	data []byte
	isFileMap bool
}

// Run processes every shard in b using a worker pool capped at workerCap
// (spec §5 "bounded worker fan-out"; default ceiling 32), parsing each
// shard on its own goroutine into a private thread-local counters.Set or
// filemap.Partial, then merging the result into a shared Global. Within a
// shard, events are applied in file order (spec §5); across shards, order
// is unconstrained since every merge is commutative or an idempotent max.
//
// If any worker hits an unrecoverable shard I/O failure, Run signals
// ioprof.KindParseError once every other worker has finished (it does not
// cancel in-flight workers — spec §5 "the orchestrator awaits remaining
// workers before aborting").
func Run(ctx context.Context, b *bundle.Bundle, g geometry.Geometry, bucketSize uint64, opts blockevent.Options, workerCap int) (*Global, error) {
	global := NewGlobal()

	jobs := make([]shardJob, 0, len(b.BlockEventMembers)+len(b.FileMapMembers))
	for _, m := range b.BlockEventMembers {
		data, _ := b.Shard(m.Name)
		jobs = append(jobs, shardJob{name: m.Name, data: data})
	}
	for _, m := range b.FileMapMembers {
		data, _ := b.Shard(m.Name)
		jobs = append(jobs, shardJob{name: m.Name, data: data, isFileMap: true})
	}

	workers := workerCap
	if workers <= 0 || workers > ioprofWorkerCeiling {
		workers = ioprofWorkerCeiling
	}
	if n := runtime.NumCPU(); n < workers {
		workers = n
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}
	if workers == 0 {
		return global, nil
	}

	work := make(chan shardJob, len(jobs))
	for _, j := range jobs {
		work <- j
	}
	close(work)

	eg, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		eg.Go(func() error {
			for j := range work {
				if err := ctx.Err(); err != nil {
					return err
				}
				if j.isFileMap {
					partial, err := filemap.Parse(j.data)
					if err != nil {
						return err
					}
					global.MergeFileRanges(partial)
					continue
				}
				set, err := blockevent.Parse(j.data, g, bucketSize, opts)
				if err != nil {
					return ioprof.Wrap(ioprof.KindParseError, err)
				}
				global.MergeCounters(set)
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return global, nil
}

// ioprofWorkerCeiling is the historical cap preserved as the default
// ceiling (spec §6 worker_cap default of 32).
const ioprofWorkerCeiling = 32

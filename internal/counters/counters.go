// Package counters defines the sparse counter-set data model shared by the
// block-event parser, the file-map parser, and the reducer (spec §3).
package counters

// Set is the counter-set shape shared by the per-worker thread-local
// accumulator and the merged global accumulator (spec §3: "identical
// shape"). Maps are kept sparse per spec §9, since most devices have large
// idle regions and num_buckets can be in the millions.
type Set struct {
	Reads  map[uint64]uint64 // bucket -> hits
	Writes map[uint64]uint64 // bucket -> hits

	RTotals map[uint64]uint64 // size (sectors) -> frequency
	WTotals map[uint64]uint64 // size (sectors) -> frequency

	IOTotal         uint64
	ReadTotal       uint64
	WriteTotal      uint64
	BucketHitsTotal uint64
	TotalBlocks     uint64
	MaxBucketHits   uint64
}

// New returns an empty, ready-to-use Set.
func New() *Set {
	return &Set{
		Reads:   make(map[uint64]uint64),
		Writes:  make(map[uint64]uint64),
		RTotals: make(map[uint64]uint64),
		WTotals: make(map[uint64]uint64),
	}
}

// Direction classifies a block-event direction string per spec §4.3.
type Direction int

const (
	// Read covers directions {R, RW}.
	Read Direction = iota
	// Write covers directions {W, WS}.
	Write
)

// ClassifyDirection maps a raw direction token to a Direction and reports
// whether the token is recognized at all ({R, RW, W, WS}); unrecognized
// directions must be skipped by the caller (spec §4.3).
func ClassifyDirection(raw string) (dir Direction, ok bool) {
	switch raw {
	case "R", "RW":
		return Read, true
	case "W", "WS":
		return Write, true
	default:
		return 0, false
	}
}

// RecordEvent applies one accepted block-event (spec §4.3) to the set:
// one hit against bucket for the given direction, the size-frequency
// table, and all running totals. This is the "one hit per event" default
// behavior; multi-bucket accounting (when enabled) is applied by the
// caller issuing one RecordEvent per covered bucket instead.
func (s *Set) RecordEvent(dir Direction, bucket, sizeSectors uint64) {
	switch dir {
	case Read:
		s.Reads[bucket]++
		s.RTotals[sizeSectors]++
		s.ReadTotal++
		if h := s.Reads[bucket]; h > s.MaxBucketHits {
			s.MaxBucketHits = h
		}
	case Write:
		s.Writes[bucket]++
		s.WTotals[sizeSectors]++
		s.WriteTotal++
		if h := s.Writes[bucket]; h > s.MaxBucketHits {
			s.MaxBucketHits = h
		}
	}
	s.IOTotal++
	s.BucketHitsTotal++
	s.TotalBlocks += sizeSectors
}

// Clone returns a deep copy of s, used by the live accumulator (internal/
// live) to snapshot state for the Analyzer without holding its lock for
// the duration of the scan.
func (s *Set) Clone() *Set {
	out := New()
	for b, n := range s.Reads {
		out.Reads[b] = n
	}
	for b, n := range s.Writes {
		out.Writes[b] = n
	}
	for sz, n := range s.RTotals {
		out.RTotals[sz] = n
	}
	for sz, n := range s.WTotals {
		out.WTotals[sz] = n
	}
	out.IOTotal = s.IOTotal
	out.ReadTotal = s.ReadTotal
	out.WriteTotal = s.WriteTotal
	out.BucketHitsTotal = s.BucketHitsTotal
	out.TotalBlocks = s.TotalBlocks
	out.MaxBucketHits = s.MaxBucketHits
	return out
}

// Merge folds src into s: commutative sums for every field except
// MaxBucketHits, which is an idempotent max (spec §4.5). This is the
// logical (unlocked) merge, useful for tests asserting commutativity and
// idempotence; the concurrent reducer (internal/reduce) applies the same
// per-field operations individually, each under its own lock, in the
// fixed order spec §4.5 requires.
func (s *Set) Merge(src *Set) {
	s.MergeMaxBucketHits(src)
	s.MergeTotalBlocks(src)
	s.MergeIOTotal(src)
	s.MergeReadTotals(src)
	s.MergeWriteTotals(src)
	s.MergeReads(src)
	s.MergeWrites(src)
	s.MergeBucketHitsTotal(src)
}

// The Merge* methods below each fold exactly one piece of state from src
// into s, matching the granularity of the eight reduction locks of spec
// §4.5 (max_bucket_hits, total_blocks, io_total, read_totals, write_totals,
// reads, writes, bucket_hits_total). None of these methods lock; the
// reducer acquires the corresponding lock around each call.

func (s *Set) MergeMaxBucketHits(src *Set) {
	if src.MaxBucketHits > s.MaxBucketHits {
		s.MaxBucketHits = src.MaxBucketHits
	}
}

func (s *Set) MergeTotalBlocks(src *Set) {
	s.TotalBlocks += src.TotalBlocks
}

func (s *Set) MergeIOTotal(src *Set) {
	s.IOTotal += src.IOTotal
	s.ReadTotal += src.ReadTotal
	s.WriteTotal += src.WriteTotal
}

func (s *Set) MergeReadTotals(src *Set) {
	for sz, n := range src.RTotals {
		s.RTotals[sz] += n
	}
}

func (s *Set) MergeWriteTotals(src *Set) {
	for sz, n := range src.WTotals {
		s.WTotals[sz] += n
	}
}

func (s *Set) MergeReads(src *Set) {
	for b, n := range src.Reads {
		s.Reads[b] += n
	}
}

func (s *Set) MergeWrites(src *Set) {
	for b, n := range src.Writes {
		s.Writes[b] += n
	}
}

func (s *Set) MergeBucketHitsTotal(src *Set) {
	s.BucketHitsTotal += src.BucketHitsTotal
}

// Package analyze implements the Analyzer (spec §4.7): one linear scan
// over bucket indices producing the spatial histogram, the Zipfian theta
// estimate, and the top-files ranking.
package analyze

import (
	"math"
	"sort"

	"github.com/bjdonie/ioprof/internal/correlate"
	"github.com/bjdonie/ioprof/internal/counters"
	"github.com/bjdonie/ioprof/internal/geometry"
	"gonum.org/v1/gonum/floats"
)

// Row is one band of the capacity-vs-IOPS histogram (spec §4.7).
type Row struct {
	GiBSoFar             float64
	IOPercentInBand       float64
	CumulativeIOPercent  float64
	BWPercentInBand      float64
}

// ThetaRange is the Zipfian shape-parameter estimate (spec §4.7/§9: a
// sequence of per-rank estimates, not a single canonical MLE).
type ThetaRange struct {
	Count      int
	Min        float64
	Max        float64
	Avg        float64
	Approx     float64
}

// FileHit is one row of the top-files ranking (spec §4.7).
type FileHit struct {
	Path          string
	Hits          uint64
	HitRatePercent float64
}

// Result is everything the Analyzer produces.
type Result struct {
	BucketHitsTotal uint64
	BWTotalBytes    uint64

	// PercentagesAvailable is false when BucketHitsTotal == 0 (spec §4.7
	// edge case: percentage fields reported as unavailable, not divided
	// by zero).
	PercentagesAvailable bool
	// BandwidthAvailable is false when BWTotalBytes == 0.
	BandwidthAvailable bool

	HistogramIOPS []Row
	HistogramBW   []Row
	Theta         ThetaRange
	TopFiles      []FileHit
}

// Run performs the spec §4.7 scan. c may be nil if no file map was
// supplied, in which case TopFiles is empty and every bucket's traffic is
// implicitly unattributed.
func Run(cs *counters.Set, c *correlate.Correlator, g geometry.Geometry, bucketSize uint64, percent float64, topCountLimit int) Result {
	counts := make(map[uint64]uint64) // per-bucket total -> number of buckets with that total
	var bwTotal uint64
	fileHits := map[string]uint64{}
	if c != nil {
		for path, h := range c.FileHitCount {
			fileHits[path] = h
		}
	}

	for b := uint64(0); b < g.NumBuckets; b++ {
		r := cs.Reads[b]
		w := cs.Writes[b]
		t := r + w
		bwTotal += t * bucketSize
		counts[t]++

		if c != nil && t > 0 {
			for _, path := range c.FilesForBucket(b) {
				fileHits[path] += t
			}
		}
	}

	res := Result{
		BucketHitsTotal:      cs.BucketHitsTotal,
		BWTotalBytes:         bwTotal,
		PercentagesAvailable: cs.BucketHitsTotal > 0,
		BandwidthAvailable:   bwTotal > 0,
	}

	res.Theta = computeTheta(counts)
	res.HistogramIOPS, res.HistogramBW = computeHistogram(counts, bucketSize, percent, g.TotalCapacity, cs.BucketHitsTotal, bwTotal)
	res.TopFiles = topFiles(fileHits, cs.BucketHitsTotal, topCountLimit)

	return res
}

// computeTheta walks distinct nonzero per-bucket totals in descending
// order and produces the sequence of log_theta_count(max/k) estimates
// spec §4.7/§9 describes, using gonum/floats for the Min/Max/Sum
// reduction over the collected per-rank samples instead of hand-rolled
// running extrema.
func computeTheta(counts map[uint64]uint64) ThetaRange {
	keys := distinctDescending(counts)
	if len(keys) == 0 {
		return ThetaRange{}
	}

	max := float64(keys[0])
	// theta_count tracks the rank of the distinct nonzero key being
	// processed, counting the seed (max) key as rank 1 — so the first
	// "subsequent" key is rank 2, matching spec §8 Scenario C's
	// theta_count=3 for three distinct nonzero keys.
	var thetas []float64
	for i := 1; i < len(keys); i++ {
		k := keys[i]
		themeCount := float64(i + 1)
		cur := 0.0
		if max != 0 && float64(k) != 0 && themeCount != 1 {
			cur = (math.Log(max) - math.Log(float64(k))) / math.Log(themeCount)
		}
		thetas = append(thetas, cur)
	}

	if len(thetas) == 0 {
		return ThetaRange{Count: len(keys)}
	}
	total := floats.Sum(thetas)
	min := floats.Min(thetas)
	mx := floats.Max(thetas)
	// avg_theta = theta_total/theta_count (spec §4.7), and theta_count is
	// the rank of the last distinct nonzero key processed (len(keys)), not
	// the number of accumulated theta samples (len(thetas) == len(keys)-1):
	// the seed/max key counts toward theta_count without contributing its
	// own theta sample.
	avg := total / float64(len(keys))
	return ThetaRange{
		Count:  len(keys),
		Min:    min,
		Max:    mx,
		Avg:    avg,
		Approx: (avg + (mx+min)/2) / 2,
	}
}

// computeHistogram walks distinct per-bucket totals in descending order,
// consuming count[k] repetitions at a time, and emits one band row every
// time consumed capacity crosses a percent-of-total-capacity threshold
// (spec §4.7). The IOPS and bandwidth histograms are parallel views of
// the same single walk: they share identical rows, read for their
// io_percent_in_band/cumulative_io_percent or bw_percent_in_band fields
// respectively. Zero-hit buckets are consumed last, so the bands cover
// every bucket; when no bucket has any hits, no rows are emitted.
func computeHistogram(counts map[uint64]uint64, bucketSize uint64, percent float64, totalCapacity uint64, bucketHitsTotal uint64, bwTotal uint64) (iops, bw []Row) {
	if totalCapacity == 0 || percent <= 0 {
		return nil, nil
	}
	keys := distinctDescending(counts)
	if len(keys) > 0 && counts[0] > 0 {
		keys = append(keys, 0)
	}

	bandCapacityThreshold := percent * float64(totalCapacity)
	var rows []Row

	var bCount uint64          // buckets consumed so far, this band
	var sectionCount uint64    // sum of k across buckets consumed, this band
	var bwCount uint64         // bw consumed, this band
	var cumulativeIO uint64    // io hits consumed overall, across all bands
	var cumulativeBytes uint64 // capacity consumed overall, across all bands (never reset by emit)

	emit := func() {
		if bCount == 0 {
			return
		}
		gib := float64(cumulativeBytes) / (1 << 30)
		var ioPct, cumPct, bwPct float64
		if bucketHitsTotal > 0 {
			ioPct = 100 * float64(sectionCount) / float64(bucketHitsTotal)
			cumPct = 100 * float64(cumulativeIO) / float64(bucketHitsTotal)
		}
		if bwTotal > 0 {
			bwPct = 100 * float64(bwCount) / float64(bwTotal)
		}
		rows = append(rows, Row{
			GiBSoFar:            gib,
			IOPercentInBand:      ioPct,
			CumulativeIOPercent: cumPct,
			BWPercentInBand:      bwPct,
		})
		bCount, sectionCount, bwCount = 0, 0, 0
	}

	for _, k := range keys {
		n := counts[k]
		for i := uint64(0); i < n; i++ {
			bCount++
			sectionCount += k
			bwCount += k * bucketSize
			cumulativeIO += k
			cumulativeBytes += bucketSize
			if float64(bCount*bucketSize) > bandCapacityThreshold {
				emit()
			}
		}
	}
	emit() // final partial band, if any

	return rows, rows
}

// distinctDescending returns the distinct nonzero keys of counts, sorted
// descending.
func distinctDescending(counts map[uint64]uint64) []uint64 {
	keys := make([]uint64, 0, len(counts))
	for k := range counts {
		if k == 0 {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] > keys[j] })
	return keys
}

// topFiles sorts file_hit_count descending and truncates to limit (spec
// §4.7).
func topFiles(hits map[string]uint64, bucketHitsTotal uint64, limit int) []FileHit {
	out := make([]FileHit, 0, len(hits))
	for path, h := range hits {
		fh := FileHit{Path: path, Hits: h}
		if bucketHitsTotal > 0 {
			fh.HitRatePercent = 100 * float64(h) / float64(bucketHitsTotal)
		}
		out = append(out, fh)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Hits != out[j].Hits {
			return out[i].Hits > out[j].Hits
		}
		return out[i].Path < out[j].Path
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

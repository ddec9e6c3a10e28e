package analyze

import (
	"math"
	"testing"

	"github.com/bjdonie/ioprof/internal/correlate"
	"github.com/bjdonie/ioprof/internal/counters"
	"github.com/bjdonie/ioprof/internal/geometry"
)

func TestComputeThetaScenarioC(t *testing.T) {
	counts := map[uint64]uint64{100: 1, 10: 9, 1: 90, 0: 900}
	theta := computeTheta(counts)
	if theta.Count != 3 {
		t.Errorf("theta.Count = %d, want 3", theta.Count)
	}
	for _, v := range []float64{theta.Min, theta.Max, theta.Avg, theta.Approx} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("expected finite theta value, got %v", v)
		}
	}
	// avg_theta = theta_total/theta_count (spec §4.7) divides by the key
	// count (3: the seeded max plus two subsequent keys), not by the
	// number of accumulated theta samples (2) — so avg_theta can legally
	// fall outside [min_theta, max_theta], as it does here. The exact
	// values below are what that formula produces for this fixture and
	// must not drift (spec §9: preserve the reference numbers exactly).
	const wantMin = 3.3219280948873626
	const wantMax = 4.19180654857877
	const wantAvg = 2.5045782144887108
	const wantApprox = 3.1307227681108882
	if !closeEnough(theta.Min, wantMin) {
		t.Errorf("theta.Min = %v, want %v", theta.Min, wantMin)
	}
	if !closeEnough(theta.Max, wantMax) {
		t.Errorf("theta.Max = %v, want %v", theta.Max, wantMax)
	}
	if !closeEnough(theta.Avg, wantAvg) {
		t.Errorf("theta.Avg = %v, want %v", theta.Avg, wantAvg)
	}
	if !closeEnough(theta.Approx, wantApprox) {
		t.Errorf("theta.Approx = %v, want %v", theta.Approx, wantApprox)
	}
}

func closeEnough(got, want float64) bool {
	return math.Abs(got-want) < 1e-9
}

func TestRunZeroHitsUnavailable(t *testing.T) {
	g := geometry.Geometry{SectorSize: 512, NumBuckets: 4, TotalCapacity: 4 << 20}
	cs := counters.New()
	res := Run(cs, nil, g, 1<<20, 0.02, 10)
	if res.PercentagesAvailable {
		t.Error("expected PercentagesAvailable = false when bucket_hits_total == 0")
	}
	if res.BandwidthAvailable {
		t.Error("expected BandwidthAvailable = false when bw_total == 0")
	}
}

func TestRunScenarioDFileHits(t *testing.T) {
	g := geometry.Geometry{SectorSize: 512, NumBuckets: 2, TotalCapacity: 2 << 20}
	cs := counters.New()
	cs.Reads[0] = 5
	cs.Reads[1] = 3
	cs.BucketHitsTotal = 8
	c := correlate.Build(map[string][]string{
		"/a": {"0:2047"},
		"/b": {"2048:4095"},
	}, g, 1<<20)

	res := Run(cs, c, g, 1<<20, 0.02, 10)
	got := map[string]uint64{}
	for _, fh := range res.TopFiles {
		got[fh.Path] = fh.Hits
	}
	if got["/a"] != 5 {
		t.Errorf("/a hits = %d, want 5", got["/a"])
	}
	if got["/b"] != 3 {
		t.Errorf("/b hits = %d, want 3", got["/b"])
	}
}

func TestHistogramBandsExhaustive(t *testing.T) {
	g := geometry.Geometry{SectorSize: 512, NumBuckets: 100, TotalCapacity: 100 << 20}
	cs := counters.New()
	for b := uint64(0); b < 100; b++ {
		cs.Reads[b] = b % 5
	}
	res := Run(cs, nil, g, 1<<20, 0.02, 10)
	if len(res.HistogramIOPS) == 0 {
		t.Fatal("expected at least one histogram row")
	}
	last := res.HistogramIOPS[len(res.HistogramIOPS)-1]
	if want := float64(g.TotalCapacity) / (1 << 30); last.GiBSoFar != want {
		t.Errorf("last band GiBSoFar = %v, want %v (bands must cover every bucket)", last.GiBSoFar, want)
	}
}

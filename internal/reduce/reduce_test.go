package reduce

import (
	"bytes"
	"context"
	"testing"

	"github.com/bjdonie/ioprof/internal/blockevent"
	"github.com/bjdonie/ioprof/internal/bundle"
	"github.com/bjdonie/ioprof/internal/counters"
	"github.com/bjdonie/ioprof/internal/geometry"
	"github.com/google/go-cmp/cmp"
)

func mustGeom(t *testing.T) geometry.Geometry {
	t.Helper()
	g, err := geometry.Parse("Units: sectors of 1 * 512 = 512 bytes\nDisk /dev/sdb: 4 GiB, 4194304 bytes, 8192 sectors\n", 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func buildBundle(t *testing.T, shards [][]byte) *bundle.Bundle {
	t.Helper()
	var buf bytes.Buffer
	w := bundle.NewWriter(&buf)
	if err := w.WriteGeometry("sdb", []byte("geometry")); err != nil {
		t.Fatal(err)
	}
	for i, data := range shards {
		if err := w.WriteBlockEventShard("sdb", i, data); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	b, err := bundle.Read(&buf, nil)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestRunCommutativeAcrossShardOrder(t *testing.T) {
	g := mustGeom(t)
	a := []byte("R Q 0 8\nR Q 2048 8\n")
	bData := []byte("R Q 4096 8\nW Q 6144 8\n")

	b1 := buildBundle(t, [][]byte{a, bData})
	b2 := buildBundle(t, [][]byte{bData, a})

	g1, err := Run(context.Background(), b1, g, 1<<20, blockevent.Options{}, 4)
	if err != nil {
		t.Fatal(err)
	}
	g2, err := Run(context.Background(), b2, g, 1<<20, blockevent.Options{}, 4)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(g1.Counters, g2.Counters); diff != "" {
		t.Errorf("global counters differ by shard order (-got1 +got2):\n%s", diff)
	}
}

func TestMergeIdempotentOnEmptySet(t *testing.T) {
	global := NewGlobal()
	global.MergeCounters(mkSet(t, "R Q 0 8\n", mustGeom(t)))
	beforeIO, beforeHits := global.Counters.IOTotal, global.Counters.BucketHitsTotal
	beforeReads := len(global.Counters.Reads)

	global.MergeCounters(mkSet(t, "", mustGeom(t)))
	if global.Counters.IOTotal != beforeIO || global.Counters.BucketHitsTotal != beforeHits {
		t.Errorf("merging an empty set changed scalar totals")
	}
	if len(global.Counters.Reads) != beforeReads {
		t.Errorf("merging an empty set changed the reads map")
	}
}

func TestMergeMonotonic(t *testing.T) {
	global := NewGlobal()
	g := mustGeom(t)
	before := global.Counters.IOTotal
	global.MergeCounters(mkSet(t, "R Q 0 8\n", g))
	if global.Counters.IOTotal <= before {
		t.Errorf("io_total did not increase after merging a non-empty shard")
	}
}

func mkSet(t *testing.T, data string, g geometry.Geometry) *counters.Set {
	t.Helper()
	set, err := blockevent.Parse([]byte(data), g, 1<<20, blockevent.Options{})
	if err != nil {
		t.Fatal(err)
	}
	return set
}

package blockevent

import (
	"testing"

	"github.com/bjdonie/ioprof/internal/geometry"
)

const bucketSize = 1 << 20

func TestParseScenarioA(t *testing.T) {
	g, err := geometry.Parse("Units = sectors of 1 * 512 = 512 bytes\nDisk /dev/sda: 1 GiB, 1048576 bytes, 2048 sectors\n", bucketSize)
	if err != nil {
		t.Fatal(err)
	}
	set, err := Parse([]byte("R Q 0 8\nW Q 8 8\n"), g, bucketSize, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if set.Reads[0] != 1 {
		t.Errorf("reads[0] = %d, want 1", set.Reads[0])
	}
	if set.Writes[0] != 1 {
		t.Errorf("writes[0] = %d, want 1", set.Writes[0])
	}
	if set.IOTotal != 2 {
		t.Errorf("io_total = %d, want 2", set.IOTotal)
	}
	if set.BucketHitsTotal != 2 {
		t.Errorf("bucket_hits_total = %d, want 2", set.BucketHitsTotal)
	}
	if set.TotalBlocks != 16 {
		t.Errorf("total_blocks = %d, want 16", set.TotalBlocks)
	}
}

func TestParseScenarioB(t *testing.T) {
	g, err := geometry.Parse("Units: sectors of 1 * 512 = 512 bytes\nDisk /dev/sdb: 4 GiB, 4194304 bytes, 8192 sectors\n", bucketSize)
	if err != nil {
		t.Fatal(err)
	}
	set, err := Parse([]byte("R Q 0 8\nR Q 2048 8\nR Q 4096 8\nR Q 6144 8\n"), g, bucketSize, Options{})
	if err != nil {
		t.Fatal(err)
	}
	want := map[uint64]uint64{0: 1, 1: 1, 2: 1, 3: 1}
	for b, h := range want {
		if set.Reads[b] != h {
			t.Errorf("reads[%d] = %d, want %d", b, set.Reads[b], h)
		}
	}
}

func TestParseScenarioEClamps(t *testing.T) {
	g, err := geometry.Parse("Units: sectors of 1 * 512 = 512 bytes\nDisk /dev/sdb: 4 GiB, 4194304 bytes, 8192 sectors\n", bucketSize)
	if err != nil {
		t.Fatal(err)
	}
	set, err := Parse([]byte("R Q 99999999 8\n"), g, bucketSize, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if set.Reads[3] != 1 {
		t.Errorf("reads[3] = %d, want 1 (clamped to last bucket)", set.Reads[3])
	}
	if len(set.Reads) != 1 {
		t.Errorf("expected exactly one bucket touched, got %d", len(set.Reads))
	}
}

func TestParseSkipsUnrecognizedLines(t *testing.T) {
	g := geometry.Geometry{SectorSize: 512, NumBuckets: 4}
	set, err := Parse([]byte("garbage line\nX Q 0 8\nR Q 0 8\n"), g, bucketSize, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if set.IOTotal != 1 {
		t.Errorf("io_total = %d, want 1 (only the R line should count)", set.IOTotal)
	}
}

func TestParseEmptyShardNoChanges(t *testing.T) {
	g := geometry.Geometry{SectorSize: 512, NumBuckets: 4}
	set, err := Parse([]byte(""), g, bucketSize, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if set.IOTotal != 0 || set.BucketHitsTotal != 0 {
		t.Errorf("expected no counter changes for an empty shard, got %+v", set)
	}
}

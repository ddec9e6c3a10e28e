package correlate

import (
	"sort"
	"testing"

	"github.com/bjdonie/ioprof/internal/geometry"
)

func TestBuildScenarioD(t *testing.T) {
	g := geometry.Geometry{SectorSize: 512, NumBuckets: 2}
	fileRanges := map[string][]string{
		"/a": {"0:2047"},
		"/b": {"2048:4095"},
	}
	c := Build(fileRanges, g, 1<<20)

	if got := c.FilesForBucket(0); len(got) != 1 || got[0] != "/a" {
		t.Errorf("FilesForBucket(0) = %v, want [/a]", got)
	}
	if got := c.FilesForBucket(1); len(got) != 1 || got[0] != "/b" {
		t.Errorf("FilesForBucket(1) = %v, want [/b]", got)
	}
	if _, ok := c.FileHitCount["/a"]; !ok {
		t.Error("expected /a seeded in FileHitCount")
	}
	if _, ok := c.FileHitCount["/b"]; !ok {
		t.Error("expected /b seeded in FileHitCount")
	}
}

func TestBuildDuplicateInsertionIsNoOp(t *testing.T) {
	g := geometry.Geometry{SectorSize: 512, NumBuckets: 2}
	fileRanges := map[string][]string{
		"/a": {"0:511", "0:511"}, // same range twice
	}
	c := Build(fileRanges, g, 1<<20)
	got := c.FilesForBucket(0)
	if len(got) != 1 {
		t.Errorf("FilesForBucket(0) = %v, want exactly one entry despite duplicate insertion", got)
	}
}

func TestUnattributedBucketReturnsEmpty(t *testing.T) {
	g := geometry.Geometry{SectorSize: 512, NumBuckets: 4}
	c := Build(map[string][]string{"/a": {"0:511"}}, g, 1<<20)
	if got := c.FilesForBucket(3); len(got) != 0 {
		t.Errorf("FilesForBucket(3) = %v, want empty (unattributed)", got)
	}
}

func TestBuildSkipsMalformedRanges(t *testing.T) {
	g := geometry.Geometry{SectorSize: 512, NumBuckets: 4}
	c := Build(map[string][]string{"/a": {"garbage", "0:511"}}, g, 1<<20)
	got := c.FilesForBucket(0)
	sort.Strings(got)
	if len(got) != 1 || got[0] != "/a" {
		t.Errorf("FilesForBucket(0) = %v, want [/a]", got)
	}
}

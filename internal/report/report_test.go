package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/bjdonie/ioprof/internal/analyze"
	"github.com/bjdonie/ioprof/internal/geometry"
)

func TestWriteUnavailableSections(t *testing.T) {
	var buf bytes.Buffer
	g := geometry.Geometry{DeviceName: "/dev/sda", SectorSize: 512, TotalSectors: 2048, TotalCapacity: 1 << 20, NumBuckets: 1}
	res := analyze.Result{}
	if err := Write(&buf, g, res); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "Histogram IOPS") {
		t.Error("missing Histogram IOPS section")
	}
	if !strings.Contains(out, "unavailable") {
		t.Error("expected an unavailable marker for zero-hit percentages")
	}
	if strings.Contains(out, "Top files by IOPS") {
		t.Error("did not expect Top files section with no file map")
	}
}

func TestWriteTopFilesSection(t *testing.T) {
	var buf bytes.Buffer
	g := geometry.Geometry{DeviceName: "/dev/sda", SectorSize: 512, TotalSectors: 2048, TotalCapacity: 1 << 20, NumBuckets: 1}
	res := analyze.Result{
		BucketHitsTotal:      8,
		PercentagesAvailable: true,
		TopFiles: []analyze.FileHit{
			{Path: "/a", Hits: 5, HitRatePercent: 62.5},
		},
	}
	if err := Write(&buf, g, res); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "/a") {
		t.Error("expected /a in the top-files section")
	}
}

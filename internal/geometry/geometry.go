// Package geometry parses device-geometry text into the sector size,
// total sector count, and device name needed to derive bucket indexing
// (spec §4.1).
package geometry

import (
	"regexp"
	"strconv"

	"github.com/bjdonie/ioprof"
	"golang.org/x/xerrors"
)

// Geometry is the parsed device-geometry metadata (spec §3 "Lifecycle":
// born at ingestion, lives until the report is emitted).
type Geometry struct {
	SectorSize    uint64
	TotalSectors  uint64
	DeviceName    string
	TotalCapacity uint64 // TotalSectors * SectorSize
	NumBuckets    uint64 // floor(TotalCapacity / bucketSize)
}

// Recognized phrasings, tried in order, first match wins per field (spec
// §4.1). Patterns mirror cmd/minitrd/blkid.go's "try each known signature
// in turn, skip what doesn't match" idiom.
var (
	sectorSizeOfPattern = regexp.MustCompile(`(?i)Units\s*[:=]\s*sectors of\s+\S+\s+[*x]\s+\S+\s*=\s*(\d+)\s*bytes`)
	totalSectorsPattern = regexp.MustCompile(`(?i)total\s+(\d+)\s+sectors`)
	diskGiBPattern      = regexp.MustCompile(`(?i)Disk\s+(\S+):\s*[\d.]+\s*(?:GiB|TiB),\s*\d+\s*bytes,\s*(\d+)\s*sectors`)
	diskGBPattern       = regexp.MustCompile(`(?i)Disk\s+(\S+):\s*[\d.]+\s*GB,\s*\d+\s*bytes`)
)

// Parse extracts {sector_size, total_sectors, device_name} from free-form
// geometry text and derives total_capacity and num_buckets against
// bucketSize. Fails with ioprof.KindGeometryInvalid if any required field
// is missing once every phrasing has been tried.
func Parse(text string, bucketSize uint64) (Geometry, error) {
	var g Geometry
	var haveSectorSize, haveTotalSectors, haveDeviceName bool

	if m := sectorSizeOfPattern.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseUint(m[1], 10, 64); err == nil {
			g.SectorSize = v
			haveSectorSize = true
		}
	}

	if m := diskGiBPattern.FindStringSubmatch(text); m != nil {
		g.DeviceName = m[1]
		haveDeviceName = true
		if v, err := strconv.ParseUint(m[2], 10, 64); err == nil {
			g.TotalSectors = v
			haveTotalSectors = true
		}
	}

	if !haveTotalSectors {
		if m := totalSectorsPattern.FindStringSubmatch(text); m != nil {
			if v, err := strconv.ParseUint(m[1], 10, 64); err == nil {
				g.TotalSectors = v
				haveTotalSectors = true
			}
		}
	}

	if !haveDeviceName {
		if m := diskGBPattern.FindStringSubmatch(text); m != nil {
			g.DeviceName = m[1]
			haveDeviceName = true
		}
	}

	if !haveSectorSize || !haveTotalSectors || !haveDeviceName {
		return Geometry{}, ioprof.Wrap(ioprof.KindGeometryInvalid, xerrors.Errorf(
			"incomplete geometry text (sector_size=%v total_sectors=%v device_name=%v)",
			haveSectorSize, haveTotalSectors, haveDeviceName))
	}

	g.TotalCapacity = g.TotalSectors * g.SectorSize
	if bucketSize == 0 {
		bucketSize = 1 << 20
	}
	g.NumBuckets = g.TotalCapacity / bucketSize
	return g, nil
}

// Bucket computes the (unclamped) bucket index for a request starting at
// sector lba, per spec §3: floor(lba*sectorSize / bucketSize).
func (g Geometry) Bucket(lba, bucketSize uint64) uint64 {
	return (lba * g.SectorSize) / bucketSize
}

// Clamp clamps a computed bucket index to [0, NumBuckets-1] (spec §3
// invariant: no out-of-range writes).
func (g Geometry) Clamp(bucket uint64) uint64 {
	if g.NumBuckets == 0 {
		return 0
	}
	if bucket >= g.NumBuckets {
		return g.NumBuckets - 1
	}
	return bucket
}

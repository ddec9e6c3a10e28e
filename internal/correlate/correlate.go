// Package correlate implements the Bucket<->File Correlator (spec §4.6):
// it inverts the file->ranges map into a bucket->set-of-files index.
//
// The association is modeled as a bipartite undirected graph (bucket
// nodes, interned file nodes) using gonum's graph/simple package, the
// same library distri/internal/batch uses to model the package-build
// dependency DAG. Graph edges give duplicate-insertion-is-a-no-op for
// free (spec §3 invariant: "membership is set-valued") and turn the
// bucket->files lookup and the unattributed-hit check into ordinary
// traversals instead of hand-rolled set bookkeeping.
package correlate

import (
	"strconv"
	"strings"

	"github.com/bjdonie/ioprof/internal/geometry"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
)

// node is a plain int64-identified graph.Node. Bucket nodes use their
// natural non-negative bucket index as the ID; file nodes are interned to
// negative IDs (-(internedIndex+1)) so the two namespaces never collide
// in the same graph.
type node int64

func (n node) ID() int64 { return int64(n) }

// Correlator holds the bucket<->file bipartite graph plus the seeded
// file-hit-count table the Analyzer fills in (spec §3 "File-hit
// ranking").
type Correlator struct {
	g *simple.UndirectedGraph

	pathByID map[int64]string
	idByPath map[string]int64

	// FileHitCount is seeded to 0 for every path encountered (spec §4.6
	// "Seeds file_hit_count[path] = 0 for every path encountered") and
	// accumulated by the Analyzer.
	FileHitCount map[string]uint64
}

// Build inverts fileRanges into a Correlator (spec §4.6). Malformed range
// tokens are skipped; well-formed ones are mapped to bucket indices
// (clamped per spec §3) and every bucket from start to finish inclusive
// gets an edge to the owning file.
func Build(fileRanges map[string][]string, g geometry.Geometry, bucketSize uint64) *Correlator {
	c := &Correlator{
		g:            simple.NewUndirectedGraph(),
		pathByID:     make(map[int64]string),
		idByPath:     make(map[string]int64),
		FileHitCount: make(map[string]uint64),
	}

	for path, ranges := range fileRanges {
		fileID := c.intern(path)
		c.FileHitCount[path] = 0

		for _, tok := range ranges {
			startSector, endSector, ok := parseRange(tok)
			if !ok {
				continue
			}
			startBucket := g.Clamp(g.Bucket(startSector, bucketSize))
			finishBucket := g.Clamp(g.Bucket(endSector, bucketSize))
			if finishBucket < startBucket {
				startBucket, finishBucket = finishBucket, startBucket
			}
			for b := startBucket; b <= finishBucket; b++ {
				c.addEdge(int64(b), fileID)
				if b == finishBucket {
					break // avoid uint64 overflow when finishBucket is ^uint64(0)
				}
			}
		}
	}

	return c
}

func (c *Correlator) intern(path string) int64 {
	if id, ok := c.idByPath[path]; ok {
		return id
	}
	id := -(int64(len(c.idByPath)) + 1)
	c.idByPath[path] = id
	c.pathByID[id] = path
	c.g.AddNode(node(id))
	return id
}

func (c *Correlator) addEdge(bucketID, fileID int64) {
	if c.g.Node(bucketID) == nil {
		c.g.AddNode(node(bucketID))
	}
	if c.g.Node(fileID) == nil {
		c.g.AddNode(node(fileID))
	}
	c.g.SetEdge(c.g.NewEdge(node(bucketID), node(fileID)))
}

// FilesForBucket returns the set of file paths attributed to bucket,
// in no particular order. An empty result means the bucket's traffic is
// unattributed (spec §3 "Unattributed hit").
func (c *Correlator) FilesForBucket(bucket uint64) []string {
	if c.g.Node(int64(bucket)) == nil {
		return nil
	}
	var files []string
	it := c.g.From(int64(bucket))
	for it.Next() {
		n := it.Node().(node)
		if path, ok := c.pathByID[int64(n)]; ok {
			files = append(files, path)
		}
	}
	return files
}

// parseRange parses a "start:end" sector-range token. Both endpoints must
// be non-negative integers; anything else is malformed and skipped by the
// caller (spec §4.6).
func parseRange(tok string) (start, end uint64, ok bool) {
	i := strings.IndexByte(tok, ':')
	if i < 0 {
		return 0, 0, false
	}
	s, errS := strconv.ParseUint(tok[:i], 10, 64)
	e, errE := strconv.ParseUint(tok[i+1:], 10, 64)
	if errS != nil || errE != nil {
		return 0, 0, false
	}
	return s, e, true
}

var _ graph.Node = node(0)

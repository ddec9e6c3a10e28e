// Package filemap implements the File-Map Parser (spec §4.4): it streams
// one decompressed shard into a partial file -> LBA-range map.
package filemap

import (
	"bufio"
	"bytes"
	"regexp"

	"github.com/bjdonie/ioprof"
	"golang.org/x/xerrors"
)

var recordLine = regexp.MustCompile(`^(\S+)\s+::\s+(.+)$`)

// Partial is the per-shard accumulation of file -> ranges-text records
// (spec §4.4). Ranges are kept as raw "start:end" tokens; parsing and
// de-duplication of the endpoints happens in the correlator (spec §4.5:
// "the Correlator de-duplicates at insertion").
type Partial struct {
	Ranges map[string][]string // path -> ordered "start:end" tokens
}

// Parse reads one decompressed file-map shard into a fresh Partial.
// Non-matching lines are skipped (spec §4.4); an I/O failure while
// scanning surfaces as ioprof.KindParseError.
func Parse(data []byte) (*Partial, error) {
	p := &Partial{Ranges: make(map[string][]string)}
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for sc.Scan() {
		line := sc.Bytes()
		m := recordLine.FindSubmatch(line)
		if m == nil {
			continue
		}
		path := string(m[1])
		for _, tok := range bytes.Fields(m[2]) {
			p.Ranges[path] = append(p.Ranges[path], string(tok))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, ioprof.Wrap(ioprof.KindParseError, xerrors.Errorf("scanning file-map shard: %w", err))
	}
	return p, nil
}

// Merge appends src's range lists onto dst, concatenating duplicate paths
// across shards (spec §4.4).
func Merge(dst map[string][]string, src *Partial) {
	for path, ranges := range src.Ranges {
		dst[path] = append(dst[path], ranges...)
	}
}

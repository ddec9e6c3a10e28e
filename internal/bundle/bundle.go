// Package bundle implements the Input Bundle Reader (spec §4.2): it
// enumerates members of a tar archive and classifies each as a
// block-event shard, a file-map shard, or the geometry text member, per
// the archive layout contract of spec §6. It also implements the writer
// side used by trace mode to produce bundles in the first place, which
// the distilled spec treats as a black box but which a complete
// implementation needs a concrete answer for.
package bundle

import (
	"archive/tar"
	"fmt"
	"io"
	"regexp"

	"github.com/bjdonie/ioprof"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/pgzip"
	"github.com/orcaman/writerseeker"
	"golang.org/x/xerrors"
)

var (
	blockEventPattern = regexp.MustCompile(`^blk\.out\.([^.]+)\.([^.]+)\.blkparse\.gz$`)
	fileMapPattern    = regexp.MustCompile(`^filetrace\.([^.]+)\.([^.]+)\.txt\.gz$`)
	geometryPattern   = regexp.MustCompile(`^fdisk\.(.+)$`)
)

// MemberKind classifies one archive member by name (spec §4.2).
type MemberKind int

const (
	KindUnknown MemberKind = iota
	KindBlockEvent
	KindFileMap
	KindGeometry
)

// Member describes one classified archive member.
type Member struct {
	Name   string
	Kind   MemberKind
	Device string
}

// Bundle is the result of enumerating an archive: the geometry text plus
// the lists of block-event and file-map shard members (spec §4.2 "returns
// three lists").
type Bundle struct {
	GeometryText      string
	BlockEventMembers []Member
	FileMapMembers    []Member

	// shards holds the decompressed bytes for every block-event/file-map
	// member, keyed by member name, so parsers can read them without
	// re-opening the archive.
	shards map[string][]byte
}

// Shard returns the decompressed contents of a previously classified
// member.
func (b *Bundle) Shard(name string) ([]byte, bool) {
	d, ok := b.shards[name]
	return d, ok
}

// Read enumerates and extracts every member of the tar archive in r,
// classifying each per spec §4.2. Unknown members are ignored with a
// warning via logWarn. Fails with ioprof.KindInputCorrupt if no geometry
// member is present, or if a classified member can't be decompressed.
func Read(r io.Reader, logWarn func(format string, args ...interface{})) (*Bundle, error) {
	tr := tar.NewReader(r)
	b := &Bundle{shards: make(map[string][]byte)}
	haveGeometry := false

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, ioprof.Wrap(ioprof.KindInputCorrupt, xerrors.Errorf("reading tar member: %w", err))
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := hdr.Name

		if m := geometryPattern.FindStringSubmatch(name); m != nil {
			text, err := io.ReadAll(tr)
			if err != nil {
				return nil, ioprof.Wrap(ioprof.KindInputCorrupt, xerrors.Errorf("reading geometry member %q: %w", name, err))
			}
			b.GeometryText = string(text)
			haveGeometry = true
			continue
		}

		if m := blockEventPattern.FindStringSubmatch(name); m != nil {
			data, err := decompress(tr)
			if err != nil {
				return nil, ioprof.Wrap(ioprof.KindInputCorrupt, xerrors.Errorf("decompressing block-event member %q: %w", name, err))
			}
			b.shards[name] = data
			b.BlockEventMembers = append(b.BlockEventMembers, Member{Name: name, Kind: KindBlockEvent, Device: m[1]})
			continue
		}

		if m := fileMapPattern.FindStringSubmatch(name); m != nil {
			data, err := decompress(tr)
			if err != nil {
				return nil, ioprof.Wrap(ioprof.KindInputCorrupt, xerrors.Errorf("decompressing file-map member %q: %w", name, err))
			}
			b.shards[name] = data
			b.FileMapMembers = append(b.FileMapMembers, Member{Name: name, Kind: KindFileMap, Device: m[1]})
			continue
		}

		if logWarn != nil {
			logWarn("ignoring unrecognized archive member %q", name)
		}
	}

	// Spec §8 Scenario F: an archive with geometry but zero block-event
	// shards (e.g. a trace window that captured no I/O) completes cleanly;
	// only a missing geometry member is structurally corrupt.
	if !haveGeometry {
		return nil, ioprof.Wrap(ioprof.KindInputCorrupt, xerrors.New("archive has no fdisk.<dev> geometry member"))
	}

	return b, nil
}

// decompress reads a gzip member fully into memory. klauspost/compress's
// gzip reader is used (rather than compress/gzip) for the same reason the
// teacher's install/build paths reach for it: it tolerates the
// concatenated-stream and trailing-garbage quirks real blktrace gzip
// output sometimes has.
func decompress(r io.Reader) ([]byte, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// Writer assembles a trace-mode output bundle: one geometry member and
// any number of block-event/file-map shards, gzip-compressed in parallel
// via pgzip (spec §6 "trace" mode produces an archive).
type Writer struct {
	tw *tar.Writer
}

// NewWriter wraps w (typically a renameio.PendingFile) in a tar writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{tw: tar.NewWriter(w)}
}

// Close flushes the underlying tar writer.
func (w *Writer) Close() error { return w.tw.Close() }

// WriteGeometry adds the fdisk.<dev> geometry member.
func (w *Writer) WriteGeometry(device string, text []byte) error {
	return w.writeMember(fmt.Sprintf("fdisk.%s", device), text)
}

// WriteBlockEventShard gzip-compresses data and adds it as
// blk.out.<dev>.<shard>.blkparse.gz.
func (w *Writer) WriteBlockEventShard(device string, shard int, data []byte) error {
	name := fmt.Sprintf("blk.out.%s.%d.blkparse.gz", device, shard)
	compressed, err := gzipBytes(data)
	if err != nil {
		return err
	}
	return w.writeMember(name, compressed)
}

// WriteFileMapShard gzip-compresses data and adds it as
// filetrace.<dev>.<shard>.txt.gz.
func (w *Writer) WriteFileMapShard(device string, shard int, data []byte) error {
	name := fmt.Sprintf("filetrace.%s.%d.txt.gz", device, shard)
	compressed, err := gzipBytes(data)
	if err != nil {
		return err
	}
	return w.writeMember(name, compressed)
}

func (w *Writer) writeMember(name string, data []byte) error {
	hdr := &tar.Header{
		Name: name,
		Mode: 0644,
		Size: int64(len(data)),
	}
	if err := w.tw.WriteHeader(hdr); err != nil {
		return xerrors.Errorf("writing tar header for %q: %w", name, err)
	}
	if _, err := w.tw.Write(data); err != nil {
		return xerrors.Errorf("writing tar body for %q: %w", name, err)
	}
	return nil
}

// gzipBytes compresses data into an in-memory seekable buffer, mirroring
// squashfs.Writer's in-memory staging of compressed data blocks before
// they're appended to the final image.
func gzipBytes(data []byte) ([]byte, error) {
	var buf writerseeker.WriterSeeker
	zw := pgzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	r := buf.Reader()
	return io.ReadAll(r)
}

package bundle

import (
	"bytes"
	"testing"

	"github.com/bjdonie/ioprof"
	"github.com/google/renameio"
)

func writeAndRead(t *testing.T, build func(w *Writer) error) *Bundle {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := build(w); err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	b, err := Read(&buf, t.Logf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	return b
}

func TestReadClassifiesMembers(t *testing.T) {
	b := writeAndRead(t, func(w *Writer) error {
		if err := w.WriteGeometry("sda", []byte("Units = sectors of 1 * 512 = 512 bytes\nDisk /dev/sda: 1 GiB, 1048576 bytes, 2048 sectors\n")); err != nil {
			return err
		}
		if err := w.WriteBlockEventShard("sda", 0, []byte("R Q 0 8\nW Q 8 8\n")); err != nil {
			return err
		}
		return w.WriteFileMapShard("sda", 0, []byte("/a :: 0:1023\n"))
	})

	if b.GeometryText == "" {
		t.Fatal("expected geometry text")
	}
	if len(b.BlockEventMembers) != 1 {
		t.Fatalf("BlockEventMembers = %d, want 1", len(b.BlockEventMembers))
	}
	if len(b.FileMapMembers) != 1 {
		t.Fatalf("FileMapMembers = %d, want 1", len(b.FileMapMembers))
	}
	shard, ok := b.Shard(b.BlockEventMembers[0].Name)
	if !ok {
		t.Fatal("expected block-event shard contents")
	}
	if string(shard) != "R Q 0 8\nW Q 8 8\n" {
		t.Errorf("shard contents = %q", shard)
	}
}

func TestReadMissingGeometryIsCorrupt(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteBlockEventShard("sda", 0, []byte("R Q 0 8\n")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	_, err := Read(&buf, nil)
	if err == nil {
		t.Fatal("expected InputCorrupt error")
	}
	if !ioprof.Is(err, ioprof.KindInputCorrupt) {
		t.Errorf("expected KindInputCorrupt, got %v", err)
	}
}

// TestReadEmptyEventShardsCompletesCleanly covers spec §8 Scenario F: an
// archive with geometry but no block-event shards is not corrupt, just
// quiet.
func TestReadEmptyEventShardsCompletesCleanly(t *testing.T) {
	b := writeAndRead(t, func(w *Writer) error {
		return w.WriteGeometry("sda", []byte("Units = sectors of 1 * 512 = 512 bytes\nDisk /dev/sda: 1 GiB, 1048576 bytes, 2048 sectors\n"))
	})
	if len(b.BlockEventMembers) != 0 {
		t.Errorf("BlockEventMembers = %v, want none", b.BlockEventMembers)
	}
	if b.GeometryText == "" {
		t.Error("expected geometry text to still be present")
	}
}

// TestAtomicWriteRoundtrip exercises the renameio-based atomic-commit path
// trace mode uses when finishing a bundle.
func TestAtomicWriteRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/sda.tar"
	pf, err := renameio.TempFile("", path)
	if err != nil {
		t.Fatalf("TempFile: %v", err)
	}
	defer pf.Cleanup()

	w := NewWriter(pf)
	if err := w.WriteGeometry("sda", []byte("Units = sectors of 1 * 512 = 512 bytes\nDisk /dev/sda: 1 GiB, 1048576 bytes, 2048 sectors\n")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		t.Fatalf("CloseAtomicallyReplace: %v", err)
	}
}

package snapshot

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

func writeFixture(t *testing.T) (string, []byte) {
	t.Helper()
	payload := bytes.Repeat([]byte("REDIS0011coolcache-archive-fixture"), 64)
	path := filepath.Join(t.TempDir(), "dump.rdb")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path, payload
}

func TestZstdArchiveRoundTrip(t *testing.T) {
	path, payload := writeFixture(t)
	archiver, err := NewArchiver(CodecZstd, 0)
	if err != nil {
		t.Fatalf("NewArchiver: %v", err)
	}
	archivePath, err := archiver.Archive(path)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if archivePath != path+".zst" {
		t.Fatalf("unexpected archive path %q", archivePath)
	}
	f, err := os.Open(archivePath)
	if err != nil {
		t.Fatalf("opening archive: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer dec.Close()
	got, err := io.ReadAll(dec)
	if err != nil {
		t.Fatalf("decompressing: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("archive round trip mismatch: %d bytes vs %d", len(got), len(payload))
	}
}

func TestSnappyArchiveRoundTrip(t *testing.T) {
	path, payload := writeFixture(t)
	archiver, err := NewArchiver(CodecSnappy, 0)
	if err != nil {
		t.Fatalf("NewArchiver: %v", err)
	}
	archivePath, err := archiver.Archive(path)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if archivePath != path+".snappy" {
		t.Fatalf("unexpected archive path %q", archivePath)
	}
	f, err := os.Open(archivePath)
	if err != nil {
		t.Fatalf("opening archive: %v", err)
	}
	defer f.Close()
	got, err := io.ReadAll(snappy.NewReader(f))
	if err != nil {
		t.Fatalf("decompressing: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("archive round trip mismatch: %d bytes vs %d", len(got), len(payload))
	}
}

func TestNewArchiverRejectsUnknownCodec(t *testing.T) {
	if _, err := NewArchiver("lz4", 0); err == nil {
		t.Fatal("expected error for unknown codec")
	}
}

func TestThrottledWriterPacesWrites(t *testing.T) {
	var sink bytes.Buffer
	// 64 KiB at 32 KiB/s should take roughly a second beyond the initial burst.
	w := NewThrottledWriter(context.Background(), &sink, 32*1024)
	payload := bytes.Repeat([]byte("x"), 64*1024)

	start := time.Now()
	n, err := w.Write(payload)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len(payload) {
		t.Fatalf("short write: %d of %d", n, len(payload))
	}
	if elapsed := time.Since(start); elapsed < 500*time.Millisecond {
		t.Fatalf("expected throttled write to take at least 500ms, took %v", elapsed)
	}
	if !bytes.Equal(sink.Bytes(), payload) {
		t.Fatal("throttled writer corrupted payload")
	}
}

func TestThrottledWriterBypassesWhenUnlimited(t *testing.T) {
	var sink bytes.Buffer
	w := NewThrottledWriter(context.Background(), &sink, 0)
	if _, ok := w.(*bytes.Buffer); !ok {
		t.Fatalf("expected zero rate to return the underlying writer, got %T", w)
	}
}

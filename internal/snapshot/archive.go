package snapshot

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Archive codec names accepted by NewArchiver.
const (
	CodecZstd   = "zstd"
	CodecSnappy = "snappy"
)

// NewArchiver selects an ArchiveCompressor by codec name. rateBytesPerSec
// throttles the compressed write so archival copies do not contend with
// the live RDB rename for disk bandwidth; zero disables throttling.
func NewArchiver(codec string, rateBytesPerSec int64) (ArchiveCompressor, error) {
	switch codec {
	case CodecZstd, "":
		return &ZstdArchiver{level: zstd.SpeedDefault, rate: rateBytesPerSec}, nil
	case CodecSnappy:
		return &SnappyArchiver{rate: rateBytesPerSec}, nil
	default:
		return nil, fmt.Errorf("snapshot: unknown archive codec %q", codec)
	}
}

// ZstdArchiver writes a zstd-compressed copy of a completed RDB dump
// alongside it, for operators who retain historical dumps: a zstd encoder
// over a file sink, pointed at whole completed RDB files.
type ZstdArchiver struct {
	level zstd.EncoderLevel
	rate  int64
}

// NewZstdArchiver constructs an archiver at the default compression level
// with no write throttling.
func NewZstdArchiver() *ZstdArchiver {
	return &ZstdArchiver{level: zstd.SpeedDefault}
}

// Archive reads rdbPath and writes rdbPath+".zst", returning the archive's path.
func (a *ZstdArchiver) Archive(rdbPath string) (string, error) {
	return writeArchive(rdbPath, rdbPath+".zst", a.rate, func(w io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(w, zstd.WithEncoderLevel(a.level))
	})
}

// SnappyArchiver is the snappy-framed counterpart to ZstdArchiver, for
// operators who favor compression speed over ratio on archival copies.
type SnappyArchiver struct {
	rate int64
}

// Archive reads rdbPath and writes rdbPath+".snappy", returning the archive's path.
func (a *SnappyArchiver) Archive(rdbPath string) (string, error) {
	return writeArchive(rdbPath, rdbPath+".snappy", a.rate, func(w io.Writer) (io.WriteCloser, error) {
		return snappy.NewBufferedWriter(w), nil
	})
}

// writeArchive streams rdbPath through the codec returned by newEncoder
// into dst, via a temp file renamed on success so a partial archive is
// never left behind under the final name.
func writeArchive(rdbPath, dst string, rateBytesPerSec int64, newEncoder func(io.Writer) (io.WriteCloser, error)) (string, error) {
	in, err := os.Open(rdbPath)
	if err != nil {
		return "", err
	}
	defer in.Close()

	tmpPath := dst + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return "", err
	}

	var sink io.Writer = out
	if rateBytesPerSec > 0 {
		sink = NewThrottledWriter(context.Background(), out, rateBytesPerSec)
	}

	enc, err := newEncoder(sink)
	if err != nil {
		out.Close()
		os.Remove(tmpPath)
		return "", err
	}
	if _, err := io.Copy(enc, in); err != nil {
		enc.Close()
		out.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("snapshot: archiving %s: %w", rdbPath, err)
	}
	if err := enc.Close(); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return "", err
	}
	return dst, nil
}

package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"coolcache/internal/config"
)

// rotatedSuffix marks compressed rotated-out segments. Rotation compresses
// with zstd, the same codec the snapshot archiver defaults to, so one
// toolchain decompresses everything this server leaves on disk.
const rotatedSuffix = ".zst"

// rotatingFile is the on-disk half of the logger: a single append-only log
// file that, once it would exceed its size budget, is renamed to a
// timestamped segment, compressed, and replaced by a fresh file. Old
// segments are pruned by count and age.
type rotatingFile struct {
	path       string
	sizeBudget int64
	keepCount  int
	keepFor    time.Duration
	compress   bool

	file    *os.File
	written int64
}

func openRotatingFile(cfg config.LoggingConfig) (*rotatingFile, error) {
	if cfg.MaxSizeMB <= 0 {
		return nil, errors.New("logging: max file size must be positive")
	}
	if cfg.MaxBackups < 0 {
		return nil, errors.New("logging: max backups must be non-negative")
	}
	if cfg.MaxAgeDays < 0 {
		return nil, errors.New("logging: max age must be non-negative")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return &rotatingFile{
		path:       cfg.Path,
		sizeBudget: int64(cfg.MaxSizeMB) * 1024 * 1024,
		keepCount:  cfg.MaxBackups,
		keepFor:    time.Duration(cfg.MaxAgeDays) * 24 * time.Hour,
		compress:   cfg.Compress,
		file:       file,
		written:    info.Size(),
	}, nil
}

// Write appends p, rotating first if it would push the file past its size
// budget. The Logger serializes calls, so no lock is needed here.
func (r *rotatingFile) Write(p []byte) (int, error) {
	if r.written+int64(len(p)) > r.sizeBudget {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := r.file.Write(p)
	r.written += int64(n)
	return n, err
}

func (r *rotatingFile) Sync() error {
	if r.file == nil {
		return nil
	}
	return r.file.Sync()
}

func (r *rotatingFile) rotate() error {
	if r.file == nil {
		return errors.New("logging: log file not open")
	}
	if err := r.file.Close(); err != nil {
		return err
	}
	segment := fmt.Sprintf("%s.%s", r.path, time.Now().UTC().Format("20060102T150405"))
	if err := os.Rename(r.path, segment); err != nil {
		return err
	}
	if r.compress {
		if err := compressSegment(segment); err == nil {
			_ = os.Remove(segment)
		}
	}
	r.prune()

	file, err := os.OpenFile(r.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	r.file = file
	r.written = 0
	return nil
}

// prune removes rotated segments beyond the retention count or age. Pruning
// is best-effort: a segment that cannot be removed is left for next time.
func (r *rotatingFile) prune() {
	dir := filepath.Dir(r.path)
	prefix := filepath.Base(r.path) + "."
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	type segment struct {
		path string
		mod  time.Time
	}
	var segments []segment
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		segments = append(segments, segment{path: filepath.Join(dir, entry.Name()), mod: info.ModTime()})
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i].mod.After(segments[j].mod) })

	for i, seg := range segments {
		tooMany := r.keepCount > 0 && i >= r.keepCount
		tooOld := r.keepFor > 0 && time.Since(seg.mod) > r.keepFor
		if tooMany || tooOld {
			_ = os.Remove(seg.path)
		}
	}
}

func compressSegment(src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(src+rotatedSuffix, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()
	enc, err := zstd.NewWriter(out)
	if err != nil {
		return err
	}
	if _, err := io.Copy(enc, in); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

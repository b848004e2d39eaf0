// Package snapshot implements SAVE/BGSAVE/LASTSAVE and the auto-save
// schedule against a change counter: a ticker + dirty-flag + flush-channel
// persistence loop pointed at RDB-format dumps of a keyspace.Store instead
// of a JSON blob of the last message per type.
package snapshot

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"coolcache/internal/keyspace"
	"coolcache/internal/logging"
	"coolcache/internal/metrics"
	"coolcache/internal/rdb"
)

// SavePoint is one (seconds, changes) pair of the auto-save schedule: a
// BGSAVE triggers once at least Seconds seconds have passed and at least
// Changes writes have landed since the last completed save.
type SavePoint struct {
	Seconds int
	Changes int64
}

// Manager owns the RDB file path, the auto-save schedule, and the
// background ticker loop that evaluates it. One Manager is shared by the
// whole server; SAVE/BGSAVE/LASTSAVE all operate through it.
type Manager struct {
	store *keyspace.Store
	path  string
	log   *logging.Logger
	now   func() time.Time

	schedule []SavePoint

	mu                 sync.Mutex
	lastSaveUnix       int64
	lastSaveChangeMark int64
	bgSaveInFlight     bool

	flushCh chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}

	archive ArchiveCompressor // optional; nil disables archival copies
	metrics *metrics.Metrics  // optional; nil-safe

	cronSpec string
	cron     *cron.Cron
}

// ArchiveCompressor produces a compressed archival copy of a completed RDB
// snapshot, an optional operator-facing retention feature.
type ArchiveCompressor interface {
	Archive(rdbPath string) (archivePath string, err error)
}

// Option customises a Manager at construction time.
type Option func(*Manager)

// WithClock overrides the time source; used in tests.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		if clock != nil {
			m.now = clock
		}
	}
}

// WithArchiveCompressor attaches an optional post-save archival step.
func WithArchiveCompressor(c ArchiveCompressor) Option {
	return func(m *Manager) { m.archive = c }
}

// WithMetrics attaches the server's Prometheus instruments.
func WithMetrics(mets *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mets }
}

// WithCronSchedule adds a fixed-time BGSAVE trigger (standard 5-field cron
// expression) on top of the (seconds, changes) auto-save schedule, for
// operators who want a predictable snapshot cadence regardless of write
// volume.
func WithCronSchedule(spec string) Option {
	return func(m *Manager) { m.cronSpec = spec }
}

// NewManager constructs a Manager for store, persisting to path, and
// starts its background auto-save loop, which never triggers a save when
// schedule is empty. The
// directory containing path is created if necessary.
func NewManager(store *keyspace.Store, path string, schedule []SavePoint, logger *logging.Logger, opts ...Option) (*Manager, error) {
	if logger == nil {
		logger = logging.L()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	m := &Manager{
		store:    store,
		path:     path,
		log:      logger,
		now:      time.Now,
		schedule: schedule,
		flushCh:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cronSpec != "" {
		c := cron.New()
		if _, err := c.AddFunc(m.cronSpec, m.BGSave); err != nil {
			return nil, fmt.Errorf("snapshot: invalid cron schedule %q: %w", m.cronSpec, err)
		}
		c.Start()
		m.cron = c
	}
	go m.loop()
	return m, nil
}

// loop evaluates the auto-save schedule on a 1-second tick and on
// explicit flush requests.
func (m *Manager) loop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	defer close(m.doneCh)
	for {
		select {
		case <-ticker.C:
			m.checkSchedule()
		case <-m.flushCh:
			m.checkSchedule()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) checkSchedule() {
	m.mu.Lock()
	lastSave := m.lastSaveUnix
	lastMark := m.lastSaveChangeMark
	inFlight := m.bgSaveInFlight
	m.mu.Unlock()
	if inFlight {
		return
	}
	changesSince := m.store.Changes() - lastMark
	if changesSince <= 0 {
		return
	}
	elapsed := m.now().Unix() - lastSave
	for _, point := range m.schedule {
		if elapsed >= int64(point.Seconds) && changesSince >= point.Changes {
			m.BGSave()
			return
		}
	}
}

// Save performs a synchronous SAVE: serialize the keyspace to a temp file,
// fsync, rename over the configured path. Blocks the caller until done.
func (m *Manager) Save() error {
	entries := m.store.Snapshot()
	if err := m.writeRDB(entries); err != nil {
		m.metrics.SaveFailed()
		return err
	}
	m.markSaved(m.store.Changes())
	return nil
}

// BGSave takes a point-in-time view immediately (via Store.Snapshot's
// whole-store lock, a brief stop-the-world capture) and hands the actual
// write to a background goroutine so further commands are not blocked by
// disk I/O. Returns immediately; the
// caller should reply "Background saving started" right after this call
// returns, matching real Redis's BGSAVE reply contract.
func (m *Manager) BGSave() {
	m.mu.Lock()
	if m.bgSaveInFlight {
		m.mu.Unlock()
		return
	}
	m.bgSaveInFlight = true
	m.mu.Unlock()

	entries := m.store.Snapshot()
	changeMark := m.store.Changes()
	go func() {
		defer func() {
			m.mu.Lock()
			m.bgSaveInFlight = false
			m.mu.Unlock()
		}()
		if err := m.writeRDB(entries); err != nil {
			m.log.Error("background save failed", logging.Error(err))
			m.metrics.SaveFailed()
			return
		}
		m.markSaved(changeMark)
	}()
}

func (m *Manager) markSaved(changeMark int64) {
	m.mu.Lock()
	m.lastSaveUnix = m.now().Unix()
	m.lastSaveChangeMark = changeMark
	saved := m.lastSaveUnix
	m.mu.Unlock()
	m.metrics.SaveCompleted(saved)
}

// LastSave returns the unix timestamp (seconds) of the last completed save.
func (m *Manager) LastSave() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSaveUnix
}

// writeRDB serializes entries to a temp file beside m.path, fsyncs it, and
// renames it over m.path, the usual create-then-atomic-rename discipline
// extended with fsync since an RDB dump is a durability-sensitive artifact
// rather than a best-effort replay cache.
func (m *Manager) writeRDB(entries []keyspace.SnapshotEntry) error {
	tmpPath := m.path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	w, err := rdb.NewWriter(f)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := w.WriteAux("redis-ver", "coolcache"); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := w.WriteSelectDB(0); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	withTTL := 0
	for _, e := range entries {
		if e.ExpiresAt != 0 {
			withTTL++
		}
	}
	if err := w.WriteResizeDB(uint64(len(entries)), uint64(withTTL)); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	for _, e := range entries {
		rec := rdb.Record{
			Key: e.Key, Kind: e.Kind, ExpiresAt: e.ExpiresAt,
			Str: e.Str, List: e.List, Set: e.Set, Hash: e.Hash, ZSet: e.ZSet,
		}
		if err := w.WriteRecord(rec); err != nil {
			f.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("snapshot: writing key %q: %w", e.Key, err)
		}
	}
	if err := w.Close(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		return err
	}
	if m.archive != nil {
		if _, err := m.archive.Archive(m.path); err != nil {
			m.log.Error("archival copy failed", logging.Error(err))
		}
	}
	return nil
}

// DumpBytes serializes a fresh point-in-time snapshot of the keyspace to an
// in-memory RDB image, the shape a leader's PSYNC full resync sends over
// the wire instead of writing to m.path.
func (m *Manager) DumpBytes() ([]byte, error) {
	entries := m.store.Snapshot()
	var buf bytes.Buffer
	w, err := rdb.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if err := w.WriteAux("redis-ver", "coolcache"); err != nil {
		return nil, err
	}
	if err := w.WriteSelectDB(0); err != nil {
		return nil, err
	}
	withTTL := 0
	for _, e := range entries {
		if e.ExpiresAt != 0 {
			withTTL++
		}
	}
	if err := w.WriteResizeDB(uint64(len(entries)), uint64(withTTL)); err != nil {
		return nil, err
	}
	for _, e := range entries {
		rec := rdb.Record{
			Key: e.Key, Kind: e.Kind, ExpiresAt: e.ExpiresAt,
			Str: e.Str, List: e.List, Set: e.Set, Hash: e.Hash, ZSet: e.ZSet,
		}
		if err := w.WriteRecord(rec); err != nil {
			return nil, fmt.Errorf("snapshot: writing key %q: %w", e.Key, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LoadBytes populates store from a raw in-memory RDB image, the follower
// side's counterpart to DumpBytes for a PSYNC full resync payload.
func (m *Manager) LoadBytes(data []byte) error {
	doc, err := rdb.Read(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("snapshot: loading replicated dump: %w", err)
	}
	entries := make([]keyspace.SnapshotEntry, len(doc.Records))
	for i, rec := range doc.Records {
		entries[i] = keyspace.SnapshotEntry{
			Key: rec.Key, Kind: rec.Kind, ExpiresAt: rec.ExpiresAt,
			Str: rec.Str, List: rec.List, Set: rec.Set, Hash: rec.Hash, ZSet: rec.ZSet,
		}
	}
	m.store.Restore(entries)
	m.markSaved(m.store.Changes())
	return nil
}

// Load reads an RDB dump from m.path, if present, and populates store.
// A missing file is not an error — the server simply starts empty. Any
// other failure (truncation, bad magic, checksum
// mismatch, a malformed entry) is fatal to the load: the caller should
// treat a non-nil error here as a startup error, not fall back to a
// partially populated keyspace.
func (m *Manager) Load() error {
	f, err := os.Open(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	doc, err := rdb.Read(f)
	if err != nil {
		return fmt.Errorf("snapshot: loading %s: %w", m.path, err)
	}
	entries := make([]keyspace.SnapshotEntry, len(doc.Records))
	for i, rec := range doc.Records {
		entries[i] = keyspace.SnapshotEntry{
			Key: rec.Key, Kind: rec.Kind, ExpiresAt: rec.ExpiresAt,
			Str: rec.Str, List: rec.List, Set: rec.Set, Hash: rec.Hash, ZSet: rec.ZSet,
		}
	}
	m.store.Restore(entries)
	m.markSaved(m.store.Changes())
	return nil
}

// RequestFlush nudges the auto-save loop to re-evaluate the schedule
// immediately rather than waiting for the next tick, the same
// non-blocking best-effort signal a dirty-tracking recorder sends on its
// flushCh.
func (m *Manager) RequestFlush() {
	select {
	case m.flushCh <- struct{}{}:
	default:
	}
}

// Close stops the auto-save loop. It does not perform a final save;
// callers that want a guaranteed on-disk copy at shutdown should call
// Save explicitly first.
func (m *Manager) Close() {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
	close(m.stopCh)
	<-m.doneCh
}

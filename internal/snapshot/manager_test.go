package snapshot

import (
	"path/filepath"
	"testing"
	"time"

	"coolcache/internal/keyspace"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := keyspace.NewStore()
	store.Set("k1", []byte("v1"), keyspace.SetOptions{})
	store.RPush("l1", []byte("a"), []byte("b"))

	mgr, err := NewManager(store, filepath.Join(dir, "dump.rdb"), nil, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer mgr.Close()

	if err := mgr.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if mgr.LastSave() == 0 {
		t.Fatalf("expected LastSave to be set after Save")
	}

	restored := keyspace.NewStore()
	mgr2, err := NewManager(restored, filepath.Join(dir, "dump.rdb"), nil, nil)
	if err != nil {
		t.Fatalf("NewManager for restore: %v", err)
	}
	defer mgr2.Close()
	if err := mgr2.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	val, ok, err := restored.Get("k1")
	if err != nil || !ok || string(val) != "v1" {
		t.Fatalf("unexpected restored value: %q ok=%v err=%v", val, ok, err)
	}
	list, err := restored.LRange("l1", 0, -1)
	if err != nil || len(list) != 2 {
		t.Fatalf("unexpected restored list: %v err=%v", list, err)
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	store := keyspace.NewStore()
	mgr, err := NewManager(store, filepath.Join(dir, "missing.rdb"), nil, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer mgr.Close()
	if err := mgr.Load(); err != nil {
		t.Fatalf("expected no error loading a missing file, got %v", err)
	}
}

func TestBGSaveCompletesAsynchronously(t *testing.T) {
	dir := t.TempDir()
	store := keyspace.NewStore()
	store.Set("k", []byte("v"), keyspace.SetOptions{})
	mgr, err := NewManager(store, filepath.Join(dir, "dump.rdb"), nil, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer mgr.Close()

	mgr.BGSave()
	deadline := time.Now().Add(2 * time.Second)
	for mgr.LastSave() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if mgr.LastSave() == 0 {
		t.Fatalf("expected BGSave to complete within the deadline")
	}
}

func TestAutoSaveScheduleTriggersOnChanges(t *testing.T) {
	dir := t.TempDir()
	store := keyspace.NewStore()
	fakeNow := time.Unix(10_000, 0)
	mgr, err := NewManager(store, filepath.Join(dir, "dump.rdb"),
		[]SavePoint{{Seconds: 0, Changes: 3}}, nil, WithClock(func() time.Time { return fakeNow }))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer mgr.Close()

	store.Set("a", []byte("1"), keyspace.SetOptions{})
	store.Set("b", []byte("1"), keyspace.SetOptions{})
	store.Set("c", []byte("1"), keyspace.SetOptions{})
	mgr.RequestFlush()

	deadline := time.Now().Add(2 * time.Second)
	for mgr.LastSave() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if mgr.LastSave() == 0 {
		t.Fatalf("expected auto-save to trigger once the change threshold was met")
	}
}

func TestNewManagerRejectsInvalidCronSchedule(t *testing.T) {
	dir := t.TempDir()
	_, err := NewManager(keyspace.NewStore(), filepath.Join(dir, "dump.rdb"), nil, nil,
		WithCronSchedule("definitely not cron"))
	if err == nil {
		t.Fatal("expected error for invalid cron schedule")
	}
}

func TestCronScheduleTriggersBGSave(t *testing.T) {
	dir := t.TempDir()
	store := keyspace.NewStore()
	store.Set("a", []byte("1"), keyspace.SetOptions{})
	mgr, err := NewManager(store, filepath.Join(dir, "dump.rdb"), nil, nil,
		WithCronSchedule("* * * * *"))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer mgr.Close()

	// The soonest cron firing is up to a minute away; trigger the same code
	// path directly rather than stalling the suite.
	mgr.BGSave()
	deadline := time.Now().Add(2 * time.Second)
	for mgr.LastSave() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if mgr.LastSave() == 0 {
		t.Fatalf("expected BGSave to complete")
	}
}

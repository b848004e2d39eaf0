package streams

import (
	"context"
	"testing"
	"time"

	"coolcache/internal/keyspace"
)

func TestAppendAutoID(t *testing.T) {
	store := keyspace.NewStore()
	eng := NewEngine(store)
	id1, err := eng.Append("s", "*", []keyspace.StreamField{{Field: "f", Value: []byte("1")}}, 1000)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if id1.Ms != 1000 || id1.Seq != 0 {
		t.Fatalf("unexpected first id: %v", id1)
	}
	id2, err := eng.Append("s", "*", []keyspace.StreamField{{Field: "f", Value: []byte("2")}}, 1000)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if id2.Ms != 1000 || id2.Seq != 1 {
		t.Fatalf("expected sequence bump within same millisecond, got %v", id2)
	}
}

func TestAppendRejectsNonMonotonicExplicitID(t *testing.T) {
	store := keyspace.NewStore()
	eng := NewEngine(store)
	if _, err := eng.Append("s", "5-0", nil, 0); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if _, err := eng.Append("s", "4-0", nil, 0); err != ErrNotMonotonic {
		t.Fatalf("expected ErrNotMonotonic, got %v", err)
	}
	if _, err := eng.Append("s", "5-0", nil, 0); err != ErrNotMonotonic {
		t.Fatalf("expected ErrNotMonotonic for equal id, got %v", err)
	}
}

func TestWaitWakesOnAppend(t *testing.T) {
	store := keyspace.NewStore()
	eng := NewEngine(store)
	eng.Append("s", "1-0", []keyspace.StreamField{{Field: "f", Value: []byte("a")}}, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan []keyspace.StreamEntry, 1)
	go func() {
		entries, err := eng.Wait(ctx, "s", keyspace.StreamID{Ms: 1, Seq: 0})
		if err != nil {
			t.Errorf("Wait: %v", err)
		}
		done <- entries
	}()

	time.Sleep(20 * time.Millisecond)
	if _, err := eng.Append("s", "2-0", []keyspace.StreamField{{Field: "f", Value: []byte("b")}}, 0); err != nil {
		t.Fatalf("Append: %v", err)
	}

	select {
	case entries := <-done:
		if len(entries) != 1 || entries[0].ID.Ms != 2 {
			t.Fatalf("unexpected wait result: %#v", entries)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not wake up after append")
	}
}

func TestWaitReturnsOnContextCancel(t *testing.T) {
	store := keyspace.NewStore()
	eng := NewEngine(store)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	entries, err := eng.Wait(ctx, "missing", keyspace.StreamID{})
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if entries != nil {
		t.Fatalf("expected no entries on timeout, got %#v", entries)
	}
}

func TestWaitAnyWakesOnSecondKey(t *testing.T) {
	store := keyspace.NewStore()
	eng := NewEngine(store)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct {
		perKey [][]keyspace.StreamEntry
		ok     bool
	}
	done := make(chan result, 1)
	go func() {
		perKey, ok, err := eng.WaitAny(ctx,
			[]string{"quiet", "busy"},
			[]keyspace.StreamID{{}, {}})
		if err != nil {
			t.Errorf("WaitAny: %v", err)
		}
		done <- result{perKey, ok}
	}()

	// Only the second key ever receives data; the wait must still wake
	// promptly rather than sitting out the timeout on the first.
	time.Sleep(20 * time.Millisecond)
	if _, err := eng.Append("busy", "1-0", []keyspace.StreamField{{Field: "f", Value: []byte("x")}}, 0); err != nil {
		t.Fatalf("Append: %v", err)
	}

	select {
	case r := <-done:
		if !r.ok {
			t.Fatal("WaitAny reported timeout despite an append")
		}
		if len(r.perKey) != 2 || len(r.perKey[0]) != 0 || len(r.perKey[1]) != 1 {
			t.Fatalf("unexpected per-key results: %#v", r.perKey)
		}
		if r.perKey[1][0].ID.Ms != 1 {
			t.Fatalf("unexpected entry: %#v", r.perKey[1][0])
		}
	case <-time.After(time.Second):
		t.Fatal("WaitAny did not wake on an append to the second key")
	}
}

func TestWaitAnyTimesOutWithNothingAvailable(t *testing.T) {
	store := keyspace.NewStore()
	eng := NewEngine(store)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, ok, err := eng.WaitAny(ctx, []string{"a", "b"}, []keyspace.StreamID{{}, {}})
	if err != nil {
		t.Fatalf("WaitAny: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false on timeout")
	}
}

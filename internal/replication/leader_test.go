package replication

import (
	"errors"
	"testing"

	"coolcache/internal/resp"
)

func TestLeaderFullResyncOnFirstSync(t *testing.T) {
	source := func() ([]byte, error) { return []byte("RDB-BYTES"), nil }
	l := NewLeader(1024, source)

	result, replica, err := l.Sync("replica-a", 6380, "?", -1)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !result.Full {
		t.Fatalf("expected full resync for an unknown replid")
	}
	if result.ReplID != l.ReplicationID() {
		t.Fatalf("replid mismatch: got %q want %q", result.ReplID, l.ReplicationID())
	}
	if string(result.RDB) != "RDB-BYTES" {
		t.Fatalf("RDB payload = %q", result.RDB)
	}
	if l.ConnectedReplicas() != 1 {
		t.Fatalf("ConnectedReplicas = %d, want 1", l.ConnectedReplicas())
	}
	if replica.AckOffset() != result.Offset {
		t.Fatalf("new replica's ack offset should start at the leader's current offset")
	}
}

func TestLeaderPartialResyncWithinBacklogWindow(t *testing.T) {
	l := NewLeader(1024, func() ([]byte, error) { return []byte("dump"), nil })

	l.Propagate(resp.NewCommandArray([]byte("SET"), []byte("a"), []byte("1")))
	offsetAfterFirst := l.Offset()
	l.Propagate(resp.NewCommandArray([]byte("SET"), []byte("b"), []byte("2")))

	result, _, err := l.Sync("replica-a", 6380, l.ReplicationID(), int64(offsetAfterFirst))
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if result.Full {
		t.Fatalf("expected partial resync when requested offset is within the backlog window")
	}
	if len(result.Resume) == 0 {
		t.Fatalf("expected resume bytes covering the second write")
	}
}

func TestLeaderFallsBackToFullResyncOnReplidMismatch(t *testing.T) {
	l := NewLeader(1024, func() ([]byte, error) { return []byte("dump"), nil })
	l.Propagate(resp.NewCommandArray([]byte("SET"), []byte("a"), []byte("1")))

	result, _, err := l.Sync("replica-a", 6380, "0000000000000000000000000000000000000000", 0)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !result.Full {
		t.Fatalf("expected full resync when the requested replid does not match the leader's")
	}
}

func TestLeaderSyncErrorWithNoSnapshotSource(t *testing.T) {
	l := NewLeader(1024, nil)
	if _, _, err := l.Sync("replica-a", 6380, "?", -1); err == nil {
		t.Fatalf("expected an error when no snapshot source is configured for a full resync")
	}
}

func TestLeaderPropagateFansOutToAttachedReplicas(t *testing.T) {
	l := NewLeader(1024, func() ([]byte, error) { return []byte("dump"), nil })
	_, replica, err := l.Sync("replica-a", 6380, "?", -1)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}

	offsetBefore := l.Offset()
	frame := resp.NewCommandArray([]byte("SET"), []byte("k"), []byte("v"))
	l.Propagate(frame)

	want := resp.Encode(frame)
	if l.Offset() != offsetBefore+uint64(len(want)) {
		t.Fatalf("offset did not advance by the encoded frame length")
	}

	select {
	case got := <-replica.Feed():
		if string(got) != string(want) {
			t.Fatalf("fed bytes = %q, want %q", got, want)
		}
	default:
		t.Fatalf("expected the replica's feed to carry the propagated frame")
	}
}

func TestLeaderDropsSaturatedReplica(t *testing.T) {
	l := NewLeader(1024, func() ([]byte, error) { return []byte("dump"), nil })
	_, _, err := l.Sync("replica-a", 6380, "?", -1)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}

	for i := 0; i < FeedBufferSize+10; i++ {
		l.Propagate(resp.NewCommandArray([]byte("SET"), []byte("k"), []byte("v")))
	}

	if l.ConnectedReplicas() != 0 {
		t.Fatalf("expected the saturated replica to be dropped, ConnectedReplicas = %d", l.ConnectedReplicas())
	}
}

func TestLeaderAckRecordsOffset(t *testing.T) {
	l := NewLeader(1024, func() ([]byte, error) { return []byte("dump"), nil })
	_, replica, err := l.Sync("replica-a", 6380, "?", -1)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	l.Ack("replica-a", 42)
	if replica.AckOffset() != 42 {
		t.Fatalf("AckOffset = %d, want 42", replica.AckOffset())
	}

	// Acking an unregistered replica must not panic.
	l.Ack("unknown", 99)
}

func TestLeaderDetachRemovesReplica(t *testing.T) {
	l := NewLeader(1024, func() ([]byte, error) { return []byte("dump"), nil })
	l.Sync("replica-a", 6380, "?", -1)
	if l.ConnectedReplicas() != 1 {
		t.Fatalf("setup: expected one connected replica")
	}
	l.Detach("replica-a")
	if l.ConnectedReplicas() != 0 {
		t.Fatalf("Detach did not remove the replica")
	}
}

func TestReplicationIDIsFixedAtConstruction(t *testing.T) {
	l := NewLeader(1024, nil)
	id1 := l.ReplicationID()
	id2 := l.ReplicationID()
	if id1 != id2 {
		t.Fatalf("replication id changed across calls")
	}
	if len(id1) != 40 {
		t.Fatalf("replication id length = %d, want 40", len(id1))
	}
}

var errSentinel = errors.New("boom")

func TestLeaderSyncPropagatesSnapshotSourceError(t *testing.T) {
	l := NewLeader(1024, func() ([]byte, error) { return nil, errSentinel })
	_, _, err := l.Sync("replica-a", 6380, "?", -1)
	if !errors.Is(err, errSentinel) {
		t.Fatalf("expected the snapshot source's error to propagate, got %v", err)
	}
}

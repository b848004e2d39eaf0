package replication

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"coolcache/internal/resp"
)

// FeedBufferSize bounds how many pending replicated frames a replica's feed
// channel holds before it is judged too slow and disconnected.
const FeedBufferSize = 1024

// Replica is the leader's live handle on one attached follower connection:
// a buffered feed of raw replicated bytes plus the last offset it has
// acknowledged.
type Replica struct {
	ID            string
	ListeningPort int

	mu        sync.Mutex
	ackOffset uint64

	feed chan []byte
}

// Feed exposes the channel ConnectionLoop drains to forward replicated
// writes to this replica's socket.
func (r *Replica) Feed() <-chan []byte { return r.feed }

// SetAck records the offset the replica has reported via REPLCONF ACK.
func (r *Replica) SetAck(offset uint64) {
	r.mu.Lock()
	r.ackOffset = offset
	r.mu.Unlock()
}

// AckOffset returns the last acknowledged offset.
func (r *Replica) AckOffset() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ackOffset
}

// SnapshotSource produces a complete RDB dump of the current keyspace, used
// to satisfy a full resync. Implemented by internal/snapshot.Manager in
// practice (it already owns the point-in-time Store.Snapshot + rdb.Writer
// pairing SAVE/BGSAVE use).
type SnapshotSource func() ([]byte, error)

// Leader owns the replication identity, offset counter, backlog, and the
// registry of attached replica feeds: registration under one lock, fan-out
// to per-replica send channels.
type Leader struct {
	replID  string
	backlog *Backlog
	source  SnapshotSource

	mu       sync.Mutex
	offset   uint64
	replicas map[string]*Replica
}

// NewLeader constructs a Leader with a freshly generated 40-hex-char
// replication ID.
func NewLeader(backlogBytes int, source SnapshotSource) *Leader {
	return &Leader{
		replID:   generateReplID(),
		backlog:  NewBacklog(backlogBytes),
		source:   source,
		replicas: make(map[string]*Replica),
	}
}

func generateReplID() string {
	var buf [20]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing is effectively unrecoverable; fall back to a
		// fixed-but-valid-shape id rather than panicking at startup.
		return "0000000000000000000000000000000000000000"[:40]
	}
	return hex.EncodeToString(buf[:])
}

// ReplicationID returns the leader's fixed-at-startup 40-hex-char ID.
func (l *Leader) ReplicationID() string { return l.replID }

// Offset returns the current replication offset: the count of bytes
// appended to the replication stream since startup.
func (l *Leader) Offset() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.offset
}

// ConnectedReplicas returns the number of currently attached replicas.
func (l *Leader) ConnectedReplicas() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.replicas)
}

// Propagate encodes frame and forwards it to every attached replica,
// appending it to the backlog and advancing the offset first so a replica
// that attaches mid-call still observes a consistent view. Call sites must
// hold whatever lock keeps write-command commit order equal to
// replication order (CommandDispatcher's single mutex).
func (l *Leader) Propagate(frame *resp.Frame) {
	data := resp.Encode(frame)
	l.mu.Lock()
	l.backlog.Write(data)
	l.offset += uint64(len(data))
	for id, r := range l.replicas {
		select {
		case r.feed <- data:
		default:
			// Replica's feed is saturated: it is too slow to keep up.
			// Drop it rather than block every other client's writes;
			// it must reattach and full-resync.
			close(r.feed)
			delete(l.replicas, id)
		}
	}
	l.mu.Unlock()
}

// SyncResult describes how a PSYNC request was satisfied.
type SyncResult struct {
	Full     bool
	ReplID   string
	Offset   uint64
	RDB      []byte // populated only when Full
	Resume   []byte // populated only when !Full: backlog bytes from the requested offset forward
}

// Sync attempts a partial resync against requestedReplID/requestedOffset,
// falling back to a full resync when the requested ID or offset cannot be
// served from the backlog. It
// registers and returns a Replica handle that ConnectionLoop must drain via
// Feed() going forward; ordinary Propagate calls after Sync returns will
// reach it.
func (l *Leader) Sync(replicaID string, listeningPort int, requestedReplID string, requestedOffset int64) (*SyncResult, *Replica, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := &Replica{ID: replicaID, ListeningPort: listeningPort, feed: make(chan []byte, FeedBufferSize)}

	if requestedReplID == l.replID && requestedOffset >= 0 {
		if resume, ok := l.backlog.FetchFrom(uint64(requestedOffset)); ok {
			r.ackOffset = uint64(requestedOffset)
			l.replicas[replicaID] = r
			return &SyncResult{Full: false, ReplID: l.replID, Offset: l.offset, Resume: resume}, r, nil
		}
	}

	if l.source == nil {
		return nil, nil, fmt.Errorf("replication: no snapshot source configured for full resync")
	}
	rdbBytes, err := l.source()
	if err != nil {
		return nil, nil, err
	}
	r.ackOffset = l.offset
	l.replicas[replicaID] = r
	return &SyncResult{Full: true, ReplID: l.replID, Offset: l.offset, RDB: rdbBytes}, r, nil
}

// Ack records a REPLCONF ACK offset report from a previously registered replica.
func (l *Leader) Ack(replicaID string, offset uint64) {
	l.mu.Lock()
	r := l.replicas[replicaID]
	l.mu.Unlock()
	if r != nil {
		r.SetAck(offset)
	}
}

// Detach removes a replica from the registry, e.g. on connection close.
func (l *Leader) Detach(replicaID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok := l.replicas[replicaID]; ok {
		delete(l.replicas, replicaID)
		_ = r
	}
}

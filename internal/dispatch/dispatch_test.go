package dispatch

import (
	"testing"
	"time"

	"coolcache/internal/keyspace"
	"coolcache/internal/pubsub"
	"coolcache/internal/replication"
	"coolcache/internal/resp"
	"coolcache/internal/streams"
)

func newTestDispatcher() *Dispatcher {
	store := keyspace.NewStore()
	deps := Deps{
		Store:     store,
		Streams:   streams.NewEngine(store),
		PubSub:    pubsub.NewHub(pubsub.DefaultSoftLimitBytes),
		StartedAt: time.Now(),
		NowMs:     func() uint64 { return uint64(time.Now().UnixMilli()) },
	}
	return New(deps, nil)
}

func cmd(parts ...string) *resp.Frame {
	items := make([][]byte, len(parts))
	for i, p := range parts {
		items[i] = []byte(p)
	}
	return resp.NewCommandArray(items...)
}

func newConn() *Conn { return &Conn{ID: "test-conn", Mode: ModeNormal} }

func TestExecuteSetThenGetRoundTrips(t *testing.T) {
	d := newTestDispatcher()
	c := newConn()

	replies := d.Execute(c, cmd("SET", "foo", "bar"))
	if len(replies) != 1 || replies[0].Type != resp.SimpleString || replies[0].Str != "OK" {
		t.Fatalf("SET reply = %+v, want +OK", replies)
	}

	replies = d.Execute(c, cmd("GET", "foo"))
	if len(replies) != 1 || replies[0].Type != resp.BulkString || string(replies[0].Bulk) != "bar" {
		t.Fatalf("GET reply = %+v, want $3 bar", replies)
	}
}

func TestExecuteUnknownCommand(t *testing.T) {
	d := newTestDispatcher()
	c := newConn()
	replies := d.Execute(c, cmd("BOGUS", "x"))
	if len(replies) != 1 || replies[0].Type != resp.Error {
		t.Fatalf("expected an error reply for an unknown command, got %+v", replies)
	}
}

func TestExecuteArityViolation(t *testing.T) {
	d := newTestDispatcher()
	c := newConn()
	replies := d.Execute(c, cmd("GET"))
	if len(replies) != 1 || replies[0].Type != resp.Error {
		t.Fatalf("expected a wrong-number-of-arguments error, got %+v", replies)
	}
}

func TestExecuteWrongTypeError(t *testing.T) {
	d := newTestDispatcher()
	c := newConn()
	d.Execute(c, cmd("RPUSH", "mylist", "a"))

	replies := d.Execute(c, cmd("GET", "mylist"))
	if len(replies) != 1 || replies[0].Type != resp.Error {
		t.Fatalf("expected a WRONGTYPE error, got %+v", replies)
	}
}

func TestExecuteProtocolErrorOnMalformedFrame(t *testing.T) {
	d := newTestDispatcher()
	c := newConn()
	replies := d.Execute(c, resp.NewSimpleString("not a command array"))
	if len(replies) != 1 || replies[0].Type != resp.Error {
		t.Fatalf("expected a protocol error for a non-array frame, got %+v", replies)
	}
}

func TestExecuteSubscribedModeRestrictsCommands(t *testing.T) {
	d := newTestDispatcher()
	c := newConn()
	d.Execute(c, cmd("SUBSCRIBE", "news"))
	if c.Mode != ModeSubscribed {
		t.Fatalf("expected SUBSCRIBE to enter subscribed mode")
	}

	replies := d.Execute(c, cmd("SET", "foo", "bar"))
	if len(replies) != 1 || replies[0].Type != resp.Error {
		t.Fatalf("expected SET to be rejected in subscribed mode, got %+v", replies)
	}

	replies = d.Execute(c, cmd("PING"))
	if len(replies) != 1 || replies[0].Type != resp.SimpleString {
		t.Fatalf("expected PING to remain allowed in subscribed mode, got %+v", replies)
	}
}

func TestExecutePropagatesSuccessfulWritesToLeader(t *testing.T) {
	store := keyspace.NewStore()
	leader := replication.NewLeader(1<<20, func() ([]byte, error) { return []byte("rdb"), nil })
	deps := Deps{
		Store:     store,
		Streams:   streams.NewEngine(store),
		PubSub:    pubsub.NewHub(pubsub.DefaultSoftLimitBytes),
		Leader:    leader,
		StartedAt: time.Now(),
		NowMs:     func() uint64 { return uint64(time.Now().UnixMilli()) },
	}
	d := New(deps, nil)
	c := newConn()

	offsetBefore := leader.Offset()
	d.Execute(c, cmd("SET", "foo", "bar"))
	if leader.Offset() <= offsetBefore {
		t.Fatalf("expected a successful write to advance the leader's replication offset")
	}
}

func TestExecuteDoesNotPropagateFailedWrites(t *testing.T) {
	store := keyspace.NewStore()
	leader := replication.NewLeader(1<<20, func() ([]byte, error) { return []byte("rdb"), nil })
	deps := Deps{
		Store:     store,
		Streams:   streams.NewEngine(store),
		PubSub:    pubsub.NewHub(pubsub.DefaultSoftLimitBytes),
		Leader:    leader,
		StartedAt: time.Now(),
		NowMs:     func() uint64 { return uint64(time.Now().UnixMilli()) },
	}
	d := New(deps, nil)
	c := newConn()
	d.Execute(c, cmd("RPUSH", "mylist", "a"))

	offsetBefore := leader.Offset()
	replies := d.Execute(c, cmd("INCR", "mylist")) // type error: not a string
	if len(replies) != 1 || replies[0].Type != resp.Error {
		t.Fatalf("expected INCR on a list key to fail, got %+v", replies)
	}
	if leader.Offset() != offsetBefore {
		t.Fatalf("a failed write must not be propagated to the replication log")
	}
}

func TestExecuteDelReturnsCountRemoved(t *testing.T) {
	d := newTestDispatcher()
	c := newConn()
	d.Execute(c, cmd("SET", "a", "1"))
	d.Execute(c, cmd("SET", "b", "2"))

	replies := d.Execute(c, cmd("DEL", "a", "b", "nonexistent"))
	if len(replies) != 1 || replies[0].Type != resp.Integer || replies[0].Int != 2 {
		t.Fatalf("DEL reply = %+v, want :2", replies)
	}
}

func TestLookupReturnsArityMetadata(t *testing.T) {
	d := newTestDispatcher()
	c, ok := d.Lookup("set")
	if !ok {
		t.Fatalf("expected SET to be registered (case-insensitive lookup)")
	}
	if !c.IsWrite {
		t.Fatalf("SET should be classified as a write command")
	}
}

func TestZRangeWithScores(t *testing.T) {
	d := newTestDispatcher()
	c := newConn()
	d.Execute(c, cmd("ZADD", "board", "2", "b", "1", "a"))

	replies := d.Execute(c, cmd("ZRANGE", "board", "0", "-1"))
	if len(replies) != 1 || replies[0].Type != resp.Array {
		t.Fatalf("ZRANGE reply = %+v, want array", replies)
	}
	if got := len(replies[0].Items); got != 2 {
		t.Fatalf("plain ZRANGE should return members only, got %d items", got)
	}
	if string(replies[0].Items[0].Bulk) != "a" || string(replies[0].Items[1].Bulk) != "b" {
		t.Fatalf("unexpected member order: %+v", replies[0].Items)
	}

	replies = d.Execute(c, cmd("ZRANGE", "board", "0", "-1", "WITHSCORES"))
	if len(replies) != 1 || replies[0].Type != resp.Array {
		t.Fatalf("ZRANGE WITHSCORES reply = %+v, want array", replies)
	}
	items := replies[0].Items
	if len(items) != 4 {
		t.Fatalf("WITHSCORES should interleave members and scores, got %d items", len(items))
	}
	if string(items[0].Bulk) != "a" || string(items[1].Bulk) != "1" || string(items[2].Bulk) != "b" || string(items[3].Bulk) != "2" {
		t.Fatalf("unexpected WITHSCORES interleaving: %+v", items)
	}

	replies = d.Execute(c, cmd("ZRANGE", "board", "0", "-1", "NOTATOKEN"))
	if len(replies) != 1 || replies[0].Type != resp.Error {
		t.Fatalf("expected a syntax error for an unknown trailing token, got %+v", replies)
	}
}

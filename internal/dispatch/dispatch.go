// Package dispatch maps decoded RESP command arrays to CoolCache's command
// handlers, enforcing arity and subscribed-mode restrictions and handing
// every successful write to the replicator in the same order it committed
// against the keyspace. The command table is a single declarative
// {handler, arity, write-flag} metadata map.
package dispatch

import (
	"strings"
	"sync"
	"time"

	"coolcache/internal/config"
	"coolcache/internal/keyspace"
	"coolcache/internal/logging"
	"coolcache/internal/metrics"
	"coolcache/internal/pubsub"
	"coolcache/internal/replication"
	"coolcache/internal/resp"
	"coolcache/internal/snapshot"
	"coolcache/internal/streams"
)

// Mode is a connection's command-acceptance state.
type Mode int

const (
	ModeNormal Mode = iota
	ModeSubscribed
	ModeReplica
)

// Conn is the per-connection state the dispatcher reads and mutates.
// ConnectionLoop owns the net.Conn and I/O; this struct carries only the
// fields command handlers need.
type Conn struct {
	ID      string
	Mode    Mode
	DB      int
	Addr    string
	Inbound bool // true for the dedicated leader->follower link: bypasses reply emission

	ListeningPort int // reported via REPLCONF listening-port, ahead of PSYNC

	Subscriber *pubsub.Subscriber // non-nil once SUBSCRIBE/PSUBSCRIBE has been issued

	ReplicaFeed *replication.Replica // non-nil once this connection became a fed replica
	PendingRDB  []byte               // set by PSYNC on a full resync; connio must write it as a raw bulk right after the FULLRESYNC reply
}

// subscribedModeAllowed is the command allowlist for a connection with at
// least one active channel/pattern subscription.
var subscribedModeAllowed = map[string]bool{
	"SUBSCRIBE":    true,
	"UNSUBSCRIBE":  true,
	"PSUBSCRIBE":   true,
	"PUNSUBSCRIBE": true,
	"PING":         true,
	"QUIT":         true,
}

// Deps bundles every subsystem a command handler may touch.
type Deps struct {
	Store     *keyspace.Store
	Streams   *streams.Engine
	PubSub    *pubsub.Hub
	Snapshot  *snapshot.Manager
	Leader    *replication.Leader
	Config    *config.Config
	Metrics   *metrics.Metrics
	StartedAt time.Time
	NowMs     func() uint64
}

// Command is one entry of the dispatch table: a handler plus the arity and
// write-classification metadata the dispatcher enforces before calling it.
// MinArgs/MaxArgs count arguments *after* the command name; MaxArgs < 0
// means unbounded.
type Command struct {
	Name    string
	MinArgs int
	MaxArgs int
	IsWrite bool
	// Blocking marks a command whose handler may suspend the calling
	// goroutine indefinitely (currently only XREAD with BLOCK). Such a
	// handler must run outside the dispatcher's global mutex: holding it
	// would freeze every other connection, including the XADD a blocked
	// XREAD is waiting on to wake it.
	Blocking bool
	Handler  func(d *Dispatcher, c *Conn, args []string) []*resp.Frame
	Doc      string
}

// Dispatcher owns the command table and the single mutex that serializes
// command execution, so the order writes commit in is the same order the
// replicator forwards them, the ordering replication correctness depends
// on. A global mutex is the simplest strategy that provides it.
type Dispatcher struct {
	deps     Deps
	log      *logging.Logger
	mu       sync.Mutex
	commands map[string]Command
}

// New constructs a Dispatcher wired to deps, with every command in §6
// registered.
func New(deps Deps, log *logging.Logger) *Dispatcher {
	if log == nil {
		log = logging.L()
	}
	d := &Dispatcher{deps: deps, log: log, commands: make(map[string]Command)}
	d.registerServerCommands()
	d.registerKeyspaceCommands()
	d.registerCollectionCommands()
	d.registerStreamCommands()
	d.registerPubSubCommands()
	d.registerReplicationCommands()
	return d
}

func (d *Dispatcher) register(cmd Command) {
	d.commands[cmd.Name] = cmd
}

// Lookup exposes one command's arity metadata.
func (d *Dispatcher) Lookup(name string) (Command, bool) {
	cmd, ok := d.commands[strings.ToUpper(name)]
	return cmd, ok
}

// Names returns every registered command name.
func (d *Dispatcher) Names() []string {
	out := make([]string, 0, len(d.commands))
	for name := range d.commands {
		out = append(out, name)
	}
	return out
}

// Execute routes frame (a decoded command array) to its handler, enforcing
// arity and subscribed-mode restrictions, and forwards the original frame
// to the replicator after a successful write. It returns at least one reply
// frame except for REPLCONF ACK and REPLCONF GETACK, which return none, and
// an argument-less (P)UNSUBSCRIBE on a connection with nothing left to
// unsubscribe from, which returns an empty slice. A successful full-resync
// PSYNC returns its +FULLRESYNC reply and leaves the RDB payload in
// Conn.PendingRDB for the connection loop to write.
func (d *Dispatcher) Execute(c *Conn, frame *resp.Frame) []*resp.Frame {
	args, err := frame.StringArgs()
	if err != nil || len(args) == 0 {
		return one(resp.NewError("ERR Protocol error: expected array of bulk strings"))
	}
	name := strings.ToUpper(args[0])
	cmd, ok := d.commands[name]
	if !ok {
		return one(resp.NewErrorf("ERR unknown command '%s'", args[0]))
	}
	rest := args[1:]
	if len(rest) < cmd.MinArgs || (cmd.MaxArgs >= 0 && len(rest) > cmd.MaxArgs) {
		return one(resp.NewErrorf("ERR wrong number of arguments for '%s' command", strings.ToLower(name)))
	}
	if c.Mode == ModeSubscribed && !subscribedModeAllowed[name] {
		return one(resp.NewError("ERR only (P)SUBSCRIBE / (P)UNSUBSCRIBE / PING / QUIT are allowed in this context"))
	}

	if cmd.Blocking {
		reply := cmd.Handler(d, c, rest)
		d.deps.Metrics.CommandProcessed(name, anyError(reply))
		return reply
	}

	d.mu.Lock()
	reply := cmd.Handler(d, c, rest)
	d.deps.Metrics.CommandProcessed(name, anyError(reply))
	if cmd.IsWrite && !anyError(reply) {
		if d.deps.Leader != nil {
			d.deps.Leader.Propagate(frame)
		}
		if d.deps.Snapshot != nil {
			d.deps.Snapshot.RequestFlush()
		}
	}
	d.mu.Unlock()
	return reply
}

func one(f *resp.Frame) []*resp.Frame { return []*resp.Frame{f} }

func anyError(frames []*resp.Frame) bool {
	for _, f := range frames {
		if f != nil && f.Type == resp.Error {
			return true
		}
	}
	return false
}

func okReply() []*resp.Frame { return one(resp.NewSimpleString("OK")) }

func intReply(v int64) []*resp.Frame { return one(resp.NewInteger(v)) }

func bulkReply(b []byte) []*resp.Frame { return one(resp.NewBulkString(b)) }

func nilBulkReply() []*resp.Frame { return one(resp.NewNullBulkString()) }

func nilArrayReply() []*resp.Frame { return one(resp.NewNullArray()) }

func arrayReply(items ...*resp.Frame) []*resp.Frame { return one(resp.NewArray(items...)) }

func wrongTypeReply() []*resp.Frame { return one(resp.NewError(keyspace.ErrWrongType.Error())) }

func errReply(err error) []*resp.Frame {
	if err == keyspace.ErrWrongType {
		return wrongTypeReply()
	}
	return one(resp.NewErrorf("ERR %s", err.Error()))
}

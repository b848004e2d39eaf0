package dispatch

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"coolcache/internal/resp"
)

func (d *Dispatcher) registerServerCommands() {
	d.register(Command{Name: "PING", MinArgs: 0, MaxArgs: 1, Handler: cmdPing,
		Doc: "PING [message]"})
	d.register(Command{Name: "ECHO", MinArgs: 1, MaxArgs: 1, Handler: cmdEcho,
		Doc: "ECHO message"})
	d.register(Command{Name: "QUIT", MinArgs: 0, MaxArgs: 0, Handler: cmdQuit,
		Doc: "QUIT"})
	d.register(Command{Name: "SELECT", MinArgs: 1, MaxArgs: 1, Handler: cmdSelect,
		Doc: "SELECT index"})
	d.register(Command{Name: "FLUSHALL", MinArgs: 0, MaxArgs: 1, IsWrite: true, Handler: cmdFlushAll,
		Doc: "FLUSHALL [ASYNC|SYNC]"})
	d.register(Command{Name: "DBSIZE", MinArgs: 0, MaxArgs: 0, Handler: cmdDBSize,
		Doc: "DBSIZE"})
	d.register(Command{Name: "INFO", MinArgs: 0, MaxArgs: 1, Handler: cmdInfo,
		Doc: "INFO [section]"})
	d.register(Command{Name: "COMMAND", MinArgs: 0, MaxArgs: -1, Handler: cmdCommand,
		Doc: "COMMAND [COUNT]"})
	d.register(Command{Name: "SAVE", MinArgs: 0, MaxArgs: 0, Handler: cmdSave,
		Doc: "SAVE"})
	d.register(Command{Name: "BGSAVE", MinArgs: 0, MaxArgs: 1, Handler: cmdBGSave,
		Doc: "BGSAVE"})
	d.register(Command{Name: "LASTSAVE", MinArgs: 0, MaxArgs: 0, Handler: cmdLastSave,
		Doc: "LASTSAVE"})
	d.register(Command{Name: "CONFIG", MinArgs: 2, MaxArgs: -1, Handler: cmdConfig,
		Doc: "CONFIG GET|SET parameter [value]"})
	d.register(Command{Name: "CLIENT", MinArgs: 1, MaxArgs: -1, Handler: cmdClient,
		Doc: "CLIENT GETNAME|SETNAME|LIST|ID"})
	d.register(Command{Name: "DEBUG", MinArgs: 1, MaxArgs: -1, Handler: cmdDebug,
		Doc: "DEBUG SLEEP seconds | JMAP | OBJECT key"})
	d.register(Command{Name: "WAIT", MinArgs: 2, MaxArgs: 2, Handler: cmdWait,
		Doc: "WAIT numreplicas timeout"})
}

// cmdConfig implements the minimal CONFIG GET/SET surface client
// libraries actually probe. GET answers dir, dbfilename and save; unknown
// parameters to GET return an empty array. SET accepts only dir and
// dbfilename and updates only the Config record; SET of save, or of any
// other parameter, is an error.
func cmdConfig(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	sub := strings.ToUpper(args[0])
	switch sub {
	case "GET":
		if len(args) != 2 {
			return one(resp.NewError("ERR wrong number of arguments for 'config|get' command"))
		}
		name := strings.ToLower(args[1])
		value, ok := configParam(d, name)
		if !ok {
			return arrayReply()
		}
		return arrayReply(resp.NewBulkStringFromString(name), resp.NewBulkStringFromString(value))
	case "SET":
		if len(args) != 3 {
			return one(resp.NewError("ERR wrong number of arguments for 'config|set' command"))
		}
		name := strings.ToLower(args[1])
		switch name {
		case "dir":
			d.deps.Config.Dir = args[2]
		case "dbfilename":
			d.deps.Config.DBFilename = args[2]
		default:
			return one(resp.NewErrorf("ERR unsupported CONFIG parameter %q", name))
		}
		return okReply()
	default:
		return one(resp.NewErrorf("ERR unknown CONFIG subcommand %q", args[0]))
	}
}

func configParam(d *Dispatcher, name string) (string, bool) {
	switch name {
	case "dir":
		return d.deps.Config.Dir, true
	case "dbfilename":
		return d.deps.Config.DBFilename, true
	case "save":
		var parts []string
		for _, sp := range d.deps.Config.SaveSchedule {
			parts = append(parts, fmt.Sprintf("%d %d", sp.Seconds, sp.Changes))
		}
		return strings.Join(parts, " "), true
	default:
		return "", false
	}
}

// cmdClient is a thin stand-in for the CLIENT command family: CoolCache has
// no per-client naming or kill surface, so GETNAME/SETNAME/LIST/ID return
// just enough for a client library's handshake to proceed.
func cmdClient(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	switch strings.ToUpper(args[0]) {
	case "GETNAME":
		return bulkReply([]byte(""))
	case "SETNAME":
		return okReply()
	case "ID":
		h := fnv.New32a()
		h.Write([]byte(c.ID))
		return intReply(int64(h.Sum32() & 0x7fffffff))
	case "LIST":
		return bulkReply([]byte(fmt.Sprintf("id=%s addr=%s\n", c.ID, c.Addr)))
	default:
		return okReply()
	}
}

// cmdDebug supports only the handful of DEBUG subcommands clients probe for
// during a handshake or test fixture; anything else is accepted as a no-op
// so scripted clients do not abort on an unrecognised subcommand.
func cmdDebug(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	switch strings.ToUpper(args[0]) {
	case "SLEEP":
		if len(args) == 2 {
			if secs, err := parseDebugSeconds(args[1]); err == nil && secs > 0 {
				time.Sleep(secs)
			}
		}
		return okReply()
	case "OBJECT":
		if len(args) != 2 {
			return one(resp.NewError("ERR syntax error"))
		}
		if _, ok := d.deps.Store.Type(args[1]); !ok {
			return one(resp.NewError("ERR no such key"))
		}
		return one(resp.NewSimpleString("Value at:0x0 refcount:1 encoding:raw"))
	default:
		return okReply()
	}
}

func parseDebugSeconds(s string) (time.Duration, error) {
	seconds, err := parseFloatSeconds(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

func parseFloatSeconds(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(s, "%f", &f)
	return f, err
}

// cmdWait is a no-op that always reports 0 acknowledged replicas: WAIT is
// accepted only so client libraries do not error on it, since the leader
// never blocks a client waiting on replica acks.
func cmdWait(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	return intReply(0)
}

func cmdPing(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	if len(args) == 1 {
		return bulkReply([]byte(args[0]))
	}
	return one(resp.NewSimpleString("PONG"))
}

func cmdEcho(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	return bulkReply([]byte(args[0]))
}

func cmdQuit(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	return okReply()
}

func cmdSelect(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	if args[0] != "0" {
		return one(resp.NewError("ERR SELECT is not supported, CoolCache only has database 0"))
	}
	c.DB = 0
	return okReply()
}

func cmdFlushAll(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	d.deps.Store.FlushAll()
	return okReply()
}

func cmdDBSize(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	return intReply(int64(len(d.deps.Store.Keys("*"))))
}

func cmdInfo(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	var b strings.Builder
	uptime := time.Since(d.deps.StartedAt).Seconds()
	fmt.Fprintf(&b, "# Server\r\n")
	fmt.Fprintf(&b, "redis_version:coolcache\r\n")
	fmt.Fprintf(&b, "tcp_port:%d\r\n", d.deps.Config.Port)
	fmt.Fprintf(&b, "uptime_in_seconds:%d\r\n", int64(uptime))
	fmt.Fprintf(&b, "\r\n# Replication\r\n")
	if d.deps.Leader != nil {
		fmt.Fprintf(&b, "role:master\r\n")
		fmt.Fprintf(&b, "master_replid:%s\r\n", d.deps.Leader.ReplicationID())
		fmt.Fprintf(&b, "master_repl_offset:%d\r\n", d.deps.Leader.Offset())
		fmt.Fprintf(&b, "connected_slaves:%d\r\n", d.deps.Leader.ConnectedReplicas())
	} else {
		fmt.Fprintf(&b, "role:slave\r\n")
	}
	if d.deps.Metrics != nil {
		sys := d.deps.Metrics.System()
		fmt.Fprintf(&b, "\r\n# Memory\r\n")
		fmt.Fprintf(&b, "used_memory:%d\r\n", sys.HeapAllocBytes)
		fmt.Fprintf(&b, "total_system_memory:%d\r\n", sys.SysBytes)
		fmt.Fprintf(&b, "\r\n# CPU\r\n")
		fmt.Fprintf(&b, "used_cpu_percent:%.2f\r\n", sys.CPUPercent)
	}
	fmt.Fprintf(&b, "\r\n# Keyspace\r\n")
	fmt.Fprintf(&b, "db0:keys=%d\r\n", len(d.deps.Store.Keys("*")))
	return bulkReply([]byte(b.String()))
}

func cmdCommand(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	if len(args) == 1 && strings.EqualFold(args[0], "COUNT") {
		return intReply(int64(len(d.commands)))
	}
	names := d.Names()
	items := make([]*resp.Frame, 0, len(names))
	for _, name := range names {
		items = append(items, resp.NewBulkStringFromString(strings.ToLower(name)))
	}
	return arrayReply(items...)
}

func cmdSave(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	if d.deps.Snapshot == nil {
		return one(resp.NewError("ERR persistence is not enabled"))
	}
	if err := d.deps.Snapshot.Save(); err != nil {
		return one(resp.NewErrorf("ERR %s", err.Error()))
	}
	return okReply()
}

func cmdBGSave(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	if d.deps.Snapshot == nil {
		return one(resp.NewError("ERR persistence is not enabled"))
	}
	d.deps.Snapshot.BGSave()
	return one(resp.NewSimpleString("Background saving started"))
}

func cmdLastSave(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	if d.deps.Snapshot == nil {
		return intReply(0)
	}
	return intReply(d.deps.Snapshot.LastSave())
}

package dispatch

import (
	"strconv"
	"strings"
	"time"

	"coolcache/internal/keyspace"
	"coolcache/internal/resp"
)

func (d *Dispatcher) registerKeyspaceCommands() {
	d.register(Command{Name: "GET", MinArgs: 1, MaxArgs: 1, Handler: cmdGet, Doc: "GET key"})
	d.register(Command{Name: "SET", MinArgs: 2, MaxArgs: -1, IsWrite: true, Handler: cmdSet, Doc: "SET key value [EX sec|PX ms|KEEPTTL] [NX|XX]"})
	d.register(Command{Name: "APPEND", MinArgs: 2, MaxArgs: 2, IsWrite: true, Handler: cmdAppend, Doc: "APPEND key value"})
	d.register(Command{Name: "STRLEN", MinArgs: 1, MaxArgs: 1, Handler: cmdStrLen, Doc: "STRLEN key"})
	d.register(Command{Name: "INCR", MinArgs: 1, MaxArgs: 1, IsWrite: true, Handler: cmdIncr, Doc: "INCR key"})
	d.register(Command{Name: "DECR", MinArgs: 1, MaxArgs: 1, IsWrite: true, Handler: cmdDecr, Doc: "DECR key"})
	d.register(Command{Name: "INCRBY", MinArgs: 2, MaxArgs: 2, IsWrite: true, Handler: cmdIncrBy, Doc: "INCRBY key delta"})
	d.register(Command{Name: "DECRBY", MinArgs: 2, MaxArgs: 2, IsWrite: true, Handler: cmdDecrBy, Doc: "DECRBY key delta"})
	d.register(Command{Name: "DEL", MinArgs: 1, MaxArgs: -1, IsWrite: true, Handler: cmdDel, Doc: "DEL key [key ...]"})
	d.register(Command{Name: "EXISTS", MinArgs: 1, MaxArgs: -1, Handler: cmdExists, Doc: "EXISTS key [key ...]"})
	d.register(Command{Name: "TYPE", MinArgs: 1, MaxArgs: 1, Handler: cmdType, Doc: "TYPE key"})
	d.register(Command{Name: "KEYS", MinArgs: 1, MaxArgs: 1, Handler: cmdKeys, Doc: "KEYS pattern"})
	d.register(Command{Name: "EXPIRE", MinArgs: 2, MaxArgs: 2, IsWrite: true, Handler: cmdExpire, Doc: "EXPIRE key seconds"})
	d.register(Command{Name: "PEXPIRE", MinArgs: 2, MaxArgs: 2, IsWrite: true, Handler: cmdPExpire, Doc: "PEXPIRE key millis"})
	d.register(Command{Name: "PERSIST", MinArgs: 1, MaxArgs: 1, IsWrite: true, Handler: cmdPersist, Doc: "PERSIST key"})
	d.register(Command{Name: "TTL", MinArgs: 1, MaxArgs: 1, Handler: cmdTTL, Doc: "TTL key"})
	d.register(Command{Name: "PTTL", MinArgs: 1, MaxArgs: 1, Handler: cmdPTTL, Doc: "PTTL key"})
}

func cmdGet(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	val, ok, err := d.deps.Store.Get(args[0])
	if err != nil {
		return errReply(err)
	}
	if !ok {
		return nilBulkReply()
	}
	return bulkReply(val)
}

func cmdSet(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	key, value := args[0], args[1]
	var opts keyspace.SetOptions
	rest := args[2:]
	for i := 0; i < len(rest); i++ {
		switch strings.ToUpper(rest[i]) {
		case "NX":
			opts.OnlyIfAbs = true
		case "XX":
			opts.OnlyIfSet = true
		case "KEEPTTL":
			opts.KeepTTL = true
		case "EX":
			i++
			if i >= len(rest) {
				return one(resp.NewError("ERR syntax error"))
			}
			secs, err := strconv.ParseInt(rest[i], 10, 64)
			if err != nil {
				return one(resp.NewError("ERR value is not an integer or out of range"))
			}
			opts.HasTTL = true
			opts.TTL = time.Duration(secs) * time.Second
		case "PX":
			i++
			if i >= len(rest) {
				return one(resp.NewError("ERR syntax error"))
			}
			ms, err := strconv.ParseInt(rest[i], 10, 64)
			if err != nil {
				return one(resp.NewError("ERR value is not an integer or out of range"))
			}
			opts.HasTTL = true
			opts.TTL = time.Duration(ms) * time.Millisecond
		default:
			return one(resp.NewError("ERR syntax error"))
		}
	}
	applied, err := d.deps.Store.Set(key, []byte(value), opts)
	if err != nil {
		return errReply(err)
	}
	if !applied {
		return nilBulkReply()
	}
	return okReply()
}

func cmdAppend(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	n, err := d.deps.Store.Append(args[0], []byte(args[1]))
	if err != nil {
		return errReply(err)
	}
	return intReply(int64(n))
}

func cmdStrLen(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	n, err := d.deps.Store.StrLen(args[0])
	if err != nil {
		return errReply(err)
	}
	return intReply(int64(n))
}

func cmdIncr(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	return incrBy(d, args[0], 1)
}

func cmdDecr(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	return incrBy(d, args[0], -1)
}

func cmdIncrBy(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	delta, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return one(resp.NewError("ERR value is not an integer or out of range"))
	}
	return incrBy(d, args[0], delta)
}

func cmdDecrBy(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	delta, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return one(resp.NewError("ERR value is not an integer or out of range"))
	}
	return incrBy(d, args[0], -delta)
}

func incrBy(d *Dispatcher, key string, delta int64) []*resp.Frame {
	result, err := d.deps.Store.Incr(key, delta)
	if err != nil {
		return errReply(err)
	}
	return intReply(result)
}

func cmdDel(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	return intReply(int64(d.deps.Store.Del(args...)))
}

func cmdExists(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	var n int64
	for _, key := range args {
		if d.deps.Store.Exists(key) {
			n++
		}
	}
	return intReply(n)
}

func cmdType(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	kind, ok := d.deps.Store.Type(args[0])
	if !ok {
		return one(resp.NewSimpleString("none"))
	}
	return one(resp.NewSimpleString(kind.String()))
}

func cmdKeys(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	keys := d.deps.Store.Keys(args[0])
	items := make([]*resp.Frame, len(keys))
	for i, k := range keys {
		items[i] = resp.NewBulkStringFromString(k)
	}
	return arrayReply(items...)
}

func cmdExpire(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	secs, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return one(resp.NewError("ERR value is not an integer or out of range"))
	}
	ok := d.deps.Store.Expire(args[0], time.Duration(secs)*time.Second)
	return intReply(boolToInt(ok))
}

func cmdPExpire(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	ms, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return one(resp.NewError("ERR value is not an integer or out of range"))
	}
	ok := d.deps.Store.Expire(args[0], time.Duration(ms)*time.Millisecond)
	return intReply(boolToInt(ok))
}

func cmdPersist(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	return intReply(boolToInt(d.deps.Store.Persist(args[0])))
}

func cmdTTL(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	ttl, hasTTL, ok := d.deps.Store.TTL(args[0])
	if !ok {
		return intReply(-2)
	}
	if !hasTTL {
		return intReply(-1)
	}
	return intReply(int64(ttl.Seconds()))
}

func cmdPTTL(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	ttl, hasTTL, ok := d.deps.Store.TTL(args[0])
	if !ok {
		return intReply(-2)
	}
	if !hasTTL {
		return intReply(-1)
	}
	return intReply(ttl.Milliseconds())
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

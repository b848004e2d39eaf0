package dispatch

import (
	"strconv"
	"strings"

	"coolcache/internal/keyspace"
	"coolcache/internal/resp"
)

func (d *Dispatcher) registerCollectionCommands() {
	// Lists
	d.register(Command{Name: "LPUSH", MinArgs: 2, MaxArgs: -1, IsWrite: true, Handler: cmdLPush, Doc: "LPUSH key value [value ...]"})
	d.register(Command{Name: "RPUSH", MinArgs: 2, MaxArgs: -1, IsWrite: true, Handler: cmdRPush, Doc: "RPUSH key value [value ...]"})
	d.register(Command{Name: "LPOP", MinArgs: 1, MaxArgs: 2, IsWrite: true, Handler: cmdLPop, Doc: "LPOP key [count]"})
	d.register(Command{Name: "RPOP", MinArgs: 1, MaxArgs: 2, IsWrite: true, Handler: cmdRPop, Doc: "RPOP key [count]"})
	d.register(Command{Name: "LLEN", MinArgs: 1, MaxArgs: 1, Handler: cmdLLen, Doc: "LLEN key"})
	d.register(Command{Name: "LRANGE", MinArgs: 3, MaxArgs: 3, Handler: cmdLRange, Doc: "LRANGE key start stop"})
	d.register(Command{Name: "LINDEX", MinArgs: 2, MaxArgs: 2, Handler: cmdLIndex, Doc: "LINDEX key index"})
	d.register(Command{Name: "LSET", MinArgs: 3, MaxArgs: 3, IsWrite: true, Handler: cmdLSet, Doc: "LSET key index value"})

	// Sets
	d.register(Command{Name: "SADD", MinArgs: 2, MaxArgs: -1, IsWrite: true, Handler: cmdSAdd, Doc: "SADD key member [member ...]"})
	d.register(Command{Name: "SREM", MinArgs: 2, MaxArgs: -1, IsWrite: true, Handler: cmdSRem, Doc: "SREM key member [member ...]"})
	d.register(Command{Name: "SISMEMBER", MinArgs: 2, MaxArgs: 2, Handler: cmdSIsMember, Doc: "SISMEMBER key member"})
	d.register(Command{Name: "SMEMBERS", MinArgs: 1, MaxArgs: 1, Handler: cmdSMembers, Doc: "SMEMBERS key"})
	d.register(Command{Name: "SCARD", MinArgs: 1, MaxArgs: 1, Handler: cmdSCard, Doc: "SCARD key"})

	// Hashes
	d.register(Command{Name: "HSET", MinArgs: 3, MaxArgs: -1, IsWrite: true, Handler: cmdHSet, Doc: "HSET key field value [field value ...]"})
	d.register(Command{Name: "HGET", MinArgs: 2, MaxArgs: 2, Handler: cmdHGet, Doc: "HGET key field"})
	d.register(Command{Name: "HGETALL", MinArgs: 1, MaxArgs: 1, Handler: cmdHGetAll, Doc: "HGETALL key"})
	d.register(Command{Name: "HDEL", MinArgs: 2, MaxArgs: -1, IsWrite: true, Handler: cmdHDel, Doc: "HDEL key field [field ...]"})
	d.register(Command{Name: "HLEN", MinArgs: 1, MaxArgs: 1, Handler: cmdHLen, Doc: "HLEN key"})
	d.register(Command{Name: "HEXISTS", MinArgs: 2, MaxArgs: 2, Handler: cmdHExists, Doc: "HEXISTS key field"})
	d.register(Command{Name: "HKEYS", MinArgs: 1, MaxArgs: 1, Handler: cmdHKeys, Doc: "HKEYS key"})
	d.register(Command{Name: "HVALS", MinArgs: 1, MaxArgs: 1, Handler: cmdHVals, Doc: "HVALS key"})

	// Sorted sets
	d.register(Command{Name: "ZADD", MinArgs: 3, MaxArgs: -1, IsWrite: true, Handler: cmdZAdd, Doc: "ZADD key score member [score member ...]"})
	d.register(Command{Name: "ZREM", MinArgs: 2, MaxArgs: -1, IsWrite: true, Handler: cmdZRem, Doc: "ZREM key member [member ...]"})
	d.register(Command{Name: "ZSCORE", MinArgs: 2, MaxArgs: 2, Handler: cmdZScore, Doc: "ZSCORE key member"})
	d.register(Command{Name: "ZRANK", MinArgs: 2, MaxArgs: 2, Handler: cmdZRank, Doc: "ZRANK key member"})
	d.register(Command{Name: "ZCARD", MinArgs: 1, MaxArgs: 1, Handler: cmdZCard, Doc: "ZCARD key"})
	d.register(Command{Name: "ZRANGE", MinArgs: 3, MaxArgs: 4, Handler: cmdZRange, Doc: "ZRANGE key start stop [WITHSCORES]"})
	d.register(Command{Name: "ZRANGEBYSCORE", MinArgs: 3, MaxArgs: 4, Handler: cmdZRangeByScore, Doc: "ZRANGEBYSCORE key min max [WITHSCORES]"})
}

func bulkArray(items [][]byte) []*resp.Frame {
	frames := make([]*resp.Frame, len(items))
	for i, it := range items {
		frames[i] = resp.NewBulkString(it)
	}
	return arrayReply(frames...)
}

// Lists

func cmdLPush(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	n, err := d.deps.Store.LPush(args[0], toBytes(args[1:])...)
	if err != nil {
		return errReply(err)
	}
	return intReply(int64(n))
}

func cmdRPush(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	n, err := d.deps.Store.RPush(args[0], toBytes(args[1:])...)
	if err != nil {
		return errReply(err)
	}
	return intReply(int64(n))
}

func popCount(args []string) (int, error) {
	if len(args) < 2 {
		return 1, nil
	}
	return strconv.Atoi(args[1])
}

func cmdLPop(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	count, err := popCount(args)
	if err != nil {
		return one(resp.NewError("ERR value is not an integer or out of range"))
	}
	vals, ok, err := d.deps.Store.LPop(args[0], count)
	if err != nil {
		return errReply(err)
	}
	if !ok {
		if len(args) >= 2 {
			return nilArrayReply()
		}
		return nilBulkReply()
	}
	if len(args) < 2 {
		return bulkReply(vals[0])
	}
	return bulkArray(vals)
}

func cmdRPop(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	count, err := popCount(args)
	if err != nil {
		return one(resp.NewError("ERR value is not an integer or out of range"))
	}
	vals, ok, err := d.deps.Store.RPop(args[0], count)
	if err != nil {
		return errReply(err)
	}
	if !ok {
		if len(args) >= 2 {
			return nilArrayReply()
		}
		return nilBulkReply()
	}
	if len(args) < 2 {
		return bulkReply(vals[0])
	}
	return bulkArray(vals)
}

func cmdLLen(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	n, err := d.deps.Store.LLen(args[0])
	if err != nil {
		return errReply(err)
	}
	return intReply(int64(n))
}

func cmdLRange(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	start, err1 := strconv.Atoi(args[1])
	stop, err2 := strconv.Atoi(args[2])
	if err1 != nil || err2 != nil {
		return one(resp.NewError("ERR value is not an integer or out of range"))
	}
	vals, err := d.deps.Store.LRange(args[0], start, stop)
	if err != nil {
		return errReply(err)
	}
	return bulkArray(vals)
}

func cmdLIndex(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	idx, err := strconv.Atoi(args[1])
	if err != nil {
		return one(resp.NewError("ERR value is not an integer or out of range"))
	}
	val, ok, err := d.deps.Store.LIndex(args[0], idx)
	if err != nil {
		return errReply(err)
	}
	if !ok {
		return nilBulkReply()
	}
	return bulkReply(val)
}

func cmdLSet(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	idx, err := strconv.Atoi(args[1])
	if err != nil {
		return one(resp.NewError("ERR value is not an integer or out of range"))
	}
	ok, err := d.deps.Store.LSet(args[0], idx, []byte(args[2]))
	if err != nil {
		return errReply(err)
	}
	if !ok {
		return one(resp.NewError("ERR no such key"))
	}
	return okReply()
}

// Sets

func cmdSAdd(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	n, err := d.deps.Store.SAdd(args[0], toBytes(args[1:])...)
	if err != nil {
		return errReply(err)
	}
	return intReply(int64(n))
}

func cmdSRem(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	n, err := d.deps.Store.SRem(args[0], toBytes(args[1:])...)
	if err != nil {
		return errReply(err)
	}
	return intReply(int64(n))
}

func cmdSIsMember(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	ok, err := d.deps.Store.SIsMember(args[0], []byte(args[1]))
	if err != nil {
		return errReply(err)
	}
	return intReply(boolToInt(ok))
}

func cmdSMembers(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	vals, err := d.deps.Store.SMembers(args[0])
	if err != nil {
		return errReply(err)
	}
	return bulkArray(vals)
}

func cmdSCard(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	n, err := d.deps.Store.SCard(args[0])
	if err != nil {
		return errReply(err)
	}
	return intReply(int64(n))
}

// Hashes

func cmdHSet(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	rest := args[1:]
	if len(rest)%2 != 0 {
		return one(resp.NewError("ERR wrong number of arguments for 'hset' command"))
	}
	fields := make(map[string][]byte, len(rest)/2)
	for i := 0; i < len(rest); i += 2 {
		fields[rest[i]] = []byte(rest[i+1])
	}
	n, err := d.deps.Store.HSet(args[0], fields)
	if err != nil {
		return errReply(err)
	}
	return intReply(int64(n))
}

func cmdHGet(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	val, ok, err := d.deps.Store.HGet(args[0], args[1])
	if err != nil {
		return errReply(err)
	}
	if !ok {
		return nilBulkReply()
	}
	return bulkReply(val)
}

func cmdHGetAll(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	m, err := d.deps.Store.HGetAll(args[0])
	if err != nil {
		return errReply(err)
	}
	items := make([]*resp.Frame, 0, len(m)*2)
	for field, val := range m {
		items = append(items, resp.NewBulkStringFromString(field), resp.NewBulkString(val))
	}
	return arrayReply(items...)
}

func cmdHDel(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	n, err := d.deps.Store.HDel(args[0], args[1:]...)
	if err != nil {
		return errReply(err)
	}
	return intReply(int64(n))
}

func cmdHLen(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	n, err := d.deps.Store.HLen(args[0])
	if err != nil {
		return errReply(err)
	}
	return intReply(int64(n))
}

func cmdHExists(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	ok, err := d.deps.Store.HExists(args[0], args[1])
	if err != nil {
		return errReply(err)
	}
	return intReply(boolToInt(ok))
}

func cmdHKeys(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	keys, err := d.deps.Store.HKeys(args[0])
	if err != nil {
		return errReply(err)
	}
	items := make([]*resp.Frame, len(keys))
	for i, k := range keys {
		items[i] = resp.NewBulkStringFromString(k)
	}
	return arrayReply(items...)
}

func cmdHVals(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	vals, err := d.deps.Store.HVals(args[0])
	if err != nil {
		return errReply(err)
	}
	return bulkArray(vals)
}

// Sorted sets

func cmdZAdd(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	rest := args[1:]
	if len(rest)%2 != 0 {
		return one(resp.NewError("ERR syntax error"))
	}
	members := make(map[string]float64, len(rest)/2)
	for i := 0; i < len(rest); i += 2 {
		score, err := strconv.ParseFloat(rest[i], 64)
		if err != nil {
			return one(resp.NewError("ERR value is not a valid float"))
		}
		members[rest[i+1]] = score
	}
	n, err := d.deps.Store.ZAdd(args[0], members)
	if err != nil {
		return errReply(err)
	}
	return intReply(int64(n))
}

func cmdZRem(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	n, err := d.deps.Store.ZRem(args[0], args[1:]...)
	if err != nil {
		return errReply(err)
	}
	return intReply(int64(n))
}

func cmdZScore(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	score, ok, err := d.deps.Store.ZScore(args[0], args[1])
	if err != nil {
		return errReply(err)
	}
	if !ok {
		return nilBulkReply()
	}
	return bulkReply([]byte(strconv.FormatFloat(score, 'g', -1, 64)))
}

func cmdZRank(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	rank, ok, err := d.deps.Store.ZRank(args[0], args[1])
	if err != nil {
		return errReply(err)
	}
	if !ok {
		return nilBulkReply()
	}
	return intReply(int64(rank))
}

func cmdZCard(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	n, err := d.deps.Store.ZCard(args[0])
	if err != nil {
		return errReply(err)
	}
	return intReply(int64(n))
}

func zMembersReply(members []keyspace.ZRangeMember, withScores bool) []*resp.Frame {
	size := len(members)
	if withScores {
		size *= 2
	}
	items := make([]*resp.Frame, 0, size)
	for _, m := range members {
		items = append(items, resp.NewBulkStringFromString(m.Member))
		if withScores {
			items = append(items, resp.NewBulkStringFromString(strconv.FormatFloat(m.Score, 'g', -1, 64)))
		}
	}
	return arrayReply(items...)
}

func cmdZRange(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	withScores := false
	if len(args) == 4 {
		if !strings.EqualFold(args[3], "WITHSCORES") {
			return one(resp.NewError("ERR syntax error"))
		}
		withScores = true
	}
	start, err1 := strconv.Atoi(args[1])
	stop, err2 := strconv.Atoi(args[2])
	if err1 != nil || err2 != nil {
		return one(resp.NewError("ERR value is not an integer or out of range"))
	}
	members, err := d.deps.Store.ZRange(args[0], start, stop)
	if err != nil {
		return errReply(err)
	}
	return zMembersReply(members, withScores)
}

func cmdZRangeByScore(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	withScores := false
	if len(args) == 4 {
		if !strings.EqualFold(args[3], "WITHSCORES") {
			return one(resp.NewError("ERR syntax error"))
		}
		withScores = true
	}
	min, err1 := strconv.ParseFloat(args[1], 64)
	max, err2 := strconv.ParseFloat(args[2], 64)
	if err1 != nil || err2 != nil {
		return one(resp.NewError("ERR min or max is not a float"))
	}
	members, err := d.deps.Store.ZRangeByScore(args[0], min, max)
	if err != nil {
		return errReply(err)
	}
	return zMembersReply(members, withScores)
}

func toBytes(args []string) [][]byte {
	out := make([][]byte, len(args))
	for i, a := range args {
		out[i] = []byte(a)
	}
	return out
}

package dispatch

import (
	"context"
	"strconv"
	"strings"
	"time"

	"coolcache/internal/keyspace"
	"coolcache/internal/resp"
	"coolcache/internal/streams"
)

func (d *Dispatcher) registerStreamCommands() {
	d.register(Command{Name: "XADD", MinArgs: 4, MaxArgs: -1, IsWrite: true, Handler: cmdXAdd, Doc: "XADD key id field value [field value ...]"})
	d.register(Command{Name: "XLEN", MinArgs: 1, MaxArgs: 1, Handler: cmdXLen, Doc: "XLEN key"})
	d.register(Command{Name: "XRANGE", MinArgs: 3, MaxArgs: 5, Handler: cmdXRange, Doc: "XRANGE key start end [COUNT count]"})
	d.register(Command{Name: "XREAD", MinArgs: 3, MaxArgs: -1, Blocking: true, Handler: cmdXRead, Doc: "XREAD [COUNT count] [BLOCK ms] STREAMS key [key ...] id [id ...]"})
}

func cmdXAdd(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	key, idSpec := args[0], args[1]
	rest := args[2:]
	if len(rest)%2 != 0 {
		return one(resp.NewError("ERR wrong number of arguments for 'xadd' command"))
	}
	fields := make([]keyspace.StreamField, 0, len(rest)/2)
	for i := 0; i < len(rest); i += 2 {
		fields = append(fields, keyspace.StreamField{Field: rest[i], Value: []byte(rest[i+1])})
	}
	nowMs := d.deps.NowMs()
	id, err := d.deps.Streams.Append(key, idSpec, fields, nowMs)
	if err != nil {
		return one(resp.NewErrorf("%s", err.Error()))
	}
	return bulkReply([]byte(id.String()))
}

func cmdXLen(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	n, err := d.deps.Store.StreamLen(args[0])
	if err != nil {
		return errReply(err)
	}
	return intReply(int64(n))
}

func streamEntriesReply(entries []keyspace.StreamEntry) *resp.Frame {
	items := make([]*resp.Frame, len(entries))
	for i, e := range entries {
		fieldItems := make([]*resp.Frame, 0, len(e.Fields)*2)
		for _, f := range e.Fields {
			fieldItems = append(fieldItems, resp.NewBulkStringFromString(f.Field), resp.NewBulkString(f.Value))
		}
		items[i] = resp.NewArray(
			resp.NewBulkStringFromString(e.ID.String()),
			resp.NewArray(fieldItems...),
		)
	}
	return resp.NewArray(items...)
}

func parseRangeBound(s string, low bool) (keyspace.StreamID, error) {
	switch s {
	case "-":
		return keyspace.StreamID{Ms: 0, Seq: 0}, nil
	case "+":
		return keyspace.StreamID{Ms: ^uint64(0), Seq: ^uint64(0)}, nil
	}
	if !strings.Contains(s, "-") {
		if low {
			return keyspace.StreamID{Ms: mustUint(s), Seq: 0}, nil
		}
		return keyspace.StreamID{Ms: mustUint(s), Seq: ^uint64(0)}, nil
	}
	return streams.ParseID(s)
}

func mustUint(s string) uint64 {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func cmdXRange(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	start, err := parseRangeBound(args[1], true)
	if err != nil {
		return one(resp.NewErrorf("%s", err.Error()))
	}
	end, err := parseRangeBound(args[2], false)
	if err != nil {
		return one(resp.NewErrorf("%s", err.Error()))
	}
	count := 0
	if len(args) == 5 {
		if !strings.EqualFold(args[3], "COUNT") {
			return one(resp.NewError("ERR syntax error"))
		}
		n, err := strconv.Atoi(args[4])
		if err != nil {
			return one(resp.NewError("ERR value is not an integer or out of range"))
		}
		count = n
	} else if len(args) != 3 {
		return one(resp.NewError("ERR syntax error"))
	}
	entries, err := d.deps.Store.StreamRange(args[0], start, end, count)
	if err != nil {
		return errReply(err)
	}
	return one(streamEntriesReply(entries))
}

// cmdXRead parses "[COUNT n] [BLOCK ms] STREAMS key [key...] id [id...]",
// blocking on the streams engine's per-key waiter
// channel when BLOCK is given and no data is immediately available.
func cmdXRead(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	count := 0
	blockMs := -1
	i := 0
	reachedStreams := false
	for i < len(args) {
		switch strings.ToUpper(args[i]) {
		case "COUNT":
			if i+1 >= len(args) {
				return one(resp.NewError("ERR syntax error"))
			}
			n, err := strconv.Atoi(args[i+1])
			if err != nil {
				return one(resp.NewError("ERR value is not an integer or out of range"))
			}
			count = n
			i += 2
		case "BLOCK":
			if i+1 >= len(args) {
				return one(resp.NewError("ERR syntax error"))
			}
			ms, err := strconv.Atoi(args[i+1])
			if err != nil {
				return one(resp.NewError("ERR timeout is not an integer or out of range"))
			}
			blockMs = ms
			i += 2
		case "STREAMS":
			i++
			reachedStreams = true
		default:
			return one(resp.NewError("ERR syntax error"))
		}
		if reachedStreams {
			break
		}
	}
	if !reachedStreams {
		return one(resp.NewError("ERR syntax error"))
	}

	rest := args[i:]
	if len(rest) == 0 || len(rest)%2 != 0 {
		return one(resp.NewError("ERR Unbalanced XREAD list of streams: for each stream key an ID or '$' must be specified."))
	}
	n := len(rest) / 2
	keys := rest[:n]
	ids := rest[n:]

	sinceByKey := make([]keyspace.StreamID, n)
	for idx, idArg := range ids {
		if idArg == "$" {
			last, err := d.deps.Store.StreamLastID(keys[idx])
			if err != nil {
				return errReply(err)
			}
			sinceByKey[idx] = last
			continue
		}
		id, err := streams.ParseID(idArg)
		if err != nil {
			return one(resp.NewErrorf("%s", err.Error()))
		}
		sinceByKey[idx] = id
	}

	results := make([]*resp.Frame, 0, n)
	anyFound := false
	for idx, key := range keys {
		entries, err := d.deps.Store.StreamAfter(key, sinceByKey[idx], count)
		if err != nil {
			return errReply(err)
		}
		if len(entries) == 0 {
			continue
		}
		anyFound = true
		results = append(results, resp.NewArray(resp.NewBulkStringFromString(key), streamEntriesReply(entries)))
	}

	if anyFound || blockMs < 0 {
		if !anyFound {
			return nilArrayReply()
		}
		return arrayReply(results...)
	}

	// BLOCK: a single fan-in wait across every requested key, so an XADD to
	// any of them wakes this call promptly. A blockMs of 0 means wait forever.
	ctx := context.Background()
	var cancel context.CancelFunc
	if blockMs > 0 {
		ctx, cancel = context.WithTimeout(ctx, time.Duration(blockMs)*time.Millisecond)
		defer cancel()
	}
	perKey, ok, err := d.deps.Streams.WaitAny(ctx, keys, sinceByKey)
	if err != nil {
		return errReply(err)
	}
	if !ok {
		return nilArrayReply()
	}
	for idx, key := range keys {
		if len(perKey[idx]) == 0 {
			continue
		}
		results = append(results, resp.NewArray(resp.NewBulkStringFromString(key), streamEntriesReply(perKey[idx])))
	}
	return arrayReply(results...)
}

package dispatch

import (
	"strconv"
	"strings"

	"coolcache/internal/resp"
)

// registerReplicationCommands wires REPLCONF/PSYNC/ROLE. These handlers
// record state and return the +OK/+FULLRESYNC/+CONTINUE replies in the
// ordinary one-reply-per-command shape; only the raw RDB bulk that follows
// +FULLRESYNC is written by internal/connio, from Conn.PendingRDB, once Sync
// has chosen a full resync.
func (d *Dispatcher) registerReplicationCommands() {
	d.register(Command{Name: "REPLCONF", MinArgs: 1, MaxArgs: -1, Handler: cmdReplConf, Doc: "REPLCONF listening-port port | capa psync2 | ACK offset | GETACK *"})
	d.register(Command{Name: "PSYNC", MinArgs: 2, MaxArgs: 2, Handler: cmdPSync, Doc: "PSYNC replid offset"})
	d.register(Command{Name: "ROLE", MinArgs: 0, MaxArgs: 0, Handler: cmdRole, Doc: "ROLE"})
}

func cmdReplConf(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	switch strings.ToUpper(args[0]) {
	case "LISTENING-PORT":
		if len(args) < 2 {
			return one(resp.NewError("ERR syntax error"))
		}
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return one(resp.NewError("ERR invalid listening-port"))
		}
		c.ListeningPort = port
		return okReply()
	case "CAPA":
		return okReply()
	case "ACK":
		if len(args) < 2 {
			return nil
		}
		offset, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return nil
		}
		if d.deps.Leader != nil && c.ReplicaFeed != nil {
			d.deps.Leader.Ack(c.ReplicaFeed.ID, offset)
		}
		// Real Redis sends no reply to REPLCONF ACK.
		return nil
	case "GETACK":
		return nil
	default:
		return okReply()
	}
}

// cmdPSync registers c as a fed replica, switches c into ModeReplica, and
// returns the +FULLRESYNC/resume reply; on a full resync it also stores the
// RDB bytes in c.PendingRDB, which internal/connio sends immediately after
// the reply.
func cmdPSync(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	if d.deps.Leader == nil {
		return one(resp.NewError("ERR this instance has no replication backlog configured"))
	}
	requestedOffset := int64(-1)
	if args[1] != "-1" {
		if n, err := strconv.ParseInt(args[1], 10, 64); err == nil {
			requestedOffset = n
		}
	}
	result, replica, err := d.deps.Leader.Sync(c.ID, c.ListeningPort, args[0], requestedOffset)
	if err != nil {
		return one(resp.NewErrorf("ERR %s", err.Error()))
	}
	c.ReplicaFeed = replica
	c.Mode = ModeReplica
	if result.Full {
		c.PendingRDB = result.RDB
		return one(resp.NewSimpleString("FULLRESYNC " + result.ReplID + " " + strconv.FormatUint(result.Offset, 10)))
	}
	return one(resp.NewSimpleString("CONTINUE " + result.ReplID))
}

func cmdRole(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	if d.deps.Leader != nil {
		return one(resp.NewArray(
			resp.NewBulkStringFromString("master"),
			resp.NewInteger(int64(d.deps.Leader.Offset())),
		))
	}
	return one(resp.NewArray(resp.NewBulkStringFromString("slave")))
}

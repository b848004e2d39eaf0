// Package connio drives one client connection's read-decode-dispatch-
// encode-write cycle: a reader goroutine paired with a buffered-send-
// channel writer goroutine, read-deadline extension on traffic, and
// deregister-on-close.
package connio

import (
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"coolcache/internal/dispatch"
	"coolcache/internal/logging"
	"coolcache/internal/metrics"
	"coolcache/internal/pubsub"
	"coolcache/internal/replication"
	"coolcache/internal/resp"
)

const (
	writeWait  = 10 * time.Second
	idleReadTO = 5 * time.Minute
)

// Loop owns one accepted connection end to end.
type Loop struct {
	conn       net.Conn
	id         string
	log        *logging.Logger
	dispatcher *dispatch.Dispatcher
	pubsub     *pubsub.Hub
	leader     *replication.Leader // optional: only set when this server is a replication leader
	metrics    *metrics.Metrics

	send chan []byte

	subDrainStarted     atomic.Bool
	replicaDrainStarted atomic.Bool
	closed              atomic.Bool
}

// New wraps conn for one client's lifetime. id should be unique per
// connection (e.g. conn.RemoteAddr().String() plus a counter). leader may
// be nil if this server has no attached replicas to serve.
func New(conn net.Conn, id string, dispatcher *dispatch.Dispatcher, hub *pubsub.Hub, leader *replication.Leader, log *logging.Logger) *Loop {
	if log == nil {
		log = logging.L()
	}
	return &Loop{
		conn:       conn,
		id:         id,
		log:        log.With(logging.String("conn_id", id), logging.String("remote_addr", conn.RemoteAddr().String())),
		dispatcher: dispatcher,
		pubsub:     hub,
		leader:     leader,
		send:       make(chan []byte, 256),
	}
}

// SetMetrics attaches the server's Prometheus instruments; a nil Metrics
// (or never calling this) leaves the loop uninstrumented.
func (l *Loop) SetMetrics(m *metrics.Metrics) { l.metrics = m }

// Serve runs the connection's full lifecycle until the peer disconnects or
// a protocol error forces closure. It blocks the calling goroutine (the
// reader loop); callers should invoke it from its own goroutine per
// accepted connection.
func (l *Loop) Serve() {
	c := &dispatch.Conn{ID: l.id, Mode: dispatch.ModeNormal, Addr: l.conn.RemoteAddr().String()}
	l.metrics.ConnectionOpened()

	writerDone := make(chan struct{})
	go l.writeLoop(writerDone)

	defer func() {
		l.close(c)
		l.metrics.ConnectionClosed()
		<-writerDone
	}()

	decoder := resp.NewDecoder()
	buf := make([]byte, 64*1024)
	for {
		if err := l.conn.SetReadDeadline(time.Now().Add(idleReadTO)); err != nil {
			l.log.Warn("failed to set read deadline", logging.Error(err))
			return
		}
		n, err := l.conn.Read(buf)
		if n > 0 {
			decoder.Feed(buf[:n])
			for {
				frame, derr := decoder.Decode()
				if derr == resp.ErrIncomplete {
					break
				}
				if derr != nil {
					l.log.Warn("protocol error, closing connection", logging.Error(derr))
					l.enqueue(resp.Encode(resp.NewErrorf("ERR %s", derr.Error())))
					return
				}
				if !l.handleFrame(c, frame) {
					return
				}
			}
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				l.log.Debug("idle connection timed out")
			} else {
				l.log.Debug("connection read ended", logging.Error(err))
			}
			return
		}
	}
}

// handleFrame dispatches one decoded command and queues its reply. It
// returns false when the connection should close, which happens only after
// QUIT; a connection handed off to replica-feed mode stays open.
func (l *Loop) handleFrame(c *dispatch.Conn, frame *resp.Frame) bool {
	replies := l.dispatcher.Execute(c, frame)
	for _, r := range replies {
		l.enqueue(resp.Encode(r))
	}

	if c.PendingRDB != nil {
		l.enqueue(rdbBulkFraming(c.PendingRDB))
		c.PendingRDB = nil
	}

	if c.Subscriber != nil {
		l.ensureSubscriberDrain(c)
	}
	if c.ReplicaFeed != nil {
		l.ensureReplicaDrain(c)
	}

	if args, err := frame.StringArgs(); err == nil && len(args) > 0 {
		switch upper(args[0]) {
		case "QUIT":
			return false
		}
	}
	return true
}

// rdbBulkFraming renders data as PSYNC's "$<len>\r\n<bytes>" framing, which
// — unlike an ordinary RESP bulk string — carries no trailing CRLF.
func rdbBulkFraming(data []byte) []byte {
	header := "$" + strconv.Itoa(len(data)) + "\r\n"
	out := make([]byte, 0, len(header)+len(data))
	out = append(out, header...)
	out = append(out, data...)
	return out
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}

// ensureSubscriberDrain starts, at most once, the goroutine that forwards
// published messages queued on c.Subscriber to this connection's send
// channel, releasing the governor's backlog charge as each one is handed
// off to the writer.
func (l *Loop) ensureSubscriberDrain(c *dispatch.Conn) {
	if !l.subDrainStarted.CompareAndSwap(false, true) {
		return
	}
	go func() {
		for msg := range c.Subscriber.Events() {
			kind := "message"
			frame := resp.NewArray(
				resp.NewBulkStringFromString(kind),
				resp.NewBulkStringFromString(msg.Channel),
				resp.NewBulkString(msg.Payload),
			)
			if msg.Pattern != "" {
				frame = resp.NewArray(
					resp.NewBulkStringFromString("pmessage"),
					resp.NewBulkStringFromString(msg.Pattern),
					resp.NewBulkStringFromString(msg.Channel),
					resp.NewBulkString(msg.Payload),
				)
			}
			encoded := resp.Encode(frame)
			l.enqueue(encoded)
			l.pubsub.Drained(c.ID, len(msg.Payload))
		}
	}()
}

// ensureReplicaDrain starts, at most once, the goroutine forwarding the
// leader's replicated byte stream straight to this connection's writer,
// bypassing RESP re-encoding since Leader.Propagate already produced wire
// bytes.
func (l *Loop) ensureReplicaDrain(c *dispatch.Conn) {
	if !l.replicaDrainStarted.CompareAndSwap(false, true) {
		return
	}
	go func() {
		for data := range c.ReplicaFeed.Feed() {
			l.enqueue(data)
		}
	}()
}

func (l *Loop) enqueue(data []byte) {
	if l.closed.Load() {
		return
	}
	select {
	case l.send <- data:
	default:
		l.log.Warn("send buffer full, disconnecting slow client")
		l.close(nil)
	}
}

func (l *Loop) writeLoop(done chan struct{}) {
	defer close(done)
	// The writer closes the connection itself, after the send channel has
	// been drained, so replies queued before close (e.g. QUIT's +OK) are sent.
	defer l.conn.Close()
	for data := range l.send {
		if err := l.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			l.log.Warn("failed to set write deadline", logging.Error(err))
			return
		}
		if _, err := l.conn.Write(data); err != nil {
			l.log.Debug("write error, closing connection", logging.Error(err))
			return
		}
	}
}

func (l *Loop) close(c *dispatch.Conn) {
	if !l.closed.CompareAndSwap(false, true) {
		return
	}
	if c != nil && c.Subscriber != nil {
		c.Subscriber.Close()
	}
	if c != nil && c.ReplicaFeed != nil && l.leader != nil {
		l.leader.Detach(c.ReplicaFeed.ID)
	}
	close(l.send)
}

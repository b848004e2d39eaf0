package replication

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"coolcache/internal/logging"
	"coolcache/internal/resp"
)

// ApplyFunc applies one decoded write command to the local keyspace, as if
// it had arrived from a normal client, without emitting a reply. Wired by
// the server's main package to CommandDispatcher.Execute against a Conn in
// Inbound mode.
type ApplyFunc func(frame *resp.Frame)

// LoadRDBFunc populates the local keyspace from a raw RDB dump's bytes,
// wired to internal/snapshot.Manager's loader.
type LoadRDBFunc func(data []byte) error

// Follower maintains an outbound connection to a leader: handshake, initial
// RDB load, then a continuous apply loop. One Follower
// per `--replicaof` configuration.
type Follower struct {
	host, port    string
	listeningPort int
	apply         ApplyFunc
	loadRDB       LoadRDBFunc
	log           *logging.Logger
	dial          func(network, addr string) (net.Conn, error)

	offset uint64
}

// NewFollower constructs a Follower that will dial host:port.
func NewFollower(host string, port, listeningPort int, apply ApplyFunc, loadRDB LoadRDBFunc, log *logging.Logger) *Follower {
	if log == nil {
		log = logging.L()
	}
	return &Follower{
		host:          host,
		port:          strconv.Itoa(port),
		listeningPort: listeningPort,
		apply:         apply,
		loadRDB:       loadRDB,
		log:           log,
		dial:          net.Dial,
	}
}

// Offset reports the number of replication-stream bytes applied so far.
func (f *Follower) Offset() uint64 { return f.offset }

// Run connects and replicates until ctx is cancelled, reconnecting with a
// short backoff on any transient error; the follower discards its state and
// reloads on every fresh attempt.
func (f *Follower) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := f.runOnce(ctx); err != nil {
			f.log.Warn("replication link failed, retrying", logging.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (f *Follower) runOnce(ctx context.Context) error {
	addr := net.JoinHostPort(f.host, f.port)
	conn, err := f.dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial leader %s: %w", addr, err)
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)

	if err := sendCommand(conn, "PING"); err != nil {
		return err
	}
	if _, err := readLine(reader); err != nil {
		return fmt.Errorf("reading PING reply: %w", err)
	}

	if err := sendCommand(conn, "REPLCONF", "listening-port", strconv.Itoa(f.listeningPort)); err != nil {
		return err
	}
	if _, err := readLine(reader); err != nil {
		return fmt.Errorf("reading REPLCONF listening-port reply: %w", err)
	}

	if err := sendCommand(conn, "REPLCONF", "capa", "psync2"); err != nil {
		return err
	}
	if _, err := readLine(reader); err != nil {
		return fmt.Errorf("reading REPLCONF capa reply: %w", err)
	}

	if err := sendCommand(conn, "PSYNC", "?", "-1"); err != nil {
		return err
	}
	fullresync, err := readLine(reader)
	if err != nil {
		return fmt.Errorf("reading PSYNC reply: %w", err)
	}
	if _, _, err := parseFullresync(fullresync); err != nil {
		return err
	}

	rdbBytes, err := readRDBBulk(reader)
	if err != nil {
		return fmt.Errorf("reading RDB payload: %w", err)
	}
	if f.loadRDB != nil {
		if err := f.loadRDB(rdbBytes); err != nil {
			return fmt.Errorf("loading RDB payload: %w", err)
		}
	}
	f.offset = 0

	ackTicker := time.NewTicker(time.Second)
	defer ackTicker.Stop()
	ackDone := make(chan struct{})
	defer close(ackDone)
	go func() {
		for {
			select {
			case <-ackTicker.C:
				_ = sendCommand(conn, "REPLCONF", "ACK", strconv.FormatUint(f.offset, 10))
			case <-ackDone:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	decoder := resp.NewDecoder()
	buf := make([]byte, 64*1024)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := reader.Read(buf)
		if n > 0 {
			decoder.Feed(buf[:n])
			for {
				before := decoder.Buffered()
				frame, derr := decoder.Decode()
				if derr == resp.ErrIncomplete {
					break
				}
				if derr != nil {
					return fmt.Errorf("decoding replication stream: %w", derr)
				}
				consumed := before - decoder.Buffered()
				f.offset += uint64(consumed)
				f.handleReplicated(conn, frame)
			}
		}
		if err != nil {
			if err == io.EOF {
				return fmt.Errorf("leader closed replication connection")
			}
			return err
		}
	}
}

func (f *Follower) handleReplicated(conn net.Conn, frame *resp.Frame) {
	args, err := frame.StringArgs()
	if err != nil || len(args) == 0 {
		return
	}
	if strings.EqualFold(args[0], "REPLCONF") && len(args) >= 2 && strings.EqualFold(args[1], "GETACK") {
		_ = sendCommand(conn, "REPLCONF", "ACK", strconv.FormatUint(f.offset, 10))
		return
	}
	if strings.EqualFold(args[0], "PING") {
		return
	}
	if f.apply != nil {
		f.apply(frame)
	}
}

func sendCommand(w io.Writer, parts ...string) error {
	items := make([][]byte, len(parts))
	for i, p := range parts {
		items[i] = []byte(p)
	}
	_, err := w.Write(resp.Encode(resp.NewCommandArray(items...)))
	return err
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// parseFullresync parses "+FULLRESYNC <replid> <offset>".
func parseFullresync(line string) (replID string, offset int64, err error) {
	trimmed := strings.TrimPrefix(line, "+")
	fields := strings.Fields(trimmed)
	if len(fields) != 3 || !strings.EqualFold(fields[0], "FULLRESYNC") {
		return "", 0, fmt.Errorf("unexpected PSYNC reply %q", line)
	}
	offset, err = strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid FULLRESYNC offset in %q", line)
	}
	return fields[1], offset, nil
}

// readRDBBulk reads the "$<len>\r\n<bytes>" framing PSYNC uses for the RDB
// payload, which — unlike an ordinary RESP bulk string — has no trailing
// CRLF.
func readRDBBulk(r *bufio.Reader) ([]byte, error) {
	header, err := readLine(r)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(header, "$") {
		return nil, fmt.Errorf("expected bulk length header, got %q", header)
	}
	length, err := strconv.Atoi(strings.TrimPrefix(header, "$"))
	if err != nil || length < 0 {
		return nil, fmt.Errorf("invalid RDB bulk length in %q", header)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

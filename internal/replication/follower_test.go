package replication

import (
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"coolcache/internal/resp"
)

// TestFollowerFullHandshakeAppliesReplicatedWrites drives Follower.runOnce
// against a fake leader speaking the leader handshake:
// PING, REPLCONF listening-port, REPLCONF capa psync2, PSYNC ? -1, then an
// RDB payload followed by one replicated write.
func TestFollowerFullHandshakeAppliesReplicatedWrites(t *testing.T) {
	clientConn, serverConn := net.Pipe()

	applied := make(chan *resp.Frame, 1)
	loaded := make(chan []byte, 1)
	f := NewFollower("leader-host", 0, 6380,
		func(frame *resp.Frame) { applied <- frame },
		func(data []byte) error { loaded <- append([]byte{}, data...); return nil },
		nil,
	)
	f.dial = func(network, addr string) (net.Conn, error) { return clientConn, nil }

	leaderErr := make(chan error, 1)
	go func() { leaderErr <- fakeLeader(serverConn) }()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := f.runOnce(ctx); err == nil {
		t.Fatalf("expected runOnce to return an error once the fake leader closes its connection")
	}

	select {
	case data := <-loaded:
		if string(data) != "test-rdb-payload" {
			t.Fatalf("loaded RDB bytes = %q, want %q", data, "test-rdb-payload")
		}
	case <-time.After(time.Second):
		t.Fatalf("expected the full-resync RDB payload to be loaded")
	}

	select {
	case frame := <-applied:
		args, err := frame.StringArgs()
		if err != nil {
			t.Fatalf("StringArgs: %v", err)
		}
		if len(args) != 3 || !strings.EqualFold(args[0], "SET") || args[1] != "foo" || args[2] != "bar" {
			t.Fatalf("applied frame = %v, want [SET foo bar]", args)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected the replicated write to reach the apply callback")
	}

	if err := <-leaderErr; err != nil {
		t.Fatalf("fake leader: %v", err)
	}
}

func fakeLeader(conn net.Conn) error {
	defer conn.Close()
	decoder := resp.NewDecoder()
	buf := make([]byte, 4096)

	readCommand := func() ([]string, error) {
		for {
			frame, err := decoder.Decode()
			if err == nil {
				return frame.StringArgs()
			}
			if err != resp.ErrIncomplete {
				return nil, err
			}
			n, rerr := conn.Read(buf)
			if n > 0 {
				decoder.Feed(buf[:n])
				continue
			}
			if rerr != nil {
				return nil, rerr
			}
		}
	}

	if _, err := readCommand(); err != nil { // PING
		return fmt.Errorf("reading PING: %w", err)
	}
	if _, err := conn.Write([]byte("+PONG\r\n")); err != nil {
		return err
	}

	if _, err := readCommand(); err != nil { // REPLCONF listening-port
		return fmt.Errorf("reading REPLCONF listening-port: %w", err)
	}
	if _, err := conn.Write([]byte("+OK\r\n")); err != nil {
		return err
	}

	if _, err := readCommand(); err != nil { // REPLCONF capa psync2
		return fmt.Errorf("reading REPLCONF capa: %w", err)
	}
	if _, err := conn.Write([]byte("+OK\r\n")); err != nil {
		return err
	}

	if _, err := readCommand(); err != nil { // PSYNC ? -1
		return fmt.Errorf("reading PSYNC: %w", err)
	}
	replID := strings.Repeat("a", 40)
	if _, err := conn.Write([]byte(fmt.Sprintf("+FULLRESYNC %s 0\r\n", replID))); err != nil {
		return err
	}

	rdb := []byte("test-rdb-payload")
	header := fmt.Sprintf("$%d\r\n", len(rdb))
	if _, err := conn.Write(append([]byte(header), rdb...)); err != nil {
		return err
	}

	writeFrame := resp.NewCommandArray([]byte("SET"), []byte("foo"), []byte("bar"))
	if _, err := conn.Write(resp.Encode(writeFrame)); err != nil {
		return err
	}

	return nil
}

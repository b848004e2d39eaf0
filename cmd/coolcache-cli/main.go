// Command coolcache-cli is a minimal interactive RESP client shell,
// deliberately kept outside the core engine: it only has to read a
// line of whitespace-separated tokens, send it as a RESP command array, and
// print whatever comes back. Its shape — a thin main wiring a stdin reader
// loop straight to a decoder — mirrors the small single-purpose command
// wrappers this project's other CLI tools use.
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"coolcache/internal/resp"
)

func main() {
	// Pick up COOLCACHE_HOST/COOLCACHE_PORT from a local .env when present.
	_ = godotenv.Load()

	host := envOr("COOLCACHE_HOST", "127.0.0.1")
	port := envOr("COOLCACHE_PORT", "6379")

	conn, err := net.Dial("tcp", net.JoinHostPort(host, port))
	if err != nil {
		fmt.Fprintln(os.Stderr, "coolcache-cli: connect:", err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Printf("connected to coolcache at %s:%s\n", host, port)

	decoder := resp.NewDecoder()
	readBuf := make([]byte, 4096)
	stdin := bufio.NewScanner(os.Stdin)
	stdin.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for {
		fmt.Print("coolcache> ")
		if !stdin.Scan() {
			return
		}
		line := strings.TrimSpace(stdin.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if _, err := conn.Write(resp.Encode(resp.NewCommandArray(stringsToBytes(fields)...))); err != nil {
			fmt.Fprintln(os.Stderr, "write error:", err)
			return
		}
		if strings.EqualFold(fields[0], "QUIT") {
			return
		}

		frame, err := readOneFrame(conn, decoder, readBuf)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read error:", err)
			return
		}
		printFrame(frame, 0)
	}
}

func readOneFrame(conn net.Conn, decoder *resp.Decoder, buf []byte) (*resp.Frame, error) {
	for {
		if frame, err := decoder.Decode(); err != resp.ErrIncomplete {
			return frame, err
		}
		n, err := conn.Read(buf)
		if n > 0 {
			decoder.Feed(buf[:n])
		}
		if err != nil {
			return nil, err
		}
	}
}

func printFrame(f *resp.Frame, indent int) {
	prefix := strings.Repeat("  ", indent)
	if f == nil {
		fmt.Println(prefix + "(nil)")
		return
	}
	switch f.Type {
	case resp.SimpleString:
		fmt.Println(prefix + f.Str)
	case resp.Error:
		fmt.Println(prefix + "(error) " + f.Str)
	case resp.Integer:
		fmt.Println(prefix + "(integer) " + strconv.FormatInt(f.Int, 10))
	case resp.BulkString:
		if f.BulkNull {
			fmt.Println(prefix + "(nil)")
			return
		}
		fmt.Println(prefix + "\"" + string(f.Bulk) + "\"")
	case resp.Array:
		if f.ArrayNull {
			fmt.Println(prefix + "(nil)")
			return
		}
		if len(f.Items) == 0 {
			fmt.Println(prefix + "(empty array)")
			return
		}
		for i, item := range f.Items {
			fmt.Printf("%s%d) ", prefix, i+1)
			printFrame(item, 0)
		}
	}
}

func stringsToBytes(fields []string) [][]byte {
	out := make([][]byte, len(fields))
	for i, f := range fields {
		out[i] = []byte(f)
	}
	return out
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

package resp

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrIncomplete signals that the buffer fed so far does not contain a
// complete frame; the decoder has consumed nothing and the caller should
// read more bytes from the connection and feed them in.
var ErrIncomplete = errors.New("resp: need more data")

// ErrProtocol signals a malformed frame. The connection must be closed
// after this; the decoder does not attempt to resynchronise.
var ErrProtocol = errors.New("resp: protocol error")

// MaxBulkLen bounds a single bulk string payload, guarding against a
// malicious or buggy peer claiming an enormous length.
const MaxBulkLen = 512 * 1024 * 1024

// MaxInlineLen bounds a single inline command line.
const MaxInlineLen = 64 * 1024

// Decoder incrementally parses frames out of a growable input buffer. It
// never blocks on I/O itself: callers Feed it bytes read from a connection
// and call Decode in a loop until it reports ErrIncomplete, at which point
// more bytes must be read.
type Decoder struct {
	buf []byte
}

// NewDecoder returns an empty incremental decoder.
func NewDecoder() *Decoder { return &Decoder{} }

// Feed appends freshly read bytes to the decoder's internal buffer.
func (d *Decoder) Feed(data []byte) {
	d.buf = append(d.buf, data...)
}

// Buffered reports how many unconsumed bytes remain.
func (d *Decoder) Buffered() int { return len(d.buf) }

// Decode consumes exactly one complete frame from the buffer, if present.
// On ErrIncomplete no bytes are consumed, so the same Decode call can be
// retried after Feed supplies more data. On ErrProtocol the connection must
// be dropped; retrying is not meaningful.
func (d *Decoder) Decode() (*Frame, error) {
	if len(d.buf) == 0 {
		return nil, ErrIncomplete
	}
	switch d.buf[0] {
	case byte(SimpleString), byte(Error), byte(Integer), byte(BulkString), byte(Array):
		frame, n, err := parseFrame(d.buf)
		if err != nil {
			return nil, err
		}
		d.buf = d.buf[n:]
		return frame, nil
	default:
		frame, n, err := parseInline(d.buf)
		if err != nil {
			return nil, err
		}
		d.buf = d.buf[n:]
		return frame, nil
	}
}

// parseFrame parses one frame starting at buf[0], which must be one of the
// five type-prefix bytes. It returns the frame, the number of bytes
// consumed, or ErrIncomplete/ErrProtocol.
func parseFrame(buf []byte) (*Frame, int, error) {
	if len(buf) == 0 {
		return nil, 0, ErrIncomplete
	}
	switch buf[0] {
	case byte(SimpleString):
		line, n, ok := readLine(buf[1:])
		if !ok {
			return nil, 0, ErrIncomplete
		}
		return NewSimpleString(string(line)), 1 + n, nil
	case byte(Error):
		line, n, ok := readLine(buf[1:])
		if !ok {
			return nil, 0, ErrIncomplete
		}
		return NewError(string(line)), 1 + n, nil
	case byte(Integer):
		line, n, ok := readLine(buf[1:])
		if !ok {
			return nil, 0, ErrIncomplete
		}
		v, err := strconv.ParseInt(string(line), 10, 64)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: invalid integer %q", ErrProtocol, line)
		}
		return NewInteger(v), 1 + n, nil
	case byte(BulkString):
		return parseBulk(buf)
	case byte(Array):
		return parseArray(buf)
	default:
		return nil, 0, fmt.Errorf("%w: unexpected prefix byte %q", ErrProtocol, buf[0])
	}
}

func parseBulk(buf []byte) (*Frame, int, error) {
	line, n, ok := readLine(buf[1:])
	if !ok {
		return nil, 0, ErrIncomplete
	}
	length, err := strconv.ParseInt(string(line), 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: invalid bulk length %q", ErrProtocol, line)
	}
	if length == -1 {
		return NewNullBulkString(), 1 + n, nil
	}
	if length < -1 || length > MaxBulkLen {
		return nil, 0, fmt.Errorf("%w: bulk length %d out of range", ErrProtocol, length)
	}
	head := 1 + n
	total := head + int(length) + 2
	if len(buf) < total {
		return nil, 0, ErrIncomplete
	}
	payload := buf[head : head+int(length)]
	if buf[head+int(length)] != '\r' || buf[head+int(length)+1] != '\n' {
		return nil, 0, fmt.Errorf("%w: bulk string missing trailing CRLF", ErrProtocol)
	}
	//1.- Copy out of the shared decode buffer so callers may retain the frame past the next Feed.
	return NewBulkString(append([]byte(nil), payload...)), total, nil
}

func parseArray(buf []byte) (*Frame, int, error) {
	line, n, ok := readLine(buf[1:])
	if !ok {
		return nil, 0, ErrIncomplete
	}
	count, err := strconv.ParseInt(string(line), 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: invalid array length %q", ErrProtocol, line)
	}
	if count == -1 {
		return NewNullArray(), 1 + n, nil
	}
	if count < -1 {
		return nil, 0, fmt.Errorf("%w: array length %d out of range", ErrProtocol, count)
	}
	consumed := 1 + n
	items := make([]*Frame, 0, count)
	for i := int64(0); i < count; i++ {
		if consumed > len(buf) {
			return nil, 0, ErrIncomplete
		}
		//2.- Recurse: array elements may themselves be any RESP type.
		item, used, err := parseFrame(buf[consumed:])
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
		consumed += used
	}
	return &Frame{Type: Array, Items: items}, consumed, nil
}

// readLine scans buf for a terminating "\r\n" and returns the content
// before it along with the number of bytes consumed including the CRLF.
func readLine(buf []byte) (line []byte, n int, ok bool) {
	idx := bytes.Index(buf, []byte("\r\n"))
	if idx < 0 {
		if len(buf) > MaxInlineLen {
			return nil, 0, false
		}
		return nil, 0, false
	}
	return buf[:idx], idx + 2, true
}

// parseInline handles the single-line, whitespace-separated command form
// accepted from interactive clients. An empty line is a
// harmless no-op, consumed but surfaced as a zero-element array.
func parseInline(buf []byte) (*Frame, int, error) {
	idx := bytes.IndexByte(buf, '\n')
	if idx < 0 {
		if len(buf) > MaxInlineLen {
			return nil, 0, fmt.Errorf("%w: inline command too long", ErrProtocol)
		}
		return nil, 0, ErrIncomplete
	}
	end := idx
	if end > 0 && buf[end-1] == '\r' {
		end--
	}
	line := string(buf[:end])
	fields := strings.Fields(line)
	parts := make([][]byte, len(fields))
	for i, f := range fields {
		parts[i] = []byte(f)
	}
	return NewCommandArray(parts...), idx + 1, nil
}

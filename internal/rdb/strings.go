package rdb

import (
	"fmt"
	"io"
	"strconv"
)

// writeString always emits the plain length-prefixed form; CoolCache's
// writer never produces the integer or LZF special encodings; it only emits
// forms it can round-trip.
func writeString(w io.Writer, s []byte) error {
	if err := writeLength(w, uint64(len(s))); err != nil {
		return err
	}
	_, err := w.Write(s)
	return err
}

// readString accepts the plain form and the two special forms a reader
// must tolerate: integer-as-string (8/16/32-bit) and LZF-compressed.
func readString(r io.Reader) ([]byte, error) {
	res, err := readLength(r)
	if err != nil {
		return nil, err
	}
	if !res.Special {
		buf := make([]byte, res.Length)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		return buf, nil
	}
	switch res.Kind {
	case specInt8:
		b, err := readByte(r)
		if err != nil {
			return nil, err
		}
		return []byte(strconv.FormatInt(int64(int8(b)), 10)), nil
	case specInt16:
		var buf [2]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		v := int16(uint16(buf[0]) | uint16(buf[1])<<8)
		return []byte(strconv.FormatInt(int64(v), 10)), nil
	case specInt32:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		v := int32(uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24)
		return []byte(strconv.FormatInt(int64(v), 10)), nil
	case specLZF:
		return readLZFString(r)
	default:
		return nil, fmt.Errorf("rdb: unknown special string encoding %d", res.Kind)
	}
}

// readLZFString decodes an LZF-compressed string: compressed length,
// uncompressed length, then the compressed payload.
func readLZFString(r io.Reader) ([]byte, error) {
	compressedLen, err := readLength(r)
	if err != nil {
		return nil, err
	}
	uncompressedLen, err := readLength(r)
	if err != nil {
		return nil, err
	}
	if compressedLen.Special || uncompressedLen.Special {
		return nil, fmt.Errorf("rdb: malformed LZF length prefix")
	}
	compressed := make([]byte, compressedLen.Length)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return nil, err
	}
	return lzfDecompress(compressed, int(uncompressedLen.Length))
}

// lzfDecompress implements the LZF back-reference format Redis embeds:
// a control byte either copies the next N+1 literal bytes, or encodes a
// back-reference (length, distance) into the output already produced.
// This is a small, fully specified decompression loop with no external
// dependency in the example corpus implementing it; see DESIGN.md.
func lzfDecompress(in []byte, outLen int) ([]byte, error) {
	out := make([]byte, 0, outLen)
	i := 0
	for i < len(in) {
		ctrl := int(in[i])
		i++
		if ctrl < 32 {
			// Literal run of ctrl+1 bytes.
			n := ctrl + 1
			if i+n > len(in) {
				return nil, fmt.Errorf("rdb: truncated LZF literal run")
			}
			out = append(out, in[i:i+n]...)
			i += n
			continue
		}
		// Back-reference: length = ctrl>>5, extended if that field is 7.
		length := ctrl >> 5
		if length == 7 {
			if i >= len(in) {
				return nil, fmt.Errorf("rdb: truncated LZF length extension")
			}
			length += int(in[i])
			i++
		}
		if i >= len(in) {
			return nil, fmt.Errorf("rdb: truncated LZF back-reference")
		}
		distance := (ctrl&0x1F)<<8 | int(in[i])
		i++
		distance++
		refStart := len(out) - distance
		if refStart < 0 {
			return nil, fmt.Errorf("rdb: LZF back-reference out of range")
		}
		for n := 0; n < length+2; n++ {
			out = append(out, out[refStart+n])
		}
	}
	if len(out) != outLen {
		return nil, fmt.Errorf("rdb: LZF decompressed length mismatch: got %d want %d", len(out), outLen)
	}
	return out, nil
}

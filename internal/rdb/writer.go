package rdb

import (
	"bufio"
	"encoding/binary"
	"hash/crc64"
	"io"
	"math"

	"coolcache/internal/keyspace"
)

// crcTable uses Redis's reversed Jones polynomial, not the stdlib's ISO or
// ECMA tables; see DESIGN.md for why this is a justified stdlib (hash/crc64
// with a custom polynomial) rather than a third-party CRC64 implementation.
var crcTable = crc64.MakeTable(0xad93d23594c935a9)

// Record is one key's worth of data ready to be written to the snapshot, the
// shape SnapshotManager hands the writer after taking its point-in-time view.
type Record struct {
	Key       string
	Kind      keyspace.Kind
	ExpiresAt int64 // unix milliseconds, 0 means no TTL

	Str  []byte
	List [][]byte
	Set  [][]byte
	Hash map[string][]byte
	ZSet []keyspace.ZRangeMember
}

// Writer streams an RDB document to an underlying io.Writer, accumulating a
// running CRC64 over every byte so Close can append a valid trailer, the
// same buffer-then-checksum-trailer shape as
// that writer's compressed sinks.
type Writer struct {
	out  *bufio.Writer
	hash uint64
	n    int64
}

// NewWriter wraps w, immediately emitting the magic/version header.
func NewWriter(w io.Writer) (*Writer, error) {
	rw := &Writer{out: bufio.NewWriter(w)}
	if err := rw.writeRaw([]byte(magic + versionDigits)); err != nil {
		return nil, err
	}
	return rw, nil
}

func (w *Writer) writeRaw(b []byte) error {
	w.hash = crc64.Update(w.hash, crcTable, b)
	_, err := w.out.Write(b)
	w.n += int64(len(b))
	return err
}

// hashingWriter adapts Writer so the length/string helpers, which take a
// plain io.Writer, still flow through the running checksum.
type hashingWriter struct{ w *Writer }

func (h hashingWriter) Write(b []byte) (int, error) {
	if err := h.w.writeRaw(b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// WriteAux emits an auxiliary metadata field (e.g. "redis-ver").
func (w *Writer) WriteAux(key, value string) error {
	hw := hashingWriter{w}
	if _, err := hw.Write([]byte{opAux}); err != nil {
		return err
	}
	if err := writeString(hw, []byte(key)); err != nil {
		return err
	}
	return writeString(hw, []byte(value))
}

// WriteSelectDB emits the database-selector opcode for dbIndex.
func (w *Writer) WriteSelectDB(dbIndex uint64) error {
	hw := hashingWriter{w}
	if _, err := hw.Write([]byte{opSelectDB}); err != nil {
		return err
	}
	return writeLength(hw, dbIndex)
}

// WriteResizeDB emits the resizedb hint: total key count and keys-with-TTL
// count, a size-estimation aid real Redis readers use to preallocate.
func (w *Writer) WriteResizeDB(totalKeys, keysWithTTL uint64) error {
	hw := hashingWriter{w}
	if _, err := hw.Write([]byte{opResizeDB}); err != nil {
		return err
	}
	if err := writeLength(hw, totalKeys); err != nil {
		return err
	}
	return writeLength(hw, keysWithTTL)
}

// WriteRecord emits one key's expiry prefix (if any), type byte, key, and
// type-specific payload.
func (w *Writer) WriteRecord(rec Record) error {
	hw := hashingWriter{w}
	if rec.ExpiresAt != 0 {
		if _, err := hw.Write([]byte{opExpireMs}); err != nil {
			return err
		}
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(rec.ExpiresAt))
		if _, err := hw.Write(buf[:]); err != nil {
			return err
		}
	}

	typeByte, err := typeByteFor(rec.Kind)
	if err != nil {
		return err
	}
	if _, err := hw.Write([]byte{typeByte}); err != nil {
		return err
	}
	if err := writeString(hw, []byte(rec.Key)); err != nil {
		return err
	}

	switch rec.Kind {
	case keyspace.KindString:
		return writeString(hw, rec.Str)
	case keyspace.KindList:
		if err := writeLength(hw, uint64(len(rec.List))); err != nil {
			return err
		}
		for _, item := range rec.List {
			if err := writeString(hw, item); err != nil {
				return err
			}
		}
		return nil
	case keyspace.KindSet:
		if err := writeLength(hw, uint64(len(rec.Set))); err != nil {
			return err
		}
		for _, member := range rec.Set {
			if err := writeString(hw, member); err != nil {
				return err
			}
		}
		return nil
	case keyspace.KindHash:
		if err := writeLength(hw, uint64(len(rec.Hash))); err != nil {
			return err
		}
		for field, val := range rec.Hash {
			if err := writeString(hw, []byte(field)); err != nil {
				return err
			}
			if err := writeString(hw, val); err != nil {
				return err
			}
		}
		return nil
	case keyspace.KindSortedSet:
		// zset-v2: score as a little-endian 8-byte double, preferred over
		// the ASCII-score type 3 form.
		if err := writeLength(hw, uint64(len(rec.ZSet))); err != nil {
			return err
		}
		for _, m := range rec.ZSet {
			if err := writeString(hw, []byte(m.Member)); err != nil {
				return err
			}
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(m.Score))
			if _, err := hw.Write(buf[:]); err != nil {
				return err
			}
		}
		return nil
	default:
		return errUnsupportedKind(rec.Kind)
	}
}

func typeByteFor(k keyspace.Kind) (byte, error) {
	switch k {
	case keyspace.KindString:
		return typeString, nil
	case keyspace.KindList:
		return typeList, nil
	case keyspace.KindSet:
		return typeSet, nil
	case keyspace.KindHash:
		return typeHash, nil
	case keyspace.KindSortedSet:
		return typeZSet2, nil
	default:
		return 0, errUnsupportedKind(k)
	}
}

// Close writes the EOF opcode and the CRC64 trailer over every byte
// written so far, then flushes the underlying buffer.
func (w *Writer) Close() error {
	if err := w.writeRaw([]byte{opEOF}); err != nil {
		return err
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], w.hash)
	if _, err := w.out.Write(buf[:]); err != nil {
		return err
	}
	return w.out.Flush()
}

// BytesWritten reports the number of bytes emitted so far, excluding the
// not-yet-written CRC trailer.
func (w *Writer) BytesWritten() int64 { return w.n }


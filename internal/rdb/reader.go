package rdb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc64"
	"io"
	"math"
	"strconv"

	"coolcache/internal/keyspace"
)

// Document is the fully parsed result of reading an RDB dump: every
// key record plus the auxiliary metadata fields, in file order.
type Document struct {
	Version int
	Aux     map[string]string
	Records []Record
}

// Read parses a complete RDB document from r. Truncation,
// a bad magic header, or a checksum mismatch fail the whole load — there is
// no partial keyspace on error.
func Read(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) < headerLen+8 {
		return nil, ErrTruncated
	}

	body, trailer := data[:len(data)-8], data[len(data)-8:]
	storedCRC := binary.LittleEndian.Uint64(trailer)
	if storedCRC != 0 {
		computed := crc64.Checksum(body, crcTable)
		if computed != storedCRC {
			return nil, ErrChecksumMismatch
		}
	}

	if string(body[:len(magic)]) != magic {
		return nil, ErrBadMagic
	}
	versionStr := string(body[len(magic):headerLen])
	version, err := strconv.Atoi(versionStr)
	if err != nil {
		return nil, fmt.Errorf("%w: non-numeric version %q", ErrBadMagic, versionStr)
	}

	cursor := bytes.NewReader(body[headerLen:])
	doc := &Document{Version: version, Aux: make(map[string]string)}

	var pendingExpireMs int64
	for {
		op, err := readByte(cursor)
		if err == io.EOF {
			return nil, ErrTruncated // stream ended without a terminator opcode
		}
		if err != nil {
			return nil, err
		}
		switch op {
		case opEOF:
			return doc, nil
		case opAux:
			key, err := readString(cursor)
			if err != nil {
				return nil, err
			}
			val, err := readString(cursor)
			if err != nil {
				return nil, err
			}
			doc.Aux[string(key)] = string(val)
		case opSelectDB:
			if _, err := readLength(cursor); err != nil {
				return nil, err
			}
		case opResizeDB:
			if _, err := readLength(cursor); err != nil {
				return nil, err
			}
			if _, err := readLength(cursor); err != nil {
				return nil, err
			}
		case opExpireSec:
			var buf [4]byte
			if _, err := io.ReadFull(cursor, buf[:]); err != nil {
				return nil, err
			}
			pendingExpireMs = int64(binary.LittleEndian.Uint32(buf[:])) * 1000
		case opExpireMs:
			var buf [8]byte
			if _, err := io.ReadFull(cursor, buf[:]); err != nil {
				return nil, err
			}
			pendingExpireMs = int64(binary.LittleEndian.Uint64(buf[:]))
		default:
			rec, err := readRecord(cursor, op, pendingExpireMs)
			if err != nil {
				return nil, err
			}
			pendingExpireMs = 0
			doc.Records = append(doc.Records, rec)
		}
	}
}

func readRecord(r *bytes.Reader, typeByte byte, expiresAt int64) (Record, error) {
	keyBytes, err := readString(r)
	if err != nil {
		return Record{}, err
	}
	rec := Record{Key: string(keyBytes), ExpiresAt: expiresAt}

	switch typeByte {
	case typeString:
		rec.Kind = keyspace.KindString
		rec.Str, err = readString(r)
		return rec, err
	case typeList:
		rec.Kind = keyspace.KindList
		rec.List, err = readStringList(r)
		return rec, err
	case typeListQuicklist:
		rec.Kind = keyspace.KindList
		rec.List, err = readQuicklist(r)
		return rec, err
	case typeSet:
		rec.Kind = keyspace.KindSet
		rec.Set, err = readStringList(r)
		return rec, err
	case typeHash:
		rec.Kind = keyspace.KindHash
		rec.Hash, err = readHash(r)
		return rec, err
	case typeHashZiplist:
		rec.Kind = keyspace.KindHash
		rec.Hash, err = readZiplistHash(r)
		return rec, err
	case typeZSet:
		rec.Kind = keyspace.KindSortedSet
		rec.ZSet, err = readZSetASCII(r)
		return rec, err
	case typeZSet2:
		rec.Kind = keyspace.KindSortedSet
		rec.ZSet, err = readZSetBinary(r)
		return rec, err
	default:
		return Record{}, errUnsupportedType(typeByte)
	}
}

func readStringList(r *bytes.Reader) ([][]byte, error) {
	count, err := readLength(r)
	if err != nil {
		return nil, err
	}
	if count.Special {
		return nil, fmt.Errorf("rdb: expected plain length for collection size")
	}
	out := make([][]byte, 0, count.Length)
	for i := uint64(0); i < count.Length; i++ {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// readQuicklist reads a quicklist: a plain-length count of ziplist-encoded
// nodes (each itself a length-prefixed string blob), flattened into one
// element slice.
func readQuicklist(r *bytes.Reader) ([][]byte, error) {
	nodeCount, err := readLength(r)
	if err != nil {
		return nil, err
	}
	if nodeCount.Special {
		return nil, fmt.Errorf("rdb: expected plain length for quicklist node count")
	}
	var out [][]byte
	for i := uint64(0); i < nodeCount.Length; i++ {
		blob, err := readString(r)
		if err != nil {
			return nil, err
		}
		items, err := decodeZiplist(blob)
		if err != nil {
			return nil, fmt.Errorf("rdb: quicklist node %d: %w", i, err)
		}
		out = append(out, items...)
	}
	return out, nil
}

// readZiplistHash reads a single ziplist blob and pairs up its flat entries
// into hash fields/values.
func readZiplistHash(r *bytes.Reader) (map[string][]byte, error) {
	blob, err := readString(r)
	if err != nil {
		return nil, err
	}
	items, err := decodeZiplist(blob)
	if err != nil {
		return nil, err
	}
	if len(items)%2 != 0 {
		return nil, fmt.Errorf("rdb: ziplist-encoded hash has an odd number of entries")
	}
	out := make(map[string][]byte, len(items)/2)
	for i := 0; i < len(items); i += 2 {
		out[string(items[i])] = items[i+1]
	}
	return out, nil
}

func readHash(r *bytes.Reader) (map[string][]byte, error) {
	count, err := readLength(r)
	if err != nil {
		return nil, err
	}
	if count.Special {
		return nil, fmt.Errorf("rdb: expected plain length for hash size")
	}
	out := make(map[string][]byte, count.Length)
	for i := uint64(0); i < count.Length; i++ {
		field, err := readString(r)
		if err != nil {
			return nil, err
		}
		val, err := readString(r)
		if err != nil {
			return nil, err
		}
		out[string(field)] = val
	}
	return out, nil
}

func readZSetASCII(r *bytes.Reader) ([]keyspace.ZRangeMember, error) {
	count, err := readLength(r)
	if err != nil {
		return nil, err
	}
	if count.Special {
		return nil, fmt.Errorf("rdb: expected plain length for zset size")
	}
	out := make([]keyspace.ZRangeMember, 0, count.Length)
	for i := uint64(0); i < count.Length; i++ {
		member, err := readString(r)
		if err != nil {
			return nil, err
		}
		scoreStr, err := readString(r)
		if err != nil {
			return nil, err
		}
		score, err := strconv.ParseFloat(string(scoreStr), 64)
		if err != nil {
			return nil, fmt.Errorf("rdb: invalid ASCII zset score %q: %w", scoreStr, err)
		}
		out = append(out, keyspace.ZRangeMember{Member: string(member), Score: score})
	}
	return out, nil
}

func readZSetBinary(r *bytes.Reader) ([]keyspace.ZRangeMember, error) {
	count, err := readLength(r)
	if err != nil {
		return nil, err
	}
	if count.Special {
		return nil, fmt.Errorf("rdb: expected plain length for zset size")
	}
	out := make([]keyspace.ZRangeMember, 0, count.Length)
	for i := uint64(0); i < count.Length; i++ {
		member, err := readString(r)
		if err != nil {
			return nil, err
		}
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		score := math.Float64frombits(binary.LittleEndian.Uint64(buf[:]))
		out = append(out, keyspace.ZRangeMember{Member: string(member), Score: score})
	}
	return out, nil
}

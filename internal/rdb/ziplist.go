package rdb

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

// decodeZiplist parses a single ziplist blob (the packed, single-allocation
// list/hash encoding older Redis versions emit) into its flat sequence of
// entries. Each entry is returned as its string form; callers pair them up
// for hash fields or leave them flat for lists. Anything this decoder
// cannot positively identify — an unrecognised encoding byte, a length
// that runs past the blob — is an error rather than a best-effort guess,
// per the reject-rather-than-guess policy recorded for RDB corner cases.
func decodeZiplist(blob []byte) ([][]byte, error) {
	const zlHeaderLen = 4 + 4 + 2
	if len(blob) < zlHeaderLen+1 {
		return nil, fmt.Errorf("rdb: ziplist blob too short")
	}
	pos := zlHeaderLen
	var out [][]byte
	for pos < len(blob) {
		if blob[pos] == 0xFF {
			return out, nil
		}
		prevLenSize := 1
		if blob[pos] == 0xFE {
			prevLenSize = 5
		}
		pos += prevLenSize
		if pos >= len(blob) {
			return nil, fmt.Errorf("rdb: truncated ziplist entry header")
		}

		enc := blob[pos]
		switch {
		case enc>>6 == 0: // 00xxxxxx: 6-bit string length
			n := int(enc & 0x3F)
			pos++
			if pos+n > len(blob) {
				return nil, fmt.Errorf("rdb: truncated ziplist 6-bit string")
			}
			out = append(out, blob[pos:pos+n])
			pos += n
		case enc>>6 == 1: // 01xxxxxx xxxxxxxx: 14-bit string length
			if pos+1 >= len(blob) {
				return nil, fmt.Errorf("rdb: truncated ziplist 14-bit length")
			}
			n := int(enc&0x3F)<<8 | int(blob[pos+1])
			pos += 2
			if pos+n > len(blob) {
				return nil, fmt.Errorf("rdb: truncated ziplist 14-bit string")
			}
			out = append(out, blob[pos:pos+n])
			pos += n
		case enc == 0x80: // 10000000 + 4-byte big-endian length
			if pos+5 > len(blob) {
				return nil, fmt.Errorf("rdb: truncated ziplist 32-bit length")
			}
			n := int(binary.BigEndian.Uint32(blob[pos+1 : pos+5]))
			pos += 5
			if pos+n > len(blob) {
				return nil, fmt.Errorf("rdb: truncated ziplist 32-bit string")
			}
			out = append(out, blob[pos:pos+n])
			pos += n
		case enc == 0xC0: // int16
			pos++
			if pos+2 > len(blob) {
				return nil, fmt.Errorf("rdb: truncated ziplist int16")
			}
			v := int16(binary.LittleEndian.Uint16(blob[pos : pos+2]))
			out = append(out, []byte(strconv.FormatInt(int64(v), 10)))
			pos += 2
		case enc == 0xD0: // int32
			pos++
			if pos+4 > len(blob) {
				return nil, fmt.Errorf("rdb: truncated ziplist int32")
			}
			v := int32(binary.LittleEndian.Uint32(blob[pos : pos+4]))
			out = append(out, []byte(strconv.FormatInt(int64(v), 10)))
			pos += 4
		case enc == 0xE0: // int64
			pos++
			if pos+8 > len(blob) {
				return nil, fmt.Errorf("rdb: truncated ziplist int64")
			}
			v := int64(binary.LittleEndian.Uint64(blob[pos : pos+8]))
			out = append(out, []byte(strconv.FormatInt(v, 10)))
			pos += 8
		case enc == 0xFE: // 8-bit int
			pos++
			if pos+1 > len(blob) {
				return nil, fmt.Errorf("rdb: truncated ziplist int8")
			}
			v := int8(blob[pos])
			out = append(out, []byte(strconv.FormatInt(int64(v), 10)))
			pos++
		case enc >= 0xF1 && enc <= 0xFD: // 4-bit immediate integer, value+1 encoded
			v := int64(enc&0x0F) - 1
			out = append(out, []byte(strconv.FormatInt(v, 10)))
			pos++
		default:
			return nil, fmt.Errorf("rdb: unrecognised ziplist encoding byte 0x%02x", enc)
		}
	}
	return nil, fmt.Errorf("rdb: ziplist missing 0xFF terminator")
}

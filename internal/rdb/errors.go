package rdb

import (
	"errors"
	"fmt"

	"coolcache/internal/keyspace"
)

// ErrBadMagic is returned when a dump doesn't begin with "REDIS" + 4 version digits.
var ErrBadMagic = errors.New("rdb: bad magic header")

// ErrChecksumMismatch is returned when the trailing CRC64 doesn't match the
// bytes preceding it. A non-zero stored checksum is required to match;
// a stored checksum of zero is tolerated (some Redis
// builds disable RDB checksums entirely).
var ErrChecksumMismatch = errors.New("rdb: CRC64 checksum mismatch")

// ErrTruncated is returned when the stream ends before a complete record.
var ErrTruncated = errors.New("rdb: truncated stream")

func errUnsupportedKind(k keyspace.Kind) error {
	return fmt.Errorf("rdb: cannot serialize value of kind %s", k)
}

func errUnsupportedType(t byte) error {
	return fmt.Errorf("rdb: unsupported type byte 0x%02x", t)
}

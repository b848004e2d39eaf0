// Package keyspace implements CoolCache's typed key-value store: strings,
// lists, sets, hashes and sorted sets, each keyed by name with an optional
// expiry, mirroring the layered store/dirty-tracking shape of
// a per-entity-kind state store adapted to a single
// general-purpose map instead of one struct per entity kind.
package keyspace

import (
	"errors"
	"time"
)

// Kind identifies the concrete shape stored under a key.
type Kind int

const (
	KindString Kind = iota
	KindList
	KindSet
	KindHash
	KindSortedSet
	KindStream
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindSet:
		return "set"
	case KindHash:
		return "hash"
	case KindSortedSet:
		return "zset"
	case KindStream:
		return "stream"
	default:
		return "none"
	}
}

// ErrWrongType is returned when a command targets a key holding a
// different kind of value, matching RESP's WRONGTYPE error family.
var ErrWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

// ErrNoSuchKey names the missing-key condition. No Store method returns it;
// they report a missing key through their ok or exists results.
var ErrNoSuchKey = errors.New("no such key")

// zmember is one member of a sorted set, kept in a slice sorted by
// (Score, Member) so range queries walk it directly.
type zmember struct {
	Member string
	Score  float64
}

// entry is the internal, lock-protected representation of a single key.
// Only the field matching Kind is populated; the rest are nil/zero.
type entry struct {
	kind Kind

	str    []byte
	list   [][]byte
	set    map[string]struct{}
	hash   map[string][]byte
	zset   []zmember   // sorted by (Score, Member)
	zindex map[string]int // member -> position in zset, kept in sync on every mutation

	stream *streamValue

	expiresAt time.Time // zero value means no TTL
}

func (e *entry) hasExpiry() bool { return !e.expiresAt.IsZero() }

func (e *entry) expired(now time.Time) bool {
	return e.hasExpiry() && !now.Before(e.expiresAt)
}

// cloneBytes returns a copy of b safe to hand to a caller outside the lock.
// Lists/sets/hashes/zsets are small enough in practice that a shallow byte
// copy is cheap and avoids aliasing the caller's slice into live storage,
// the same defensive-copy discipline a per-entity state store uses.
func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

package keyspace

import "fmt"

// StreamID is a monotonically increasing (ms, seq) pair identifying one
// stream entry, matching Redis's <milliseconds>-<sequence> addressing.
type StreamID struct {
	Ms  uint64
	Seq uint64
}

// Compare returns -1, 0 or 1 as id orders before, equal to, or after other.
func (id StreamID) Compare(other StreamID) int {
	switch {
	case id.Ms < other.Ms:
		return -1
	case id.Ms > other.Ms:
		return 1
	case id.Seq < other.Seq:
		return -1
	case id.Seq > other.Seq:
		return 1
	default:
		return 0
	}
}

func (id StreamID) String() string {
	return fmt.Sprintf("%d-%d", id.Ms, id.Seq)
}

// StreamEntry is one appended record: an ID plus an ordered field/value list
// (Redis streams preserve field insertion order, so this is a slice of pairs
// rather than a map).
type StreamEntry struct {
	ID     StreamID
	Fields []StreamField
}

// StreamField is one field/value pair of a stream entry.
type StreamField struct {
	Field string
	Value []byte
}

// streamValue is the storage behind a KindStream entry: an append-only,
// ID-ordered log plus the last-assigned ID needed to enforce monotonicity
// even after every entry up to that point has been trimmed.
type streamValue struct {
	entries []StreamEntry
	lastID  StreamID
}

// Append adds entry e, which must already have a resolved, monotonically
// increasing ID (resolution happens in the streams package since it owns
// the blocking-waiter bookkeeping that must observe the same ID).
func (s *streamValue) Append(e StreamEntry) {
	s.entries = append(s.entries, e)
	s.lastID = e.ID
}

// Range returns entries with start <= ID <= end, inclusive, in ID order.
func (s *streamValue) Range(start, end StreamID, count int) []StreamEntry {
	var out []StreamEntry
	for _, e := range s.entries {
		if e.ID.Compare(start) < 0 {
			continue
		}
		if e.ID.Compare(end) > 0 {
			break
		}
		out = append(out, e)
		if count > 0 && len(out) >= count {
			break
		}
	}
	return out
}

// After returns entries with ID strictly greater than since, up to count
// (0 means unbounded), the shape XREAD needs.
func (s *streamValue) After(since StreamID, count int) []StreamEntry {
	var out []StreamEntry
	for _, e := range s.entries {
		if e.ID.Compare(since) <= 0 {
			continue
		}
		out = append(out, e)
		if count > 0 && len(out) >= count {
			break
		}
	}
	return out
}

// LastID returns the most recently assigned ID, or the zero ID if the
// stream has never been appended to.
func (s *streamValue) LastID() StreamID { return s.lastID }

// Len reports the number of entries currently retained.
func (s *streamValue) Len() int { return len(s.entries) }

package rdb

import (
	"bytes"
	"testing"

	"coolcache/internal/keyspace"
)

func TestWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.WriteAux("redis-ver", "7.4.0"); err != nil {
		t.Fatalf("WriteAux: %v", err)
	}
	if err := w.WriteSelectDB(0); err != nil {
		t.Fatalf("WriteSelectDB: %v", err)
	}
	if err := w.WriteResizeDB(3, 1); err != nil {
		t.Fatalf("WriteResizeDB: %v", err)
	}
	records := []Record{
		{Key: "greeting", Kind: keyspace.KindString, Str: []byte("hello world")},
		{Key: "withttl", Kind: keyspace.KindString, Str: []byte("v"), ExpiresAt: 1893456000000},
		{Key: "mylist", Kind: keyspace.KindList, List: [][]byte{[]byte("a"), []byte("b"), []byte("c")}},
		{Key: "myset", Kind: keyspace.KindSet, Set: [][]byte{[]byte("x"), []byte("y")}},
		{Key: "myhash", Kind: keyspace.KindHash, Hash: map[string][]byte{"f1": []byte("v1"), "f2": []byte("v2")}},
		{Key: "myzset", Kind: keyspace.KindSortedSet, ZSet: []keyspace.ZRangeMember{
			{Member: "a", Score: 1.5}, {Member: "b", Score: 2.25},
		}},
	}
	for _, rec := range records {
		if err := w.WriteRecord(rec); err != nil {
			t.Fatalf("WriteRecord(%s): %v", rec.Key, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	doc, err := Read(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if doc.Aux["redis-ver"] != "7.4.0" {
		t.Fatalf("unexpected aux field: %#v", doc.Aux)
	}
	if len(doc.Records) != len(records) {
		t.Fatalf("expected %d records, got %d", len(records), len(doc.Records))
	}

	byKey := make(map[string]Record, len(doc.Records))
	for _, r := range doc.Records {
		byKey[r.Key] = r
	}
	if string(byKey["greeting"].Str) != "hello world" {
		t.Fatalf("unexpected string record: %#v", byKey["greeting"])
	}
	if byKey["withttl"].ExpiresAt != 1893456000000 {
		t.Fatalf("expected expiry to round-trip, got %d", byKey["withttl"].ExpiresAt)
	}
	list := byKey["mylist"].List
	if len(list) != 3 || string(list[1]) != "b" {
		t.Fatalf("unexpected list record: %#v", list)
	}
	if len(byKey["myset"].Set) != 2 {
		t.Fatalf("unexpected set record: %#v", byKey["myset"].Set)
	}
	if string(byKey["myhash"].Hash["f2"]) != "v2" {
		t.Fatalf("unexpected hash record: %#v", byKey["myhash"].Hash)
	}
	zset := byKey["myzset"].ZSet
	if len(zset) != 2 || zset[0].Score != 1.5 || zset[1].Score != 2.25 {
		t.Fatalf("unexpected zset record: %#v", zset)
	}
}

func TestReadRejectsBadMagic(t *testing.T) {
	// A zero CRC trailer skips the checksum, so the magic check decides.
	_, err := Read(bytes.NewReader(append([]byte("NOTREDIS0011garbage"), make([]byte, 8)...)))
	if err != ErrBadMagic {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
}

func TestReadRejectsChecksumMismatch(t *testing.T) {
	var buf bytes.Buffer
	w, _ := NewWriter(&buf)
	w.WriteRecord(Record{Key: "k", Kind: keyspace.KindString, Str: []byte("v")})
	w.Close()

	corrupted := buf.Bytes()
	corrupted[len(corrupted)-1] ^= 0xFF // flip a bit in the stored CRC
	if _, err := Read(bytes.NewReader(corrupted)); err != ErrChecksumMismatch {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestReadRejectsTruncatedStream(t *testing.T) {
	var buf bytes.Buffer
	w, _ := NewWriter(&buf)
	w.WriteRecord(Record{Key: "k", Kind: keyspace.KindString, Str: []byte("v")})
	w.Close()

	truncated := buf.Bytes()[:buf.Len()-4]
	if _, err := Read(bytes.NewReader(truncated)); err == nil {
		t.Fatalf("expected error for truncated stream")
	}
}

func TestDecodeZiplistStrings(t *testing.T) {
	// Hand-built ziplist: header (zlbytes, zltail, zllen — values irrelevant
	// to this decoder) + two 6-bit-length string entries + terminator.
	blob := []byte{
		0, 0, 0, 0, // zlbytes (unused by decoder)
		0, 0, 0, 0, // zltail (unused by decoder)
		0, 0, // zllen (unused by decoder)
		0x00, 0x03, 'f', '0', '0', // prevlen=0, 6-bit len=3, "f00"
		0x05, 0x03, 'b', 'a', 'r', // prevlen=5, 6-bit len=3, "bar"
		0xFF,
	}
	items, err := decodeZiplist(blob)
	if err != nil {
		t.Fatalf("decodeZiplist: %v", err)
	}
	if len(items) != 2 || string(items[0]) != "f00" || string(items[1]) != "bar" {
		t.Fatalf("unexpected ziplist items: %v", items)
	}
}

func TestDecodeZiplistRejectsUnknownEncoding(t *testing.T) {
	blob := []byte{
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		0x00, 0xF0, // 24-bit integer encoding, not supported by this decoder
	}
	if _, err := decodeZiplist(blob); err == nil {
		t.Fatalf("expected error for unrecognised encoding byte")
	}
}

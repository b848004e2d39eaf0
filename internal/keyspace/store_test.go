package keyspace

import (
	"testing"
	"time"
)

func TestSetGetRoundTrip(t *testing.T) {
	s := NewStore()
	if _, err := s.Incr("x", 1); err != nil {
		t.Fatalf("Incr on absent key: %v", err)
	}
	if _, err := s.Set("foo", []byte("bar"), SetOptions{}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	val, ok, err := s.Get("foo")
	if err != nil || !ok {
		t.Fatalf("Get after Set: val=%q ok=%v err=%v", val, ok, err)
	}
	if string(val) != "bar" {
		t.Fatalf("expected bar, got %q", val)
	}
}

func TestSetNXXX(t *testing.T) {
	s := NewStore()
	applied, _ := s.Set("k", []byte("1"), SetOptions{OnlyIfSet: true})
	if applied {
		t.Fatalf("XX on absent key should not apply")
	}
	applied, _ = s.Set("k", []byte("1"), SetOptions{OnlyIfAbs: true})
	if !applied {
		t.Fatalf("NX on absent key should apply")
	}
	applied, _ = s.Set("k", []byte("2"), SetOptions{OnlyIfAbs: true})
	if applied {
		t.Fatalf("NX on existing key should not apply")
	}
}

func TestWrongType(t *testing.T) {
	s := NewStore()
	if _, err := s.LPush("k", []byte("a")); err != nil {
		t.Fatalf("LPush: %v", err)
	}
	if _, _, err := s.Get("k"); err != ErrWrongType {
		t.Fatalf("expected ErrWrongType, got %v", err)
	}
}

func TestExpiryLazyDeletion(t *testing.T) {
	s := NewStore()
	fakeNow := time.Unix(1000, 0)
	s.SetNow(func() time.Time { return fakeNow })
	s.Set("k", []byte("v"), SetOptions{HasTTL: true, TTL: time.Second})
	if !s.Exists("k") {
		t.Fatalf("key should exist before expiry")
	}
	fakeNow = fakeNow.Add(2 * time.Second)
	if s.Exists("k") {
		t.Fatalf("key should have expired")
	}
	if len(s.Keys("*")) != 0 {
		t.Fatalf("expired key should not show up in KEYS")
	}
}

func TestListPushPop(t *testing.T) {
	s := NewStore()
	s.RPush("l", []byte("a"), []byte("b"), []byte("c"))
	s.LPush("l", []byte("z"))
	vals, err := s.LRange("l", 0, -1)
	if err != nil {
		t.Fatalf("LRange: %v", err)
	}
	want := []string{"z", "a", "b", "c"}
	if len(vals) != len(want) {
		t.Fatalf("unexpected list: %v", vals)
	}
	for i, v := range want {
		if string(vals[i]) != v {
			t.Fatalf("index %d: want %q got %q", i, v, vals[i])
		}
	}
	popped, ok, err := s.LPop("l", 2)
	if err != nil || !ok {
		t.Fatalf("LPop: %v %v", ok, err)
	}
	if string(popped[0]) != "z" || string(popped[1]) != "a" {
		t.Fatalf("unexpected LPop result: %v", popped)
	}
}

func TestSetMembers(t *testing.T) {
	s := NewStore()
	added, _ := s.SAdd("s", []byte("a"), []byte("b"), []byte("a"))
	if added != 2 {
		t.Fatalf("expected 2 new members, got %d", added)
	}
	ok, _ := s.SIsMember("s", []byte("a"))
	if !ok {
		t.Fatalf("expected a to be a member")
	}
	removed, _ := s.SRem("s", []byte("a"))
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
}

func TestHash(t *testing.T) {
	s := NewStore()
	created, _ := s.HSet("h", map[string][]byte{"f1": []byte("v1")})
	if created != 1 {
		t.Fatalf("expected 1 created field, got %d", created)
	}
	val, ok, _ := s.HGet("h", "f1")
	if !ok || string(val) != "v1" {
		t.Fatalf("unexpected HGet result: %q %v", val, ok)
	}
	all, _ := s.HGetAll("h")
	if len(all) != 1 {
		t.Fatalf("expected 1 field in HGETALL, got %d", len(all))
	}
}

func TestZSetOrdering(t *testing.T) {
	s := NewStore()
	s.ZAdd("z", map[string]float64{"a": 3, "b": 1, "c": 2})
	members, err := s.ZRange("z", 0, -1)
	if err != nil {
		t.Fatalf("ZRange: %v", err)
	}
	want := []string{"b", "c", "a"}
	for i, m := range want {
		if members[i].Member != m {
			t.Fatalf("index %d: want %q got %q", i, m, members[i].Member)
		}
	}
	rank, ok, _ := s.ZRank("z", "c")
	if !ok || rank != 1 {
		t.Fatalf("expected rank 1 for c, got %d ok=%v", rank, ok)
	}
}

func TestGlobMatch(t *testing.T) {
	cases := []struct {
		pattern, name string
		want          bool
	}{
		{"*", "anything", true},
		{"foo*", "foobar", true},
		{"foo*", "barfoo", false},
		{"h?llo", "hello", true},
		{"h?llo", "hllo", false},
		{"h[ae]llo", "hello", true},
		{"h[ae]llo", "hillo", false},
		{"h[^e]llo", "hallo", true},
		{"h[^e]llo", "hello", false},
		{"[a-c]at", "bat", true},
		{"[a-c]at", "dat", false},
	}
	for _, c := range cases {
		if got := MatchGlob(c.pattern, c.name); got != c.want {
			t.Errorf("MatchGlob(%q, %q) = %v, want %v", c.pattern, c.name, got, c.want)
		}
	}
}

func TestStreamAppendMonotonic(t *testing.T) {
	s := NewStore()
	resolve := func(last StreamID) (StreamID, error) {
		return StreamID{Ms: last.Ms + 1, Seq: 0}, nil
	}
	id1, err := s.StreamAppend("st", []StreamField{{Field: "f", Value: []byte("1")}}, resolve)
	if err != nil {
		t.Fatalf("first append: %v", err)
	}
	id2, err := s.StreamAppend("st", []StreamField{{Field: "f", Value: []byte("2")}}, resolve)
	if err != nil {
		t.Fatalf("second append: %v", err)
	}
	if id2.Compare(id1) <= 0 {
		t.Fatalf("expected id2 > id1, got %v <= %v", id2, id1)
	}
	entries, err := s.StreamAfter("st", id1, 0)
	if err != nil {
		t.Fatalf("StreamAfter: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != id2 {
		t.Fatalf("unexpected StreamAfter result: %#v", entries)
	}
}

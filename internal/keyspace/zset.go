package keyspace

import "sort"

// ZAdd adds or updates members with the given scores in the sorted set at
// key, creating it if absent, and returns how many members were newly
// added (score updates to existing members don't count).
func (s *Store) ZAdd(key string, members map[string]float64) (added int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindSortedSet)
	if err != nil {
		return 0, err
	}
	if !exists {
		e = &entry{kind: KindSortedSet, zindex: make(map[string]int)}
		s.entries[key] = e
	}
	for member, score := range members {
		if idx, present := e.zindex[member]; present {
			e.zset[idx].Score = score
		} else {
			e.zset = append(e.zset, zmember{Member: member, Score: score})
			added++
		}
	}
	resortZSet(e)
	s.bumpChanges()
	return added, nil
}

// resortZSet restores the (Score, Member) ordering invariant and rebuilds
// the member->index lookup after any mutation.
func resortZSet(e *entry) {
	sort.Slice(e.zset, func(i, j int) bool {
		if e.zset[i].Score != e.zset[j].Score {
			return e.zset[i].Score < e.zset[j].Score
		}
		return e.zset[i].Member < e.zset[j].Member
	})
	for i, m := range e.zset {
		e.zindex[m.Member] = i
	}
}

// ZRem removes members from the sorted set at key, returning how many were
// actually present.
func (s *Store) ZRem(key string, members ...string) (removed int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindSortedSet)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}
	toRemove := make(map[string]struct{}, len(members))
	for _, m := range members {
		if _, present := e.zindex[m]; present {
			toRemove[m] = struct{}{}
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	kept := e.zset[:0]
	for _, m := range e.zset {
		if _, drop := toRemove[m.Member]; !drop {
			kept = append(kept, m)
		}
	}
	e.zset = kept
	for member := range e.zindex {
		delete(e.zindex, member)
	}
	for i, m := range e.zset {
		e.zindex[m.Member] = i
	}
	if len(e.zset) == 0 {
		delete(s.entries, key)
	}
	s.bumpChanges()
	return removed, nil
}

// ZScore returns the score of member in the sorted set at key.
func (s *Store) ZScore(key, member string) (score float64, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindSortedSet)
	if err != nil {
		return 0, false, err
	}
	if !exists {
		return 0, false, nil
	}
	idx, present := e.zindex[member]
	if !present {
		return 0, false, nil
	}
	return e.zset[idx].Score, true, nil
}

// ZRank returns member's 0-based rank by ascending score.
func (s *Store) ZRank(key, member string) (rank int, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindSortedSet)
	if err != nil {
		return 0, false, err
	}
	if !exists {
		return 0, false, nil
	}
	idx, present := e.zindex[member]
	if !present {
		return 0, false, nil
	}
	return idx, true, nil
}

// ZCard returns the number of members in the sorted set at key.
func (s *Store) ZCard(key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindSortedSet)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}
	return len(e.zset), nil
}

// ZRangeMember pairs a member with its score for range query results.
type ZRangeMember struct {
	Member string
	Score  float64
}

// ZRange returns members in rank range [start, stop] (Redis-style negative
// indices from the tail), ascending by score.
func (s *Store) ZRange(key string, start, stop int) ([]ZRangeMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindSortedSet)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	n := len(e.zset)
	start, stop = normalizeRange(start, stop, n)
	if start > stop {
		return nil, nil
	}
	out := make([]ZRangeMember, 0, stop-start+1)
	for i := start; i <= stop; i++ {
		out = append(out, ZRangeMember{Member: e.zset[i].Member, Score: e.zset[i].Score})
	}
	return out, nil
}

// ZRangeByScore returns members with min <= score <= max, ascending.
func (s *Store) ZRangeByScore(key string, min, max float64) ([]ZRangeMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindSortedSet)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	var out []ZRangeMember
	for _, m := range e.zset {
		if m.Score < min {
			continue
		}
		if m.Score > max {
			break
		}
		out = append(out, ZRangeMember{Member: m.Member, Score: m.Score})
	}
	return out, nil
}

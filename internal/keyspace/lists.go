package keyspace

// LPush prepends values (in argument order, so the last argument ends up
// closest to the head) to the list at key, creating it if absent, and
// returns the resulting length.
func (s *Store) LPush(key string, values ...[]byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindList)
	if err != nil {
		return 0, err
	}
	if !exists {
		e = &entry{kind: KindList}
		s.entries[key] = e
	}
	for _, v := range values {
		e.list = append([][]byte{cloneBytes(v)}, e.list...)
	}
	s.bumpChanges()
	return len(e.list), nil
}

// RPush appends values to the list at key, creating it if absent, and
// returns the resulting length.
func (s *Store) RPush(key string, values ...[]byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindList)
	if err != nil {
		return 0, err
	}
	if !exists {
		e = &entry{kind: KindList}
		s.entries[key] = e
	}
	for _, v := range values {
		e.list = append(e.list, cloneBytes(v))
	}
	s.bumpChanges()
	return len(e.list), nil
}

// LPop removes and returns up to count elements from the head of the list.
// ok is false if the key does not exist.
func (s *Store) LPop(key string, count int) (vals [][]byte, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindList)
	if err != nil {
		return nil, false, err
	}
	if !exists || len(e.list) == 0 {
		return nil, false, nil
	}
	if count > len(e.list) {
		count = len(e.list)
	}
	vals = e.list[:count]
	e.list = e.list[count:]
	if len(e.list) == 0 {
		delete(s.entries, key)
	}
	s.bumpChanges()
	return vals, true, nil
}

// RPop removes and returns up to count elements from the tail of the list.
func (s *Store) RPop(key string, count int) (vals [][]byte, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindList)
	if err != nil {
		return nil, false, err
	}
	if !exists || len(e.list) == 0 {
		return nil, false, nil
	}
	if count > len(e.list) {
		count = len(e.list)
	}
	n := len(e.list)
	tail := e.list[n-count:]
	// Popped values come back in pop order: the list's last element first.
	vals = make([][]byte, count)
	for i := range tail {
		vals[i] = tail[len(tail)-1-i]
	}
	e.list = e.list[:n-count]
	if len(e.list) == 0 {
		delete(s.entries, key)
	}
	s.bumpChanges()
	return vals, true, nil
}

// LLen returns the length of the list at key, 0 if absent.
func (s *Store) LLen(key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindList)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}
	return len(e.list), nil
}

// LRange returns a defensive copy of elements in [start, stop], Redis-style
// negative indices counting from the tail, clamped to the list bounds.
func (s *Store) LRange(key string, start, stop int) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindList)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	n := len(e.list)
	start, stop = normalizeRange(start, stop, n)
	if start > stop {
		return nil, nil
	}
	out := make([][]byte, 0, stop-start+1)
	for i := start; i <= stop; i++ {
		out = append(out, cloneBytes(e.list[i]))
	}
	return out, nil
}

// LIndex returns the element at index (Redis-style negative from the tail).
// ok is false if key is absent or index is out of range.
func (s *Store) LIndex(key string, index int) (val []byte, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindList)
	if err != nil {
		return nil, false, err
	}
	if !exists {
		return nil, false, nil
	}
	n := len(e.list)
	if index < 0 {
		index += n
	}
	if index < 0 || index >= n {
		return nil, false, nil
	}
	return cloneBytes(e.list[index]), true, nil
}

// LSet overwrites the element at index (Redis-style negative from the
// tail). ok is false if key is absent or index is out of range.
func (s *Store) LSet(key string, index int, value []byte) (ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindList)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	n := len(e.list)
	if index < 0 {
		index += n
	}
	if index < 0 || index >= n {
		return false, nil
	}
	e.list[index] = cloneBytes(value)
	s.bumpChanges()
	return true, nil
}

// normalizeRange converts Redis-style possibly-negative start/stop indices
// into clamped, in-bounds [0, n) indices.
func normalizeRange(start, stop, n int) (int, int) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	return start, stop
}

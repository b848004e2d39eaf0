package keyspace

// HSet sets the given field/value pairs on the hash at key, creating it if
// absent, returning how many fields were newly created (not overwritten).
func (s *Store) HSet(key string, fields map[string][]byte) (created int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindHash)
	if err != nil {
		return 0, err
	}
	if !exists {
		e = &entry{kind: KindHash, hash: make(map[string][]byte)}
		s.entries[key] = e
	}
	for field, val := range fields {
		if _, present := e.hash[field]; !present {
			created++
		}
		e.hash[field] = cloneBytes(val)
	}
	s.bumpChanges()
	return created, nil
}

// HGet returns the value of field on the hash at key.
func (s *Store) HGet(key, field string) (val []byte, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindHash)
	if err != nil {
		return nil, false, err
	}
	if !exists {
		return nil, false, nil
	}
	v, present := e.hash[field]
	if !present {
		return nil, false, nil
	}
	return cloneBytes(v), true, nil
}

// HGetAll returns every field/value pair of the hash at key.
func (s *Store) HGetAll(key string) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindHash)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	out := make(map[string][]byte, len(e.hash))
	for f, v := range e.hash {
		out[f] = cloneBytes(v)
	}
	return out, nil
}

// HDel removes the given fields from the hash at key, returning how many
// were actually present.
func (s *Store) HDel(key string, fields ...string) (removed int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindHash)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}
	for _, f := range fields {
		if _, present := e.hash[f]; present {
			delete(e.hash, f)
			removed++
		}
	}
	if len(e.hash) == 0 {
		delete(s.entries, key)
	}
	if removed > 0 {
		s.bumpChanges()
	}
	return removed, nil
}

// HLen returns the number of fields in the hash at key.
func (s *Store) HLen(key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindHash)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}
	return len(e.hash), nil
}

// HExists reports whether field is present on the hash at key.
func (s *Store) HExists(key, field string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindHash)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	_, present := e.hash[field]
	return present, nil
}

// HKeys returns every field name of the hash at key.
func (s *Store) HKeys(key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindHash)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	out := make([]string, 0, len(e.hash))
	for f := range e.hash {
		out = append(out, f)
	}
	return out, nil
}

// HVals returns every value of the hash at key, in no particular order.
func (s *Store) HVals(key string) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindHash)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	out := make([][]byte, 0, len(e.hash))
	for _, v := range e.hash {
		out = append(out, cloneBytes(v))
	}
	return out, nil
}

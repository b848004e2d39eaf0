package keyspace

// SAdd adds members to the set at key, creating it if absent, returning how
// many were newly added.
func (s *Store) SAdd(key string, members ...[]byte) (added int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindSet)
	if err != nil {
		return 0, err
	}
	if !exists {
		e = &entry{kind: KindSet, set: make(map[string]struct{})}
		s.entries[key] = e
	}
	for _, m := range members {
		k := string(m)
		if _, present := e.set[k]; !present {
			e.set[k] = struct{}{}
			added++
		}
	}
	if added > 0 {
		s.bumpChanges()
	}
	return added, nil
}

// SRem removes members from the set at key, returning how many were removed.
func (s *Store) SRem(key string, members ...[]byte) (removed int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindSet)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}
	for _, m := range members {
		k := string(m)
		if _, present := e.set[k]; present {
			delete(e.set, k)
			removed++
		}
	}
	if len(e.set) == 0 {
		delete(s.entries, key)
	}
	if removed > 0 {
		s.bumpChanges()
	}
	return removed, nil
}

// SIsMember reports whether member is in the set at key.
func (s *Store) SIsMember(key string, member []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindSet)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	_, ok := e.set[string(member)]
	return ok, nil
}

// SMembers returns all members of the set at key in unspecified order.
func (s *Store) SMembers(key string) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindSet)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	out := make([][]byte, 0, len(e.set))
	for m := range e.set {
		out = append(out, []byte(m))
	}
	return out, nil
}

// SCard returns the number of members in the set at key.
func (s *Store) SCard(key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindSet)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}
	return len(e.set), nil
}

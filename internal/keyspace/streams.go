package keyspace

// StreamAppend resolves and assigns id (via resolve, invoked while holding
// the store lock so ID monotonicity is race-free across concurrent XADDs
// on the same key) and appends the resulting entry to the stream at key,
// creating it if absent. resolve receives the stream's last-assigned ID and
// must return a strictly greater one, or an error to abort the append.
func (s *Store) StreamAppend(key string, fields []StreamField, resolve func(last StreamID) (StreamID, error)) (StreamID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindStream)
	if err != nil {
		return StreamID{}, err
	}
	if !exists {
		e = &entry{kind: KindStream, stream: &streamValue{}}
		s.entries[key] = e
	}
	id, err := resolve(e.stream.LastID())
	if err != nil {
		return StreamID{}, err
	}
	e.stream.Append(StreamEntry{ID: id, Fields: fields})
	s.bumpChanges()
	return id, nil
}

// StreamRange returns entries of the stream at key with start <= ID <= end.
func (s *Store) StreamRange(key string, start, end StreamID, count int) ([]StreamEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindStream)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return e.stream.Range(start, end, count), nil
}

// StreamAfter returns entries of the stream at key with ID strictly greater
// than since, the shape XREAD polls for.
func (s *Store) StreamAfter(key string, since StreamID, count int) ([]StreamEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindStream)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return e.stream.After(since, count), nil
}

// StreamLastID returns the last-assigned ID of the stream at key, the zero
// ID if the key is absent.
func (s *Store) StreamLastID(key string) (StreamID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindStream)
	if err != nil {
		return StreamID{}, err
	}
	if !exists {
		return StreamID{}, nil
	}
	return e.stream.LastID(), nil
}

// StreamLen returns the number of entries retained in the stream at key.
func (s *Store) StreamLen(key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindStream)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}
	return e.stream.Len(), nil
}

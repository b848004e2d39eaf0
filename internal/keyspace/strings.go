package keyspace

import (
	"strconv"
	"time"
)

// Get returns a defensive copy of the string at key. ok is false if the key
// is absent or expired; a key holding another kind yields ErrWrongType.
func (s *Store) Get(key string) (val []byte, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindString)
	if err != nil {
		return nil, false, err
	}
	if !exists {
		return nil, false, nil
	}
	return cloneBytes(e.str), true, nil
}

// SetOptions mirrors the SET command's optional clauses.
type SetOptions struct {
	TTL       time.Duration // zero means no expiry
	HasTTL    bool
	KeepTTL   bool
	OnlyIfAbs bool // NX
	OnlyIfSet bool // XX
}

// Set stores value under key per opts, returning false if an NX/XX
// precondition prevented the write (the key is left untouched in that case).
func (s *Store) Set(key string, value []byte, opts SetOptions) (applied bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.lockedGet(key)
	if opts.OnlyIfAbs && exists {
		return false, nil
	}
	if opts.OnlyIfSet && !exists {
		return false, nil
	}

	// SET always overwrites regardless of the key's prior kind.
	e := &entry{kind: KindString, str: cloneBytes(value)}
	if opts.KeepTTL && exists {
		e.expiresAt = existing.expiresAt
	} else if opts.HasTTL {
		e.expiresAt = s.now().Add(opts.TTL)
	}
	s.entries[key] = e
	s.bumpChanges()
	return true, nil
}

// Append appends value to the string at key, creating it if absent, and
// returns the resulting length.
func (s *Store) Append(key string, value []byte) (newLen int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindString)
	if err != nil {
		return 0, err
	}
	if !exists {
		e = &entry{kind: KindString}
		s.entries[key] = e
	}
	e.str = append(e.str, value...)
	s.bumpChanges()
	return len(e.str), nil
}

// Incr adds delta to the integer value at key (defaulting to 0 if absent)
// and stores+returns the result. Returns an error if the existing value
// cannot be parsed as a base-10 integer.
func (s *Store) Incr(key string, delta int64) (result int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindString)
	if err != nil {
		return 0, err
	}
	var current int64
	if exists {
		current, err = strconv.ParseInt(string(e.str), 10, 64)
		if err != nil {
			return 0, errNotAnInteger
		}
	} else {
		e = &entry{kind: KindString}
		s.entries[key] = e
	}
	result = current + delta
	e.str = []byte(strconv.FormatInt(result, 10))
	s.bumpChanges()
	return result, nil
}

// StrLen returns the length of the string at key.
func (s *Store) StrLen(key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists, err := s.getTyped(key, KindString)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}
	return len(e.str), nil
}

var errNotAnIntegerText = "value is not an integer or out of range"

type valueError struct{ msg string }

func (v *valueError) Error() string { return v.msg }

var errNotAnInteger = &valueError{msg: errNotAnIntegerText}

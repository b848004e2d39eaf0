// Package streams layers XADD ID resolution and blocking XREAD wake-up on
// top of internal/keyspace's append-only stream storage. The wake-up
// bookkeeping is a per-key broadcast channel swapped out on every append,
// with context-cancellable waits: a one-shot broadcast rather than a
// standing subscription, since XREAD BLOCK is a single wait.
package streams

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"coolcache/internal/keyspace"
)

// ErrInvalidID is returned when an explicit XADD ID is malformed.
var ErrInvalidID = errors.New("ERR Invalid stream ID specified as stream command argument")

// ErrNotMonotonic is returned when an explicit XADD ID does not exceed the
// stream's last-assigned ID, matching Redis's ordering guarantee.
var ErrNotMonotonic = errors.New("ERR The ID specified in XADD is equal or smaller than the target stream top item")

// Engine coordinates stream appends and blocking reads against a keyspace
// Store. One Engine is shared by every connection.
type Engine struct {
	store *keyspace.Store

	mu      sync.Mutex
	waiters map[string]chan struct{} // key -> channel closed on next append
}

// NewEngine constructs a streams engine backed by store.
func NewEngine(store *keyspace.Store) *Engine {
	return &Engine{store: store, waiters: make(map[string]chan struct{})}
}

// ParseID parses a full "<ms>-<seq>" identifier.
func ParseID(s string) (keyspace.StreamID, error) {
	ms, seq, err := splitID(s)
	if err != nil {
		return keyspace.StreamID{}, err
	}
	if seq == "*" {
		return keyspace.StreamID{}, fmt.Errorf("%w: sequence wildcard not allowed here", ErrInvalidID)
	}
	msVal, err := strconv.ParseUint(ms, 10, 64)
	if err != nil {
		return keyspace.StreamID{}, ErrInvalidID
	}
	seqVal, err := strconv.ParseUint(seq, 10, 64)
	if err != nil {
		return keyspace.StreamID{}, ErrInvalidID
	}
	return keyspace.StreamID{Ms: msVal, Seq: seqVal}, nil
}

func splitID(s string) (ms, seq string, err error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) == 1 {
		return parts[0], "0", nil
	}
	if parts[0] == "" || parts[1] == "" {
		return "", "", ErrInvalidID
	}
	return parts[0], parts[1], nil
}

// Append resolves idSpec (a literal "ms-seq", "ms-*", or "*") against the
// stream's current last ID and appends fields, returning the assigned ID.
// nowMs supplies the current time for "*"/"ms-*" resolution so callers
// control the clock source (tests, replication replay).
func (eng *Engine) Append(key, idSpec string, fields []keyspace.StreamField, nowMs uint64) (keyspace.StreamID, error) {
	resolve := func(last keyspace.StreamID) (keyspace.StreamID, error) {
		id, err := resolveID(idSpec, last, nowMs)
		if err != nil {
			return keyspace.StreamID{}, err
		}
		if id.Compare(last) <= 0 {
			return keyspace.StreamID{}, ErrNotMonotonic
		}
		return id, nil
	}
	id, err := eng.store.StreamAppend(key, fields, resolve)
	if err != nil {
		return keyspace.StreamID{}, err
	}
	eng.wake(key)
	return id, nil
}

func resolveID(idSpec string, last keyspace.StreamID, nowMs uint64) (keyspace.StreamID, error) {
	if idSpec == "*" {
		return nextAutoID(last, nowMs), nil
	}
	ms, seq, err := splitID(idSpec)
	if err != nil {
		return keyspace.StreamID{}, err
	}
	msVal, err := strconv.ParseUint(ms, 10, 64)
	if err != nil {
		return keyspace.StreamID{}, ErrInvalidID
	}
	if seq == "*" {
		if msVal == last.Ms {
			return keyspace.StreamID{Ms: msVal, Seq: last.Seq + 1}, nil
		}
		return keyspace.StreamID{Ms: msVal, Seq: 0}, nil
	}
	seqVal, err := strconv.ParseUint(seq, 10, 64)
	if err != nil {
		return keyspace.StreamID{}, ErrInvalidID
	}
	return keyspace.StreamID{Ms: msVal, Seq: seqVal}, nil
}

// nextAutoID assigns the current wall-clock millisecond, bumping the
// sequence instead when two appends land in the same millisecond.
func nextAutoID(last keyspace.StreamID, nowMs uint64) keyspace.StreamID {
	if nowMs <= last.Ms {
		return keyspace.StreamID{Ms: last.Ms, Seq: last.Seq + 1}
	}
	return keyspace.StreamID{Ms: nowMs, Seq: 0}
}

// wake closes and replaces the waiter channel for key, releasing every
// goroutine currently blocked in Wait for that key.
func (eng *Engine) wake(key string) {
	eng.mu.Lock()
	if ch, ok := eng.waiters[key]; ok {
		close(ch)
	}
	delete(eng.waiters, key)
	eng.mu.Unlock()
}

func (eng *Engine) waiterFor(key string) chan struct{} {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	ch, ok := eng.waiters[key]
	if !ok {
		ch = make(chan struct{})
		eng.waiters[key] = ch
	}
	return ch
}

// Wait blocks until the stream at key has entries after since, ctx is
// cancelled (e.g. the BLOCK timeout elapses), or new data is appended.
// It returns the newly available entries, or none if ctx ended the wait.
func (eng *Engine) Wait(ctx context.Context, key string, since keyspace.StreamID) ([]keyspace.StreamEntry, error) {
	results, ok, err := eng.WaitAny(ctx, []string{key}, []keyspace.StreamID{since})
	if err != nil || !ok {
		return nil, err
	}
	return results[0], nil
}

// WaitAny blocks until any of keys has entries after its corresponding
// since ID, or ctx is cancelled. It returns a slice aligned with keys
// holding whatever entries each stream had when the call woke; ok is false
// if ctx ended the wait with nothing available. An append to any requested
// key wakes the call promptly, however many streams are being watched.
func (eng *Engine) WaitAny(ctx context.Context, keys []string, since []keyspace.StreamID) (results [][]keyspace.StreamEntry, ok bool, err error) {
	for {
		// Register every waiter before checking for data, so an append
		// racing the checks below still closes a channel this call holds.
		chans := make([]chan struct{}, len(keys))
		for i, key := range keys {
			chans[i] = eng.waiterFor(key)
		}

		results = make([][]keyspace.StreamEntry, len(keys))
		found := false
		for i, key := range keys {
			entries, err := eng.store.StreamAfter(key, since[i], 0)
			if err != nil {
				return nil, false, err
			}
			if len(entries) > 0 {
				results[i] = entries
				found = true
			}
		}
		if found {
			return results, true, nil
		}

		// Fan-in: funnel every key's one-shot wake into a shared channel so
		// the select below fires on whichever stream appends first.
		wake := make(chan struct{}, 1)
		stop := make(chan struct{})
		for _, ch := range chans {
			go func(ch chan struct{}) {
				select {
				case <-ch:
					select {
					case wake <- struct{}{}:
					default:
					}
				case <-stop:
				}
			}(ch)
		}

		select {
		case <-wake:
			close(stop)
			// Loop and re-check every key: more than one may have data now.
		case <-ctx.Done():
			close(stop)
			return nil, false, nil
		}
	}
}

// Package storage provides the persisted key-value substrates that hold
// session state, plus a typed session view over them. Stores are shared
// mutable state between loosely-synchronized peer processes: writes are
// last-writer-wins and change notification is advisory, not atomic.
package storage

import "sync"

// Store is a flat string key-value store with external change
// notification. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)

	// Set stores the value, overwriting any previous one.
	Set(key, value string) error

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(key string) error

	// Subscribe registers a callback invoked with the key of every
	// observed change, both local writes and (where the substrate
	// supports it) writes from other processes. The returned function
	// unregisters the callback.
	Subscribe(fn func(key string)) (unsubscribe func())

	// Close releases watchers, pollers and handles.
	Close() error
}

// subscribers is the shared fan-out used by the Store implementations.
type subscribers struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(key string)
}

func (s *subscribers) add(fn func(key string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = make(map[int]func(key string))
	}
	id := s.next
	s.next++
	s.fns[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.fns, id)
	}
}

func (s *subscribers) notify(keys ...string) {
	s.mu.Lock()
	fns := make([]func(string), 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		for _, key := range keys {
			fn(key)
		}
	}
}

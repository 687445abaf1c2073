// Package store holds the application state shared by the shell: named
// slices of key/value state, versioned and observable.
package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "github.com/dailycards/cardshell/internal/errors"
)

// EventType is the kind of change a store event describes.
type EventType int

const (
	EventDefined EventType = iota
	EventPatched
	EventReset
)

func (t EventType) String() string {
	switch t {
	case EventDefined:
		return "defined"
	case EventPatched:
		return "patched"
	case EventReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Event describes a change to one slice.
type Event struct {
	Type      EventType      `json:"-"`
	Kind      string         `json:"kind"`
	Slice     string         `json:"slice"`
	Version   uint64         `json:"version"`
	State     map[string]any `json:"state"`
	Timestamp time.Time      `json:"timestamp"`
}

// Snapshot is a point-in-time copy of every slice.
type Snapshot struct {
	Version uint64                    `json:"version"`
	Slices  map[string]map[string]any `json:"slices"`
}

type slice struct {
	initial map[string]any
	state   map[string]any
}

// Store is safe for concurrent use.
type Store struct {
	slices   map[string]*slice
	version  uint64
	mutex    sync.RWMutex
	watchers []chan Event
}

// New creates an empty store.
func New() *Store {
	return &Store{
		slices:   make(map[string]*slice),
		watchers: make([]chan Event, 0),
	}
}

// Define registers a slice with its initial state. Names are unique.
func (s *Store) Define(name string, initial map[string]any) error {
	if name == "" {
		return apperrors.NewValidationError("INVALID_SLICE", "store slice name cannot be empty")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.slices[name]; exists {
		return apperrors.NewValidationError("DUPLICATE_SLICE",
			fmt.Sprintf("store slice %q is already defined", name))
	}

	s.slices[name] = &slice{initial: clone(initial), state: clone(initial)}
	s.publishLocked(EventDefined, name)
	return nil
}

// State returns a copy of the named slice.
func (s *Store) State(name string) (map[string]any, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	sl, exists := s.slices[name]
	if !exists {
		return nil, false
	}
	return clone(sl.state), true
}

// Patch merges values into the named slice. A nil value deletes the key.
func (s *Store) Patch(name string, values map[string]any) (uint64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	sl, exists := s.slices[name]
	if !exists {
		return 0, unknownSlice(name)
	}

	for k, v := range values {
		if v == nil {
			delete(sl.state, k)
			continue
		}
		sl.state[k] = v
	}
	return s.publishLocked(EventPatched, name), nil
}

// Reset restores the named slice to its initial state.
func (s *Store) Reset(name string) (uint64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	sl, exists := s.slices[name]
	if !exists {
		return 0, unknownSlice(name)
	}
	sl.state = clone(sl.initial)
	return s.publishLocked(EventReset, name), nil
}

// Names lists the defined slices in sorted order.
func (s *Store) Names() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	names := make([]string, 0, len(s.slices))
	for name := range s.slices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Version increases by one on every change.
func (s *Store) Version() uint64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.version
}

// Snapshot copies every slice under a single read lock.
func (s *Store) Snapshot() Snapshot {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	snap := Snapshot{Version: s.version, Slices: make(map[string]map[string]any, len(s.slices))}
	for name, sl := range s.slices {
		snap.Slices[name] = clone(sl.state)
	}
	return snap
}

// Watch returns a channel that receives store events. Slow watchers miss
// events rather than block writers.
func (s *Store) Watch() <-chan Event {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	ch := make(chan Event, 64)
	s.watchers = append(s.watchers, ch)
	return ch
}

// UnWatch removes a watcher channel and closes it.
func (s *Store) UnWatch(ch <-chan Event) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for i, watcher := range s.watchers {
		if watcher == ch {
			close(watcher)
			s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
			break
		}
	}
}

func (s *Store) publishLocked(kind EventType, name string) uint64 {
	s.version++

	event := Event{
		Type:      kind,
		Kind:      kind.String(),
		Slice:     name,
		Version:   s.version,
		State:     clone(s.slices[name].state),
		Timestamp: time.Now(),
	}

	for _, watcher := range s.watchers {
		select {
		case watcher <- event:
		default:
		}
	}
	return s.version
}

func unknownSlice(name string) error {
	return apperrors.NewValidationError("UNKNOWN_SLICE",
		fmt.Sprintf("store slice %q is not defined", name))
}

func clone(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

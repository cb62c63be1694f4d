package pins

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/smazurov/gpionode/internal/board"
)

// Store owns every pin record. Writers serialize per pin through Lock;
// readers load an immutable table and never block.
type Store struct {
	locks   map[int]*sync.Mutex
	current atomic.Pointer[map[int]State]
}

// NewStore creates a store holding the default record of every pin in table.
func NewStore(table *board.Table) *Store {
	s := &Store{locks: make(map[int]*sync.Mutex)}
	initial := make(map[int]State)
	for _, pin := range table.Pins() {
		s.locks[pin] = &sync.Mutex{}
		initial[pin] = Default(pin)
	}
	s.current.Store(&initial)
	return s
}

// Lock acquires exclusive access to the given pins in ascending order and
// returns the function that releases them. Unknown pins are skipped.
func (s *Store) Lock(pinIDs ...int) (unlock func()) {
	ordered := slices.Clone(pinIDs)
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	held := make([]*sync.Mutex, 0, len(ordered))
	for _, pin := range ordered {
		if mu, ok := s.locks[pin]; ok {
			mu.Lock()
			held = append(held, mu)
		}
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// Snapshot returns the current record of pin.
func (s *Store) Snapshot(pin int) (State, bool) {
	st, ok := (*s.current.Load())[pin]
	return st, ok
}

// SnapshotAll returns every record, ordered by pin, from one consistent view.
func (s *Store) SnapshotAll() []State {
	view := *s.current.Load()
	out := make([]State, 0, len(view))
	for _, pin := range slices.Sorted(maps.Keys(view)) {
		out = append(out, view[pin])
	}
	return out
}

// Commit publishes new records in one step and returns them with their
// versions bumped. The caller must hold the lock of every pin it commits.
func (s *Store) Commit(states ...State) []State {
	for {
		old := s.current.Load()
		next := maps.Clone(*old)
		committed := make([]State, len(states))
		for i, st := range states {
			prev, ok := next[st.Pin]
			if !ok {
				continue
			}
			st.Version = prev.Version + 1
			next[st.Pin] = st
			committed[i] = st
		}
		if s.current.CompareAndSwap(old, &next) {
			return committed
		}
	}
}

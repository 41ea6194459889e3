package snapshot

import (
	"fmt"
	"sort"
	"sync"

	"github.com/yndnr/slotmesh/internal/core/domain"
	"github.com/yndnr/slotmesh/internal/telemetry/logger"
)

// DefaultCapacity is the history window used when none is configured.
// At 50 ticks per second this covers a little over two seconds.
const DefaultCapacity = 128

// Store is a bounded, tick-ordered snapshot history for one slot.
type Store struct {
	mu       sync.RWMutex
	capacity int
	items    []domain.Snapshot // ascending by Tick
	floor    domain.Tick
	released bool
	logger   logger.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithCapacity sets the maximum number of snapshots kept.
func WithCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithLogger sets the logger used for rejected inserts.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		capacity: DefaultCapacity,
		floor:    domain.NoTick,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.OrDefault(s.logger)
	s.items = make([]domain.Snapshot, 0, s.capacity)
	return s
}

// Insert stores a copy of snap. Ticks below the pruning floor and ticks not
// newer than the newest stored tick are rejected without changing the store.
func (s *Store) Insert(snap domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return domain.ErrInvalidSlot.WithDetails("snapshot store released")
	}
	if snap.Tick < 0 {
		return domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("negative tick %d", snap.Tick))
	}
	if s.floor != domain.NoTick && snap.Tick < s.floor {
		s.logger.Debug("snapshot below pruning floor rejected",
			"tick", snap.Tick,
			"floor", s.floor,
		)
		return domain.ErrSnapshotTooOld.WithDetails(fmt.Sprintf("tick %d < floor %d", snap.Tick, s.floor))
	}
	if n := len(s.items); n > 0 && snap.Tick <= s.items[n-1].Tick {
		s.logger.Debug("snapshot not newer than history rejected",
			"tick", snap.Tick,
			"newest", s.items[n-1].Tick,
		)
		return domain.ErrSnapshotOutOfOrder.WithDetails(fmt.Sprintf("tick %d <= newest %d", snap.Tick, s.items[n-1].Tick))
	}

	s.items = append(s.items, snap.Clone())
	if over := len(s.items) - s.capacity; over > 0 {
		n := copy(s.items, s.items[over:])
		clear(s.items[n:])
		s.items = s.items[:n]
	}
	return nil
}

// Get returns a copy of the snapshot stored for tick.
func (s *Store) Get(tick domain.Tick) (domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i, ok := s.find(tick); ok {
		return s.items[i].Clone(), nil
	}
	return domain.Snapshot{}, domain.ErrSnapshotNotFound.WithDetails(fmt.Sprintf("tick %d", tick))
}

// Latest returns a copy of the newest snapshot.
func (s *Store) Latest() (domain.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.items) == 0 {
		return domain.Snapshot{}, false
	}
	return s.items[len(s.items)-1].Clone(), true
}

// Prune evicts every snapshot with Tick < belowTick and raises the floor.
// It returns the number of evicted snapshots.
func (s *Store) Prune(belowTick domain.Tick) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if belowTick > s.floor {
		s.floor = belowTick
	}
	i := sort.Search(len(s.items), func(i int) bool { return s.items[i].Tick >= belowTick })
	if i == 0 {
		return 0
	}
	n := copy(s.items, s.items[i:])
	clear(s.items[n:])
	s.items = s.items[:n]
	return i
}

// Len returns the number of stored snapshots.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Capacity returns the history bound.
func (s *Store) Capacity() int {
	return s.capacity
}

// Floor returns the pruning floor, or NoTick if never pruned.
func (s *Store) Floor() domain.Tick {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.floor
}

// Ticks lists the stored ticks in ascending order.
func (s *Store) Ticks() []domain.Tick {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Tick, len(s.items))
	for i, it := range s.items {
		out[i] = it.Tick
	}
	return out
}

// Release drops all snapshots. Further inserts fail.
func (s *Store) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.released = true
}

func (s *Store) find(tick domain.Tick) (int, bool) {
	i := sort.Search(len(s.items), func(i int) bool { return s.items[i].Tick >= tick })
	return i, i < len(s.items) && s.items[i].Tick == tick
}

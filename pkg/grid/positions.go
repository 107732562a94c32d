package grid

import (
	"context"
	"sort"
	"sync"

	"github.com/crystal-mush/gridmush/pkg/gamedb"
)

// Position is where a navigator stands: a grid room and a cell in it.
// Positions are transient; they are never written to the game database.
type Position struct {
	Room  gamedb.DBRef
	Coord Coord
}

// PositionTable is the transient tier holding navigator positions.
// Clearing it must never touch durable grid data.
type PositionTable interface {
	Get(ctx context.Context, nav gamedb.DBRef) (Position, bool, error)
	Set(ctx context.Context, nav gamedb.DBRef, pos Position) error
	Clear(ctx context.Context, nav gamedb.DBRef) error
}

// MemoryPositions keeps positions in process memory. They are lost on restart.
type MemoryPositions struct {
	mu  sync.RWMutex
	pos map[gamedb.DBRef]Position
}

// NewMemoryPositions creates an empty in-memory table.
func NewMemoryPositions() *MemoryPositions {
	return &MemoryPositions{pos: make(map[gamedb.DBRef]Position)}
}

func (m *MemoryPositions) Get(_ context.Context, nav gamedb.DBRef) (Position, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pos[nav]
	return p, ok, nil
}

func (m *MemoryPositions) Set(_ context.Context, nav gamedb.DBRef, pos Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pos[nav] = pos
	return nil
}

func (m *MemoryPositions) Clear(_ context.Context, nav gamedb.DBRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pos, nav)
	return nil
}

var _ PositionTable = (*MemoryPositions)(nil)

// Followers tracks who is following whom. Like positions it is transient.
type Followers struct {
	mu     sync.RWMutex
	leader map[gamedb.DBRef]gamedb.DBRef // follower -> leader
}

// NewFollowers creates an empty follower table.
func NewFollowers() *Followers {
	return &Followers{leader: make(map[gamedb.DBRef]gamedb.DBRef)}
}

// Follow makes follower follow leader, replacing any previous leader.
func (f *Followers) Follow(follower, leader gamedb.DBRef) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leader[follower] = leader
}

// Unfollow stops follower from following anyone and returns the old leader.
func (f *Followers) Unfollow(follower gamedb.DBRef) (gamedb.DBRef, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.leader[follower]
	delete(f.leader, follower)
	return l, ok
}

// Leader returns who follower is following.
func (f *Followers) Leader(follower gamedb.DBRef) (gamedb.DBRef, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	l, ok := f.leader[follower]
	return l, ok
}

// Of returns the followers of leader in dbref order.
func (f *Followers) Of(leader gamedb.DBRef) []gamedb.DBRef {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []gamedb.DBRef
	for follower, l := range f.leader {
		if l == leader {
			out = append(out, follower)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Drop removes ref both as a follower and as a leader.
func (f *Followers) Drop(ref gamedb.DBRef) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.leader, ref)
	for follower, l := range f.leader {
		if l == ref {
			delete(f.leader, follower)
		}
	}
}

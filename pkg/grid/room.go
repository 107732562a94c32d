package grid

import (
	"sort"
	"sync"

	"github.com/crystal-mush/gridmush/pkg/gamedb"
)

// Point is the metadata stored for one cell. Cells with no stored point
// behave as NewPoint().
type Point struct {
	Name  string
	Desc  string
	Empty bool
	Exits DirSet
	Into  gamedb.DBRef // Nothing when unset
	// Visits maps each navigator to the unix time of its last arrival.
	Visits map[gamedb.DBRef]int64
}

// NewPoint returns the default point.
func NewPoint() Point {
	return Point{Into: gamedb.Nothing}
}

// HasInto reports whether arriving here sends the navigator to another room.
func (p Point) HasInto() bool {
	return p.Into != gamedb.Nothing
}

// Solid reports whether the cell is impassable. Under the carve policy any
// cell without a name and description is solid, whatever its empty flag says.
func (p Point) Solid(carve bool) bool {
	if carve && p.Name == "" && p.Desc == "" {
		return true
	}
	return p.Empty
}

// Label returns the point name, or "<room> @ (x,y)" when it has none.
func (p Point) Label(roomName string, c Coord) string {
	if p.Name != "" {
		return p.Name
	}
	return roomName + " @ " + c.String()
}

// Visitor is one occupant-log entry.
type Visitor struct {
	Ref  gamedb.DBRef
	When int64
}

// RecentVisitors returns the occupant log, newest first.
func (p Point) RecentVisitors() []Visitor {
	out := make([]Visitor, 0, len(p.Visits))
	for ref, when := range p.Visits {
		out = append(out, Visitor{Ref: ref, When: when})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].When != out[j].When {
			return out[i].When > out[j].When
		}
		return out[i].Ref < out[j].Ref
	})
	return out
}

func (p Point) clone() Point {
	cp := p
	if p.Visits != nil {
		cp.Visits = make(map[gamedb.DBRef]int64, len(p.Visits))
		for k, v := range p.Visits {
			cp.Visits[k] = v
		}
	}
	return cp
}

// Room is the grid owned by one room object. All access goes through Do so
// that moves and edits on the same room never interleave.
type Room struct {
	Ref    gamedb.DBRef
	State  State
	Points map[Coord]*Point

	mu sync.Mutex
}

// NewRoom returns a 1x1 grid at the origin.
func NewRoom(ref gamedb.DBRef) *Room {
	return &Room{
		Ref:    ref,
		Points: make(map[Coord]*Point),
	}
}

// Do runs fn with the room locked.
func (r *Room) Do(fn func(r *Room) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r)
}

// View runs fn with the room locked, for reads that cannot fail.
func (r *Room) View(fn func(r *Room)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r)
}

// Point returns a copy of the stored point at c, or the default point.
func (r *Room) Point(c Coord) Point {
	if p, ok := r.Points[c]; ok {
		return p.clone()
	}
	return NewPoint()
}

// Edit applies fn to the point at c, creating it first if needed, and
// returns the result.
func (r *Room) Edit(c Coord, fn func(p *Point)) Point {
	p, ok := r.Points[c]
	if !ok {
		np := NewPoint()
		p = &np
		r.Points[c] = p
	}
	fn(p)
	return p.clone()
}

// stamp records nav's arrival at c.
func (r *Room) stamp(c Coord, nav gamedb.DBRef, when int64) Point {
	return r.Edit(c, func(p *Point) {
		if p.Visits == nil {
			p.Visits = make(map[gamedb.DBRef]int64)
		}
		p.Visits[nav] = when
	})
}

// Registry holds the grid of every grid room.
type Registry struct {
	mu    sync.RWMutex
	rooms map[gamedb.DBRef]*Room
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[gamedb.DBRef]*Room)}
}

// Get returns the grid for a room.
func (g *Registry) Get(ref gamedb.DBRef) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rooms[ref]
	return r, ok
}

// Add registers a grid, replacing any previous one for the same room.
func (g *Registry) Add(r *Room) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rooms[r.Ref] = r
}

// Create registers and returns a fresh grid for ref, or the existing one.
func (g *Registry) Create(ref gamedb.DBRef) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.rooms[ref]; ok {
		return r
	}
	r := NewRoom(ref)
	g.rooms[ref] = r
	return r
}

// Remove drops the grid for ref.
func (g *Registry) Remove(ref gamedb.DBRef) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.rooms, ref)
}

// Len returns the number of grid rooms.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

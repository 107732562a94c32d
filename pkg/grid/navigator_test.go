package grid

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/crystal-mush/gridmush/pkg/gamedb"
	"github.com/crystal-mush/gridmush/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRoom  gamedb.DBRef = 10
	otherRoom gamedb.DBRef = 20
	mover     gamedb.DBRef = 1
	follower  gamedb.DBRef = 2
	bystander gamedb.DBRef = 3
	plazaName              = "Plaza"
)

// fakeWorld records every callback the navigator makes.
type fakeWorld struct {
	mu        sync.Mutex
	locs      map[gamedb.DBRef]gamedb.DBRef
	told      map[gamedb.DBRef][]string
	announced []string
	looked    []gamedb.DBRef
	moved     map[gamedb.DBRef]gamedb.DBRef
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{
		locs: map[gamedb.DBRef]gamedb.DBRef{
			mover:     testRoom,
			follower:  testRoom,
			bystander: testRoom,
		},
		told:  make(map[gamedb.DBRef][]string),
		moved: make(map[gamedb.DBRef]gamedb.DBRef),
	}
}

func (w *fakeWorld) Name(ref gamedb.DBRef) string {
	if ref == testRoom {
		return plazaName
	}
	return fmt.Sprintf("Obj%d", ref)
}

func (w *fakeWorld) Location(ref gamedb.DBRef) gamedb.DBRef {
	w.mu.Lock()
	defer w.mu.Unlock()
	if l, ok := w.locs[ref]; ok {
		return l
	}
	return gamedb.Nothing
}

func (w *fakeWorld) Tell(ref gamedb.DBRef, msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.told[ref] = append(w.told[ref], msg)
}

func (w *fakeWorld) Announce(_ gamedb.DBRef, _ []gamedb.DBRef, msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.announced = append(w.announced, msg)
}

func (w *fakeWorld) Look(ref gamedb.DBRef) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.looked = append(w.looked, ref)
}

func (w *fakeWorld) Relocate(ref, dest gamedb.DBRef) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.locs[ref] = dest
	w.moved[ref] = dest
}

// memStore counts writes.
type memStore struct {
	mu     sync.Mutex
	states map[gamedb.DBRef]State
	points map[Coord]Point
}

func newMemStore() *memStore {
	return &memStore{states: make(map[gamedb.DBRef]State), points: make(map[Coord]Point)}
}

func (m *memStore) SaveState(room gamedb.DBRef, s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[room] = s
	return nil
}

func (m *memStore) SavePoint(_ gamedb.DBRef, c Coord, p Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points[c] = p
	return nil
}

type navFixture struct {
	ctx   context.Context
	room  *Room
	world *fakeWorld
	store *memStore
	nav   *Navigator
}

func newNavFixture(t *testing.T) *navFixture {
	t.Helper()
	logger.Silence()
	room := NewRoom(testRoom)
	require.NoError(t, room.State.Resize(Coord{0, 0}, Coord{3, 3}))
	world := newFakeWorld()
	store := newMemStore()
	return &navFixture{
		ctx:   context.Background(),
		room:  room,
		world: world,
		store: store,
		nav: &Navigator{
			Positions: NewMemoryPositions(),
			Followers: NewFollowers(),
			World:     world,
			Store:     store,
			Now:       func() time.Time { return time.Unix(1700000000, 0) },
		},
	}
}

func (f *navFixture) pos(t *testing.T, ref gamedb.DBRef) Coord {
	t.Helper()
	var c Coord
	require.NoError(t, f.room.Do(func(r *Room) error {
		var err error
		c, _, err = f.nav.Position(f.ctx, r, ref)
		return err
	}))
	return c
}

func (f *navFixture) move(t *testing.T, ref gamedb.DBRef, d Direction) Outcome {
	t.Helper()
	out, err := f.nav.Move(f.ctx, f.room, ref, d)
	require.NoError(t, err)
	return out
}

func TestMoveNorthOffEdgeIsBlocked(t *testing.T) {
	f := newNavFixture(t)

	out := f.move(t, mover, North)
	assert.Equal(t, Blocked, out.Kind)
	assert.Equal(t, Coord{0, -1}, out.To)
	assert.Equal(t, Coord{0, 0}, f.pos(t, mover))
	assert.Equal(t, []string{"You cannot travel north."}, f.world.told[mover])
	assert.Empty(t, f.world.announced)

	_, recorded, _ := f.nav.Positions.Get(f.ctx, mover)
	assert.False(t, recorded)
}

func TestMoveEastToEdge(t *testing.T) {
	f := newNavFixture(t)

	for i := 0; i < 3; i++ {
		out := f.move(t, mover, East)
		require.Equal(t, Arrived, out.Kind)
	}
	assert.Equal(t, Coord{3, 0}, f.pos(t, mover))

	out := f.move(t, mover, East)
	assert.Equal(t, Blocked, out.Kind)
	assert.Equal(t, Coord{4, 0}, out.To)
	assert.Equal(t, Coord{3, 0}, f.pos(t, mover))
	assert.Len(t, f.world.looked, 3)
}

func TestMoveArrivalMessageAndVisit(t *testing.T) {
	f := newNavFixture(t)
	f.room.Edit(Coord{1, 0}, func(p *Point) { p.Name = "Fountain" })

	out := f.move(t, mover, East)
	require.Equal(t, Arrived, out.Kind)
	assert.Equal(t, "Plaza @ (0,0)", out.FromLabel)
	assert.Equal(t, "Fountain", out.ToLabel)
	assert.Equal(t, []string{"Obj1 travels east from Plaza @ (0,0) to Fountain."}, f.world.announced)
	assert.Equal(t, []gamedb.DBRef{mover}, f.world.looked)

	p := f.room.Point(Coord{1, 0})
	assert.Equal(t, int64(1700000000), p.Visits[mover])
	assert.Equal(t, int64(1700000000), f.store.points[Coord{1, 0}].Visits[mover])
}

func TestMoveIntoEmptyIsBlocked(t *testing.T) {
	f := newNavFixture(t)
	f.room.Edit(Coord{0, 1}, func(p *Point) { p.Empty = true })

	out := f.move(t, mover, South)
	assert.Equal(t, Blocked, out.Kind)
	assert.Equal(t, Coord{0, 0}, f.pos(t, mover))
	assert.Empty(t, f.room.Point(Coord{0, 1}).Visits)
}

func TestCarveOverridesEmptyFlag(t *testing.T) {
	f := newNavFixture(t)
	f.room.State.Carve = true
	f.room.Edit(Coord{1, 0}, func(p *Point) { p.Empty = false })
	f.room.Edit(Coord{0, 1}, func(p *Point) { p.Desc = "A narrow path." })
	f.room.Edit(Coord{1, 1}, func(p *Point) {
		p.Name = "Well"
		p.Empty = true
	})

	// An unnamed, undescribed cell is solid under carve even with empty off.
	assert.Equal(t, Blocked, f.move(t, mover, East).Kind)
	// A described cell is open.
	assert.Equal(t, Arrived, f.move(t, mover, South).Kind)
	// A named cell still honours its own empty flag.
	assert.Equal(t, Blocked, f.move(t, mover, East).Kind)
	assert.Equal(t, Coord{0, 1}, f.pos(t, mover))

	f.room.State.Carve = false
	assert.Equal(t, Arrived, f.move(t, mover, Northeast).Kind)
}

func TestIntoOnOriginTransfers(t *testing.T) {
	f := newNavFixture(t)
	f.room.Edit(Coord{0, 0}, func(p *Point) { p.Into = otherRoom })

	out := f.move(t, mover, East)
	assert.Equal(t, IntoTransfer, out.Kind)
	assert.Equal(t, otherRoom, out.Into)
	assert.Equal(t, otherRoom, f.world.moved[mover])
	assert.Empty(t, f.room.Point(Coord{1, 0}).Visits)
}

func TestIntoOnArrivalTransfers(t *testing.T) {
	f := newNavFixture(t)
	f.room.Edit(Coord{1, 0}, func(p *Point) { p.Into = otherRoom })
	f.nav.Followers.Follow(follower, mover)

	out := f.move(t, mover, East)
	assert.Equal(t, Arrived, out.Kind)
	assert.Equal(t, otherRoom, out.Into)
	assert.Equal(t, otherRoom, f.world.moved[mover])
	assert.Equal(t, otherRoom, f.world.moved[follower])
	assert.Empty(t, f.world.looked)

	// The stale position no longer applies once the mover is elsewhere; a
	// return to the room starts from the cursor after a reset.
	require.NoError(t, f.nav.Reset(f.ctx, mover))
	assert.Equal(t, f.room.State.Current, f.pos(t, mover))
}

func TestFollowersOnlyCarriedFromSameCell(t *testing.T) {
	f := newNavFixture(t)
	f.nav.Followers.Follow(follower, mover)
	f.nav.Followers.Follow(bystander, mover)
	require.NoError(t, f.nav.Positions.Set(f.ctx, bystander, Position{Room: testRoom, Coord: Coord{2, 2}}))

	out := f.move(t, mover, Southeast)
	require.Equal(t, Arrived, out.Kind)
	assert.Equal(t, []gamedb.DBRef{follower}, out.Carried)

	assert.Equal(t, Coord{1, 1}, f.pos(t, mover))
	assert.Equal(t, Coord{1, 1}, f.pos(t, follower))
	assert.Equal(t, Coord{2, 2}, f.pos(t, bystander))

	p := f.room.Point(Coord{1, 1})
	assert.Contains(t, p.Visits, follower)
	assert.NotContains(t, p.Visits, bystander)
	assert.Equal(t, []string{"You follow Obj1 southeast."}, f.world.told[follower])
	assert.ElementsMatch(t, []gamedb.DBRef{mover, follower}, f.world.looked)
}

func TestFollowersElsewhereAreNotCarried(t *testing.T) {
	f := newNavFixture(t)
	f.nav.Followers.Follow(follower, mover)
	f.world.locs[follower] = otherRoom

	out := f.move(t, mover, East)
	require.Equal(t, Arrived, out.Kind)
	assert.Empty(t, out.Carried)

	_, recorded, _ := f.nav.Positions.Get(f.ctx, follower)
	assert.False(t, recorded)
}

func TestPositionInOtherRoomFallsBackToCurrent(t *testing.T) {
	f := newNavFixture(t)
	require.NoError(t, f.room.State.SetCurrent(Coord{2, 2}))
	require.NoError(t, f.nav.Positions.Set(f.ctx, mover, Position{Room: otherRoom, Coord: Coord{0, 0}}))

	assert.Equal(t, Coord{2, 2}, f.pos(t, mover))
	out := f.move(t, mover, West)
	assert.Equal(t, Coord{2, 2}, out.From)
	assert.Equal(t, Coord{1, 2}, out.To)
}

func TestOpenDirections(t *testing.T) {
	f := newNavFixture(t)
	f.room.Edit(Coord{1, 0}, func(p *Point) { p.Empty = true })
	var open []Direction
	require.NoError(t, f.room.Do(func(r *Room) error {
		open = r.Open(Coord{0, 0})
		return nil
	}))
	assert.Equal(t, []Direction{Southeast, South}, open)
}

func TestConcurrentMovesSerializePerRoom(t *testing.T) {
	f := newNavFixture(t)
	require.NoError(t, f.room.State.Resize(Coord{0, 0}, Coord{99, 0}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.nav.Move(f.ctx, f.room, mover, East)
		}()
	}
	wg.Wait()
	assert.Equal(t, Coord{50, 0}, f.pos(t, mover))
}

// racingStore starts a builder edit on the first point save and gives it a
// short window to finish before the save completes.
type racingStore struct {
	*memStore
	once sync.Once
	edit func()
	done chan struct{}
}

func (s *racingStore) SavePoint(room gamedb.DBRef, c Coord, p Point) error {
	s.once.Do(func() {
		go func() {
			s.edit()
			close(s.done)
		}()
		select {
		case <-s.done:
		case <-time.After(50 * time.Millisecond):
		}
	})
	return s.memStore.SavePoint(room, c, p)
}

func TestMoveSaveDoesNotClobberConcurrentAnnotate(t *testing.T) {
	f := newNavFixture(t)
	target := Coord{0, 1}
	store := &racingStore{memStore: f.store, done: make(chan struct{})}
	ed := &Editor{Store: f.store}
	store.edit = func() {
		_, err := ed.Annotate(f.room, target, FieldName, "Fountain")
		assert.NoError(t, err)
	}
	f.nav.Store = store

	out := f.move(t, mover, South)
	require.Equal(t, Arrived, out.Kind)
	<-store.done

	assert.Equal(t, target, f.pos(t, mover))
	var inMemory Point
	f.room.View(func(r *Room) { inMemory = r.Point(target) })
	f.store.mu.Lock()
	durable := f.store.points[target]
	f.store.mu.Unlock()
	assert.Equal(t, "Fountain", inMemory.Name)
	assert.Equal(t, inMemory, durable)
	assert.Contains(t, durable.Visits, mover)
}

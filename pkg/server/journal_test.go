package server

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/crystal-mush/gridmush/pkg/events"
	"github.com/crystal-mush/gridmush/pkg/gamedb"
	"github.com/crystal-mush/gridmush/pkg/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSQL(t *testing.T) *SQLStore {
	t.Helper()
	s, err := OpenSQLStore(filepath.Join(t.TempDir(), "visits.sqlite"), 10, 5)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLStore_InsertAndRecent(t *testing.T) {
	s := openTestSQL(t)
	ctx := context.Background()
	at := grid.Coord{X: 2, Y: 3}
	base := time.Now().Add(-time.Minute)

	id, err := s.InsertVisit(ctx, VisitRecord{
		Room: 5, Navigator: 7, Name: "Alice", Coord: at, Direction: "east", At: base,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = s.InsertVisit(ctx, VisitRecord{
		Room: 5, Navigator: 8, Name: "Bob", Coord: at, Direction: "south", At: base.Add(time.Second),
	})
	require.NoError(t, err)

	// Other point and other room stay out of the result.
	_, err = s.InsertVisit(ctx, VisitRecord{Room: 5, Navigator: 7, Name: "Alice", Coord: grid.Coord{X: 0, Y: 0}, Direction: "west"})
	require.NoError(t, err)
	_, err = s.InsertVisit(ctx, VisitRecord{Room: 6, Navigator: 7, Name: "Alice", Coord: at, Direction: "west"})
	require.NoError(t, err)

	recs, err := s.RecentVisits(ctx, 5, at, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "Bob", recs[0].Name)
	assert.Equal(t, "south", recs[0].Direction)
	assert.Equal(t, gamedb.DBRef(8), recs[0].Navigator)
	assert.Equal(t, "Alice", recs[1].Name)
	assert.Equal(t, id, recs[1].ID)
	assert.Equal(t, at, recs[1].Coord)

	recs, err = s.RecentVisits(ctx, 5, at, 1)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestSQLStore_QueryLimitCaps(t *testing.T) {
	s := openTestSQL(t)
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		_, err := s.InsertVisit(ctx, VisitRecord{Room: 1, Navigator: 2, Name: "N", Direction: "north"})
		require.NoError(t, err)
	}
	recs, err := s.RecentVisits(ctx, 1, grid.Coord{}, 50)
	require.NoError(t, err)
	assert.Len(t, recs, 10)
}

func TestSQLStore_Purge(t *testing.T) {
	s := openTestSQL(t)
	ctx := context.Background()

	_, err := s.InsertVisit(ctx, VisitRecord{Room: 1, Name: "Old", Direction: "north", At: time.Now().Add(-48 * time.Hour)})
	require.NoError(t, err)
	_, err = s.InsertVisit(ctx, VisitRecord{Room: 1, Name: "New", Direction: "north"})
	require.NoError(t, err)

	n, err := s.PurgeOldVisits(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	recs, err := s.RecentVisits(ctx, 1, grid.Coord{}, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "New", recs[0].Name)
}

func TestSQLStore_Closed(t *testing.T) {
	s := openTestSQL(t)
	require.NoError(t, s.Close())

	_, err := s.InsertVisit(context.Background(), VisitRecord{})
	assert.ErrorIs(t, err, ErrSQLNotConfigured)
	_, err = s.RecentVisits(context.Background(), 1, grid.Coord{}, 0)
	assert.ErrorIs(t, err, ErrSQLNotConfigured)
	assert.ErrorIs(t, s.Checkpoint(), ErrSQLNotConfigured)
}

func TestVisitFromEvent(t *testing.T) {
	out := grid.Outcome{Direction: grid.South, From: grid.Coord{X: 1, Y: 1}, To: grid.Coord{X: 1, Y: 2}}
	rec, ok := visitFromEvent(gridArrival(4, 9, "Mover", out))
	require.True(t, ok)
	assert.Equal(t, gamedb.DBRef(4), rec.Room)
	assert.Equal(t, gamedb.DBRef(9), rec.Navigator)
	assert.Equal(t, "Mover", rec.Name)
	assert.Equal(t, "south", rec.Direction)
	assert.Equal(t, grid.Coord{X: 1, Y: 2}, rec.Coord)

	// Ordinary room moves carry no grid flag.
	_, ok = visitFromEvent(events.Event{Type: events.EvMove, Text: "X has left.", Data: map[string]any{"action": "leave"}})
	assert.False(t, ok)
	_, ok = visitFromEvent(events.Event{Type: events.EvSay, Data: map[string]any{"grid": true, "x": 1, "y": 1}})
	assert.False(t, ok)
}

func TestVisitJournal_RecordsGridMoves(t *testing.T) {
	env := newTestEnv(t)
	g := env.game
	g.SQLDB = openTestSQL(t)
	g.Journal = NewVisitJournal(g)
	require.NotNil(t, g.Journal)

	DispatchCommand(g, env.bob, "follow Wizard")
	DispatchCommand(g, env.wizard, "e")
	DispatchCommand(g, env.wizard, "north") // blocked, not journaled

	recs, err := g.Journal.RecentVisits(context.Background(), plazaRef, grid.Coord{X: 1, Y: 0}, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	names := []string{recs[0].Name, recs[1].Name}
	assert.ElementsMatch(t, []string{"Wizard", "Bob"}, names)
	for _, rec := range recs {
		assert.Equal(t, "east", rec.Direction)
	}

	clearOutput(env.wizard)
	DispatchCommand(g, env.wizard, "grid/there")
	out := getOutput(env.wizard)
	assert.Contains(t, out, "Recent arrivals:")
	assert.Contains(t, out, "heading east")

	g.Journal.Close()
	assert.True(t, g.Journal.Closed())
	DispatchCommand(g, env.wizard, "w")
	recs, err = g.Journal.RecentVisits(context.Background(), plazaRef, grid.Coord{}, 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestNewVisitJournal_NoStore(t *testing.T) {
	g := NewGame(gamedb.NewDatabase())
	assert.Nil(t, NewVisitJournal(g))
}

func TestStartRetentionCleanup_StopsOnCancel(t *testing.T) {
	s := openTestSQL(t)
	ctx, cancel := context.WithCancel(context.Background())
	StartRetentionCleanup(ctx, s, time.Hour)
	cancel()
	StartRetentionCleanup(context.Background(), nil, time.Hour)
}

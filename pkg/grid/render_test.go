package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSmall(t *testing.T) {
	room := NewRoom(testRoom)
	require.NoError(t, room.State.Resize(Coord{0, 0}, Coord{3, 2}))
	require.NoError(t, room.State.SetBase(Coord{1, 1}))
	room.Edit(Coord{3, 0}, func(p *Point) { p.Empty = true })

	want := "" +
		"+----+\n" +
		"|...#|\n" +
		"|.*..|\n" +
		"|....|\n" +
		"+----+\n"
	assert.Equal(t, want, room.Render(Small))
}

func TestRenderLarge(t *testing.T) {
	room := NewRoom(testRoom)
	require.NoError(t, room.State.Resize(Coord{0, 0}, Coord{1, 0}))
	room.Edit(Coord{1, 0}, func(p *Point) { p.Empty = true })

	want := "" +
		"+---+---+\n" +
		"| * |###|\n" +
		"+---+---+\n"
	assert.Equal(t, want, room.Render(Large))
}

func TestRenderIgnoresNames(t *testing.T) {
	room := NewRoom(testRoom)
	require.NoError(t, room.State.Resize(Coord{0, 0}, Coord{3, 3}))
	before := room.Render(Small)
	beforeLarge := room.Render(Large)

	room.Edit(Coord{1, 1}, func(p *Point) {
		p.Name = "Fountain"
		p.Desc = "Water splashes."
	})
	assert.Equal(t, before, room.Render(Small))
	assert.Equal(t, beforeLarge, room.Render(Large))
	assert.Equal(t, before, ""+
		"+----+\n"+
		"|*...|\n"+
		"|....|\n"+
		"|....|\n"+
		"|....|\n"+
		"+----+\n")
}

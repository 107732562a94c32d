package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDeltas(t *testing.T) {
	origin := Coord{5, 5}
	tests := map[Direction]Coord{
		North:     {5, 4},
		South:     {5, 6},
		East:      {6, 5},
		West:      {4, 5},
		Northeast: {6, 4},
		Northwest: {4, 4},
		Southeast: {6, 6},
		Southwest: {4, 6},
	}
	for d, want := range tests {
		assert.Equal(t, want, Resolve(origin, d), d.String())
	}
}

func TestResolveIsPureAndInvertible(t *testing.T) {
	pairs := [][2]Direction{{North, South}, {East, West}, {Northeast, Southwest}, {Northwest, Southeast}}
	for _, c := range []Coord{{0, 0}, {-7, 3}, {99, -99}} {
		for _, d := range Directions() {
			assert.Equal(t, Resolve(c, d), Resolve(c, d))
		}
		for _, p := range pairs {
			assert.Equal(t, c, Resolve(Resolve(c, p[0]), p[1]))
			assert.Equal(t, c, Resolve(Resolve(c, p[1]), p[0]))
		}
	}
}

func TestParseDirection(t *testing.T) {
	for _, d := range Directions() {
		got, ok := ParseDirection(d.String())
		require.True(t, ok)
		assert.Equal(t, d, got)
		got, ok = ParseDirection(d.Short())
		require.True(t, ok)
		assert.Equal(t, d, got)
	}
	got, ok := ParseDirection("  NE ")
	require.True(t, ok)
	assert.Equal(t, Northeast, got)

	_, ok = ParseDirection("up")
	assert.False(t, ok)
}

func TestParseDirSet(t *testing.T) {
	set, ok := ParseDirSet("n, e south")
	require.True(t, ok)
	assert.Equal(t, []Direction{North, East, South}, set.List())

	set, ok = ParseDirSet("")
	require.True(t, ok)
	assert.Empty(t, set.List())

	_, ok = ParseDirSet("n,up")
	assert.False(t, ok)
}

func TestParseCoord(t *testing.T) {
	c, err := ParseCoord("(3, -2)")
	require.NoError(t, err)
	assert.Equal(t, Coord{3, -2}, c)

	_, err = ParseCoord("3")
	assert.Error(t, err)
	_, err = ParseCoord("a,1")
	assert.Error(t, err)
}

package grid

import "strings"

// Direction is one of the eight compass directions.
type Direction int

const (
	North Direction = iota
	Northeast
	East
	Southeast
	South
	Southwest
	West
	Northwest
)

var directionNames = [...]string{"north", "northeast", "east", "southeast", "south", "southwest", "west", "northwest"}
var directionShort = [...]string{"n", "ne", "e", "se", "s", "sw", "w", "nw"}

var directionDeltas = [...][2]int{
	North:     {0, -1},
	Northeast: {1, -1},
	East:      {1, 0},
	Southeast: {1, 1},
	South:     {0, 1},
	Southwest: {-1, 1},
	West:      {-1, 0},
	Northwest: {-1, -1},
}

// Directions lists all directions clockwise from north.
func Directions() []Direction {
	return []Direction{North, Northeast, East, Southeast, South, Southwest, West, Northwest}
}

func (d Direction) String() string {
	if d < North || d > Northwest {
		return "nowhere"
	}
	return directionNames[d]
}

// Short returns the one- or two-letter alias.
func (d Direction) Short() string {
	if d < North || d > Northwest {
		return ""
	}
	return directionShort[d]
}

// Delta returns the unit step for d.
func (d Direction) Delta() (dx, dy int) {
	if d < North || d > Northwest {
		return 0, 0
	}
	return directionDeltas[d][0], directionDeltas[d][1]
}

// ParseDirection accepts full names and short aliases, case-insensitively.
func ParseDirection(s string) (Direction, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i := range directionNames {
		if s == directionNames[i] || s == directionShort[i] {
			return Direction(i), true
		}
	}
	return 0, false
}

// Resolve applies one step in direction d to c.
func Resolve(c Coord, d Direction) Coord {
	dx, dy := d.Delta()
	return Coord{X: c.X + dx, Y: c.Y + dy}
}

// DirSet is a set of directions, used for display-only exit markers.
type DirSet uint8

// With returns s plus d.
func (s DirSet) With(d Direction) DirSet { return s | 1<<uint(d) }

// Has reports whether d is in s.
func (s DirSet) Has(d Direction) bool { return s&(1<<uint(d)) != 0 }

// List returns the members in clockwise order.
func (s DirSet) List() []Direction {
	var out []Direction
	for _, d := range Directions() {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// ParseDirSet parses a list like "n,e south" into a set.
func ParseDirSet(s string) (DirSet, bool) {
	var set DirSet
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	for _, f := range fields {
		d, ok := ParseDirection(f)
		if !ok {
			return 0, false
		}
		set = set.With(d)
	}
	return set, true
}

package grid

import (
	"fmt"
	"strconv"
	"strings"
)

// Coord is a cell position inside a grid room. Y grows southward.
type Coord struct {
	X, Y int
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// ParseCoord parses "x,y" (spaces allowed around the comma).
func ParseCoord(s string) (Coord, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Coord{}, fmt.Errorf("bad coordinate %q: want x,y", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Coord{}, fmt.Errorf("bad x in %q: %w", s, err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Coord{}, fmt.Errorf("bad y in %q: %w", s, err)
	}
	return Coord{X: x, Y: y}, nil
}

package grid

import "fmt"

// MaxSpan is the largest number of cells allowed on either axis.
const MaxSpan = 100

// Bounds is an inclusive rectangle of valid coordinates.
type Bounds struct {
	Min, Max Coord
}

// Contains reports whether c lies inside b, edges included.
func (b Bounds) Contains(c Coord) bool {
	return c.X >= b.Min.X && c.X <= b.Max.X && c.Y >= b.Min.Y && c.Y <= b.Max.Y
}

// Width returns the number of columns.
func (b Bounds) Width() int { return b.Max.X - b.Min.X + 1 }

// Height returns the number of rows.
func (b Bounds) Height() int { return b.Max.Y - b.Min.Y + 1 }

func (b Bounds) String() string {
	return fmt.Sprintf("%d..%d,%d..%d", b.Min.X, b.Max.X, b.Min.Y, b.Max.Y)
}

// State is the compound grid attribute of a room: its bounds, the base
// (nominal entry point), the builders' editing cursor and the carve policy.
type State struct {
	Bounds  Bounds
	Base    Coord
	Current Coord
	Carve   bool
}

// Resize replaces the bounds. Both corners change or neither does.
// The editing cursor snaps back to base when the new bounds drop it.
func (s *State) Resize(min, max Coord) error {
	if min.X > max.X || min.Y > max.Y {
		return fmt.Errorf("%w: minimum exceeds maximum", ErrRange)
	}
	if !spanFits(min.X, max.X) || !spanFits(min.Y, max.Y) {
		return fmt.Errorf("%w: %s..%s exceeds %d per axis", ErrRange, min, max, MaxSpan)
	}
	nb := Bounds{Min: min, Max: max}
	if !nb.Contains(s.Base) {
		return fmt.Errorf("%w: base %s not in %s", ErrBaseOutOfRange, s.Base, nb)
	}
	s.Bounds = nb
	if !nb.Contains(s.Current) {
		s.Current = s.Base
	}
	return nil
}

// spanFits reports whether lo..hi holds at most MaxSpan cells. A difference
// that wraps negative means the span is far too wide.
func spanFits(lo, hi int) bool {
	d := hi - lo
	return d >= 0 && d < MaxSpan
}

// SetBase moves the base point.
func (s *State) SetBase(c Coord) error {
	if !s.Bounds.Contains(c) {
		return fmt.Errorf("%w: %s not in %s", ErrOutOfBounds, c, s.Bounds)
	}
	s.Base = c
	return nil
}

// SetCurrent moves the editing cursor.
func (s *State) SetCurrent(c Coord) error {
	if !s.Bounds.Contains(c) {
		return fmt.Errorf("%w: %s not in %s", ErrOutOfBounds, c, s.Bounds)
	}
	s.Current = c
	return nil
}

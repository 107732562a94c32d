package grid

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/crystal-mush/gridmush/pkg/gamedb"
	"github.com/crystal-mush/gridmush/pkg/logger"
	"github.com/sirupsen/logrus"
)

// ParseRange parses "xmin..xmax,ymin..ymax". A single number on an axis
// means a span of one cell.
func ParseRange(s string) (min, max Coord, err error) {
	axes := strings.Split(strings.TrimSpace(s), ",")
	if len(axes) != 2 {
		return Coord{}, Coord{}, fmt.Errorf("bad range %q: want xmin..xmax,ymin..ymax", s)
	}
	min.X, max.X, err = parseSpan(axes[0])
	if err != nil {
		return Coord{}, Coord{}, err
	}
	min.Y, max.Y, err = parseSpan(axes[1])
	if err != nil {
		return Coord{}, Coord{}, err
	}
	return min, max, nil
}

func parseSpan(s string) (lo, hi int, err error) {
	s = strings.TrimSpace(s)
	loStr, hiStr, found := strings.Cut(s, "..")
	if !found {
		hiStr = loStr
	}
	if lo, err = strconv.Atoi(strings.TrimSpace(loStr)); err != nil {
		return 0, 0, fmt.Errorf("bad span %q: %w", s, err)
	}
	if hi, err = strconv.Atoi(strings.TrimSpace(hiStr)); err != nil {
		return 0, 0, fmt.Errorf("bad span %q: %w", s, err)
	}
	return lo, hi, nil
}

// Field names a point attribute a builder can annotate.
type Field int

const (
	FieldName Field = iota
	FieldDesc
	FieldExits
	FieldInto
	FieldEmpty
)

func (f Field) String() string {
	switch f {
	case FieldName:
		return "name"
	case FieldDesc:
		return "desc"
	case FieldExits:
		return "exits"
	case FieldInto:
		return "into"
	case FieldEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// Resolver turns a builder's room reference into a room dbref.
type Resolver func(name string) (gamedb.DBRef, bool)

// Editor applies builder edits to grid rooms and writes them through to Store.
type Editor struct {
	Store   Store
	Resolve Resolver
}

func (e *Editor) saveState(r *Room) {
	if e.Store == nil {
		return
	}
	if err := e.Store.SaveState(r.Ref, r.State); err != nil {
		logger.Log.Printf("ERROR: persist grid state #%d: %v", r.Ref, err)
	}
}

func (e *Editor) savePoint(r *Room, c Coord, p Point) {
	if e.Store == nil {
		return
	}
	if err := e.Store.SavePoint(r.Ref, c, p); err != nil {
		logger.Log.Printf("ERROR: persist grid point %s in #%d: %v", c, r.Ref, err)
	}
}

// Resize parses a range string and applies it to the room's bounds.
func (e *Editor) Resize(room *Room, spec string) (Bounds, error) {
	min, max, err := ParseRange(spec)
	if err != nil {
		return Bounds{}, err
	}
	var nb Bounds
	err = room.Do(func(r *Room) error {
		if err := r.State.Resize(min, max); err != nil {
			return err
		}
		nb = r.State.Bounds
		e.saveState(r)
		return nil
	})
	if err == nil {
		logger.Log.WithFields(logrus.Fields{"room": int(room.Ref), "bounds": nb.String()}).Info("grid resized")
	}
	return nb, err
}

// SetBase moves the room's base point.
func (e *Editor) SetBase(room *Room, c Coord) error {
	return room.Do(func(r *Room) error {
		if err := r.State.SetBase(c); err != nil {
			return err
		}
		e.saveState(r)
		return nil
	})
}

// SetCurrent moves the room's editing cursor.
func (e *Editor) SetCurrent(room *Room, c Coord) error {
	return room.Do(func(r *Room) error {
		if err := r.State.SetCurrent(c); err != nil {
			return err
		}
		e.saveState(r)
		return nil
	})
}

// SetCarve switches the room's carve policy.
func (e *Editor) SetCarve(room *Room, on bool) error {
	return room.Do(func(r *Room) error {
		r.State.Carve = on
		e.saveState(r)
		return nil
	})
}

// Annotate writes one field of the point at c. The value is parsed per field:
// exits take a direction list, empty takes on/off, into takes a room reference
// (blank clears it).
func (e *Editor) Annotate(room *Room, c Coord, field Field, value string) (Point, error) {
	value = strings.TrimSpace(value)
	var apply func(p *Point)

	switch field {
	case FieldName:
		apply = func(p *Point) { p.Name = value }
	case FieldDesc:
		apply = func(p *Point) { p.Desc = value }
	case FieldExits:
		set, ok := ParseDirSet(value)
		if !ok {
			return Point{}, fmt.Errorf("bad exit list %q", value)
		}
		apply = func(p *Point) { p.Exits = set }
	case FieldEmpty:
		on, err := ParseSwitch(value)
		if err != nil {
			return Point{}, err
		}
		apply = func(p *Point) { p.Empty = on }
	case FieldInto:
		dest := gamedb.Nothing
		if value != "" {
			ref, ok := gamedb.Nothing, false
			if e.Resolve != nil {
				ref, ok = e.Resolve(value)
			}
			if !ok {
				return Point{}, fmt.Errorf("%w: %s", ErrDestinationNotFound, value)
			}
			dest = ref
		}
		apply = func(p *Point) { p.Into = dest }
	default:
		return Point{}, fmt.Errorf("unknown field %d", field)
	}

	var out Point
	err := room.Do(func(r *Room) error {
		if !r.State.Bounds.Contains(c) {
			return fmt.Errorf("%w: %s not in %s", ErrOutOfBounds, c, r.State.Bounds)
		}
		out = r.Edit(c, apply)
		e.savePoint(r, c, out)
		return nil
	})
	if err == nil {
		logger.Log.WithFields(logrus.Fields{
			"room":  int(room.Ref),
			"coord": c.String(),
			"field": field.String(),
		}).Info("grid point annotated")
	}
	return out, err
}

// ParseSwitch reads on/off style values. Blank means on.
func ParseSwitch(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "on", "yes", "true", "1":
		return true, nil
	case "off", "no", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("bad switch value %q: want on or off", s)
}

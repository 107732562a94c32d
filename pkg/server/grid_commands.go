package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/crystal-mush/gridmush/pkg/events"
	"github.com/crystal-mush/gridmush/pkg/gamedb"
	"github.com/crystal-mush/gridmush/pkg/grid"
	"github.com/crystal-mush/gridmush/pkg/logger"
)

// GridOp is one parsed "grid" command. Each switch parses into its own type
// and has its own handler.
type GridOp interface {
	// builder reports whether the op needs builder rights.
	builder() bool
}

type (
	// gridStatus is the bare "grid" command: a summary of the room.
	gridStatus struct{}
	// gridExits lists the directions open from the caller's cell.
	gridExits struct{}
	// gridHere shows the caller's cell.
	gridHere struct{}
	// gridSize shows the bounds, or resizes when Range is set.
	gridSize struct{ Range string }
	// gridBase shows the base, or moves it when At is set.
	gridBase struct{ At *grid.Coord }
	// gridCurrent moves the editing cursor to At, or to the caller's cell.
	gridCurrent struct{ At *grid.Coord }
	// gridAnnotate writes one point field at At, or at the cursor.
	gridAnnotate struct {
		Field grid.Field
		At    *grid.Coord
		Value string
	}
	// gridThere shows the occupant log of At, or of the caller's cell.
	gridThere struct{ At *grid.Coord }
	// gridRender draws the map.
	gridRender struct{ Size grid.RenderSize }
	// gridCarve switches the carve policy.
	gridCarve struct{ On bool }
)

func (gridStatus) builder() bool   { return false }
func (gridExits) builder() bool    { return false }
func (gridHere) builder() bool     { return false }
func (o gridSize) builder() bool   { return o.Range != "" }
func (o gridBase) builder() bool   { return o.At != nil }
func (gridCurrent) builder() bool  { return true }
func (gridAnnotate) builder() bool { return true }
func (gridThere) builder() bool    { return true }
func (gridRender) builder() bool   { return true }
func (gridCarve) builder() bool    { return true }

var annotateFields = map[string]grid.Field{
	"name":  grid.FieldName,
	"desc":  grid.FieldDesc,
	"exit":  grid.FieldExits,
	"exits": grid.FieldExits,
	"into":  grid.FieldInto,
	"empty": grid.FieldEmpty,
}

// ParseGridOp turns the switches and argument of a "grid" command into an op.
// "/exits" with no argument lists open directions; with an argument it sets
// the exit markers of a point, like "/exit".
func ParseGridOp(switches []string, args string) (GridOp, error) {
	args = strings.TrimSpace(args)
	if len(switches) == 0 {
		return gridStatus{}, nil
	}
	if len(switches) > 1 {
		return nil, fmt.Errorf("use one switch at a time")
	}

	sw := strings.ToLower(switches[0])
	switch sw {
	case "exits":
		if args == "" {
			return gridExits{}, nil
		}
	case "here":
		return gridHere{}, nil
	case "size":
		return gridSize{Range: args}, nil
	case "base":
		at, err := optionalCoord(args)
		return gridBase{At: at}, err
	case "current":
		at, err := optionalCoord(args)
		return gridCurrent{At: at}, err
	case "there":
		at, err := optionalCoord(args)
		return gridThere{At: at}, err
	case "small":
		return gridRender{Size: grid.Small}, nil
	case "large":
		return gridRender{Size: grid.Large}, nil
	case "carve":
		on, err := grid.ParseSwitch(args)
		return gridCarve{On: on}, err
	}

	field, ok := annotateFields[sw]
	if !ok {
		return nil, fmt.Errorf("unknown switch /%s", sw)
	}
	op := gridAnnotate{Field: field, Value: args}
	// "x,y=value" addresses a point other than the cursor.
	if lhs, rhs, found := strings.Cut(args, "="); found {
		if c, err := grid.ParseCoord(lhs); err == nil {
			op.At = &c
			op.Value = strings.TrimSpace(rhs)
		}
	}
	return op, nil
}

func optionalCoord(s string) (*grid.Coord, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	c, err := grid.ParseCoord(s)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// gridErrorText turns a grid error into the line the player sees.
func gridErrorText(err error) string {
	switch {
	case errors.Is(err, grid.ErrOutOfBounds):
		return "That point is outside the grid."
	case errors.Is(err, grid.ErrRange):
		return fmt.Sprintf("A grid may span at most %d cells per axis, minimum first.", grid.MaxSpan)
	case errors.Is(err, grid.ErrBaseOutOfRange):
		return "That size would leave the base point outside the grid."
	case errors.Is(err, grid.ErrDestinationNotFound):
		return "I can't find that room."
	case errors.Is(err, grid.ErrNotGrid):
		return "This is not a grid room."
	}
	return "Grid: " + err.Error()
}

func cmdGrid(g *Game, d *Descriptor, args string, switches []string) {
	room, ok := g.Grids.Get(g.PlayerLocation(d.Player))
	if !ok {
		d.Send(gridErrorText(grid.ErrNotGrid))
		return
	}
	op, err := ParseGridOp(switches, args)
	if err != nil {
		d.Send(gridErrorText(err))
		return
	}
	if op.builder() && !Builder(g, d.Player) {
		d.Send("Permission denied.")
		return
	}

	switch op := op.(type) {
	case gridStatus:
		err = gridShowStatus(g, d, room)
	case gridExits:
		err = gridShowExits(g, d, room)
	case gridHere:
		err = gridShowHere(g, d, room)
	case gridSize:
		err = gridApplySize(g, d, room, op)
	case gridBase:
		err = gridApplyBase(g, d, room, op)
	case gridCurrent:
		err = gridApplyCurrent(g, d, room, op)
	case gridAnnotate:
		err = gridApplyAnnotate(g, d, room, op)
	case gridThere:
		err = gridShowThere(g, d, room, op)
	case gridRender:
		err = gridShowMap(g, d, room, op)
	case gridCarve:
		err = gridApplyCarve(g, d, room, op)
	}
	if err != nil {
		d.Send(gridErrorText(err))
	}
}

// callerCell returns where the caller stands in room and whether that was
// recorded or fell back to the cursor.
func callerCell(g *Game, d *Descriptor, room *grid.Room) (grid.Coord, bool, error) {
	var c grid.Coord
	var recorded bool
	err := room.Do(func(r *grid.Room) error {
		var err error
		c, recorded, err = g.Navigator.Position(context.Background(), r, d.Player)
		return err
	})
	return c, recorded, err
}

func gridShowStatus(g *Game, d *Descriptor, room *grid.Room) error {
	var st grid.State
	var points int
	room.View(func(r *grid.Room) {
		st = r.State
		points = len(r.Points)
	})
	c, _, err := callerCell(g, d, room)
	if err != nil {
		return err
	}
	carve := "off"
	if st.Carve {
		carve = "on"
	}
	d.Send(fmt.Sprintf("Grid of %s: %s (%dx%d), %d annotated points.",
		g.PlayerName(room.Ref), st.Bounds, st.Bounds.Width(), st.Bounds.Height(), points))
	d.Send(fmt.Sprintf("Base %s, cursor %s, carve %s. You are at %s.", st.Base, st.Current, carve, c))
	return nil
}

func gridShowExits(g *Game, d *Descriptor, room *grid.Room) error {
	var open []grid.Direction
	var at grid.Coord
	err := room.Do(func(r *grid.Room) error {
		c, _, err := g.Navigator.Position(context.Background(), r, d.Player)
		if err != nil {
			return err
		}
		at = c
		if r.Point(c).HasInto() {
			return nil
		}
		open = r.Open(c)
		return nil
	})
	if err != nil {
		return err
	}
	if len(open) == 0 {
		d.Send(fmt.Sprintf("No paths lead from %s.", at))
		return nil
	}
	names := make([]string, len(open))
	for i, dir := range open {
		names[i] = dir.String()
	}
	d.Send(fmt.Sprintf("Paths from %s: %s.", at, strings.Join(names, ", ")))
	return nil
}

func gridShowHere(g *Game, d *Descriptor, room *grid.Room) error {
	c, recorded, err := callerCell(g, d, room)
	if err != nil {
		return err
	}
	var p grid.Point
	room.View(func(r *grid.Room) {
		p = r.Point(c)
	})
	label := p.Label(g.PlayerName(room.Ref), c)
	if recorded {
		d.Send(fmt.Sprintf("You are at %s: %s.", c, label))
	} else {
		d.Send(fmt.Sprintf("You have not moved yet; you stand at the cursor %s: %s.", c, label))
	}
	if p.HasInto() {
		d.Send(fmt.Sprintf("This point leads into %s.", g.PlayerName(p.Into)))
	}
	return nil
}

func gridApplySize(g *Game, d *Descriptor, room *grid.Room, op gridSize) error {
	if op.Range == "" {
		var b grid.Bounds
		room.View(func(r *grid.Room) {
			b = r.State.Bounds
		})
		d.Send(fmt.Sprintf("Grid bounds: %s (%dx%d).", b, b.Width(), b.Height()))
		return nil
	}
	b, err := g.Editor.Resize(room, op.Range)
	if err != nil {
		return err
	}
	g.Metrics.GridEdit("size")
	d.Send(fmt.Sprintf("Grid resized to %s (%dx%d).", b, b.Width(), b.Height()))
	return nil
}

func gridApplyBase(g *Game, d *Descriptor, room *grid.Room, op gridBase) error {
	if op.At == nil {
		var base grid.Coord
		room.View(func(r *grid.Room) {
			base = r.State.Base
		})
		d.Send(fmt.Sprintf("Base point: %s.", base))
		return nil
	}
	if err := g.Editor.SetBase(room, *op.At); err != nil {
		return err
	}
	g.Metrics.GridEdit("base")
	d.Send(fmt.Sprintf("Base point set to %s.", *op.At))
	return nil
}

func gridApplyCurrent(g *Game, d *Descriptor, room *grid.Room, op gridCurrent) error {
	at := op.At
	if at == nil {
		c, _, err := callerCell(g, d, room)
		if err != nil {
			return err
		}
		at = &c
	}
	if err := g.Editor.SetCurrent(room, *at); err != nil {
		return err
	}
	g.Metrics.GridEdit("current")
	d.Send(fmt.Sprintf("Cursor set to %s.", *at))
	return nil
}

func gridApplyAnnotate(g *Game, d *Descriptor, room *grid.Room, op gridAnnotate) error {
	at := op.At
	if at == nil {
		var cur grid.Coord
		room.View(func(r *grid.Room) {
			cur = r.State.Current
		})
		at = &cur
	}
	p, err := g.Editor.Annotate(room, *at, op.Field, op.Value)
	if err != nil {
		return err
	}
	g.Metrics.GridEdit(op.Field.String())

	switch op.Field {
	case grid.FieldName:
		if p.Name == "" {
			d.Send(fmt.Sprintf("Name cleared at %s.", *at))
		} else {
			d.Send(fmt.Sprintf("Point %s named %s.", *at, p.Name))
		}
	case grid.FieldDesc:
		d.Send(fmt.Sprintf("Description set at %s.", *at))
	case grid.FieldExits:
		var names []string
		for _, dir := range p.Exits.List() {
			names = append(names, dir.String())
		}
		if len(names) == 0 {
			d.Send(fmt.Sprintf("Exit markers cleared at %s.", *at))
		} else {
			d.Send(fmt.Sprintf("Exit markers at %s: %s.", *at, strings.Join(names, ", ")))
		}
	case grid.FieldInto:
		if p.HasInto() {
			d.Send(fmt.Sprintf("Point %s now leads into %s(#%d).", *at, g.PlayerName(p.Into), p.Into))
		} else {
			d.Send(fmt.Sprintf("Point %s no longer leads anywhere.", *at))
		}
	case grid.FieldEmpty:
		if p.Empty {
			d.Send(fmt.Sprintf("Point %s is now empty.", *at))
		} else {
			d.Send(fmt.Sprintf("Point %s is no longer empty.", *at))
		}
	}
	return nil
}

func gridShowThere(g *Game, d *Descriptor, room *grid.Room, op gridThere) error {
	at := op.At
	if at == nil {
		c, _, err := callerCell(g, d, room)
		if err != nil {
			return err
		}
		at = &c
	}
	var p grid.Point
	var inBounds bool
	room.View(func(r *grid.Room) {
		inBounds = r.State.Bounds.Contains(*at)
		p = r.Point(*at)
	})
	if !inBounds {
		return fmt.Errorf("%w: %s", grid.ErrOutOfBounds, *at)
	}

	d.Send(fmt.Sprintf("%s:", p.Label(g.PlayerName(room.Ref), *at)))
	visitors := p.RecentVisitors()
	if len(visitors) == 0 {
		d.Send("  Nobody has arrived here.")
	}
	for _, v := range visitors {
		d.Send(fmt.Sprintf("  %-20s %s", g.PlayerName(v.Ref), formatVisit(v.When)))
	}

	if g.Journal != nil {
		recs, err := g.Journal.RecentVisits(context.Background(), room.Ref, *at, 5)
		if err != nil {
			logger.Log.Printf("ERROR: read visit journal: %v", err)
			return nil
		}
		if len(recs) > 0 {
			d.Send("Recent arrivals:")
			for _, rec := range recs {
				d.Send(fmt.Sprintf("  %-20s %s heading %s", rec.Name, formatVisit(rec.At.Unix()), rec.Direction))
			}
		}
	}
	return nil
}

func formatVisit(unix int64) string {
	return time.Unix(unix, 0).UTC().Format("2006-01-02 15:04 MST")
}

func gridShowMap(g *Game, d *Descriptor, room *grid.Room, op gridRender) error {
	var text string
	var bounds grid.Bounds
	room.View(func(r *grid.Room) {
		text = r.Render(op.Size)
		bounds = r.State.Bounds
	})
	size := "small"
	if op.Size == grid.Large {
		size = "large"
	}
	g.Emit(events.Event{
		Type:   events.EvGridMap,
		Player: d.Player,
		Source: d.Player,
		Room:   room.Ref,
		Text:   strings.TrimRight(text, "\n"),
		Data: map[string]any{
			"room":   int(room.Ref),
			"size":   size,
			"bounds": bounds.String(),
			"map":    text,
		},
	})
	return nil
}

func gridApplyCarve(g *Game, d *Descriptor, room *grid.Room, op gridCarve) error {
	if err := g.Editor.SetCarve(room, op.On); err != nil {
		return err
	}
	g.Metrics.GridEdit("carve")
	if op.On {
		d.Send("Carve on: only named or described points can be entered.")
	} else {
		d.Send("Carve off.")
	}
	return nil
}

// gridArrival is the journal event for nav arriving at out.To.
func gridArrival(room, nav gamedb.DBRef, name string, out grid.Outcome) events.Event {
	return events.Event{
		Type:   events.EvMove,
		Player: gamedb.Nothing,
		Source: nav,
		Room:   room,
		Data: map[string]any{
			"grid":      true,
			"room":      int(room),
			"navigator": int(nav),
			"name":      name,
			"direction": out.Direction.String(),
			"from_x":    out.From.X,
			"from_y":    out.From.Y,
			"x":         out.To.X,
			"y":         out.To.Y,
		},
	}
}

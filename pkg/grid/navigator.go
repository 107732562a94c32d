package grid

import (
	"context"
	"fmt"
	"time"

	"github.com/crystal-mush/gridmush/pkg/gamedb"
	"github.com/crystal-mush/gridmush/pkg/logger"
	"github.com/sirupsen/logrus"
)

// World is what the navigator needs from the game engine.
type World interface {
	Name(ref gamedb.DBRef) string
	Location(ref gamedb.DBRef) gamedb.DBRef
	Tell(ref gamedb.DBRef, msg string)
	// Announce sends msg to everyone in room except the listed objects.
	Announce(room gamedb.DBRef, except []gamedb.DBRef, msg string)
	// Look refreshes ref's view of its location.
	Look(ref gamedb.DBRef)
	// Relocate moves ref to dest through the ordinary room-to-room path.
	Relocate(ref, dest gamedb.DBRef)
}

// Store persists grid data. A nil Store keeps everything in memory.
type Store interface {
	SaveState(room gamedb.DBRef, s State) error
	SavePoint(room gamedb.DBRef, c Coord, p Point) error
}

// OutcomeKind classifies a move attempt.
type OutcomeKind int

const (
	Blocked OutcomeKind = iota
	IntoTransfer
	Arrived
)

func (k OutcomeKind) String() string {
	switch k {
	case Blocked:
		return "blocked"
	case IntoTransfer:
		return "into"
	case Arrived:
		return "arrived"
	default:
		return "unknown"
	}
}

// Outcome describes what a move attempt did.
type Outcome struct {
	Kind      OutcomeKind
	Direction Direction
	From      Coord
	To        Coord
	FromLabel string
	ToLabel   string
	Into      gamedb.DBRef
	Carried   []gamedb.DBRef
}

// Navigator moves navigators around inside grid rooms.
type Navigator struct {
	Positions PositionTable
	Followers *Followers
	World     World
	Store     Store
	Now       func() time.Time
}

func (n *Navigator) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return time.Now()
}

// Position returns where nav stands in room: its recorded cell, or the
// room's editing cursor when it has not moved here yet. The caller must
// hold the room lock.
func (n *Navigator) Position(ctx context.Context, r *Room, nav gamedb.DBRef) (Coord, bool, error) {
	pos, ok, err := n.Positions.Get(ctx, nav)
	if err != nil {
		return Coord{}, false, err
	}
	if ok && pos.Room == r.Ref {
		return pos.Coord, true, nil
	}
	return r.State.Current, false, nil
}

// Reset forgets nav's position. Called when nav enters a grid room from outside.
func (n *Navigator) Reset(ctx context.Context, nav gamedb.DBRef) error {
	return n.Positions.Clear(ctx, nav)
}

func (n *Navigator) savePoint(r *Room, c Coord, p Point) {
	if n.Store == nil {
		return
	}
	if err := n.Store.SavePoint(r.Ref, c, p); err != nil {
		logger.Log.Printf("ERROR: persist grid point %s in #%d: %v", c, r.Ref, err)
	}
}

// Move makes one move attempt for nav in direction dir.
func (n *Navigator) Move(ctx context.Context, room *Room, nav gamedb.DBRef, dir Direction) (Outcome, error) {
	out := Outcome{Direction: dir, Into: gamedb.Nothing}
	roomName := n.World.Name(room.Ref)

	err := room.Do(func(r *Room) error {
		origin, _, err := n.Position(ctx, r, nav)
		if err != nil {
			return err
		}
		out.From = origin
		here := r.Point(origin)
		if here.HasInto() {
			out.Kind = IntoTransfer
			out.Into = here.Into
			return nil
		}

		target := Resolve(origin, dir)
		out.To = target
		if !r.State.Bounds.Contains(target) || r.Point(target).Solid(r.State.Carve) {
			out.Kind = Blocked
			return nil
		}

		// Riders are followers standing exactly where the leader stood.
		var riders []gamedb.DBRef
		if n.Followers != nil {
			for _, f := range n.Followers.Of(nav) {
				if n.World.Location(f) != r.Ref {
					continue
				}
				fc, _, err := n.Position(ctx, r, f)
				if err != nil {
					return err
				}
				if fc == origin {
					riders = append(riders, f)
				}
			}
		}

		dest := Position{Room: r.Ref, Coord: target}
		if err := n.Positions.Set(ctx, nav, dest); err != nil {
			return err
		}
		when := n.now().Unix()
		last := r.stamp(target, nav, when)
		for _, f := range riders {
			if err := n.Positions.Set(ctx, f, dest); err != nil {
				logger.Log.Printf("grid: carry #%d with #%d: %v", f, nav, err)
				continue
			}
			last = r.stamp(target, f, when)
			out.Carried = append(out.Carried, f)
		}

		// Persist under the lock so saves land in edit order.
		n.savePoint(r, target, last)

		out.Kind = Arrived
		there := r.Point(target)
		out.FromLabel = here.Label(roomName, origin)
		out.ToLabel = there.Label(roomName, target)
		out.Into = there.Into
		return nil
	})
	if err != nil {
		return out, fmt.Errorf("grid move #%d in #%d: %w", nav, room.Ref, err)
	}

	logger.Log.WithFields(logrus.Fields{
		"room":      int(room.Ref),
		"navigator": int(nav),
		"direction": dir.String(),
		"from":      out.From.String(),
		"to":        out.To.String(),
		"outcome":   out.Kind.String(),
	}).Debug("grid move")

	switch out.Kind {
	case Blocked:
		n.World.Tell(nav, fmt.Sprintf("You cannot travel %s.", dir))
	case IntoTransfer:
		n.World.Relocate(nav, out.Into)
	case Arrived:
		name := n.World.Name(nav)
		except := append([]gamedb.DBRef{nav}, out.Carried...)
		n.World.Announce(room.Ref, except,
			fmt.Sprintf("%s travels %s from %s to %s.", name, dir, out.FromLabel, out.ToLabel))
		for _, f := range out.Carried {
			n.World.Tell(f, fmt.Sprintf("You follow %s %s.", name, dir))
		}
		if out.Into != gamedb.Nothing {
			// An into-point hands arrivals straight to its target room.
			n.World.Relocate(nav, out.Into)
			for _, f := range out.Carried {
				n.World.Relocate(f, out.Into)
			}
			break
		}
		n.World.Look(nav)
		for _, f := range out.Carried {
			n.World.Look(f)
		}
	}
	return out, nil
}

// Open returns the directions nav could travel from c. The caller must hold
// the room lock.
func (r *Room) Open(c Coord) []Direction {
	var out []Direction
	for _, d := range Directions() {
		t := Resolve(c, d)
		if r.State.Bounds.Contains(t) && !r.Point(t).Solid(r.State.Carve) {
			out = append(out, d)
		}
	}
	return out
}

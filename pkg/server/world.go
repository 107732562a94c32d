package server

import (
	"github.com/crystal-mush/gridmush/pkg/events"
	"github.com/crystal-mush/gridmush/pkg/gamedb"
	"github.com/crystal-mush/gridmush/pkg/grid"
)

// Game is the world the grid navigator moves things around in.
var _ grid.World = (*Game)(nil)

// Name implements grid.World.
func (g *Game) Name(ref gamedb.DBRef) string {
	return g.PlayerName(ref)
}

// Location implements grid.World.
func (g *Game) Location(ref gamedb.DBRef) gamedb.DBRef {
	return g.PlayerLocation(ref)
}

// Tell sends a private line to every connection of ref.
func (g *Game) Tell(ref gamedb.DBRef, msg string) {
	g.EventBus.EmitToPlayer(ref, events.Event{
		Type:   events.EvText,
		Source: ref,
		Text:   msg,
	})
}

// Announce sends a movement line to a room.
func (g *Game) Announce(room gamedb.DBRef, except []gamedb.DBRef, msg string) {
	g.EmitRoomExcept(room, except, events.Event{
		Type: events.EvMove,
		Room: room,
		Text: msg,
	})
}

// Look shows ref its current location on every connection it has.
func (g *Game) Look(ref gamedb.DBRef) {
	loc := g.PlayerLocation(ref)
	for _, d := range g.Conns.GetByPlayer(ref) {
		g.ShowRoom(d, loc)
	}
}

// Relocate implements grid.World with the ordinary room-to-room move.
func (g *Game) Relocate(ref, dest gamedb.DBRef) {
	if !g.MoveObject(ref, dest) {
		g.Tell(ref, "That point leads nowhere.")
	}
}

package server

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/crystal-mush/gridmush/pkg/gamedb"
	"github.com/crystal-mush/gridmush/pkg/grid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// gridView is what a navigator sees standing on a named or described point.
type gridView struct {
	point grid.Point
	coord grid.Coord
}

// viewerPoint returns the point the viewer stands on in room when it has a
// recorded position there and the point has a name or description.
func (g *Game) viewerPoint(viewer, room gamedb.DBRef) (gridView, bool) {
	r, ok := g.Grids.Get(room)
	if !ok {
		return gridView{}, false
	}
	pos, ok, err := g.Navigator.Positions.Get(context.Background(), viewer)
	if err != nil || !ok || pos.Room != room {
		return gridView{}, false
	}
	var p grid.Point
	r.View(func(r *grid.Room) {
		p = r.Point(pos.Coord)
	})
	if p.Name == "" && p.Desc == "" {
		return gridView{}, false
	}
	return gridView{point: p, coord: pos.Coord}, true
}

// ShowRoom displays a room to a player. In a grid room a player standing on
// a named or described point sees that point instead of the whole room.
func (g *Game) ShowRoom(d *Descriptor, room gamedb.DBRef) {
	if view, ok := g.viewerPoint(d.Player, room); ok {
		g.showPoint(d, room, view)
		return
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	roomObj, ok := g.DB.Objects[room]
	if !ok {
		d.Send("You see nothing special.")
		return
	}
	d.Send(DisplayName(roomObj.Name))
	if desc := roomObj.GetAttr(gamedb.A_DESC); desc != "" {
		d.Send(desc)
	}

	seeAll := wizard(g.DB, d.Player)
	var contents []string
	for _, ref := range g.contents(room) {
		if ref == d.Player {
			continue
		}
		obj := g.DB.Objects[ref]
		if obj.IsGoing() || (obj.HasFlag(gamedb.FlagDark) && !seeAll) {
			continue
		}
		switch obj.ObjType() {
		case gamedb.TypePlayer:
			if g.Conns.IsConnected(ref) {
				contents = append(contents, DisplayName(obj.Name))
			}
		case gamedb.TypeThing:
			contents = append(contents, DisplayName(obj.Name))
		}
	}
	if len(contents) > 0 {
		d.Send("Contents:")
		for _, name := range contents {
			d.Send("  " + name)
		}
	}

	var exits []string
	seen := make(map[gamedb.DBRef]bool)
	for ref := roomObj.Exits; ref != gamedb.Nothing && !seen[ref]; {
		seen[ref] = true
		exitObj, ok := g.DB.Objects[ref]
		if !ok {
			break
		}
		if !exitObj.HasFlag(gamedb.FlagDark) {
			exits = append(exits, DisplayName(exitObj.Name))
		}
		ref = exitObj.Next
	}
	if len(exits) > 0 {
		d.Send("Obvious exits:")
		d.Send("  " + strings.Join(exits, "  "))
	}
}

// showPoint renders the grid point view: the point's label and description,
// its marked exits and whoever else stands on the same cell.
func (g *Game) showPoint(d *Descriptor, room gamedb.DBRef, view gridView) {
	roomName := g.PlayerName(room)
	d.Send(view.point.Label(roomName, view.coord))
	if view.point.Desc != "" {
		d.Send(view.point.Desc)
	}

	if dirs := view.point.Exits.List(); len(dirs) > 0 {
		caser := cases.Title(language.English)
		names := make([]string, len(dirs))
		for i, dir := range dirs {
			names[i] = caser.String(dir.String())
		}
		d.Send("Obvious exits:")
		d.Send("  " + strings.Join(names, "  "))
	}

	if others := g.standingAt(room, view.coord, d.Player); len(others) > 0 {
		d.Send("Also here: " + strings.Join(others, ", "))
	}
}

// standingAt lists the connected players in room whose recorded position is c.
func (g *Game) standingAt(room gamedb.DBRef, c grid.Coord, except gamedb.DBRef) []string {
	type occupant struct {
		ref  gamedb.DBRef
		name string
	}
	var candidates []occupant
	g.mu.RLock()
	for _, ref := range g.contents(room) {
		obj := g.DB.Objects[ref]
		if ref == except || obj.ObjType() != gamedb.TypePlayer || obj.HasFlag(gamedb.FlagDark) {
			continue
		}
		if g.Conns.IsConnected(ref) {
			candidates = append(candidates, occupant{ref, DisplayName(obj.Name)})
		}
	}
	g.mu.RUnlock()

	var names []string
	for _, o := range candidates {
		pos, ok, err := g.Navigator.Positions.Get(context.Background(), o.ref)
		if err == nil && ok && pos.Room == room && pos.Coord == c {
			names = append(names, o.name)
		}
	}
	sort.Strings(names)
	return names
}

// ShowObject displays an object to a player.
func (g *Game) ShowObject(d *Descriptor, target gamedb.DBRef) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	obj, ok := g.DB.Objects[target]
	if !ok {
		d.Send("I don't see that here.")
		return
	}
	d.Send(DisplayName(obj.Name))
	if desc := obj.GetAttr(gamedb.A_DESC); desc != "" {
		d.Send(desc)
	} else {
		d.Send("You see nothing special.")
	}
}

// ShowWho lists connected players.
func (g *Game) ShowWho(d *Descriptor) {
	isWiz := d.State == ConnConnected && Wizard(g, d.Player)
	now := time.Now()

	if isWiz {
		d.Send("Player Name        On For Idle   Room    Cmds   Host")
	} else {
		d.Send(fmt.Sprintf("%-16s%9s %4s", "Player Name", "On For", "Idle"))
	}

	type whoEntry struct {
		name  string
		onFor string
		idle  string
		loc   gamedb.DBRef
		cmds  int
		host  string
	}
	var entries []whoEntry
	for _, dd := range g.Conns.AllDescriptors() {
		if dd.State != ConnConnected {
			continue
		}
		host := dd.Addr
		if idx := strings.LastIndex(host, ":"); idx >= 0 {
			host = host[:idx]
		}
		entries = append(entries, whoEntry{
			name:  g.PlayerName(dd.Player),
			onFor: FormatConnTime(now.Sub(dd.ConnTime)),
			idle:  FormatIdleTime(now.Sub(dd.LastCmd)),
			loc:   g.PlayerLocation(dd.Player),
			cmds:  dd.CmdCount,
			host:  host,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	for _, e := range entries {
		if isWiz {
			d.Send(fmt.Sprintf("%-16s%9s %4s   #%-6d%5d   %-25s",
				e.name, e.onFor, e.idle, e.loc, e.cmds, e.host))
		} else {
			d.Send(fmt.Sprintf("%-16s%9s %4s", e.name, e.onFor, e.idle))
		}
	}
	d.Send(fmt.Sprintf("%d Players logged in.", len(entries)))
}

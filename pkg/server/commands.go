package server

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/crystal-mush/gridmush/pkg/events"
	"github.com/crystal-mush/gridmush/pkg/gamedb"
	"github.com/crystal-mush/gridmush/pkg/grid"
	"github.com/crystal-mush/gridmush/pkg/logger"
)

// CommandHandler is the signature for game command implementations.
type CommandHandler func(g *Game, d *Descriptor, args string, switches []string)

// Command represents a registered game command.
type Command struct {
	Name    string
	Handler CommandHandler
}

// InitCommands registers all available game commands.
func InitCommands() map[string]*Command {
	cmds := make(map[string]*Command)
	register := func(name string, h CommandHandler) {
		cmds[name] = &Command{Name: name, Handler: h}
	}

	register("say", cmdSay)
	register("pose", cmdPose)
	register("look", cmdLook)
	register("l", cmdLook)
	register("go", cmdGo)
	register("goto", cmdGo)
	register("move", cmdGo)
	register("home", cmdHome)
	register("who", cmdWho)
	register("quit", cmdQuit)
	register("follow", cmdFollow)
	register("unfollow", cmdUnfollow)

	register("@dig", cmdDig)
	register("@open", cmdOpen)
	register("@describe", cmdDescribe)
	register("@desc", cmdDescribe)
	register("@teleport", cmdTeleport)
	register("@tel", cmdTeleport)
	register("grid", cmdGrid)
	register("@grid", cmdGrid)

	for _, dir := range grid.Directions() {
		h := makeMover(dir)
		register(dir.String(), h)
		register(dir.Short(), h)
	}
	return cmds
}

// DispatchCommand parses and dispatches a player command.
func DispatchCommand(g *Game, d *Descriptor, input string) {
	input = strings.TrimSpace(input)
	if input == "" {
		return
	}
	g.Metrics.CommandProcessed()

	switch input[0] {
	case '"':
		cmdSay(g, d, input[1:], nil)
		return
	case ':':
		cmdPose(g, d, input[1:], nil)
		return
	}

	cmdName, args, _ := strings.Cut(input, " ")
	args = strings.TrimSpace(args)

	// Switches ride on the command name: "grid/name" -> "grid", ["name"].
	cmdName, rest, hasSwitches := strings.Cut(cmdName, "/")
	var switches []string
	if hasSwitches {
		switches = strings.Split(rest, "/")
	}

	lower := strings.ToLower(cmdName)
	if cmd, ok := g.Commands[lower]; ok {
		cmd.Handler(g, d, args, switches)
		return
	}

	// @-commands may be abbreviated while unambiguous (@tel, @des).
	if len(lower) > 1 && lower[0] == '@' {
		if cmd := uniquePrefix(g.Commands, lower); cmd != nil {
			cmd.Handler(g, d, args, switches)
			return
		}
	}

	if tryMoveByExit(g, d, input) {
		return
	}

	d.Send("Huh?  (Type \"help\" for help.)")
}

func uniquePrefix(cmds map[string]*Command, prefix string) *Command {
	var found *Command
	for name, cmd := range cmds {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if found != nil && found != cmd {
			return nil
		}
		found = cmd
	}
	return found
}

// HasSwitch reports whether name is among switches, ignoring case.
func HasSwitch(switches []string, name string) bool {
	return slices.ContainsFunc(switches, func(s string) bool { return strings.EqualFold(s, name) })
}

// --- Communication ---

func cmdSay(g *Game, d *Descriptor, args string, _ []string) {
	args = strings.TrimSpace(args)
	if args == "" {
		d.Send("Say what?")
		return
	}
	name := g.PlayerName(d.Player)
	loc := g.PlayerLocation(d.Player)

	g.Emit(events.Event{
		Type:   events.EvSay,
		Player: d.Player,
		Source: d.Player,
		Room:   loc,
		Text:   fmt.Sprintf("You say \"%s\"", args),
		Data:   map[string]any{"message": args, "speaker": name},
	})
	g.EmitRoomExcept(loc, []gamedb.DBRef{d.Player}, events.Event{
		Type:   events.EvSay,
		Source: d.Player,
		Text:   fmt.Sprintf("%s says \"%s\"", name, args),
		Data:   map[string]any{"message": args, "speaker": name},
	})
}

func cmdPose(g *Game, d *Descriptor, args string, _ []string) {
	args = strings.TrimSpace(args)
	name := g.PlayerName(d.Player)
	loc := g.PlayerLocation(d.Player)
	g.EmitRoom(loc, events.Event{
		Type:   events.EvPose,
		Source: d.Player,
		Text:   fmt.Sprintf("%s %s", name, args),
		Data:   map[string]any{"pose": args, "player": name},
	})
}

// --- Movement ---

// makeMover returns the handler for one compass command. Inside a grid room
// it drives the navigator; elsewhere it falls back to an exit of that name.
func makeMover(dir grid.Direction) CommandHandler {
	return func(g *Game, d *Descriptor, _ string, _ []string) {
		loc := g.PlayerLocation(d.Player)
		if room, ok := g.Grids.Get(loc); ok {
			moveInGrid(g, d, room, dir)
			return
		}
		if tryMoveByExit(g, d, dir.String()) || tryMoveByExit(g, d, dir.Short()) {
			return
		}
		d.Send("You can't go that way.")
	}
}

// moveInGrid makes one navigator move and records the arrivals.
func moveInGrid(g *Game, d *Descriptor, room *grid.Room, dir grid.Direction) {
	out, err := g.Navigator.Move(context.Background(), room, d.Player, dir)
	if err != nil {
		logger.Log.Printf("ERROR: %v", err)
		d.Send("Something went wrong with that move.")
		return
	}
	g.Metrics.GridMove(out.Kind)
	if out.Kind != grid.Arrived {
		return
	}
	g.Emit(gridArrival(room.Ref, d.Player, g.PlayerName(d.Player), out))
	for _, f := range out.Carried {
		g.Emit(gridArrival(room.Ref, f, g.PlayerName(f), out))
	}
}

func cmdGo(g *Game, d *Descriptor, args string, _ []string) {
	if args == "" {
		d.Send("Go where?")
		return
	}
	if dir, ok := grid.ParseDirection(args); ok {
		if room, isGrid := g.Grids.Get(g.PlayerLocation(d.Player)); isGrid {
			moveInGrid(g, d, room, dir)
			return
		}
	}
	if !tryMoveByExit(g, d, args) {
		d.Send("You can't go that way.")
	}
}

// tryMoveByExit moves the player through the first exit of its location
// whose name or alias starts with name.
func tryMoveByExit(g *Game, d *Descriptor, name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}

	dest, found := func() (gamedb.DBRef, bool) {
		g.mu.RLock()
		defer g.mu.RUnlock()
		playerObj, ok := g.DB.Objects[d.Player]
		if !ok {
			return gamedb.Nothing, false
		}
		locObj, ok := g.DB.Objects[playerObj.Location]
		if !ok {
			return gamedb.Nothing, false
		}
		seen := make(map[gamedb.DBRef]bool)
		for ref := locObj.Exits; ref != gamedb.Nothing && !seen[ref]; {
			seen[ref] = true
			exitObj, ok := g.DB.Objects[ref]
			if !ok {
				break
			}
			for _, ename := range strings.Split(exitObj.Name, ";") {
				ename = strings.TrimSpace(ename)
				if len(ename) >= len(name) && strings.EqualFold(ename[:len(name)], name) {
					dest := exitObj.Location
					if dest == gamedb.Home {
						dest = playerObj.Link
					}
					return dest, true
				}
			}
			ref = exitObj.Next
		}
		return gamedb.Nothing, false
	}()
	if !found {
		return false
	}
	if dest == gamedb.Nothing {
		d.Send("That exit doesn't lead anywhere.")
		return true
	}
	g.MovePlayer(d, dest)
	return true
}

func cmdHome(g *Game, d *Descriptor, _ string, _ []string) {
	g.mu.RLock()
	home := gamedb.Nothing
	if obj, ok := g.DB.Objects[d.Player]; ok {
		home = obj.Link
	}
	g.mu.RUnlock()
	if home == gamedb.Nothing {
		d.Send("You have no home!")
		return
	}
	d.Send("There's no place like home...")
	g.MovePlayer(d, home)
}

func cmdFollow(g *Game, d *Descriptor, args string, _ []string) {
	if args == "" {
		d.Send("Follow whom?")
		return
	}
	target := g.MatchObject(d.Player, args)
	if target == gamedb.Nothing {
		d.Send("I don't see that here.")
		return
	}
	if t, ok := g.ObjType(target); !ok || t != gamedb.TypePlayer {
		d.Send("You can only follow players.")
		return
	}
	if target == d.Player {
		d.Send("You can't follow yourself.")
		return
	}
	if g.PlayerLocation(target) != g.PlayerLocation(d.Player) {
		d.Send("I don't see that here.")
		return
	}
	g.Followers.Follow(d.Player, target)
	d.Send(fmt.Sprintf("You now follow %s.", g.PlayerName(target)))
	g.Tell(target, fmt.Sprintf("%s now follows you.", g.PlayerName(d.Player)))
}

func cmdUnfollow(g *Game, d *Descriptor, _ string, _ []string) {
	leader, ok := g.Followers.Unfollow(d.Player)
	if !ok {
		d.Send("You aren't following anyone.")
		return
	}
	d.Send(fmt.Sprintf("You stop following %s.", g.PlayerName(leader)))
}

// --- Information ---

func cmdLook(g *Game, d *Descriptor, args string, _ []string) {
	if args == "" || strings.EqualFold(args, "here") {
		g.ShowRoom(d, g.PlayerLocation(d.Player))
		return
	}
	target := g.MatchObject(d.Player, args)
	if target == gamedb.Nothing {
		d.Send("I don't see that here.")
		return
	}
	if t, ok := g.ObjType(target); ok && t == gamedb.TypeRoom {
		g.ShowRoom(d, target)
		return
	}
	g.ShowObject(d, target)
}

func cmdWho(g *Game, d *Descriptor, _ string, _ []string) {
	g.ShowWho(d)
}

// --- Building ---

func cmdDig(g *Game, d *Descriptor, args string, switches []string) {
	if !Builder(g, d.Player) {
		d.Send("Permission denied.")
		return
	}
	if args == "" {
		d.Send("Dig what?")
		return
	}
	// @dig[/grid] name[=exit_to,exit_from]
	parts := strings.SplitN(args, "=", 2)
	roomName := strings.TrimSpace(parts[0])

	newRef := g.CreateObject(roomName, gamedb.TypeRoom, d.Player)
	d.Send(fmt.Sprintf("Room %s created as #%d.", roomName, newRef))

	if HasSwitch(switches, "grid") {
		room := g.Grids.Create(newRef)
		if g.Store != nil {
			if err := g.Store.SaveState(newRef, room.State); err != nil {
				logger.Log.Printf("ERROR: persist grid state #%d: %v", newRef, err)
			}
		}
		d.Send(fmt.Sprintf("Grid created: %s, base %s.", room.State.Bounds, room.State.Base))
	}

	if len(parts) > 1 {
		here := g.PlayerLocation(d.Player)
		exitParts := strings.SplitN(parts[1], ",", 2)
		if exitTo := strings.TrimSpace(exitParts[0]); exitTo != "" {
			exitRef := g.CreateExit(exitTo, here, newRef, d.Player)
			d.Send(fmt.Sprintf("Exit %s created as #%d.", exitTo, exitRef))
		}
		if len(exitParts) > 1 {
			if exitFrom := strings.TrimSpace(exitParts[1]); exitFrom != "" {
				exitRef := g.CreateExit(exitFrom, newRef, here, d.Player)
				d.Send(fmt.Sprintf("Exit %s created as #%d.", exitFrom, exitRef))
			}
		}
	}
}

func cmdOpen(g *Game, d *Descriptor, args string, _ []string) {
	if !Builder(g, d.Player) {
		d.Send("Permission denied.")
		return
	}
	if args == "" {
		d.Send("Open what?")
		return
	}
	// @open exit_name=destination
	parts := strings.SplitN(args, "=", 2)
	exitName := strings.TrimSpace(parts[0])
	dest := gamedb.Nothing
	if len(parts) > 1 {
		ref, ok := g.resolveRoom(parts[1])
		if !ok {
			d.Send("I can't find that room.")
			return
		}
		dest = ref
	}
	exitRef := g.CreateExit(exitName, g.PlayerLocation(d.Player), dest, d.Player)
	d.Send(fmt.Sprintf("Exit %s created as #%d.", exitName, exitRef))
}

func cmdDescribe(g *Game, d *Descriptor, args string, _ []string) {
	eqIdx := strings.IndexByte(args, '=')
	if eqIdx < 0 {
		d.Send("@describe: Usage: @desc thing = description")
		return
	}
	target := g.MatchObject(d.Player, args[:eqIdx])
	if target == gamedb.Nothing {
		d.Send("I don't see that here.")
		return
	}
	if !Controls(g, d.Player, target) {
		d.Send("Permission denied.")
		return
	}
	g.SetAttr(target, gamedb.A_DESC, strings.TrimSpace(args[eqIdx+1:]))
	d.Send("Set.")
}

func cmdTeleport(g *Game, d *Descriptor, args string, _ []string) {
	if !Builder(g, d.Player) {
		d.Send("Permission denied.")
		return
	}
	// @teleport [thing=]destination
	target, destStr := d.Player, args
	if eqIdx := strings.IndexByte(args, '='); eqIdx >= 0 {
		target = g.MatchObject(d.Player, args[:eqIdx])
		destStr = args[eqIdx+1:]
		if target == gamedb.Nothing {
			d.Send("I don't see that here.")
			return
		}
	}
	if strings.TrimSpace(destStr) == "" {
		d.Send("Teleport where?")
		return
	}
	dest, ok := g.resolveRoom(destStr)
	if !ok {
		d.Send("I can't find that room.")
		return
	}
	if !Controls(g, d.Player, target) {
		d.Send("Permission denied.")
		return
	}
	if target != d.Player {
		d.Send("Teleported.")
	}
	if !g.MoveObject(target, dest) {
		d.Send("Teleport failed.")
	}
}

// --- Session ---

func cmdQuit(g *Game, d *Descriptor, _ string, _ []string) {
	if txt := g.Texts.GetQuit(); txt != "" {
		d.SendNoNewline(txt)
	} else {
		d.Send("Goodbye!")
	}
	g.DisconnectPlayer(d)
}

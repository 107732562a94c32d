package server

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/crystal-mush/gridmush/pkg/boltstore"
	"github.com/crystal-mush/gridmush/pkg/events"
	"github.com/crystal-mush/gridmush/pkg/gamedb"
	"github.com/crystal-mush/gridmush/pkg/grid"
	"github.com/crystal-mush/gridmush/pkg/logger"
)

// Game holds the running world: the object database, connections, grid
// rooms and the services hanging off them.
//
// mu guards DB. A goroutine holding a grid room lock may take mu, never the
// other way round.
type Game struct {
	DB       *gamedb.Database
	Conns    *ConnManager
	Commands map[string]*Command
	NextRef  gamedb.DBRef
	Store    *boltstore.Store // nil = no bbolt persistence
	Conf     *GameConf
	EventBus *events.Bus
	Metrics  *Metrics
	SQLDB    *SQLStore   // nil = no visit journal
	Journal  *VisitJournal
	Texts    *TextFiles // connect.txt, motd.txt, quit.txt
	TextDir  string

	Grids     *grid.Registry
	Followers *grid.Followers
	Navigator *grid.Navigator
	Editor    *grid.Editor

	mu sync.RWMutex
}

// NewGame creates a Game over db with in-memory navigator positions.
func NewGame(db *gamedb.Database) *Game {
	maxRef := gamedb.DBRef(-1)
	for ref, obj := range db.Objects {
		if ref > maxRef {
			maxRef = ref
		}
		// Nobody is connected at startup.
		obj.Flags &^= gamedb.FlagConnected
	}
	bus := events.NewBus()
	cm := NewConnManager()
	cm.EventBus = bus

	g := &Game{
		DB:        db,
		Conns:     cm,
		Commands:  InitCommands(),
		NextRef:   maxRef + 1,
		EventBus:  bus,
		Grids:     grid.NewRegistry(),
		Followers: grid.NewFollowers(),
	}
	g.Navigator = &grid.Navigator{
		Positions: grid.NewMemoryPositions(),
		Followers: g.Followers,
		World:     g,
	}
	g.Editor = &grid.Editor{Resolve: g.resolveRoom}
	return g
}

// AttachStore makes the game write through to store, including grid edits
// and occupant stamps.
func (g *Game) AttachStore(store *boltstore.Store) {
	g.Store = store
	if store == nil {
		return
	}
	g.Navigator.Store = store
	g.Editor.Store = store
}

// SetPositions replaces the transient position tier.
func (g *Game) SetPositions(p grid.PositionTable) {
	g.Navigator.Positions = p
}

// PersistObject writes a single object to the bolt store (no-op if Store is nil).
// The caller must hold mu.
func (g *Game) PersistObject(obj *gamedb.Object) {
	if g.Store == nil || obj == nil {
		return
	}
	if err := g.Store.PutObject(obj); err != nil {
		logger.Log.Printf("ERROR: persist object #%d: %v", obj.DBRef, err)
	}
}

// PersistObjects writes multiple objects in one transaction. The caller must hold mu.
func (g *Game) PersistObjects(objs ...*gamedb.Object) {
	if g.Store == nil {
		return
	}
	if err := g.Store.PutObjects(objs...); err != nil {
		logger.Log.Printf("ERROR: persist objects: %v", err)
	}
}

// Emit sends an event to ev.Player and the global subscribers.
func (g *Game) Emit(ev events.Event) {
	g.EventBus.Emit(ev)
}

// EmitRoom sends an event to everyone in a room.
func (g *Game) EmitRoom(room gamedb.DBRef, ev events.Event) {
	g.EmitRoomExcept(room, nil, ev)
}

// EmitRoomExcept sends an event to everyone in a room except the listed objects.
func (g *Game) EmitRoomExcept(room gamedb.DBRef, except []gamedb.DBRef, ev events.Event) {
	g.mu.RLock()
	recipients := g.occupants(room, except)
	g.mu.RUnlock()
	g.EventBus.Broadcast(room, recipients, ev)
}

// occupants lists the contents of room minus except. The caller must hold mu.
func (g *Game) occupants(room gamedb.DBRef, except []gamedb.DBRef) []gamedb.DBRef {
	var out []gamedb.DBRef
	for _, ref := range g.contents(room) {
		if !slices.Contains(except, ref) {
			out = append(out, ref)
		}
	}
	return out
}

// DisplayName returns the display name of an object (before the first semicolon).
func DisplayName(name string) string {
	return gamedb.DisplayName(name)
}

// PlayerName returns the display name of an object.
func (g *Game) PlayerName(ref gamedb.DBRef) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.objName(ref)
}

func (g *Game) objName(ref gamedb.DBRef) string {
	if obj, ok := g.DB.Objects[ref]; ok {
		return DisplayName(obj.Name)
	}
	return fmt.Sprintf("#%d", ref)
}

// PlayerLocation returns the location of an object.
func (g *Game) PlayerLocation(ref gamedb.DBRef) gamedb.DBRef {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if obj, ok := g.DB.Objects[ref]; ok {
		return obj.Location
	}
	return gamedb.Nothing
}

// ObjType returns the type of ref and whether it exists.
func (g *Game) ObjType(ref gamedb.DBRef) (gamedb.ObjectType, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	obj, ok := g.DB.Objects[ref]
	if !ok || obj.IsGoing() {
		return 0, false
	}
	return obj.ObjType(), true
}

// contents returns the contents chain of loc. The caller must hold mu.
func (g *Game) contents(loc gamedb.DBRef) []gamedb.DBRef {
	locObj, ok := g.DB.Objects[loc]
	if !ok {
		return nil
	}
	var out []gamedb.DBRef
	seen := make(map[gamedb.DBRef]bool)
	next := locObj.Contents
	for next != gamedb.Nothing && !seen[next] {
		seen[next] = true
		obj, ok := g.DB.Objects[next]
		if !ok {
			break
		}
		out = append(out, next)
		next = obj.Next
	}
	return out
}

// removeFromContents unlinks obj from loc's contents chain. The caller must hold mu.
func (g *Game) removeFromContents(loc, obj gamedb.DBRef) {
	locObj, ok := g.DB.Objects[loc]
	if !ok {
		return
	}
	o, ok := g.DB.Objects[obj]
	if !ok {
		return
	}
	if locObj.Contents == obj {
		locObj.Contents = o.Next
		o.Next = gamedb.Nothing
		return
	}
	prev := locObj.Contents
	seen := make(map[gamedb.DBRef]bool)
	for prev != gamedb.Nothing && !seen[prev] {
		seen[prev] = true
		prevObj, ok := g.DB.Objects[prev]
		if !ok {
			break
		}
		if prevObj.Next == obj {
			prevObj.Next = o.Next
			o.Next = gamedb.Nothing
			return
		}
		prev = prevObj.Next
	}
}

// addToContents links obj into dest's contents chain unless it is already
// there. The caller must hold mu.
func (g *Game) addToContents(dest, obj gamedb.DBRef) {
	destObj, ok := g.DB.Objects[dest]
	if !ok {
		return
	}
	o, ok := g.DB.Objects[obj]
	if !ok {
		return
	}
	for _, ref := range g.contents(dest) {
		if ref == obj {
			return
		}
	}
	o.Next = destObj.Contents
	destObj.Contents = obj
}

// CreateObject creates a new object owned by owner.
func (g *Game) CreateObject(name string, objType gamedb.ObjectType, owner gamedb.DBRef) gamedb.DBRef {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.createObject(name, objType, owner)
}

func (g *Game) createObject(name string, objType gamedb.ObjectType, owner gamedb.DBRef) gamedb.DBRef {
	ref := g.NextRef
	g.NextRef++

	now := time.Now()
	obj := &gamedb.Object{
		DBRef:      ref,
		Name:       name,
		Location:   gamedb.Nothing,
		Contents:   gamedb.Nothing,
		Exits:      gamedb.Nothing,
		Link:       gamedb.Nothing,
		Next:       gamedb.Nothing,
		Owner:      owner,
		Flags:      int(objType),
		LastAccess: now,
		LastMod:    now,
	}
	if owner == gamedb.Nothing {
		obj.Owner = ref
	}
	g.DB.Objects[ref] = obj
	if int(ref) >= g.DB.Size {
		g.DB.Size = int(ref) + 1
	}
	g.PersistObject(obj)
	if g.Store != nil {
		if err := g.Store.PutMeta(); err != nil {
			logger.Log.Printf("ERROR: persist meta: %v", err)
		}
	}
	return ref
}

// CreateExit creates a new exit in source leading to dest. Exits keep their
// destination in Location and their source room in Exits.
func (g *Game) CreateExit(name string, source, dest, owner gamedb.DBRef) gamedb.DBRef {
	g.mu.Lock()
	defer g.mu.Unlock()
	ref := g.createObject(name, gamedb.TypeExit, owner)
	exitObj := g.DB.Objects[ref]
	exitObj.Location = dest
	exitObj.Exits = source

	if srcObj, ok := g.DB.Objects[source]; ok {
		exitObj.Next = srcObj.Exits
		srcObj.Exits = ref
		g.PersistObjects(exitObj, srcObj)
	}
	return ref
}

// GetAttr returns an attribute value of obj.
func (g *Game) GetAttr(obj gamedb.DBRef, attrNum int) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if o, ok := g.DB.Objects[obj]; ok {
		return o.GetAttr(attrNum)
	}
	return ""
}

// SetAttr sets an attribute on obj and persists it.
func (g *Game) SetAttr(obj gamedb.DBRef, attrNum int, value string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.DB.Objects[obj]
	if !ok {
		return
	}
	o.SetAttr(attrNum, value)
	o.LastMod = time.Now()
	g.PersistObject(o)
}

// MatchObject resolves a name to a dbref: me, here, #dbref, *player, or a
// word-prefix match against the room contents and then the inventory.
func (g *Game) MatchObject(player gamedb.DBRef, name string) gamedb.DBRef {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.matchObject(player, name)
}

func (g *Game) matchObject(player gamedb.DBRef, name string) gamedb.DBRef {
	name = strings.TrimSpace(name)
	if name == "" {
		return gamedb.Nothing
	}
	playerObj, ok := g.DB.Objects[player]
	if !ok {
		return gamedb.Nothing
	}
	if strings.EqualFold(name, "me") {
		return player
	}
	if strings.EqualFold(name, "here") {
		return playerObj.Location
	}
	if name[0] == '#' {
		return parseDBRef(name)
	}
	if name[0] == '*' {
		return g.lookupPlayer(strings.TrimSpace(name[1:]))
	}

	nameLower := strings.ToLower(name)
	// 2 for an exact match, 1 for a word-prefix match.
	matchAliases := func(objName string) int {
		for _, alias := range strings.Split(objName, ";") {
			aliasLower := strings.ToLower(strings.TrimSpace(alias))
			if aliasLower == nameLower {
				return 2
			}
			if stringMatchWord(aliasLower, nameLower) {
				return 1
			}
		}
		return 0
	}
	search := func(refs []gamedb.DBRef) gamedb.DBRef {
		prefix := gamedb.Nothing
		for _, ref := range refs {
			obj := g.DB.Objects[ref]
			switch matchAliases(obj.Name) {
			case 2:
				return ref
			case 1:
				if prefix == gamedb.Nothing {
					prefix = ref
				}
			}
		}
		return prefix
	}

	if found := search(g.contents(playerObj.Location)); found != gamedb.Nothing {
		return found
	}
	return search(g.contents(player))
}

// parseDBRef parses "#123". It returns Nothing on malformed input.
func parseDBRef(s string) gamedb.DBRef {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if s == "" {
		return gamedb.Nothing
	}
	n := 0
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return gamedb.Nothing
		}
		n = n*10 + int(ch-'0')
	}
	return gamedb.DBRef(n)
}

// stringMatchWord reports whether sub is a prefix of any word in src.
// Both must already be lowercased.
func stringMatchWord(src, sub string) bool {
	if sub == "" || src == "" {
		return false
	}
	i := 0
	for i < len(src) {
		if strings.HasPrefix(src[i:], sub) {
			return true
		}
		for i < len(src) && isAlnumByte(src[i]) {
			i++
		}
		for i < len(src) && !isAlnumByte(src[i]) {
			i++
		}
	}
	return false
}

func isAlnumByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// LookupPlayer finds a player by name.
func (g *Game) LookupPlayer(name string) gamedb.DBRef {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lookupPlayer(name)
}

func (g *Game) lookupPlayer(name string) gamedb.DBRef {
	name = strings.TrimSpace(name)
	if name == "" {
		return gamedb.Nothing
	}
	if g.Store != nil {
		if ref, ok := g.Store.LookupPlayer(name); ok {
			if obj, ok := g.DB.Objects[ref]; ok && obj.ObjType() == gamedb.TypePlayer {
				return ref
			}
		}
	}
	for ref, obj := range g.DB.Objects {
		if obj.ObjType() != gamedb.TypePlayer || obj.IsGoing() {
			continue
		}
		if strings.EqualFold(obj.Name, name) {
			return ref
		}
		if alias := obj.GetAttr(gamedb.A_ALIAS); alias != "" && strings.EqualFold(alias, name) {
			return ref
		}
	}
	return gamedb.Nothing
}

// resolveRoom turns a builder's reference (#dbref or exact room name) into a
// room dbref. It backs grid into-targets.
func (g *Game) resolveRoom(name string) (gamedb.DBRef, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "#") {
		ref := parseDBRef(name)
		obj, ok := g.DB.Objects[ref]
		if !ok || obj.ObjType() != gamedb.TypeRoom || obj.IsGoing() {
			return gamedb.Nothing, false
		}
		return ref, true
	}
	best := gamedb.Nothing
	for ref, obj := range g.DB.Objects {
		if obj.ObjType() != gamedb.TypeRoom || obj.IsGoing() {
			continue
		}
		if strings.EqualFold(DisplayName(obj.Name), name) && (best == gamedb.Nothing || ref < best) {
			best = ref
		}
	}
	return best, best != gamedb.Nothing
}

// MoveObject moves ref into dest, announcing the departure and arrival and
// persisting the three objects involved. Entering a grid room from outside
// resets the mover's grid position so it starts at the room's cursor.
func (g *Game) MoveObject(ref, dest gamedb.DBRef) bool {
	g.mu.Lock()
	obj, ok := g.DB.Objects[ref]
	destObj, dok := g.DB.Objects[dest]
	if !ok || !dok || destObj.ObjType() == gamedb.TypeExit {
		g.mu.Unlock()
		return false
	}
	oldLoc := obj.Location
	name := DisplayName(obj.Name)

	self := []gamedb.DBRef{ref}
	var left []gamedb.DBRef
	if oldLoc != gamedb.Nothing {
		left = g.occupants(oldLoc, self)
		g.removeFromContents(oldLoc, ref)
	}

	obj.Location = dest
	obj.LastAccess = time.Now()
	g.addToContents(dest, ref)
	present := g.occupants(dest, self)

	persist := []*gamedb.Object{obj, destObj}
	if oldObj, ok := g.DB.Objects[oldLoc]; ok && oldLoc != dest {
		persist = append(persist, oldObj)
	}
	g.PersistObjects(persist...)
	g.mu.Unlock()

	if oldLoc != gamedb.Nothing {
		g.EventBus.Broadcast(oldLoc, left, events.Event{
			Type:   events.EvMove,
			Source: ref,
			Text:   fmt.Sprintf("%s has left.", name),
			Data:   map[string]any{"player": name, "action": "leave"},
		})
	}
	g.EventBus.Broadcast(dest, present, events.Event{
		Type:   events.EvMove,
		Source: ref,
		Text:   fmt.Sprintf("%s has arrived.", name),
		Data:   map[string]any{"player": name, "action": "arrive"},
	})

	if _, isGrid := g.Grids.Get(dest); isGrid && oldLoc != dest {
		if err := g.Navigator.Reset(context.Background(), ref); err != nil {
			logger.Log.Printf("grid: reset position of #%d: %v", ref, err)
		}
	}
	g.Look(ref)
	return true
}

// MovePlayer moves the descriptor's player to dest.
func (g *Game) MovePlayer(d *Descriptor, dest gamedb.DBRef) {
	if !g.MoveObject(d.Player, dest) {
		d.Send("You can't go that way.")
	}
}

// DisconnectPlayer handles a player disconnecting.
func (g *Game) DisconnectPlayer(d *Descriptor) {
	if d.IsClosed() {
		return
	}
	if d.State == ConnConnected {
		player := d.Player
		name := g.PlayerName(player)
		loc := g.PlayerLocation(player)

		last := len(g.Conns.GetByPlayer(player)) <= 1
		if last {
			g.mu.Lock()
			if obj, ok := g.DB.Objects[player]; ok {
				obj.Flags &^= gamedb.FlagConnected
				obj.LastAccess = time.Now()
				g.PersistObject(obj)
			}
			g.mu.Unlock()
			// Grid positions and follow links do not outlive the session.
			g.Followers.Drop(player)
			if err := g.Navigator.Reset(context.Background(), player); err != nil {
				logger.Log.Printf("grid: reset position of #%d: %v", player, err)
			}
		}

		g.EmitRoomExcept(loc, []gamedb.DBRef{player}, events.Event{
			Type:   events.EvDisconnect,
			Source: player,
			Text:   fmt.Sprintf("%s has disconnected.", name),
			Data:   map[string]any{"player": name},
		})
	}
	d.Close()
}

package events

import (
	"sync"

	"github.com/crystal-mush/gridmush/pkg/gamedb"
)

// Subscriber receives events from the bus.
type Subscriber interface {
	Receive(ev Event)
	Closed() bool
}

// Bus routes events to the connections of their recipient. Observers see
// every event once, whoever it was addressed to.
type Bus struct {
	mu        sync.RWMutex
	players   map[gamedb.DBRef][]Subscriber
	observers []Subscriber
}

func NewBus() *Bus {
	return &Bus{players: make(map[gamedb.DBRef][]Subscriber)}
}

// Subscribe attaches sub to player. A player may hold several subscribers,
// one per open connection.
func (b *Bus) Subscribe(player gamedb.DBRef, sub Subscriber) {
	b.mu.Lock()
	b.players[player] = append(b.players[player], sub)
	b.mu.Unlock()
}

// Unsubscribe detaches sub from player. Slices handed out by earlier
// snapshots are never modified.
func (b *Bus) Unsubscribe(player gamedb.DBRef, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := without(b.players[player], func(s Subscriber) bool { return s == sub })
	if len(kept) == 0 {
		delete(b.players, player)
		return
	}
	b.players[player] = kept
}

// Observe registers sub for every event on the bus.
func (b *Bus) Observe(sub Subscriber) {
	b.mu.Lock()
	b.observers = append(b.observers, sub)
	b.mu.Unlock()
}

func (b *Bus) snapshot(player gamedb.DBRef) (subs, observers []Subscriber) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.players[player], b.observers
}

func deliver(subs []Subscriber, ev Event) {
	for _, s := range subs {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
}

// Emit delivers ev to ev.Player and to the observers.
func (b *Bus) Emit(ev Event) {
	subs, observers := b.snapshot(ev.Player)
	deliver(subs, ev)
	deliver(observers, ev)
}

// EmitToPlayer addresses ev to player and emits it.
func (b *Bus) EmitToPlayer(player gamedb.DBRef, ev Event) {
	ev.Player = player
	b.Emit(ev)
}

// Broadcast gives each recipient its own copy of ev, addressed to it, and
// the observers a single copy. Room is stamped on all of them.
func (b *Bus) Broadcast(room gamedb.DBRef, recipients []gamedb.DBRef, ev Event) {
	ev.Room = room
	for _, ref := range recipients {
		subs, _ := b.snapshot(ref)
		copied := ev
		copied.Player = ref
		deliver(subs, copied)
	}
	b.mu.RLock()
	observers := b.observers
	b.mu.RUnlock()
	deliver(observers, ev)
}

// Subscribers counts the connections attached to player.
func (b *Bus) Subscribers(player gamedb.DBRef) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.players[player])
}

// Prune drops closed subscribers and returns how many went.
func (b *Bus) Prune() int {
	closed := func(s Subscriber) bool { return s.Closed() }
	b.mu.Lock()
	defer b.mu.Unlock()
	dropped := 0
	for player, subs := range b.players {
		kept := without(subs, closed)
		dropped += len(subs) - len(kept)
		if len(kept) == 0 {
			delete(b.players, player)
		} else {
			b.players[player] = kept
		}
	}
	kept := without(b.observers, closed)
	dropped += len(b.observers) - len(kept)
	b.observers = kept
	return dropped
}

func without(subs []Subscriber, drop func(Subscriber) bool) []Subscriber {
	out := make([]Subscriber, 0, len(subs))
	for _, s := range subs {
		if !drop(s) {
			out = append(out, s)
		}
	}
	return out
}

package events

import "github.com/crystal-mush/gridmush/pkg/gamedb"

// EventType says what happened. Transports choose an encoding per type.
type EventType int

const (
	EvText       EventType = iota // private line to one player
	EvSay                         // speech
	EvPose                        // emote
	EvMove                        // arrival, departure or a step on a grid
	EvConnect                     // a player came online
	EvDisconnect                  // a player went offline
	EvGridMap                     // rendered grid map
)

var typeNames = [...]string{
	EvText:       "text",
	EvSay:        "say",
	EvPose:       "pose",
	EvMove:       "move",
	EvConnect:    "connect",
	EvDisconnect: "disconnect",
	EvGridMap:    "grid_map",
}

func (t EventType) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return "unknown"
	}
	return typeNames[t]
}

// Event is one thing that happened in the world. Telnet prints Text;
// WebSocket clients and observers read Data.
type Event struct {
	Type   EventType
	Player gamedb.DBRef // recipient, Nothing when only observers should see it
	Source gamedb.DBRef
	Room   gamedb.DBRef
	Text   string
	Data   map[string]any
}

// IsGridArrival reports whether ev records a navigator landing on a grid point.
func (ev Event) IsGridArrival() bool {
	if ev.Type != EvMove {
		return false
	}
	grid, _ := ev.Data["grid"].(bool)
	return grid
}

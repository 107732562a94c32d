package server

import "github.com/crystal-mush/gridmush/pkg/gamedb"

// GodRef is the superuser. God is always a wizard.
const GodRef gamedb.DBRef = 1

// Wizard reports whether obj has wizard powers.
func Wizard(g *Game, obj gamedb.DBRef) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return wizard(g.DB, obj)
}

func wizard(db *gamedb.Database, obj gamedb.DBRef) bool {
	if obj == GodRef {
		return true
	}
	o, ok := db.Objects[obj]
	if !ok {
		return false
	}
	return o.HasFlag(gamedb.FlagWizard)
}

// Builder reports whether obj may shape the world: wizards and anything
// flagged BUILDER.
func Builder(g *Game, obj gamedb.DBRef) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if wizard(g.DB, obj) {
		return true
	}
	o, ok := g.DB.Objects[obj]
	return ok && o.HasFlag(gamedb.FlagBuilder)
}

// Controls reports whether player may modify target: itself, anything it
// owns, or anything at all for a wizard.
func Controls(g *Game, player, target gamedb.DBRef) bool {
	if player == target {
		return true
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if wizard(g.DB, player) {
		return true
	}
	o, ok := g.DB.Objects[target]
	return ok && o.Owner == player
}

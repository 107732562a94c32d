package server

import (
	"time"

	"github.com/crystal-mush/gridmush/pkg/gamedb"
)

// MinimalWorld builds the starting database: room #0 and the wizard #1
// standing in it with the given password.
func MinimalWorld(wizardPassword string) (*gamedb.Database, error) {
	hash, err := HashPassword(wizardPassword)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	db := gamedb.NewDatabase()
	db.Objects[0] = &gamedb.Object{
		DBRef:      0,
		Name:       "Limbo",
		Location:   gamedb.Nothing,
		Contents:   GodRef,
		Exits:      gamedb.Nothing,
		Link:       gamedb.Nothing,
		Next:       gamedb.Nothing,
		Owner:      GodRef,
		Flags:      int(gamedb.TypeRoom),
		LastAccess: now,
		LastMod:    now,
	}
	wiz := &gamedb.Object{
		DBRef:      GodRef,
		Name:       "Wizard",
		Location:   0,
		Contents:   gamedb.Nothing,
		Exits:      gamedb.Nothing,
		Link:       0,
		Next:       gamedb.Nothing,
		Owner:      GodRef,
		Flags:      int(gamedb.TypePlayer) | gamedb.FlagWizard,
		LastAccess: now,
		LastMod:    now,
	}
	wiz.SetAttr(gamedb.A_PASS, hash)
	db.Objects[GodRef] = wiz
	db.Size = 2
	return db, nil
}

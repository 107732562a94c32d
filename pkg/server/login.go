package server

import (
	"errors"
	"strings"

	"github.com/crystal-mush/gridmush/pkg/gamedb"
	"github.com/crystal-mush/gridmush/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

// ParseConnect parses a login-screen command into (command, user, password).
// Handles "connect name password", "create name password" and quoted names.
func ParseConnect(msg string) (command, user, password string) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "", "", ""
	}

	parts := strings.SplitN(msg, " ", 2)
	command = strings.ToLower(parts[0])
	if len(parts) < 2 {
		return command, "", ""
	}

	rest := strings.TrimSpace(parts[1])
	if rest == "" {
		return command, "", ""
	}

	// Quoted names may contain spaces.
	if rest[0] == '"' {
		if end := strings.Index(rest[1:], "\""); end >= 0 {
			user = rest[1 : end+1]
			password = strings.TrimSpace(rest[end+2:])
			return
		}
	}

	parts = strings.SplitN(rest, " ", 2)
	user = parts[0]
	if len(parts) > 1 {
		password = strings.TrimSpace(parts[1])
	}
	return
}

// HashPassword returns the bcrypt hash stored in a player's PASS attribute.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword verifies password against the player's stored hash.
func (g *Game) CheckPassword(player gamedb.DBRef, password string) bool {
	stored := g.GetAttr(player, gamedb.A_PASS)
	if stored == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
}

// ValidPlayerName reports whether name may be used for a new character.
func ValidPlayerName(name string) bool {
	if len(name) < 2 || len(name) > 32 {
		return false
	}
	for _, ch := range name {
		if ch == '"' || ch == ';' || ch == '#' || ch == '*' || ch == '=' || ch < ' ' {
			return false
		}
	}
	return !strings.EqualFold(name, "me") && !strings.EqualFold(name, "here")
}

var (
	// ErrBadPlayerName is returned for names ValidPlayerName rejects.
	ErrBadPlayerName = errors.New("that name is not allowed")
	// ErrPlayerExists is returned when the name is taken.
	ErrPlayerExists = errors.New("that name is already taken")
)

// CreatePlayer makes a new character in the starting room with a hashed
// password and returns its dbref.
func (g *Game) CreatePlayer(name, password string) (gamedb.DBRef, error) {
	if !ValidPlayerName(name) {
		return gamedb.Nothing, ErrBadPlayerName
	}
	hash, err := HashPassword(password)
	if err != nil {
		return gamedb.Nothing, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lookupPlayer(name) != gamedb.Nothing {
		return gamedb.Nothing, ErrPlayerExists
	}
	ref := g.createObject(name, gamedb.TypePlayer, gamedb.Nothing)
	playerObj := g.DB.Objects[ref]
	playerObj.SetAttr(gamedb.A_PASS, hash)

	start, home := g.StartingRoom(), g.StartingHome()
	playerObj.Location = start
	playerObj.Link = home
	g.addToContents(start, ref)
	if roomObj, ok := g.DB.Objects[start]; ok {
		g.PersistObjects(playerObj, roomObj)
	} else {
		g.PersistObject(playerObj)
	}
	if g.Store != nil {
		if err := g.Store.UpdatePlayerIndex(playerObj, ""); err != nil {
			logger.Log.Printf("ERROR: index player #%d: %v", ref, err)
		}
	}
	return ref, nil
}

// WelcomeText is the default welcome screen shown to new connections.
const WelcomeText = `
   ____      _     _ __  __ _   _ ____  _   _
  / ___|_ __(_) __| |  \/  | | | / ___|| | | |
 | |  _| '__| |/ _` + "`" + ` | |\/| | | | \___ \| |_| |
 | |_| | |  | | (_| | |  | | |_| |___) |  _  |
  \____|_|  |_|\__,_|_|  |_|\___/|____/|_| |_|

"connect <name> <password>" to connect to your existing character.
"create <name> <password>" to create a new character.
"WHO" to see who is connected.
"QUIT" to disconnect.

`

package server

import (
	"testing"

	"github.com/crystal-mush/gridmush/pkg/gamedb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConnect(t *testing.T) {
	tests := []struct {
		input            string
		cmd, user, passw string
	}{
		{"connect Bob secret", "connect", "Bob", "secret"},
		{"CO Bob secret", "co", "Bob", "secret"},
		{`connect "Long Name" pass word`, "connect", "Long Name", "pass word"},
		{"create Alice", "create", "Alice", ""},
		{"connect", "connect", "", ""},
		{"", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cmd, user, pass := ParseConnect(tt.input)
			assert.Equal(t, tt.cmd, cmd)
			assert.Equal(t, tt.user, user)
			assert.Equal(t, tt.passw, pass)
		})
	}
}

func TestValidPlayerName(t *testing.T) {
	assert.True(t, ValidPlayerName("Alice"))
	assert.True(t, ValidPlayerName("Long Name"))
	assert.False(t, ValidPlayerName("A"))
	assert.False(t, ValidPlayerName("me"))
	assert.False(t, ValidPlayerName("Here"))
	assert.False(t, ValidPlayerName("#12"))
	assert.False(t, ValidPlayerName("semi;colon"))
}

func TestCreatePlayer(t *testing.T) {
	env := newTestEnv(t)
	g := env.game

	ref, err := g.CreatePlayer("Alice", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, gamedb.DBRef(4), ref)
	assert.Equal(t, ref, g.LookupPlayer("alice"))
	assert.Equal(t, g.StartingRoom(), g.PlayerLocation(ref))
	assert.True(t, g.CheckPassword(ref, "hunter2"))
	assert.False(t, g.CheckPassword(ref, "wrong"))

	_, err = g.CreatePlayer("ALICE", "other")
	assert.ErrorIs(t, err, ErrPlayerExists)
	_, err = g.CreatePlayer("me", "x")
	assert.ErrorIs(t, err, ErrBadPlayerName)
}

func TestCheckPassword_NoHash(t *testing.T) {
	env := newTestEnv(t)
	assert.False(t, env.game.CheckPassword(bobRef, ""))
}

func TestMinimalWorld(t *testing.T) {
	db, err := MinimalWorld("secret")
	require.NoError(t, err)
	g := NewGame(db)

	assert.Equal(t, GodRef, g.LookupPlayer("Wizard"))
	assert.True(t, g.CheckPassword(GodRef, "secret"))
	assert.Equal(t, gamedb.DBRef(0), g.PlayerLocation(GodRef))
	assert.True(t, Wizard(g, GodRef))
	assert.Equal(t, gamedb.DBRef(2), g.NextRef)
}

func TestConnectPlayer(t *testing.T) {
	env := newTestEnv(t)
	g := env.game
	ref, err := g.CreatePlayer("Carol", "pw")
	require.NoError(t, err)

	d := newBufferedDescriptor(g.Conns)
	g.Conns.Add(d)
	g.ConnectPlayer(d, ref)

	assert.Equal(t, ref, d.Player)
	assert.True(t, g.Conns.IsConnected(ref))
	assert.Contains(t, getOutput(d), "Plaza")
	assert.Equal(t, "Carol has connected.", getOutput(env.bob))
}

func TestStripTelnet(t *testing.T) {
	assert.Equal(t, "look", stripTelnet("\xff\xfb\x01look"))
	assert.Equal(t, "say hi", stripTelnet("say\x07 hi"))
	assert.Equal(t, "plain\ttext", stripTelnet("plain\ttext"))
}

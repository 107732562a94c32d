package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_LoginScreen(t *testing.T) {
	env := newTestEnv(t)
	s := NewServer(env.game, DefaultConfig())
	d := newBufferedDescriptor(env.game.Conns)
	d.Retries = 2
	env.game.Conns.Add(d)

	s.handleLoginCommand(d, "hello")
	assert.Contains(t, getOutput(d), "Commands: connect, create, WHO, QUIT")

	s.handleLoginCommand(d, "connect Bob nope")
	assert.Equal(t, "Either that player does not exist, or has a different password.", getOutput(d))
	assert.False(t, d.IsClosed())

	s.handleLoginCommand(d, "create Bob pw")
	assert.Equal(t, "That name is already taken.", getOutput(d))

	s.handleLoginCommand(d, "connect Bob nope")
	assert.Contains(t, getOutput(d), "Too many failed attempts.")
	assert.True(t, d.IsClosed())
}

func TestServer_CreateLogsIn(t *testing.T) {
	env := newTestEnv(t)
	s := NewServer(env.game, DefaultConfig())
	d := newBufferedDescriptor(env.game.Conns)
	env.game.Conns.Add(d)

	s.handleLoginCommand(d, `create "Dana Reyes" secret`)
	out := getOutput(d)
	assert.Contains(t, out, "Welcome to GridMUSH, Dana Reyes!")
	assert.Equal(t, ConnConnected, d.State)
	require.True(t, env.game.CheckPassword(d.Player, "secret"))
	assert.Equal(t, "Dana Reyes has connected.", getOutput(env.bob))
}

func TestServer_PruneSubscribers(t *testing.T) {
	env := newTestEnv(t)
	s := NewServer(env.game, DefaultConfig())
	env.bob.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.pruneSubscribers(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return env.game.EventBus.Subscribers(bobRef) == 0
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, env.game.EventBus.Subscribers(wizardRef))
	cancel()
	<-done
}

func TestFormatTimes(t *testing.T) {
	assert.Equal(t, "42s", FormatIdleTime(42*time.Second))
	assert.Equal(t, "5m", FormatIdleTime(5*time.Minute+10*time.Second))
	assert.Equal(t, "3h", FormatIdleTime(3*time.Hour))
	assert.Equal(t, "2d", FormatIdleTime(50*time.Hour))
	assert.Equal(t, "01:05", FormatConnTime(65*time.Minute))
}

package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextFiles_NilSafe(t *testing.T) {
	var tf *TextFiles
	assert.Empty(t, tf.GetConnect())
	assert.Empty(t, tf.GetMotd())
	assert.Empty(t, tf.GetQuit())
}

func TestLoadTextFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "motd.txt"), []byte("Welcome aboard.\n"), 0o644))

	tf := LoadTextFiles(dir)
	assert.Equal(t, "Welcome aboard.\n", tf.GetMotd())
	assert.Empty(t, tf.GetConnect())
	assert.Empty(t, tf.GetQuit())
}

func TestReloadTextFiles(t *testing.T) {
	env := newTestEnv(t)
	g := env.game
	assert.Equal(t, 0, g.ReloadTextFiles())

	dir := t.TempDir()
	g.TextDir = dir
	g.Texts = LoadTextFiles(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quit.txt"), []byte("Bye now.\n"), 0o644))
	assert.Equal(t, 1, g.ReloadTextFiles())

	DispatchCommand(g, env.bob, "quit")
	assert.Equal(t, "Bye now.", getOutput(env.bob))
}

func TestWatchTextFiles_ReloadsOnWrite(t *testing.T) {
	env := newTestEnv(t)
	g := env.game
	dir := t.TempDir()
	g.TextDir = dir
	g.Texts = LoadTextFiles(dir)

	done := make(chan struct{})
	defer close(done)
	g.WatchTextFiles(done)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "motd.txt"), []byte("Fresh news.\n"), 0o644))
	assert.Eventually(t, func() bool {
		return g.Texts.GetMotd() == "Fresh news.\n"
	}, 2*time.Second, 20*time.Millisecond)
}

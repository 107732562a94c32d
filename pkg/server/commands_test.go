package server

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/crystal-mush/gridmush/pkg/gamedb"
	"github.com/crystal-mush/gridmush/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.Silence()
	os.Exit(m.Run())
}

const (
	plazaRef  gamedb.DBRef = 0
	wizardRef gamedb.DBRef = 1
	bobRef    gamedb.DBRef = 2
	hallRef   gamedb.DBRef = 3
)

// testEnv holds the shared test infrastructure.
type testEnv struct {
	game   *Game
	wizard *Descriptor // wizard player #1
	bob    *Descriptor // ordinary player #2
}

func testObject(ref gamedb.DBRef, name string, typ gamedb.ObjectType, loc gamedb.DBRef) *gamedb.Object {
	return &gamedb.Object{
		DBRef:    ref,
		Name:     name,
		Location: loc,
		Contents: gamedb.Nothing,
		Exits:    gamedb.Nothing,
		Link:     gamedb.Nothing,
		Next:     gamedb.Nothing,
		Owner:    wizardRef,
		Flags:    int(typ),
	}
}

// newTestEnv creates a minimal game:
//   - Room #0 (Plaza), a 5x5 grid with base and cursor at (0,0)
//   - Player #1 (Wizard) in Plaza
//   - Player #2 (Bob) in Plaza, no building rights
//   - Room #3 (Hall), an ordinary room
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := gamedb.NewDatabase()

	db.Objects[plazaRef] = testObject(plazaRef, "Plaza", gamedb.TypeRoom, gamedb.Nothing)
	db.Objects[wizardRef] = testObject(wizardRef, "Wizard", gamedb.TypePlayer, plazaRef)
	db.Objects[wizardRef].Flags |= gamedb.FlagWizard
	db.Objects[wizardRef].Link = plazaRef
	db.Objects[bobRef] = testObject(bobRef, "Bob", gamedb.TypePlayer, plazaRef)
	db.Objects[bobRef].Owner = bobRef
	db.Objects[bobRef].Link = hallRef
	db.Objects[hallRef] = testObject(hallRef, "Hall", gamedb.TypeRoom, gamedb.Nothing)

	// Contents chain: Plaza -> 1 -> 2 -> Nothing
	db.Objects[plazaRef].Contents = wizardRef
	db.Objects[wizardRef].Next = bobRef
	db.Size = 4

	g := NewGame(db)
	room := g.Grids.Create(plazaRef)
	_, err := g.Editor.Resize(room, "0..4,0..4")
	require.NoError(t, err)

	return &testEnv{
		game:   g,
		wizard: makeTestDescriptor(t, g.Conns, wizardRef),
		bob:    makeTestDescriptor(t, g.Conns, bobRef),
	}
}

// makeTestDescriptor logs player in over a connection that buffers output.
func makeTestDescriptor(t *testing.T, cm *ConnManager, player gamedb.DBRef) *Descriptor {
	t.Helper()
	d := newBufferedDescriptor(cm)
	cm.Add(d)
	cm.Login(d, player)
	return d
}

func newBufferedDescriptor(cm *ConnManager) *Descriptor {
	conn := &bufferConn{}
	now := time.Now()
	return &Descriptor{
		ID:       cm.NextID(),
		Conn:     conn,
		Out:      newTelnetOutlet(conn),
		Player:   gamedb.Nothing,
		Addr:     "test:1",
		ConnTime: now,
		LastCmd:  now,
	}
}

// bufferConn keeps everything written to it.
type bufferConn struct {
	nullConn
	mu  sync.Mutex
	buf strings.Builder
}

func (c *bufferConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(b)
}

func (c *bufferConn) drain() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.buf.String()
	c.buf.Reset()
	return s
}

// getOutput returns and clears what d has been sent.
func getOutput(d *Descriptor) string {
	c, ok := d.Conn.(*bufferConn)
	if !ok {
		return ""
	}
	return strings.TrimRight(c.drain(), "\r\n")
}

func clearOutput(ds ...*Descriptor) {
	for _, d := range ds {
		getOutput(d)
	}
}

// --- Tests ---

func TestDispatchCommand_Say(t *testing.T) {
	env := newTestEnv(t)

	DispatchCommand(env.game, env.wizard, "say Hello World")
	assert.Contains(t, getOutput(env.wizard), `You say "Hello World"`)
	assert.Contains(t, getOutput(env.bob), `Wizard says "Hello World"`)
}

func TestDispatchCommand_SayQuote(t *testing.T) {
	env := newTestEnv(t)

	DispatchCommand(env.game, env.wizard, `"Hello World`)
	assert.Contains(t, getOutput(env.wizard), `You say "Hello World"`)
}

func TestDispatchCommand_Pose(t *testing.T) {
	env := newTestEnv(t)

	DispatchCommand(env.game, env.wizard, ":waves")
	assert.Contains(t, getOutput(env.bob), "Wizard waves")
	assert.Contains(t, getOutput(env.wizard), "Wizard waves")
}

func TestDispatchCommand_Huh(t *testing.T) {
	env := newTestEnv(t)

	DispatchCommand(env.game, env.wizard, "xyzzy")
	assert.Equal(t, `Huh?  (Type "help" for help.)`, getOutput(env.wizard))
}

func TestDispatchCommand_AtPrefix(t *testing.T) {
	env := newTestEnv(t)

	DispatchCommand(env.game, env.wizard, "@telep #3")
	assert.Equal(t, hallRef, env.game.PlayerLocation(wizardRef))
	assert.Contains(t, getOutput(env.wizard), "Hall")
}

func TestLook(t *testing.T) {
	env := newTestEnv(t)
	env.game.SetAttr(plazaRef, gamedb.A_DESC, "A wide square.")

	DispatchCommand(env.game, env.wizard, "look")
	out := getOutput(env.wizard)
	assert.Contains(t, out, "Plaza")
	assert.Contains(t, out, "A wide square.")
	assert.Contains(t, out, "Contents:")
	assert.Contains(t, out, "Bob")
}

func TestDig(t *testing.T) {
	env := newTestEnv(t)

	DispatchCommand(env.game, env.wizard, "@dig Garden")
	out := getOutput(env.wizard)
	assert.Contains(t, out, "Room Garden created as #4.")
	_, isGrid := env.game.Grids.Get(4)
	assert.False(t, isGrid)
}

func TestDig_Grid(t *testing.T) {
	env := newTestEnv(t)

	DispatchCommand(env.game, env.wizard, "@dig/grid Garden")
	out := getOutput(env.wizard)
	assert.Contains(t, out, "Room Garden created as #4.")
	assert.Contains(t, out, "Grid created: 0..0,0..0, base (0,0).")
	_, isGrid := env.game.Grids.Get(4)
	assert.True(t, isGrid)
}

func TestDig_PermissionDenied(t *testing.T) {
	env := newTestEnv(t)

	DispatchCommand(env.game, env.bob, "@dig Shed")
	assert.Equal(t, "Permission denied.", getOutput(env.bob))
}

func TestOpenAndGo(t *testing.T) {
	env := newTestEnv(t)

	DispatchCommand(env.game, env.wizard, "@open Oak Door;door=Hall")
	assert.Contains(t, getOutput(env.wizard), "Exit Oak Door;door created as #4.")

	DispatchCommand(env.game, env.wizard, "door")
	assert.Equal(t, hallRef, env.game.PlayerLocation(wizardRef))
	assert.Contains(t, getOutput(env.wizard), "Hall")
	assert.Contains(t, getOutput(env.bob), "Wizard has left.")
}

func TestGo_NoSuchExit(t *testing.T) {
	env := newTestEnv(t)

	DispatchCommand(env.game, env.wizard, "go window")
	assert.Equal(t, "You can't go that way.", getOutput(env.wizard))
}

func TestDescribe(t *testing.T) {
	env := newTestEnv(t)

	DispatchCommand(env.game, env.bob, "@desc me=Tall and thin.")
	assert.Equal(t, "Set.", getOutput(env.bob))
	assert.Equal(t, "Tall and thin.", env.game.GetAttr(bobRef, gamedb.A_DESC))

	DispatchCommand(env.game, env.bob, "@desc here=Mine now.")
	assert.Equal(t, "Permission denied.", getOutput(env.bob))
}

func TestTeleport_Other(t *testing.T) {
	env := newTestEnv(t)

	DispatchCommand(env.game, env.wizard, "@tel Bob=Hall")
	assert.Contains(t, getOutput(env.wizard), "Teleported.")
	assert.Equal(t, hallRef, env.game.PlayerLocation(bobRef))
	assert.Contains(t, getOutput(env.bob), "Hall")
}

func TestHome(t *testing.T) {
	env := newTestEnv(t)

	DispatchCommand(env.game, env.bob, "home")
	assert.Contains(t, getOutput(env.bob), "There's no place like home...")
	assert.Equal(t, hallRef, env.game.PlayerLocation(bobRef))
}

func TestFollowAndUnfollow(t *testing.T) {
	env := newTestEnv(t)

	DispatchCommand(env.game, env.bob, "follow Wizard")
	assert.Equal(t, "You now follow Wizard.", getOutput(env.bob))
	assert.Equal(t, "Bob now follows you.", getOutput(env.wizard))

	leader, ok := env.game.Followers.Leader(bobRef)
	require.True(t, ok)
	assert.Equal(t, wizardRef, leader)

	DispatchCommand(env.game, env.bob, "unfollow")
	assert.Equal(t, "You stop following Wizard.", getOutput(env.bob))
	DispatchCommand(env.game, env.bob, "unfollow")
	assert.Equal(t, "You aren't following anyone.", getOutput(env.bob))
}

func TestFollow_Self(t *testing.T) {
	env := newTestEnv(t)

	DispatchCommand(env.game, env.bob, "follow me")
	assert.Equal(t, "You can't follow yourself.", getOutput(env.bob))
}

func TestWho(t *testing.T) {
	env := newTestEnv(t)

	DispatchCommand(env.game, env.bob, "who")
	out := getOutput(env.bob)
	assert.Contains(t, out, "Bob")
	assert.Contains(t, out, "Wizard")
	assert.Contains(t, out, "2 Players logged in.")
}

func TestQuit_ResetsGridState(t *testing.T) {
	env := newTestEnv(t)
	g := env.game

	DispatchCommand(g, env.bob, "follow Wizard")
	DispatchCommand(g, env.bob, "e")
	_, ok, err := g.Navigator.Positions.Get(context.Background(), bobRef)
	require.NoError(t, err)
	require.True(t, ok)
	clearOutput(env.wizard, env.bob)

	DispatchCommand(g, env.bob, "quit")
	assert.True(t, env.bob.IsClosed())
	assert.Contains(t, getOutput(env.wizard), "Bob has disconnected.")

	_, ok, err = g.Navigator.Positions.Get(context.Background(), bobRef)
	require.NoError(t, err)
	assert.False(t, ok)
	_, following := g.Followers.Leader(bobRef)
	assert.False(t, following)
}

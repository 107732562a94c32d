package server

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crystal-mush/gridmush/pkg/events"
	"github.com/crystal-mush/gridmush/pkg/gamedb"
)

// TransportType names the wire a descriptor talks over.
type TransportType int

const (
	TransportTCP TransportType = iota
	TransportWebSocket
)

func (t TransportType) String() string {
	if t == TransportWebSocket {
		return "websocket"
	}
	return "tcp"
}

// ConnState is where a connection is in its lifecycle.
type ConnState int

const (
	ConnLogin ConnState = iota
	ConnConnected
)

// Outlet is where a descriptor's output lands.
type Outlet interface {
	// Line sends one line of text; the outlet terminates it.
	Line(msg string)
	// Block sends pre-formatted text as is.
	Block(text string)
	// Event delivers a structured event.
	Event(ev events.Event)
	Close() error
}

// telnetOutlet writes CRLF-terminated text to a raw connection.
type telnetOutlet struct {
	conn net.Conn
}

func newTelnetOutlet(conn net.Conn) *telnetOutlet { return &telnetOutlet{conn: conn} }

func (o *telnetOutlet) Line(msg string) {
	if !strings.HasSuffix(msg, "\n") {
		msg += "\r\n"
	}
	o.Block(msg)
}

func (o *telnetOutlet) Block(text string) {
	o.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	o.conn.Write([]byte(text))
}

func (o *telnetOutlet) Event(ev events.Event) {
	if ev.Text != "" {
		o.Line(ev.Text)
	}
}

func (o *telnetOutlet) Close() error { return o.conn.Close() }

// Descriptor is one client connection, logged in or not. It subscribes to
// the event bus on behalf of its player.
type Descriptor struct {
	ID        int
	Conn      net.Conn // inbound side; nil for transports that read elsewhere
	Out       Outlet
	Transport TransportType
	State     ConnState
	Player    gamedb.DBRef
	Addr      string
	ConnTime  time.Time
	LastCmd   time.Time
	Retries   int
	CmdCount  int
	BytesRecv int

	mu     sync.Mutex
	closed bool
}

// NewDescriptor wraps a telnet connection.
func NewDescriptor(id int, conn net.Conn) *Descriptor {
	now := time.Now()
	return &Descriptor{
		ID:       id,
		Conn:     conn,
		Out:      newTelnetOutlet(conn),
		Player:   gamedb.Nothing,
		Addr:     conn.RemoteAddr().String(),
		ConnTime: now,
		LastCmd:  now,
		Retries:  3,
	}
}

// Send writes one line to the client.
func (d *Descriptor) Send(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.Out.Line(msg)
	}
}

// SendNoNewline writes a text file or banner without adding a terminator.
func (d *Descriptor) SendNoNewline(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.Out.Block(text)
	}
}

// Close shuts the connection once.
func (d *Descriptor) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.Out.Close()
}

func (d *Descriptor) IsClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Receive implements events.Subscriber.
func (d *Descriptor) Receive(ev events.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.Out.Event(ev)
	}
}

// Closed implements events.Subscriber.
func (d *Descriptor) Closed() bool { return d.IsClosed() }

var _ events.Subscriber = (*Descriptor)(nil)

// nullConn swallows writes. It backs descriptors with no socket of their own.
type nullConn struct{}

var errNoSocket = errors.New("no socket")

func (nullConn) Read([]byte) (int, error)         { return 0, errNoSocket }
func (nullConn) Write(b []byte) (int, error)       { return len(b), nil }
func (nullConn) Close() error                      { return nil }
func (nullConn) LocalAddr() net.Addr               { return &net.TCPAddr{} }
func (nullConn) RemoteAddr() net.Addr              { return &net.TCPAddr{} }
func (nullConn) SetDeadline(time.Time) error       { return nil }
func (nullConn) SetReadDeadline(time.Time) error   { return nil }
func (nullConn) SetWriteDeadline(time.Time) error  { return nil }

// ConnManager indexes live descriptors by ID and by player. A player may be
// logged in over several connections at once.
type ConnManager struct {
	EventBus *events.Bus

	lastID   atomic.Int64
	mu       sync.RWMutex
	byID     map[int]*Descriptor
	byPlayer map[gamedb.DBRef][]*Descriptor
}

func NewConnManager() *ConnManager {
	return &ConnManager{
		byID:     make(map[int]*Descriptor),
		byPlayer: make(map[gamedb.DBRef][]*Descriptor),
	}
}

// NextID hands out descriptor IDs starting at 1.
func (cm *ConnManager) NextID() int { return int(cm.lastID.Add(1)) }

func (cm *ConnManager) Add(d *Descriptor) {
	cm.mu.Lock()
	cm.byID[d.ID] = d
	cm.mu.Unlock()
}

// Login binds d to player and subscribes it to the player's events.
func (cm *ConnManager) Login(d *Descriptor, player gamedb.DBRef) {
	cm.mu.Lock()
	d.State = ConnConnected
	d.Player = player
	cm.byPlayer[player] = append(cm.byPlayer[player], d)
	cm.mu.Unlock()

	if cm.EventBus != nil {
		cm.EventBus.Subscribe(player, d)
	}
}

// Remove forgets d and detaches it from the bus.
func (cm *ConnManager) Remove(d *Descriptor) {
	if cm.EventBus != nil && d.Player != gamedb.Nothing {
		cm.EventBus.Unsubscribe(d.Player, d)
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.byID, d.ID)
	if d.Player == gamedb.Nothing {
		return
	}
	var rest []*Descriptor
	for _, other := range cm.byPlayer[d.Player] {
		if other != d {
			rest = append(rest, other)
		}
	}
	if rest == nil {
		delete(cm.byPlayer, d.Player)
	} else {
		cm.byPlayer[d.Player] = rest
	}
}

// GetByPlayer returns a copy of player's descriptors.
func (cm *ConnManager) GetByPlayer(player gamedb.DBRef) []*Descriptor {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return append([]*Descriptor(nil), cm.byPlayer[player]...)
}

func (cm *ConnManager) IsConnected(player gamedb.DBRef) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.byPlayer[player]) > 0
}

// AllDescriptors returns a snapshot of every live descriptor.
func (cm *ConnManager) AllDescriptors() []*Descriptor {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	out := make([]*Descriptor, 0, len(cm.byID))
	for _, d := range cm.byID {
		out = append(out, d)
	}
	return out
}

func (cm *ConnManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.byID)
}

// FormatIdleTime renders d in its largest whole unit: 42s, 5m, 3h, 2d.
func FormatIdleTime(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d/time.Second))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d/time.Hour))
	}
	return fmt.Sprintf("%dd", int(d/(24*time.Hour)))
}

// FormatConnTime renders d as hh:mm.
func FormatConnTime(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d/time.Hour), int(d%time.Hour/time.Minute))
}

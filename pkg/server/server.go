package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/crystal-mush/gridmush/pkg/events"
	"github.com/crystal-mush/gridmush/pkg/gamedb"
	"github.com/crystal-mush/gridmush/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// Config holds server configuration.
type Config struct {
	Port        int
	IdleTimeout time.Duration
	MaxRetries  int
	WelcomeText string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port:        6250,
		IdleTimeout: 3600 * time.Second,
		MaxRetries:  3,
		WelcomeText: WelcomeText,
	}
}

// Server is the main TCP game server. It also runs the web transport when
// the game config enables it.
type Server struct {
	Config    Config
	Game      *Game
	listener  net.Listener
	webServer *WebServer
}

// NewServer creates a server around an already-wired game.
func NewServer(game *Game, cfg Config) *Server {
	return &Server{
		Config: cfg,
		Game:   game,
	}
}

// Start listens for connections and blocks until ctx is cancelled or a
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	g := s.Game

	if g.SQLDB != nil && g.Journal == nil {
		g.Journal = NewVisitJournal(g)
		retention := 24 * time.Hour
		if g.Conf != nil {
			retention = g.Conf.VisitRetentionDuration()
		}
		StartRetentionCleanup(ctx, g.SQLDB, retention)
	}
	if g.TextDir != "" {
		g.WatchTextFiles(ctx.Done())
	}

	g.mu.RLock()
	playerCount := 0
	for _, obj := range g.DB.Objects {
		if obj.ObjType() == gamedb.TypePlayer && !obj.IsGoing() {
			playerCount++
		}
	}
	logger.Log.Printf("Database: %d objects, %d players, %d grid rooms",
		len(g.DB.Objects), playerCount, g.Grids.Len())
	g.mu.RUnlock()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.Config.Port))
	if err != nil {
		return fmt.Errorf("listener: %w", err)
	}
	s.listener = ln
	logger.Log.Printf("Listening on port %d", s.Config.Port)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		s.acceptLoop(ln)
		return nil
	})

	if g.Conf != nil && g.Conf.WebEnabled {
		cfg := WebConfig{
			Port:      g.Conf.WebPort,
			Host:      g.Conf.WebHost,
			JWTSecret: g.Conf.JWTSecret,
			JWTExpiry: g.Conf.JWTExpiry,
		}
		s.webServer = NewWebServer(g, cfg)
		eg.Go(func() error {
			if err := s.webServer.Start(); err != nil {
				return fmt.Errorf("web server: %w", err)
			}
			return nil
		})
	}

	eg.Go(func() error {
		s.pruneSubscribers(ctx, time.Minute)
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		s.Stop()
		return nil
	})
	return eg.Wait()
}

// pruneSubscribers drops closed connections from the event bus every interval
// until ctx ends.
func (s *Server) pruneSubscribers(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Game.EventBus.Prune(); n > 0 {
				logger.Log.Debugf("events: pruned %d closed subscribers", n)
			}
		}
	}
}

// acceptLoop accepts connections on the given listener until it is closed.
func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Log.Printf("Accept error: %v", err)
			continue
		}
		go s.handleConnection(conn)
	}
}

// Stop closes the listeners and the web server.
func (s *Server) Stop() {
	if s.listener != nil {
		s.listener.Close()
	}
	if s.webServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.webServer.Stop(ctx)
	}
}

// handleConnection manages a single client connection lifecycle.
func (s *Server) handleConnection(conn net.Conn) {
	id := s.Game.Conns.NextID()
	d := NewDescriptor(id, conn)
	d.Retries = s.Config.MaxRetries
	s.Game.Conns.Add(d)

	logger.Log.Printf("[%d] New connection from %s", d.ID, d.Addr)

	defer func() {
		s.Game.DisconnectPlayer(d)
		s.Game.Conns.Remove(d)
		d.Close()
		logger.Log.Printf("[%d] Connection closed from %s", d.ID, d.Addr)
	}()

	if txt := s.Game.Texts.GetConnect(); txt != "" {
		d.SendNoNewline(txt)
	} else {
		d.SendNoNewline(s.Config.WelcomeText)
	}

	scanner := bufio.NewScanner(d.Conn)
	scanner.Buffer(make([]byte, 8192), 8192)

	for {
		if s.Config.IdleTimeout > 0 {
			d.Conn.SetReadDeadline(time.Now().Add(s.Config.IdleTimeout))
		}
		if !scanner.Scan() {
			return
		}
		if d.IsClosed() {
			return
		}

		line := scanner.Text()
		d.BytesRecv += len(line) + 1
		line = stripTelnet(line)
		line = strings.TrimRight(line, "\r\n")
		d.LastCmd = time.Now()

		if d.State == ConnLogin {
			s.handleLoginCommand(d, line)
		} else {
			d.CmdCount++
			logger.Log.Debugf("[%d] CMD player=#%d input=%q", d.ID, d.Player, line)
			DispatchCommand(s.Game, d, line)
		}

		if d.IsClosed() {
			return
		}
	}
}

// handleLoginCommand processes pre-login commands.
func (s *Server) handleLoginCommand(d *Descriptor, input string) {
	input = strings.TrimSpace(input)
	if input == "" {
		return
	}

	upper := strings.ToUpper(input)
	if upper == "QUIT" {
		if txt := s.Game.Texts.GetQuit(); txt != "" {
			d.SendNoNewline(txt)
		} else {
			d.Send("Goodbye!")
		}
		d.Close()
		return
	}
	if upper == "WHO" {
		s.Game.ShowWho(d)
		return
	}

	command, user, password := ParseConnect(input)

	switch {
	case strings.HasPrefix(command, "co"):
		s.handleConnect(d, user, password)
	case strings.HasPrefix(command, "cr"):
		s.handleCreate(d, user, password)
	default:
		d.Send(fmt.Sprintf("Welcome to %s. Commands: connect, create, WHO, QUIT", s.Game.MudName()))
	}
}

// handleConnect authenticates and logs in a player.
func (s *Server) handleConnect(d *Descriptor, user, password string) {
	if user == "" {
		d.Send("Usage: connect <name> <password>")
		return
	}

	player := s.Game.LookupPlayer(user)
	if player == gamedb.Nothing || !s.Game.CheckPassword(player, password) {
		d.Send("Either that player does not exist, or has a different password.")
		d.Retries--
		if d.Retries <= 0 {
			d.Send("Too many failed attempts. Disconnecting.")
			d.Close()
		}
		return
	}

	logger.Log.Printf("[%d] Player %s(#%d) connected from %s", d.ID, s.Game.PlayerName(player), player, d.Addr)
	d.Send(fmt.Sprintf("Welcome back, %s!", s.Game.PlayerName(player)))
	s.Game.ConnectPlayer(d, player)
}

// handleCreate creates a new player and logs them in.
func (s *Server) handleCreate(d *Descriptor, user, password string) {
	if user == "" || password == "" {
		d.Send("Usage: create <name> <password>")
		return
	}

	ref, err := s.Game.CreatePlayer(user, password)
	switch {
	case errors.Is(err, ErrPlayerExists):
		d.Send("That name is already taken.")
		return
	case errors.Is(err, ErrBadPlayerName):
		d.Send("That name is not allowed.")
		return
	case err != nil:
		logger.Log.Printf("ERROR: create player %q: %v", user, err)
		d.Send("Character creation failed.")
		return
	}

	logger.Log.Printf("[%d] New player %s(#%d) created from %s", d.ID, user, ref, d.Addr)
	d.Send(fmt.Sprintf("Welcome to %s, %s! Your character has been created as #%d.", s.Game.MudName(), user, ref))
	s.Game.ConnectPlayer(d, ref)
}

// ConnectPlayer finishes a successful login on any transport: it binds the
// descriptor, marks the player connected, shows the MOTD and the room, and
// tells the room.
func (g *Game) ConnectPlayer(d *Descriptor, player gamedb.DBRef) {
	g.Conns.Login(d, player)

	g.mu.Lock()
	obj, ok := g.DB.Objects[player]
	var name string
	loc := gamedb.Nothing
	if ok {
		obj.Flags |= gamedb.FlagConnected
		obj.LastAccess = time.Now()
		g.PersistObject(obj)
		name = DisplayName(obj.Name)
		loc = obj.Location
	}
	g.mu.Unlock()
	if !ok {
		return
	}

	if txt := g.Texts.GetMotd(); txt != "" {
		d.SendNoNewline(txt)
	}

	g.EmitRoomExcept(loc, []gamedb.DBRef{player}, events.Event{
		Type:   events.EvConnect,
		Source: player,
		Text:   fmt.Sprintf("%s has connected.", name),
		Data:   map[string]any{"player": name},
	})
	g.ShowRoom(d, loc)
}

// stripTelnet removes telnet IAC command sequences from input.
func stripTelnet(s string) string {
	var buf strings.Builder
	i := 0
	for i < len(s) {
		if s[i] == 0xFF && i+2 < len(s) {
			// IAC command: skip IAC + cmd + option
			i += 3
			continue
		}
		if s[i] == 0xFF && i+1 < len(s) {
			i += 2
			continue
		}
		if s[i] < 32 && s[i] != '\t' && s[i] != '\n' && s[i] != '\r' {
			i++
			continue
		}
		buf.WriteByte(s[i])
		i++
	}
	return buf.String()
}

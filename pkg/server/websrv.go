package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/crystal-mush/gridmush/pkg/events"
	"github.com/crystal-mush/gridmush/pkg/gamedb"
	"github.com/crystal-mush/gridmush/pkg/grid"
	"github.com/crystal-mush/gridmush/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

// WebConfig holds configuration for the web server.
type WebConfig struct {
	Port      int
	Host      string
	JWTSecret string
	JWTExpiry int
}

// WebServer provides HTTP/WebSocket transport alongside the TCP game server.
type WebServer struct {
	game      *Game
	httpSrv   *http.Server
	router    chi.Router
	tokens    *Tokens
	upgrader  websocket.Upgrader
	startTime time.Time
}

// NewWebServer creates a web server bound to the game.
func NewWebServer(game *Game, cfg WebConfig) *WebServer {
	ws := &WebServer{
		game:      game,
		tokens:    NewTokens(game, cfg.JWTSecret, cfg.JWTExpiry),
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	if game.Metrics == nil {
		game.Metrics = NewMetrics(game, ws.startTime)
	}
	ws.router = ws.routes()
	ws.httpSrv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: ws.router,
	}
	return ws
}

// Handler returns the router. Tests drive it through httptest.
func (ws *WebServer) Handler() http.Handler { return ws.router }

// Tokens returns the session token service.
func (ws *WebServer) Tokens() *Tokens { return ws.tokens }

func (ws *WebServer) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", ws.handleHealth)
	r.Handle("/metrics", ws.game.Metrics.Handler())
	r.Get("/ws", ws.handleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", ws.handleAuthLogin)
		r.Post("/auth/refresh", ws.handleAuthRefresh)

		r.Group(func(r chi.Router) {
			r.Use(ws.tokens.Authenticate, ws.tokens.RequireBuilder)
			r.Get("/rooms/{dbref}/grid", ws.handleGetGrid)
			r.Get("/rooms/{dbref}/grid/visits", ws.handleGetVisits)
		})
	})
	return r
}

// Start serves until Stop is called.
func (ws *WebServer) Start() error {
	logger.Log.Printf("Web server listening on %s (HTTP)", ws.httpSrv.Addr)
	err := ws.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the web server.
func (ws *WebServer) Stop(ctx context.Context) error {
	return ws.httpSrv.Shutdown(ctx)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Log.Printf("web: encoding JSON: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// --- WebSocket ---

// WSMessage is the JSON message format for WebSocket communication.
type WSMessage struct {
	Type    string         `json:"type"`
	Text    string         `json:"text,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Command string         `json:"command,omitempty"`
}

func (ws *WebServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var claims *GridClaims
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = bearerToken(r)
	}
	if token != "" {
		var err error
		claims, err = ws.tokens.Verify(token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
	}

	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Printf("websocket upgrade error: %v", err)
		return
	}

	remoteAddr := r.RemoteAddr
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		remoteAddr, _, _ = strings.Cut(xff, ",")
		remoteAddr = strings.TrimSpace(remoteAddr)
	}
	d, wc := newWSDescriptor(ws.game, conn, remoteAddr)
	ws.game.Conns.Add(d)

	if claims != nil {
		wc.sendJSON(WSMessage{
			Type: "login",
			Data: map[string]any{
				"player_ref":  int(claims.Player),
				"player_name": claims.Name,
				"builder":     claims.Builder,
			},
		})
		ws.game.ConnectPlayer(d, claims.Player)
	} else {
		wc.sendJSON(WSMessage{Type: "welcome", Text: `Connected. Send {"type":"login","command":"connect name password"} to authenticate.`})
	}

	go wsReadLoop(ws, d, wc)
}

// wsConn serializes writes to one WebSocket. It is the Outlet of a
// WebSocket descriptor.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (wc *wsConn) sendJSON(msg WSMessage) {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	wc.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	wc.conn.WriteJSON(msg)
}

func (wc *wsConn) Line(msg string) { wc.sendJSON(WSMessage{Type: "text", Text: msg}) }

func (wc *wsConn) Block(text string) { wc.Line(strings.TrimRight(text, "\r\n")) }

func (wc *wsConn) Event(ev events.Event) {
	wc.sendJSON(WSMessage{Type: ev.Type.String(), Text: ev.Text, Data: ev.Data})
}

func (wc *wsConn) Close() error { return wc.conn.Close() }

func newWSDescriptor(game *Game, conn *websocket.Conn, addr string) (*Descriptor, *wsConn) {
	wc := &wsConn{conn: conn}
	now := time.Now()
	return &Descriptor{
		ID:        game.Conns.NextID(),
		Out:       wc,
		Transport: TransportWebSocket,
		Player:    gamedb.Nothing,
		Addr:      addr,
		ConnTime:  now,
		LastCmd:   now,
		Retries:   3,
	}, wc
}

func wsReadLoop(ws *WebServer, d *Descriptor, wc *wsConn) {
	defer func() {
		ws.game.DisconnectPlayer(d)
		ws.game.Conns.Remove(d)
		wc.conn.Close()
		logger.Log.Printf("[ws:%d] WebSocket closed from %s", d.ID, d.Addr)
	}()

	for {
		_, msgBytes, err := wc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log.Printf("[ws:%d] read error: %v", d.ID, err)
			}
			return
		}
		if d.IsClosed() {
			return
		}
		d.LastCmd = time.Now()

		var msg WSMessage
		if err := json.Unmarshal(msgBytes, &msg); err != nil {
			wc.sendJSON(WSMessage{Type: "error", Text: "Invalid JSON message"})
			continue
		}

		switch msg.Type {
		case "login":
			handleWSLogin(ws, d, wc, msg.Command)
		case "command":
			if d.State == ConnLogin {
				handleWSLogin(ws, d, wc, msg.Command)
				continue
			}
			d.CmdCount++
			DispatchCommand(ws.game, d, msg.Command)
		default:
			wc.sendJSON(WSMessage{Type: "error", Text: fmt.Sprintf("Unknown message type: %s", msg.Type)})
		}
		if d.IsClosed() {
			return
		}
	}
}

func handleWSLogin(ws *WebServer, d *Descriptor, wc *wsConn, input string) {
	if d.State == ConnConnected {
		wc.sendJSON(WSMessage{Type: "error", Text: "Already connected"})
		return
	}
	command, user, password := ParseConnect(input)
	if !strings.HasPrefix(command, "co") {
		wc.sendJSON(WSMessage{Type: "error", Text: "Use: connect <name> <password>"})
		return
	}
	player := ws.game.LookupPlayer(user)
	if player == gamedb.Nothing || !ws.game.CheckPassword(player, password) {
		wc.sendJSON(WSMessage{Type: "error", Text: "Invalid credentials"})
		return
	}
	wc.sendJSON(WSMessage{
		Type: "login",
		Data: map[string]any{
			"player_ref":  int(player),
			"player_name": ws.game.PlayerName(player),
		},
	})
	ws.game.ConnectPlayer(d, player)
}

// --- Auth ---

func (ws *WebServer) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token, err := ws.tokens.Login(req.Name, req.Password)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (ws *WebServer) handleAuthRefresh(w http.ResponseWriter, r *http.Request) {
	raw, err := bearerToken(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}
	token, err := ws.tokens.Refresh(raw)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        Version,
		"uptime_seconds": time.Since(ws.startTime).Seconds(),
		"connections":    ws.game.Conns.Count(),
	})
}

// --- Grid API ---

// GridResponse is the JSON view of a grid room.
type GridResponse struct {
	Room    int    `json:"room"`
	Name    string `json:"name"`
	Bounds  string `json:"bounds"`
	Base    string `json:"base"`
	Current string `json:"current"`
	Carve   bool   `json:"carve"`
	Size    string `json:"size"`
	Map     string `json:"map"`
}

// VisitResponse is one journaled arrival.
type VisitResponse struct {
	ID        string    `json:"id"`
	Navigator int       `json:"navigator"`
	Name      string    `json:"name"`
	Direction string    `json:"direction"`
	At        time.Time `json:"at"`
}

// gridRoomParam resolves the {dbref} URL parameter to a grid room.
func (ws *WebServer) gridRoomParam(w http.ResponseWriter, r *http.Request) (*grid.Room, bool) {
	raw := strings.TrimPrefix(chi.URLParam(r, "dbref"), "#")
	n, err := strconv.Atoi(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid dbref")
		return nil, false
	}
	room, ok := ws.game.Grids.Get(gamedb.DBRef(n))
	if !ok {
		respondError(w, http.StatusNotFound, "not a grid room")
		return nil, false
	}
	return room, true
}

// handleGetGrid handles GET /api/v1/rooms/{dbref}/grid?size=small|large.
// Only builders may read the map.
func (ws *WebServer) handleGetGrid(w http.ResponseWriter, r *http.Request) {
	room, ok := ws.gridRoomParam(w, r)
	if !ok {
		return
	}

	size := grid.Small
	sizeName := strings.ToLower(r.URL.Query().Get("size"))
	switch sizeName {
	case "", "small":
		sizeName = "small"
	case "large":
		size = grid.Large
	default:
		respondError(w, http.StatusBadRequest, "size must be small or large")
		return
	}

	resp := GridResponse{
		Room: int(room.Ref),
		Name: ws.game.PlayerName(room.Ref),
		Size: sizeName,
	}
	room.View(func(rm *grid.Room) {
		resp.Bounds = rm.State.Bounds.String()
		resp.Base = rm.State.Base.String()
		resp.Current = rm.State.Current.String()
		resp.Carve = rm.State.Carve
		resp.Map = rm.Render(size)
	})
	respondJSON(w, http.StatusOK, resp)
}

// handleGetVisits handles GET /api/v1/rooms/{dbref}/grid/visits?at=x,y&limit=n.
func (ws *WebServer) handleGetVisits(w http.ResponseWriter, r *http.Request) {
	if ws.game.Journal == nil {
		respondError(w, http.StatusServiceUnavailable, "visit journal disabled")
		return
	}
	room, ok := ws.gridRoomParam(w, r)
	if !ok {
		return
	}
	at, err := grid.ParseCoord(r.URL.Query().Get("at"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "at must be x,y")
		return
	}
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil || limit <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	recs, err := ws.game.Journal.RecentVisits(r.Context(), room.Ref, at, limit)
	if err != nil {
		logger.Log.Printf("web: read visits: %v", err)
		respondError(w, http.StatusInternalServerError, "journal unavailable")
		return
	}
	out := make([]VisitResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, VisitResponse{
			ID:        rec.ID,
			Navigator: int(rec.Navigator),
			Name:      rec.Name,
			Direction: rec.Direction,
			At:        rec.At,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

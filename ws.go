package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsClient is the server-side half of one websocket connection.
type wsClient struct {
	conn   *websocket.Conn
	outbox chan any
	done   chan struct{}
	once   sync.Once
	connID string
}

func newWSClient(sock *websocket.Conn) *wsClient {
	return &wsClient{
		conn:   sock,
		outbox: make(chan any, 32),
		done:   make(chan struct{}),
		connID: newConnID(),
	}
}

func (c *wsClient) id() string { return c.connID }

// detach marks the connection dead so the write pump exits and later
// sends become no-ops. A room holding this conn during a grace period
// may still call send after detach. Idempotent.
func (c *wsClient) detach() {
	c.once.Do(func() { close(c.done) })
}

// send queues a message for the write pump, dropping it if the client
// cannot keep up or is already detached. A room's loop must never block
// on a slow client.
func (c *wsClient) send(v any) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.outbox <- v:
	default:
	}
}

func (c *wsClient) writePump() {
	defer c.conn.Close()

	for {
		select {
		case msg := <-c.outbox:
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *wsClient) readPump(cfg *Config, reg *Registry) {
	defer func() {
		if room := reg.byConn(c.connID); room != nil {
			room.post(connLost{c: c})
		}
		c.detach()
		_ = c.conn.Close()
		logf(cfg, "CONN: %s disconnected", c.connID)
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		dispatch(cfg, reg, c, msg)
	}
}

// dispatch routes one client intent: room-creating and room-addressed
// intents go through the registry, everything else to the room the
// connection already belongs to.
func dispatch(cfg *Config, reg *Registry, c conn, msg ClientMessage) {
	switch msg.Type {
	case "create_room":
		reg.createRoom(c, msg.Name)

	case "check_room":
		code := normalizeCode(msg.RoomCode)
		room := reg.lookup(code)
		if room == nil {
			c.send(ErrorMessage{Type: "error", Message: fmt.Sprintf("Room %s not found.", code)})
			return
		}
		room.post(checkRoom{c: c})

	case "join_room", "join_active_room":
		code := normalizeCode(msg.RoomCode)
		if code == "" {
			c.send(ErrorMessage{Type: "error", Message: "Room code is missing."})
			return
		}
		room := reg.lookup(code)
		if room == nil {
			c.send(ErrorMessage{Type: "error", Message: fmt.Sprintf("Room %s is not available for joining right now.", code)})
			return
		}
		room.post(joinRoom{c: c, name: msg.Name, active: msg.Type == "join_active_room"})

	case "rejoin":
		code := normalizeCode(msg.RoomCode)
		if msg.PlayerID == "" || code == "" {
			c.send(RejoinFailedMessage{Type: "rejoin_failed", Message: "Invalid rejoin data provided."})
			return
		}
		room := reg.lookup(code)
		if room == nil {
			c.send(RejoinFailedMessage{
				Type:    "rejoin_failed",
				Message: fmt.Sprintf("Could not rejoin room %s. Room does not exist or has expired.", code),
			})
			return
		}
		room.post(rejoinRoom{c: c, playerID: msg.PlayerID, name: msg.Name})

	case "leave_room":
		if room := reg.byConn(c.id()); room != nil {
			room.post(leaveRoom{c: c})
		} else {
			logf(cfg, "CONN: %s asked to leave while not in any room", c.id())
		}

	case "start_game", "vote", "force_results", "next_question":
		room := reg.byConn(c.id())
		if room == nil {
			logf(cfg, "CONN: %s sent %q while not in any room", c.id(), msg.Type)
			return
		}
		switch msg.Type {
		case "start_game":
			room.post(startGame{c: c})
		case "vote":
			room.post(submitVote{c: c, vote: msg.Vote})
		case "force_results":
			room.post(forceResults{c: c})
		case "next_question":
			room.post(nextQuestion{c: c})
		}

	default:
		logf(cfg, "CONN: %s sent unknown message type %q", c.id(), msg.Type)
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func newConnID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	return hex.EncodeToString(buf)
}

func serveWS(cfg *Config, reg *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		sock, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "CONN: upgrade error from %s: %v", realIP(r), err)
			return
		}

		client := newWSClient(sock)

		logf(cfg, "CONN: %s connected from %s", client.connID, realIP(r))

		go client.writePump()
		client.readPump(cfg, reg)
	}
}

// serveRoomPage is a minimal landing page for a shared room link.
func serveRoomPage(cfg *Config, reg *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := normalizeCode(ps.ByName("code"))

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		if reg.lookup(code) == nil {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, newPage("Room not found", fmt.Sprintf("Room %s not found.", code)))
			return
		}

		body := fmt.Sprintf(`<h1>Room %s</h1>
<p>Open a game client and join with code <code>%s</code>,
or scan <a href="%s/r/%s/qr">the QR code</a>.</p>`, code, code, cfg.prefix, code)
		io.WriteString(w, newPage("Room "+code, body))
	}
}

// serveRoomQR renders a PNG QR code for a room's share URL, so a room
// can be joined by pointing a phone at the host's screen.
func serveRoomQR(cfg *Config, reg *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := normalizeCode(ps.ByName("code"))
		if reg.lookup(code) == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		// We are at .../r/:code/qr; strip the trailing "/qr" to get the
		// room URL.
		path := strings.TrimSuffix(r.URL.Path, "/qr")

		url := scheme + "://" + r.Host + path

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

// registerGameRoutes wires the game's transport endpoints:
//   - /ws          → websocket carrying all intents and notifications
//   - /r/:code     → shareable room landing page
//   - /r/:code/qr  → PNG QR code for that room's URL
func registerGameRoutes(cfg *Config, reg *Registry, mux *httprouter.Router) {
	mux.GET(cfg.prefix+"/ws", serveWS(cfg, reg))
	mux.GET(cfg.prefix+"/r/:code", serveRoomPage(cfg, reg))
	mux.GET(cfg.prefix+"/r/:code/qr", serveRoomQR(cfg, reg))
}

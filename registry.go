package main

import (
	"crypto/rand"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const roomCodeLength = 4

// Registry owns the code→Room mapping. Rooms register their members'
// connection ids here, so inbound intents can be routed to the right room
// without asking every room in turn.
type Registry struct {
	mu        sync.Mutex
	cfg       *Config
	questions []Question
	rooms     map[string]*Room
	conns     map[string]*Room
}

func newRegistry(cfg *Config, questions []Question) *Registry {
	return &Registry{
		cfg:       cfg,
		questions: questions,
		rooms:     make(map[string]*Room),
		conns:     make(map[string]*Room),
	}
}

// newRoomCodeLocked generates a crypto-random 4-letter code, retrying on
// the rare collision with an existing room. Must be called with reg.mu
// held.
func (reg *Registry) newRoomCodeLocked() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	for {
		buf := make([]byte, roomCodeLength)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}

		out := make([]byte, roomCodeLength)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		code := string(out)

		if _, exists := reg.rooms[code]; !exists {
			return code
		}
	}
}

// defaultName is the fallback display name for players who submit an
// empty one. Creating or joining never fails on a missing name.
func defaultName(connID string) string {
	suffix := connID
	if len(suffix) > 4 {
		suffix = suffix[:4]
	}
	return "User_" + suffix
}

// createRoom allocates a fresh waiting room with the creator as its host
// and only player, and starts the room's intent loop.
func (reg *Registry) createRoom(c conn, name string) *Room {
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultName(c.id())
	}

	host := &Player{
		PlayerID: uuid.NewString(),
		Name:     name,
		conn:     c,
	}

	reg.mu.Lock()
	code := reg.newRoomCodeLocked()
	room := newRoom(reg, code, host)
	reg.rooms[code] = room
	reg.conns[c.id()] = room
	reg.mu.Unlock()

	go room.run()

	logf(reg.cfg, "ROOMS: %s (player %s) created room %s", name, host.PlayerID, code)

	c.send(RoomJoinedMessage{
		Type:     "room_joined",
		RoomCode: code,
		Players:  []PlayerInfo{{ID: c.id(), Name: name, PlayerID: host.PlayerID}},
		IsHost:   true,
		PlayerID: host.PlayerID,
		HostID:   c.id(),
	})

	return room
}

// lookup returns the room with the given (already normalized) code, or
// nil if none exists.
func (reg *Registry) lookup(code string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	return reg.rooms[code]
}

// remove evicts a room from the registry. Removing an absent code is a
// no-op.
func (reg *Registry) remove(code string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, exists := reg.rooms[code]; exists {
		delete(reg.rooms, code)
		logf(reg.cfg, "ROOMS: removed room %s", code)
	}
}

// bind routes future intents from a connection to the given room.
func (reg *Registry) bind(connID string, room *Room) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.conns[connID] = room
}

// unbind detaches a connection from intent routing.
func (reg *Registry) unbind(connID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	delete(reg.conns, connID)
}

// byConn resolves the room a connection currently belongs to, or nil.
func (reg *Registry) byConn(connID string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	return reg.conns[connID]
}

// count reports the number of active rooms.
func (reg *Registry) count() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	return len(reg.rooms)
}

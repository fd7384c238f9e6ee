package main

import (
	"fmt"
	"html"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const maxRoomPlayers = 4

type playerInfo struct {
	username string // stored HTML-escaped
	ready    bool
}

// Room groups players before and during one game. All fields are guarded by
// mu; every mutation of a room and its session happens under that one lock,
// so interleavings from independent connections are serialized per room.
type Room struct {
	mu sync.Mutex

	id         string
	name       string
	host       string
	players    []string // join order
	info       map[string]*playerInfo
	status     roomStatus
	maxPlayers int
	targetURL  string
	settings   Settings

	// currentPages maps a served page URL to its authoritative title,
	// populated lazily by the proxy while guessing mode is active.
	currentPages map[string]string

	session *GameSession

	// gone marks a room that has been destroyed; lookups that raced the
	// destruction treat it as not found.
	gone bool
}

func (r *Room) infoLocked() RoomInfo {
	players := make([]string, len(r.players))
	copy(players, r.players)

	info := make(map[string]PlayerInfo, len(r.info))
	for id, pi := range r.info {
		info[id] = PlayerInfo{Username: pi.username, Ready: pi.ready}
	}

	return RoomInfo{
		ID:         r.id,
		Name:       r.name,
		Host:       r.host,
		Players:    players,
		PlayerInfo: info,
		Status:     r.status,
		MaxPlayers: r.maxPlayers,
		TargetURL:  html.EscapeString(r.targetURL),
		Settings:   r.settings,
	}
}

func (r *Room) summaryLocked() RoomSummary {
	return RoomSummary{
		ID:          r.id,
		Name:        r.name,
		Host:        r.host,
		PlayerCount: len(r.players),
		MaxPlayers:  r.maxPlayers,
		Status:      r.status,
	}
}

// Registry owns the set of rooms, the connection→room bindings, and the set
// of live clients. Its mutex guards only the maps; per-room state is guarded
// by each room's own mutex, so independent rooms proceed in parallel.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	bindings map[string]string // player id -> room id
	clients  map[string]*Client
}

func newRegistry() *Registry {
	return &Registry{
		rooms:    make(map[string]*Room),
		bindings: make(map[string]string),
		clients:  make(map[string]*Client),
	}
}

func (reg *Registry) addClient(c *Client) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.clients[c.id] = c
}

func (reg *Registry) removeClient(id string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	delete(reg.clients, id)
}

func (reg *Registry) roomByID(id string) *Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	return reg.rooms[id]
}

// boundRoom resolves a player's current room membership.
func (reg *Registry) boundRoom(playerID string) (*Room, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	roomID, ok := reg.bindings[playerID]
	if !ok {
		return nil, errNotInRoom
	}

	room := reg.rooms[roomID]
	if room == nil {
		return nil, errNotInRoom
	}

	return room, nil
}

func (reg *Registry) isBound(playerID string) bool {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	_, ok := reg.bindings[playerID]
	return ok
}

func (reg *Registry) bind(playerID, roomID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.bindings[playerID] = roomID
}

// insertRoom generates a fresh unique id for the room, stores it, and binds
// the host in one step.
func (reg *Registry) insertRoom(room *Room, hostID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for {
		id := uuid.NewString()[:8]
		if _, exists := reg.rooms[id]; exists {
			continue
		}
		room.id = id
		break
	}

	reg.rooms[room.id] = room
	reg.bindings[hostID] = room.id
}

// broadcast delivers msg to every client currently bound to the room. The
// recipient set is computed from the binding table at publish time, not from
// a cached subscriber list.
func (reg *Registry) broadcast(roomID string, msg any) {
	reg.broadcastExcept(roomID, "", msg)
}

func (reg *Registry) broadcastExcept(roomID, skipID string, msg any) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	for playerID, bound := range reg.bindings {
		if bound != roomID || playerID == skipID {
			continue
		}
		if c := reg.clients[playerID]; c != nil {
			c.deliver(msg)
		}
	}
}

func sanitizeName(raw string) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		name = fmt.Sprintf("Player%d", 1000+rand.IntN(9000))
	}

	return html.EscapeString(name)
}

func (a *app) createRoom(c *Client, msg clientMessage) error {
	// A connection belongs to at most one room; creating a new one counts
	// as leaving the old one.
	a.removePlayer(c.id)

	username := sanitizeName(msg.Username)

	room := &Room{
		name:         username + "'s room",
		host:         c.id,
		players:      []string{c.id},
		info:         map[string]*playerInfo{c.id: {username: username}},
		status:       statusWaiting,
		maxPlayers:   maxRoomPlayers,
		targetURL:    a.cfg.targetURL,
		settings:     defaultSettings(),
		currentPages: make(map[string]string),
	}

	a.reg.insertRoom(room, c.id)

	room.mu.Lock()
	info := room.infoLocked()
	room.mu.Unlock()

	c.deliver(roomCreatedMessage{
		Type:     "room_created",
		RoomID:   room.id,
		RoomInfo: info,
	})

	logf(a.cfg, "ROOMS: %s created %s", username, room.id)

	return nil
}

func (a *app) joinRoom(c *Client, msg clientMessage) error {
	room := a.reg.roomByID(msg.RoomID)
	if room == nil {
		return errRoomNotFound
	}

	a.removePlayer(c.id)

	username := sanitizeName(msg.Username)

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.gone {
		return errRoomNotFound
	}
	if len(room.players) >= room.maxPlayers {
		return errRoomFull
	}
	if room.status != statusWaiting {
		return errNotWaiting
	}

	room.players = append(room.players, c.id)
	room.info[c.id] = &playerInfo{username: username}
	a.reg.bind(c.id, room.id)

	a.reg.broadcast(room.id, playerJoinedMessage{
		Type:     "player_joined",
		PlayerID: c.id,
		Username: username,
		RoomInfo: room.infoLocked(),
	})

	logf(a.cfg, "ROOMS: %s joined %s", username, room.id)

	return nil
}

func (a *app) toggleReady(c *Client, _ clientMessage) error {
	room, err := a.reg.boundRoom(c.id)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	info := room.info[c.id]
	if info == nil {
		return errNotInRoom
	}

	info.ready = !info.ready

	a.reg.broadcast(room.id, playerReadyChangedMessage{
		Type:     "player_ready_changed",
		PlayerID: c.id,
		Ready:    info.ready,
		RoomInfo: room.infoLocked(),
	})

	allReady := len(room.players) >= 2
	for _, pid := range room.players {
		if !room.info[pid].ready {
			allReady = false
			break
		}
	}

	if allReady {
		a.reg.broadcast(room.id, allPlayersReadyMessage{
			Type:     "all_players_ready",
			RoomInfo: room.infoLocked(),
		})
	}

	return nil
}

func (a *app) setTargetURL(c *Client, msg clientMessage) error {
	room := a.reg.roomByID(msg.RoomID)
	if room == nil {
		return errRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.gone {
		return errRoomNotFound
	}
	if room.host != c.id {
		return errNotHost
	}
	if room.status != statusWaiting {
		return errNotWaiting
	}
	if !a.cfg.isSafeURL(msg.TargetURL) {
		return errInvalidURL
	}

	room.targetURL = msg.TargetURL

	a.reg.broadcast(room.id, targetURLUpdatedMessage{
		Type:      "target_url_updated",
		RoomID:    room.id,
		TargetURL: html.EscapeString(msg.TargetURL),
		RoomInfo:  room.infoLocked(),
	})

	logf(a.cfg, "ROOMS: %s target set to %s", room.id, msg.TargetURL)

	return nil
}

func (a *app) updateSettings(c *Client, msg clientMessage) error {
	room := a.reg.roomByID(msg.RoomID)
	if room == nil {
		return errRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.gone {
		return errRoomNotFound
	}
	if room.host != c.id {
		return errNotHost
	}
	if room.status != statusWaiting {
		return errNotWaiting
	}

	// Permissive merge: recognized keys with valid values are applied,
	// everything else is ignored.
	if patch := msg.Settings; patch != nil {
		if patch.AllowCtrlF != nil {
			room.settings.AllowCtrlF = *patch.AllowCtrlF
		}
		if patch.GameMode != nil && gameMode(*patch.GameMode).valid() {
			room.settings.GameMode = gameMode(*patch.GameMode)
		}
		if patch.Difficulty != nil && difficulty(*patch.Difficulty).valid() {
			room.settings.Difficulty = difficulty(*patch.Difficulty)
		}
	}

	a.reg.broadcast(room.id, roomSettingsUpdatedMessage{
		Type:     "room_settings_updated",
		RoomID:   room.id,
		Settings: room.settings,
		RoomInfo: room.infoLocked(),
	})

	return nil
}

func (a *app) leaveRoom(c *Client, _ clientMessage) error {
	if a.removePlayer(c.id) {
		c.deliver(leftRoomMessage{Type: "left_room"})
	}

	return nil
}

func (a *app) resetRoom(c *Client, msg clientMessage) error {
	if !a.reg.isBound(c.id) {
		return errNotInRoom
	}

	room := a.reg.roomByID(msg.RoomID)
	if room == nil {
		return errRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.gone {
		return errRoomNotFound
	}
	if room.host != c.id {
		return errNotHost
	}
	if room.status != statusFinished {
		return errNotFinished
	}

	room.status = statusWaiting
	for _, info := range room.info {
		info.ready = false
	}
	room.session = nil

	a.reg.broadcast(room.id, roomResetMessage{
		Type:     "room_reset",
		RoomID:   room.id,
		RoomInfo: room.infoLocked(),
	})

	logf(a.cfg, "ROOMS: %s reset for a new game", room.id)

	return nil
}

func (a *app) listRooms(c *Client, _ clientMessage) error {
	a.reg.mu.RLock()
	rooms := make([]*Room, 0, len(a.reg.rooms))
	for _, room := range a.reg.rooms {
		rooms = append(rooms, room)
	}
	a.reg.mu.RUnlock()

	summaries := make([]RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		room.mu.Lock()
		if !room.gone && room.status == statusWaiting && len(room.players) < room.maxPlayers {
			summaries = append(summaries, room.summaryLocked())
		}
		room.mu.Unlock()
	}

	c.deliver(availableRoomsMessage{
		Type:  "available_rooms",
		Rooms: summaries,
	})

	return nil
}

// removePlayer resolves a leave or disconnect into registry and session
// mutations. It is safe to call when the player is not in any room, and a
// duplicate call for the same departure is a no-op, so a disconnect racing a
// concurrent leave cannot double-remove.
func (a *app) removePlayer(playerID string) bool {
	a.reg.mu.Lock()
	roomID, ok := a.reg.bindings[playerID]
	if ok {
		delete(a.reg.bindings, playerID)
	}
	room := a.reg.rooms[roomID]
	a.reg.mu.Unlock()

	if !ok || room == nil {
		return ok
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	duringGame := room.status == statusPlaying && room.session != nil

	members := room.players[:0]
	for _, pid := range room.players {
		if pid != playerID {
			members = append(members, pid)
		}
	}
	room.players = members
	delete(room.info, playerID)

	if len(room.players) == 0 {
		room.gone = true
		room.session = nil

		a.reg.mu.Lock()
		delete(a.reg.rooms, room.id)
		a.reg.mu.Unlock()

		logf(a.cfg, "ROOMS: %s destroyed", room.id)

		return true
	}

	// Host leaves: earliest remaining member inherits the room.
	if room.host == playerID {
		room.host = room.players[0]
	}

	if duringGame {
		delete(room.session.players, playerID)

		state := room.session.snapshotLocked()
		a.reg.broadcast(room.id, playerLeftMessage{
			Type:       "player_left",
			PlayerID:   playerID,
			RoomInfo:   room.infoLocked(),
			GameState:  &state,
			DuringGame: true,
		})

		// The departed player may have been the last unfinished one.
		a.finishIfDoneLocked(room)
	} else {
		a.reg.broadcast(room.id, playerLeftMessage{
			Type:     "player_left",
			PlayerID: playerID,
			RoomInfo: room.infoLocked(),
		})
	}

	return true
}

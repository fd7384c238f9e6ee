package main

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// app wires the registry, the game engine, and the external-site
// collaborators together behind the websocket and HTTP surfaces.
type app struct {
	cfg  *Config
	reg  *Registry
	wiki *WikiClient
	refs *DifficultySource

	// pager picks random start pages; split out from wiki so tests can
	// substitute a stub.
	pager randomPager

	red *redactor
}

func newApp(cfg *Config) *app {
	wiki := newWikiClient(cfg)

	return &app{
		cfg:   cfg,
		reg:   newRegistry(),
		wiki:  wiki,
		refs:  newDifficultySource(cfg),
		pager: wiki,
		red:   newRedactor(),
	}
}

// Client is one live websocket connection, identified by a fresh player id.
type Client struct {
	conn *websocket.Conn
	send chan any
	id   string
}

// deliver enqueues a message without blocking; a client that cannot keep up
// loses messages rather than stalling the room.
func (c *Client) deliver(msg any) {
	select {
	case c.send <- msg:
	default:
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (a *app) serveWS() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(a.cfg, "WS: upgrade error: %v", err)
			return
		}

		client := &Client{
			conn: conn,
			send: make(chan any, 16),
			id:   uuid.NewString(),
		}

		a.reg.addClient(client)

		client.deliver(connectionResponseMessage{
			Type:     "connection_response",
			Status:   "connected",
			PlayerID: client.id,
		})

		logf(a.cfg, "WS: %s connected from %s", client.id, realIP(r))

		go client.writePump()
		a.readPump(client)
	}
}

func (a *app) readPump(c *Client) {
	defer func() {
		a.disconnect(c)
		_ = c.conn.Close()
	}()

	for {
		var msg clientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		a.dispatch(c, msg)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// dispatch routes one inbound action to the registry or the engine and
// reports any rejection to the acting connection only.
func (a *app) dispatch(c *Client, msg clientMessage) {
	var err error

	switch msg.Type {
	case "create_room":
		err = a.createRoom(c, msg)
	case "join_room":
		err = a.joinRoom(c, msg)
	case "toggle_ready":
		err = a.toggleReady(c, msg)
	case "set_target_url":
		err = a.setTargetURL(c, msg)
	case "update_room_settings":
		err = a.updateSettings(c, msg)
	case "start_game":
		err = a.startGame(c, msg)
	case "player_move":
		err = a.playerMove(c, msg)
	case "ctrl_f_violation":
		err = a.searchViolation(c, msg)
	case "player_give_up":
		err = a.giveUp(c, msg)
	case "submit_answer":
		err = a.submitAnswer(c, msg)
	case "leave_room_request":
		err = a.leaveRoom(c, msg)
	case "get_available_rooms":
		err = a.listRooms(c, msg)
	case "reset_room":
		err = a.resetRoom(c, msg)
	default:
		// ignore unknown types
	}

	if err != nil {
		c.deliver(wsError(err))
	}
}

// disconnect treats a dropped connection as an implicit leave. Processing is
// idempotent: a leave that already ran leaves nothing to remove.
func (a *app) disconnect(c *Client) {
	a.removePlayer(c.id)
	a.reg.removeClient(c.id)
	close(c.send)

	logf(a.cfg, "WS: %s disconnected", c.id)
}

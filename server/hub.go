// Copyright (C) 2008-2018 by Nicolas Piganeau and the TS2 TEAM
// (See AUTHORS file)
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program; if not, write to the
// Free Software Foundation, Inc.,
// 59 Temple Place - Suite 330, Boston, MA  02111-1307, USA.

package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// RawJSON wraps already-marshalled JSON so json.Marshal embeds it verbatim.
type RawJSON []byte

// MarshalJSON implements json.Marshaler.
func (r RawJSON) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	return r, nil
}

// Request is one inbound client command, addressed to a registered
// hubObject by name.
type Request struct {
	ID     string          `json:"id"`
	Object string          `json:"object"`
	Action string          `json:"action"`
	Params json.RawMessage `json:"params"`
}

// Response is the reply to one Request, or an unsolicited push (ID empty).
type Response struct {
	ID    string      `json:"id,omitempty"`
	OK    bool        `json:"ok"`
	Msg   string      `json:"msg,omitempty"`
	Data  interface{} `json:"data,omitempty"`
	Event string      `json:"event,omitempty"`
}

// NewResponse wraps successful response data for request id.
func NewResponse(id string, data interface{}) Response {
	return Response{ID: id, OK: true, Data: data}
}

// NewOkResponse acknowledges request id with a human-readable message.
func NewOkResponse(id string, msg string) Response {
	return Response{ID: id, OK: true, Msg: msg}
}

// NewErrorResponse reports a failed request id.
func NewErrorResponse(id string, err error) Response {
	return Response{ID: id, OK: false, Msg: err.Error()}
}

// NewPushEvent wraps an unsolicited server-initiated push, tagged with the
// simulation EventName that produced it.
func NewPushEvent(name string, data interface{}) Response {
	return Response{OK: true, Event: name, Data: data}
}

// hubObject is a named endpoint a Request.Object can address. Registered
// instances live in Hub.objects; dispatch does its own action routing, the
// same two-level (object, action) addressing the teacher's hub uses for its
// own simulation/suggestions/train/signal/route objects.
type hubObject interface {
	dispatch(h *Hub, req Request, conn *connection)
}

// connection is one websocket client: a small read/write pump pair driven by
// its own goroutines, communicating with Hub only via channels.
type connection struct {
	ws       *websocket.Conn
	pushChan chan Response
}

func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case resp, ok := <-c.pushChan:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(resp); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *connection) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.ws.Close()
	}()
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		var req Request
		if err := c.ws.ReadJSON(&req); err != nil {
			break
		}
		h.requests <- hubRequest{req: req, conn: c}
	}
}

type hubRequest struct {
	req  Request
	conn *connection
}

// Hub is the websocket connection registry and request router: one goroutine
// (run) owns every piece of mutable state, so no locking is needed anywhere
// in hubObject.dispatch implementations.
type Hub struct {
	objects     map[string]hubObject
	connections map[*connection]bool
	register    chan *connection
	unregister  chan *connection
	requests    chan hubRequest
}

func newHub() *Hub {
	return &Hub{
		objects:     make(map[string]hubObject),
		connections: make(map[*connection]bool),
		register:    make(chan *connection),
		unregister:  make(chan *connection),
		requests:    make(chan hubRequest),
	}
}

// broadcast pushes resp to every currently-registered connection,
// non-blockingly dropping it for any client whose send buffer is full.
func (h *Hub) broadcast(resp Response) {
	for c := range h.connections {
		select {
		case c.pushChan <- resp:
		default:
		}
	}
}

// run is the Hub's single goroutine: register/unregister bookkeeping and
// request dispatch are fully serialized here.
func (h *Hub) run(up chan<- bool) {
	up <- true
	for {
		select {
		case c := <-h.register:
			h.connections[c] = true
			logger.Debug("client connected", "submodule", "hub", "count", len(h.connections))
		case c := <-h.unregister:
			if _, ok := h.connections[c]; ok {
				delete(h.connections, c)
				close(c.pushChan)
			}
			logger.Debug("client disconnected", "submodule", "hub", "count", len(h.connections))
		case hr := <-h.requests:
			obj, ok := h.objects[hr.req.Object]
			if !ok {
				hr.conn.pushChan <- NewErrorResponse(hr.req.ID, errUnknownObject(hr.req.Object))
				continue
			}
			obj.dispatch(h, hr.req, hr.conn)
		}
	}
}

func errUnknownObject(name string) error {
	return &unknownObjectError{object: name}
}

type unknownObjectError struct{ object string }

func (e *unknownObjectError) Error() string {
	return "unknown hub object: " + e.object
}

// serveWs upgrades r to a websocket connection and registers it with hub.
func serveWs(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "submodule", "hub", "error", err)
		return
	}
	c := &connection{ws: ws, pushChan: make(chan Response, 256)}
	hub.register <- c
	go c.writePump()
	c.readPump(hub)
}

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"animcancel/internal/automation"
	"animcancel/internal/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the API listens on loopback; browsers on other origins are not expected
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub handles WebSocket connections and broadcasting
type Hub struct {
	server     *Server
	clients    map[*wsClient]bool
	clientsMu  sync.Mutex
	broadcast  chan protocol.Message
	register   chan *wsClient
	unregister chan *wsClient
	shutdown   chan struct{}
	closeOnce  sync.Once
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string
	ip   string
}

func newHub(s *Server) *Hub {
	return &Hub{
		server:     s,
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan protocol.Message, 64),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		shutdown:   make(chan struct{}),
	}
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.clientsMu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.clientsMu.Unlock()
			log.Printf("WS: Client %s registered from %s. Total clients: %d", client.id, client.ip, n)
			h.sendTo(client, protocol.Message{Type: protocol.TypeState, Payload: h.server.ctl.Status()})

		case client := <-h.unregister:
			h.remove(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case <-h.shutdown:
			h.clientsMu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.clientsMu.Unlock()
			return
		}
	}
}

func (h *Hub) remove(client *wsClient) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		log.Printf("WS: Client %s unregistered. Total clients: %d", client.id, len(h.clients))
	}
}

func (h *Hub) close() {
	h.closeOnce.Do(func() { close(h.shutdown) })
}

func (h *Hub) broadcastMessage(message protocol.Message) {
	jsonMsg, err := json.Marshal(message)
	if err != nil {
		log.Printf("WS: Failed to marshal broadcast message: %v", err)
		return
	}

	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	for client := range h.clients {
		select {
		case client.send <- jsonMsg:
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
}

func (h *Hub) sendTo(client *wsClient, message protocol.Message) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("WS: Failed to marshal message: %v", err)
		return
	}

	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if !h.clients[client] {
		return
	}
	select {
	case client.send <- data:
	default:
		log.Printf("WS: Client %s send buffer full", client.id)
	}
}

// broadcastState queues a state message; it drops the update when the hub is
// backed up because the next change carries a newer snapshot anyway.
func (h *Hub) broadcastState(st automation.Status) {
	select {
	case h.broadcast <- protocol.Message{Type: protocol.TypeState, Payload: st}:
	default:
	}
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WS: Failed to upgrade connection: %v", err)
		return
	}

	client := &wsClient{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
		id:   uuid.NewString(),
		ip:   r.RemoteAddr,
	}

	select {
	case h.register <- client:
	case <-h.shutdown:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump pumps messages from the websocket connection to the hub.
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.shutdown:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WS: Read error: %v", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(50 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) handleMessage(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("WS: Invalid message format: %v", err)
		return
	}

	switch msg.Type {
	case protocol.TypePing:
		c.hub.sendTo(c, protocol.Message{Type: protocol.TypePing})

	case protocol.TypeCommand:
		var cmd protocol.CommandPayload
		if err := protocol.DecodePayload(msg, &cmd); err != nil {
			log.Printf("WS: Invalid command payload: %v", err)
			return
		}
		log.Printf("WS: Received %s command from %s", cmd.Action, c.id)

		// Stop waits for the worker; keep the read pump free
		go func() {
			res := protocol.CommandResultPayload{Action: cmd.Action, OK: true}
			if err := c.hub.server.runCommand(cmd.Action); err != nil {
				res.OK = false
				res.Error = err.Error()
			}
			c.hub.sendTo(c, protocol.Message{Type: protocol.TypeCommandResult, Payload: res})
		}()
	}
}

func (s *Server) runCommand(action string) error {
	switch action {
	case protocol.ActionStart:
		return s.ctl.Start()
	case protocol.ActionStop:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.ctl.Stop(ctx)
	}
	return fmt.Errorf("unknown action %q", action)
}

package ws

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/sketchroom/backend/internal/canvas"
	"github.com/sketchroom/backend/internal/db"
	"github.com/sketchroom/backend/internal/protocol"
	"github.com/sketchroom/backend/internal/registry"
)

// Colors assigned to users round-robin on connect
var userColors = []string{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231", "#911eb4",
	"#46f0f0", "#f032e6", "#bcf60c", "#008080", "#9a6324",
}

// Hub binds connections to user identities and rooms, routes inbound
// messages to the right room's operation log, and decides per message
// type whether to relay the delta or re-broadcast full state.
//
// One Run goroutine handles every register, unregister and inbound
// message to completion before the next, so log append, state fold and
// broadcast are effectively atomic without cross-room locking.
type Hub struct {
	registry *registry.Registry
	database *db.Database // may be nil; snapshots are then not persisted

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Inbound messages from clients
	inbound chan *inbound

	// Delivery index: connected clients per room. Every send chan
	// write and close happens under this lock, so the HTTP API can
	// broadcast without racing the Run loop.
	mu      sync.RWMutex
	rooms   map[string]map[*Client]bool
	clients map[*Client]bool

	colorIndex int
}

type inbound struct {
	client *Client
	env    protocol.Envelope
}

func NewHub(reg *registry.Registry, database *db.Database) *Hub {
	return &Hub{
		registry:   reg,
		database:   database,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan *inbound, 64),
		rooms:      make(map[string]map[*Client]bool),
		clients:    make(map[*Client]bool),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case msg := <-h.inbound:
			h.mu.RLock()
			known := h.clients[msg.client]
			h.mu.RUnlock()
			if !known {
				// Message from an unrecognized connection: silently ignored
				continue
			}
			h.handleMessage(msg.client, msg.env)
		}
	}
}

func (h *Hub) handleRegister(c *Client) {
	h.mu.Lock()
	c.color = userColors[h.colorIndex%len(userColors)]
	h.colorIndex++
	h.clients[c] = true
	if _, ok := h.rooms[c.roomID]; !ok {
		h.rooms[c.roomID] = make(map[*Client]bool)
	}
	h.rooms[c.roomID][c] = true
	clientCount := len(h.rooms[c.roomID])
	h.mu.Unlock()

	h.registry.Join(c.userID, c.roomID)

	// Identity first, then the authoritative state of the room
	h.sendTo(c, protocol.TypeUserInfo, protocol.UserInfoPayload{
		UserID:   c.userID,
		Username: c.username,
		Color:    c.color,
	})
	h.sendTo(c, protocol.TypeCanvasState, h.registry.Log(c.roomID).State())
	h.broadcastUsersList(c.roomID)

	log.Printf("Client %s joined room %s (total: %d)", c.username, c.roomID, clientCount)
}

func (h *Hub) handleUnregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	room := c.roomID
	if clients, ok := h.rooms[room]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.rooms, room)
		}
	}
	close(c.send)
	h.mu.Unlock()

	// Membership goes; the user's logged operations stay in the room
	h.registry.Leave(c.userID)
	h.broadcastUsersList(room)

	log.Printf("Client %s left room %s", c.username, room)
}

func (h *Hub) handleMessage(c *Client, env protocol.Envelope) {
	roomLog := h.registry.Log(c.roomID)

	switch env.Type {
	case protocol.TypeDrawStart, protocol.TypeDrawMove:
		p, err := protocol.ParseDraw(env.Payload)
		if err != nil {
			log.Printf("Dropping malformed %s from %s: %v", env.Type, c.username, err)
			return
		}
		point := p.Point
		roomLog.Add(canvas.Operation{
			Type:      canvas.OpDraw,
			UserID:    c.userID,
			StrokeID:  p.StrokeID,
			Tool:      p.Tool,
			Color:     p.Color,
			LineWidth: p.LineWidth,
			Point:     &point,
		})
		p.UserID = c.userID
		p.UserColor = c.color
		h.relayToOthers(c, env.Type, p)

	case protocol.TypeDrawEnd:
		// Signals stroke completion; nothing is logged
		p, err := protocol.ParseDrawEnd(env.Payload)
		if err != nil {
			return
		}
		p.UserID = c.userID
		h.relayToOthers(c, env.Type, p)

	case protocol.TypeErase:
		p, err := protocol.ParseErase(env.Payload)
		if err != nil {
			log.Printf("Dropping malformed erase from %s: %v", c.username, err)
			return
		}
		point := p.Point
		roomLog.Add(canvas.Operation{
			Type:   canvas.OpErase,
			UserID: c.userID,
			Point:  &point,
			Radius: p.Radius,
		})
		p.UserID = c.userID
		h.relayToOthers(c, env.Type, p)

	case protocol.TypeCursorMove:
		// Ephemeral, never logged
		p, err := protocol.ParseCursor(env.Payload)
		if err != nil {
			return
		}
		p.UserID = c.userID
		p.Username = c.username
		p.Color = c.color
		h.relayToOthers(c, env.Type, p)

	case protocol.TypeUndo:
		op := roomLog.Undo(c.userID)
		if op == nil {
			return
		}
		h.broadcastTo(c.roomID, protocol.TypeUndo, protocol.UndoPayload{
			UserID:      c.userID,
			OperationID: op.ID,
		})
		h.broadcastTo(c.roomID, protocol.TypeCanvasState, roomLog.State())

	case protocol.TypeRedo:
		op := roomLog.Redo(c.userID)
		if op == nil {
			return
		}
		h.broadcastTo(c.roomID, protocol.TypeRedo, protocol.UndoPayload{
			UserID:      c.userID,
			OperationID: op.ID,
		})
		h.broadcastTo(c.roomID, protocol.TypeCanvasState, roomLog.State())

	case protocol.TypeClear:
		roomLog.Add(canvas.Operation{Type: canvas.OpClear, UserID: c.userID})
		h.broadcastTo(c.roomID, protocol.TypeCanvasState, roomLog.State())

	case protocol.TypeJoinRoom:
		roomID, err := protocol.ParseRoomID(env.Payload)
		if err != nil {
			return
		}
		h.moveClient(c, roomID)

	case protocol.TypeGetRooms:
		h.sendTo(c, protocol.TypeRoomsList, h.registry.Rooms())

	case protocol.TypeSaveCanvas:
		snap := roomLog.Export()
		h.sendTo(c, protocol.TypeCanvasSaved, snap)
		h.persistSnapshot(c.roomID, snap, false)

	case protocol.TypeLoadCanvas:
		snap, err := protocol.ParseSnapshot(env.Payload)
		if err != nil {
			log.Printf("Dropping malformed load-canvas from %s: %v", c.username, err)
			return
		}
		roomLog.Import(snap, c.userID)
		h.broadcastTo(c.roomID, protocol.TypeCanvasState, roomLog.State())

	case protocol.TypePing:
		p := protocol.ParsePing(env.Payload)
		if p.Timestamp == 0 {
			p.Timestamp = time.Now().UnixMilli()
		}
		h.sendTo(c, protocol.TypePong, p)

	default:
		log.Printf("Unknown message type %q from %s", env.Type, c.username)
	}
}

// moveClient rebinds a session to another room: old room left, target
// room joined (created lazily), the mover alone receives the new
// room's state, and both rooms get membership updates.
func (h *Hub) moveClient(c *Client, roomID string) {
	if roomID == "" {
		roomID = registry.DefaultRoom
	}
	oldRoom := c.roomID
	if roomID == oldRoom {
		h.sendTo(c, protocol.TypeCanvasState, h.registry.Log(roomID).State())
		return
	}

	h.mu.Lock()
	if clients, ok := h.rooms[oldRoom]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.rooms, oldRoom)
		}
	}
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][c] = true
	c.roomID = roomID
	h.mu.Unlock()

	h.registry.Join(c.userID, roomID)

	h.sendTo(c, protocol.TypeCanvasState, h.registry.Log(roomID).State())
	h.broadcastUsersList(oldRoom)
	h.broadcastUsersList(roomID)

	log.Printf("Client %s moved from room %s to %s", c.username, oldRoom, roomID)
}

func (h *Hub) persistSnapshot(roomID string, snap *canvas.Snapshot, isAuto bool) {
	if h.database == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		log.Printf("Failed to encode snapshot for room %s: %v", roomID, err)
		return
	}
	name := fmt.Sprintf("Save %s", time.Now().Format("Jan 2, 3:04 PM"))
	if _, err := h.database.SaveSnapshot(roomID, name, data, len(snap.Strokes), len(snap.OperationHistory), isAuto); err != nil {
		log.Printf("Failed to persist snapshot for room %s: %v", roomID, err)
	}
}

// sendTo queues a message for one client, dropping the client if its
// send buffer is full.
func (h *Hub) sendTo(c *Client, msgType string, payload any) {
	data, err := protocol.Encode(msgType, payload)
	if err != nil {
		log.Printf("Failed to encode %s: %v", msgType, err)
		return
	}
	h.deliver(c, data)
}

// deliver queues data for one client. A client that was already
// dropped is skipped, and one whose send buffer is full is removed
// from the delivery index and closed under the same lock, so a later
// iteration of a stale broadcast snapshot can never send on its
// closed channel.
func (h *Hub) deliver(c *Client, data []byte) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	select {
	case c.send <- data:
		h.mu.Unlock()
		return
	default:
	}

	delete(h.clients, c)
	room := c.roomID
	if clients, ok := h.rooms[room]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.rooms, room)
		}
	}
	close(c.send)
	h.mu.Unlock()

	h.registry.Leave(c.userID)
	log.Printf("Dropping slow client %s from room %s (send buffer full)", c.username, room)
	h.broadcastUsersList(room)
}

// relayToOthers sends an incremental delta to every room member except
// the originator, which already applied it optimistically.
func (h *Hub) relayToOthers(sender *Client, msgType string, payload any) {
	data, err := protocol.Encode(msgType, payload)
	if err != nil {
		return
	}
	for _, c := range h.roomClients(sender.roomID) {
		if c != sender {
			h.deliver(c, data)
		}
	}
}

// broadcastTo sends to every member of the room, originator included.
// Used for full-state reconciliation messages.
func (h *Hub) broadcastTo(roomID, msgType string, payload any) {
	data, err := protocol.Encode(msgType, payload)
	if err != nil {
		return
	}
	for _, c := range h.roomClients(roomID) {
		h.deliver(c, data)
	}
}

func (h *Hub) broadcastUsersList(roomID string) {
	clients := h.roomClients(roomID)
	users := make([]protocol.UserEntry, 0, len(clients))
	for _, c := range clients {
		users = append(users, protocol.UserEntry{
			ID:       c.userID,
			Username: c.username,
			Color:    c.color,
		})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	h.broadcastTo(roomID, protocol.TypeUsersList, users)
}

func (h *Hub) roomClients(roomID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := make([]*Client, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		clients = append(clients, c)
	}
	return clients
}

// BroadcastRoomState pushes the room's current derived state to every
// member. Used by the HTTP API after a snapshot restore.
func (h *Hub) BroadcastRoomState(roomID string) {
	h.broadcastTo(roomID, protocol.TypeCanvasState, h.registry.Log(roomID).State())
}

// Stats accessors for the HTTP API

func (h *Hub) GetRoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) GetActiveRooms() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	active := make(map[string]int, len(h.rooms))
	for roomID, clients := range h.rooms {
		active[roomID] = len(clients)
	}
	return active
}

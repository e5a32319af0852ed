package registry

import (
	"errors"
	"sort"
	"sync"

	"github.com/sketchroom/backend/internal/canvas"
)

// DefaultRoom always exists and can never be deleted.
const DefaultRoom = "default"

var (
	ErrDefaultRoom  = errors.New("default room cannot be deleted")
	ErrRoomOccupied = errors.New("room is not empty")
	ErrRoomNotFound = errors.New("room not found")
)

type room struct {
	log     *canvas.Log
	members map[string]bool
}

// Registry owns the room → operation log and room → membership
// mappings. Rooms are created lazily on first join and deleted only
// when empty; each room exclusively owns its log.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

type RoomInfo struct {
	ID          string `json:"id"`
	UserCount   int    `json:"userCount"`
	StrokeCount int    `json:"strokeCount"`
}

func New() *Registry {
	r := &Registry{rooms: make(map[string]*room)}
	r.rooms[DefaultRoom] = newRoom()
	return r
}

func newRoom() *room {
	return &room{
		log:     canvas.NewLog(),
		members: make(map[string]bool),
	}
}

// Join moves a session into roomID, creating the room if needed. Any
// prior membership is removed first, so joining is idempotent.
func (r *Registry) Join(sessionID, roomID string) {
	if roomID == "" {
		roomID = DefaultRoom
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rm := range r.rooms {
		delete(rm.members, sessionID)
	}

	rm, ok := r.rooms[roomID]
	if !ok {
		rm = newRoom()
		r.rooms[roomID] = rm
	}
	rm.members[sessionID] = true
}

// Leave removes the session's membership. The room's log is untouched:
// a departed user's operations stay in the history permanently.
func (r *Registry) Leave(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rm := range r.rooms {
		delete(rm.members, sessionID)
	}
}

// Log resolves a room's operation log, falling back to the default
// room for unknown ids rather than failing.
func (r *Registry) Log(roomID string) *canvas.Log {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if rm, ok := r.rooms[roomID]; ok {
		return rm.log
	}
	return r.rooms[DefaultRoom].log
}

func (r *Registry) Exists(roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID]
	return ok
}

func (r *Registry) Members(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	members := make([]string, 0, len(rm.members))
	for id := range rm.members {
		members = append(members, id)
	}
	sort.Strings(members)
	return members
}

func (r *Registry) MemberCount(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if rm, ok := r.rooms[roomID]; ok {
		return len(rm.members)
	}
	return 0
}

// Rooms lists every room with live member and stroke counts, sorted by
// id for stable output.
func (r *Registry) Rooms() []RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]RoomInfo, 0, len(r.rooms))
	for id, rm := range r.rooms {
		infos = append(infos, RoomInfo{
			ID:          id,
			UserCount:   len(rm.members),
			StrokeCount: rm.log.StrokeCount(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

func (r *Registry) Info(roomID string) (RoomInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return RoomInfo{}, false
	}
	return RoomInfo{
		ID:          roomID,
		UserCount:   len(rm.members),
		StrokeCount: rm.log.StrokeCount(),
	}, true
}

// Delete removes an empty, non-default room and its log permanently.
// Unlike per-operation undo, this is destructive by design.
func (r *Registry) Delete(roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if roomID == DefaultRoom {
		return ErrDefaultRoom
	}
	rm, ok := r.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	if len(rm.members) > 0 {
		return ErrRoomOccupied
	}
	delete(r.rooms, roomID)
	return nil
}

package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sketchroom/backend/internal/db"
	"github.com/sketchroom/backend/internal/protocol"
	"github.com/sketchroom/backend/internal/registry"
	"github.com/sketchroom/backend/internal/ws"
)

type API struct {
	hub      *ws.Hub
	registry *registry.Registry
	database *db.Database
}

func New(hub *ws.Hub, reg *registry.Registry, database *db.Database) *API {
	return &API{
		hub:      hub,
		registry: reg,
		database: database,
	}
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"active_rooms":   a.hub.GetRoomCount(),
		"active_clients": a.hub.GetClientCount(),
		"total_rooms":    len(a.registry.Rooms()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	if a.database != nil {
		dbStats, err := a.database.GetStats()
		if err == nil {
			stats["snapshot_count"] = dbStats["snapshot_count"]
			stats["saved_room_count"] = dbStats["saved_room_count"]
		}
	}

	jsonResponse(w, http.StatusOK, stats)
}

// Room handlers

type RoomResponse struct {
	ID             string `json:"id"`
	UserCount      int    `json:"userCount"`
	StrokeCount    int    `json:"strokeCount"`
	OperationCount int    `json:"operationCount,omitempty"`
}

func (a *API) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	infos := a.registry.Rooms()

	response := make([]RoomResponse, len(infos))
	for i, info := range infos {
		response[i] = RoomResponse{
			ID:          info.ID,
			UserCount:   info.UserCount,
			StrokeCount: info.StrokeCount,
		}
	}

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"rooms": response,
		"total": len(response),
	})
}

func (a *API) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// Extract room ID from path: /api/rooms/{id}
	path := strings.TrimPrefix(r.URL.Path, "/api/rooms/")
	roomID := strings.TrimSuffix(path, "/")

	if roomID == "" {
		errorResponse(w, http.StatusBadRequest, "Room ID is required")
		return
	}

	info, ok := a.registry.Info(roomID)
	if !ok {
		errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}

	jsonResponse(w, http.StatusOK, RoomResponse{
		ID:             info.ID,
		UserCount:      info.UserCount,
		StrokeCount:    info.StrokeCount,
		OperationCount: a.registry.Log(roomID).OperationCount(),
	})
}

func (a *API) DeleteRoomHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/rooms/")
	roomID := strings.TrimSuffix(path, "/")

	if roomID == "" {
		errorResponse(w, http.StatusBadRequest, "Room ID is required")
		return
	}

	switch err := a.registry.Delete(roomID); err {
	case nil:
		jsonResponse(w, http.StatusOK, map[string]string{"message": "Room deleted"})
	case registry.ErrDefaultRoom:
		errorResponse(w, http.StatusForbidden, "Default room cannot be deleted")
	case registry.ErrRoomOccupied:
		errorResponse(w, http.StatusConflict, "Room is not empty")
	case registry.ErrRoomNotFound:
		errorResponse(w, http.StatusNotFound, "Room not found")
	default:
		errorResponse(w, http.StatusInternalServerError, "Failed to delete room")
	}
}

func (a *API) RoomsRouter(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/rooms")

	// /api/rooms or /api/rooms/
	if path == "" || path == "/" {
		if r.Method == http.MethodGet {
			a.ListRoomsHandler(w, r)
		} else {
			errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	// /api/rooms/{id}
	switch r.Method {
	case http.MethodGet:
		a.GetRoomHandler(w, r)
	case http.MethodDelete:
		a.DeleteRoomHandler(w, r)
	default:
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// Snapshot handlers

type CreateSnapshotRequest struct {
	RoomID string `json:"room_id"`
	Name   string `json:"name"`
}

type SnapshotResponse struct {
	ID          int             `json:"id"`
	RoomID      string          `json:"room_id"`
	Name        string          `json:"name"`
	StrokeCount int             `json:"stroke_count"`
	OpCount     int             `json:"op_count"`
	IsAuto      bool            `json:"is_auto"`
	CreatedAt   time.Time       `json:"created_at"`
	Data        json.RawMessage `json:"data,omitempty"` // Omitted in list view
}

func snapshotResponse(s *db.Snapshot, includeData bool) SnapshotResponse {
	resp := SnapshotResponse{
		ID:          s.ID,
		RoomID:      s.RoomID,
		Name:        s.Name,
		StrokeCount: s.StrokeCount,
		OpCount:     s.OpCount,
		IsAuto:      s.IsAuto,
		CreatedAt:   s.CreatedAt,
	}
	if includeData {
		resp.Data = json.RawMessage(s.Data)
	}
	return resp
}

func (a *API) ListSnapshotsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	roomID := r.URL.Query().Get("room_id")
	if roomID == "" {
		errorResponse(w, http.StatusBadRequest, "room_id is required")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	snapshots, err := a.database.ListSnapshots(roomID, limit, offset)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to list snapshots")
		return
	}

	response := make([]SnapshotResponse, len(snapshots))
	for i := range snapshots {
		response[i] = snapshotResponse(&snapshots[i], false)
	}

	total, _ := a.database.GetSnapshotCount(roomID)

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"snapshots": response,
		"total":     total,
		"limit":     limit,
		"offset":    offset,
	})
}

// CreateSnapshotHandler exports a room's live canvas and stores it
func (a *API) CreateSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req CreateSnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.RoomID == "" {
		errorResponse(w, http.StatusBadRequest, "room_id is required")
		return
	}

	if !a.registry.Exists(req.RoomID) {
		errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}

	if req.Name == "" {
		req.Name = fmt.Sprintf("Save %s", time.Now().Format("Jan 2, 3:04 PM"))
	}

	snap := a.registry.Log(req.RoomID).Export()
	data, err := json.Marshal(snap)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to encode snapshot")
		return
	}

	saved, err := a.database.SaveSnapshot(req.RoomID, req.Name, data, len(snap.Strokes), len(snap.OperationHistory), false)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to save snapshot")
		return
	}

	jsonResponse(w, http.StatusCreated, snapshotResponse(saved, false))
}

// GetSnapshotHandler retrieves a snapshot with its full data
func (a *API) GetSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// Extract snapshot ID from path: /api/snapshots/{id}
	path := strings.TrimPrefix(r.URL.Path, "/api/snapshots/")
	snapshotID, err := strconv.Atoi(strings.TrimSuffix(path, "/"))
	if err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid snapshot ID")
		return
	}

	snapshot, err := a.database.GetSnapshot(snapshotID)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to get snapshot")
		return
	}

	if snapshot == nil {
		errorResponse(w, http.StatusNotFound, "Snapshot not found")
		return
	}

	jsonResponse(w, http.StatusOK, snapshotResponse(snapshot, true))
}

func (a *API) DeleteSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/snapshots/")
	snapshotID, err := strconv.Atoi(strings.TrimSuffix(path, "/"))
	if err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid snapshot ID")
		return
	}

	if err := a.database.DeleteSnapshot(snapshotID); err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to delete snapshot")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "Snapshot deleted"})
}

// RestoreSnapshotHandler imports a stored snapshot back into its
// room's live log and broadcasts the reconciled state
func (a *API) RestoreSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// Extract snapshot ID from path: /api/snapshots/{id}/restore
	path := strings.TrimPrefix(r.URL.Path, "/api/snapshots/")
	path = strings.TrimSuffix(path, "/restore")
	snapshotID, err := strconv.Atoi(path)
	if err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid snapshot ID")
		return
	}

	snapshot, err := a.database.GetSnapshot(snapshotID)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to get snapshot")
		return
	}

	if snapshot == nil {
		errorResponse(w, http.StatusNotFound, "Snapshot not found")
		return
	}

	snap, err := protocol.ParseSnapshot(snapshot.Data)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Snapshot data is corrupt")
		return
	}

	// No originating user; the load marker is synthetic
	a.registry.Log(snapshot.RoomID).Import(snap, "")
	a.hub.BroadcastRoomState(snapshot.RoomID)

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"message":       "Snapshot restored",
		"restored_from": snapshot.ID,
		"room_id":       snapshot.RoomID,
		"stroke_count":  snapshot.StrokeCount,
	})
}

func (a *API) SnapshotsRouter(w http.ResponseWriter, r *http.Request) {
	if a.database == nil {
		errorResponse(w, http.StatusServiceUnavailable, "Snapshot store not configured")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/snapshots")

	// /api/snapshots or /api/snapshots/
	if path == "" || path == "/" {
		switch r.Method {
		case http.MethodGet:
			a.ListSnapshotsHandler(w, r)
		case http.MethodPost:
			a.CreateSnapshotHandler(w, r)
		default:
			errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	// /api/snapshots/{id}/restore
	if strings.HasSuffix(path, "/restore") {
		a.RestoreSnapshotHandler(w, r)
		return
	}

	// /api/snapshots/{id}
	switch r.Method {
	case http.MethodGet:
		a.GetSnapshotHandler(w, r)
	case http.MethodDelete:
		a.DeleteSnapshotHandler(w, r)
	default:
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

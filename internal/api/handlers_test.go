package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sketchroom/backend/internal/canvas"
	"github.com/sketchroom/backend/internal/db"
	"github.com/sketchroom/backend/internal/registry"
	"github.com/sketchroom/backend/internal/ws"
)

func setupTestAPI(t *testing.T) (*API, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "sketchroom-api-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tmpDir, "test.db")
	database, err := db.New(dbPath)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create database: %v", err)
	}

	reg := registry.New()
	hub := ws.NewHub(reg, database)
	go hub.Run()

	api := New(hub, reg, database)

	cleanup := func() {
		database.Close()
		os.RemoveAll(tmpDir)
	}

	return api, cleanup
}

func seedStroke(a *API, roomID, userID string) {
	a.registry.Log(roomID).Add(canvas.Operation{
		Type:     canvas.OpDraw,
		UserID:   userID,
		StrokeID: "s-" + userID,
		Tool:     "pen",
		Point:    &canvas.Point{X: 1, Y: 1},
	})
}

func TestHealthHandler(t *testing.T) {
	api, cleanup := setupTestAPI(t)
	defer cleanup()

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	api.HealthHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]any
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response["status"] != "ok" {
		t.Errorf("Expected status 'ok', got '%v'", response["status"])
	}
}

func TestStatsHandler(t *testing.T) {
	api, cleanup := setupTestAPI(t)
	defer cleanup()

	req := httptest.NewRequest("GET", "/api/stats", nil)
	w := httptest.NewRecorder()

	api.StatsHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]any
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	for _, key := range []string{"active_rooms", "active_clients", "total_rooms", "snapshot_count"} {
		if _, ok := response[key]; !ok {
			t.Errorf("Response should contain '%s'", key)
		}
	}
}

func TestListRooms(t *testing.T) {
	api, cleanup := setupTestAPI(t)
	defer cleanup()

	api.registry.Join("sess-1", "alpha")
	api.registry.Join("sess-2", "beta")
	seedStroke(api, "alpha", "sess-1")

	req := httptest.NewRequest("GET", "/api/rooms", nil)
	w := httptest.NewRecorder()

	api.ListRoomsHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response struct {
		Rooms []RoomResponse `json:"rooms"`
		Total int            `json:"total"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response.Total != 3 { // alpha, beta, default
		t.Fatalf("Expected 3 rooms, got %d", response.Total)
	}
	if response.Rooms[0].ID != "alpha" || response.Rooms[0].UserCount != 1 || response.Rooms[0].StrokeCount != 1 {
		t.Errorf("Unexpected room entry: %+v", response.Rooms[0])
	}
}

func TestGetRoom(t *testing.T) {
	api, cleanup := setupTestAPI(t)
	defer cleanup()

	api.registry.Join("sess-1", "alpha")
	seedStroke(api, "alpha", "sess-1")

	req := httptest.NewRequest("GET", "/api/rooms/alpha", nil)
	w := httptest.NewRecorder()

	api.GetRoomHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response RoomResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response.ID != "alpha" || response.OperationCount != 1 {
		t.Errorf("Unexpected room info: %+v", response)
	}
}

func TestGetRoomNotFound(t *testing.T) {
	api, cleanup := setupTestAPI(t)
	defer cleanup()

	req := httptest.NewRequest("GET", "/api/rooms/non-existent", nil)
	w := httptest.NewRecorder()

	api.GetRoomHandler(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestDeleteRoomRules(t *testing.T) {
	api, cleanup := setupTestAPI(t)
	defer cleanup()

	api.registry.Join("sess-1", "busy")

	tests := []struct {
		name           string
		roomID         string
		expectedStatus int
	}{
		{"Default room is protected", registry.DefaultRoom, http.StatusForbidden},
		{"Occupied room cannot go", "busy", http.StatusConflict},
		{"Unknown room", "ghost", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("DELETE", "/api/rooms/"+tt.roomID, nil)
			w := httptest.NewRecorder()

			api.DeleteRoomHandler(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}

	api.registry.Leave("sess-1")

	req := httptest.NewRequest("DELETE", "/api/rooms/busy", nil)
	w := httptest.NewRecorder()
	api.DeleteRoomHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 for empty room, got %d", w.Code)
	}
	if api.registry.Exists("busy") {
		t.Error("Room should be gone")
	}
}

func TestCreateAndGetSnapshot(t *testing.T) {
	api, cleanup := setupTestAPI(t)
	defer cleanup()

	api.registry.Join("sess-1", "alpha")
	seedStroke(api, "alpha", "sess-1")

	body := []byte(`{"room_id": "alpha", "name": "Milestone"}`)
	req := httptest.NewRequest("POST", "/api/snapshots", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	api.CreateSnapshotHandler(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var created SnapshotResponse
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if created.Name != "Milestone" || created.StrokeCount != 1 || created.OpCount != 1 {
		t.Errorf("Unexpected snapshot: %+v", created)
	}

	req = httptest.NewRequest("GET", fmt.Sprintf("/api/snapshots/%d", created.ID), nil)
	w = httptest.NewRecorder()
	api.GetSnapshotHandler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var got SnapshotResponse
	json.NewDecoder(w.Body).Decode(&got)
	if len(got.Data) == 0 {
		t.Error("Get view should include snapshot data")
	}

	var snap canvas.Snapshot
	if err := json.Unmarshal(got.Data, &snap); err != nil {
		t.Fatalf("Snapshot data should decode: %v", err)
	}
	if len(snap.Strokes) != 1 {
		t.Errorf("Snapshot should hold the seeded stroke, got %+v", snap)
	}
}

func TestCreateSnapshotValidation(t *testing.T) {
	api, cleanup := setupTestAPI(t)
	defer cleanup()

	tests := []struct {
		name           string
		body           string
		expectedStatus int
	}{
		{"Missing room_id", `{"name": "x"}`, http.StatusBadRequest},
		{"Unknown room", `{"room_id": "ghost"}`, http.StatusNotFound},
		{"Invalid JSON", "invalid json", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/snapshots", bytes.NewReader([]byte(tt.body)))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			api.CreateSnapshotHandler(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestRestoreSnapshot(t *testing.T) {
	api, cleanup := setupTestAPI(t)
	defer cleanup()

	api.registry.Join("sess-1", "alpha")
	seedStroke(api, "alpha", "sess-1")

	// Save, wipe, restore
	body := []byte(`{"room_id": "alpha"}`)
	req := httptest.NewRequest("POST", "/api/snapshots", bytes.NewReader(body))
	w := httptest.NewRecorder()
	api.CreateSnapshotHandler(w, req)

	var created SnapshotResponse
	json.NewDecoder(w.Body).Decode(&created)

	api.registry.Log("alpha").Add(canvas.Operation{Type: canvas.OpClear, UserID: "sess-1"})
	if api.registry.Log("alpha").StrokeCount() != 0 {
		t.Fatal("Room should be empty before restore")
	}

	req = httptest.NewRequest("POST", fmt.Sprintf("/api/snapshots/%d/restore", created.ID), nil)
	w = httptest.NewRecorder()
	api.RestoreSnapshotHandler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	if api.registry.Log("alpha").StrokeCount() != 1 {
		t.Error("Restore should bring the stroke back into the live room")
	}
}

func TestRestoreSnapshotNotFound(t *testing.T) {
	api, cleanup := setupTestAPI(t)
	defer cleanup()

	req := httptest.NewRequest("POST", "/api/snapshots/424242/restore", nil)
	w := httptest.NewRecorder()
	api.RestoreSnapshotHandler(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestDeleteSnapshot(t *testing.T) {
	api, cleanup := setupTestAPI(t)
	defer cleanup()

	saved, err := api.database.SaveSnapshot("alpha", "x", []byte("{}"), 0, 0, false)
	if err != nil {
		t.Fatalf("Failed to seed snapshot: %v", err)
	}

	req := httptest.NewRequest("DELETE", fmt.Sprintf("/api/snapshots/%d", saved.ID), nil)
	w := httptest.NewRecorder()
	api.DeleteSnapshotHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	got, _ := api.database.GetSnapshot(saved.ID)
	if got != nil {
		t.Error("Snapshot should have been deleted")
	}
}

func TestRoomsRouter(t *testing.T) {
	api, cleanup := setupTestAPI(t)
	defer cleanup()

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{"GET /api/rooms - list", "GET", "/api/rooms", http.StatusOK},
		{"POST /api/rooms - not allowed", "POST", "/api/rooms", http.StatusMethodNotAllowed},
		{"GET /api/rooms/default", "GET", "/api/rooms/default", http.StatusOK},
		{"PUT /api/rooms/default - not allowed", "PUT", "/api/rooms/default", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, bytes.NewReader([]byte{}))
			w := httptest.NewRecorder()

			api.RoomsRouter(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestSnapshotsRouter(t *testing.T) {
	api, cleanup := setupTestAPI(t)
	defer cleanup()

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{"GET /api/snapshots without room_id", "GET", "/api/snapshots", http.StatusBadRequest},
		{"GET /api/snapshots?room_id=x", "GET", "/api/snapshots?room_id=x", http.StatusOK},
		{"PUT /api/snapshots - not allowed", "PUT", "/api/snapshots", http.StatusMethodNotAllowed},
		{"GET /api/snapshots/abc - bad id", "GET", "/api/snapshots/abc", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, bytes.NewReader([]byte{}))
			w := httptest.NewRecorder()

			api.SnapshotsRouter(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

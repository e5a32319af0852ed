package registry

import (
	"reflect"
	"testing"

	"github.com/sketchroom/backend/internal/canvas"
)

func TestDefaultRoomAlwaysExists(t *testing.T) {
	r := New()

	if !r.Exists(DefaultRoom) {
		t.Fatal("Default room should exist from the start")
	}
	if r.Log(DefaultRoom) == nil {
		t.Fatal("Default room should have a log")
	}
}

func TestJoinCreatesRoomLazily(t *testing.T) {
	r := New()

	if r.Exists("studio") {
		t.Fatal("Room should not exist before first join")
	}

	r.Join("sess-1", "studio")

	if !r.Exists("studio") {
		t.Error("Room should be created on first join")
	}
	if got := r.Members("studio"); !reflect.DeepEqual(got, []string{"sess-1"}) {
		t.Errorf("Expected [sess-1], got %v", got)
	}
}

func TestJoinMovesMembership(t *testing.T) {
	r := New()

	r.Join("sess-1", "room-a")
	r.Join("sess-1", "room-b")

	if r.MemberCount("room-a") != 0 {
		t.Error("Joining a new room should leave the old one")
	}
	if r.MemberCount("room-b") != 1 {
		t.Error("Session should be in the new room")
	}

	// Idempotent re-join
	r.Join("sess-1", "room-b")
	if r.MemberCount("room-b") != 1 {
		t.Error("Re-joining the same room should not duplicate membership")
	}
}

func TestEmptyRoomIDFallsBackToDefault(t *testing.T) {
	r := New()

	r.Join("sess-1", "")
	if r.MemberCount(DefaultRoom) != 1 {
		t.Error("Empty room id should mean the default room")
	}
}

func TestUnknownRoomLogFallsBackToDefault(t *testing.T) {
	r := New()

	if r.Log("no-such-room") != r.Log(DefaultRoom) {
		t.Error("Unknown room should resolve to the default room's log")
	}
}

func TestLeaveKeepsLog(t *testing.T) {
	r := New()

	r.Join("sess-1", "room-a")
	r.Log("room-a").Add(canvas.Operation{
		Type:     canvas.OpDraw,
		UserID:   "sess-1",
		StrokeID: "s1",
		Point:    &canvas.Point{X: 1, Y: 1},
	})
	r.Leave("sess-1")

	if r.MemberCount("room-a") != 0 {
		t.Error("Leave should remove membership")
	}
	if r.Log("room-a").OperationCount() != 1 {
		t.Error("A departed user's operations must stay in the log")
	}
}

func TestRoomIsolation(t *testing.T) {
	r := New()
	r.Join("a", "x")
	r.Join("b", "y")

	r.Log("x").Add(canvas.Operation{
		Type:     canvas.OpDraw,
		UserID:   "a",
		StrokeID: "sx",
		Point:    &canvas.Point{X: 1, Y: 1},
	})

	if len(r.Log("y").State()) != 0 {
		t.Error("Operations in room x must never appear in room y")
	}
	if len(r.Log("x").State()) != 1 {
		t.Error("Room x should hold its own stroke")
	}
}

func TestRoomsListing(t *testing.T) {
	r := New()
	r.Join("s1", "alpha")
	r.Join("s2", "alpha")
	r.Join("s3", "beta")

	infos := r.Rooms()
	if len(infos) != 3 { // alpha, beta, default
		t.Fatalf("Expected 3 rooms, got %d", len(infos))
	}
	if infos[0].ID != "alpha" || infos[0].UserCount != 2 {
		t.Errorf("Unexpected first room info: %+v", infos[0])
	}
	if infos[1].ID != "beta" || infos[1].UserCount != 1 {
		t.Errorf("Unexpected second room info: %+v", infos[1])
	}
	if infos[2].ID != DefaultRoom {
		t.Errorf("Expected default room last, got %+v", infos[2])
	}
}

func TestDeleteRules(t *testing.T) {
	r := New()

	if err := r.Delete(DefaultRoom); err != ErrDefaultRoom {
		t.Errorf("Deleting the default room should fail, got %v", err)
	}

	if err := r.Delete("ghost"); err != ErrRoomNotFound {
		t.Errorf("Deleting an unknown room should fail, got %v", err)
	}

	r.Join("sess-1", "busy")
	if err := r.Delete("busy"); err != ErrRoomOccupied {
		t.Errorf("Deleting an occupied room should fail, got %v", err)
	}

	r.Leave("sess-1")
	if err := r.Delete("busy"); err != nil {
		t.Errorf("Deleting an empty room should succeed, got %v", err)
	}
	if r.Exists("busy") {
		t.Error("Deleted room should be gone")
	}
}

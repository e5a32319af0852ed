package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/sketchroom/backend/internal/canvas"
)

// Message types exchanged over the websocket, room-scoped unless noted.
const (
	// Server → client
	TypeUserInfo    = "user-info"
	TypeCanvasState = "canvas-state"
	TypeRoomsList   = "rooms-list"
	TypeUsersList   = "users-list"
	TypeCanvasSaved = "canvas-saved"
	TypePong        = "pong"

	// Client → server, relayed incrementally to the rest of the room
	TypeDrawStart  = "draw-start"
	TypeDrawMove   = "draw-move"
	TypeDrawEnd    = "draw-end"
	TypeErase      = "erase"
	TypeCursorMove = "cursor-move"

	// Client → server, answered with a full-state broadcast
	TypeUndo       = "undo"
	TypeRedo       = "redo"
	TypeClear      = "clear"
	TypeLoadCanvas = "load-canvas"

	// Client → server, session control
	TypeJoinRoom   = "join-room"
	TypeGetRooms   = "get-rooms"
	TypeSaveCanvas = "save-canvas"
	TypePing       = "ping"
)

// Defaults substituted at this parse boundary for absent or non-positive
// numeric fields. Fold logic never applies defaults itself.
const (
	DefaultLineWidth   = 5
	DefaultEraseRadius = 20
	DefaultTool        = "pen"
)

type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type DrawPayload struct {
	StrokeID  string       `json:"strokeId"`
	Tool      string       `json:"tool"`
	Color     string       `json:"color"`
	LineWidth float64      `json:"lineWidth"`
	Point     canvas.Point `json:"point"`

	// Set by the server on relay
	UserID    string `json:"userId,omitempty"`
	UserColor string `json:"userColor,omitempty"`
}

type DrawEndPayload struct {
	StrokeID string `json:"strokeId"`
	UserID   string `json:"userId,omitempty"`
}

type ErasePayload struct {
	Point  canvas.Point `json:"point"`
	Radius float64      `json:"radius"`
	UserID string       `json:"userId,omitempty"`
}

type CursorPayload struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	UserID   string  `json:"userId,omitempty"`
	Username string  `json:"username,omitempty"`
	Color    string  `json:"color,omitempty"`
}

type UserInfoPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Color    string `json:"color"`
}

// Attribution sent alongside the canvas-state that follows an undo or
// redo, so clients can show whose operation changed.
type UndoPayload struct {
	UserID      string `json:"userId"`
	OperationID string `json:"operationId"`
}

type UserEntry struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Color    string `json:"color"`
}

type PingPayload struct {
	Timestamp int64 `json:"timestamp"`
}

func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("message missing type")
	}
	return env, nil
}

// ParseDraw decodes a draw payload, substituting defaults for missing
// tool and non-positive line width.
func ParseDraw(raw json.RawMessage) (DrawPayload, error) {
	var p DrawPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return DrawPayload{}, err
	}
	if p.Tool == "" {
		p.Tool = DefaultTool
	}
	if p.LineWidth <= 0 {
		p.LineWidth = DefaultLineWidth
	}
	return p, nil
}

func ParseDrawEnd(raw json.RawMessage) (DrawEndPayload, error) {
	var p DrawEndPayload
	err := json.Unmarshal(raw, &p)
	return p, err
}

// ParseErase decodes an erase payload; an absent or non-positive radius
// falls back to the default influence radius.
func ParseErase(raw json.RawMessage) (ErasePayload, error) {
	var p ErasePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ErasePayload{}, err
	}
	if p.Radius <= 0 {
		p.Radius = DefaultEraseRadius
	}
	return p, nil
}

func ParseCursor(raw json.RawMessage) (CursorPayload, error) {
	var p CursorPayload
	err := json.Unmarshal(raw, &p)
	return p, err
}

func ParseRoomID(raw json.RawMessage) (string, error) {
	var roomID string
	err := json.Unmarshal(raw, &roomID)
	return roomID, err
}

func ParseSnapshot(raw json.RawMessage) (*canvas.Snapshot, error) {
	var snap canvas.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func ParsePing(raw json.RawMessage) PingPayload {
	var p PingPayload
	if len(raw) > 0 {
		json.Unmarshal(raw, &p)
	}
	return p
}

// Encode wraps a payload in an envelope and marshals it.
func Encode(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

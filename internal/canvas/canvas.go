package canvas

import "time"

// How a logged operation mutates the derived stroke set
type OpType string

const (
	OpDraw  OpType = "draw"
	OpErase OpType = "erase"
	OpClear OpType = "clear"
	OpLoad  OpType = "load"
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// One atomic logged user action: a single point appended to a stroke,
// one erase gesture, one clear, or one load marker. Immutable once
// logged except for the undo markers.
type Operation struct {
	ID        string    `json:"id"`
	Type      OpType    `json:"type"`
	UserID    string    `json:"userId,omitempty"`
	StrokeID  string    `json:"strokeId,omitempty"`
	Tool      string    `json:"tool,omitempty"`
	Color     string    `json:"color,omitempty"`
	LineWidth float64   `json:"lineWidth,omitempty"`
	Point     *Point    `json:"point,omitempty"`
	Radius    float64   `json:"radius,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Undo bookkeeping. Flagged, never removed from the log.
	Undone   bool       `json:"undone,omitempty"`
	UndoneBy string     `json:"undoneBy,omitempty"`
	UndoneAt *time.Time `json:"undoneAt,omitempty"`
}

// Projection over the log: the accumulation of all active draw
// operations sharing a strokeId, in log order. Not stored, always
// reconstructible by replay.
type Stroke struct {
	ID        string  `json:"id"`
	UserID    string  `json:"userId,omitempty"`
	Tool      string  `json:"tool"`
	Color     string  `json:"color"`
	LineWidth float64 `json:"lineWidth"`
	Points    []Point `json:"points"`
}

// Serializable export of a room's canvas. OperationHistory includes
// undone entries so undo/redo still work after a reload.
type Snapshot struct {
	Strokes          []*Stroke    `json:"strokes"`
	OperationHistory []*Operation `json:"operationHistory"`
	Timestamp        int64        `json:"timestamp"`
}

// Squared euclidean distance; callers compare against radius*radius.
func (p Point) dist2(q Point) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return dx*dx + dy*dy
}

func (s *Stroke) clone() *Stroke {
	points := make([]Point, len(s.Points))
	copy(points, s.Points)
	return &Stroke{
		ID:        s.ID,
		UserID:    s.UserID,
		Tool:      s.Tool,
		Color:     s.Color,
		LineWidth: s.LineWidth,
		Points:    points,
	}
}

func (op *Operation) clone() *Operation {
	cp := *op
	if op.Point != nil {
		p := *op.Point
		cp.Point = &p
	}
	if op.UndoneAt != nil {
		t := *op.UndoneAt
		cp.UndoneAt = &t
	}
	return &cp
}

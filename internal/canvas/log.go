package canvas

import (
	"fmt"
	"sync"
	"time"
)

const eraserTool = "eraser"

// Log is the authoritative, append-only record of one room's drawing
// operations plus the stroke set derived from it. Entries are never
// truncated: undo flags an operation and the derived state is rebuilt
// by replaying everything that is not flagged.
type Log struct {
	mu sync.RWMutex

	ops []*Operation

	// Derived state, in first-touch log order
	strokes     []*Stroke
	strokeIndex map[string]*Stroke

	// Positions of each user's active (non-undone) operations, in
	// insertion order. The last entry is the next undo target.
	userOps map[string][]int

	seq int64
}

func NewLog() *Log {
	return &Log{
		strokeIndex: make(map[string]*Stroke),
		userOps:     make(map[string][]int),
	}
}

// Add assigns an id and server timestamp, appends the operation, folds
// it into the derived state and indexes it under its user. It never
// rejects input; the caller is responsible for boundary defaults.
func (l *Log) Add(op Operation) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	op.ID = fmt.Sprintf("%d-%d", time.Now().UnixMilli(), l.seq)
	op.Timestamp = time.Now()

	stored := op.clone()
	l.ops = append(l.ops, stored)
	l.fold(stored)
	if stored.UserID != "" {
		l.userOps[stored.UserID] = append(l.userOps[stored.UserID], len(l.ops)-1)
	}
	return stored.ID
}

// fold applies one operation to the derived stroke set. Must be called
// with the lock held.
func (l *Log) fold(op *Operation) {
	switch op.Type {
	case OpDraw:
		if op.Point == nil {
			return
		}
		stroke, ok := l.strokeIndex[op.StrokeID]
		if !ok {
			stroke = &Stroke{
				ID:        op.StrokeID,
				UserID:    op.UserID,
				Tool:      op.Tool,
				Color:     op.Color,
				LineWidth: op.LineWidth,
			}
			l.strokeIndex[op.StrokeID] = stroke
			l.strokes = append(l.strokes, stroke)
		}
		stroke.Points = append(stroke.Points, *op.Point)

	case OpErase:
		if op.Point == nil {
			return
		}
		l.eraseAround(*op.Point, op.Radius)

	case OpClear:
		l.strokes = nil
		l.strokeIndex = make(map[string]*Stroke)

	case OpLoad:
		// Bookkeeping marker only; the content swap happens in Import.
	}
}

// eraseAround removes every point within radius of center from every
// non-eraser stroke. Points strictly farther than radius are kept.
// Strokes left empty are dropped from the derived set. Lossy here, but
// the erase op itself stays in the log: flagging it undone and
// replaying restores the points.
func (l *Log) eraseAround(center Point, radius float64) {
	r2 := radius * radius
	kept := l.strokes[:0]
	for _, stroke := range l.strokes {
		if stroke.Tool == eraserTool {
			kept = append(kept, stroke)
			continue
		}
		points := stroke.Points[:0]
		for _, p := range stroke.Points {
			if p.dist2(center) > r2 {
				points = append(points, p)
			}
		}
		stroke.Points = points
		if len(stroke.Points) == 0 {
			delete(l.strokeIndex, stroke.ID)
			continue
		}
		kept = append(kept, stroke)
	}
	l.strokes = kept
}

// Undo flags the given user's most recent active operation and rebuilds
// the derived state. Returns nil when the user has nothing to undo;
// that is a boundary condition, not an error.
func (l *Log) Undo(userID string) *Operation {
	l.mu.Lock()
	defer l.mu.Unlock()

	positions := l.userOps[userID]
	if len(positions) == 0 {
		return nil
	}

	pos := positions[len(positions)-1]
	l.userOps[userID] = positions[:len(positions)-1]

	op := l.ops[pos]
	now := time.Now()
	op.Undone = true
	op.UndoneBy = userID
	op.UndoneAt = &now

	l.rebuild()
	return op.clone()
}

// Redo clears the undo markers on the most recent operation this user
// undid and rebuilds. The userId match alongside undoneBy is redundant
// since undo sets both, but it pins the observable behavior: most
// recent undone, same user.
func (l *Log) Redo(userID string) *Operation {
	l.mu.Lock()
	defer l.mu.Unlock()

	for pos := len(l.ops) - 1; pos >= 0; pos-- {
		op := l.ops[pos]
		if !op.Undone || op.UndoneBy != userID || op.UserID != userID {
			continue
		}
		op.Undone = false
		op.UndoneBy = ""
		op.UndoneAt = nil
		l.reindex(userID, pos)
		l.rebuild()
		return op.clone()
	}
	return nil
}

// reindex re-inserts a log position into a user's active index,
// keeping insertion order.
func (l *Log) reindex(userID string, pos int) {
	positions := l.userOps[userID]
	at := len(positions)
	for at > 0 && positions[at-1] > pos {
		at--
	}
	positions = append(positions, 0)
	copy(positions[at+1:], positions[at:])
	positions[at] = pos
	l.userOps[userID] = positions
}

// rebuild resets the derived strokes and replays every non-undone
// operation in log order. Deterministic: the same log always folds to
// the same stroke set. Must be called with the lock held.
func (l *Log) rebuild() {
	l.strokes = nil
	l.strokeIndex = make(map[string]*Stroke)
	for _, op := range l.ops {
		if op.Undone {
			continue
		}
		l.fold(op)
	}
}

// State returns a copy of the derived stroke set in log order.
func (l *Log) State() []*Stroke {
	l.mu.RLock()
	defer l.mu.RUnlock()

	strokes := make([]*Stroke, len(l.strokes))
	for i, s := range l.strokes {
		strokes[i] = s.clone()
	}
	return strokes
}

// History returns the full log, undone entries included.
func (l *Log) History() []*Operation {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ops := make([]*Operation, len(l.ops))
	for i, op := range l.ops {
		ops[i] = op.clone()
	}
	return ops
}

func (l *Log) StrokeCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.strokes)
}

func (l *Log) OperationCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.ops)
}

// Export captures the current canvas as a serializable snapshot.
func (l *Log) Export() *Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snap := &Snapshot{
		Strokes:          make([]*Stroke, len(l.strokes)),
		OperationHistory: make([]*Operation, len(l.ops)),
		Timestamp:        time.Now().UnixMilli(),
	}
	for i, s := range l.strokes {
		snap.Strokes[i] = s.clone()
	}
	for i, op := range l.ops {
		snap.OperationHistory[i] = op.clone()
	}
	return snap
}

// Import replaces the log with the snapshot's history, appends a load
// marker attributed to userID, and rebuilds both the derived state and
// the per-user index. Operations flagged undone are not indexed: they
// only become undoable again after an explicit redo.
func (l *Log) Import(snap *Snapshot, userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ops = make([]*Operation, 0, len(snap.OperationHistory)+1)
	for _, op := range snap.OperationHistory {
		l.ops = append(l.ops, op.clone())
	}

	l.seq++
	marker := &Operation{
		ID:        fmt.Sprintf("%d-%d", time.Now().UnixMilli(), l.seq),
		Type:      OpLoad,
		UserID:    userID,
		Timestamp: time.Now(),
	}
	l.ops = append(l.ops, marker)

	l.userOps = make(map[string][]int)
	for pos, op := range l.ops {
		if op.UserID == "" || op.Undone {
			continue
		}
		l.userOps[op.UserID] = append(l.userOps[op.UserID], pos)
	}
	l.rebuild()
}

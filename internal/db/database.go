package db

import (
	"database/sql"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type Database struct {
	db *sql.DB
}

// Snapshot is a persisted canvas export: the serialized
// {strokes, operationHistory, timestamp} document plus metadata.
type Snapshot struct {
	ID          int       `json:"id"`
	RoomID      string    `json:"room_id"`
	Name        string    `json:"name"`
	Data        []byte    `json:"-"`
	StrokeCount int       `json:"stroke_count"`
	OpCount     int       `json:"op_count"`
	IsAuto      bool      `json:"is_auto"` // Auto-saved vs manual
	CreatedAt   time.Time `json:"created_at"`
}

func New(dbPath string) (*Database, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	log.Printf("Database initialized at %s", dbPath)
	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS canvas_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT NOT NULL,
		name TEXT NOT NULL,
		data BLOB NOT NULL,
		stroke_count INTEGER DEFAULT 0,
		op_count INTEGER DEFAULT 0,
		is_auto BOOLEAN DEFAULT FALSE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_canvas_snapshots_room_id ON canvas_snapshots(room_id);
	CREATE INDEX IF NOT EXISTS idx_canvas_snapshots_created_at ON canvas_snapshots(room_id, created_at DESC);
	`

	_, err := db.Exec(schema)
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Snapshot operations

// SaveSnapshot stores a new canvas export for a room
func (d *Database) SaveSnapshot(roomID, name string, data []byte, strokeCount, opCount int, isAuto bool) (*Snapshot, error) {
	result, err := d.db.Exec(`
		INSERT INTO canvas_snapshots (room_id, name, data, stroke_count, op_count, is_auto)
		VALUES (?, ?, ?, ?, ?, ?)
	`, roomID, name, data, strokeCount, opCount, isAuto)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return d.GetSnapshot(int(id))
}

// GetSnapshot retrieves a snapshot by ID, including its data
func (d *Database) GetSnapshot(id int) (*Snapshot, error) {
	row := d.db.QueryRow(`
		SELECT id, room_id, name, data, stroke_count, op_count, is_auto, created_at
		FROM canvas_snapshots WHERE id = ?
	`, id)

	var s Snapshot
	err := row.Scan(&s.ID, &s.RoomID, &s.Name, &s.Data, &s.StrokeCount, &s.OpCount, &s.IsAuto, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSnapshots returns snapshot metadata for a room, newest first.
// Data is not loaded in list view.
func (d *Database) ListSnapshots(roomID string, limit, offset int) ([]Snapshot, error) {
	rows, err := d.db.Query(`
		SELECT id, room_id, name, stroke_count, op_count, is_auto, created_at
		FROM canvas_snapshots
		WHERE room_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, roomID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		var s Snapshot
		if err := rows.Scan(&s.ID, &s.RoomID, &s.Name, &s.StrokeCount, &s.OpCount, &s.IsAuto, &s.CreatedAt); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

// GetSnapshotCount returns the number of snapshots for a room
func (d *Database) GetSnapshotCount(roomID string) (int, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM canvas_snapshots WHERE room_id = ?", roomID).Scan(&count)
	return count, err
}

// GetLatestSnapshot returns the most recent snapshot for a room
func (d *Database) GetLatestSnapshot(roomID string) (*Snapshot, error) {
	row := d.db.QueryRow(`
		SELECT id, room_id, name, data, stroke_count, op_count, is_auto, created_at
		FROM canvas_snapshots
		WHERE room_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, roomID)

	var s Snapshot
	err := row.Scan(&s.ID, &s.RoomID, &s.Name, &s.Data, &s.StrokeCount, &s.OpCount, &s.IsAuto, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteSnapshot removes a snapshot by ID
func (d *Database) DeleteSnapshot(id int) error {
	_, err := d.db.Exec("DELETE FROM canvas_snapshots WHERE id = ?", id)
	return err
}

// DeleteOldAutoSnapshots removes old auto-saved snapshots, keeping the most recent N
func (d *Database) DeleteOldAutoSnapshots(roomID string, keepCount int) error {
	_, err := d.db.Exec(`
		DELETE FROM canvas_snapshots
		WHERE room_id = ? AND is_auto = TRUE AND id NOT IN (
			SELECT id FROM canvas_snapshots
			WHERE room_id = ? AND is_auto = TRUE
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)
	`, roomID, roomID, keepCount)
	return err
}

// Stats

func (d *Database) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var snapshotCount int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM canvas_snapshots").Scan(&snapshotCount); err != nil {
		return nil, err
	}
	stats["snapshot_count"] = snapshotCount

	var roomCount int
	if err := d.db.QueryRow("SELECT COUNT(DISTINCT room_id) FROM canvas_snapshots").Scan(&roomCount); err != nil {
		return nil, err
	}
	stats["saved_room_count"] = roomCount

	return stats, nil
}

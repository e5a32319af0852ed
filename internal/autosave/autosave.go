package autosave

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sketchroom/backend/internal/db"
	"github.com/sketchroom/backend/internal/registry"
)

type Config struct {
	Interval      time.Duration
	MinOperations int
	KeepAutoSaves int
}

func DefaultConfig() Config {
	return Config{
		Interval:      5 * time.Minute,
		MinOperations: 10,
		KeepAutoSaves: 20,
	}
}

// Service periodically exports every room's canvas to the snapshot
// store, skipping rooms that have not accumulated new operations since
// the last pass, and prunes old auto-saves.
type Service struct {
	registry *registry.Registry
	database *db.Database
	config   Config
	stop     chan struct{}
	wg       sync.WaitGroup

	mu        sync.Mutex
	lastSaved map[string]int // room id → op count at last auto-save
}

func New(reg *registry.Registry, database *db.Database, config Config) *Service {
	return &Service{
		registry:  reg,
		database:  database,
		config:    config,
		stop:      make(chan struct{}),
		lastSaved: make(map[string]int),
	}
}

func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
	log.Printf("💾 Auto-save service started (interval: %v, min ops: %d)",
		s.config.Interval, s.config.MinOperations)
}

func (s *Service) Stop() {
	close(s.stop)
	s.wg.Wait()
	log.Println("💾 Auto-save service stopped")
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			s.saveAllRooms()
			return
		case <-ticker.C:
			s.saveAllRooms()
		}
	}
}

func (s *Service) saveAllRooms() {
	savedCount := 0
	for _, info := range s.registry.Rooms() {
		if !s.shouldSave(info.ID) {
			continue
		}
		if err := s.saveRoom(info.ID); err != nil {
			log.Printf("Auto-save: failed for room %s: %v", info.ID, err)
		} else {
			savedCount++
		}
	}

	if savedCount > 0 {
		log.Printf("💾 Auto-saved %d rooms", savedCount)
	}
}

func (s *Service) shouldSave(roomID string) bool {
	opCount := s.registry.Log(roomID).OperationCount()
	if opCount < s.config.MinOperations {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return opCount != s.lastSaved[roomID]
}

func (s *Service) saveRoom(roomID string) error {
	snap := s.registry.Log(roomID).Export()

	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	name := fmt.Sprintf("Auto-save %s", time.Now().Format("Jan 2, 3:04 PM"))
	if _, err := s.database.SaveSnapshot(roomID, name, data, len(snap.Strokes), len(snap.OperationHistory), true); err != nil {
		return err
	}

	if err := s.database.DeleteOldAutoSnapshots(roomID, s.config.KeepAutoSaves); err != nil {
		return err
	}

	s.mu.Lock()
	s.lastSaved[roomID] = len(snap.OperationHistory)
	s.mu.Unlock()

	return nil
}

// SaveNow forces an immediate export of one room.
func (s *Service) SaveNow(roomID string) error {
	return s.saveRoom(roomID)
}

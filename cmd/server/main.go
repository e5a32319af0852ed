package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sketchroom/backend/internal/api"
	"github.com/sketchroom/backend/internal/autosave"
	"github.com/sketchroom/backend/internal/db"
	"github.com/sketchroom/backend/internal/registry"
	"github.com/sketchroom/backend/internal/ws"
)

func main() {
	dbPath := os.Getenv("SKETCHROOM_DB_PATH")
	if dbPath == "" {
		dbPath = "./data/sketchroom.db"
	}

	database, err := db.New(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	reg := registry.New()

	hub := ws.NewHub(reg, database)
	go hub.Run()

	saver := autosave.New(reg, database, autosave.DefaultConfig())
	saver.Start()

	apiHandler := api.New(hub, reg, database)

	// WebSocket endpoint
	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, w, r)
	})

	http.HandleFunc("/health", apiHandler.HealthHandler)
	http.HandleFunc("/api/stats", apiHandler.StatsHandler)
	http.HandleFunc("/api/rooms", apiHandler.RoomsRouter)
	http.HandleFunc("/api/rooms/", apiHandler.RoomsRouter)
	http.HandleFunc("/api/snapshots", apiHandler.SnapshotsRouter)
	http.HandleFunc("/api/snapshots/", apiHandler.SnapshotsRouter)

	// Apply CORS middleware
	handler := corsMiddleware(http.DefaultServeMux)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		saver.Stop()
		database.Close()
		os.Exit(0)
	}()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("🎨 Sketchroom server starting on :%s", port)
	log.Printf("📁 Database: %s", dbPath)
	log.Println("Endpoints:")
	log.Println("  - WebSocket: /ws?room={roomId}&name={username}")
	log.Println("  - Health:    GET /health")
	log.Println("  - Stats:     GET /api/stats")
	log.Println("  - Rooms:     GET /api/rooms")
	log.Println("  - Room:      GET/DELETE /api/rooms/{id}")
	log.Println("  - Snapshots: GET/POST /api/snapshots")
	log.Println("  - Snapshot:  GET/DELETE /api/snapshots/{id}")
	log.Println("  - Restore:   POST /api/snapshots/{id}/restore")

	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatal("ListenAndServe: ", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

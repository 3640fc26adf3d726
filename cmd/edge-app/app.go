package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	errRoomExists   = errors.New("room already exists")
	errRoomNotFound = errors.New("room not found")
)

// Room is a chat room known to the app.
type Room struct {
	ID        string    `json:"roomId"`
	UUID      string    `json:"uuid"`
	CreatedAt time.Time `json:"createdAt"`
}

type createRoomRequest struct {
	RoomID string `json:"roomId"`
}

type app struct {
	log      *slog.Logger
	mu       sync.RWMutex
	rooms    map[string]Room
	upgrader websocket.Upgrader
}

func newApp(log *slog.Logger) *app {
	return &app{
		log:   log,
		rooms: make(map[string]Room),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (a *app) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /api/rooms/", a.listRooms)
	mux.HandleFunc("POST /api/rooms/", a.createRoom)
	mux.HandleFunc("GET /api/room/{roomId}", a.getRoom)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.log.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("from", r.RemoteAddr),
			slog.String("cache_control", r.Header.Get("Cache-Control")))

		if websocket.IsWebSocketUpgrade(r) {
			a.echo(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})
}

func (a *app) listRooms(w http.ResponseWriter, r *http.Request) {
	a.mu.RLock()
	rooms := make([]Room, 0, len(a.rooms))
	for _, room := range a.rooms {
		rooms = append(rooms, room)
	}
	a.mu.RUnlock()

	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].ID < rooms[j].ID
	})

	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

func (a *app) createRoom(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var req createRoomRequest
	if err := json.Unmarshal(body, &req); err != nil || req.RoomID == "" {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	room, err := a.addRoom(req.RoomID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"room": room})
}

func (a *app) getRoom(w http.ResponseWriter, r *http.Request) {
	a.mu.RLock()
	room, ok := a.rooms[r.PathValue("roomId")]
	a.mu.RUnlock()

	if !ok {
		http.Error(w, errRoomNotFound.Error(), http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, room)
}

func (a *app) addRoom(id string) (Room, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.rooms[id]; exists {
		return Room{}, errRoomExists
	}

	room := Room{ID: id, UUID: uuid.NewString(), CreatedAt: time.Now().UTC()}
	a.rooms[id] = room
	return room, nil
}

// echo writes every message back to the sender until the peer closes.
func (a *app) echo(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warn("websocket upgrade failed", slog.Any("err", err))
		return
	}
	defer conn.Close()

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := conn.WriteMessage(mt, msg); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

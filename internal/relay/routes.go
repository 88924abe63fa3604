package relay

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/LittleBoy9/peerbeam/internal/signaling"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,

	// Browser clients come from arbitrary origins; the rooms themselves are
	// the access control.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewRouter assembles the relay's HTTP surface: the websocket signaling
// endpoint plus room listing and health.
func NewRouter(reg *Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/health", HealthHandler(reg))
	r.Get("/rooms", RoomsHandler(reg))
	r.Get("/ws", ServeWS(reg))
	return r
}

// ServeWS upgrades a signaling connection and hands it to the registry.
func ServeWS(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}

		client := newClient(reg, conn)
		select {
		case reg.register <- client:
		case <-reg.done:
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}

// HealthHandler reports liveness and the current room count.
func HealthHandler(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"status":    "ok",
			"roomCount": len(reg.Snapshot()),
		})
	}
}

// RoomsHandler reports the room listing as the rooms-list room array.
func RoomsHandler(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms := reg.Snapshot()
		if rooms == nil {
			rooms = []signaling.RoomSummary{}
		}
		writeJSON(w, rooms)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response failed", "error", err)
	}
}

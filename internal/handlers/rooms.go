// internal/handlers/rooms.go
package handlers

import (
	"encoding/json"
	"net/http"
)

type roomSummary struct {
	Name         string `json:"name"`
	Condition    string `json:"condition"`
	Step         string `json:"step"`
	Participants int    `json:"participants"`
	InGame       bool   `json:"inGame"`
}

// ListRoomsHandler returns the in-memory room registry for debugging and
// experiment monitoring.
func ListRoomsHandler(srv *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms := srv.Rooms.Rooms()

		summaries := make([]roomSummary, 0, len(rooms))
		for _, room := range rooms {
			room.Mu.Lock()
			step := ""
			if room.CurrentStep < len(room.Flows) {
				step = string(room.Flows[room.CurrentStep])
			}
			summaries = append(summaries, roomSummary{
				Name:         room.Name,
				Condition:    room.Condition,
				Step:         step,
				Participants: len(room.Participants),
				InGame:       room.InGame,
			})
			room.Mu.Unlock()
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(summaries)
	}
}

// HealthHandler is a liveness probe endpoint.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

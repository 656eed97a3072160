// internal/handlers/server.go
package handlers

import (
	"github.com/floodlab/levee/internal/config"
	"github.com/floodlab/levee/internal/game"
)

// Server is the high-level struct holding the room registry and the
// experiment configuration shared by all HTTP and WebSocket handlers.
type Server struct {
	Rooms  *game.RoomStore
	Config config.Experiment
}

func NewServer(cfg config.Experiment) *Server {
	return &Server{
		Rooms:  game.NewRoomStore(),
		Config: cfg,
	}
}

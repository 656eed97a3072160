// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/floodlab/levee/internal/database"
	"github.com/floodlab/levee/internal/game"
	"github.com/floodlab/levee/internal/models"
)

// RoomWSHandler upgrades the HTTP connection to WebSocket, authenticates the
// participant session, seats them into a room of the requested condition via
// matchmaking, and then runs the read loop routing commands into the room.
func RoomWSHandler(logger *logrus.Logger, srv *Server) http.HandlerFunc {
	// New rooms get their broadcast functions before anyone is seated, so the
	// first joiner's welcome events already have a transport to go out on.
	srv.Rooms.WireRoom = func(room *game.Room) {
		room.BroadcastFn = createBroadcastFunc(room, logger)
		room.BroadcastToParticipantFn = createBroadcastToParticipantFunc(room, logger)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		condition := r.URL.Query().Get("condition")
		if condition == "" {
			condition = "control"
		}
		if _, ok := srv.Config.Conditions[condition]; !ok {
			http.Error(w, "unknown condition", http.StatusBadRequest)
			return
		}

		// The session cookie has to be set before the upgrade; after Accept
		// the response headers are already on the wire.
		participantID, err := EnsureSession(w, r)
		if err != nil {
			logger.Warnf("Session authentication failed: %v", err)
			http.Error(w, "authentication failed", http.StatusForbidden)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"levee"},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("WebSocket accept error for participant %s: %v", participantID, err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

		if c.Subprotocol() != "levee" {
			logger.Warnf("Participant %s connected with invalid subprotocol: %s", participantID, c.Subprotocol())
			c.Close(BadSubprotocolError, "Client must use the 'levee' subprotocol.")
			return
		}
		logger.Infof("WebSocket connection established for participant %s from %s (condition %s)", participantID, r.RemoteAddr, condition)

		p := &models.Participant{
			ID:       participantID,
			SocketID: uuid.NewString(),
			Conn:     c,
		}
		room, err := srv.Rooms.JoinOrCreate(srv.Config, condition, p)
		if err != nil {
			logger.Warnf("Failed to seat participant %s: %v", participantID, err)
			c.Close(RoomUnavailableError, "No room available.")
			return
		}

		go database.UpsertRoom(context.Background(), room.Name, room.Condition)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		readCommands(ctx, c, room, participantID, logger)

		logger.Infof("Participant %s WebSocket read loop exited for room %s.", participantID, room.Name)
		room.HandleDisconnect(participantID)
	}
}

// createBroadcastFunc returns a function suitable for Room.BroadcastFn.
// It marshals the event and sends it asynchronously to all connected
// participants.
func createBroadcastFunc(room *game.Room, logger *logrus.Logger) func(ev game.Event) {
	return func(ev game.Event) {
		// This function is called *while the room lock is held*, so it must
		// not take room.Mu itself. It snapshots the targets under the
		// caller's lock and hands the slow WebSocket writes to a goroutine
		// so the round timers never block on a client.

		targets := []*models.Participant{}
		for _, p := range room.Participants {
			if p.Connected && p.Conn != nil {
				targets = append(targets, p)
			}
		}

		msgBytes, err := json.Marshal(ev)
		if err != nil {
			logger.Errorf("Failed to marshal broadcast event (%s) for room %s: %v", ev.Type, room.Name, err)
			return
		}

		go func(targets []*models.Participant, data []byte, roomName string) {
			for _, p := range targets {
				if p.Conn == nil {
					continue
				}
				writeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				err := p.Conn.Write(writeCtx, websocket.MessageText, data)
				cancel()
				if err != nil {
					logger.Warnf("Failed to write broadcast message to participant %s in room %s: %v", p.ID, roomName, err)
				}
			}
		}(targets, msgBytes, room.Name)
	}
}

// createBroadcastToParticipantFunc returns a function suitable for
// Room.BroadcastToParticipantFn. It finds the target participant, marshals
// the event, and sends it asynchronously.
func createBroadcastToParticipantFunc(room *game.Room, logger *logrus.Logger) func(targetID uuid.UUID, ev game.Event) {
	return func(targetID uuid.UUID, ev game.Event) {
		// Also called *while the room lock is held*; same rule, no re-lock.

		var targetConn *websocket.Conn
		for _, p := range room.Participants {
			if p.ID == targetID {
				if p.Connected && p.Conn != nil {
					targetConn = p.Conn
				}
				break
			}
		}

		if targetConn == nil {
			return
		}
		msgBytes, err := json.Marshal(ev)
		if err != nil {
			logger.Errorf("Failed to marshal private event (%s) for participant %s in room %s: %v", ev.Type, targetID, room.Name, err)
			return
		}
		go func(conn *websocket.Conn, data []byte) {
			writeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("Failed to write private message to participant %s in room %s: %v", targetID, room.Name, err)
			}
		}(targetConn, msgBytes)
	}
}

// readCommands continuously reads messages from a client's WebSocket
// connection, unmarshals them into commands, and routes them into the room
// dispatcher. It exits upon read error or context cancellation.
func readCommands(ctx context.Context, c *websocket.Conn, room *game.Room, participantID uuid.UUID, logger *logrus.Logger) {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Infof("WebSocket closed normally for participant %s in room %s.", participantID, room.Name)
			} else if strings.Contains(err.Error(), "context canceled") {
				logger.Infof("WebSocket context canceled for participant %s in room %s.", participantID, room.Name)
			} else {
				logger.Warnf("Error reading from WebSocket for participant %s in room %s: %v (Status: %d)", participantID, room.Name, err, status)
			}
			return
		}

		if msgType != websocket.MessageText {
			logger.Warnf("Received non-text message type %d from participant %s in room %s. Ignoring.", msgType, participantID, room.Name)
			continue
		}

		var cmd models.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			logger.Warnf("Invalid JSON received from participant %s in room %s: %v. Data: %s", participantID, room.Name, err, string(data))
			sendWsError(ctx, c, "Invalid JSON format.")
			continue
		}

		switch cmd.Type {
		case models.CmdStepCompleted, models.CmdAsyncStepCompleted, models.CmdRoundChoice,
			models.CmdChat, models.CmdNotResponded, models.CmdKeepWaiting, models.CmdLeave:
			logger.Debugf("Received command '%s' from participant %s in room %s.", cmd.Type, participantID, room.Name)
			room.HandleCommand(participantID, cmd)

		case "ping":
			logger.Tracef("Received ping from participant %s, sending pong.", participantID)
			sendWsMessage(ctx, c, map[string]string{"type": "pong"})

		default:
			logger.Warnf("Unknown command type '%s' from participant %s in room %s.", cmd.Type, participantID, room.Name)
			sendWsError(ctx, c, fmt.Sprintf("Unknown command type: %s", cmd.Type))
		}
	}
}

// sendWsMessage marshals a message and sends it to the WebSocket client.
// Includes logging for errors and uses a write timeout.
func sendWsMessage(ctx context.Context, c *websocket.Conn, message interface{}) {
	if c == nil {
		log.Println("Error: Attempted to send WebSocket message on nil connection.")
		return
	}
	msgBytes, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling WebSocket message: %v", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Write(writeCtx, websocket.MessageText, msgBytes); err != nil {
		status := websocket.CloseStatus(err)
		if strings.Contains(err.Error(), "context deadline exceeded") {
			log.Printf("Timeout writing WebSocket message: %v", err)
		} else if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
			log.Printf("Error writing WebSocket message: %v (Status: %d)", err, status)
		}
		// Let the read loop handle connection closure detection.
	}
}

// sendWsError sends a structured error message to the client.
func sendWsError(ctx context.Context, c *websocket.Conn, errorMsg string) {
	sendWsMessage(ctx, c, map[string]interface{}{
		"type":    "error",
		"message": errorMsg,
	})
}

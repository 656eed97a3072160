// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Custom WebSocket close codes used within the room handlers. These provide
// more specific reasons for closure than standard codes.
const (
	BadSubprotocolError  websocket.StatusCode = 3000 // Client connected with an unsupported subprotocol.
	InvalidSessionError  websocket.StatusCode = 3001 // Session token was invalid and could not be replaced.
	RoomUnavailableError websocket.StatusCode = 3002 // No room could seat the participant.
)

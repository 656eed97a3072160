// internal/game/commands.go
package game

import (
	"log"

	"github.com/google/uuid"

	"github.com/floodlab/levee/internal/models"
)

// HandleCommand is the single dispatcher for inbound participant commands.
// Every mutation of room state during a session flows through here (or
// through a timer tick), serialized by the room lock. Invalid or stale
// commands are logged and dropped; they never crash the room.
func (r *Room) HandleCommand(participantID uuid.UUID, cmd models.Command) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	p := r.participantByID(participantID)
	if p == nil {
		log.Printf("Room %s: command %s from unknown participant %s, ignoring", r.Name, cmd.Type, participantID)
		return
	}
	if (r.GameCompleted || r.GameDropped) && cmd.Type != models.CmdLeave {
		log.Printf("Room %s: command %s from %s after terminal state, ignoring", r.Name, cmd.Type, p.Role)
		return
	}

	switch cmd.Type {
	case models.CmdStepCompleted:
		r.completeStep(p, payloadString(cmd.Payload, "step"), false)
	case models.CmdAsyncStepCompleted:
		r.completeStep(p, payloadString(cmd.Payload, "step"), true)
	case models.CmdRoundChoice:
		choice, ok := payloadInt(cmd.Payload, "choice")
		if !ok {
			log.Printf("Room %s: %s sent a round choice without a value, ignoring", r.Name, p.Role)
			return
		}
		r.submitChoice(p, choice)
	case models.CmdChat:
		r.broadcastChat(p, payloadString(cmd.Payload, "message"))
	case models.CmdNotResponded:
		r.handleNotResponded(p)
	case models.CmdKeepWaiting:
		if r.currentStep() == StepWaitingRoom && !r.timerArmed(timerWaiting) {
			r.startWaitingRoomTimer()
		}
	case models.CmdLeave:
		r.handleLeave(p.ID)
	default:
		log.Printf("Room %s: unknown command type %q from %s", r.Name, cmd.Type, p.Role)
		r.fireEventToParticipant(p.ID, Event{Type: EventError, Payload: map[string]interface{}{
			"message": "unknown command type",
		}})
	}
}

// HandleDisconnect marks a participant's socket as gone and applies the
// leave semantics for the step the room is on.
func (r *Room) HandleDisconnect(participantID uuid.UUID) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	p := r.participantByID(participantID)
	if p == nil || !p.Connected {
		return
	}
	r.handleLeave(participantID)
}

func payloadString(payload map[string]interface{}, key string) string {
	if payload == nil {
		return ""
	}
	s, _ := payload[key].(string)
	return s
}

// payloadInt pulls an integer out of a decoded JSON payload, where numbers
// arrive as float64.
func payloadInt(payload map[string]interface{}, key string) (int, bool) {
	if payload == nil {
		return 0, false
	}
	switch v := payload[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

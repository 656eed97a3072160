// internal/game/events.go
package game

import "github.com/floodlab/levee/internal/models"

// EventType is an enum-like type for everything the orchestrator pushes to
// the browsers. The client holds only the projection these events build; it
// never mutates authoritative state directly.
type EventType string

const (
	EventRoomJoined   EventType = "room_joined"
	EventRosterUpdate EventType = "roster_update"
	EventRoleAssigned EventType = "role_assigned" // private

	EventStepChanged     EventType = "step_changed"
	EventWaitingProgress EventType = "waiting_progress" // completed/total gate feedback

	EventRoundStart       EventType = "round_start"
	EventRoundCountdown   EventType = "round_countdown"
	EventRoundEnded       EventType = "round_ended"
	EventRoundResult      EventType = "round_result"
	EventResultCountdown  EventType = "result_countdown"
	EventFinalResultTable EventType = "final_result_table"

	EventGameStop          EventType = "game_stop"
	EventGameStopCountdown EventType = "game_stop_countdown"
	EventGameStopEnded     EventType = "game_stop_ended"
	EventDepletion         EventType = "depletion"

	EventGameCompleted EventType = "game_completed"
	EventDropout       EventType = "dropout" // private, carries routing + code

	EventChat             EventType = "chat"
	EventWaitingRoomOffer EventType = "waiting_room_offer"
	EventError            EventType = "error"
)

// Event is one outbound message to a room or a single participant.
type Event struct {
	Type    EventType              `json:"type"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// RoundAggregate is the per-round outcome shared by the whole room and
// appended to the room's result log.
type RoundAggregate struct {
	RoundIndex   int                 `json:"roundIndex"`
	LeveeStock   int                 `json:"leveeStock"`
	LeveeHeight  int                 `json:"leveeHeight"`
	WaterHeight  int                 `json:"waterHeight"`
	FloodLossPct int                 `json:"floodLossPct"`
	Progress     int                 `json:"now"` // scored rounds so far
	Earnings     map[models.Role]int `json:"earnings"`
}

// DropCause distinguishes the terminal paths; payment depends on which path
// was taken, so each cause routes to its own terminal view.
type DropCause string

const (
	DropNotResponded DropCause = "notResponded"
	DropLeft         DropCause = "left"
)

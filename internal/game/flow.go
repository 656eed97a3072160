// internal/game/flow.go
package game

import (
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/floodlab/levee/internal/models"
)

// currentStep returns the step the room is on, or "" once the sequence is
// exhausted.
func (r *Room) currentStep() Step {
	if r.CurrentStep < 0 || r.CurrentStep >= len(r.Flows) {
		return ""
	}
	return r.Flows[r.CurrentStep]
}

// completionSet returns the dedup set for the current step, creating it on
// first use. Assumes lock is held.
func (r *Room) completionSet() map[uuid.UUID]bool {
	set, ok := r.stepDone[r.CurrentStep]
	if !ok {
		set = make(map[uuid.UUID]bool)
		r.stepDone[r.CurrentStep] = set
	}
	return set
}

// completeStep records one participant's completion signal for the current
// step and advances the group once the set covers every seated participant.
// Signals for an unknown or already-passed step are dropped with a log.
// Assumes lock is held.
func (r *Room) completeStep(p *models.Participant, stepName string, async bool) {
	step := r.currentStep()
	if step == "" || stepName != string(step) {
		log.Printf("Room %s: %s signalled completion of %q but room is on %q, ignoring",
			r.Name, p.Role, stepName, step)
		return
	}
	if step.IsRounds() {
		// The round loop owns rounds-step advancement.
		log.Printf("Room %s: %s sent a step signal during rounds, ignoring", r.Name, p.Role)
		return
	}
	if async == step.RequiresSync() {
		log.Printf("Room %s: %s used the wrong completion channel for %q, accepting anyway", r.Name, p.Role, stepName)
	}
	if step == StepWaitingRoom && len(r.Participants) < RoomSize {
		log.Printf("Room %s: waiting room completion from %s before the room is full, ignoring", r.Name, p.Role)
		return
	}

	set := r.completionSet()
	if set[p.ID] {
		return // duplicate signal
	}
	set[p.ID] = true
	r.logAction(p.ID, "step_complete", map[string]interface{}{"step": stepName})

	r.fireEvent(Event{Type: EventWaitingProgress, Payload: map[string]interface{}{
		"step":      stepName,
		"completed": len(set),
		"total":     len(r.Participants),
	}})

	if r.gateCovered(set) {
		r.advanceStep()
	}
}

// gateCovered reports whether every currently seated participant has signed
// off on the current step. A bare count is not enough: a departed villager's
// stale signal must never stand in for a seated one who has not finished.
// Assumes lock is held.
func (r *Room) gateCovered(set map[uuid.UUID]bool) bool {
	if len(r.Participants) == 0 {
		return false
	}
	for _, p := range r.Participants {
		if !set[p.ID] {
			return false
		}
	}
	return true
}

// advanceStep moves the group pointer forward and kicks off whatever the new
// step needs. The completion set of the departed step index is abandoned, so
// late signals cannot reopen a closed gate. Assumes lock is held.
func (r *Room) advanceStep() {
	if r.GameDropped || r.GameCompleted {
		return
	}
	if r.currentStep() == StepWaitingRoom {
		// The bounded wait ends with the waiting room; a stale offer must
		// not fire mid-session.
		r.disarm()
	}
	r.CurrentStep++
	if r.CurrentStep >= len(r.Flows) {
		r.completeGame()
		return
	}
	step := r.Flows[r.CurrentStep]
	log.Printf("Room %s: advancing to step %d (%s)", r.Name, r.CurrentStep, step)
	r.logAction(uuid.Nil, "step_change", map[string]interface{}{"step": string(step)})
	r.fireEvent(Event{Type: EventStepChanged, Payload: map[string]interface{}{
		"stepIndex": r.CurrentStep,
		"step":      string(step),
	}})

	switch step {
	case StepRoundsFirstPart:
		r.InGame = true
		r.RoundIndex = 0
		r.startRound()
	case StepRoundsSecondPart:
		r.InGame = true
		r.RoundIndex = secondPartStart
		r.startRound()
	case StepCompletion:
		r.completeGame()
	}
}

// completeGame is the normal terminal path: everyone finished the sequence.
// Assumes lock is held.
func (r *Room) completeGame() {
	if r.GameCompleted || r.GameDropped {
		return
	}
	r.GameCompleted = true
	r.InGame = false
	r.disarm()
	log.Printf("Room %s: game completed, total rounds scored: %d", r.Name, r.ScoredRounds)
	r.logAction(uuid.Nil, "game_completed", nil)

	for _, p := range r.Participants {
		p.CompensationCode = newCode()
		r.fireEventToParticipant(p.ID, Event{Type: EventGameCompleted, Payload: map[string]interface{}{
			"compensationCode": p.CompensationCode,
			"totalEarnings":    p.TotalEarnings,
		}})
	}
	r.fireEvent(Event{Type: EventGameCompleted, Payload: map[string]interface{}{
		"roomName": r.Name,
	}})
	r.persistTerminal("completed")
	if r.OnTerminal != nil {
		go r.OnTerminal(r.Name)
	}
}

// markDropped is the fatal terminal path: the exercise cannot continue with
// fewer than five villagers. Every participant is routed to a terminal view
// matching their own cause, each with a compensation code. Assumes lock is
// held.
func (r *Room) markDropped(cause DropCause, offenders []uuid.UUID) {
	if r.GameDropped || r.GameCompleted {
		return
	}
	r.GameDropped = true
	r.InGame = false
	r.disarm()
	log.Printf("Room %s: game dropped (%s), offenders: %v", r.Name, cause, offenders)
	r.logAction(uuid.Nil, "game_dropped", map[string]interface{}{"cause": string(cause)})

	isOffender := make(map[uuid.UUID]bool, len(offenders))
	for _, id := range offenders {
		isOffender[id] = true
	}
	for _, p := range r.Participants {
		p.CompensationCode = newCode()
		routing := "otherDropped"
		if isOffender[p.ID] {
			routing = "selfDropped"
		}
		r.fireEventToParticipant(p.ID, Event{Type: EventDropout, Payload: map[string]interface{}{
			"cause":            string(cause),
			"routing":          routing,
			"compensationCode": p.CompensationCode,
			"totalEarnings":    p.TotalEarnings,
		}})
	}
	r.persistTerminal("dropped")
	if r.OnTerminal != nil {
		go r.OnTerminal(r.Name)
	}
}

// handleNotResponded processes the not-responded notification, whether raised
// by a client observing its own timeout or by the server's round-timeout
// detection. Assumes lock is held.
func (r *Room) handleNotResponded(p *models.Participant) {
	if !r.currentStep().IsRounds() {
		log.Printf("Room %s: not-responded signal for %s outside rounds, ignoring", r.Name, p.Role)
		return
	}
	r.markDropped(DropNotResponded, []uuid.UUID{p.ID})
}

// handleLeave processes a deliberate leave or a detected disconnect. In the
// waiting room the seat is freed and the room keeps waiting for a
// replacement; anywhere later the whole room ends as dropped. Assumes lock
// is held.
func (r *Room) handleLeave(id uuid.UUID) {
	p := r.participantByID(id)
	if p == nil {
		return
	}
	log.Printf("Room %s: %s left during step %s", r.Name, p.Role, r.currentStep())
	r.logAction(id, "participant_leave", map[string]interface{}{"step": string(r.currentStep())})

	if r.GameCompleted || r.GameDropped {
		p.Connected = false
		p.Conn = nil
		return
	}

	if r.currentStep() == StepWaitingRoom {
		r.unseat(id)
		r.fireEvent(r.rosterEvent())
		if len(r.Participants) > 0 && !r.timerArmed(timerWaiting) {
			r.startWaitingRoomTimer()
		}
		return
	}

	// Dropped before the socket is marked gone so a deliberate leaver still
	// receives their own terminal view with the compensation code.
	r.markDropped(DropLeft, []uuid.UUID{id})
	p.Connected = false
	p.Conn = nil
}

// unseat removes a participant and re-hands the villager slots in join
// order. Only legal in the waiting room, before roles are meaningful to
// anyone. Assumes lock is held.
func (r *Room) unseat(id uuid.UUID) {
	for i, p := range r.Participants {
		if p.ID == id {
			r.Participants = append(r.Participants[:i], r.Participants[i+1:]...)
			break
		}
	}
	// The departed villager's step signal no longer counts toward the gate.
	if set, ok := r.stepDone[r.CurrentStep]; ok {
		delete(set, id)
	}
	for i, p := range r.Participants {
		p.Role = models.Roles[i]
	}
}

// broadcastChat relays a chat message to the room during a chat step.
// Assumes lock is held.
func (r *Room) broadcastChat(p *models.Participant, msg string) {
	if r.currentStep() != StepChat {
		log.Printf("Room %s: chat from %s outside a chat step, ignoring", r.Name, p.Role)
		return
	}
	if msg == "" {
		return
	}
	r.logAction(p.ID, "chat", map[string]interface{}{"length": len(msg)})
	r.fireEvent(Event{Type: EventChat, Payload: map[string]interface{}{
		"role": string(p.Role),
		"msg":  msg,
		"ts":   time.Now().Unix(),
	}})
}

// internal/game/round.go
package game

import (
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/floodlab/levee/internal/econ"
	"github.com/floodlab/levee/internal/models"
)

// The round loop per room:
//
//	startRound -> roundTick... -> endRound -> result window -> next round,
//	                                          part complete, or game stop
//
// Exactly one countdown is armed at any instant; every transition re-arms
// the slot, which cancels whatever was pending.

func (r *Room) inFirstPart() bool {
	return r.RoundIndex <= firstPartSentinel
}

// partBounds returns the first and last scored round index of the part the
// current round index falls in.
func (r *Room) partBounds() (first, last int) {
	if r.inFirstPart() {
		return 0, roundsPerPart - 1
	}
	return secondPartStart, secondPartSentinel - 1
}

func (r *Room) isFinalRoundOfPart() bool {
	_, last := r.partBounds()
	return r.RoundIndex == last
}

// roundLabel is the 1-based label shown to participants, counted within the
// current part.
func (r *Room) roundLabel() int {
	first, _ := r.partBounds()
	return r.RoundIndex - first + 1
}

// waterHeight returns the exogenous river draw for the current round from
// the configured schedule.
func (r *Room) waterHeight() int {
	first, _ := r.partBounds()
	i := r.RoundIndex - first
	schedule := r.cfg.WaterFirstPart
	if !r.inFirstPart() {
		schedule = r.cfg.WaterSecondPart
	}
	if i < 0 || i >= len(schedule) {
		log.Printf("Room %s: no water draw configured for round %d, using 0", r.Name, r.RoundIndex)
		return 0
	}
	return schedule[i]
}

// ensureRoundSlots extends every participant's result log up to the current
// round index. Assumes lock is held.
func (r *Room) ensureRoundSlots() {
	for _, p := range r.Participants {
		for len(p.Results) <= r.RoundIndex {
			p.Results = append(p.Results, &models.RoundResult{})
		}
	}
}

// allResponded reports whether every seated villager has a recorded choice
// for the current round. Assumes lock is held.
func (r *Room) allResponded() bool {
	for _, p := range r.Participants {
		if r.RoundIndex >= len(p.Results) || p.Results[r.RoundIndex].Choice == nil {
			return false
		}
	}
	return len(r.Participants) > 0
}

// startRound resets the round countdown, announces the round, and arms the
// repeating tick. Assumes lock is held.
func (r *Room) startRound() {
	if r.GameDropped || r.GameCompleted {
		return
	}
	seq := r.arm(timerRound)
	r.RoundDuration = r.cfg.RoundSeconds
	r.ensureRoundSlots()

	log.Printf("Room %s: round %d starting (%ds)", r.Name, r.RoundIndex, r.RoundDuration)
	r.logAction(uuid.Nil, "round_start", map[string]interface{}{"duration": r.RoundDuration})
	r.fireEvent(Event{Type: EventRoundStart, Payload: map[string]interface{}{
		"roundIndex": r.RoundIndex,
		"label":      r.roundLabel(),
		"part":       r.partNumber(),
		"duration":   r.RoundDuration,
	}})
	r.tickAfter(seq, func() { r.roundTick(seq) })
}

func (r *Room) partNumber() int {
	if r.inFirstPart() {
		return 1
	}
	return 2
}

// roundTick decrements the round countdown, checks the all-responded early
// exit, and either transitions or re-arms itself. Assumes lock is held.
func (r *Room) roundTick(seq int) {
	r.RoundDuration--
	if r.allResponded() {
		// Early exit is authoritative: end now, do not wait for zero.
		r.endRound()
		return
	}
	r.fireEvent(Event{Type: EventRoundCountdown, Payload: map[string]interface{}{
		"roundIndex": r.RoundIndex,
		"remaining":  r.RoundDuration,
	}})
	if r.RoundDuration <= 0 {
		r.endRound()
		return
	}
	r.tickAfter(seq, func() { r.roundTick(seq) })
}

// submitChoice records one villager's allocation for the current round and
// short-circuits the round if that makes the group complete. Assumes lock is
// held.
func (r *Room) submitChoice(p *models.Participant, choice int) {
	if !r.currentStep().IsRounds() || !r.timerArmed(timerRound) {
		log.Printf("Room %s: choice from %s outside an active round, ignoring", r.Name, p.Role)
		return
	}
	if choice < 0 || choice > econ.EndowmentTokens {
		log.Printf("Room %s: %s sent out-of-range choice %d, ignoring", r.Name, p.Role, choice)
		r.fireEventToParticipant(p.ID, Event{Type: EventError, Payload: map[string]interface{}{
			"message": fmt.Sprintf("choice must be between 0 and %d", econ.EndowmentTokens),
		}})
		return
	}
	r.ensureRoundSlots()
	res := p.Results[r.RoundIndex]
	if res.Choice != nil {
		log.Printf("Room %s: %s already chose for round %d, ignoring", r.Name, p.Role, r.RoundIndex)
		return
	}
	c := choice
	res.Choice = &c
	r.logAction(p.ID, "round_choice", map[string]interface{}{"choice": choice})

	responded := 0
	for _, q := range r.Participants {
		if r.RoundIndex < len(q.Results) && q.Results[r.RoundIndex].Choice != nil {
			responded++
		}
	}
	r.fireEvent(Event{Type: EventWaitingProgress, Payload: map[string]interface{}{
		"step":      string(r.currentStep()),
		"completed": responded,
		"total":     len(r.Participants),
	}})

	if r.allResponded() {
		// Cancel the pending tick before emitting the transition so the
		// timeout path can never fire for the same round.
		r.endRound()
	}
}

// endRound scores the round, writes results back into every participant,
// emits the aggregate, and moves into the result window — or straight into
// the dropout path if a villager never answered. Assumes lock is held.
func (r *Room) endRound() {
	r.disarm()

	choices := make([]int, len(r.Participants))
	var missing []uuid.UUID
	for i, p := range r.Participants {
		res := p.Results[r.RoundIndex]
		if res.Choice == nil {
			choices[i] = econ.NoChoice
			missing = append(missing, p.ID)
		} else {
			choices[i] = *res.Choice
		}
	}

	score := econ.ScoreRound(choices, r.LeveeStock, r.waterHeight())
	r.LeveeStock = score.LeveeStock
	r.ScoredRounds++

	earnings := make(map[models.Role]int, len(r.Participants))
	for i, p := range r.Participants {
		out := score.PerParticipant[i]
		res := p.Results[r.RoundIndex]
		res.EarningBeforeLoss = out.EarningBeforeLoss
		res.EarningAfterLoss = out.EarningAfterLoss
		p.TotalEarnings += out.EarningAfterLoss
		res.TotalScore = p.TotalEarnings
		res.TotalWater = r.LeveeStock
		earnings[p.Role] = out.EarningAfterLoss
	}

	agg := RoundAggregate{
		RoundIndex:   r.RoundIndex,
		LeveeStock:   score.LeveeStock,
		LeveeHeight:  score.LeveeHeight,
		WaterHeight:  score.WaterHeight,
		FloodLossPct: score.FloodLossPct,
		Progress:     r.ScoredRounds,
		Earnings:     earnings,
	}
	r.GameResults = append(r.GameResults, agg)

	log.Printf("Room %s: round %d scored (stock=%d height=%dft water=%d loss=%d%%)",
		r.Name, r.RoundIndex, agg.LeveeStock, agg.LeveeHeight, agg.WaterHeight, agg.FloodLossPct)
	r.logAction(uuid.Nil, "round_scored", map[string]interface{}{
		"leveeStock":   agg.LeveeStock,
		"floodLossPct": agg.FloodLossPct,
		"depleted":     score.Depleted,
	})

	r.fireEvent(Event{Type: EventRoundEnded, Payload: map[string]interface{}{"roundIndex": r.RoundIndex}})
	r.fireEvent(Event{Type: EventRoundResult, Payload: map[string]interface{}{"aggregate": agg}})
	r.persistRound(agg)

	if len(missing) > 0 {
		// The exercise cannot continue with a missing villager; route the
		// whole room to the dropout terminal path.
		r.markDropped(DropNotResponded, missing)
		return
	}

	r.startResultWindow(score.Depleted)
}

// startResultWindow arms the post-round result countdown. Assumes lock is
// held.
func (r *Room) startResultWindow(depleted bool) {
	seq := r.arm(timerResult)
	r.ResultDuration = r.cfg.ResultSeconds
	r.tickAfter(seq, func() { r.resultTick(seq, depleted) })
}

// resultTick drives the result window. Final rounds of a part emit the final
// result table at two seconds remaining, revert the window counter, and end
// the part right there; other rounds simply count down to zero. Assumes lock
// is held.
func (r *Room) resultTick(seq int, depleted bool) {
	r.ResultDuration--

	if !depleted && r.isFinalRoundOfPart() && r.ResultDuration == 2 {
		r.fireEvent(Event{Type: EventFinalResultTable, Payload: map[string]interface{}{
			"part":    r.partNumber(),
			"results": r.partResults(),
		}})
		r.ResultDuration = r.cfg.ResultSeconds
		r.disarm()
		r.completePart()
		return
	}

	r.fireEvent(Event{Type: EventResultCountdown, Payload: map[string]interface{}{
		"roundIndex": r.RoundIndex,
		"remaining":  r.ResultDuration,
	}})

	if r.ResultDuration <= 0 {
		r.disarm()
		r.afterResultWindow(depleted)
		return
	}
	r.tickAfter(seq, func() { r.resultTick(seq, depleted) })
}

// afterResultWindow branches at the end of a non-final result window:
// depletion ends the part early, otherwise the next round begins. Assumes
// lock is held.
func (r *Room) afterResultWindow(depleted bool) {
	if depleted {
		r.markDepleted()
		return
	}
	if r.isFinalRoundOfPart() {
		// Normally the final round completes at the table emission; this
		// covers a result window configured shorter than the table offset.
		r.completePart()
		return
	}
	r.RoundIndex++
	r.RoundDuration = r.cfg.RoundSeconds
	r.startRound()
}

// partResults returns the aggregates belonging to the current part.
func (r *Room) partResults() []RoundAggregate {
	if r.inFirstPart() {
		if len(r.GameResults) > roundsPerPart {
			return r.GameResults[:roundsPerPart]
		}
		return r.GameResults
	}
	if len(r.GameResults) > roundsPerPart {
		return r.GameResults[roundsPerPart:]
	}
	return nil
}

// markDepleted sets the terminal depletion flag for the active part exactly
// once, back-fills the result log, and enters the game-stop countdown.
// Assumes lock is held.
func (r *Room) markDepleted() {
	if r.inFirstPart() {
		if r.DepletedFirstPart {
			return
		}
		r.DepletedFirstPart = true
	} else {
		if r.DepletedSecondPart {
			return
		}
		r.DepletedSecondPart = true
	}
	log.Printf("Room %s: levee stock depleted in part %d at round %d", r.Name, r.partNumber(), r.RoundIndex)
	r.logAction(uuid.Nil, "depletion", map[string]interface{}{"part": r.partNumber()})
	r.backfillResults()
	r.startGameStop(true)
}

// backfillResults pads the current part's aggregates to exactly 10 entries
// by repeating the last known aggregate. Assumes lock is held.
func (r *Room) backfillResults() {
	target := roundsPerPart
	if !r.inFirstPart() {
		target = 2 * roundsPerPart
	}
	if len(r.GameResults) == 0 {
		return
	}
	last := r.GameResults[len(r.GameResults)-1]
	for len(r.GameResults) < target {
		r.GameResults = append(r.GameResults, last)
	}
}

// startGameStop announces the stop, optionally the depletion notice, and
// runs the stop countdown before handing control back to the step sequence.
// Assumes lock is held.
func (r *Room) startGameStop(depleted bool) {
	seq := r.arm(timerGameStop)
	r.GameStopDuration = r.cfg.GameStopSeconds
	r.InGame = false

	r.fireEvent(Event{Type: EventGameStop, Payload: map[string]interface{}{
		"part":     r.partNumber(),
		"duration": r.GameStopDuration,
	}})
	if depleted {
		r.fireEvent(Event{Type: EventDepletion, Payload: map[string]interface{}{
			"part": r.partNumber(),
		}})
	}

	var tick func()
	tick = func() {
		r.GameStopDuration--
		r.fireEvent(Event{Type: EventGameStopCountdown, Payload: map[string]interface{}{
			"remaining": r.GameStopDuration,
		}})
		if r.GameStopDuration > 0 {
			r.tickAfter(seq, tick)
			return
		}
		r.disarm()
		r.fireEvent(Event{Type: EventGameStopEnded, Payload: map[string]interface{}{
			"part": r.partNumber(),
		}})
		r.finishRoundsStep()
	}
	r.tickAfter(seq, tick)
}

// completePart ends a fully played part and returns control to the step
// sequence. Assumes lock is held.
func (r *Room) completePart() {
	log.Printf("Room %s: part %d complete after round %d", r.Name, r.partNumber(), r.RoundIndex)
	r.logAction(uuid.Nil, "part_complete", map[string]interface{}{"part": r.partNumber()})
	r.finishRoundsStep()
}

// finishRoundsStep parks the round index on the part's transition marker and
// advances the step pointer. Assumes lock is held.
func (r *Room) finishRoundsStep() {
	r.InGame = false
	if r.inFirstPart() {
		r.RoundIndex = firstPartSentinel
	} else {
		r.RoundIndex = secondPartSentinel
	}
	r.advanceStep()
}

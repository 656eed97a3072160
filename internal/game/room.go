// internal/game/room.go
package game

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/floodlab/levee/internal/cache"
	"github.com/floodlab/levee/internal/config"
	"github.com/floodlab/levee/internal/models"
)

// RoomSize is the fixed number of villagers per room.
const RoomSize = 5

// Round indexing: two parts of up to 10 scored rounds each, with a reserved
// transition marker after each part.
const (
	roundsPerPart      = 10
	firstPartSentinel  = 10
	secondPartStart    = 11
	secondPartSentinel = 21
)

// timerKind tags the single armed countdown a room may hold. Arming one
// kind structurally clears whatever was armed before, so overlapping
// countdowns cannot exist.
type timerKind int

const (
	timerNone timerKind = iota
	timerWaiting
	timerRound
	timerResult
	timerGameStop
)

type armedTimer struct {
	kind timerKind
	seq  int // incremented on every arm/disarm; stale callbacks check it
	t    *time.Timer
}

// Room holds the entire state for one exercise session in memory. All
// mutation happens under Mu, from command handlers and timer callbacks.
type Room struct {
	Name      string
	Condition string

	Flows       []Step
	CurrentStep int

	Participants []*models.Participant

	RoundIndex       int
	RoundDuration    int
	ResultDuration   int
	GameStopDuration int

	// LeveeStock is the accumulated public levee investment carried between
	// rounds. Never below the configured floor once scoring begins.
	LeveeStock   int
	ScoredRounds int // cumulative progress metric across both parts

	DepletedFirstPart  bool
	DepletedSecondPart bool
	GameCompleted      bool
	GameDropped        bool
	InGame             bool

	// GameResults grows by one aggregate per scored round, back-filled to
	// exactly 10 per part when depletion truncates play.
	GameResults []RoundAggregate

	// stepDone holds per-step completion sets keyed by step index, deduped
	// by participant. Signals for a step the room has already left find no
	// current set and are dropped.
	stepDone map[int]map[uuid.UUID]bool

	timer armedTimer

	cfg config.Experiment

	Mu sync.Mutex

	actionIndex int

	// BroadcastFn sends an event to every connected participant. If nil, no
	// broadcast is done (tests install a collector here).
	BroadcastFn func(ev Event)

	// BroadcastToParticipantFn sends an event to a single participant.
	BroadcastToParticipantFn func(participantID uuid.UUID, ev Event)

	// OnTerminal is invoked once when the room reaches a terminal state
	// (completed or dropped), e.g. to archive it out of the store.
	OnTerminal func(roomName string)
}

// NewRoom builds an empty room for the given experimental condition. The
// step sequence is validated against the step enum here; a condition with a
// typo in its flow never produces a live room.
func NewRoom(cfg config.Experiment, condition string) (*Room, error) {
	names, ok := cfg.Conditions[condition]
	if !ok {
		return nil, fmt.Errorf("unknown experimental condition %q", condition)
	}
	flows, err := ParseFlows(names)
	if err != nil {
		return nil, fmt.Errorf("condition %q: %w", condition, err)
	}
	id, _ := uuid.NewRandom()
	r := &Room{
		Name:       id.String(),
		Condition:  condition,
		Flows:      flows,
		LeveeStock: cfg.InitialLeveeStock,
		stepDone:   make(map[int]map[uuid.UUID]bool),
		cfg:        cfg,
	}
	return r, nil
}

// --- timer slot -------------------------------------------------------------

// arm claims the room's single countdown slot for the given kind, stopping
// whatever was armed before. Returns the sequence number tick callbacks must
// present to be considered current.
func (r *Room) arm(kind timerKind) int {
	if r.timer.t != nil {
		r.timer.t.Stop()
		r.timer.t = nil
	}
	r.timer.seq++
	r.timer.kind = kind
	return r.timer.seq
}

// disarm stops any armed countdown and invalidates pending callbacks.
func (r *Room) disarm() {
	if r.timer.t != nil {
		r.timer.t.Stop()
		r.timer.t = nil
	}
	r.timer.seq++
	r.timer.kind = timerNone
}

// tickAfter schedules fn one tick interval out. The callback re-acquires the
// room lock and drops itself if the slot was re-armed in the meantime.
func (r *Room) tickAfter(seq int, fn func()) {
	r.timer.t = time.AfterFunc(config.TickInterval, func() {
		r.Mu.Lock()
		defer r.Mu.Unlock()
		if r.timer.seq != seq {
			return // stale timer, slot was re-armed or disarmed
		}
		fn()
	})
}

func (r *Room) timerArmed(kind timerKind) bool {
	return r.timer.kind == kind
}

// --- participants -----------------------------------------------------------

func (r *Room) participantByID(id uuid.UUID) *models.Participant {
	for _, p := range r.Participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// Joinable reports whether a matchmaking request may seat a participant
// here: still in the waiting room with an open villager slot.
func (r *Room) Joinable() bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.currentStep() == StepWaitingRoom && len(r.Participants) < RoomSize &&
		!r.GameDropped && !r.GameCompleted
}

// Seat adds a participant to the room or re-associates the socket of one who
// is reconnecting. Roles are handed out in join order and never reassigned.
func (r *Room) Seat(p *models.Participant) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if existing := r.participantByID(p.ID); existing != nil {
		existing.SocketID = p.SocketID
		existing.Conn = p.Conn
		existing.Connected = true
		log.Printf("Room %s: participant %s reconnected as %s", r.Name, p.ID, existing.Role)
		r.logAction(p.ID, "participant_reconnect", nil)
		r.fireEventToParticipant(p.ID, r.joinedEvent(existing))
		r.fireEvent(r.rosterEvent())
		return nil
	}

	if r.currentStep() != StepWaitingRoom || len(r.Participants) >= RoomSize {
		return fmt.Errorf("room %s is not accepting participants", r.Name)
	}

	p.Role = models.Roles[len(r.Participants)]
	p.Connected = true
	p.MTurkCode = newCode()
	r.Participants = append(r.Participants, p)
	log.Printf("Room %s: participant %s seated as %s (%d/%d)", r.Name, p.ID, p.Role, len(r.Participants), RoomSize)
	r.logAction(p.ID, "participant_join", map[string]interface{}{"role": string(p.Role)})

	r.fireEventToParticipant(p.ID, r.joinedEvent(p))
	r.fireEventToParticipant(p.ID, Event{
		Type: EventRoleAssigned,
		Payload: map[string]interface{}{
			"role":      string(p.Role),
			"mTurkcode": p.MTurkCode,
		},
	})
	r.fireEvent(r.rosterEvent())

	if len(r.Participants) == 1 {
		r.startWaitingRoomTimer()
	}
	return nil
}

func (r *Room) joinedEvent(p *models.Participant) Event {
	return Event{
		Type: EventRoomJoined,
		Payload: map[string]interface{}{
			"roomName":  r.Name,
			"condition": r.Condition,
			"role":      string(p.Role),
			"step":      string(r.currentStep()),
			"seated":    len(r.Participants),
			"capacity":  RoomSize,
		},
	}
}

func (r *Room) rosterEvent() Event {
	roster := make([]map[string]interface{}, 0, len(r.Participants))
	for _, p := range r.Participants {
		roster = append(roster, map[string]interface{}{
			"role":      string(p.Role),
			"connected": p.Connected,
		})
	}
	return Event{
		Type: EventRosterUpdate,
		Payload: map[string]interface{}{
			"seated":   len(r.Participants),
			"capacity": RoomSize,
			"roster":   roster,
		},
	}
}

// --- waiting room timer -----------------------------------------------------

// startWaitingRoomTimer arms the bounded waiting-room countdown. When it
// expires before the room fills, everyone seated is offered "keep waiting or
// exit". Assumes lock is held.
func (r *Room) startWaitingRoomTimer() {
	if r.cfg.WaitingRoomSeconds <= 0 {
		return
	}
	seq := r.arm(timerWaiting)
	remaining := r.cfg.WaitingRoomSeconds
	var tick func()
	tick = func() {
		remaining--
		if remaining > 0 {
			r.tickAfter(seq, tick)
			return
		}
		r.timer.kind = timerNone
		log.Printf("Room %s: waiting room timed out with %d/%d seated", r.Name, len(r.Participants), RoomSize)
		r.fireEvent(Event{Type: EventWaitingRoomOffer, Payload: map[string]interface{}{
			"seated":   len(r.Participants),
			"capacity": RoomSize,
		}})
	}
	r.tickAfter(seq, tick)
}

// --- event plumbing ---------------------------------------------------------

// fireEvent broadcasts an event to all connected participants. Assumes lock
// is held.
func (r *Room) fireEvent(ev Event) {
	if r.BroadcastFn != nil {
		r.BroadcastFn(ev)
	}
}

// fireEventToParticipant sends an event only to a specific participant.
// Assumes lock is held.
func (r *Room) fireEventToParticipant(id uuid.UUID, ev Event) {
	if r.BroadcastToParticipantFn == nil {
		return
	}
	p := r.participantByID(id)
	if p != nil && p.Connected {
		r.BroadcastToParticipantFn(id, ev)
	}
}

// logAction pushes an action record onto the export queue for the stats
// pipeline. Fire-and-forget; the room never blocks on Redis. Assumes lock is
// held.
func (r *Room) logAction(actorID uuid.UUID, actionType string, payload map[string]interface{}) {
	r.actionIndex++
	if payload == nil {
		payload = make(map[string]interface{})
	}
	rec := cache.RoomActionRecord{
		RoomName:    r.Name,
		ActionIndex: r.actionIndex,
		ActorID:     actorID,
		RoundIndex:  r.RoundIndex,
		ActionType:  actionType,
		Payload:     payload,
		Timestamp:   time.Now().UnixMilli(),
	}
	go func(rec cache.RoomActionRecord) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := cache.PublishRoomAction(ctx, rec); err != nil {
			log.Printf("Room %s: failed to publish action record %d: %v", rec.RoomName, rec.ActionIndex, err)
		}
	}(rec)
}

// newCode returns a short random code suitable for completion/compensation
// payouts.
func newCode() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return uuid.NewString()[:8]
	}
	return hex.EncodeToString(buf)
}

// internal/game/room_test.go
package game

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floodlab/levee/internal/config"
	"github.com/floodlab/levee/internal/models"
)

func init() {
	// Countdowns tick fast under test so full playthroughs stay cheap.
	config.TickInterval = 5 * time.Millisecond
}

const (
	waitLong  = 2 * time.Second
	pollShort = time.Millisecond
)

// mockBroadcaster collects events instead of sending them over WS.
type mockBroadcaster struct {
	mu                sync.Mutex
	allEvents         []Event
	participantEvents map[uuid.UUID][]Event
}

func newMockBroadcaster() *mockBroadcaster {
	return &mockBroadcaster{
		participantEvents: make(map[uuid.UUID][]Event),
	}
}

func (mb *mockBroadcaster) broadcastFn(ev Event) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.allEvents = append(mb.allEvents, ev)
}

func (mb *mockBroadcaster) broadcastToParticipantFn(id uuid.UUID, ev Event) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.participantEvents[id] = append(mb.participantEvents[id], ev)
}

func (mb *mockBroadcaster) countOfType(t EventType) int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	n := 0
	for _, ev := range mb.allEvents {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func (mb *mockBroadcaster) lastOfType(t EventType) *Event {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for i := len(mb.allEvents) - 1; i >= 0; i-- {
		if mb.allEvents[i].Type == t {
			ev := mb.allEvents[i]
			return &ev
		}
	}
	return nil
}

func (mb *mockBroadcaster) lastParticipantEventOfType(id uuid.UUID, t EventType) *Event {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	events := mb.participantEvents[id]
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == t {
			ev := events[i]
			return &ev
		}
	}
	return nil
}

// testConfig returns short countdowns plus a few reduced step sequences so
// individual tests can start close to the behavior they exercise.
func testConfig() config.Experiment {
	cfg := config.Default()
	cfg.RoundSeconds = 100 // rounds end early by answering; only timeout tests shorten this
	cfg.ResultSeconds = 4
	cfg.GameStopSeconds = 2
	cfg.WaitingRoomSeconds = 0 // no offer timer unless a test asks for one
	cfg.Conditions["onePart"] = []string{"waitingRoom", "roundsFirstPart", "completion"}
	cfg.Conditions["twoPart"] = []string{"waitingRoom", "roundsFirstPart", "partTransition", "roundsSecondPart", "completion"}
	cfg.Conditions["surveys"] = []string{"waitingRoom", "riskSurvey", "completion"}
	cfg.Conditions["chatOnly"] = []string{"waitingRoom", "chat", "completion"}
	return cfg
}

// setupTestRoom creates a room with mock broadcasters and seats the given
// number of participants.
func setupTestRoom(t *testing.T, cfg config.Experiment, condition string, seats int) (*Room, []*models.Participant, *mockBroadcaster) {
	r, err := NewRoom(cfg, condition)
	require.NoError(t, err)

	mb := newMockBroadcaster()
	r.BroadcastFn = mb.broadcastFn
	r.BroadcastToParticipantFn = mb.broadcastToParticipantFn

	participants := make([]*models.Participant, seats)
	for i := 0; i < seats; i++ {
		p := &models.Participant{ID: uuid.New(), SocketID: fmt.Sprintf("sock-%d", i)}
		require.NoError(t, r.Seat(p))
		participants[i] = p
	}
	return r, participants, mb
}

func completeStepAll(r *Room, participants []*models.Participant, step string) {
	for _, p := range participants {
		r.HandleCommand(p.ID, models.Command{
			Type:    models.CmdStepCompleted,
			Payload: map[string]interface{}{"step": step},
		})
	}
}

func submitChoiceAll(r *Room, participants []*models.Participant, choice int) {
	for _, p := range participants {
		r.HandleCommand(p.ID, models.Command{
			Type:    models.CmdRoundChoice,
			Payload: map[string]interface{}{"choice": choice},
		})
	}
}

func waitForCount(t *testing.T, mb *mockBroadcaster, typ EventType, count int) {
	t.Helper()
	require.Eventually(t, func() bool { return mb.countOfType(typ) >= count },
		waitLong, pollShort, "expected %d %s events", count, typ)
}

func TestSeatAssignsRolesInJoinOrder(t *testing.T) {
	r, participants, mb := setupTestRoom(t, testConfig(), "control", RoomSize)

	for i, p := range participants {
		assert.Equal(t, models.Roles[i], p.Role)
		assert.NotEmpty(t, p.MTurkCode)

		roleEv := mb.lastParticipantEventOfType(p.ID, EventRoleAssigned)
		require.NotNil(t, roleEv)
		assert.Equal(t, string(models.Roles[i]), roleEv.Payload["role"])
	}

	// A sixth villager has no seat.
	extra := &models.Participant{ID: uuid.New()}
	err := r.Seat(extra)
	require.Error(t, err)

	roster := mb.lastOfType(EventRosterUpdate)
	require.NotNil(t, roster)
	assert.Equal(t, RoomSize, roster.Payload["seated"])
}

func TestSeatReconnectKeepsRole(t *testing.T) {
	r, participants, _ := setupTestRoom(t, testConfig(), "control", RoomSize)
	p := participants[2]

	// Same identity, fresh socket: same seat, same role, no duplicate.
	require.NoError(t, r.Seat(&models.Participant{ID: p.ID, SocketID: "sock-new"}))

	r.Mu.Lock()
	defer r.Mu.Unlock()
	assert.Len(t, r.Participants, RoomSize)
	assert.Equal(t, models.Villager3, r.Participants[2].Role)
	assert.Equal(t, "sock-new", r.Participants[2].SocketID)
}

func TestJoinableOnlyInWaitingRoom(t *testing.T) {
	r, participants, _ := setupTestRoom(t, testConfig(), "onePart", RoomSize)
	assert.False(t, r.Joinable(), "full room is not joinable")

	completeStepAll(r, participants, "waitingRoom")
	assert.False(t, r.Joinable(), "room past the waiting room is not joinable")
}

func TestWaitingRoomOfferAndKeepWaiting(t *testing.T) {
	cfg := testConfig()
	cfg.WaitingRoomSeconds = 2
	r, participants, mb := setupTestRoom(t, cfg, "control", 2)

	waitForCount(t, mb, EventWaitingRoomOffer, 1)
	offer := mb.lastOfType(EventWaitingRoomOffer)
	assert.Equal(t, 2, offer.Payload["seated"])

	// Opting to keep waiting re-arms the countdown for another offer.
	r.HandleCommand(participants[0].ID, models.Command{Type: models.CmdKeepWaiting})
	waitForCount(t, mb, EventWaitingRoomOffer, 2)
}

func TestWaitingRoomTimerStopsOnAdvance(t *testing.T) {
	cfg := testConfig()
	cfg.WaitingRoomSeconds = 5
	r, participants, mb := setupTestRoom(t, cfg, "control", RoomSize)

	completeStepAll(r, participants, "waitingRoom")
	time.Sleep(10 * config.TickInterval)
	assert.Zero(t, mb.countOfType(EventWaitingRoomOffer),
		"no offer once the group has advanced")
}

func TestLeaveInWaitingRoomFreesSeat(t *testing.T) {
	r, participants, _ := setupTestRoom(t, testConfig(), "control", 3)

	r.HandleDisconnect(participants[0].ID)

	r.Mu.Lock()
	assert.Len(t, r.Participants, 2)
	// Roles are re-handed in join order once a waiting-room seat frees up.
	assert.Equal(t, models.Villager1, r.Participants[0].Role)
	assert.Equal(t, participants[1].ID, r.Participants[0].ID)
	assert.False(t, r.GameDropped)
	r.Mu.Unlock()

	assert.True(t, r.Joinable())
}

// internal/game/round_test.go
package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floodlab/levee/internal/config"
	"github.com/floodlab/levee/internal/models"
)

// playRounds drives n rounds to completion by answering every round as soon
// as it starts. startCount is how many rounds have already been played.
func playRounds(t *testing.T, r *Room, participants []*models.Participant, mb *mockBroadcaster, choice, startCount, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		waitForCount(t, mb, EventRoundStart, startCount+i+1)
		submitChoiceAll(r, participants, choice)
		waitForCount(t, mb, EventRoundEnded, startCount+i+1)
	}
}

func TestRoundEndsEarlyWhenAllRespond(t *testing.T) {
	r, participants, mb := setupTestRoom(t, testConfig(), "onePart", RoomSize)
	completeStepAll(r, participants, "waitingRoom")

	waitForCount(t, mb, EventRoundStart, 1)
	submitChoiceAll(r, participants, 2)

	// The fifth answer ends the round synchronously; the armed timeout must
	// never produce a second round_ended for the same round.
	assert.Equal(t, 1, mb.countOfType(EventRoundEnded))
	time.Sleep(10 * config.TickInterval)
	assert.Equal(t, 1, mb.countOfType(EventRoundEnded))

	result := mb.lastOfType(EventRoundResult)
	require.NotNil(t, result)
	agg, ok := result.Payload["aggregate"].(RoundAggregate)
	require.True(t, ok)
	assert.Equal(t, 0, agg.RoundIndex)
	assert.Equal(t, 1, agg.Progress)
}

func TestRoundScoringUpdatesStockAndEarnings(t *testing.T) {
	cfg := testConfig()
	cfg.WaterFirstPart[0] = 4
	r, participants, mb := setupTestRoom(t, cfg, "onePart", RoomSize)
	completeStepAll(r, participants, "waitingRoom")

	waitForCount(t, mb, EventRoundStart, 1)
	// Everyone near the river, 2 tokens each into the levee.
	submitChoiceAll(r, participants, 2)
	waitForCount(t, mb, EventRoundEnded, 1)

	r.Mu.Lock()
	defer r.Mu.Unlock()

	// 100 carried in, 10 invested, 25 decayed: 85 tokens, 12ft of levee,
	// nothing overtops a 4ft river.
	assert.Equal(t, 85, r.LeveeStock)
	require.Len(t, r.GameResults, 1)
	agg := r.GameResults[0]
	assert.Equal(t, 12, agg.LeveeHeight)
	assert.Equal(t, 4, agg.WaterHeight)
	assert.Equal(t, 0, agg.FloodLossPct)

	for _, p := range participants {
		assert.Equal(t, 24, p.TotalEarnings, "keep 8 tokens at x3")
		require.NotNil(t, p.Results[0].Choice)
		assert.Equal(t, 2, *p.Results[0].Choice)
		assert.Equal(t, 24, p.Results[0].EarningAfterLoss)
		assert.Equal(t, 24, agg.Earnings[p.Role])
	}
}

func TestRoundTimeoutWithMissingAnswerDropsRoom(t *testing.T) {
	cfg := testConfig()
	cfg.RoundSeconds = 3
	r, participants, mb := setupTestRoom(t, cfg, "onePart", RoomSize)
	completeStepAll(r, participants, "waitingRoom")

	waitForCount(t, mb, EventRoundStart, 1)
	// Four answer, one never does.
	for _, p := range participants[:4] {
		r.HandleCommand(p.ID, models.Command{
			Type:    models.CmdRoundChoice,
			Payload: map[string]interface{}{"choice": 5},
		})
	}

	require.Eventually(t, func() bool {
		r.Mu.Lock()
		defer r.Mu.Unlock()
		return r.GameDropped
	}, 2*time.Second, time.Millisecond)

	// The round is still scored once before the room ends.
	assert.Equal(t, 1, mb.countOfType(EventRoundEnded))

	silent := mb.lastParticipantEventOfType(participants[4].ID, EventDropout)
	require.NotNil(t, silent)
	assert.Equal(t, string(DropNotResponded), silent.Payload["cause"])
	assert.Equal(t, "selfDropped", silent.Payload["routing"])

	answered := mb.lastParticipantEventOfType(participants[0].ID, EventDropout)
	require.NotNil(t, answered)
	assert.Equal(t, "otherDropped", answered.Payload["routing"])
}

func TestOutOfRangeAndDuplicateChoicesIgnored(t *testing.T) {
	r, participants, mb := setupTestRoom(t, testConfig(), "onePart", RoomSize)
	completeStepAll(r, participants, "waitingRoom")
	waitForCount(t, mb, EventRoundStart, 1)

	p := participants[0]
	r.HandleCommand(p.ID, models.Command{
		Type:    models.CmdRoundChoice,
		Payload: map[string]interface{}{"choice": 11},
	})
	errEv := mb.lastParticipantEventOfType(p.ID, EventError)
	require.NotNil(t, errEv, "out-of-range choice is rejected with an error")

	r.HandleCommand(p.ID, models.Command{
		Type:    models.CmdRoundChoice,
		Payload: map[string]interface{}{"choice": 3},
	})
	r.HandleCommand(p.ID, models.Command{
		Type:    models.CmdRoundChoice,
		Payload: map[string]interface{}{"choice": 7},
	})

	r.Mu.Lock()
	require.NotNil(t, r.Participants[0].Results[0].Choice)
	assert.Equal(t, 3, *r.Participants[0].Results[0].Choice, "first answer is fixed")
	r.Mu.Unlock()
}

func TestDepletionEndsPartEarlyAndBackfills(t *testing.T) {
	cfg := testConfig()
	cfg.InitialLeveeStock = 35
	r, participants, mb := setupTestRoom(t, cfg, "onePart", RoomSize)
	completeStepAll(r, participants, "waitingRoom")

	waitForCount(t, mb, EventRoundStart, 1)
	// Everyone far from the river: nothing invested, decay drives the raw
	// stock to 10, under the depletion threshold.
	submitChoiceAll(r, participants, 0)

	waitForCount(t, mb, EventDepletion, 1)
	waitForCount(t, mb, EventGameStopEnded, 1)

	require.Eventually(t, func() bool {
		r.Mu.Lock()
		defer r.Mu.Unlock()
		return r.GameCompleted
	}, 2*time.Second, time.Millisecond)

	r.Mu.Lock()
	defer r.Mu.Unlock()
	assert.True(t, r.DepletedFirstPart)
	assert.Equal(t, firstPartSentinel, r.RoundIndex, "round index parks on the transition marker")

	// The result log is padded to a full part by repeating the last round.
	require.Len(t, r.GameResults, roundsPerPart)
	for _, agg := range r.GameResults {
		assert.Equal(t, r.GameResults[0], agg)
	}
	assert.Equal(t, 30, r.GameResults[0].LeveeStock, "stored stock never falls under the floor")
	for _, p := range participants {
		assert.Equal(t, 11, p.TotalEarnings, "far villagers keep the fixed payout")
	}
}

func TestFullTwoPartPlaythrough(t *testing.T) {
	r, participants, mb := setupTestRoom(t, testConfig(), "twoPart", RoomSize)
	completeStepAll(r, participants, "waitingRoom")

	playRounds(t, r, participants, mb, 3, 0, roundsPerPart)

	waitForCount(t, mb, EventFinalResultTable, 1)
	table := mb.lastOfType(EventFinalResultTable)
	assert.Equal(t, 1, table.Payload["part"])

	r.Mu.Lock()
	assert.Equal(t, firstPartSentinel, r.RoundIndex)
	assert.Equal(t, StepPartTransition, r.Flows[r.CurrentStep])
	assert.False(t, r.InGame)
	r.Mu.Unlock()

	completeStepAll(r, participants, "partTransition")

	r.Mu.Lock()
	assert.Equal(t, secondPartStart, r.RoundIndex, "second part rounds are indexed from 11")
	assert.True(t, r.InGame)
	r.Mu.Unlock()

	playRounds(t, r, participants, mb, 3, roundsPerPart, roundsPerPart)

	waitForCount(t, mb, EventFinalResultTable, 2)

	require.Eventually(t, func() bool {
		r.Mu.Lock()
		defer r.Mu.Unlock()
		return r.GameCompleted
	}, 2*time.Second, time.Millisecond)

	r.Mu.Lock()
	defer r.Mu.Unlock()
	assert.Equal(t, secondPartSentinel, r.RoundIndex)
	assert.Len(t, r.GameResults, 2*roundsPerPart)
	assert.Equal(t, 2*roundsPerPart, r.ScoredRounds)
	assert.Equal(t, 2*roundsPerPart, r.GameResults[len(r.GameResults)-1].Progress)
	// With 3 tokens invested per villager per round, the stock decays by 10
	// a round, bottoms out at the floor, and the default water schedule
	// yields 145 tokens in part one and 72 in part two.
	for _, p := range participants {
		assert.NotEmpty(t, p.CompensationCode)
		assert.Equal(t, 217, p.TotalEarnings)
	}
}

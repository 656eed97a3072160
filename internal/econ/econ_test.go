// internal/econ/econ_test.go
package econ

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeveeHeightSteps(t *testing.T) {
	cases := []struct {
		stock, height int
	}{
		{0, 0},
		{29, 0},
		{30, 2},
		{39, 2},
		{40, 4},
		{119, 18},
		{120, 20},
		{500, 20},
	}
	for _, c := range cases {
		assert.Equalf(t, c.height, LeveeHeight(c.stock), "stock=%d", c.stock)
	}
}

func TestFloodLossSteps(t *testing.T) {
	cases := []struct {
		over, loss int
	}{
		{0, 0},
		{1, 10},
		{2, 10},
		{3, 30},
		{4, 30},
		{5, 50},
		{6, 50},
		{7, 70},
		{8, 70},
		{9, 90},
		{10, 90},
		{11, 100},
		{25, 100},
	}
	for _, c := range cases {
		assert.Equalf(t, c.loss, FloodLossPct(c.over), "overtopping=%d", c.over)
	}
}

func TestScoreRoundAllFar(t *testing.T) {
	score := ScoreRound([]int{0, 0, 0, 0, 0}, 100, 8)

	assert.Equal(t, 75, score.LeveeStock)
	assert.Equal(t, 0, score.FloodLossPct, "no near-river investor, no flood loss")
	for _, out := range score.PerParticipant {
		assert.Equal(t, FarReturn, out.EarningBeforeLoss)
		assert.Equal(t, FarReturn, out.EarningAfterLoss)
	}
	assert.False(t, score.Depleted)
}

func TestScoreRoundAllInOnLevee(t *testing.T) {
	// Everyone invests their full endowment from an empty levee; water = 10.
	score := ScoreRound([]int{10, 10, 10, 10, 10}, 0, 10)

	assert.Equal(t, 25, score.RawStock)
	assert.Equal(t, 30, score.LeveeStock, "stock is floored")
	assert.Equal(t, 2, score.LeveeHeight)
	assert.Equal(t, 8, score.Overtopping)
	assert.Equal(t, 70, score.FloodLossPct)
	for _, out := range score.PerParticipant {
		assert.Equal(t, 0, out.EarningBeforeLoss)
		assert.Equal(t, 0, out.EarningAfterLoss)
	}
}

func TestScoreRoundMixedChoices(t *testing.T) {
	// Two far, three near with varying investment, healthy stock.
	score := ScoreRound([]int{0, 3, 0, 7, 10}, 90, 12)

	require.Len(t, score.PerParticipant, 5)
	// 90 + 20 - 25 = 85 stock => 12 ft levee => no overtopping at water 12.
	assert.Equal(t, 85, score.LeveeStock)
	assert.Equal(t, 12, score.LeveeHeight)
	assert.Equal(t, 0, score.Overtopping)
	assert.Equal(t, 0, score.FloodLossPct)

	assert.Equal(t, 11, score.PerParticipant[0].EarningAfterLoss)
	assert.Equal(t, 21, score.PerParticipant[1].EarningAfterLoss)
	assert.Equal(t, 9, score.PerParticipant[3].EarningAfterLoss)
	assert.Equal(t, 0, score.PerParticipant[4].EarningAfterLoss)
}

func TestScoreRoundFloodLossApplied(t *testing.T) {
	// Stock 30 => 2 ft; water 4 => overtopping 2 => 10% loss.
	score := ScoreRound([]int{5, 0, 0, 0, 0}, 50, 4)

	assert.Equal(t, 30, score.LeveeStock)
	assert.Equal(t, 10, score.FloodLossPct)
	near := score.PerParticipant[0]
	assert.Equal(t, 15, near.EarningBeforeLoss)
	assert.Equal(t, 13, near.EarningAfterLoss, "15 * 90 / 100 truncated")
	// Far villagers are immune.
	assert.Equal(t, 11, score.PerParticipant[1].EarningAfterLoss)
}

func TestScoreRoundDeterministic(t *testing.T) {
	choices := []int{2, 0, 10, NoChoice, 6}
	first := ScoreRound(choices, 64, 9)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, ScoreRound(choices, 64, 9))
	}
}

func TestScoreRoundNoChoiceEarnsNothing(t *testing.T) {
	score := ScoreRound([]int{NoChoice, 0, 4, 4, 4}, 100, 0)

	absent := score.PerParticipant[0]
	assert.Equal(t, 0, absent.EarningBeforeLoss)
	assert.Equal(t, 0, absent.EarningAfterLoss)
	// The non-answer also contributes nothing to the levee: 100 + 12 - 25.
	assert.Equal(t, 87, score.LeveeStock)
}

func TestStockNeverBelowFloorAfterDecay(t *testing.T) {
	stock := 100
	for round := 0; round < 40; round++ {
		score := ScoreRound([]int{0, 0, 0, 0, 0}, stock, 5)
		stock = score.LeveeStock
		require.GreaterOrEqual(t, stock, StockFloor)
	}
	assert.Equal(t, StockFloor, stock)
}

func TestDepletionDetection(t *testing.T) {
	// 35 + 0 - 25 = 10 < 15: depleted, but stored stock still floored.
	score := ScoreRound([]int{0, 0, 0, 0, 0}, 35, 5)
	assert.True(t, score.Depleted)
	assert.Equal(t, 10, score.RawStock)
	assert.Equal(t, StockFloor, score.LeveeStock)

	// 45 - 25 = 20 >= 15: not depleted.
	score = ScoreRound([]int{0, 0, 0, 0, 0}, 45, 5)
	assert.False(t, score.Depleted)
}

// internal/econ/econ.go
package econ

// Package econ implements the flood/levee economics for one decision round.
// Everything here is a pure function of its inputs; the round orchestration
// in internal/game supplies the water height and the collected choices.

const (
	// FarReturn is the fixed payout for choosing to live far from the river.
	FarReturn = 11

	// EndowmentTokens is what each near-river villager splits between the
	// levee and private wealth each round.
	EndowmentTokens = 10

	// PrivateMultiplier triples the tokens a near-river villager keeps.
	PrivateMultiplier = 3

	// NaturalDecay is subtracted from the levee stock every round.
	NaturalDecay = 25

	// StockFloor is the lowest stored levee stock after a round is scored.
	StockFloor = 30

	// DepletionThreshold ends the part early when the raw (pre-floor) stock
	// falls under it.
	DepletionThreshold = 15

	// NoChoice marks a villager who never answered within the round window.
	// A non-answer earns nothing and contributes nothing to the levee.
	NoChoice = -1
)

// Outcome is one villager's earnings for a single round.
type Outcome struct {
	Choice            int `json:"choice"`
	EarningBeforeLoss int `json:"earningBeforeLoss"`
	EarningAfterLoss  int `json:"earningAfterLoss"`
}

// RoundScore is the full result of scoring one round for a room.
type RoundScore struct {
	PrevStock    int `json:"prevStock"`
	RawStock     int `json:"rawStock"` // before the floor is applied
	LeveeStock   int `json:"leveeStock"`
	LeveeHeight  int `json:"leveeHeight"`
	WaterHeight  int `json:"waterHeight"`
	Overtopping  int `json:"overtopping"`
	FloodLossPct int `json:"floodLossPct"`

	// Depleted reports whether the raw stock fell under DepletionThreshold.
	Depleted bool `json:"depleted"`

	PerParticipant []Outcome `json:"perParticipant"`
}

// LeveeHeight converts accumulated levee stock into feet of protection.
// Under 30 tokens the levee provides nothing; every further 10 tokens add
// 2 feet, capped at 20 feet from 120 tokens up.
func LeveeHeight(stock int) int {
	if stock < StockFloor {
		return 0
	}
	h := 2 + 2*((stock-StockFloor)/10)
	if h > 20 {
		h = 20
	}
	return h
}

// FloodLossPct maps feet of overtopping (water above the levee) to the
// percentage of near-river earnings washed away.
func FloodLossPct(overtopping int) int {
	switch {
	case overtopping <= 0:
		return 0
	case overtopping <= 2:
		return 10
	case overtopping <= 4:
		return 30
	case overtopping <= 6:
		return 50
	case overtopping <= 8:
		return 70
	case overtopping <= 10:
		return 90
	default:
		return 100
	}
}

// ScoreRound scores one round. choices holds one entry per villager in seat
// order: 0 means far from the river, 1..10 means near with that many tokens
// invested in the levee, NoChoice means no answer. Choices are validated
// upstream; this function assumes they are in range.
func ScoreRound(choices []int, prevStock, waterHeight int) RoundScore {
	invested := 0
	for _, c := range choices {
		if c > 0 {
			invested += c
		}
	}

	raw := prevStock + invested - NaturalDecay
	stock := raw
	if stock < StockFloor {
		stock = StockFloor
	}

	height := LeveeHeight(stock)
	over := waterHeight - height
	if over < 0 {
		over = 0
	}

	// The flood only matters if somebody actually lives near the river.
	loss := 0
	for _, c := range choices {
		if c > 0 {
			loss = FloodLossPct(over)
			break
		}
	}

	score := RoundScore{
		PrevStock:      prevStock,
		RawStock:       raw,
		LeveeStock:     stock,
		LeveeHeight:    height,
		WaterHeight:    waterHeight,
		Overtopping:    over,
		FloodLossPct:   loss,
		Depleted:       raw < DepletionThreshold,
		PerParticipant: make([]Outcome, len(choices)),
	}

	for i, c := range choices {
		out := Outcome{Choice: c}
		switch {
		case c == NoChoice:
			// no answer, no earnings
		case c == 0:
			out.EarningBeforeLoss = FarReturn
			out.EarningAfterLoss = FarReturn
		default:
			out.EarningBeforeLoss = (EndowmentTokens - c) * PrivateMultiplier
			out.EarningAfterLoss = out.EarningBeforeLoss * (100 - loss) / 100
		}
		score.PerParticipant[i] = out
	}
	return score
}

package models

import (
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Role is a villager slot. Exactly five exist per room and a role is never
// reassigned once given, even across reconnects.
type Role string

const (
	Villager1 Role = "Villager1"
	Villager2 Role = "Villager2"
	Villager3 Role = "Villager3"
	Villager4 Role = "Villager4"
	Villager5 Role = "Villager5"
)

// Roles lists the villager slots in seat order.
var Roles = []Role{Villager1, Villager2, Villager3, Villager4, Villager5}

// RoundResult is one villager's record for a single scored round. Choice is
// nil until the villager answers in that round, then fixed.
type RoundResult struct {
	Choice            *int `json:"choice"`
	EarningBeforeLoss int  `json:"earningBeforeLoss"`
	EarningAfterLoss  int  `json:"earningAfterLoss"`
	TotalScore        int  `json:"totalScore"`
	TotalWater        int  `json:"totalWater"`
}

// Participant is one villager slot in a room.
type Participant struct {
	ID        uuid.UUID       `json:"id"`
	Role      Role            `json:"role"`
	SocketID  string          `json:"socketId"`
	Connected bool            `json:"connected"`
	Conn      *websocket.Conn `json:"-"`

	// Results is ordered by round index across both parts, including the
	// two transition sentinels.
	Results []*RoundResult `json:"results"`

	MTurkCode        string `json:"mTurkcode"`
	CompensationCode string `json:"compensationCode,omitempty"`
	TotalEarnings    int    `json:"totalEarnings"`
}

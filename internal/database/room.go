// internal/database/room.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// The orchestration core only needs a narrow contract against the store:
// create a room row, append round results, and mark terminal status for the
// room and for each participant session. Reporting/export reads the same
// tables out-of-process.

// RoundRecord is one round's aggregate outcome as stored.
type RoundRecord struct {
	RoomName     string
	RoundIndex   int
	LeveeStock   int
	LeveeHeight  int
	WaterHeight  int
	FloodLossPct int
}

// SessionRecord is one participant session's final state as stored.
type SessionRecord struct {
	ParticipantID    uuid.UUID
	RoomName         string
	Role             string
	MTurkCode        string
	CompensationCode string
	TotalEarnings    int
}

// UpsertRoom creates the room row if it does not exist yet.
func UpsertRoom(ctx context.Context, roomName, condition string) error {
	if DB == nil {
		return nil
	}
	q := `
		INSERT INTO rooms (name, condition, status)
		VALUES ($1, $2, 'active')
		ON CONFLICT (name) DO NOTHING
	`
	if _, err := DB.Exec(ctx, q, roomName, condition); err != nil {
		return fmt.Errorf("upsert room %s: %w", roomName, err)
	}
	return nil
}

// AppendRoundRecord stores one round aggregate for a room.
func AppendRoundRecord(ctx context.Context, rec RoundRecord) error {
	if DB == nil {
		return nil
	}
	q := `
		INSERT INTO room_rounds (room_name, round_index, levee_stock, levee_height, water_height, flood_loss_pct)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (room_name, round_index)
		DO UPDATE SET levee_stock=$3, levee_height=$4, water_height=$5, flood_loss_pct=$6
	`
	_, err := DB.Exec(ctx, q,
		rec.RoomName, rec.RoundIndex, rec.LeveeStock, rec.LeveeHeight, rec.WaterHeight, rec.FloodLossPct)
	if err != nil {
		return fmt.Errorf("append round %d for room %s: %w", rec.RoundIndex, rec.RoomName, err)
	}
	return nil
}

// MarkRoomStatus records the room's terminal status ('completed' or
// 'dropped').
func MarkRoomStatus(ctx context.Context, roomName, status string) error {
	if DB == nil {
		return nil
	}
	q := `UPDATE rooms SET status = $2, ended_at = now() WHERE name = $1`
	if _, err := DB.Exec(ctx, q, roomName, status); err != nil {
		return fmt.Errorf("mark room %s status %s: %w", roomName, status, err)
	}
	return nil
}

// UpsertSession stores a participant session's role, codes, and totals in a
// single transaction with the session counter bump.
func UpsertSession(ctx context.Context, rec SessionRecord) error {
	if DB == nil {
		return nil
	}
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			INSERT INTO sessions (participant_id, room_name, role, mturk_code, compensation_code, total_earnings)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (participant_id)
			DO UPDATE SET room_name=$2, role=$3, mturk_code=$4, compensation_code=$5, total_earnings=$6
		`
		_, e := tx.Exec(ctx, q,
			rec.ParticipantID, rec.RoomName, rec.Role, rec.MTurkCode, rec.CompensationCode, rec.TotalEarnings)
		return e
	})
	if err != nil {
		return fmt.Errorf("upsert session for %s: %w", rec.ParticipantID, err)
	}
	return nil
}

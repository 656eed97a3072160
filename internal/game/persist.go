// internal/game/persist.go
package game

import (
	"context"
	"log"
	"time"

	"github.com/floodlab/levee/internal/database"
)

// Persistence is fire-and-forget from the room's point of view: a failed
// write is logged and surfaced to the affected session, but never blocks the
// group's progression.

// persistRound appends one round aggregate to the room's stored result log.
// Assumes lock is held; the write itself happens off the lock.
func (r *Room) persistRound(agg RoundAggregate) {
	rec := database.RoundRecord{
		RoomName:     r.Name,
		RoundIndex:   agg.RoundIndex,
		LeveeStock:   agg.LeveeStock,
		LeveeHeight:  agg.LeveeHeight,
		WaterHeight:  agg.WaterHeight,
		FloodLossPct: agg.FloodLossPct,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := database.AppendRoundRecord(ctx, rec); err != nil {
			log.Printf("Room %s: failed to persist round %d: %v", rec.RoomName, rec.RoundIndex, err)
		}
	}()
}

// persistTerminal records the room's terminal status and every session's
// final totals. Assumes lock is held.
func (r *Room) persistTerminal(status string) {
	sessions := make([]database.SessionRecord, 0, len(r.Participants))
	for _, p := range r.Participants {
		sessions = append(sessions, database.SessionRecord{
			ParticipantID:    p.ID,
			RoomName:         r.Name,
			Role:             string(p.Role),
			MTurkCode:        p.MTurkCode,
			CompensationCode: p.CompensationCode,
			TotalEarnings:    p.TotalEarnings,
		})
	}
	name := r.Name
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := database.MarkRoomStatus(ctx, name, status); err != nil {
			log.Printf("Room %s: failed to mark status %q: %v", name, status, err)
		}
		for _, s := range sessions {
			if err := database.UpsertSession(ctx, s); err != nil {
				log.Printf("Room %s: failed to persist session for %s: %v", name, s.Role, err)
			}
		}
	}()
}

// cmd/exporter/main.go is an asynchronous export service that pops room
// action records from the Redis queue and persists them to PostgreSQL. It
// also marks rooms abandoned once they have been inactive for too long,
// which catches rooms whose server died before reaching a terminal state.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/floodlab/levee/internal/cache"
	"github.com/floodlab/levee/internal/database"
)

// ExporterService encapsulates the Redis + DB logic for capturing room
// actions and marking rooms abandoned after an inactivity threshold.
type ExporterService struct {
	redisClient  *redis.Client
	batchSize    int
	flushDelay   time.Duration
	inactivity   time.Duration
	lastActivity sync.Map // map[string]time.Time keyed by room name

	batchMu  sync.Mutex
	batch    []cache.RoomActionRecord
	ctx      context.Context
	cancelFn context.CancelFunc
}

// NewExporterService constructs an ExporterService from environment
// variables or defaults.
func NewExporterService() *ExporterService {
	batchSize := getEnvInt("EXPORT_BATCH_SIZE", 20)
	flushMs := getEnvInt("EXPORT_FLUSH_MS", 500)
	inactivitySec := getEnvInt("ROOM_INACTIVITY_TIMEOUT_SEC", 1800) // default 30 min

	redisAddr := getEnv("REDIS_ADDR", "localhost:6379")
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithCancel(context.Background())
	return &ExporterService{
		redisClient: rdb,
		batchSize:   batchSize,
		flushDelay:  time.Duration(flushMs) * time.Millisecond,
		inactivity:  time.Duration(inactivitySec) * time.Second,
		batch:       make([]cache.RoomActionRecord, 0, batchSize),
		ctx:         ctx,
		cancelFn:    cancel,
	}
}

// Run starts the two main loops:
//  1. A loop that reads from the Redis queue, accumulates records in a batch,
//     and flushes them to the DB.
//  2. A periodic check for inactivity to mark rooms as abandoned.
func (es *ExporterService) Run() {
	database.ConnectDB()

	go es.readRedisLoop()
	go es.inactivityLoop()

	log.Println("levee-exporter service started.")
	<-es.ctx.Done()
	log.Println("levee-exporter shutting down.")
}

// readRedisLoop continuously uses BLPop to retrieve records from the Redis queue.
func (es *ExporterService) readRedisLoop() {
	ticker := time.NewTicker(es.flushDelay)
	defer ticker.Stop()

	queueName := getEnv("EXPORT_QUEUE_NAME", cache.DefaultQueueName)

	for {
		select {
		case <-es.ctx.Done():
			return

		case <-ticker.C:
			es.flushBatchToDB()

		default:
			// BLPop with a 3-second timeout so context cancellation is handled.
			res, err := es.redisClient.BLPop(es.ctx, 3*time.Second, queueName).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				log.Printf("[ERROR] BLPop: %v\n", err)
				continue
			}
			if len(res) < 2 {
				// No record popped.
				continue
			}

			// res[0] is the queue name and res[1] the payload.
			var record cache.RoomActionRecord
			if err := json.Unmarshal([]byte(res[1]), &record); err != nil {
				log.Printf("invalid action record: %v\n", err)
				continue
			}

			es.lastActivity.Store(record.RoomName, time.Now())
			es.appendToBatch(record)
		}
	}
}

// appendToBatch adds a record to the in-memory batch and flushes if the
// threshold is reached.
func (es *ExporterService) appendToBatch(record cache.RoomActionRecord) {
	es.batchMu.Lock()
	defer es.batchMu.Unlock()

	es.batch = append(es.batch, record)
	if len(es.batch) >= es.batchSize {
		es.flushBatchToDB()
	}
}

// flushBatchToDB flushes the current batch to the database in a single
// transaction.
func (es *ExporterService) flushBatchToDB() {
	es.batchMu.Lock()
	defer es.batchMu.Unlock()

	if len(es.batch) == 0 {
		return
	}
	batchCopy := make([]cache.RoomActionRecord, len(es.batch))
	copy(batchCopy, es.batch)
	es.batch = es.batch[:0]

	ctx := context.Background()
	err := pgx.BeginTxFunc(ctx, database.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range batchCopy {
			if err := insertRoomActionTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insertRoomActionTx: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] flushBatchToDB: %v\n", err)
	} else {
		log.Printf("Flushed %d actions to DB.\n", len(batchCopy))
	}
}

// inactivityLoop periodically checks if any room has been inactive beyond the
// configured threshold, and marks such rooms as abandoned.
func (es *ExporterService) inactivityLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-es.ctx.Done():
			return

		case <-ticker.C:
			now := time.Now()
			es.lastActivity.Range(func(key, val interface{}) bool {
				roomName, ok1 := key.(string)
				last, ok2 := val.(time.Time)
				if ok1 && ok2 && now.Sub(last) > es.inactivity {
					es.markRoomAbandoned(roomName)
					es.lastActivity.Delete(roomName)
				}
				return true
			})
		}
	}
}

// markRoomAbandoned marks a room as 'abandoned' in the database if it is
// still marked 'active'.
func (es *ExporterService) markRoomAbandoned(roomName string) {
	ctx := context.Background()
	err := pgx.BeginTxFunc(ctx, database.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			UPDATE rooms
			SET status = 'abandoned', ended_at = NOW()
			WHERE name = $1 AND status = 'active'
		`
		_, e := tx.Exec(ctx, q, roomName)
		return e
	})
	if err != nil {
		log.Printf("failed to mark room %s abandoned: %v", roomName, err)
	} else {
		log.Printf("Marked room %s as 'abandoned' due to inactivity.", roomName)
	}
}

// insertRoomActionTx inserts a single action record into the room_actions
// table, upserting the room row first so the foreign key always resolves.
func insertRoomActionTx(ctx context.Context, tx pgx.Tx, rec cache.RoomActionRecord) error {
	upsertRoomQ := `
		INSERT INTO rooms (name, status)
		VALUES ($1, 'active')
		ON CONFLICT (name) DO NOTHING
	`
	if _, err := tx.Exec(ctx, upsertRoomQ, rec.RoomName); err != nil {
		return err
	}

	jsonPayload, err := json.Marshal(rec.Payload)
	if err != nil {
		return err
	}
	actionInsertQ := `
		INSERT INTO room_actions (
			room_name, action_index, actor_id, round_index, action_type, action_payload
		) VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = tx.Exec(ctx, actionInsertQ,
		rec.RoomName, rec.ActionIndex, rec.ActorID, rec.RoundIndex, rec.ActionType, jsonPayload,
	)
	return err
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func main() {
	svc := NewExporterService()
	svc.Run()
}

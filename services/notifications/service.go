package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"
	"tutorlink_go/config"
	"tutorlink_go/database"
	"tutorlink_go/models"
	"tutorlink_go/services/websocket"
	"tutorlink_go/utils"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Queue item structure stored in Redis.
// One payload may fan out to many receivers; the DB write is the source of
// truth and Redis only buffers it. If Redis is down we fall back to a direct
// insert.
type queuedNotification struct {
	SenderID    uint      `json:"sender_id"`
	ReceiverIDs []uint    `json:"receiver_ids"`
	Text        string    `json:"text"`
	Type        string    `json:"type"`
	EntityID    uint      `json:"entity_id"`
	CreatedAt   time.Time `json:"created_at"`
}

const redisListKey = "notifications:queue"

// Service exposes notification creation with optional Redis queue.
// If Redis is disabled or unavailable, performs direct DB insert.
type Service struct {
	db       *gorm.DB
	redis    *redis.Client
	useRedis bool
	wsHub    WSHub
}

// WSHub is the presence capability the service pushes through.
type WSHub interface {
	IsOnline(userID uint) bool
	BroadcastToUser(userID uint, message interface{})
}

// defaultHub allows services created in different parts of the app (e.g. the
// sweep scheduler) to broadcast over the same hub without manual wiring.
var defaultHub WSHub

// SetDefaultWSHub sets the package-level default WebSocket hub used by new Service instances.
func SetDefaultWSHub(h WSHub) {
	defaultHub = h
}

func NewService() *Service {
	return &Service{
		db:       database.GetDB(),
		redis:    database.GetRedisClient(),
		useRedis: config.AppConfig != nil && config.AppConfig.UseRedisNotifications && database.GetRedisClient() != nil,
		wsHub:    defaultHub,
	}
}

// SetWebSocketHub sets the WebSocket hub for real-time notifications
func (s *Service) SetWebSocketHub(hub WSHub) {
	s.wsHub = hub
}

// Notify records a single-receiver notification. It satisfies the
// notification sink the session lifecycle dispatches into.
func (s *Service) Notify(senderID, receiverID uint, text, notifType string, entityID uint) {
	err := s.EnqueueOrCreate([]uint{receiverID}, queuedNotification{
		SenderID: senderID,
		Text:     text,
		Type:     notifType,
		EntityID: entityID,
	})
	if err != nil {
		log.Printf("[notif] failed to record notification for user %d: %v", receiverID, err)
	}
}

// EnqueueOrCreate stores notifications using the Redis queue if enabled, else direct insert.
func (s *Service) EnqueueOrCreate(receiverIDs []uint, n queuedNotification) error {
	if len(receiverIDs) == 0 {
		return errors.New("no receiver ids")
	}
	n.ReceiverIDs = receiverIDs
	n.CreatedAt = time.Now().UTC()

	if s.useRedis {
		b, err := json.Marshal(n)
		if err != nil {
			return err
		}
		if err = s.redis.RPush(context.Background(), redisListKey, b).Err(); err == nil {
			return nil
		}
		log.Printf("[notif] Redis queue failed, falling back to direct insert: %v", err)
	}

	return s.createDirect(receiverIDs, n)
}

// createDirect writes directly to DB (used by worker or fallback) and pushes
// to receivers who are currently connected.
func (s *Service) createDirect(receiverIDs []uint, n queuedNotification) error {
	if len(receiverIDs) == 0 {
		return nil
	}
	notifs := make([]models.Notification, 0, len(receiverIDs))
	for _, rid := range receiverIDs {
		notifs = append(notifs, models.Notification{
			SenderID:   n.SenderID,
			ReceiverID: rid,
			Text:       n.Text,
			Type:       n.Type,
			EntityID:   n.EntityID,
			Read:       false,
		})
	}

	if err := s.db.Create(&notifs).Error; err != nil {
		return err
	}

	if s.wsHub == nil {
		return nil
	}
	for _, notif := range notifs {
		if !s.wsHub.IsOnline(notif.ReceiverID) {
			log.Printf("[notif] user %d not connected, notification will be delivered on next fetch", notif.ReceiverID)
			continue
		}
		s.db.Preload("Sender").First(&notif, notif.ID)
		s.wsHub.BroadcastToUser(notif.ReceiverID, websocket.NotificationMessage{
			Type:         "notification",
			Notification: utils.ToNotificationDTO(notif),
		})
	}

	return nil
}

// StartWorker starts a background worker polling the Redis queue and flushing to DB.
func (s *Service) StartWorker(stop <-chan struct{}) {
	if !s.useRedis {
		log.Println("[notif] Redis notifications disabled; worker not started")
		return
	}
	go func() {
		log.Println("[notif] Redis notification worker started")
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		ctx := context.Background()
		batchSize := 200
		for {
			select {
			case <-stop:
				log.Println("[notif] Worker stopping")
				return
			case <-ticker.C:
				s.flushBatch(ctx, batchSize)
			}
		}
	}()
}

// flushBatch polls the Redis queue and processes notifications in batches.
func (s *Service) flushBatch(ctx context.Context, batchSize int) {
	if s.redis == nil {
		return
	}
	for i := 0; i < 5; i++ { // up to 5 sub-batches per tick
		vals, err := s.redis.LRange(ctx, redisListKey, 0, int64(batchSize-1)).Result()
		if err != nil || len(vals) == 0 {
			return
		}
		// Trim immediately to avoid duplicates (best-effort)
		if err = s.redis.LTrim(ctx, redisListKey, int64(len(vals)), -1).Err(); err != nil {
			log.Printf("[notif] LTrim failed: %v", err)
		}
		for _, raw := range vals {
			var q queuedNotification
			if err := json.Unmarshal([]byte(raw), &q); err != nil {
				continue
			}
			if err := s.createDirect(q.ReceiverIDs, q); err != nil {
				log.Printf("[notif] DB insert failed (retry later?): %v", err)
			}
		}
		if len(vals) < batchSize {
			return
		}
	}
}

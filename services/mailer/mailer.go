// Package mailer enqueues outbound mail onto a Redis list consumed by an
// external delivery worker. Enqueue is fire-and-forget: when Redis is
// unavailable the message is logged and dropped, never blocking the caller.
package mailer

import (
	"context"
	"encoding/json"
	"time"
	"tutorlink_go/config"
	"tutorlink_go/database"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const redisListKey = "mail:queue"

// Message is one queued mail job.
type Message struct {
	Template  string                 `json:"template"`
	From      string                 `json:"from"`
	Recipient string                 `json:"recipient"`
	Context   map[string]interface{} `json:"context,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

type Service struct {
	redis *redis.Client
	from  string
}

func NewService() *Service {
	from := "no-reply@tutorlink.io"
	if config.AppConfig != nil {
		from = config.AppConfig.MailFrom
	}
	return &Service{
		redis: database.GetRedisClient(),
		from:  from,
	}
}

// Send enqueues a templated mail for the recipient.
func (s *Service) Send(template, recipient string, data map[string]interface{}) {
	msg := Message{
		Template:  template,
		From:      s.from,
		Recipient: recipient,
		Context:   data,
		CreatedAt: time.Now().UTC(),
	}

	if s.redis == nil {
		logrus.WithFields(logrus.Fields{
			"template":  template,
			"recipient": recipient,
		}).Warn("Mail queue unavailable, message dropped")
		return
	}

	b, err := json.Marshal(msg)
	if err != nil {
		logrus.WithError(err).Warn("Failed to marshal mail message")
		return
	}
	if err := s.redis.RPush(context.Background(), redisListKey, b).Err(); err != nil {
		logrus.WithFields(logrus.Fields{
			"template":  template,
			"recipient": recipient,
			"error":     err.Error(),
		}).Warn("Failed to enqueue mail, message dropped")
	}
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"marketchat/backend/internal/models"

	"github.com/redis/go-redis/v9"
)

// Subscriber turns notification requests published on a Redis channel into
// notifications, so other services can notify users without calling HTTP.
type Subscriber struct {
	rdb     *redis.Client
	channel string
	service *Service
}

// NewSubscriber Constructor
func NewSubscriber(rdb *redis.Client, channel string, service *Service) *Subscriber {
	return &Subscriber{rdb: rdb, channel: channel, service: service}
}

// Run consumes the channel until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) {
	pubsub := s.rdb.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	log.Printf("INFO: listening for notification requests on %s", s.channel)
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := s.HandlePayload(ctx, msg.Payload); err != nil {
				log.Printf("WARNING: dropped notification request: %v", err)
			}
		}
	}
}

// HandlePayload decodes one request and hands it to the service.
func (s *Subscriber) HandlePayload(ctx context.Context, payload string) error {
	var req models.NotificationRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return fmt.Errorf("failed to decode notification request: %w", err)
	}
	_, err := s.service.Notify(ctx, req.UserID, req.Title, req.Message)
	return err
}

// Publish sends a notification request to channel.
func Publish(ctx context.Context, rdb *redis.Client, channel string, req models.NotificationRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return rdb.Publish(ctx, channel, data).Err()
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"busbooking/pkg/logger"
)

// RedisSink publishes events as JSON on a pub/sub channel. Delivery channels
// (mail, SMS, push) subscribe there.
type RedisSink struct {
	client  *redis.Client
	channel string
}

func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Notify(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", s.channel, err)
	}
	return nil
}

// Listen consumes the channel until ctx is done, passing each decoded event to fn.
// Malformed payloads are logged and skipped.
func Listen(ctx context.Context, client *redis.Client, channel string, log logger.Logger, fn func(Event)) error {
	sub := client.Subscribe(ctx, channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warn("dropping malformed event", "channel", channel, "error", err)
				continue
			}
			fn(ev)
		}
	}
}

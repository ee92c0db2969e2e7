package data

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/audioscribe/audioscribe/internal/domain/model"
)

// EventPublishChannel is the Redis pub/sub channel lifecycle events are
// forwarded to for cross-process consumers.
const EventPublishChannel = "audioscribe:job_events"

// RedisEventPublisher forwards lifecycle events to Redis pub/sub. Delivery is
// fire-and-forget; the Postgres event log remains the source of truth.
type RedisEventPublisher struct {
	client redis.UniversalClient
}

// NewRedisEventPublisher creates a publisher on the given client.
func NewRedisEventPublisher(client redis.UniversalClient) *RedisEventPublisher {
	return &RedisEventPublisher{client: client}
}

// Publish sends the event as JSON on the event channel.
func (p *RedisEventPublisher) Publish(ctx context.Context, event *model.JobEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal job event %d: %w", event.Seq, err)
	}
	if err := p.client.Publish(ctx, EventPublishChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish job event %d: %w", event.Seq, err)
	}
	return nil
}

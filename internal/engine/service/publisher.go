package service

import (
	"context"
	"encoding/json"
	"fmt"

	redisPkg "golang-signal-engine/pkg/redis"

	"github.com/redis/go-redis/v9"
)

// EventPublisher publishes engine events for downstream consumers (the
// decision consumer in-process, the order builder out-of-process).
type EventPublisher interface {
	Publish(ctx context.Context, stream string, payload interface{}) error
}

type redisPublisher struct {
	client *redisPkg.Client
	maxLen int64
}

// NewRedisPublisher creates a publisher writing to capped Redis streams.
func NewRedisPublisher(client *redisPkg.Client, maxLen int64) EventPublisher {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &redisPublisher{client: client, maxLen: maxLen}
}

func (p *redisPublisher) Publish(ctx context.Context, stream string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{"payload": body},
		MaxLen: p.maxLen,
		Approx: true,
	}).Err()
}

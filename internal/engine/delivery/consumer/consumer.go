package consumer

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"golang-signal-engine/internal/engine/dto"
	"golang-signal-engine/internal/engine/service"
	"golang-signal-engine/pkg/common"
	"golang-signal-engine/pkg/logger"
	"golang-signal-engine/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// SignalConsumer reads signal.changed events and runs the decision
// engine for the affected symbol, so a changed signal is acted on
// without waiting for the next decision cadence.
type SignalConsumer struct {
	redisClient *redis.Client
	engine      service.DecisionEngine
	log         *logger.Logger
	blockTime   time.Duration
	stopChan    chan struct{}
	wg          sync.WaitGroup
}

// NewSignalConsumer creates a new SignalConsumer.
func NewSignalConsumer(redisClient *redis.Client, engine service.DecisionEngine, log *logger.Logger) *SignalConsumer {
	return &SignalConsumer{
		redisClient: redisClient,
		engine:      engine,
		log:         log,
		blockTime:   5 * time.Second,
		stopChan:    make(chan struct{}),
	}
}

// Start begins the consumer loop.
func (c *SignalConsumer) Start(ctx context.Context) {
	if err := c.ensureGroup(ctx); err != nil {
		c.log.Error("Failed to create consumer group", logger.ErrorField(err))
	}

	c.wg.Add(1)
	utils.GoSafe(func() {
		defer c.wg.Done()
		c.log.Info("Signal consumer started", logger.StringField("stream", common.RedisStreamSignalChanged))
		for {
			select {
			case <-ctx.Done():
				c.log.Info("Signal consumer stopping due to context cancellation")
				return
			case <-c.stopChan:
				c.log.Info("Signal consumer stopping")
				return
			default:
				c.consumeOnce(ctx)
			}
		}
	})
}

// Stop gracefully shuts down the consumer.
func (c *SignalConsumer) Stop() {
	close(c.stopChan)
	c.wg.Wait()
	c.log.Info("Signal consumer stopped")
}

func (c *SignalConsumer) ensureGroup(ctx context.Context) error {
	err := c.redisClient.XGroupCreateMkStream(ctx, common.RedisStreamSignalChanged, common.RedisStreamGroup, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (c *SignalConsumer) consumeOnce(ctx context.Context) {
	streams, err := c.redisClient.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    common.RedisStreamGroup,
		Consumer: common.RedisStreamConsumer,
		Streams:  []string{common.RedisStreamSignalChanged, ">"},
		Count:    10,
		Block:    c.blockTime,
	}).Result()
	if err != nil {
		if err == redis.Nil || ctx.Err() != nil {
			return
		}
		c.log.Error("Failed to read signal stream", logger.ErrorField(err))
		time.Sleep(time.Second)
		return
	}

	for _, stream := range streams {
		for _, message := range stream.Messages {
			c.handleMessage(ctx, message)
			if err := c.redisClient.XAck(ctx, common.RedisStreamSignalChanged, common.RedisStreamGroup, message.ID).Err(); err != nil {
				c.log.Error("Failed to ack message",
					logger.ErrorField(err),
					logger.StringField("message_id", message.ID))
			}
		}
	}
}

func (c *SignalConsumer) handleMessage(ctx context.Context, message redis.XMessage) {
	payload, ok := message.Values["payload"].(string)
	if !ok {
		c.log.Error("Malformed stream message", logger.StringField("message_id", message.ID))
		return
	}

	var event dto.SignalChangedEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		c.log.Error("Failed to unmarshal signal event",
			logger.ErrorField(err),
			logger.StringField("message_id", message.ID))
		return
	}

	res, err := c.engine.Decide(ctx, event.Symbol)
	if err != nil {
		c.log.Error("Decision on signal change failed",
			logger.ErrorField(err),
			logger.StringField("symbol", event.Symbol))
		return
	}
	c.log.Debug("Decision on signal change",
		logger.StringField("symbol", event.Symbol),
		logger.StringField("reason", res.Reason))
}

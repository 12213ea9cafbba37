package redisstream

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Nijaek/analytics-dashboard/internal/config"
	"github.com/Nijaek/analytics-dashboard/internal/queue"
)

const (
	defaultVisibilityTimeout = 30 * time.Second
	defaultClaimBlock        = 2 * time.Second
)

// Client wraps a Redis connection used as the durable event queue. The same
// connection handle backs the broadcast channels and the ticket store, so the
// process owns exactly one substrate client and injects it everywhere.
type Client struct {
	rdb               *redis.Client
	cfg               config.Redis
	consumerName      string
	visibilityTimeout time.Duration
	claimBlock        time.Duration
	log               *zap.Logger
}

// NewClient creates a new Redis stream client and verifies connectivity
func NewClient(ctx context.Context, cfg config.Redis, log *zap.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "worker"
	}

	log.Info("Redis stream client created",
		zap.String("addr", cfg.Addr),
		zap.String("stream", cfg.StreamKey),
		zap.String("group", cfg.ConsumerGroup))

	return &Client{
		rdb:               rdb,
		cfg:               cfg,
		consumerName:      fmt.Sprintf("%s-%d", hostname, os.Getpid()),
		visibilityTimeout: defaultVisibilityTimeout,
		claimBlock:        defaultClaimBlock,
		log:               log,
	}, nil
}

// Redis returns the underlying connection handle so the ticket store and the
// broadcast channels can share it.
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

// ConfigureClaim overrides the redelivery and blocking-read timings used by
// Claim. A non-positive block disables blocking entirely.
func (c *Client) ConfigureClaim(visibilityTimeout, claimBlock time.Duration) {
	if visibilityTimeout > 0 {
		c.visibilityTimeout = visibilityTimeout
	}
	c.claimBlock = claimBlock
}

// EnsureGroup creates the consumer group if it doesn't already exist
func (c *Client) EnsureGroup(ctx context.Context) error {
	err := c.rdb.XGroupCreateMkStream(ctx, c.cfg.StreamKey, c.cfg.ConsumerGroup, "0").Err()
	if err != nil {
		// BUSYGROUP means the group already exists
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	c.log.Info("Created consumer group",
		zap.String("stream", c.cfg.StreamKey),
		zap.String("group", c.cfg.ConsumerGroup))
	return nil
}

// EnqueueBatch appends one batch payload to the stream. The stream is capped
// approximately at the configured max length; entries beyond retention are the
// documented data-loss limit during a prolonged storage outage.
func (c *Client) EnqueueBatch(ctx context.Context, projectID int64, payload []byte) (string, error) {
	id, err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.StreamKey,
		MaxLen: c.cfg.StreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"project_id": strconv.FormatInt(projectID, 10),
			"data":       string(payload),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to append batch to stream: %w", err)
	}
	return id, nil
}

// Claim fetches up to max messages for this consumer. Messages left unacked
// by another consumer past the visibility timeout are reclaimed first, then
// new entries are read, blocking up to the configured claim block when the
// stream is empty.
func (c *Client) Claim(ctx context.Context, max int64) ([]queue.Message, error) {
	reclaimed, _, err := c.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.cfg.StreamKey,
		Group:    c.cfg.ConsumerGroup,
		Consumer: c.consumerName,
		MinIdle:  c.visibilityTimeout,
		Start:    "0-0",
		Count:    max,
	}).Result()
	if err != nil && err != redis.Nil {
		// NOGROUP: the stream or group is gone, surface it
		if strings.Contains(err.Error(), "NOGROUP") {
			return nil, fmt.Errorf("consumer group missing: %w", err)
		}
		return nil, fmt.Errorf("failed to reclaim pending messages: %w", err)
	}

	messages := c.convert(reclaimed)
	remaining := max - int64(len(messages))
	if remaining <= 0 {
		return messages, nil
	}

	block := c.claimBlock
	if block <= 0 {
		block = -1 // no blocking
	}

	streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.ConsumerGroup,
		Consumer: c.consumerName,
		Streams:  []string{c.cfg.StreamKey, ">"},
		Count:    remaining,
		Block:    block,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return messages, nil
		}
		return messages, fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, stream := range streams {
		messages = append(messages, c.convert(stream.Messages)...)
	}
	return messages, nil
}

// Ack acknowledges processed messages so they leave the pending entries list
func (c *Client) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.rdb.XAck(ctx, c.cfg.StreamKey, c.cfg.ConsumerGroup, ids...).Err(); err != nil {
		return fmt.Errorf("failed to ack messages: %w", err)
	}
	return nil
}

// Ping checks if the Redis connection is alive
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) convert(entries []redis.XMessage) []queue.Message {
	messages := make([]queue.Message, 0, len(entries))
	for _, entry := range entries {
		msg := queue.Message{ID: entry.ID}
		if raw, ok := entry.Values["project_id"].(string); ok {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				c.log.Warn("Stream entry has malformed project id",
					zap.String("message_id", entry.ID),
					zap.String("project_id", raw))
			}
			msg.ProjectID = id
		}
		if data, ok := entry.Values["data"].(string); ok {
			msg.Data = []byte(data)
		}
		messages = append(messages, msg)
	}
	return messages
}

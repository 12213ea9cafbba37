package live

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// channelPrefix namespaces the per-project pub/sub channels: events:live:{id}
const channelPrefix = "events:live:"

// Broadcaster publishes one committed event to a project's live channel.
// Delivery is best-effort: a subscriber not connected at publish time never
// sees the event.
type Broadcaster interface {
	Publish(ctx context.Context, projectID int64, payload []byte) error
}

// RedisBroadcaster fans events out over Redis pub/sub so API processes other
// than the publishing worker still reach their local subscribers.
type RedisBroadcaster struct {
	rdb *redis.Client
	log *zap.Logger
}

// NewRedisBroadcaster creates a new Redis pub/sub broadcaster
func NewRedisBroadcaster(rdb *redis.Client, log *zap.Logger) *RedisBroadcaster {
	return &RedisBroadcaster{rdb: rdb, log: log}
}

// Publish sends one event payload to the project's channel
func (b *RedisBroadcaster) Publish(ctx context.Context, projectID int64, payload []byte) error {
	channel := channelFor(projectID)
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

func channelFor(projectID int64) string {
	return channelPrefix + strconv.FormatInt(projectID, 10)
}

func projectFromChannel(channel string) (int64, bool) {
	if len(channel) <= len(channelPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(channel[len(channelPrefix):], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

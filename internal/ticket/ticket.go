package ticket

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// TTL bounds the exposure window if a ticket leaks into an access log.
const TTL = 30 * time.Second

const keyPrefix = "live_ticket:"

// ErrTicketInvalid covers expired, already-used, and unknown tickets alike so
// a caller cannot distinguish the three cases.
var ErrTicketInvalid = errors.New("ticket invalid")

// Issuer mints and redeems single-use live-viewing tickets
type Issuer interface {
	Issue(ctx context.Context, projectID int64) (string, error)
	Redeem(ctx context.Context, ticketID string) (int64, error)
}

// RedisIssuer stores tickets in Redis with a TTL; redemption is a single
// atomic check-and-invalidate so concurrent redeems race safely.
type RedisIssuer struct {
	rdb *redis.Client
	log *zap.Logger
}

// NewRedisIssuer creates a new Redis-backed ticket issuer
func NewRedisIssuer(rdb *redis.Client, log *zap.Logger) *RedisIssuer {
	return &RedisIssuer{rdb: rdb, log: log}
}

// Issue mints a ticket bound to a project, valid for TTL and exactly one redeem
func (i *RedisIssuer) Issue(ctx context.Context, projectID int64) (string, error) {
	ticketID := uuid.NewString()
	key := keyPrefix + ticketID
	if err := i.rdb.SetEx(ctx, key, strconv.FormatInt(projectID, 10), TTL).Err(); err != nil {
		return "", fmt.Errorf("failed to store ticket: %w", err)
	}
	i.log.Debug("Issued live ticket", zap.Int64("project_id", projectID))
	return ticketID, nil
}

// Redeem atomically consumes a ticket and returns the project it was bound
// to. Only the first of two racing redeems succeeds; every failure mode maps
// to the same ErrTicketInvalid.
func (i *RedisIssuer) Redeem(ctx context.Context, ticketID string) (int64, error) {
	key := keyPrefix + ticketID
	val, err := i.rdb.GetDel(ctx, key).Result()
	if err == redis.Nil {
		return 0, ErrTicketInvalid
	}
	if err != nil {
		return 0, fmt.Errorf("failed to redeem ticket: %w", err)
	}
	projectID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		i.log.Warn("Stored ticket has malformed project id", zap.String("value", val))
		return 0, ErrTicketInvalid
	}
	return projectID, nil
}

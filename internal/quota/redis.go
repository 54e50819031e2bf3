package quota

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HanTheDev/content-gateway/internal/models"
)

// Keys outlive their month so late releases still find the counter.
const keyTTL = 62 * 24 * time.Hour

// reserveScript compares and increments in one step so concurrent callers cannot both take
// the last unit. Returns {granted, remaining}.
var reserveScript = redis.NewScript(`
local used = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
local cost = tonumber(ARGV[2])
if used + cost > limit then
  return {0, limit - used}
end
used = redis.call('INCRBY', KEYS[1], cost)
if used == cost then
  redis.call('EXPIRE', KEYS[1], tonumber(ARGV[3]))
end
return {1, limit - used}
`)

// releaseScript decrements without going below zero.
var releaseScript = redis.NewScript(`
local used = tonumber(redis.call('GET', KEYS[1]) or '0')
if used <= 0 then
  return 0
end
local n = tonumber(ARGV[1])
if n > used then
  n = used
end
return redis.call('DECRBY', KEYS[1], n)
`)

// RedisLedger shares counters across gateway instances.
type RedisLedger struct {
	client *redis.Client
	limits Limits
	now    func() time.Time
}

func NewRedisLedger(redisURL string, limits Limits) (*RedisLedger, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return NewRedisLedgerFromClient(redis.NewClient(opt), limits), nil
}

func NewRedisLedgerFromClient(client *redis.Client, limits Limits) *RedisLedger {
	return &RedisLedger{client: client, limits: limits, now: time.Now}
}

func (rl *RedisLedger) key(userID string, feature models.ContentType, period string) string {
	return fmt.Sprintf("quota:%s:%s:%s", userID, feature, period)
}

func (rl *RedisLedger) CheckAndReserve(ctx context.Context, userID, plan string, feature models.ContentType, cost int) (Reservation, error) {
	if cost <= 0 {
		return Reservation{}, ErrInvalidCost
	}
	limit := rl.limits.For(plan, feature)
	period := PeriodKey(rl.now())
	key := rl.key(userID, feature, period)

	res, err := reserveScript.Run(ctx, rl.client, []string{key}, limit, cost, int64(keyTTL.Seconds())).Int64Slice()
	if err != nil {
		return Reservation{}, fmt.Errorf("reserve quota: %w", err)
	}
	if len(res) != 2 {
		return Reservation{}, fmt.Errorf("reserve quota: unexpected reply %v", res)
	}
	remaining := clampRemaining(int(res[1]))
	if res[0] != 1 {
		return Reservation{}, &QuotaExceededError{UserID: userID, Feature: feature, Period: period, Remaining: remaining}
	}
	return Reservation{UserID: userID, Feature: feature, Period: period, Units: cost, Remaining: remaining}, nil
}

func (rl *RedisLedger) Release(ctx context.Context, r Reservation) error {
	if r.Units <= 0 {
		return ErrInvalidCost
	}
	key := rl.key(r.UserID, r.Feature, r.Period)
	if err := releaseScript.Run(ctx, rl.client, []string{key}, r.Units).Err(); err != nil {
		return fmt.Errorf("release quota: %w", err)
	}
	return nil
}

func (rl *RedisLedger) State(ctx context.Context, userID, plan string, feature models.ContentType) (models.QuotaState, error) {
	period := PeriodKey(rl.now())
	state := models.QuotaState{
		UserID:    userID,
		Feature:   feature,
		PeriodKey: period,
		Limit:     rl.limits.For(plan, feature),
	}

	val, err := rl.client.Get(ctx, rl.key(userID, feature, period)).Result()
	if err == redis.Nil {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("read quota: %w", err)
	}
	used, err := strconv.Atoi(val)
	if err != nil {
		return state, fmt.Errorf("read quota: %w", err)
	}
	state.Used = used
	return state, nil
}

func (rl *RedisLedger) Close() error {
	return rl.client.Close()
}

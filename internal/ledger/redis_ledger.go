package ledger

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type RedisLedger struct {
	client *redis.Client
}

func NewRedisLedger(addr string, password string, db int) *RedisLedger {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisLedger{client: client}
}

func (l *RedisLedger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *RedisLedger) Close() error {
	return l.client.Close()
}

func (l *RedisLedger) Reserve(ctx context.Context, key Key, readingID string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key.String(), readingID, ttl).Result()
}

func (l *RedisLedger) Lookup(ctx context.Context, key Key) (string, bool, error) {
	val, err := l.client.Get(ctx, key.String()).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (l *RedisLedger) Release(ctx context.Context, key Key) error {
	return l.client.Del(ctx, key.String()).Err()
}

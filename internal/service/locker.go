package service

import (
	rdb "Crosspost/internal/pkg/redis"
	"context"
	"time"

	"github.com/google/uuid"
)

// RedisLocker 基于 Redis SETNX 的进程间互斥实现
type RedisLocker struct{}

func NewRedisLocker() *RedisLocker {
	return &RedisLocker{}
}

func (s *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()

	ok, err := rdb.TryLock(ctx, key, token, ttl, 1)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		rdb.UnLock(ctx, key, token)
	}
	return release, true, nil
}

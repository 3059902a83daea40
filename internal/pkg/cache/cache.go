package cache

import (
	"context"
	"errors"
	"time"

	rdb "Crosspost/internal/pkg/redis"

	"golang.org/x/sync/singleflight"
)

// ErrNegativeCached 表示命中了失败标记，上游近期失败过，暂不重试
var ErrNegativeCached = errors.New("cache: negative entry")

// Loader 缓存未命中时的加载函数
type Loader func(ctx context.Context) (string, error)

// Cache 带失败标记的读穿缓存
type Cache interface {
	GetOrLoad(ctx context.Context, key string, successTTL, errorTTL time.Duration, load Loader) (string, error)
	Invalidate(ctx context.Context, key string) error
}

type redisCache struct {
	group singleflight.Group
}

func NewRedisCache() Cache {
	return &redisCache{}
}

func errKey(key string) string {
	return key + ":err"
}

// GetOrLoad 读取缓存，未命中时加载并写回。
// 加载失败会写入短 TTL 的失败标记，窗口内的后续请求直接返回 ErrNegativeCached。
func (s *redisCache) GetOrLoad(ctx context.Context, key string, successTTL, errorTTL time.Duration, load Loader) (string, error) {
	if value, err := rdb.GetValue(ctx, key); err == nil && value != "" {
		return value, nil
	}
	if marker, err := rdb.GetValue(ctx, errKey(key)); err == nil && marker != "" {
		return "", ErrNegativeCached
	}

	result, err, _ := s.group.Do(key, func() (interface{}, error) {
		// 单飞等待期间可能已有别的协程写入
		if value, err := rdb.GetValue(ctx, key); err == nil && value != "" {
			return value, nil
		}

		value, err := load(ctx)
		if err != nil {
			_ = rdb.SetWithExpiration(ctx, errKey(key), err.Error(), errorTTL)
			return "", err
		}

		if err := rdb.SetWithExpiration(ctx, key, value, successTTL); err != nil {
			return value, nil
		}
		return value, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (s *redisCache) Invalidate(ctx context.Context, key string) error {
	if err := rdb.DeleteKey(ctx, key); err != nil {
		return err
	}
	return rdb.DeleteKey(ctx, errKey(key))
}

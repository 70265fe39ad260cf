package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-storefront/types"
	"github.com/saiset-co/sai-storefront/utils"
)

type RedisConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	Password     string        `json:"password"`
	DB           int           `json:"db"`
	PoolSize     int           `json:"pool_size"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	KeyPrefix    string        `json:"key_prefix"`
	DefaultTTL   time.Duration `json:"default_ttl"`
}

// RedisStore backs a cache instance with redis so replicas share entries.
// Expiry is delegated to redis TTLs; capacity is left to redis eviction
// policy, so Purge and the 20% sweep are no-ops here. Values round-trip
// through JSON and come back as generic maps, which consumers re-shape.
type RedisStore struct {
	ctx     context.Context
	logger  types.Logger
	config  *RedisConfig
	client  *redis.Client
	hits    uint64
	misses  uint64
	started int32
}

func NewRedisStore(ctx context.Context, logger types.Logger, config *types.CacheConfig) (types.CacheStore, error) {
	redisConfig := &RedisConfig{
		Host:         "localhost",
		Port:         6379,
		DB:           0,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		KeyPrefix:    "sai-storefront",
		DefaultTTL:   config.DefaultTTL,
	}

	if config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, redisConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal redis cache config")
		}
	}

	if redisConfig.DefaultTTL <= 0 {
		redisConfig.DefaultTTL = DefaultTTL
	}

	store := &RedisStore{
		ctx:    ctx,
		logger: logger,
		config: redisConfig,
	}

	return store, nil
}

func (r *RedisStore) Set(key string, value interface{}, ttl time.Duration) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	if ttl <= 0 {
		ttl = r.config.DefaultTTL
	}
	if ttl > MaxTTL {
		ttl = MaxTTL
	}

	data, err := utils.Marshal(value)
	if err != nil {
		return types.WrapError(err, "failed to marshal cache value")
	}

	if err := r.client.Set(r.ctx, r.prefixed(key), data, ttl).Err(); err != nil {
		return types.WrapError(err, "redis set failed")
	}

	return nil
}

func (r *RedisStore) Get(key string) (interface{}, bool) {
	data, err := r.client.Get(r.ctx, r.prefixed(key)).Bytes()
	if err != nil {
		atomic.AddUint64(&r.misses, 1)
		return nil, false
	}

	var value interface{}
	if err := utils.Unmarshal(data, &value); err != nil {
		atomic.AddUint64(&r.misses, 1)
		return nil, false
	}

	atomic.AddUint64(&r.hits, 1)
	return value, true
}

func (r *RedisStore) Has(key string) bool {
	n, err := r.client.Exists(r.ctx, r.prefixed(key)).Result()
	return err == nil && n > 0
}

func (r *RedisStore) Delete(key string) error {
	return r.client.Del(r.ctx, r.prefixed(key)).Err()
}

func (r *RedisStore) Clear() error {
	iter := r.client.Scan(r.ctx, 0, r.config.KeyPrefix+":*", 0).Iterator()
	for iter.Next(r.ctx) {
		if err := r.client.Del(r.ctx, iter.Val()).Err(); err != nil {
			return types.WrapError(err, "redis clear failed")
		}
	}
	return iter.Err()
}

func (r *RedisStore) Purge() int {
	// redis expires entries itself
	return 0
}

func (r *RedisStore) Stats() types.CacheStats {
	size := 0
	iter := r.client.Scan(r.ctx, 0, r.config.KeyPrefix+":*", 0).Iterator()
	for iter.Next(r.ctx) {
		size++
	}

	return types.CacheStats{
		Size:       size,
		Hits:       atomic.LoadUint64(&r.hits),
		Misses:     atomic.LoadUint64(&r.misses),
		DefaultTTL: r.config.DefaultTTL.String(),
	}
}

func (r *RedisStore) Start() error {
	if !atomic.CompareAndSwapInt32(&r.started, 0, 1) {
		return types.ErrAlreadyRunning
	}

	r.client = redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", r.config.Host, r.config.Port),
		Password:     r.config.Password,
		DB:           r.config.DB,
		PoolSize:     r.config.PoolSize,
		DialTimeout:  r.config.DialTimeout,
		ReadTimeout:  r.config.ReadTimeout,
		WriteTimeout: r.config.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(r.ctx, r.config.DialTimeout)
	defer cancel()

	if err := r.client.Ping(pingCtx).Err(); err != nil {
		atomic.StoreInt32(&r.started, 0)
		return types.WrapError(types.ErrCacheConnectionFailed, err.Error())
	}

	r.logger.Info("Redis cache started",
		zap.String("addr", fmt.Sprintf("%s:%d", r.config.Host, r.config.Port)),
		zap.String("prefix", r.config.KeyPrefix))
	return nil
}

func (r *RedisStore) Stop() error {
	if !atomic.CompareAndSwapInt32(&r.started, 1, 0) {
		return types.ErrNotRunning
	}

	if err := r.client.Close(); err != nil {
		return types.WrapError(err, "failed to close redis client")
	}

	r.logger.Info("Redis cache stopped gracefully")
	return nil
}

func (r *RedisStore) IsRunning() bool {
	return atomic.LoadInt32(&r.started) == 1
}

func (r *RedisStore) prefixed(key string) string {
	return r.config.KeyPrefix + ":" + key
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Naimur404/5str-backend-go/internal/domain/events"
	"github.com/Naimur404/5str-backend-go/pkg/config"
	"github.com/Naimur404/5str-backend-go/pkg/logger"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var log = logger.NewLogger()

// Custom error types
var (
	ErrCacheNotFound   = errors.New("cache: key not found")
	ErrCacheConnection = errors.New("cache: connection error")
	ErrInvalidConfig   = errors.New("cache: invalid configuration")
)

// ProfileEventChannel is the redis channel carrying profile invalidation
// events across nodes.
const ProfileEventChannel = "personalization:events"

// Config holds the configuration for the Redis client
type Config struct {
	Addr             string
	Password         string
	DB               int
	PoolSize         int
	MinIdleConns     int
	MaxRetries       int
	ConnTimeout      time.Duration
	OperationTimeout time.Duration
	DefaultTTL       time.Duration
	MaxKeyLength     int
	KeyPrefix        string
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		PoolSize:         100,
		MinIdleConns:     10,
		MaxRetries:       3,
		ConnTimeout:      5 * time.Second,
		OperationTimeout: 2 * time.Second,
		DefaultTTL:       10 * time.Minute,
		MaxKeyLength:     256,
		KeyPrefix:        "fivestr:",
	}
}

// NewConfigFromEnv creates a Redis config from project configuration
func NewConfigFromEnv(cfg *config.Config) *Config {
	c := DefaultConfig()
	c.Addr = fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	c.Password = cfg.Redis.Password
	c.DB = cfg.Redis.DB
	if cfg.Server.Timeout > 0 {
		c.OperationTimeout = cfg.Server.Timeout
	}
	return c
}

// CacheMetrics tracks cache hit/miss statistics with atomic operations
type CacheMetrics struct {
	hits    atomic.Int64
	misses  atomic.Int64
	hitRate atomic.Int64 // percentage * 100
	byType  sync.Map     // map[string]*TypeMetrics
}

// TypeMetrics tracks metrics for a specific cache type
type TypeMetrics struct {
	hits   atomic.Int64
	misses atomic.Int64
}

// RedisClient wraps the Redis client with typed TTLs, hit/miss tracking and
// a background health check.
type RedisClient struct {
	client    *redis.Client
	metrics   *CacheMetrics
	ttls      sync.Map // map[string]time.Duration
	config    *Config
	closeOnce sync.Once
	health    int32 // 0 = healthy, 1 = unhealthy
}

// NewRedisClient creates a new Redis client with the provided configuration
func NewRedisClient(cfg *Config) (*RedisClient, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if cfg.Addr == "" {
		return nil, fmt.Errorf("%w: address is required", ErrInvalidConfig)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnTimeout)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	r := &RedisClient{
		client:  client,
		config:  cfg,
		metrics: &CacheMetrics{},
	}

	// Per-type TTLs. Personalization entries are deliberately short-lived;
	// they are invalidated eagerly on interaction writes anyway.
	r.ttls.Store("default", cfg.DefaultTTL)
	r.ttls.Store("user_profile", 10*time.Minute)
	r.ttls.Store("recommendations", 10*time.Minute)
	r.ttls.Store("trending", 15*time.Minute)
	r.ttls.Store("business", time.Hour)

	go r.healthCheckLoop()

	return r, nil
}

// TTLFor returns the configured TTL for a cache type.
func (r *RedisClient) TTLFor(cacheType string) time.Duration {
	if v, ok := r.ttls.Load(cacheType); ok {
		return v.(time.Duration)
	}
	return r.config.DefaultTTL
}

// healthCheckLoop periodically checks Redis health
func (r *RedisClient) healthCheckLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), r.config.OperationTimeout)
		if err := r.HealthCheck(ctx); err != nil {
			atomic.StoreInt32(&r.health, 1)
			log.Error("Redis health check failed", zap.Error(err))
		} else {
			atomic.StoreInt32(&r.health, 0)
		}
		cancel()
	}
}

// IsHealthy returns whether Redis is currently healthy
func (r *RedisClient) IsHealthy() bool {
	return atomic.LoadInt32(&r.health) == 0
}

// withContext wraps the context with a timeout if none is set
func (r *RedisClient) withContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); !ok {
		return context.WithTimeout(ctx, r.config.OperationTimeout)
	}
	return ctx, func() {}
}

func (r *RedisClient) validateKey(key string) error {
	if len(key) == 0 {
		return fmt.Errorf("%w: empty key", ErrInvalidConfig)
	}
	if len(key) > r.config.MaxKeyLength {
		return fmt.Errorf("%w: key too long (max %d characters)", ErrInvalidConfig, r.config.MaxKeyLength)
	}
	return nil
}

func (r *RedisClient) prefixKey(key string) string {
	return r.config.KeyPrefix + key
}

// Get retrieves a value from the cache
func (r *RedisClient) Get(ctx context.Context, key string) (string, error) {
	if err := r.validateKey(key); err != nil {
		return "", err
	}

	if !r.IsHealthy() {
		return "", ErrCacheConnection
	}

	ctx, cancel := r.withContext(ctx)
	defer cancel()

	val, err := r.client.Get(ctx, r.prefixKey(key)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", fmt.Errorf("%w: %s", ErrCacheNotFound, key)
		}
		return "", fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}

	return val, nil
}

// Set stores a value in the cache
func (r *RedisClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.validateKey(key); err != nil {
		return err
	}

	if !r.IsHealthy() {
		return ErrCacheConnection
	}

	ctx, cancel := r.withContext(ctx)
	defer cancel()

	return r.client.Set(ctx, r.prefixKey(key), value, ttl).Err()
}

// Delete removes values from the cache
func (r *RedisClient) Delete(ctx context.Context, keys ...string) error {
	if !r.IsHealthy() {
		return ErrCacheConnection
	}

	ctx, cancel := r.withContext(ctx)
	defer cancel()

	prefixedKeys := make([]string, len(keys))
	for i, key := range keys {
		if err := r.validateKey(key); err != nil {
			return err
		}
		prefixedKeys[i] = r.prefixKey(key)
	}

	return r.client.Del(ctx, prefixedKeys...).Err()
}

// ClearByPattern removes all cache entries matching the given pattern
func (r *RedisClient) ClearByPattern(ctx context.Context, pattern string) error {
	if !r.IsHealthy() {
		return ErrCacheConnection
	}

	ctx, cancel := r.withContext(ctx)
	defer cancel()

	iter := r.client.Scan(ctx, 0, r.prefixKey(pattern), 100).Iterator()
	var keys []string

	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return err
	}

	if len(keys) > 0 {
		return r.client.Del(ctx, keys...).Err()
	}

	return nil
}

// trackCacheEvent tracks cache hits/misses with atomic operations
func (r *RedisClient) trackCacheEvent(hit bool, cacheType string) {
	if hit {
		r.metrics.hits.Add(1)
	} else {
		r.metrics.misses.Add(1)
	}

	total := r.metrics.hits.Load() + r.metrics.misses.Load()
	if total > 0 {
		hitRate := int64((float64(r.metrics.hits.Load()) / float64(total)) * 100)
		r.metrics.hitRate.Store(hitRate)
	}

	value, _ := r.metrics.byType.LoadOrStore(cacheType, &TypeMetrics{})
	typeMetrics := value.(*TypeMetrics)

	if hit {
		typeMetrics.hits.Add(1)
	} else {
		typeMetrics.misses.Add(1)
	}
}

// Fetch fills out from the JSON entry under key, recording a hit or miss for
// cacheType. A miss, an unreachable server or a corrupt entry all report
// false; corrupt entries are rebuilt by the caller, not served.
func (r *RedisClient) Fetch(ctx context.Context, key, cacheType string, out interface{}) bool {
	raw, err := r.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheNotFound) {
			log.Debug("Cache read failed", zap.String("key", key), zap.Error(err))
		}
		r.trackCacheEvent(false, cacheType)
		return false
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		log.Warn("Corrupt cache entry", zap.String("key", key), zap.Error(err))
		r.trackCacheEvent(false, cacheType)
		return false
	}

	r.trackCacheEvent(true, cacheType)
	log.Debug("Cache hit", zap.String("key", key), zap.String("type", cacheType))
	return true
}

// Store serializes v under key with the cacheType TTL.
func (r *RedisClient) Store(ctx context.Context, key, cacheType string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.Set(ctx, key, string(data), r.TTLFor(cacheType))
}

// GetMetrics returns current cache metrics
func (r *RedisClient) GetMetrics() map[string]interface{} {
	metrics := make(map[string]interface{})
	typeMetrics := make(map[string]interface{})

	r.metrics.byType.Range(func(key, value interface{}) bool {
		tm := value.(*TypeMetrics)
		typeMetrics[key.(string)] = map[string]interface{}{
			"hits":   tm.hits.Load(),
			"misses": tm.misses.Load(),
		}
		return true
	})

	stats := r.client.PoolStats()
	metrics["hits"] = r.metrics.hits.Load()
	metrics["misses"] = r.metrics.misses.Load()
	metrics["hit_rate"] = float64(r.metrics.hitRate.Load()) / 100.0
	metrics["by_type"] = typeMetrics
	metrics["health"] = r.IsHealthy()
	metrics["pool_stats"] = map[string]interface{}{
		"total_conns": stats.TotalConns,
		"idle_conns":  stats.IdleConns,
		"stale_conns": stats.StaleConns,
	}

	return metrics
}

// HealthCheck checks if Redis is responding
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close properly closes the Redis client
func (r *RedisClient) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.client.Close()
	})
	return err
}

// PublishProfileEvent publishes a profile event to the personalization
// channel so other nodes can react to cache invalidations.
func (r *RedisClient) PublishProfileEvent(ctx context.Context, event *events.ProfileEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, ProfileEventChannel, data).Err()
}

// SubscribeToProfileEvents subscribes to profile events and invokes callback
// per event until ctx is canceled.
func (r *RedisClient) SubscribeToProfileEvents(ctx context.Context, callback func(*events.ProfileEvent) error) error {
	pubsub := r.client.Subscribe(ctx, ProfileEventChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case msg := <-ch:
			var event events.ProfileEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				return err
			}
			if err := callback(&event); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Cache key builders for the personalization keys. Keeping them here keeps
// key layout in one place; callers never format these by hand.

// UserProfileFastKey caches the lightweight interaction profile.
func UserProfileFastKey(userID uuid.UUID) string {
	return fmt.Sprintf("user_profile_fast:%s", userID)
}

// UserProfileFullKey caches the full interaction profile.
func UserProfileFullKey(userID uuid.UUID) string {
	return fmt.Sprintf("user_profile_full:%s", userID)
}

// UserRecommendationsKey caches a scenario-scoped ranked list.
func UserRecommendationsKey(userID uuid.UUID, scenario string, limit int) string {
	return fmt.Sprintf("user_recommendations:%s:%s:%d", userID, scenario, limit)
}

// UserPersonalizedKey caches the default personalized list.
func UserPersonalizedKey(userID uuid.UUID, limit int) string {
	return fmt.Sprintf("user_personalized:%s:%d", userID, limit)
}

// UserRecommendationsPattern matches every cached list for a user,
// regardless of scenario and limit.
func UserRecommendationsPattern(userID uuid.UUID) string {
	return fmt.Sprintf("user_recommendations:%s:*", userID)
}

// UserPersonalizedPattern matches every cached personalized list for a user.
func UserPersonalizedPattern(userID uuid.UUID) string {
	return fmt.Sprintf("user_personalized:%s:*", userID)
}

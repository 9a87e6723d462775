package cache

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func metricsOnlyClient() *RedisClient {
	return &RedisClient{
		config:  DefaultConfig(),
		metrics: &CacheMetrics{},
	}
}

func TestTrackCacheEventAccounting(t *testing.T) {
	r := metricsOnlyClient()

	r.trackCacheEvent(true, "recommendations")
	r.trackCacheEvent(true, "recommendations")
	r.trackCacheEvent(false, "recommendations")
	r.trackCacheEvent(false, "user_profile")

	assert.Equal(t, int64(2), r.metrics.hits.Load())
	assert.Equal(t, int64(2), r.metrics.misses.Load())
	// 2 hits out of 4 events, stored as percentage.
	assert.Equal(t, int64(50), r.metrics.hitRate.Load())

	value, ok := r.metrics.byType.Load("recommendations")
	assert.True(t, ok)
	tm := value.(*TypeMetrics)
	assert.Equal(t, int64(2), tm.hits.Load())
	assert.Equal(t, int64(1), tm.misses.Load())

	value, ok = r.metrics.byType.Load("user_profile")
	assert.True(t, ok)
	tm = value.(*TypeMetrics)
	assert.Equal(t, int64(0), tm.hits.Load())
	assert.Equal(t, int64(1), tm.misses.Load())
}

func TestTTLForFallsBackToDefault(t *testing.T) {
	r := metricsOnlyClient()
	r.ttls.Store("trending", r.config.DefaultTTL/2)

	assert.Equal(t, r.config.DefaultTTL/2, r.TTLFor("trending"))
	assert.Equal(t, r.config.DefaultTTL, r.TTLFor("unregistered"))
}

func TestPersonalizationKeyBuilders(t *testing.T) {
	userID := uuid.MustParse("a7cde9b4-4a7e-4d6c-9b21-2f8a5a3d9c01")

	assert.Equal(t, "user_profile_fast:a7cde9b4-4a7e-4d6c-9b21-2f8a5a3d9c01", UserProfileFastKey(userID))
	assert.Equal(t, "user_profile_full:a7cde9b4-4a7e-4d6c-9b21-2f8a5a3d9c01", UserProfileFullKey(userID))
	assert.Equal(t, "user_recommendations:a7cde9b4-4a7e-4d6c-9b21-2f8a5a3d9c01:trending:10",
		UserRecommendationsKey(userID, "trending", 10))
	assert.Equal(t, "user_personalized:a7cde9b4-4a7e-4d6c-9b21-2f8a5a3d9c01:20",
		UserPersonalizedKey(userID, 20))
	assert.Equal(t, "user_recommendations:a7cde9b4-4a7e-4d6c-9b21-2f8a5a3d9c01:*",
		UserRecommendationsPattern(userID))
	assert.Equal(t, "user_personalized:a7cde9b4-4a7e-4d6c-9b21-2f8a5a3d9c01:*",
		UserPersonalizedPattern(userID))
}

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/evergrid/carbonledger/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenBucket_NilClient(t *testing.T) {
	assert.Nil(t, NewTokenBucket(nil))
}

func TestAllow_RejectsBadArguments(t *testing.T) {
	var bucket *TokenBucket

	result, err := bucket.Allow(context.Background(), "k", 10, 20)
	assert.Error(t, err)
	assert.False(t, result.Allowed)

	bucket = &TokenBucket{}
	_, err = bucket.Allow(context.Background(), "k", 10, 20)
	assert.Error(t, err)
}

func TestDefaultBucketTTL(t *testing.T) {
	// Twice the full-refill time, rounded up to whole seconds.
	assert.Equal(t, 4*time.Second, defaultBucketTTL(100, 200))
	assert.Equal(t, time.Second, defaultBucketTTL(1000, 1))
	assert.Equal(t, 7*time.Second, defaultBucketTTL(3, 10))
	assert.Equal(t, time.Second, defaultBucketTTL(0, 10))
}

func TestCastToInt(t *testing.T) {
	assert.Equal(t, int64(1), castToInt(int64(1)))
	assert.Equal(t, int64(2), castToInt(2))
	assert.Equal(t, int64(3), castToInt(3.9))
	assert.Equal(t, int64(0), castToInt("1"))
	assert.Equal(t, int64(0), castToInt(nil))
}

func TestCastToFloat(t *testing.T) {
	assert.Equal(t, 1.5, castToFloat(1.5))
	assert.Equal(t, 2.0, castToFloat(int64(2)))
	assert.Equal(t, 3.5, castToFloat("3.5"))
	assert.Equal(t, 0.0, castToFloat("not-a-number"))
	assert.Equal(t, 0.0, castToFloat(nil))
}

func TestNewIngestLimiter_DisabledWithoutRedis(t *testing.T) {
	assert.Nil(t, NewIngestLimiter(config.Config{IngestRateLimit: 10, IngestRateBurst: 20}))
	assert.Nil(t, NewIngestLimiter(config.Config{RedisAddr: "localhost:6379", IngestRateBurst: 20}))
	assert.Nil(t, NewIngestLimiter(config.Config{RedisAddr: "localhost:6379", IngestRateLimit: 10}))
}

func TestIngestLimiter_NilAllowsEverything(t *testing.T) {
	var limiter *IngestLimiter

	assert.False(t, limiter.Enabled())

	result, err := limiter.AllowTenant(context.Background(), "42")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

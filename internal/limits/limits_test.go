package limits

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chimera-dev/chimera/internal/config"
)

func testConfig() config.LimitsConfig {
	return config.LimitsConfig{
		DailyMessageLimit: 3,
		MessagesPerSecond: 100,
		Burst:             100,
	}
}

func TestAllowDailyQuotaRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig()
	cfg.RedisAddr = mr.Addr()
	l := New(cfg)
	defer l.Close()

	ctx := context.Background()
	for i := 0; i < cfg.DailyMessageLimit; i++ {
		allowed, err := l.Allow(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, allowed, "message %d should be within quota", i+1)
	}

	allowed, err := l.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, allowed)

	key := fmt.Sprintf("chimera:daily:user-1:%s", time.Now().UTC().Format("2006-01-02"))
	assert.True(t, mr.Exists(key))
	assert.Greater(t, mr.TTL(key), time.Duration(0))
}

func TestAllowRedisQuotaPerUser(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig()
	cfg.RedisAddr = mr.Addr()
	l := New(cfg)
	defer l.Close()

	ctx := context.Background()
	for i := 0; i < cfg.DailyMessageLimit; i++ {
		_, err := l.Allow(ctx, "user-1")
		require.NoError(t, err)
	}
	allowed, err := l.Allow(ctx, "user-1")
	require.NoError(t, err)
	require.False(t, allowed)

	allowed, err = l.Allow(ctx, "user-2")
	require.NoError(t, err)
	assert.True(t, allowed, "quota is per user")
}

func TestAllowRedisBackendDown(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig()
	cfg.RedisAddr = mr.Addr()
	l := New(cfg)
	defer l.Close()

	mr.Close()

	_, err := l.Allow(context.Background(), "user-1")
	assert.Error(t, err)
}

func TestAllowMemoryFallback(t *testing.T) {
	l := New(testConfig())
	defer l.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		allowed, err := l.Allow(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, err := l.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = l.Allow(ctx, "user-2")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestMemoryQuotaResetsNextDay(t *testing.T) {
	l := New(testConfig())
	defer l.Close()

	current := time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return current }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := l.Allow(ctx, "user-1")
		require.NoError(t, err)
	}
	allowed, err := l.Allow(ctx, "user-1")
	require.NoError(t, err)
	require.False(t, allowed)

	current = current.Add(2 * time.Hour) // past midnight

	allowed, err = l.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestBurstLimiter(t *testing.T) {
	cfg := testConfig()
	cfg.DailyMessageLimit = 0
	cfg.MessagesPerSecond = 1
	cfg.Burst = 1
	l := New(cfg)
	defer l.Close()

	ctx := context.Background()
	allowed, err := l.Allow(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = l.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, allowed, "second immediate message exceeds the burst")
}

func TestDailyLimitDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.DailyMessageLimit = 0
	l := New(cfg)
	defer l.Close()

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		allowed, err := l.Allow(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
}

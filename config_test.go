package cartsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, "cart.facade", cfg.SubjectPrefix)
	assert.Equal(t, 168*time.Hour, cfg.CartTTL)
	assert.Equal(t, 30*time.Second, cfg.TaskTimeout)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("CARTSYNC_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("CARTSYNC_REDIS_DB", "3")
	t.Setenv("CARTSYNC_TASK_TIMEOUT", "5s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "redis.internal:6380", cfg.RedisAddr)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 5*time.Second, cfg.TaskTimeout)
}

func TestLoadConfig_RejectsInvalidValues(t *testing.T) {
	t.Setenv("CARTSYNC_TASK_TIMEOUT", "0s")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_RejectsNegativeRedisDB(t *testing.T) {
	t.Setenv("CARTSYNC_REDIS_DB", "-1")

	_, err := LoadConfig()
	assert.Error(t, err)
}

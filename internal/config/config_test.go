package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadLockConfig_Defaults(t *testing.T) {
	t.Setenv("LOCK_WAIT_TIMEOUT", "")
	t.Setenv("LOCK_TTL", "")

	c := LoadLockConfig()
	assert.Equal(t, 5*time.Second, c.WaitTimeout)
	assert.Equal(t, 15*time.Second, c.TTL)
	assert.Equal(t, "lock", c.Prefix)
}

func TestLoadLockConfig_TTLNeverShorterThanWait(t *testing.T) {
	t.Setenv("LOCK_WAIT_TIMEOUT", "10s")
	t.Setenv("LOCK_TTL", "2s")

	c := LoadLockConfig()
	assert.Equal(t, 10*time.Second, c.WaitTimeout)
	assert.Equal(t, 30*time.Second, c.TTL)
}

func TestLoadRateLimitConfig_Clamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "1m")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	c := LoadRateLimitConfig()
	assert.Equal(t, 1, c.Capacity)
	assert.Equal(t, 5*time.Minute, c.TTL)
}

func TestEnvHelpersFallBack(t *testing.T) {
	t.Setenv("X_INT", "nope")
	t.Setenv("X_BOOL", "maybe")
	t.Setenv("X_DUR", "soon")

	assert.Equal(t, 3, envInt("X_INT", 3))
	assert.True(t, envBool("X_BOOL", true))
	assert.Equal(t, time.Minute, envDur("X_DUR", time.Minute))
}

func TestLoadRedisConfig_HostPortWins(t *testing.T) {
	t.Setenv("REDIS_ADDR", "ignored:1")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")

	assert.Equal(t, "cache:6380", LoadRedisConfig().Addr)
}

func TestLoadQueueConfig_DefaultQueue(t *testing.T) {
	t.Setenv("RABBITMQ_URL", "amqp://u:p@mq:5672/")
	t.Setenv("BOOKING_EVENTS_QUEUE", "")

	c := LoadQueueConfig()
	assert.Equal(t, "amqp://u:p@mq:5672/", c.URL)
	assert.Equal(t, "booking.events", c.QueueName)
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "123456:abc")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "123456:abc", cfg.TelegramToken)
	assert.Equal(t, 10*time.Second, cfg.PollIntervalOpen)
	assert.Equal(t, 30*time.Second, cfg.PollIntervalClosed)
	assert.Equal(t, "file", cfg.StoreDriver)
	assert.Equal(t, "https://api.checkbox.in.ua/api/v1", cfg.CheckboxAPIURL)
	assert.True(t, cfg.PollOnStartup)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "1:x")
	t.Setenv("POLL_INTERVAL_OPEN", "5s")
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("REDIS_URL", "redis://localhost:6379/1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.PollIntervalOpen)
	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, "redis://localhost:6379/1", cfg.RedisURL)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			TelegramToken:       "42:token",
			StoreDriver:         "file",
			ReceiptHistoryFloor: "2023-01-01",
			Timezone:            "UTC",
		}
	}

	t.Run("ok", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})
	t.Run("empty telegram token", func(t *testing.T) {
		c := base()
		c.TelegramToken = ""
		assert.Error(t, c.Validate())
	})
	t.Run("malformed telegram token", func(t *testing.T) {
		c := base()
		c.TelegramToken = "not-a-token"
		assert.Error(t, c.Validate())
	})
	t.Run("unknown store driver", func(t *testing.T) {
		c := base()
		c.StoreDriver = "mongo"
		assert.Error(t, c.Validate())
	})
	t.Run("admin hash without jwt secret", func(t *testing.T) {
		c := base()
		c.AdminPasswordHash = "$2a$12$abc"
		assert.Error(t, c.Validate())
	})
	t.Run("bad history floor", func(t *testing.T) {
		c := base()
		c.ReceiptHistoryFloor = "01.01.2023"
		assert.Error(t, c.Validate())
	})
}

func TestHistoryFloor(t *testing.T) {
	c := &Config{ReceiptHistoryFloor: "2023-01-01"}
	floor, err := c.HistoryFloor()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), floor)
}
